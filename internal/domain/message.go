package domain

import (
	"errors"
	"time"
)

// MaxMessageLen mirrors the 16kb body limit of the REST surface.
const MaxMessageLen = 16 * 1024

var (
	ErrMessageEmpty   = errors.New("message empty")
	ErrMessageTooLong = errors.New("message too long")
)

// Message is a chat message as handed out by the message store.
type Message struct {
	ID        string    `json:"id"`
	Sender    UserID    `json:"sender"`
	Receiver  UserID    `json:"receiver"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func ValidateText(text string) error {
	if len(text) == 0 {
		return ErrMessageEmpty
	}
	if len(text) > MaxMessageLen {
		return ErrMessageTooLong
	}
	return nil
}

// Room returns the pair room the message belongs to.
func (m *Message) Room() RoomID {
	return PairRoom(m.Sender, m.Receiver)
}
