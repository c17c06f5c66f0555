package store

import (
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

// MessageRecord is a row of the messages table.
type MessageRecord struct {
	ID        string    `gorm:"primarykey;size:36"`
	Room      string    `gorm:"size:130;not null;index:idx_messages_room_created,priority:1"`
	Sender    string    `gorm:"size:64;not null"`
	Receiver  string    `gorm:"size:64;not null"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_messages_room_created,priority:2"`
}

func (MessageRecord) TableName() string {
	return "messages"
}

func (r MessageRecord) toDomain() domain.Message {
	return domain.Message{
		ID:        r.ID,
		Sender:    domain.UserID(r.Sender),
		Receiver:  domain.UserID(r.Receiver),
		Text:      r.Text,
		Timestamp: r.CreatedAt,
	}
}

// UserRecord holds the persisted presence of a user.
type UserRecord struct {
	ID         string `gorm:"primarykey;size:64"`
	Online     bool   `gorm:"not null"`
	LastActive *time.Time
	UpdatedAt  time.Time
}

func (UserRecord) TableName() string {
	return "users"
}
