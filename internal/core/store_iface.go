package core

import (
	"context"
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

// MessageStore is the durable message collaborator. The relay only fans a
// message out after StoreMessage returned it.
type MessageStore interface {
	StoreMessage(ctx context.Context, sender, receiver domain.UserID, text string) (*domain.Message, error)
	// History returns one page of the conversation between a and b, newest
	// first, plus the total number of messages.
	History(ctx context.Context, a, b domain.UserID, page, limit int) ([]domain.Message, int64, error)
}

// PresenceStore persists the online flag of a user.
type PresenceStore interface {
	SetUserOnline(ctx context.Context, id domain.UserID, online bool, lastActive time.Time) error
}
