package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultHistoryLimit = 30
	MaxHistoryLimit     = 100
)

// MessageRepository implements core.MessageStore.
type MessageRepository struct {
	db  *gorm.DB
	now func() time.Time
}

var _ core.MessageStore = (*MessageRepository)(nil)

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db, now: time.Now}
}

func (r *MessageRepository) StoreMessage(ctx context.Context, sender, receiver domain.UserID, text string) (*domain.Message, error) {
	rec := MessageRecord{
		ID:        uuid.NewString(),
		Room:      string(domain.PairRoom(sender, receiver)),
		Sender:    string(sender),
		Receiver:  string(receiver),
		Text:      text,
		CreatedAt: r.now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	msg := rec.toDomain()
	return &msg, nil
}

// History returns one page of the conversation between a and b, newest
// first, along with the total number of messages. Pages start at 1.
func (r *MessageRepository) History(ctx context.Context, a, b domain.UserID, page, limit int) ([]domain.Message, int64, error) {
	page, limit = normalizePage(page, limit)
	room := string(domain.PairRoom(a, b))
	conversation := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&MessageRecord{}).Where("room = ?", room)
	}

	var total int64
	if err := conversation().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	var recs []MessageRecord
	err := conversation().Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find messages: %w", err)
	}
	out := make([]domain.Message, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toDomain())
	}
	return out, total, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return page, limit
}
