package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository keeps the online flag and last activity per user.
type UserRepository struct {
	db *gorm.DB
}

var _ core.PresenceStore = (*UserRepository)(nil)

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// SetUserOnline upserts the presence of id. lastActive is only written when
// it is set.
func (r *UserRepository) SetUserOnline(ctx context.Context, id domain.UserID, online bool, lastActive time.Time) error {
	rec := UserRecord{ID: string(id), Online: online}
	columns := []string{"online", "updated_at"}
	if !lastActive.IsZero() {
		la := lastActive.UTC()
		rec.LastActive = &la
		columns = append(columns, "last_active")
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to set presence of %s: %w", id, err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id domain.UserID) (*UserRecord, error) {
	var rec UserRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &rec, nil
}

// ResetOnline marks every user offline. Run at startup: nobody is connected
// to a fresh process.
func (r *UserRepository) ResetOnline(ctx context.Context) error {
	err := r.db.WithContext(ctx).Model(&UserRecord{}).Where("online = ?", true).Update("online", false).Error
	if err != nil {
		return fmt.Errorf("failed to reset presence: %w", err)
	}
	return nil
}
