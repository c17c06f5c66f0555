package store

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

// PresenceFanout writes presence to every store and joins their errors.
type PresenceFanout []core.PresenceStore

func (f PresenceFanout) SetUserOnline(ctx context.Context, id domain.UserID, online bool, lastActive time.Time) error {
	var errs []error
	for _, s := range f {
		if err := s.SetUserOnline(ctx, id, online, lastActive); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
