package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	presenceKeyPrefix = "presence:"
	onlineSetKey      = "online_users"
)

func NewRedisClient(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if cfg.DB != 0 {
		opt.DB = cfg.DB
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info().Str("module", "store").Str("addr", opt.Addr).Int("db", opt.DB).Msg("connected to redis")
	return client, nil
}

type presenceEntry struct {
	UserID     domain.UserID `json:"userId"`
	Online     bool          `json:"online"`
	LastActive time.Time     `json:"lastActive"`
}

// PresenceMirror publishes presence to redis for other services. Keys
// expire after ttl so a crashed process does not leave users online
// forever.
type PresenceMirror struct {
	redis *redis.Client
	ttl   time.Duration
}

var _ core.PresenceStore = (*PresenceMirror)(nil)

func NewPresenceMirror(client *redis.Client, ttl time.Duration) *PresenceMirror {
	if ttl <= 0 {
		ttl = 120 * time.Second
	}
	return &PresenceMirror{redis: client, ttl: ttl}
}

func presenceKey(id domain.UserID) string {
	return presenceKeyPrefix + string(id)
}

func (m *PresenceMirror) SetUserOnline(ctx context.Context, id domain.UserID, online bool, lastActive time.Time) error {
	pipe := m.redis.Pipeline()
	if online {
		data, err := json.Marshal(presenceEntry{UserID: id, Online: true, LastActive: time.Now().UTC()})
		if err != nil {
			return fmt.Errorf("failed to marshal presence data: %w", err)
		}
		pipe.Set(ctx, presenceKey(id), data, m.ttl)
		pipe.SAdd(ctx, onlineSetKey, string(id))
		pipe.Expire(ctx, onlineSetKey, m.ttl*2)
	} else {
		pipe.Del(ctx, presenceKey(id))
		pipe.SRem(ctx, onlineSetKey, string(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}
	return nil
}

// Refresh extends the TTL of every id, keeping long-lived connections
// visible.
func (m *PresenceMirror) Refresh(ctx context.Context, ids []domain.UserID) error {
	if len(ids) == 0 {
		return nil
	}
	pipe := m.redis.Pipeline()
	for _, id := range ids {
		pipe.Expire(ctx, presenceKey(id), m.ttl)
	}
	pipe.Expire(ctx, onlineSetKey, m.ttl*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}
