package app

import (
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

type presenceEntry struct {
	Session     core.Session
	OnlineSince time.Time
}

// Registry is the presence registry: one live session per user, last
// connection wins. It implements core.Presence.
type Registry struct {
	mu     sync.RWMutex
	byUser map[domain.UserID]*presenceEntry
	now    func() time.Time
}

var _ core.Presence = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[domain.UserID]*presenceEntry),
		now:    time.Now,
	}
}

func (r *Registry) Register(s core.Session) core.Session {
	uid := s.User().ID
	r.mu.Lock()
	var evicted core.Session
	if prev, ok := r.byUser[uid]; ok && prev.Session.ID() != s.ID() {
		evicted = prev.Session
	}
	r.byUser[uid] = &presenceEntry{Session: s, OnlineSince: r.now()}
	others := r.othersLocked(uid)
	r.mu.Unlock()

	logger := log.Info().Str("module", "app.registry").Str("sid", string(s.ID())).Str("user", string(uid))
	if evicted != nil {
		logger = logger.Str("evicted_sid", string(evicted.ID()))
	}
	logger.Msg("registered")

	r.broadcast(others, core.StatusUpdate{UserID: uid, Online: true})
	return evicted
}

func (r *Registry) Unregister(s core.Session) bool {
	uid := s.User().ID
	r.mu.Lock()
	entry, ok := r.byUser[uid]
	if !ok || entry.Session.ID() != s.ID() {
		r.mu.Unlock()
		log.Debug().Str("module", "app.registry").Str("sid", string(s.ID())).Str("user", string(uid)).Msg("stale unregister ignored")
		return false
	}
	delete(r.byUser, uid)
	others := r.othersLocked(uid)
	r.mu.Unlock()

	lastActive := r.now()
	log.Info().Str("module", "app.registry").Str("sid", string(s.ID())).Str("user", string(uid)).Msg("unregistered")
	r.broadcast(others, core.StatusUpdate{UserID: uid, Online: false, LastActive: &lastActive})
	return true
}

func (r *Registry) Resolve(id domain.UserID) (core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byUser[id]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) Online() []core.PresenceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.PresenceInfo, 0, len(r.byUser))
	for uid, e := range r.byUser {
		out = append(out, core.PresenceInfo{UserID: uid, OnlineSince: e.OnlineSince})
	}
	return out
}

func (r *Registry) othersLocked(except domain.UserID) []core.Session {
	out := make([]core.Session, 0, len(r.byUser))
	for uid, e := range r.byUser {
		if uid == except {
			continue
		}
		out = append(out, e.Session)
	}
	return out
}

func (r *Registry) broadcast(to []core.Session, st core.StatusUpdate) {
	frame, err := core.Encode(core.EvStatusUpdate, st)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Msg("encode status")
		return
	}
	for _, s := range to {
		if err := s.Signal().TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "app.registry").Str("sid", string(s.ID())).Msg("status not delivered")
		}
	}
}
