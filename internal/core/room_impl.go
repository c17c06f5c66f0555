package core

import (
	"sync"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	id    domain.RoomID
	mu    sync.RWMutex
	bySID map[SessionID]Session
}

func NewRoomService(id domain.RoomID) RoomService {
	return &roomImpl{
		id:    id,
		bySID: make(map[SessionID]Session),
	}
}

func (r *roomImpl) ID() domain.RoomID { return r.id }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) Subscribe(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySID[s.ID()] = s
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(s.ID())).Str("user", string(s.User().ID)).Msg("subscribed")
}

func (r *roomImpl) Unsubscribe(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bySID, sid)
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(sid)).Msg("unsubscribed")
}

func (r *roomImpl) Broadcast(except SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, s := range r.bySID {
		if except != "" && sid == except {
			continue
		}
		if err := s.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, s)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
