package app

import (
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

type typingKey struct {
	room domain.RoomID
	user domain.UserID
}

type typingFlag struct {
	sid   core.SessionID
	timer *time.Timer
}

// TypingTracker relays typing indicators within a room and keeps one flag
// per (room, user). With a non-zero Expiry a flag that is not refreshed
// clears itself with a stopped_typing; flags of a disconnecting connection
// are cleared the same way.
type TypingTracker struct {
	rooms  *RoomManager
	expiry time.Duration
	policy Policy

	mu    sync.Mutex
	flags map[typingKey]*typingFlag
}

func NewTypingTracker(rooms *RoomManager, expiry time.Duration, policy Policy) *TypingTracker {
	return &TypingTracker{
		rooms:  rooms,
		expiry: expiry,
		policy: policy,
		flags:  make(map[typingKey]*typingFlag),
	}
}

func (t *TypingTracker) Typing(s core.Session, room domain.RoomID) {
	key := typingKey{room: room, user: s.User().ID}
	flag := &typingFlag{sid: s.ID()}

	t.mu.Lock()
	if prev, ok := t.flags[key]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	if t.expiry > 0 {
		flag.timer = time.AfterFunc(t.expiry, func() { t.expire(key, flag) })
	}
	t.flags[key] = flag
	t.mu.Unlock()

	t.relay(room, s.ID(), core.EvIsTyping, key.user)
}

func (t *TypingTracker) StopTyping(s core.Session, room domain.RoomID) {
	key := typingKey{room: room, user: s.User().ID}
	t.mu.Lock()
	if f, ok := t.flags[key]; ok {
		if f.timer != nil {
			f.timer.Stop()
		}
		delete(t.flags, key)
	}
	t.mu.Unlock()

	t.relay(room, s.ID(), core.EvStoppedTyping, key.user)
}

// ClearSession drops every flag raised by s and tells the rooms.
func (t *TypingTracker) ClearSession(s core.Session) {
	var keys []typingKey
	t.mu.Lock()
	for key, f := range t.flags {
		if f.sid != s.ID() {
			continue
		}
		if f.timer != nil {
			f.timer.Stop()
		}
		delete(t.flags, key)
		keys = append(keys, key)
	}
	t.mu.Unlock()

	for _, key := range keys {
		t.relay(key.room, s.ID(), core.EvStoppedTyping, key.user)
	}
}

// IsTyping reports whether user currently holds a typing flag in room.
func (t *TypingTracker) IsTyping(room domain.RoomID, user domain.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.flags[typingKey{room: room, user: user}]
	return ok
}

func (t *TypingTracker) expire(key typingKey, flag *typingFlag) {
	t.mu.Lock()
	if t.flags[key] != flag {
		t.mu.Unlock()
		return
	}
	delete(t.flags, key)
	t.mu.Unlock()

	log.Debug().Str("module", "app.typing").Str("room", string(key.room)).Str("user", string(key.user)).Msg("typing expired")
	t.relay(key.room, flag.sid, core.EvStoppedTyping, key.user)
}

func (t *TypingTracker) relay(room domain.RoomID, from core.SessionID, eventType string, user domain.UserID) {
	r, ok := t.rooms.Get(room)
	if !ok {
		return
	}
	frame, err := core.Encode(eventType, core.TypingNotice{RoomID: room, UserID: user})
	if err != nil {
		log.Error().Err(err).Str("module", "app.typing").Msg("encode typing")
		return
	}
	applyPolicy(t.policy, r, r.Broadcast(from, frame))
}
