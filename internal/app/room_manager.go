package app

import (
	"sync"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManager owns the room table and the per-connection subscription
// index. Rooms are created on first join and dropped when they empty out.
type RoomManager struct {
	mu        sync.RWMutex
	rooms     map[domain.RoomID]core.RoomService
	bySession map[core.SessionID]map[domain.RoomID]struct{}
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms:     make(map[domain.RoomID]core.RoomService),
		bySession: make(map[core.SessionID]map[domain.RoomID]struct{}),
	}
}

// Join subscribes s to the room. Joining twice is a no-op.
func (m *RoomManager) Join(id domain.RoomID, s core.Session) core.RoomService {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		room = core.NewRoomService(id)
		m.rooms[id] = room
	}
	room.Subscribe(s)
	subs, ok := m.bySession[s.ID()]
	if !ok {
		subs = make(map[domain.RoomID]struct{})
		m.bySession[s.ID()] = subs
	}
	subs[id] = struct{}{}
	log.Info().Str("module", "app.rooms").Str("sid", string(s.ID())).Str("room", string(id)).Msg("joined")
	return room
}

func (m *RoomManager) Leave(id domain.RoomID, sid core.SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(id, sid)
}

// LeaveAll drops every subscription of sid and returns the rooms it left.
func (m *RoomManager) LeaveAll(sid core.SessionID) []domain.RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.bySession[sid]
	out := make([]domain.RoomID, 0, len(subs))
	for id := range subs {
		out = append(out, id)
		m.leaveLocked(id, sid)
	}
	delete(m.bySession, sid)
	return out
}

func (m *RoomManager) leaveLocked(id domain.RoomID, sid core.SessionID) {
	if subs, ok := m.bySession[sid]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(m.bySession, sid)
		}
	}
	room, ok := m.rooms[id]
	if !ok {
		return
	}
	room.Unsubscribe(sid)
	if room.MemberCount() == 0 {
		delete(m.rooms, id)
	}
	log.Info().Str("module", "app.rooms").Str("sid", string(sid)).Str("room", string(id)).Msg("left")
}

func (m *RoomManager) Get(id domain.RoomID) (core.RoomService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

func (m *RoomManager) RoomsOf(sid core.SessionID) []domain.RoomID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.RoomID, 0, len(m.bySession[sid]))
	for id := range m.bySession[sid] {
		out = append(out, id)
	}
	return out
}

func (m *RoomManager) List() []core.RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(m.rooms))
	for id, r := range m.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount()})
	}
	return out
}
