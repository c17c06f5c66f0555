package core

import (
	"github.com/dkeye/Parley/internal/domain"
)

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SendTo  int
	Dropped []Session
}

// RoomService is the core-facing API of a room.
// It owns the subscription set but never touches transport resources.
type RoomService interface {
	ID() domain.RoomID
	MemberCount() int

	Subscribe(s Session)
	Unsubscribe(sid SessionID)
	// Broadcast sends to every subscriber except `except` (pass "" to
	// include everybody).
	Broadcast(except SessionID, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}
