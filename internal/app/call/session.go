package call

import (
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

// Role of a participant within a session.
type Role int

const (
	NoRole Role = iota
	Caller
	Receiver
)

// Session tracks one call attempt. Its fields are guarded by the Manager.
type Session struct {
	ID        string
	Caller    domain.UserID
	Receiver  domain.UserID
	Meta      domain.CallMeta
	State     State
	CreatedAt time.Time

	timer *time.Timer
}

func (s *Session) RoleOf(u domain.UserID) Role {
	switch u {
	case s.Caller:
		return Caller
	case s.Receiver:
		return Receiver
	default:
		return NoRole
	}
}

// Peer returns the other participant.
func (s *Session) Peer(u domain.UserID) domain.UserID {
	if u == s.Caller {
		return s.Receiver
	}
	return s.Caller
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Snapshot is a copy of a session safe to hand out.
type Snapshot struct {
	ID        string          `json:"id"`
	Caller    domain.UserID   `json:"caller"`
	Receiver  domain.UserID   `json:"receiver"`
	Meta      domain.CallMeta `json:"meta"`
	State     string          `json:"state"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		ID:        s.ID,
		Caller:    s.Caller,
		Receiver:  s.Receiver,
		Meta:      s.Meta,
		State:     s.State.String(),
		CreatedAt: s.CreatedAt,
	}
}

type pairKey struct{ a, b domain.UserID }

func keyOf(x, y domain.UserID) pairKey {
	if y < x {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}
