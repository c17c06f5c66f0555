package app

import "github.com/dkeye/Parley/internal/core"

type BackpressureAction int

// The zero action leaves the subscriber in place; it just misses the frame.
const (
	KickMember BackpressureAction = iota + 1
)

// Policy decides what happens to a subscriber whose send buffer is full.
type Policy interface {
	OnBackPressure(room core.RoomService, member core.Session) BackpressureAction
}

// SimplePolicy kicks a stuck subscriber; its client reconnects and
// refetches history.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room core.RoomService, member core.Session) BackpressureAction {
	return KickMember
}

// applyPolicy runs p over the dropped members of a broadcast.
func applyPolicy(p Policy, room core.RoomService, res core.PublishResult) {
	if p == nil {
		return
	}
	for _, slow := range res.Dropped {
		if p.OnBackPressure(room, slow) == KickMember {
			slow.Kick()
		}
	}
}
