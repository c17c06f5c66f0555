// Package call implements the call-signaling state machine. The server only
// gates which relay events are meaningful for a call; SDP and ICE payloads
// are forwarded untouched.
package call

import (
	"errors"
	"fmt"
)

type State int

const (
	Idle State = iota
	Calling
	Ringing
	Accepted
	Connected
	Ended
	Failed
	Cancelled
	Rejected
)

var stateNames = [...]string{"idle", "calling", "ringing", "accepted", "connected", "ended", "failed", "cancelled", "rejected"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal states destroy the session; nothing leaves them.
func (s State) Terminal() bool {
	return s >= Ended
}

type Event int

const (
	EvStart Event = iota
	EvRing
	EvCancel
	EvAccept
	EvReject
	EvOffer
	EvAnswer
	EvICE
	EvEnd
	EvTimeout
	EvDisconnect
	// EvUnreachable fires when a relay step cannot resolve its destination.
	EvUnreachable
)

var eventNames = [...]string{"start", "ring", "cancel", "accept", "reject", "offer", "answer", "ice", "end", "timeout", "disconnect", "unreachable"}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("event(%d)", int(e))
}

var ErrInvalidTransition = errors.New("invalid call transition")

// transitions is the single source of truth for the call lifecycle,
// disconnects included.
var transitions = map[State]map[Event]State{
	Idle: {
		EvStart: Calling,
	},
	Calling: {
		EvRing:        Ringing,
		EvUnreachable: Failed,
		EvCancel:      Cancelled,
		EvDisconnect:  Ended,
	},
	Ringing: {
		EvCancel:      Cancelled,
		EvAccept:      Accepted,
		EvReject:      Rejected,
		EvTimeout:     Failed,
		EvDisconnect:  Ended,
		EvUnreachable: Ended,
	},
	Accepted: {
		EvOffer:       Accepted,
		EvAnswer:      Connected,
		EvICE:         Accepted,
		EvEnd:         Ended,
		EvDisconnect:  Ended,
		EvUnreachable: Ended,
	},
	Connected: {
		EvICE:         Connected,
		EvEnd:         Ended,
		EvDisconnect:  Ended,
		EvUnreachable: Ended,
	},
}

// Next returns the state reached from `from` on ev.
func Next(from State, ev Event) (State, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
}
