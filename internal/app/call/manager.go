package call

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidPeer = errors.New("invalid call peer")
	ErrOffline     = errors.New("peer offline")
	ErrBusy        = errors.New("participant busy")
	ErrDuplicate   = errors.New("call already in progress")
	ErrNoCall      = errors.New("no live call with peer")
	ErrWrongRole   = errors.New("event not allowed for this participant")
)

// Reasons carried by call-failed and call-ended.
const (
	ReasonOffline      = "offline"
	ReasonBusy         = "busy"
	ReasonDuplicate    = "duplicate"
	ReasonInvalid      = "invalid"
	ReasonTimeout      = "timeout"
	ReasonEnded        = "ended"
	ReasonDisconnected = "disconnected"
	ReasonUnreachable  = "unreachable"
)

// Manager owns the table of live call sessions. A user takes part in at
// most one live call, so a pair never has more than one either.
//
// Destinations are resolved through the presence registry before the table
// lock is taken and every send happens after it is released.
type Manager struct {
	presence    core.Presence
	ringTimeout time.Duration

	mu     sync.Mutex
	byPair map[pairKey]*Session
	byUser map[domain.UserID]*Session
}

// NewManager creates a Manager. A zero ringTimeout disables the server-side
// ring timeout.
func NewManager(presence core.Presence, ringTimeout time.Duration) *Manager {
	return &Manager{
		presence:    presence,
		ringTimeout: ringTimeout,
		byPair:      make(map[pairKey]*Session),
		byUser:      make(map[domain.UserID]*Session),
	}
}

// Start opens a call from `from` to receiver and rings the receiver.
func (m *Manager) Start(from core.Session, receiver domain.UserID, meta domain.CallMeta) (Snapshot, error) {
	caller := from.User().ID
	logger := log.With().Str("module", "app.call").Str("caller", string(caller)).Str("receiver", string(receiver)).Logger()

	if domain.ValidateUserID(receiver) != nil || receiver == caller {
		m.emit(from, core.EvCallFailed, core.CallNotice{PeerID: receiver, Reason: ReasonInvalid})
		return Snapshot{}, ErrInvalidPeer
	}

	target, online := m.presence.Resolve(receiver)

	m.mu.Lock()
	if s, ok := m.byPair[keyOf(caller, receiver)]; ok {
		id := s.ID
		m.mu.Unlock()
		logger.Warn().Str("call", id).Msg("duplicate start-call ignored")
		m.emit(from, core.EvCallFailed, core.CallNotice{CallID: id, PeerID: receiver, Reason: ReasonDuplicate})
		return Snapshot{}, ErrDuplicate
	}
	if m.byUser[caller] != nil || m.byUser[receiver] != nil {
		m.mu.Unlock()
		logger.Info().Msg("participant busy")
		m.emit(from, core.EvCallFailed, core.CallNotice{PeerID: receiver, Reason: ReasonBusy})
		return Snapshot{}, ErrBusy
	}
	if !online {
		m.mu.Unlock()
		logger.Info().Msg("receiver offline")
		m.emit(from, core.EvCallFailed, core.CallNotice{PeerID: receiver, Reason: ReasonOffline})
		return Snapshot{}, ErrOffline
	}
	s := &Session{
		ID:        uuid.NewString(),
		Caller:    caller,
		Receiver:  receiver,
		Meta:      meta,
		State:     Idle,
		CreatedAt: time.Now(),
	}
	_ = m.transitionLocked(s, EvStart)
	m.byPair[keyOf(caller, receiver)] = s
	m.byUser[caller] = s
	m.byUser[receiver] = s
	m.mu.Unlock()

	err := m.emit(target, core.EvIncomingCall, core.IncomingCall{CallID: s.ID, CallerID: caller, CallMeta: meta})

	m.mu.Lock()
	if !m.currentLocked(s) || s.State != Calling {
		// cancelled or torn down while ringing was in flight
		snap := s.snapshot()
		m.mu.Unlock()
		return snap, nil
	}
	if err != nil {
		_ = m.transitionLocked(s, EvUnreachable)
		snap := s.snapshot()
		m.mu.Unlock()
		logger.Info().Err(err).Str("call", s.ID).Msg("incoming-call undeliverable")
		m.emit(from, core.EvCallFailed, core.CallNotice{CallID: s.ID, PeerID: receiver, Reason: ReasonOffline})
		return snap, ErrOffline
	}
	_ = m.transitionLocked(s, EvRing)
	if m.ringTimeout > 0 {
		s.timer = time.AfterFunc(m.ringTimeout, func() { m.ringExpired(s) })
	}
	snap := s.snapshot()
	m.mu.Unlock()
	return snap, nil
}

// Cancel withdraws a call the caller started before it was accepted.
func (m *Manager) Cancel(from core.Session, receiver domain.UserID) error {
	caller := from.User().ID
	target, online := m.presence.Resolve(receiver)

	m.mu.Lock()
	s, err := m.lookupLocked(caller, receiver, Caller)
	if err == nil {
		err = m.transitionLocked(s, EvCancel)
	}
	m.mu.Unlock()
	if err != nil {
		m.violation(from, core.EvCancelCall, err)
		return err
	}
	if online {
		m.emit(target, core.EvCallCancelled, core.CallNotice{CallID: s.ID, PeerID: caller, CallerName: s.Meta.CallerName})
	}
	return nil
}

// Accept answers a ringing call on behalf of its receiver.
func (m *Manager) Accept(from core.Session, caller domain.UserID) error {
	self := from.User().ID
	target, online := m.presence.Resolve(caller)

	ev := EvAccept
	if !online {
		ev = EvUnreachable
	}
	m.mu.Lock()
	s, err := m.lookupLocked(self, caller, Receiver)
	if err == nil {
		err = m.transitionLocked(s, ev)
	}
	m.mu.Unlock()
	if err != nil {
		m.violation(from, core.EvAcceptCall, err)
		return err
	}
	if !online {
		m.emit(from, core.EvCallEnded, core.CallNotice{CallID: s.ID, PeerID: caller, Reason: ReasonUnreachable})
		return ErrOffline
	}
	return m.deliver(s, from, target, core.EvCallAccepted, core.CallNotice{CallID: s.ID, PeerID: self})
}

// Reject declines a ringing call on behalf of its receiver.
func (m *Manager) Reject(from core.Session, caller domain.UserID) error {
	self := from.User().ID
	target, online := m.presence.Resolve(caller)

	m.mu.Lock()
	s, err := m.lookupLocked(self, caller, Receiver)
	if err == nil {
		err = m.transitionLocked(s, EvReject)
	}
	m.mu.Unlock()
	if err != nil {
		m.violation(from, core.EvRejectCall, err)
		return err
	}
	if online {
		m.emit(target, core.EvCallRejected, core.CallNotice{CallID: s.ID, PeerID: self})
	}
	return nil
}

// End hangs up an accepted or connected call. Either side may end it.
func (m *Manager) End(from core.Session, peer domain.UserID) error {
	self := from.User().ID
	target, online := m.presence.Resolve(peer)

	m.mu.Lock()
	s, err := m.lookupLocked(self, peer, NoRole)
	if err == nil {
		err = m.transitionLocked(s, EvEnd)
	}
	m.mu.Unlock()
	if err != nil {
		m.violation(from, core.EvEndCall, err)
		return err
	}
	if online {
		m.emit(target, core.EvCallEnded, core.CallNotice{CallID: s.ID, PeerID: self, Reason: ReasonEnded})
	}
	return nil
}

type relayRule struct {
	event Event
	// sender is the role allowed to send it; NoRole means either side.
	sender Role
}

// The caller offers, the receiver answers; ICE candidates flow both ways.
var relayRules = map[string]relayRule{
	core.EvOffer:        {event: EvOffer, sender: Caller},
	core.EvAnswer:       {event: EvAnswer, sender: Receiver},
	core.EvICECandidate: {event: EvICE, sender: NoRole},
}

// Relay forwards an offer, answer or ICE candidate to the counterparty
// without looking into payload.
func (m *Manager) Relay(from core.Session, peer domain.UserID, eventType string, payload json.RawMessage) error {
	rule, ok := relayRules[eventType]
	if !ok {
		err := fmt.Errorf("%w: %s is not a relay event", ErrInvalidTransition, eventType)
		m.violation(from, eventType, err)
		return err
	}
	self := from.User().ID
	target, online := m.presence.Resolve(peer)
	ev := rule.event
	if !online {
		ev = EvUnreachable
	}

	m.mu.Lock()
	s, err := m.lookupLocked(self, peer, rule.sender)
	if err == nil {
		err = m.transitionLocked(s, ev)
	}
	m.mu.Unlock()
	if err != nil {
		m.violation(from, eventType, err)
		return err
	}
	if !online {
		m.emit(from, core.EvCallEnded, core.CallNotice{CallID: s.ID, PeerID: peer, Reason: ReasonUnreachable})
		return ErrOffline
	}
	return m.deliver(s, from, target, eventType, core.SignalRelay{From: self, Payload: payload})
}

// Disconnect ends the live call of user, if any, and tells the other side.
func (m *Manager) Disconnect(user domain.UserID) {
	m.mu.Lock()
	s, ok := m.byUser[user]
	if !ok {
		m.mu.Unlock()
		return
	}
	peer := s.Peer(user)
	_ = m.transitionLocked(s, EvDisconnect)
	m.mu.Unlock()

	if target, ok := m.presence.Resolve(peer); ok {
		m.emit(target, core.EvCallEnded, core.CallNotice{CallID: s.ID, PeerID: user, Reason: ReasonDisconnected})
	}
}

// CallOf returns the live call user takes part in.
func (m *Manager) CallOf(user domain.UserID) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[user]
	if !ok {
		return Snapshot{}, false
	}
	return s.snapshot(), true
}

// Active lists every live call.
func (m *Manager) Active() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, 0, len(m.byPair))
	for _, s := range m.byPair {
		out = append(out, s.snapshot())
	}
	return out
}

// Close stops pending ring timers. Live sessions are left to the
// disconnect path of their connections.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byPair {
		s.stopTimer()
	}
}

func (m *Manager) ringExpired(s *Session) {
	m.mu.Lock()
	if !m.currentLocked(s) || s.State != Ringing {
		m.mu.Unlock()
		return
	}
	_ = m.transitionLocked(s, EvTimeout)
	m.mu.Unlock()

	if caller, ok := m.presence.Resolve(s.Caller); ok {
		m.emit(caller, core.EvCallFailed, core.CallNotice{CallID: s.ID, PeerID: s.Receiver, Reason: ReasonTimeout})
	}
	if receiver, ok := m.presence.Resolve(s.Receiver); ok {
		m.emit(receiver, core.EvCallCancelled, core.CallNotice{CallID: s.ID, PeerID: s.Caller, CallerName: s.Meta.CallerName, Reason: ReasonTimeout})
	}
}

// deliver sends to the counterparty. A failed send means the target went
// away between resolve and send, which ends the call.
func (m *Manager) deliver(s *Session, from, target core.Session, eventType string, data any) error {
	err := m.emit(target, eventType, data)
	if err == nil {
		return nil
	}
	m.mu.Lock()
	ended := false
	if m.currentLocked(s) {
		ended = m.transitionLocked(s, EvUnreachable) == nil
	}
	m.mu.Unlock()
	if ended {
		m.emit(from, core.EvCallEnded, core.CallNotice{CallID: s.ID, PeerID: s.Peer(from.User().ID), Reason: ReasonUnreachable})
	}
	return fmt.Errorf("deliver %s: %w", eventType, err)
}

func (m *Manager) lookupLocked(self, peer domain.UserID, want Role) (*Session, error) {
	s, ok := m.byPair[keyOf(self, peer)]
	if !ok || self == peer {
		return nil, ErrNoCall
	}
	if want != NoRole && s.RoleOf(self) != want {
		return nil, ErrWrongRole
	}
	return s, nil
}

func (m *Manager) currentLocked(s *Session) bool {
	return m.byPair[keyOf(s.Caller, s.Receiver)] == s
}

// transitionLocked moves s along the transition table and drops it from
// the table once it reaches a terminal state.
func (m *Manager) transitionLocked(s *Session, ev Event) error {
	from := s.State
	to, err := Next(from, ev)
	if err != nil {
		return err
	}
	s.State = to
	if to != Ringing {
		s.stopTimer()
	}
	if to.Terminal() {
		delete(m.byPair, keyOf(s.Caller, s.Receiver))
		if m.byUser[s.Caller] == s {
			delete(m.byUser, s.Caller)
		}
		if m.byUser[s.Receiver] == s {
			delete(m.byUser, s.Receiver)
		}
	}
	level := zerolog.DebugLevel
	if to != from {
		level = zerolog.InfoLevel
	}
	log.WithLevel(level).Str("module", "app.call").Str("call", s.ID).
		Str("event", ev.String()).Str("from", from.String()).Str("to", to.String()).Msg("transition")
	return nil
}

func (m *Manager) violation(to core.Session, eventType string, err error) {
	log.Warn().Err(err).Str("module", "app.call").Str("sid", string(to.ID())).Str("user", string(to.User().ID)).Str("event", eventType).Msg("protocol violation discarded")
	m.emit(to, core.EvError, core.ErrorNotice{Code: core.CodeProtocolViolation, Event: eventType, Error: err.Error()})
}

func (m *Manager) emit(to core.Session, eventType string, data any) error {
	frame, err := core.Encode(eventType, data)
	if err != nil {
		log.Error().Err(err).Str("module", "app.call").Msg("encode")
		return err
	}
	if err := to.Signal().TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.call").Str("sid", string(to.ID())).Str("event", eventType).Msg("send failed")
		return err
	}
	return nil
}
