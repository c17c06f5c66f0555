package call_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/app/call"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/core/coretest"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type party struct {
	sess core.Session
	conn *coretest.Conn
}

func setup(t *testing.T, ringTimeout time.Duration, ids ...string) (*call.Manager, *app.Registry, map[string]party) {
	t.Helper()
	reg := app.NewRegistry()
	parties := make(map[string]party, len(ids))
	for _, id := range ids {
		s, c := coretest.NewSession(t, id)
		reg.Register(s)
		parties[id] = party{sess: s, conn: c}
	}
	for _, p := range parties {
		p.conn.Drain()
	}
	m := call.NewManager(reg, ringTimeout)
	t.Cleanup(m.Close)
	return m, reg, parties
}

func TestManager_FullCall(t *testing.T) {
	m, _, p := setup(t, 0, "alice", "bob")
	alice, bob := p["alice"], p["bob"]

	snap, err := m.Start(alice.sess, "bob", domain.CallMeta{CallerName: "Alice", IsVideo: true})
	require.NoError(t, err)
	assert.Equal(t, "ringing", snap.State)

	var in core.IncomingCall
	bob.conn.Expect(t, core.EvIncomingCall, &in)
	assert.Equal(t, domain.UserID("alice"), in.CallerID)
	assert.Equal(t, "Alice", in.CallerName)
	assert.True(t, in.IsVideo)
	assert.Equal(t, snap.ID, in.CallID)

	require.NoError(t, m.Accept(bob.sess, "alice"))
	var accepted core.CallNotice
	alice.conn.Expect(t, core.EvCallAccepted, &accepted)
	assert.Equal(t, domain.UserID("bob"), accepted.PeerID)

	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	require.NoError(t, m.Relay(alice.sess, "bob", core.EvOffer, sdp))
	var relay core.SignalRelay
	bob.conn.Expect(t, core.EvOffer, &relay)
	assert.Equal(t, domain.UserID("alice"), relay.From)
	assert.JSONEq(t, string(sdp), string(relay.Payload))

	require.NoError(t, m.Relay(bob.sess, "alice", core.EvAnswer, json.RawMessage(`{"type":"answer"}`)))
	alice.conn.Expect(t, core.EvAnswer, nil)

	got, ok := m.CallOf("bob")
	require.True(t, ok)
	assert.Equal(t, "connected", got.State)

	require.NoError(t, m.Relay(bob.sess, "alice", core.EvICECandidate, json.RawMessage(`{"candidate":"c"}`)))
	alice.conn.Expect(t, core.EvICECandidate, nil)

	require.NoError(t, m.End(alice.sess, "bob"))
	var ended core.CallNotice
	bob.conn.Expect(t, core.EvCallEnded, &ended)
	assert.Equal(t, call.ReasonEnded, ended.Reason)
	assert.Equal(t, domain.UserID("alice"), ended.PeerID)

	_, ok = m.CallOf("alice")
	assert.False(t, ok)
	assert.Empty(t, m.Active())
}

func TestManager_StartOffline(t *testing.T) {
	m, _, p := setup(t, 0, "alice")
	alice := p["alice"]

	_, err := m.Start(alice.sess, "ghost", domain.CallMeta{})
	assert.ErrorIs(t, err, call.ErrOffline)

	var failed core.CallNotice
	alice.conn.Expect(t, core.EvCallFailed, &failed)
	assert.Equal(t, call.ReasonOffline, failed.Reason)
	assert.Equal(t, domain.UserID("ghost"), failed.PeerID)
	assert.Empty(t, m.Active())
}

func TestManager_StartInvalidPeer(t *testing.T) {
	m, _, p := setup(t, 0, "alice")
	for _, peer := range []domain.UserID{"alice", "", "b_c"} {
		_, err := m.Start(p["alice"].sess, peer, domain.CallMeta{})
		assert.ErrorIs(t, err, call.ErrInvalidPeer, string(peer))
		p["alice"].conn.Expect(t, core.EvCallFailed, nil)
	}
	assert.Empty(t, m.Active())
}

func TestManager_DuplicateAndBusy(t *testing.T) {
	m, _, p := setup(t, 0, "alice", "bob", "carol")
	alice, bob, carol := p["alice"], p["bob"], p["carol"]

	first, err := m.Start(alice.sess, "bob", domain.CallMeta{})
	require.NoError(t, err)
	bob.conn.Expect(t, core.EvIncomingCall, nil)

	_, err = m.Start(alice.sess, "bob", domain.CallMeta{})
	assert.ErrorIs(t, err, call.ErrDuplicate)
	var dup core.CallNotice
	alice.conn.Expect(t, core.EvCallFailed, &dup)
	assert.Equal(t, call.ReasonDuplicate, dup.Reason)
	assert.Equal(t, first.ID, dup.CallID)

	_, err = m.Start(bob.sess, "alice", domain.CallMeta{})
	assert.ErrorIs(t, err, call.ErrDuplicate)
	bob.conn.Expect(t, core.EvCallFailed, nil)

	_, err = m.Start(carol.sess, "bob", domain.CallMeta{})
	assert.ErrorIs(t, err, call.ErrBusy)
	var busy core.CallNotice
	carol.conn.Expect(t, core.EvCallFailed, &busy)
	assert.Equal(t, call.ReasonBusy, busy.Reason)
	bob.conn.Quiet(t, 20*time.Millisecond)

	assert.Len(t, m.Active(), 1)
}

func TestManager_CancelAndReject(t *testing.T) {
	m, _, p := setup(t, 0, "alice", "bob")
	alice, bob := p["alice"], p["bob"]

	_, err := m.Start(alice.sess, "bob", domain.CallMeta{CallerName: "Alice"})
	require.NoError(t, err)
	bob.conn.Expect(t, core.EvIncomingCall, nil)

	require.NoError(t, m.Cancel(alice.sess, "bob"))
	var cancelled core.CallNotice
	bob.conn.Expect(t, core.EvCallCancelled, &cancelled)
	assert.Equal(t, "Alice", cancelled.CallerName)

	_, err = m.Start(alice.sess, "bob", domain.CallMeta{})
	require.NoError(t, err)
	bob.conn.Expect(t, core.EvIncomingCall, nil)

	require.NoError(t, m.Reject(bob.sess, "alice"))
	alice.conn.Expect(t, core.EvCallRejected, nil)
	assert.Empty(t, m.Active())
}

func TestManager_WrongRoleIsViolation(t *testing.T) {
	m, _, p := setup(t, 0, "alice", "bob")
	alice, bob := p["alice"], p["bob"]

	_, err := m.Start(alice.sess, "bob", domain.CallMeta{})
	require.NoError(t, err)
	bob.conn.Drain()

	assert.ErrorIs(t, m.Accept(alice.sess, "bob"), call.ErrWrongRole)
	var notice core.ErrorNotice
	alice.conn.Expect(t, core.EvError, &notice)
	assert.Equal(t, core.CodeProtocolViolation, notice.Code)
	assert.Equal(t, core.EvAcceptCall, notice.Event)

	assert.ErrorIs(t, m.Cancel(bob.sess, "alice"), call.ErrWrongRole)
	bob.conn.Expect(t, core.EvError, nil)

	got, ok := m.CallOf("alice")
	require.True(t, ok)
	assert.Equal(t, "ringing", got.State)

	require.NoError(t, m.Accept(bob.sess, "alice"))
	alice.conn.Expect(t, core.EvCallAccepted, nil)

	assert.ErrorIs(t, m.Relay(alice.sess, "bob", core.EvAnswer, json.RawMessage(`{}`)), call.ErrWrongRole)
	alice.conn.Expect(t, core.EvError, &notice)
	assert.Equal(t, core.CodeProtocolViolation, notice.Code)
	assert.Equal(t, core.EvAnswer, notice.Event)

	assert.ErrorIs(t, m.Relay(bob.sess, "alice", core.EvOffer, json.RawMessage(`{}`)), call.ErrWrongRole)
	bob.conn.Expect(t, core.EvError, nil)
	bob.conn.Quiet(t, 20*time.Millisecond)
	alice.conn.Quiet(t, 20*time.Millisecond)

	got, ok = m.CallOf("bob")
	require.True(t, ok)
	assert.Equal(t, "accepted", got.State, "a misplaced answer must not connect the call")

	require.NoError(t, m.Relay(bob.sess, "alice", core.EvICECandidate, json.RawMessage(`{}`)))
	alice.conn.Expect(t, core.EvICECandidate, nil)
}

func TestManager_RelayOutsideAcceptedIsDiscarded(t *testing.T) {
	m, _, p := setup(t, 0, "alice", "bob")
	alice, bob := p["alice"], p["bob"]

	err := m.Relay(alice.sess, "bob", core.EvOffer, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, call.ErrNoCall)
	alice.conn.Expect(t, core.EvError, nil)

	_, err = m.Start(alice.sess, "bob", domain.CallMeta{})
	require.NoError(t, err)
	bob.conn.Drain()

	err = m.Relay(alice.sess, "bob", core.EvOffer, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, call.ErrInvalidTransition)
	alice.conn.Expect(t, core.EvError, nil)
	bob.conn.Quiet(t, 20*time.Millisecond)

	err = m.End(alice.sess, "bob")
	assert.ErrorIs(t, err, call.ErrInvalidTransition, "a ringing call is cancelled, not ended")
}

func TestManager_RingTimeout(t *testing.T) {
	m, _, p := setup(t, 30*time.Millisecond, "alice", "bob")
	alice, bob := p["alice"], p["bob"]

	_, err := m.Start(alice.sess, "bob", domain.CallMeta{})
	require.NoError(t, err)
	bob.conn.Expect(t, core.EvIncomingCall, nil)

	var failed core.CallNotice
	alice.conn.Expect(t, core.EvCallFailed, &failed)
	assert.Equal(t, call.ReasonTimeout, failed.Reason)
	var cancelled core.CallNotice
	bob.conn.Expect(t, core.EvCallCancelled, &cancelled)
	assert.Equal(t, call.ReasonTimeout, cancelled.Reason)

	assert.Empty(t, m.Active())
}

func TestManager_AcceptStopsRingTimer(t *testing.T) {
	m, _, p := setup(t, 30*time.Millisecond, "alice", "bob")
	alice, bob := p["alice"], p["bob"]

	_, err := m.Start(alice.sess, "bob", domain.CallMeta{})
	require.NoError(t, err)
	require.NoError(t, m.Accept(bob.sess, "alice"))
	alice.conn.Expect(t, core.EvCallAccepted, nil)

	alice.conn.Quiet(t, 80*time.Millisecond)
	got, ok := m.CallOf("alice")
	require.True(t, ok)
	assert.Equal(t, "accepted", got.State)
}

func TestManager_DisconnectMidCall(t *testing.T) {
	m, reg, p := setup(t, 0, "alice", "bob")
	alice, bob := p["alice"], p["bob"]

	_, err := m.Start(alice.sess, "bob", domain.CallMeta{})
	require.NoError(t, err)
	require.NoError(t, m.Accept(bob.sess, "alice"))
	require.NoError(t, m.Relay(alice.sess, "bob", core.EvOffer, json.RawMessage(`{}`)))
	require.NoError(t, m.Relay(bob.sess, "alice", core.EvAnswer, json.RawMessage(`{}`)))
	alice.conn.Drain()
	bob.conn.Drain()

	require.True(t, reg.Unregister(alice.sess))
	m.Disconnect("alice")

	var ended core.CallNotice
	bob.conn.Expect(t, core.EvCallEnded, &ended)
	assert.Equal(t, call.ReasonDisconnected, ended.Reason)
	assert.Equal(t, domain.UserID("alice"), ended.PeerID)
	assert.Empty(t, m.Active())

	m.Disconnect("alice")
	bob.conn.Quiet(t, 20*time.Millisecond)
}

func TestManager_UnreachablePeerEndsCall(t *testing.T) {
	m, reg, p := setup(t, 0, "alice", "bob")
	alice, bob := p["alice"], p["bob"]

	_, err := m.Start(alice.sess, "bob", domain.CallMeta{})
	require.NoError(t, err)
	require.NoError(t, m.Accept(bob.sess, "alice"))
	alice.conn.Drain()

	reg.Unregister(bob.sess)
	err = m.Relay(alice.sess, "bob", core.EvOffer, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, call.ErrOffline)

	var ended core.CallNotice
	alice.conn.Expect(t, core.EvCallEnded, &ended)
	assert.Equal(t, call.ReasonUnreachable, ended.Reason)
	assert.Empty(t, m.Active())
}

func TestManager_IncomingCallUndeliverable(t *testing.T) {
	m, _, p := setup(t, 0, "alice", "bob")
	alice, bob := p["alice"], p["bob"]

	bob.conn.SetFull(true)
	_, err := m.Start(alice.sess, "bob", domain.CallMeta{})
	assert.ErrorIs(t, err, call.ErrOffline)

	var failed core.CallNotice
	alice.conn.Expect(t, core.EvCallFailed, &failed)
	assert.Equal(t, call.ReasonOffline, failed.Reason)
	assert.Empty(t, m.Active())
}
