package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/adapters/signal"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server, userID string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?userId=" + userID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(eventType string, data any) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(core.Envelope{Type: eventType, Data: raw}))
}

func (c *wsClient) sendRaw(frame string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

// expect reads until an event of eventType arrives.
func (c *wsClient) expect(eventType string, v any) {
	c.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		_, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err, "waiting for %s", eventType)
		var env core.Envelope
		require.NoError(c.t, json.Unmarshal(data, &env))
		if env.Type != eventType {
			continue
		}
		if v != nil {
			require.NoError(c.t, json.Unmarshal(env.Data, v))
		}
		return
	}
}

func TestWS_ChatAndCallScenario(t *testing.T) {
	r, o := newTestRouter(t, "")
	srv := httptest.NewServer(r)
	defer srv.Close()

	alice := dial(t, srv, "alice")
	var welcome signal.Welcome
	alice.expect(core.EvConnected, &welcome)
	assert.Equal(t, domain.UserID("alice"), welcome.UserID)
	assert.NotEmpty(t, welcome.SessionID)
	require.NotEmpty(t, welcome.ICEServers)

	bob := dial(t, srv, "bob")
	bob.expect(core.EvConnected, nil)
	var st core.StatusUpdate
	alice.expect(core.EvStatusUpdate, &st)
	assert.Equal(t, domain.UserID("bob"), st.UserID)
	assert.True(t, st.Online)

	// chat
	alice.send(core.EvJoin, map[string]string{"peerId": "bob"})
	bob.send(core.EvJoin, map[string]string{"peerId": "alice"})
	var joined core.RoomNotice
	alice.expect(core.EvJoined, &joined)
	assert.Equal(t, domain.RoomID("alice_bob"), joined.RoomID)
	bob.expect(core.EvJoined, nil)

	alice.send(core.EvSendMessage, map[string]string{"sender": "alice", "receiver": "bob", "message": "hi bob"})
	var got domain.Message
	bob.expect(core.EvReceiveMessage, &got)
	assert.Equal(t, "hi bob", got.Text)
	assert.Equal(t, domain.UserID("alice"), got.Sender)
	alice.expect(core.EvReceiveMessage, nil)

	msgs, total, err := o.Chat.Store.History(context.Background(), "bob", "alice", 1, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, msgs, 1)

	alice.send(core.EvSendMessage, map[string]string{"sender": "mallory", "receiver": "bob", "message": "spoof"})
	var notice core.ErrorNotice
	alice.expect(core.EvError, &notice)
	assert.Equal(t, core.CodeSenderMismatch, notice.Code)

	alice.send(core.EvSendMessage, map[string]string{"receiver": "bob", "message": ""})
	var failed core.MessageFailed
	alice.expect(core.EvMessageFailed, &failed)
	assert.Equal(t, "empty", failed.Reason)

	// only pair rooms that name the sender are addressable
	alice.send(core.EvJoin, map[string]string{"roomId": "bob_carol"})
	alice.expect(core.EvError, &notice)
	assert.Equal(t, core.CodeBadPayload, notice.Code)
	assert.Equal(t, core.EvJoin, notice.Event)
	alice.send(core.EvTyping, map[string]string{"roomId": "bob_carol", "userId": "alice"})
	alice.expect(core.EvError, &notice)
	assert.Equal(t, core.CodeBadPayload, notice.Code)
	alice.send(core.EvJoin, map[string]string{"peerId": "b_c"})
	alice.expect(core.EvError, &notice)
	assert.Equal(t, core.CodeBadPayload, notice.Code)

	alice.send(core.EvTyping, map[string]string{"roomId": "alice_bob", "userId": "alice"})
	var typing core.TypingNotice
	bob.expect(core.EvIsTyping, &typing)
	assert.Equal(t, domain.UserID("alice"), typing.UserID)

	// call
	alice.send(core.EvStartCall, map[string]any{"receiverId": "bob", "callerName": "Alice", "isVideo": true})
	var incoming core.IncomingCall
	bob.expect(core.EvIncomingCall, &incoming)
	assert.Equal(t, domain.UserID("alice"), incoming.CallerID)
	assert.Equal(t, "Alice", incoming.CallerName)
	assert.True(t, incoming.IsVideo)

	bob.send(core.EvAcceptCall, map[string]string{"callerId": "alice"})
	alice.expect(core.EvCallAccepted, nil)

	alice.send(core.EvOffer, map[string]any{"receiverId": "bob", "payload": map[string]string{"type": "offer", "sdp": "v=0"}})
	var offer core.SignalRelay
	bob.expect(core.EvOffer, &offer)
	assert.Equal(t, domain.UserID("alice"), offer.From)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(offer.Payload))

	bob.send(core.EvAnswer, map[string]any{"receiverId": "alice", "payload": map[string]string{"type": "answer"}})
	alice.expect(core.EvAnswer, nil)

	bob.send(core.EvICECandidate, map[string]any{"receiverId": "alice", "payload": map[string]string{"candidate": "c1"}})
	alice.expect(core.EvICECandidate, nil)

	bob.send(core.EvEndCall, map[string]string{"receiverId": "alice"})
	var ended core.CallNotice
	alice.expect(core.EvCallEnded, &ended)
	assert.Equal(t, domain.UserID("bob"), ended.PeerID)

	// a relay outside a live call is a protocol violation
	alice.send(core.EvOffer, map[string]any{"receiverId": "bob", "payload": map[string]string{}})
	alice.expect(core.EvError, &notice)
	assert.Equal(t, core.CodeProtocolViolation, notice.Code)

	// bad frames
	alice.sendRaw("{not json")
	alice.expect(core.EvError, &notice)
	assert.Equal(t, core.CodeBadPayload, notice.Code)
	alice.send("dance", map[string]string{})
	alice.expect(core.EvError, &notice)
	assert.Equal(t, core.CodeUnknownEvent, notice.Code)

	alice.send(core.EvPing, map[string]string{})
	alice.expect(core.EvPong, nil)

	alice.send(core.EvWhoAmI, nil)
	var me struct {
		UserID domain.UserID   `json:"userId"`
		Rooms  []domain.RoomID `json:"rooms"`
	}
	alice.expect(core.EvWhoAmI, &me)
	assert.Equal(t, domain.UserID("alice"), me.UserID)
	assert.Equal(t, []domain.RoomID{"alice_bob"}, me.Rooms)

	// bob leaves: alice sees him go offline
	require.NoError(t, bob.conn.Close())
	for {
		alice.expect(core.EvStatusUpdate, &st)
		if st.UserID == "bob" && !st.Online {
			break
		}
	}
	require.NotNil(t, st.LastActive)
}

func TestWS_StartCallOfflineReceiver(t *testing.T) {
	r, o := newTestRouter(t, "")
	srv := httptest.NewServer(r)
	defer srv.Close()

	alice := dial(t, srv, "alice")
	alice.expect(core.EvConnected, nil)

	alice.send(core.EvStartCall, map[string]any{"receiverId": "ghost"})
	var failed core.CallNotice
	alice.expect(core.EvCallFailed, &failed)
	assert.Equal(t, "offline", failed.Reason)
	assert.Empty(t, o.Calls.Active())
}

func TestWS_DisconnectMidCall(t *testing.T) {
	r, o := newTestRouter(t, "")
	srv := httptest.NewServer(r)
	defer srv.Close()

	alice := dial(t, srv, "alice")
	alice.expect(core.EvConnected, nil)
	bob := dial(t, srv, "bob")
	bob.expect(core.EvConnected, nil)

	alice.send(core.EvStartCall, map[string]any{"receiverId": "bob"})
	bob.expect(core.EvIncomingCall, nil)
	bob.send(core.EvAcceptCall, map[string]string{"callerId": "alice"})
	alice.expect(core.EvCallAccepted, nil)

	require.NoError(t, alice.conn.Close())
	var ended core.CallNotice
	bob.expect(core.EvCallEnded, &ended)
	assert.Equal(t, "disconnected", ended.Reason)
	assert.Empty(t, o.Calls.Active())
}

func TestWS_ShutdownWaitsForTeardown(t *testing.T) {
	f := newFixture(t, "")
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	alice := dial(t, srv, "alice")
	alice.expect(core.EvConnected, nil)
	rec, err := f.users.FindByID(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, rec.Online)

	require.NoError(t, alice.conn.Close())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.ctrl.Wait(ctx))

	// the offline write has landed once Wait returns
	rec, err = f.users.FindByID(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, rec.Online)
	assert.NotNil(t, rec.LastActive)
	assert.Empty(t, f.orch.Registry.Online())
}
