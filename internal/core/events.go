package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

// Inbound event types (client -> server).
const (
	EvJoin         = "join"
	EvLeave        = "leave"
	EvSendMessage  = "send_message"
	EvTyping       = "typing"
	EvStopTyping   = "stop_typing"
	EvStartCall    = "start-call"
	EvCancelCall   = "cancel-call"
	EvAcceptCall   = "accept-call"
	EvRejectCall   = "reject-call"
	EvEndCall      = "end-call"
	EvOffer        = "offer"
	EvAnswer       = "answer"
	EvICECandidate = "ice-candidate"
	EvPing         = "ping"
	EvWhoAmI       = "whoami"
)

// Outbound event types (server -> client). offer, answer and ice-candidate
// keep their inbound names.
const (
	EvConnected      = "connected"
	EvStatusUpdate   = "status_update"
	EvJoined         = "joined"
	EvLeft           = "left"
	EvReceiveMessage = "receive_message"
	EvMessageFailed  = "message_failed"
	EvIsTyping       = "is_typing"
	EvStoppedTyping  = "stopped_typing"
	EvIncomingCall   = "incoming-call"
	EvCallCancelled  = "call-cancelled"
	EvCallAccepted   = "call-accepted"
	EvCallRejected   = "call-rejected"
	EvCallEnded      = "call-ended"
	EvCallFailed     = "call-failed"
	EvPong           = "pong"
	EvError          = "error"
)

// Error codes carried by EvError.
const (
	CodeBadPayload        = "bad_payload"
	CodeUnknownEvent      = "unknown_event"
	CodeProtocolViolation = "protocol_violation"
	CodeRateLimited       = "rate_limited"
	CodeSenderMismatch    = "sender_mismatch"
)

// Envelope is the wire shape of every frame in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode wraps a payload into an envelope frame.
func Encode(eventType string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", eventType, err)
	}
	b, err := json.Marshal(Envelope{Type: eventType, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", eventType, err)
	}
	return b, nil
}

type StatusUpdate struct {
	UserID     domain.UserID `json:"userId"`
	Online     bool          `json:"online"`
	LastActive *time.Time    `json:"lastActive,omitempty"`
}

type TypingNotice struct {
	RoomID domain.RoomID `json:"roomId"`
	UserID domain.UserID `json:"userId"`
}

type MessageFailed struct {
	Receiver domain.UserID `json:"receiver"`
	Reason   string        `json:"reason"`
}

type RoomNotice struct {
	RoomID domain.RoomID `json:"roomId"`
}

type IncomingCall struct {
	CallID   string        `json:"callId"`
	CallerID domain.UserID `json:"callerId"`
	domain.CallMeta
}

// CallNotice is the payload of call-cancelled, -accepted, -rejected, -ended
// and -failed. PeerID is the other participant from the recipient's view.
type CallNotice struct {
	CallID     string        `json:"callId,omitempty"`
	PeerID     domain.UserID `json:"peerId"`
	CallerName string        `json:"callerName,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

// SignalRelay carries an opaque offer/answer/ICE payload.
type SignalRelay struct {
	From    domain.UserID   `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

type ErrorNotice struct {
	Code  string `json:"code"`
	Event string `json:"event,omitempty"`
	Error string `json:"error,omitempty"`
}
