package signal

import (
	"encoding/json"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

// Call handlers only decode and route. Outcomes, violations included, are
// reported to the participants by the call manager.

type startCallPayload struct {
	ReceiverID domain.UserID `json:"receiverId"`
	domain.CallMeta
}

type callPeerPayload struct {
	ReceiverID domain.UserID `json:"receiverId"`
	CallerID   domain.UserID `json:"callerId"`
}

type relayPayload struct {
	ReceiverID domain.UserID   `json:"receiverId"`
	Payload    json.RawMessage `json:"payload"`
}

func (ctl *SignalWSController) handleStartCall(sess core.Session, env core.Envelope) {
	var p startCallPayload
	if err := decode(env, &p); err != nil {
		ctl.badPayload(sess, env, err)
		return
	}
	if p.CallerName == "" {
		p.CallerName = sess.User().Username
	}
	_, _ = ctl.Orch.Calls.Start(sess, p.ReceiverID, p.CallMeta)
}

// handleHangup serves cancel-call and end-call, both sent by the side that
// addresses its peer as receiverId.
func (ctl *SignalWSController) handleHangup(sess core.Session, env core.Envelope) {
	var p callPeerPayload
	if err := decode(env, &p); err != nil {
		ctl.badPayload(sess, env, err)
		return
	}
	peer := p.ReceiverID
	if peer == "" {
		peer = p.CallerID
	}
	if env.Type == core.EvCancelCall {
		_ = ctl.Orch.Calls.Cancel(sess, peer)
		return
	}
	_ = ctl.Orch.Calls.End(sess, peer)
}

// handleAnswerCall serves accept-call and reject-call from the receiver.
func (ctl *SignalWSController) handleAnswerCall(sess core.Session, env core.Envelope) {
	var p callPeerPayload
	if err := decode(env, &p); err != nil {
		ctl.badPayload(sess, env, err)
		return
	}
	if env.Type == core.EvAcceptCall {
		_ = ctl.Orch.Calls.Accept(sess, p.CallerID)
		return
	}
	_ = ctl.Orch.Calls.Reject(sess, p.CallerID)
}

func (ctl *SignalWSController) handleRelay(sess core.Session, env core.Envelope) {
	var p relayPayload
	if err := decode(env, &p); err != nil {
		ctl.badPayload(sess, env, err)
		return
	}
	_ = ctl.Orch.Calls.Relay(sess, p.ReceiverID, env.Type, p.Payload)
}
