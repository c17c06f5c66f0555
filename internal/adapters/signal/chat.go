package signal

import (
	"context"
	"errors"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	errNoRoom      = errors.New("roomId or peerId required")
	errForeignRoom = errors.New("room does not include this user")
)

type roomPayload struct {
	RoomID domain.RoomID `json:"roomId"`
	PeerID domain.UserID `json:"peerId"`
}

// room resolves the addressed room; a peerId names the pair room shared
// with that peer. A roomId must name self as one side of the pair.
func (p roomPayload) room(self domain.UserID) (domain.RoomID, error) {
	switch {
	case p.RoomID != "":
		if !p.RoomID.Includes(self) {
			return "", errForeignRoom
		}
		return p.RoomID, nil
	case p.PeerID != "":
		if err := domain.ValidateUserID(p.PeerID); err != nil {
			return "", err
		}
		return domain.PairRoom(self, p.PeerID), nil
	default:
		return "", errNoRoom
	}
}

func (ctl *SignalWSController) handleJoin(sess core.Session, env core.Envelope) {
	var p roomPayload
	if err := decode(env, &p); err != nil {
		ctl.badPayload(sess, env, err)
		return
	}
	room, err := p.room(sess.User().ID)
	if err != nil {
		ctl.badPayload(sess, env, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sess.ID())).Str("room", string(room)).Msg("join")
	ctl.Orch.Join(sess, room)
}

// handleLeave unsubscribes from one room; the connection stays up.
func (ctl *SignalWSController) handleLeave(sess core.Session, env core.Envelope) {
	var p roomPayload
	if err := decode(env, &p); err != nil {
		ctl.badPayload(sess, env, err)
		return
	}
	room, err := p.room(sess.User().ID)
	if err != nil {
		ctl.badPayload(sess, env, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sess.ID())).Str("room", string(room)).Msg("leave")
	ctl.Orch.Leave(sess, room)
}

type sendMessagePayload struct {
	Sender   domain.UserID `json:"sender"`
	Receiver domain.UserID `json:"receiver"`
	Message  string        `json:"message"`
}

func (ctl *SignalWSController) handleSendMessage(ctx context.Context, sess core.Session, env core.Envelope) {
	var p sendMessagePayload
	if err := decode(env, &p); err != nil {
		ctl.badPayload(sess, env, err)
		return
	}
	if p.Sender != "" && p.Sender != sess.User().ID {
		ctl.sendError(sess, core.CodeSenderMismatch, env.Type, "sender does not match connection")
		return
	}
	// failures are already reported to the sender as message_failed
	_, _ = ctl.Orch.Chat.SendMessage(ctx, sess, p.Receiver, p.Message)
}

type typingPayload struct {
	RoomID domain.RoomID `json:"roomId"`
	UserID domain.UserID `json:"userId"`
}

func (ctl *SignalWSController) handleTyping(sess core.Session, env core.Envelope, typing bool) {
	var p typingPayload
	if err := decode(env, &p); err != nil {
		ctl.badPayload(sess, env, err)
		return
	}
	if p.RoomID == "" {
		ctl.badPayload(sess, env, errNoRoom)
		return
	}
	if !p.RoomID.Includes(sess.User().ID) {
		ctl.badPayload(sess, env, errForeignRoom)
		return
	}
	if p.UserID != "" && p.UserID != sess.User().ID {
		ctl.sendError(sess, core.CodeSenderMismatch, env.Type, "userId does not match connection")
		return
	}
	if typing {
		ctl.Orch.Typing.Typing(sess, p.RoomID)
	} else {
		ctl.Orch.Typing.StopTyping(sess, p.RoomID)
	}
}
