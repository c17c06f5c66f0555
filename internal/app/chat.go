package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrSelfMessage     = errors.New("cannot message yourself")
	ErrInvalidReceiver = errors.New("invalid receiver")
)

// ChatRelay persists chat messages and fans them out to the pair room.
type ChatRelay struct {
	Rooms  *RoomManager
	Store  core.MessageStore
	Policy Policy
}

// SendMessage stores the message and, only once it is stored, relays it to
// every subscriber of the pair room (the sender's own connection included).
// Any failure is reported to the sender alone.
func (c *ChatRelay) SendMessage(ctx context.Context, from core.Session, receiver domain.UserID, text string) (*domain.Message, error) {
	sender := from.User().ID
	logger := log.With().Str("module", "app.chat").Str("sid", string(from.ID())).Str("sender", string(sender)).Str("receiver", string(receiver)).Logger()

	err := domain.ValidateText(text)
	if err == nil {
		if verr := domain.ValidateUserID(receiver); verr != nil {
			err = fmt.Errorf("%w: %w", ErrInvalidReceiver, verr)
		}
	}
	if err == nil && receiver == sender {
		err = ErrSelfMessage
	}
	if err != nil {
		c.fail(from, receiver, err)
		return nil, err
	}

	msg, err := c.Store.StoreMessage(ctx, sender, receiver, text)
	if err != nil {
		logger.Error().Err(err).Msg("store message")
		err = fmt.Errorf("store message: %w", err)
		c.fail(from, receiver, err)
		return nil, err
	}

	room, ok := c.Rooms.Get(msg.Room())
	if !ok {
		logger.Debug().Str("room", string(msg.Room())).Msg("stored, no subscribers")
		return msg, nil
	}
	frame, err := core.Encode(core.EvReceiveMessage, msg)
	if err != nil {
		logger.Error().Err(err).Msg("encode message")
		return msg, nil
	}
	res := room.Broadcast("", frame)
	applyPolicy(c.Policy, room, res)
	logger.Info().Str("room", string(room.ID())).Str("msg", msg.ID).Int("sent_to", res.SendTo).Msg("message relayed")
	return msg, nil
}

func (c *ChatRelay) fail(to core.Session, receiver domain.UserID, cause error) {
	frame, err := core.Encode(core.EvMessageFailed, core.MessageFailed{Receiver: receiver, Reason: reasonOf(cause)})
	if err != nil {
		return
	}
	_ = to.Signal().TrySend(frame)
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrMessageEmpty):
		return "empty"
	case errors.Is(err, domain.ErrMessageTooLong):
		return "too_long"
	case errors.Is(err, ErrInvalidReceiver), errors.Is(err, ErrSelfMessage):
		return "invalid_receiver"
	default:
		return "store_failed"
	}
}
