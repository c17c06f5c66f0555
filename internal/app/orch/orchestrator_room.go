package orch

import (
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join subscribes sess to room and confirms with joined.
func (o *Orchestrator) Join(sess core.Session, room domain.RoomID) {
	o.Rooms.Join(room, sess)
	o.reply(sess, core.EvJoined, core.RoomNotice{RoomID: room})
}

// Leave unsubscribes sess from room. Its typing flag there is cleared first
// so the room still hears the stopped_typing.
func (o *Orchestrator) Leave(sess core.Session, room domain.RoomID) {
	if o.Typing.IsTyping(room, sess.User().ID) {
		o.Typing.StopTyping(sess, room)
	}
	o.Rooms.Leave(room, sess.ID())
	o.reply(sess, core.EvLeft, core.RoomNotice{RoomID: room})
}

func (o *Orchestrator) cleanupMembership(sid core.SessionID) {
	left := o.Rooms.LeaveAll(sid)
	if len(left) > 0 {
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Int("rooms", len(left)).Msg("membership cleaned")
	}
}

func (o *Orchestrator) reply(sess core.Session, eventType string, data any) {
	frame, err := core.Encode(eventType, data)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode reply")
		return
	}
	if err := sess.Signal().TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sess.ID())).Str("event", eventType).Msg("reply not delivered")
	}
}
