package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sess core.Session, c *WsSignalConn) {
	sid := sess.ID()
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		c.Close()
		if ctl.Orch.Disconnect(context.WithoutCancel(ctx), sess) && ctl.Limiter != nil {
			ctl.Limiter.Forget(sess.User().ID)
		}
		ctl.conns.Done()
	}()

	c.conn.SetReadLimit(ctl.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait))
			if ctl.Limiter != nil && !ctl.Limiter.Allow(sess.User().ID) {
				ctl.sendError(sess, core.CodeRateLimited, "", "too many events")
				continue
			}
			ctl.handleSignal(ctx, sess, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sess core.Session, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Msg("bad json")
		ctl.sendError(sess, core.CodeBadPayload, "", "malformed frame")
		return
	}

	switch env.Type {
	case core.EvJoin:
		ctl.handleJoin(sess, env)
	case core.EvLeave:
		ctl.handleLeave(sess, env)
	case core.EvSendMessage:
		ctl.handleSendMessage(ctx, sess, env)
	case core.EvTyping:
		ctl.handleTyping(sess, env, true)
	case core.EvStopTyping:
		ctl.handleTyping(sess, env, false)
	case core.EvStartCall:
		ctl.handleStartCall(sess, env)
	case core.EvCancelCall, core.EvEndCall:
		ctl.handleHangup(sess, env)
	case core.EvAcceptCall, core.EvRejectCall:
		ctl.handleAnswerCall(sess, env)
	case core.EvOffer, core.EvAnswer, core.EvICECandidate:
		ctl.handleRelay(sess, env)
	case core.EvPing:
		ctl.handlePing(sess)
	case core.EvWhoAmI:
		ctl.handleWhoAmI(sess)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(sess, core.CodeUnknownEvent, env.Type, "unknown event")
	}
}

// decode unmarshals the envelope data into v. A missing data field counts
// as an empty object.
func decode(env core.Envelope, v any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	return json.Unmarshal(env.Data, v)
}

func (ctl *SignalWSController) badPayload(sess core.Session, env core.Envelope, err error) {
	log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Str("type", env.Type).Msg("bad payload")
	ctl.sendError(sess, core.CodeBadPayload, env.Type, err.Error())
}

func (ctl *SignalWSController) sendError(sess core.Session, code, event, msg string) {
	ctl.sendJSON(sess.Signal(), core.EvError, core.ErrorNotice{Code: code, Event: event, Error: msg})
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, eventType string, v any) {
	frame, err := core.Encode(eventType, v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(frame); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("type", eventType).Msg("sendJSON dropped")
	}
}
