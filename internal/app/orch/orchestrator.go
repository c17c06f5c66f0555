// Package orch ties presence, rooms, typing and calls to the lifetime of a
// connection. The signal adapter talks to the application through it.
package orch

import (
	"context"
	"time"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/app/call"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	Chat     *app.ChatRelay
	Typing   *app.TypingTracker
	Calls    *call.Manager
	Users    core.PresenceStore
}

// Options tune the components New builds.
type Options struct {
	TypingExpiry time.Duration
	RingTimeout  time.Duration
	Policy       app.Policy
}

func New(messages core.MessageStore, users core.PresenceStore, opts Options) *Orchestrator {
	reg := app.NewRegistry()
	rooms := app.NewRoomManager()
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Chat:     &app.ChatRelay{Rooms: rooms, Store: messages, Policy: opts.Policy},
		Typing:   app.NewTypingTracker(rooms, opts.TypingExpiry, opts.Policy),
		Calls:    call.NewManager(reg, opts.RingTimeout),
		Users:    users,
	}
}

// Connect registers a fresh session for user. A previous connection of the
// same user is kicked; its own disconnect then finds itself stale.
func (o *Orchestrator) Connect(ctx context.Context, user *domain.User, conn core.SignalConnection, cancel context.CancelFunc) core.Session {
	sess := core.NewSession(core.SessionID(uuid.NewString()), user, conn, cancel)
	if evicted := o.Registry.Register(sess); evicted != nil {
		log.Info().Str("module", "orch").Str("sid", string(evicted.ID())).Str("user", string(user.ID)).Msg("replaced by newer connection")
		evicted.Kick()
	}
	o.persist(ctx, user.ID, true, time.Time{})
	return sess
}

// Disconnect is the single teardown path of a connection. It reports
// whether the user went offline with it.
func (o *Orchestrator) Disconnect(ctx context.Context, sess core.Session) bool {
	uid := sess.User().ID
	wentOffline := o.Registry.Unregister(sess)
	o.Typing.ClearSession(sess)
	o.cleanupMembership(sess.ID())
	if !wentOffline {
		return false
	}
	o.Calls.Disconnect(uid)
	o.persist(ctx, uid, false, time.Now())
	log.Info().Str("module", "orch").Str("sid", string(sess.ID())).Str("user", string(uid)).Msg("user offline")
	return true
}

// Shutdown stops background timers. Connections are torn down by their
// own contexts.
func (o *Orchestrator) Shutdown() {
	o.Calls.Close()
}

func (o *Orchestrator) persist(ctx context.Context, uid domain.UserID, online bool, lastActive time.Time) {
	if o.Users == nil {
		return
	}
	if err := o.Users.SetUserOnline(ctx, uid, online, lastActive); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("user", string(uid)).Bool("online", online).Msg("persist presence")
	}
}
