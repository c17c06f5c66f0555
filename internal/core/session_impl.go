package core

import (
	"context"
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

// session implements Session by pairing meta + transport.
type session struct {
	id     SessionID
	user   *domain.User
	conn   SignalConnection
	since  time.Time
	cancel context.CancelFunc
}

func NewSession(id SessionID, user *domain.User, conn SignalConnection, cancel context.CancelFunc) Session {
	return &session{id: id, user: user, conn: conn, since: time.Now(), cancel: cancel}
}

func (s *session) ID() SessionID            { return s.id }
func (s *session) User() *domain.User       { return s.user }
func (s *session) Signal() SignalConnection { return s.conn }
func (s *session) ConnectedAt() time.Time   { return s.since }

func (s *session) Kick() {
	if s.cancel != nil {
		s.cancel()
	}
	s.conn.Close()
}
