package core

import (
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

// SessionID identifies one live connection. A user that reconnects gets a
// new SessionID.
type SessionID string

// Session binds a user identity to its transport endpoint.
// This is what the registry resolves to and what rooms fan out to.
type Session interface {
	ID() SessionID
	User() *domain.User
	Signal() SignalConnection
	ConnectedAt() time.Time
	// Kick tears down the connection; the adapter's read loop then runs the
	// regular disconnect path.
	Kick()
}
