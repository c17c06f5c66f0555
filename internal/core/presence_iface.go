package core

import (
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

// PresenceInfo is a read-only view of a registry entry.
type PresenceInfo struct {
	UserID      domain.UserID `json:"userId"`
	OnlineSince time.Time     `json:"onlineSince"`
}

// Presence is the authoritative live mapping from user identity to its
// current connection. The default implementation keeps one connection per
// user (last one wins); callers only depend on this interface.
type Presence interface {
	// Register returns the session it replaced, if any.
	Register(s Session) (evicted Session)
	// Unregister reports whether s was still the current session of its user.
	Unregister(s Session) bool
	// Resolve reports false when the user has no live connection. That is
	// the normal "offline" outcome, not an error.
	Resolve(id domain.UserID) (Session, bool)
	Online() []PresenceInfo
}
