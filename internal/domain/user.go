// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 36
)

var (
	ErrUserIDEmpty     = errors.New("user id empty")
	ErrUserIDTooLong   = errors.New("user id too long")
	ErrUserIDSeparator = errors.New("user id contains the room separator")
	ErrUsernameTooLong = errors.New("username too long")
)

type UserID string

type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

// ValidateUserID rejects ids that could not name one side of a pair room.
// An id holding RoomSeparator would let two different pairs share a room.
func ValidateUserID(id UserID) error {
	switch {
	case len(id) == 0:
		return ErrUserIDEmpty
	case len(id) > MaxUserIDLen:
		return ErrUserIDTooLong
	case strings.Contains(string(id), RoomSeparator):
		return ErrUserIDSeparator
	}
	return nil
}

// NewUser validates the identity handed over by the handshake.
// An empty username falls back to the id.
func NewUser(id, username string) (*User, error) {
	id = strings.TrimSpace(id)
	if err := ValidateUserID(UserID(id)); err != nil {
		return nil, err
	}
	u := &User{ID: UserID(id), Username: id}
	if username != "" {
		if err := u.SetUsername(username); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func (u *User) SetUsername(username string) error {
	if len(username) == 0 {
		return nil
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	u.Username = username
	return nil
}
