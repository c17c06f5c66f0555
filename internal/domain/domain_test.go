package domain_test

import (
	"strings"
	"testing"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairRoom_Symmetric(t *testing.T) {
	pairs := [][2]domain.UserID{
		{"alice", "bob"},
		{"bob", "alice"},
		{"64b1f", "64a9c"},
		{"same", "same"},
		{"", "x"},
	}
	for _, p := range pairs {
		assert.Equal(t, domain.PairRoom(p[0], p[1]), domain.PairRoom(p[1], p[0]))
	}
	assert.Equal(t, domain.RoomID("alice_bob"), domain.PairRoom("bob", "alice"))
}

func TestRoomID_Peers(t *testing.T) {
	a, b, ok := domain.PairRoom("zed", "amy").Peers()
	require.True(t, ok)
	assert.Equal(t, domain.UserID("amy"), a)
	assert.Equal(t, domain.UserID("zed"), b)

	_, _, ok = domain.RoomID("lobby").Peers()
	assert.False(t, ok)
	_, _, ok = domain.RoomID("a_b_c").Peers()
	assert.False(t, ok)
}

func TestRoomID_Includes(t *testing.T) {
	room := domain.PairRoom("alice", "bob")
	assert.True(t, room.Includes("alice"))
	assert.True(t, room.Includes("bob"))
	assert.False(t, room.Includes("carol"))
	assert.False(t, domain.RoomID("lobby").Includes("lobby"))
}

func TestNewUser(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		username string
		wantName string
		wantErr  error
	}{
		{name: "id only", id: "u1", wantName: "u1"},
		{name: "with name", id: "u1", username: "Alice", wantName: "Alice"},
		{name: "empty id", id: "  ", wantErr: domain.ErrUserIDEmpty},
		{name: "long id", id: strings.Repeat("x", domain.MaxUserIDLen+1), wantErr: domain.ErrUserIDTooLong},
		{name: "separator in id", id: "a_b", wantErr: domain.ErrUserIDSeparator},
		{name: "long name", id: "u1", username: strings.Repeat("n", domain.MaxUsernameLen+1), wantErr: domain.ErrUsernameTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := domain.NewUser(tt.id, tt.username)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, u.Username)
		})
	}
}

func TestValidateText(t *testing.T) {
	assert.ErrorIs(t, domain.ValidateText(""), domain.ErrMessageEmpty)
	assert.ErrorIs(t, domain.ValidateText(strings.Repeat("a", domain.MaxMessageLen+1)), domain.ErrMessageTooLong)
	assert.NoError(t, domain.ValidateText("hi"))
}
