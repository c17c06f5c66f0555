package domain

import "strings"

// RoomSeparator joins the two user ids of a pair room.
const RoomSeparator = "_"

type RoomID string

// PairRoom derives the room shared by two users. Both sides compute the
// same id without coordination: the pair is sorted before joining.
func PairRoom(a, b UserID) RoomID {
	if b < a {
		a, b = b, a
	}
	return RoomID(string(a) + RoomSeparator + string(b))
}

// Peers splits a pair room back into its participants. User ids never
// contain RoomSeparator, so a valid pair room holds exactly one.
func (r RoomID) Peers() (UserID, UserID, bool) {
	a, b, ok := strings.Cut(string(r), RoomSeparator)
	if !ok || a == "" || b == "" || strings.Contains(b, RoomSeparator) {
		return "", "", false
	}
	return UserID(a), UserID(b), true
}

// Includes reports whether u is one side of the pair room r.
func (r RoomID) Includes(u UserID) bool {
	a, b, ok := r.Peers()
	return ok && (u == a || u == b)
}
