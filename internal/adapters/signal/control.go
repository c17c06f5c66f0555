package signal

import (
	"github.com/dkeye/Parley/internal/app/call"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

func (ctl *SignalWSController) handlePing(sess core.Session) {
	ctl.sendJSON(sess.Signal(), core.EvPong, struct{}{})
}

type whoAmI struct {
	UserID    domain.UserID   `json:"userId"`
	Username  string          `json:"username"`
	SessionID core.SessionID  `json:"sessionId"`
	Rooms     []domain.RoomID `json:"rooms"`
	Call      *call.Snapshot  `json:"call,omitempty"`
}

func (ctl *SignalWSController) handleWhoAmI(sess core.Session) {
	user := sess.User()
	resp := whoAmI{
		UserID:    user.ID,
		Username:  user.Username,
		SessionID: sess.ID(),
		Rooms:     ctl.Orch.Rooms.RoomsOf(sess.ID()),
	}
	if c, ok := ctl.Orch.Calls.CallOf(user.ID); ok {
		resp.Call = &c
	}
	ctl.sendJSON(sess.Signal(), core.EvWhoAmI, resp)
}
