package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/adapters/rtc"
	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Gin context keys the identity middleware fills in.
const (
	CtxUserID   = "user_id"
	CtxUsername = "username"
)

const writeWait = 5 * time.Second

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RateLimiter

	readLimit  int64
	pingPeriod time.Duration
	pongWait   time.Duration
	sendBuffer int
	iceServers []webrtc.ICEServer

	// conns counts connections whose read pump has not finished teardown.
	conns sync.WaitGroup
}

func NewSignalWSController(o *orch.Orchestrator, cfg *config.Config) *SignalWSController {
	ctl := &SignalWSController{
		Orch:       o,
		readLimit:  cfg.ReadLimit,
		pingPeriod: cfg.PingPeriod,
		pongWait:   cfg.PongWait(),
		sendBuffer: cfg.SendBuffer,
		iceServers: rtc.ICEServers(cfg.ICEServers),
	}
	if cfg.RateLimit.Events > 0 && cfg.RateLimit.Interval > 0 {
		ctl.Limiter = NewRateLimiter(cfg.RateLimit.Events, cfg.RateLimit.Interval)
	}
	return ctl
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// Welcome is the first event a connection receives.
type Welcome struct {
	UserID     domain.UserID       `json:"userId"`
	Username   string              `json:"username"`
	SessionID  core.SessionID      `json:"sessionId"`
	Online     []core.PresenceInfo `json:"online"`
	ICEServers []webrtc.ICEServer  `json:"iceServers"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	user, err := domain.NewUser(c.GetString(CtxUserID), c.GetString(CtxUsername))
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("rejected handshake")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("module", "signal").Str("user", string(user.ID)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.sendBuffer),
	}

	ctx, cancel := context.WithCancel(ctx)
	sess := ctl.Orch.Connect(ctx, user, conn, cancel)
	ctl.sendJSON(conn, core.EvConnected, Welcome{
		UserID:     user.ID,
		Username:   user.Username,
		SessionID:  sess.ID(),
		Online:     ctl.Orch.Registry.Online(),
		ICEServers: ctl.iceServers,
	})

	ctl.conns.Add(1)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sess, conn)
}

// Wait blocks until every accepted connection has been disconnected from
// the orchestrator, or ctx ends. Hijacked connections are not tracked by
// http.Server.Shutdown, so callers wait here before closing the stores.
func (ctl *SignalWSController) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		ctl.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
