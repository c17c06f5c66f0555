package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Parley/internal/adapters/rtc"
	"github.com/dkeye/Parley/internal/adapters/signal"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func SetupRouter(ctx context.Context, cfg *config.Config, ctrl *signal.SignalWSController, messages core.MessageStore) *gin.Engine {
	o := ctrl.Orch
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	key := cfg.Secret
	if key == "" {
		// sessions then only live as long as the process
		key = uuid.NewString()
	}
	store := cookie.NewStore([]byte(key))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("ParleySessions", store))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"online": len(o.Registry.Online()),
			"rooms":  len(o.Rooms.List()),
			"calls":  len(o.Calls.Active()),
		})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	iceServers := rtc.ICEServers(cfg.ICEServers)

	api := r.Group("/api")
	api.GET("/ice-servers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": iceServers})
	})

	authed := api.Group("", IdentityMiddleware(cfg.Secret))
	authed.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("user", c.GetString(signal.CtxUserID)).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})
	authed.GET("/presence", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"online": o.Registry.Online()})
	})
	authed.GET("/messages/:peerId", historyHandler(messages))

	return r
}

// historyQuery binds the paging parameters of a history request.
type historyQuery struct {
	Page  int `form:"page,default=1" binding:"min=1"`
	Limit int `form:"limit,default=30" binding:"min=1,max=100"`
}

func historyHandler(messages core.MessageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		self := domain.UserID(c.GetString(signal.CtxUserID))
		peer := domain.UserID(c.Param("peerId"))
		if err := domain.ValidateUserID(peer); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var q historyQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		msgs, total, err := messages.History(c.Request.Context(), self, peer, q.Page, q.Limit)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Str("user", string(self)).Str("peer", string(peer)).Msg("history")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"roomId":   domain.PairRoom(self, peer),
			"messages": msgs,
			"page":     q.Page,
			"limit":    q.Limit,
			"total":    total,
		})
	}
}
