package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Parley/internal/adapters/http"
	wssignal "github.com/dkeye/Parley/internal/adapters/signal"
	"github.com/dkeye/Parley/internal/adapters/store"
	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	db, err := store.Open(cfg.Database, cfg.Mode == "debug")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer func() {
		if err := store.Close(db); err != nil {
			log.Error().Err(err).Msg("close database")
		}
	}()

	messages := store.NewMessageRepository(db)
	users := store.NewUserRepository(db)
	if err := users.ResetOnline(ctx); err != nil {
		log.Warn().Err(err).Msg("reset presence")
	}

	presence := store.PresenceFanout{users}
	var mirror *store.PresenceMirror
	if cfg.Redis.URL != "" {
		client, err := store.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		mirror = store.NewPresenceMirror(client, cfg.Redis.PresenceTTL)
		presence = append(presence, mirror)
	}

	o := orch.New(messages, presence, orch.Options{
		TypingExpiry: cfg.TypingExpiry,
		RingTimeout:  cfg.RingTimeout,
		Policy:       app.SimplePolicy{},
	})
	defer o.Shutdown()

	if mirror != nil {
		go refreshPresence(ctx, mirror, o.Registry, cfg.Redis.PresenceTTL/2)
	}

	ctrl := wssignal.NewSignalWSController(o, cfg)
	r := router.SetupRouter(ctx, cfg, ctrl, messages)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Parley server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := ctrl.Wait(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("websocket connections still open")
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// refreshPresence keeps the redis keys of connected users from expiring.
func refreshPresence(ctx context.Context, mirror *store.PresenceMirror, presence core.Presence, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online := presence.Online()
			ids := make([]domain.UserID, 0, len(online))
			for _, p := range online {
				ids = append(ids, p.UserID)
			}
			if err := mirror.Refresh(ctx, ids); err != nil {
				log.Warn().Err(err).Str("module", "store").Msg("refresh presence")
			}
		}
	}
}
