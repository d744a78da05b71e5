package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/auth"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/config"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/core"
	applog "github.com/AxelCastilloZ/BomberosNosara-sub000/internal/log"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/metrics"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/service/conversations"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/service/notifications"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store/redisstore"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store/sqlite"
	transporthttp "github.com/AxelCastilloZ/BomberosNosara-sub000/internal/transport/http"
)

// App wires together store, services, core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	mirror          *redisstore.PresenceMirror
	log             *zerolog.Logger
}

// JWTConfig derives token settings from the server configuration.
func JWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}

	var mirror core.PresenceMirror
	if cfg.Redis.Addr != "" {
		pm, err := redisstore.Dial(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init presence mirror: %w", err)
		}
		if err := pm.Reset(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to reset presence mirror")
		}
		a.mirror = pm
		mirror = pm
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("presence mirror enabled")
	}

	var (
		hubMetrics     core.Metrics
		metricsHandler stdhttp.Handler
	)
	if cfg.Metrics.Enabled {
		m := metrics.New()
		hubMetrics = m
		metricsHandler = m.Handler()
	}

	authService := auth.NewService(st, JWTConfig(cfg))
	convs := conversations.New(st, cfg.SuperuserRole)

	a.hub = core.NewHub(core.Options{
		Conversations: convs,
		Notifications: notifications.New(st, cfg.Notifications.HistorySize),
		Messages:      st,
		Metrics:       hubMetrics,
		Mirror:        mirror,
		Logger:        applog.Component(logger, "hub"),
		TypingIdle:    cfg.Typing.Idle,
		MaxBodyRunes:  cfg.MaxBodyRunes,
		HistoryLimit:  cfg.HistoryLimit,
		RatePerSecond: cfg.RateLimit.PerSecond,
		RateBurst:     cfg.RateLimit.Burst,
	})

	a.server = transporthttp.NewServer(transporthttp.Deps{
		Hub:           a.hub,
		Auth:          authService,
		Conversations: convs,
		Metrics:       metricsHandler,
	}, *cfg, applog.Component(logger, "http"))

	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		a.hub.Run(hubCtx)
	}()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopHub()
		<-hubDone
		a.cleanup()
		return err
	case <-ctx.Done():
		a.log.Info().Msg("shutting down")

		// Hijacked WebSocket connections are not tracked by Shutdown; the
		// hub closes them with a going-away frame first.
		stopHub()
		<-hubDone

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close presence mirror")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
