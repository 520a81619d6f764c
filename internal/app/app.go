package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirechat-rooms/internal/auth"
	"github.com/vovakirdan/wirechat-rooms/internal/blob"
	"github.com/vovakirdan/wirechat-rooms/internal/chat"
	"github.com/vovakirdan/wirechat-rooms/internal/config"
	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/presence"
	"github.com/vovakirdan/wirechat-rooms/internal/retention"
	"github.com/vovakirdan/wirechat-rooms/internal/service/session"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
	"github.com/vovakirdan/wirechat-rooms/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-rooms/internal/transport/http"
)

// App wires storage, presence, routing and transport together.
type App struct {
	server          *transporthttp.Server
	sweeper         *retention.Sweeper
	shutdownTimeout time.Duration
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	blobs, err := blob.NewDirStore(cfg.UploadDir, "/uploads", logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init uploads: %w", err)
	}

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})

	router := core.NewRouter(logger)
	registry := presence.NewRegistry(st, router, presence.Config{
		IdleTimeout: cfg.SessionIdleTimeout,
		EventBuffer: cfg.EventBuffer,
	}, logger)
	dispatcher := chat.NewDispatcher(st, st, router, chat.Options{
		MaxMessageLength: cfg.MaxMessageLength,
	}, logger)

	server := transporthttp.NewServer(transporthttp.Deps{
		Sessions:   session.New(authService, registry, logger),
		Auth:       authService,
		Registry:   registry,
		Dispatcher: dispatcher,
		Store:      st,
		Blobs:      blobs,
	}, cfg, logger)

	return &App{
		server:          server,
		sweeper:         retention.NewSweeper(st, cfg.SweepInterval, cfg.Retention, logger),
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}, nil
}

// Run serves HTTP and runs the retention sweeper until ctx is cancelled or
// either fails.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.sweeper.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
