package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-relay/internal/transport/http"
	"github.com/vovakirdan/wirechat-relay/internal/transport/tcp"
)

// App wires together core and transport layers.
type App struct {
	addr            string
	relay           *core.Relay
	tcp             *tcp.Server
	admin           *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	opts := []core.Option{
		core.WithLogger(logger),
		core.WithRateLimit(cfg.MaxMessagesPerMinute),
	}

	var st store.Store
	if cfg.AuditDBPath != "" {
		sqliteStore, err := sqlite.New(cfg.AuditDBPath)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		st = sqliteStore
		opts = append(opts, core.WithRecorder(st))
		logger.Info().Str("db_path", cfg.AuditDBPath).Msg("presence audit enabled")
	}

	relay := core.NewRelay(opts...)
	a := &App{
		addr:            cfg.Addr,
		relay:           relay,
		tcp:             tcp.NewServer(relay, logger),
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}
	if cfg.AdminAddr != "" {
		var presence store.PresenceStore
		if st != nil {
			presence = st
		}
		a.admin = transporthttp.NewServer(relay, presence, cfg, logger)
	}
	return a, nil
}

// Addr returns the relay listener address once Run has started listening.
func (a *App) Addr() net.Addr {
	return a.tcp.Addr()
}

// Run starts the relay and the optional admin server and blocks until
// context cancellation or a fatal error.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		a.cleanup()
		return fmt.Errorf("listen %s: %w", a.addr, err)
	}

	serveCtx, stopServe := context.WithCancel(context.Background())
	defer stopServe()

	serverErr := make(chan error, 2)
	tcpDone := make(chan struct{})
	go func() {
		defer close(tcpDone)
		if err := a.tcp.Serve(serveCtx, ln); err != nil {
			serverErr <- fmt.Errorf("tcp server: %w", err)
		}
	}()

	if a.admin != nil {
		go func() {
			a.log.Info().Str("addr", a.admin.Addr).Msg("admin http listening")
			if err := a.admin.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				serverErr <- fmt.Errorf("admin server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case runErr = <-serverErr:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	a.log.Info().Msg("shutting down")
	if a.admin != nil {
		if err := a.admin.Shutdown(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("admin server shutdown")
		}
	}
	if err := a.relay.Shutdown(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("relay shutdown timed out")
	}
	stopServe()
	<-tcpDone

	a.cleanup()
	return runErr
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
