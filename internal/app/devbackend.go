package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"sustainamind/carbontrack/internal/config"
	"sustainamind/carbontrack/internal/devserver"
	"sustainamind/carbontrack/internal/observability"
)

// DevBackend serves the in-memory backend for local runs.
type DevBackend struct {
	cfg    config.DevBackendConfig
	log    *slog.Logger
	server *devserver.Server
}

func NewDevBackend(cfg config.Config) (*DevBackend, error) {
	logger := observability.NewLogger(cfg.LogLevel)

	server, err := devserver.New(devserver.Config{
		Addr:         cfg.DevBackend.Addr,
		JWTSecret:    cfg.DevBackend.JWTSecret,
		TokenTTL:     cfg.DevBackend.TokenTTL,
		EstimateExpr: cfg.DevBackend.EstimateExpr,
		RequireToken: cfg.DevBackend.RequireToken,
		ReadTimeout:  cfg.DevBackend.ReadTimeout,
		WriteTimeout: cfg.DevBackend.WriteTimeout,
	}, devserver.NewStore(), logger)
	if err != nil {
		return nil, fmt.Errorf("create dev backend: %w", err)
	}

	return &DevBackend{
		cfg:    cfg.DevBackend,
		log:    logger,
		server: server,
	}, nil
}

func (d *DevBackend) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		d.log.Info("dev backend starting", "addr", d.cfg.Addr, "require_token", d.cfg.RequireToken)
		errCh <- d.server.Start()
	}()

	select {
	case <-ctx.Done():
		d.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout)
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}
