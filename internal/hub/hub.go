// Package hub is the orchestrator that ties the callwatch components together.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/callwatch/callwatch/internal/api"
	"github.com/callwatch/callwatch/internal/auth"
	"github.com/callwatch/callwatch/internal/authz"
	"github.com/callwatch/callwatch/internal/broadcast"
	"github.com/callwatch/callwatch/internal/config"
	"github.com/callwatch/callwatch/internal/directory"
	"github.com/callwatch/callwatch/internal/esl"
	"github.com/callwatch/callwatch/internal/session"
	"github.com/callwatch/callwatch/internal/store"
)

// Hub is the main callwatch process.
type Hub struct {
	cfg    *config.Config
	store  store.Store
	api    *api.Server
	logger *slog.Logger
}

// New creates a hub from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Hub, error) {
	db, err := store.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	authSvc := auth.NewService(db, cfg.Auth)
	if err := authSvc.Bootstrap(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap auth: %w", err)
	}

	dispatcher := session.NewDispatcher(session.Deps{
		Hub:       broadcast.New(logger),
		Directory: directory.NewService(db),
		Commander: esl.NewPool(cfg.Switches, logger),
		Store:     db,
		Authz:     authz.NewEngine(logger),
		Logger:    logger,
	})

	h := &Hub{
		cfg:    cfg,
		store:  db,
		api:    api.NewServer(db, authSvc, dispatcher, cfg, logger),
		logger: logger.With("component", "hub"),
	}

	if cfg.Auth.InitialAdmin != nil &&
		cfg.Auth.InitialAdmin.Username == "admin" && cfg.Auth.InitialAdmin.Password == "admin" {
		logger.Warn("default admin credentials detected (admin/admin), change immediately in production")
	}
	for _, origin := range cfg.Server.AllowedOrigins {
		if origin == "*" {
			logger.Warn("CORS allowed_origins contains wildcard '*', restrict to specific origins in production")
			break
		}
	}
	if len(cfg.Switches.Servers) == 0 {
		logger.Warn("no registration servers configured, listings and taps will fail")
	}

	return h, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (h *Hub) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    h.cfg.Server.Addr,
		Handler: h.api.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("callwatch listening", "addr", h.cfg.Server.Addr)
		if h.cfg.Server.TLSCert != "" && h.cfg.Server.TLSKey != "" {
			errCh <- srv.ListenAndServeTLS(h.cfg.Server.TLSCert, h.cfg.Server.TLSKey)
		} else {
			h.logger.Warn("TLS not configured, running without encryption (development only)")
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		h.logger.Info("shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			h.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			_ = srv.Close()
		}

		_ = h.store.Close()
		return nil

	case err := <-errCh:
		_ = h.store.Close()
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}
