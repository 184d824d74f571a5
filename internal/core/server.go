// Package core provides the HTTP chassis for the notification dispatcher.
// It creates a chi router that serves both standard HTTP (for local dev) and
// AWS Lambda function URL / API Gateway v2 events (via the httpadapter). It
// enforces cross-cutting concerns (panic recovery, request ids, logging,
// security headers) before requests reach the notification handler.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"meteonotify/internal/config"
)

// Server encapsulates the chassis dependencies, allowing for easy injection
// during testing and distinct configuration for different environments.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	HealthProbes []HealthProbe

	// Internal router
	router *chi.Mux
}

// NewServer prepares the router. It performs a fail-fast check on its
// dependencies; routes are mounted separately via MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
// Used by http.Server (local) and NewLambdaHandler (Lambda).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server resources. The
// dispatcher holds no pooled connections, so this only records the event.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
