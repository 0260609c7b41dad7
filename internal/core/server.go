// Package core provides the HTTP chassis for the paywatch processor: the chi
// router, the cross-cutting middleware (panic recovery, request IDs, logging,
// metrics, per-source rate limiting), the response envelope, and the health
// endpoint. Domain handlers are mounted onto it from the application entry
// point.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"paywatch/internal/config"
	"paywatch/internal/ratelimit"
)

// MetricsCollector defines the interface for recording API telemetry.
type MetricsCollector interface {
	// RecordRequest records request latency and count for one completed
	// request.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server encapsulates the dependencies of the HTTP layer, allowing for easy
// injection during testing and distinct configuration per environment.
type Server struct {
	Config         *config.Config
	Logger         *slog.Logger
	Metrics        MetricsCollector
	RateLimitStore ratelimit.Store
	HealthProbes   []HealthProbe

	// Internal router
	router *chi.Mux
}

// NewServer prepares the server for route mounting. The caller is responsible
// for mounting routes (via MountRoutes) after construction; this separation
// lets tests customize route registration.
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

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server-held resources. The
// store and pool are owned by main and closed there; this hook exists for
// resources registered on the server itself.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	if closer, ok := s.RateLimitStore.(interface{ Close() }); ok {
		closer.Close()
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
