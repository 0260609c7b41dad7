// Package main is the entry point for the paywatch webhook processor.
//
// It loads configuration, connects the PostgreSQL pool and the configured
// rate limit backend, builds the payment processor and webhook handler, and
// serves HTTP with graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paywatch/internal/config"
	"paywatch/internal/core"
	"paywatch/internal/db"
	"paywatch/internal/gateway"
	"paywatch/internal/metrics"
	"paywatch/internal/payment"
	"paywatch/internal/ratelimit"
	"paywatch/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("paywatch processor starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
		"rate_limit_backend", cfg.RateLimit.Backend,
	)

	ctx := context.Background()

	// Database pool and store.
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	store := db.NewStore(pool, logger)
	defer store.Close()

	// Webhook signature verifier. LoadConfig already requires the secret;
	// the constructor re-checks so the processor can never start open.
	verifier, err := gateway.NewHMACVerifier(cfg.Gateway.WebhookSecret.Unmask())
	if err != nil {
		return fmt.Errorf("configuring webhook verifier: %w", err)
	}

	// Rate limit store: process-local by default, Redis when instances
	// share limits behind a load balancer.
	rateLimitStore, redisStore, err := newRateLimitStore(cfg.RateLimit)
	if err != nil {
		return fmt.Errorf("configuring rate limit store: %w", err)
	}

	// Telemetry.
	registry := metrics.NewRegistry()
	collector := metrics.NewCollector(registry)

	// Payment processor and webhook handler.
	policy := payment.Policy{
		MaxFailedPayments: cfg.Billing.MaxFailedPayments,
		GracePeriod:       cfg.Billing.GracePeriod,
		RenewalCycle:      cfg.Billing.RenewalCycle,
	}
	processor := payment.NewProcessor(store, store, policy, logger)
	webhookHandler := webhook.NewHandler(verifier, cfg.Gateway.SignatureHeader, processor, logger, collector)

	// HTTP chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = collector
	srv.RateLimitStore = rateLimitStore
	srv.HealthProbes = healthProbes(store, redisStore)

	srv.MountRoutes(webhookHandler, metrics.Handler(registry))

	return runHTTPServer(srv, cfg, logger)
}

// newRateLimitStore builds the configured rate limit backend. The second
// return value is non-nil only for the redis backend, for health probing.
func newRateLimitStore(cfg config.RateLimitConfig) (ratelimit.Store, *ratelimit.RedisStore, error) {
	switch cfg.Backend {
	case "redis":
		rs, err := ratelimit.NewRedisStore(cfg.RedisURL.Unmask())
		if err != nil {
			return nil, nil, err
		}
		return rs, rs, nil
	default:
		return ratelimit.NewMemoryStore(cfg.PruneInterval), nil, nil
	}
}

// healthProbes registers the processor's critical dependencies.
func healthProbes(store *db.Store, redisStore *ratelimit.RedisStore) []core.HealthProbe {
	probes := []core.HealthProbe{
		pingProbe{name: "database", ping: store.Ping},
	}
	if redisStore != nil {
		probes = append(probes, pingProbe{name: "redis", ping: redisStore.Ping})
	}
	return probes
}

// pingProbe adapts a ping function to the core.HealthProbe interface.
type pingProbe struct {
	name string
	ping func(ctx context.Context) error
}

func (p pingProbe) Name() string                    { return p.name }
func (p pingProbe) Check(ctx context.Context) error { return p.ping(ctx) }

// runHTTPServer starts the server with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler)
}
