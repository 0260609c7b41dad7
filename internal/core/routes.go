package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"paywatch/internal/types"
)

// defaultRedactedHeaders lists header names whose values are masked in
// request logs. The gateway signature is a credential derived from the shared
// secret and must never land in log storage.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"X-Gateway-Signature",
}

// MountRoutes defines the routing hierarchy: the global middleware chain, the
// webhook ingestion endpoint, and the operational endpoints. The webhook
// route alone carries the rate limit middleware; health and metrics must stay
// reachable for probes and scrapers even when a source is being throttled.
func (s *Server) MountRoutes(webhook http.Handler, metrics http.Handler) {
	s.registerGlobalMiddleware()

	s.router.With(s.RateLimit).Post("/webhook", webhook.ServeHTTP)

	s.router.Get("/health", s.HandleHealth)
	if metrics != nil {
		s.router.Handle("/metrics", metrics)
	}
}

// registerGlobalMiddleware applies middleware in strict order.
//
// Ordering rationale:
//  1. Recoverer      - outermost, catches all panics.
//  2. ContextTimeout - soft deadline on every request.
//  3. RequestID      - correlation ID for tracing; everything after logs it.
//  4. RequestLogger  - structured logging with redacted headers.
//  5. Metrics        - request latency and count recording.
//
// RateLimit is deliberately not global; it is attached per-route in
// MountRoutes so only the webhook endpoint consumes rate limit budget.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.Config.Server.RequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, s.redactedHeaders()))
	s.router.Use(s.MetricsMiddleware)
}

// redactedHeaders returns the header names to mask in request logs: the safe
// defaults plus the configured gateway signature header, which may differ
// from the default per environment.
func (s *Server) redactedHeaders() []string {
	headers := append([]string{}, defaultRedactedHeaders...)
	if h := s.Config.Gateway.SignatureHeader; h != "" {
		headers = append(headers, h)
	}
	return headers
}

// ContextTimeoutMiddleware sets a deadline on the request context. Downstream
// handlers receive a cancelled context once the deadline passes; ledger
// writes detach from it deliberately so an in-flight commit is never
// abandoned halfway.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware generates or propagates a unique request ID for
// correlation across logs. If the incoming request carries an X-Request-Id
// header, that value is reused; otherwise, a new random ID is generated.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := types.WithRequestID(r.Context(), requestID)

		// Set the response header so the gateway can correlate deliveries.
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// generateRequestID produces a cryptographically random hex string suitable
// for use as a request correlation ID.
func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// Fallback: this should never happen in practice. If crypto/rand
		// fails, we still need a non-empty ID for correlation.
		return "fallback-" + hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(b)
}
