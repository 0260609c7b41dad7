package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"paywatch/internal/config"
	"paywatch/internal/ratelimit"
)

// stubLimitStore implements ratelimit.Store with canned results.
type stubLimitStore struct {
	result ratelimit.Result
	err    error
	keys   []string
}

func (s *stubLimitStore) IncrementAndCheck(_ context.Context, key string, _ int, _ time.Duration) (ratelimit.Result, error) {
	s.keys = append(s.keys, key)
	return s.result, s.err
}

func newTestServer(t *testing.T, store ratelimit.Store) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 29 * time.Second
	cfg.RateLimit.MaxRequests = 100
	cfg.RateLimit.Window = time.Minute

	srv, err := NewServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.RateLimitStore = store
	return srv
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit_AllowedSetsHeaders(t *testing.T) {
	resetAt := time.Now().Add(30 * time.Second)
	store := &stubLimitStore{result: ratelimit.Result{Allowed: true, Remaining: 42, ResetAt: resetAt}}
	srv := newTestServer(t, store)

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	rec := httptest.NewRecorder()
	srv.RateLimit(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "100" {
		t.Errorf("X-RateLimit-Limit = %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "42" {
		t.Errorf("X-RateLimit-Remaining = %q", got)
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset not set")
	}
}

func TestRateLimit_DeniedReturns429(t *testing.T) {
	store := &stubLimitStore{result: ratelimit.Result{Allowed: false, Remaining: 0, ResetAt: time.Now().Add(45 * time.Second)}}
	srv := newTestServer(t, store)

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	rec := httptest.NewRecorder()
	srv.RateLimit(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After not set on denial")
	}
}

func TestRateLimit_StoreErrorFailsOpen(t *testing.T) {
	store := &stubLimitStore{err: errors.New("redis unreachable")}
	srv := newTestServer(t, store)

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	rec := httptest.NewRecorder()
	srv.RateLimit(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: a store outage must not block deliveries", rec.Code)
	}
}

func TestRateLimit_NilStorePassesThrough(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	rec := httptest.NewRecorder()
	srv.RateLimit(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRateLimit_KeyedByForwardedClientIP(t *testing.T) {
	store := &stubLimitStore{result: ratelimit.Result{Allowed: true, Remaining: 1, ResetAt: time.Now().Add(time.Minute)}}
	srv := newTestServer(t, store)

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.1.2.3")
	rec := httptest.NewRecorder()
	srv.RateLimit(okHandler()).ServeHTTP(rec, req)

	if len(store.keys) != 1 || store.keys[0] != "203.0.113.7" {
		t.Errorf("rate limit keys = %v, want [203.0.113.7]", store.keys)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		realIP     string
		want       string
	}{
		{"remote addr only", "192.0.2.1:9999", "", "", "192.0.2.1"},
		{"forwarded single", "10.0.0.1:80", "203.0.113.7", "", "203.0.113.7"},
		{"forwarded chain takes first", "10.0.0.1:80", "203.0.113.7, 10.0.0.2", "", "203.0.113.7"},
		{"real ip fallback", "10.0.0.1:80", "", "198.51.100.9", "198.51.100.9"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-Ip", tc.realIP)
			}
			if got := clientIP(req); got != tc.want {
				t.Errorf("clientIP = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestHandleHealth_NoProbes(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

type staticProbe struct {
	name string
	err  error
}

func (p staticProbe) Name() string                { return p.name }
func (p staticProbe) Check(context.Context) error { return p.err }

func TestHandleHealth_UnhealthyProbe(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.HealthProbes = []HealthProbe{
		staticProbe{name: "database"},
		staticProbe{name: "redis", err: errors.New("connection refused")},
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
