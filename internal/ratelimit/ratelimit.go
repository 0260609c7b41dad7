// Package ratelimit provides fixed-window request counting keyed by source
// identity (the client IP of an inbound webhook). Two backing stores are
// provided: an in-memory store with TTL-based eviction for single-instance
// deployments, and a Redis store that shares counters across instances so
// limits stay consistent behind a load balancer.
package ratelimit

import (
	"context"
	"time"
)

// Store abstracts the backing store for rate limiting.
// Production multi-instance deployments use Redis; single instances and
// tests use the in-memory store.
type Store interface {
	// IncrementAndCheck atomically increments the counter for the given key
	// and checks whether the limit has been exceeded within the window.
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Result contains the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is within the rate limit.
	Allowed bool
	// Remaining is the number of requests remaining in the current window.
	Remaining int
	// ResetAt is the time when the current rate limit window resets.
	ResetAt time.Time
}
