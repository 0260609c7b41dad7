package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces rate limit counters in Redis so the store can share a
// cluster with other consumers.
const keyPrefix = "paywatch:ratelimit:"

// RedisStore is a fixed-window store backed by a shared Redis instance.
// Multiple processor instances pointing at the same Redis see one consistent
// counter per source, which a process-local map cannot provide. Expired
// windows are evicted by Redis key TTLs; no janitor is needed.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis at the given URL and verifies the
// connection with a short ping before returning.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// IncrementAndCheck implements Store using INCR + EXPIRE-on-first-hit in a
// single pipeline round trip. The key's TTL doubles as the window boundary:
// when it lapses, Redis deletes the key and the next INCR starts a fresh
// window at 1.
func (s *RedisStore) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	rkey := keyPrefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, rkey)
	// NX: only set the expiry when the key has none, i.e. on the first
	// request of a window. Re-arming it on every hit would turn the fixed
	// window into a sliding one.
	pipe.ExpireNX(ctx, rkey, window)
	ttl := pipe.TTL(ctx, rkey)

	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit pipeline: %w", err)
	}

	count := int(incr.Val())

	resetAt := time.Now().Add(window)
	if d := ttl.Val(); d > 0 {
		resetAt = time.Now().Add(d)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Ping checks connectivity to the backing Redis. Used by the health endpoint.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connections.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Compile-time assertion that RedisStore satisfies Store.
var _ Store = (*RedisStore)(nil)
