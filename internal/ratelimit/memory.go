package ratelimit

import (
	"context"
	"sync"
	"time"
)

// bucket is the per-source fixed-window counter.
type bucket struct {
	count   int
	resetAt time.Time
}

// MemoryStore is a process-local, concurrency-safe fixed-window store.
// Buckets are created lazily on first sight of a source and reset in place
// when their window elapses. A background janitor evicts buckets whose
// window expired, so the map stays bounded by the number of sources seen
// within roughly one prune interval rather than growing forever.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMemoryStore creates a MemoryStore and starts its eviction janitor.
// pruneInterval controls how often expired buckets are swept; a
// non-positive value disables the janitor (useful in tests).
// Callers must Close the store when done to stop the janitor goroutine.
func NewMemoryStore(pruneInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if pruneInterval > 0 {
		go s.janitor(pruneInterval)
	}
	return s
}

// IncrementAndCheck implements Store. The critical section is O(1): lookup,
// possible window reset, increment, compare.
func (s *MemoryStore) IncrementAndCheck(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(window)}
		s.buckets[key] = b
	}

	b.count++

	remaining := limit - b.count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   b.count <= limit,
		Remaining: remaining,
		ResetAt:   b.resetAt,
	}, nil
}

// Close stops the janitor goroutine. Safe to call multiple times.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// janitor periodically evicts buckets whose window has elapsed.
func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.prune()
		}
	}
}

// prune removes all expired buckets. An expired bucket carries no state worth
// keeping: the next request from that source starts a fresh window anyway.
func (s *MemoryStore) prune() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, b := range s.buckets {
		if !now.Before(b.resetAt) {
			delete(s.buckets, key)
		}
	}
}

// size returns the current bucket count. Test hook.
func (s *MemoryStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Compile-time assertion that MemoryStore satisfies Store.
var _ Store = (*MemoryStore)(nil)
