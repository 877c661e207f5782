// Package cache provides fixed-window counter stores used by the HTTP rate
// limiter. A counter store is injected so tests can reset it and production
// can share it across processes through Redis.
package cache

import (
	"context"
	"sync"
	"time"
)

// Counter increments a per-key counter that resets when its window ends.
//
// Incr returns the count after incrementing and the time left until the
// window resets. The first Incr for a key (or the first after a reset) opens
// a new window of the given length.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}

type bucket struct {
	count   int64
	resetAt time.Time
}

// MemoryCounter is a process-local Counter. It is safe for concurrent use.
type MemoryCounter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	now      func() time.Time
	cleanupN uint64
}

// NewMemoryCounter returns an empty in-memory counter store.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{buckets: make(map[string]*bucket), now: time.Now}
}

// Incr implements Counter.
func (m *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Opportunistic cleanup of expired windows after a threshold of lookups.
	m.cleanupN++
	if m.cleanupN >= 5000 {
		for k, b := range m.buckets {
			if !now.Before(b.resetAt) {
				delete(m.buckets, k)
			}
		}
		m.cleanupN = 0
	}

	b, ok := m.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(window)}
		m.buckets[key] = b
	}
	b.count++
	return b.count, b.resetAt.Sub(now), nil
}

// Reset drops every window.
func (m *MemoryCounter) Reset() {
	m.mu.Lock()
	m.buckets = make(map[string]*bucket)
	m.cleanupN = 0
	m.mu.Unlock()
}
