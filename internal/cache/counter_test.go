package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryCounter_WindowResets(t *testing.T) {
	m := NewMemoryCounter()
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, reset, err := m.Incr(ctx, "ip:1", time.Minute)
		if err != nil || n != i || reset != time.Minute {
			t.Fatalf("hit %d: n=%d reset=%v err=%v", i, n, reset, err)
		}
	}

	now = now.Add(45 * time.Second)
	n, reset, _ := m.Incr(ctx, "ip:1", time.Minute)
	if n != 4 || reset != 15*time.Second {
		t.Fatalf("expected n=4 reset=15s, got n=%d reset=%v", n, reset)
	}

	now = now.Add(15 * time.Second)
	n, reset, _ = m.Incr(ctx, "ip:1", time.Minute)
	if n != 1 || reset != time.Minute {
		t.Fatalf("expected new window, got n=%d reset=%v", n, reset)
	}
}

func TestMemoryCounter_KeysIndependentAndReset(t *testing.T) {
	m := NewMemoryCounter()
	ctx := context.Background()
	_, _, _ = m.Incr(ctx, "a", time.Minute)
	_, _, _ = m.Incr(ctx, "a", time.Minute)
	if n, _, _ := m.Incr(ctx, "b", time.Minute); n != 1 {
		t.Fatalf("expected independent key, got %d", n)
	}
	m.Reset()
	if n, _, _ := m.Incr(ctx, "a", time.Minute); n != 1 {
		t.Fatalf("expected a fresh window after Reset, got %d", n)
	}
}

func TestMemoryCounter_CleanupEvictsExpired(t *testing.T) {
	m := NewMemoryCounter()
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_, _, _ = m.Incr(ctx, "old", time.Second)
	now = now.Add(time.Minute)
	m.cleanupN = 4999
	_, _, _ = m.Incr(ctx, "new", time.Minute)

	if _, ok := m.buckets["old"]; ok || len(m.buckets) != 1 {
		t.Fatalf("expected expired key to be evicted, have %d keys", len(m.buckets))
	}
}

func TestMemoryCounter_Concurrent(t *testing.T) {
	m := NewMemoryCounter()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = m.Incr(ctx, "k", time.Minute)
		}()
	}
	wg.Wait()
	if n, _, _ := m.Incr(ctx, "k", time.Minute); n != 51 {
		t.Fatalf("expected 51, got %d", n)
	}
}
