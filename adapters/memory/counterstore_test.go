package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/artpar/wsgate/adapters/memory"
)

func newStore(t *testing.T) *memory.CounterStore {
	t.Helper()
	s := memory.NewCounterStore(memory.CounterStoreConfig{})
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCounterStore_IncrSequence(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		got, err := s.Incr(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("Incr() error = %v", err)
		}
		if got != want {
			t.Errorf("Incr() = %d, want %d", got, want)
		}
	}
}

func TestCounterStore_IndependentKeys(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if _, err := s.Incr(ctx, "a", time.Minute); err != nil {
		t.Fatalf("Incr(a) error = %v", err)
	}
	got, err := s.Incr(ctx, "b", time.Minute)
	if err != nil {
		t.Fatalf("Incr(b) error = %v", err)
	}
	if got != 1 {
		t.Errorf("Incr(b) = %d, want 1 (keys must be independent)", got)
	}
}

func TestCounterStore_TTLExpiryResets(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if _, err := s.Incr(ctx, "k", 10*time.Millisecond); err != nil {
		t.Fatalf("Incr() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	got, err := s.Incr(ctx, "k", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Incr() error = %v", err)
	}
	if got != 1 {
		t.Errorf("Incr() after expiry = %d, want 1 (fresh counter)", got)
	}
}

func TestCounterStore_ConcurrentIncrsAreSequential(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	results := make([]int64, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.Incr(ctx, "shared", time.Minute)
			if err != nil {
				t.Errorf("Incr() error = %v", err)
				return
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	// Every value 1..n must appear exactly once: no two callers may observe
	// the same count.
	seen := make(map[int64]bool, n)
	for _, v := range results {
		if v < 1 || v > n {
			t.Fatalf("count %d out of range [1,%d]", v, n)
		}
		if seen[v] {
			t.Fatalf("count %d observed twice", v)
		}
		seen[v] = true
	}
}

func TestCounterStore_CleanupDropsExpired(t *testing.T) {
	s := memory.NewCounterStore(memory.CounterStoreConfig{CleanupInterval: 10 * time.Millisecond})
	defer s.Close()
	ctx := context.Background()

	if _, err := s.Incr(ctx, "short", 5*time.Millisecond); err != nil {
		t.Fatalf("Incr() error = %v", err)
	}
	if _, err := s.Incr(ctx, "long", time.Hour); err != nil {
		t.Fatalf("Incr() error = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for s.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := s.Len(); got != 1 {
		t.Errorf("Len() after cleanup = %d, want 1", got)
	}
}

func TestCounterStore_CloseIdempotent(t *testing.T) {
	s := memory.NewCounterStore(memory.CounterStoreConfig{})
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
