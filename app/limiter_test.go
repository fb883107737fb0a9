package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/artpar/wsgate/adapters/clock"
	"github.com/artpar/wsgate/adapters/memory"
	"github.com/artpar/wsgate/adapters/metrics"
	"github.com/artpar/wsgate/app"
	"github.com/artpar/wsgate/domain/ratelimit"
	"github.com/artpar/wsgate/ports"
)

var errStoreDown = errors.New("connection refused")

// flakyStore fails the first n Incr calls, then delegates.
type flakyStore struct {
	inner    ports.CounterStore
	failures int
	calls    int
}

func (f *flakyStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, errStoreDown
	}
	return f.inner.Incr(ctx, key, ttl)
}

func (f *flakyStore) Ping(ctx context.Context) error { return nil }
func (f *flakyStore) Close() error                   { return nil }

func newLimiter(t *testing.T, store ports.CounterStore, cfg app.LimiterConfig) (*app.Limiter, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	return app.NewLimiter(store, fc, cfg, m, zerolog.Nop()), fc
}

func newMemStore(t *testing.T) *memory.CounterStore {
	t.Helper()
	store := memory.NewCounterStore(memory.CounterStoreConfig{})
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	lim, _ := newLimiter(t, newMemStore(t), app.LimiterConfig{
		Default: ratelimit.Config{Limit: 3, Window: time.Minute},
	})

	for i := 0; i < 3; i++ {
		d, err := lim.Allow(context.Background(), ratelimit.ScopeHTTP, "1.2.3.4")
		if err != nil {
			t.Fatalf("Allow() #%d error = %v", i+1, err)
		}
		if !d.Allowed {
			t.Fatalf("Allow() #%d denied, want allowed", i+1)
		}
		if want := 3 - (i + 1); d.Remaining != want {
			t.Errorf("Allow() #%d Remaining = %d, want %d", i+1, d.Remaining, want)
		}
	}

	d, err := lim.Allow(context.Background(), ratelimit.ScopeHTTP, "1.2.3.4")
	if err != nil {
		t.Fatalf("Allow() over limit error = %v", err)
	}
	if d.Allowed {
		t.Error("Allow() over limit = allowed, want denied")
	}
	if d.Reason != ratelimit.ReasonLimitExceeded {
		t.Errorf("Reason = %q, want %q", d.Reason, ratelimit.ReasonLimitExceeded)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want within (0, 1m]", d.RetryAfter)
	}
}

func TestLimiter_IdentitiesAreIndependent(t *testing.T) {
	lim, _ := newLimiter(t, newMemStore(t), app.LimiterConfig{
		Default: ratelimit.Config{Limit: 1, Window: time.Minute},
	})

	if d, _ := lim.Allow(context.Background(), ratelimit.ScopeHTTP, "1.1.1.1"); !d.Allowed {
		t.Fatal("first identity denied, want allowed")
	}
	if d, _ := lim.Allow(context.Background(), ratelimit.ScopeHTTP, "2.2.2.2"); !d.Allowed {
		t.Error("second identity denied, want allowed")
	}
	if d, _ := lim.Allow(context.Background(), ratelimit.ScopeHTTP, "1.1.1.1"); d.Allowed {
		t.Error("first identity second call allowed, want denied")
	}
}

func TestLimiter_ScopesAreIndependent(t *testing.T) {
	lim, _ := newLimiter(t, newMemStore(t), app.LimiterConfig{
		Scopes: map[ratelimit.Scope]ratelimit.Config{
			ratelimit.ScopeHTTP:      {Limit: 1, Window: time.Minute},
			ratelimit.ScopeWSConnect: {Limit: 1, Window: time.Minute},
		},
	})

	lim.Allow(context.Background(), ratelimit.ScopeHTTP, "1.1.1.1")
	if d, _ := lim.Allow(context.Background(), ratelimit.ScopeWSConnect, "1.1.1.1"); !d.Allowed {
		t.Error("ws_connect denied after http consumed its budget, want allowed")
	}
}

func TestLimiter_NewWindowResets(t *testing.T) {
	lim, fc := newLimiter(t, newMemStore(t), app.LimiterConfig{
		Default: ratelimit.Config{Limit: 1, Window: time.Minute},
	})

	lim.Allow(context.Background(), ratelimit.ScopeHTTP, "1.1.1.1")
	if d, _ := lim.Allow(context.Background(), ratelimit.ScopeHTTP, "1.1.1.1"); d.Allowed {
		t.Fatal("second call in window allowed, want denied")
	}

	fc.Advance(time.Minute)
	if d, _ := lim.Allow(context.Background(), ratelimit.ScopeHTTP, "1.1.1.1"); !d.Allowed {
		t.Error("call in fresh window denied, want allowed")
	}
}

func TestLimiter_RetriesOnceThenSucceeds(t *testing.T) {
	store := &flakyStore{inner: newMemStore(t), failures: 1}
	lim, _ := newLimiter(t, store, app.LimiterConfig{
		Default:      ratelimit.Config{Limit: 5, Window: time.Minute},
		RetryBackoff: time.Millisecond,
	})

	d, err := lim.Allow(context.Background(), ratelimit.ScopeHTTP, "1.1.1.1")
	if err != nil {
		t.Fatalf("Allow() error = %v, want retry to recover", err)
	}
	if !d.Allowed {
		t.Error("Allow() denied, want allowed")
	}
	if store.calls != 2 {
		t.Errorf("store calls = %d, want 2", store.calls)
	}
}

func TestLimiter_FailClosedByDefault(t *testing.T) {
	store := &flakyStore{inner: newMemStore(t), failures: 100}
	lim, _ := newLimiter(t, store, app.LimiterConfig{
		Default:      ratelimit.Config{Limit: 5, Window: time.Minute},
		RetryBackoff: time.Millisecond,
	})

	_, err := lim.Allow(context.Background(), ratelimit.ScopeHTTP, "1.1.1.1")
	if !errors.Is(err, ports.ErrStoreUnavailable) {
		t.Errorf("Allow() error = %v, want ErrStoreUnavailable", err)
	}
	if store.calls != 2 {
		t.Errorf("store calls = %d, want exactly one retry", store.calls)
	}
}

func TestLimiter_FailOpenAdmits(t *testing.T) {
	store := &flakyStore{inner: newMemStore(t), failures: 100}
	lim, _ := newLimiter(t, store, app.LimiterConfig{
		Default:      ratelimit.Config{Limit: 5, Window: time.Minute},
		FailOpen:     true,
		RetryBackoff: time.Millisecond,
	})

	d, err := lim.Allow(context.Background(), ratelimit.ScopeHTTP, "1.1.1.1")
	if err != nil {
		t.Fatalf("Allow() error = %v, want fail-open admit", err)
	}
	if !d.Allowed {
		t.Error("Allow() denied, want fail-open admit")
	}
}

func TestLimiter_CancelledContextStopsRetry(t *testing.T) {
	store := &flakyStore{inner: newMemStore(t), failures: 100}
	lim, _ := newLimiter(t, store, app.LimiterConfig{
		Default:      ratelimit.Config{Limit: 5, Window: time.Minute},
		RetryBackoff: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := lim.Allow(ctx, ratelimit.ScopeHTTP, "1.1.1.1")
	if err == nil {
		t.Fatal("Allow() error = nil, want error with cancelled context")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Allow() took %v, want cancellation to skip the backoff", elapsed)
	}
}

func TestLimiter_UpdateConfigAppliesNewLimit(t *testing.T) {
	lim, _ := newLimiter(t, newMemStore(t), app.LimiterConfig{
		Default: ratelimit.Config{Limit: 1, Window: time.Minute},
	})

	if d, err := lim.Allow(context.Background(), ratelimit.ScopeHTTP, "1.1.1.1"); err != nil || !d.Allowed {
		t.Fatalf("Allow() = %+v, %v, want first request admitted", d, err)
	}
	if d, _ := lim.Allow(context.Background(), ratelimit.ScopeHTTP, "1.1.1.1"); d.Allowed {
		t.Fatal("Allow() admitted, want denial at limit 1")
	}

	lim.UpdateConfig(app.LimiterConfig{
		Default: ratelimit.Config{Limit: 10, Window: time.Minute},
	})

	d, err := lim.Allow(context.Background(), ratelimit.ScopeHTTP, "1.1.1.1")
	if err != nil {
		t.Fatalf("Allow() error = %v after reload", err)
	}
	if !d.Allowed {
		t.Error("Allow() denied after limit was raised to 10")
	}
	if d.Limit != 10 {
		t.Errorf("Limit = %d, want 10", d.Limit)
	}
}
