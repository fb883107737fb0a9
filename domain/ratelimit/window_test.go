package ratelimit_test

import (
	"testing"
	"time"

	"github.com/artpar/wsgate/domain/ratelimit"
)

var (
	baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	cfg      = ratelimit.Config{
		Limit:  10,
		Window: time.Minute,
	}
)

func TestDecide_AllowsWithinLimit(t *testing.T) {
	d := ratelimit.Decide(6, cfg, baseTime.Add(30*time.Second))

	if !d.Allowed {
		t.Error("expected request to be allowed")
	}
	if d.Remaining != 4 { // 10 - 6 = 4
		t.Errorf("remaining = %d, want 4", d.Remaining)
	}
	if !d.ResetAt.Equal(baseTime.Add(time.Minute)) {
		t.Errorf("resetAt = %v, want %v", d.ResetAt, baseTime.Add(time.Minute))
	}
}

func TestDecide_AllowsLastUnit(t *testing.T) {
	d := ratelimit.Decide(10, cfg, baseTime)

	if !d.Allowed {
		t.Error("expected last unit of budget to be allowed")
	}
	if d.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", d.Remaining)
	}
}

func TestDecide_DeniesOverLimit(t *testing.T) {
	now := baseTime.Add(15 * time.Second)
	d := ratelimit.Decide(11, cfg, now)

	if d.Allowed {
		t.Error("expected request to be denied")
	}
	if d.Reason != ratelimit.ReasonLimitExceeded {
		t.Errorf("reason = %q, want %q", d.Reason, ratelimit.ReasonLimitExceeded)
	}
	if d.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", d.Remaining)
	}
	if d.RetryAfter != 45*time.Second {
		t.Errorf("retryAfter = %v, want 45s", d.RetryAfter)
	}
}

func TestDecide_RetryAfterNeverExceedsWindow(t *testing.T) {
	d := ratelimit.Decide(11, cfg, baseTime)

	if d.RetryAfter > cfg.Window {
		t.Errorf("retryAfter = %v, want <= %v", d.RetryAfter, cfg.Window)
	}
}

func TestDecide_FirstRequestOfWindow(t *testing.T) {
	d := ratelimit.Decide(1, cfg, baseTime)

	if !d.Allowed {
		t.Error("expected first request to be allowed")
	}
	if d.Remaining != 9 {
		t.Errorf("remaining = %d, want 9", d.Remaining)
	}
}

func TestDecide_Deterministic(t *testing.T) {
	d1 := ratelimit.Decide(7, cfg, baseTime)
	d2 := ratelimit.Decide(7, cfg, baseTime)

	if d1 != d2 {
		t.Error("Decide should be deterministic")
	}
}

func TestWindowStart(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		window time.Duration
		want   time.Time
	}{
		{
			name:   "mid window",
			now:    baseTime.Add(37 * time.Second),
			window: time.Minute,
			want:   baseTime,
		},
		{
			name:   "exact boundary",
			now:    baseTime,
			window: time.Minute,
			want:   baseTime,
		},
		{
			name:   "short window",
			now:    baseTime.Add(7 * time.Second),
			window: 5 * time.Second,
			want:   baseTime.Add(5 * time.Second),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ratelimit.WindowStart(tt.now, tt.window)
			if !got.Equal(tt.want) {
				t.Errorf("WindowStart() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKey_DistinctPerWindow(t *testing.T) {
	w1 := ratelimit.WindowStart(baseTime, time.Minute)
	w2 := ratelimit.WindowStart(baseTime.Add(time.Minute), time.Minute)

	k1 := ratelimit.Key(ratelimit.ScopeHTTP, "10.0.0.1", w1)
	k2 := ratelimit.Key(ratelimit.ScopeHTTP, "10.0.0.1", w2)

	if k1 == k2 {
		t.Errorf("keys for consecutive windows must differ, both = %q", k1)
	}
}

func TestKey_DistinctPerScope(t *testing.T) {
	w := ratelimit.WindowStart(baseTime, time.Minute)

	kHTTP := ratelimit.Key(ratelimit.ScopeHTTP, "client-1", w)
	kMsg := ratelimit.Key(ratelimit.ScopeWSMessage, "client-1", w)

	if kHTTP == kMsg {
		t.Errorf("keys for different scopes must differ, both = %q", kHTTP)
	}
}

// Benchmark to ensure the decision mapping is fast
func BenchmarkDecide(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ratelimit.Decide(5, cfg, baseTime)
	}
}
