// Package ratelimit provides pure fixed-window rate limiting logic.
// All functions are deterministic - same input always produces same output.
// The atomic increment itself lives behind ports.CounterStore; this package
// only maps a post-increment count onto an admission decision.
package ratelimit

import (
	"strconv"
	"time"
)

// Scope partitions counters by traffic class so HTTP requests, WebSocket
// connects and WebSocket messages never share a budget.
type Scope string

const (
	ScopeHTTP      Scope = "http"
	ScopeWSConnect Scope = "ws_connect"
	ScopeWSMessage Scope = "ws_msg"
)

// Config holds rate limit configuration (value type).
type Config struct {
	Limit  int           // Requests per window
	Window time.Duration // Window duration
}

// Decision represents the outcome of a rate limit check (value type).
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int           // Requests remaining in window
	ResetAt    time.Time     // When the current window ends
	RetryAfter time.Duration // If not allowed, how long until a retry can succeed
	Reason     string        // If not allowed, why
}

// Reasons for denial.
const (
	ReasonLimitExceeded = "rate_limit_exceeded"
)

// WindowStart truncates now to the start of its fixed window.
func WindowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

// Key builds the counter key for one (scope, identity, window) triple.
// Embedding the window start in the key makes every window an independent
// counter, so a single atomic increment is sufficient on the store side.
func Key(scope Scope, identity string, windowStart time.Time) string {
	return "ratelimit:" + string(scope) + ":" + identity + ":" + strconv.FormatInt(windowStart.Unix(), 10)
}

// Decide maps a post-increment counter value onto an admission decision.
// This is a PURE function - no side effects, deterministic.
//
// count is the value AFTER the atomic increment for this call, so the
// first request of a window arrives with count == 1.
func Decide(count int64, cfg Config, now time.Time) Decision {
	windowStart := WindowStart(now, cfg.Window)
	resetAt := windowStart.Add(cfg.Window)

	if count <= int64(cfg.Limit) {
		return Decision{
			Allowed:   true,
			Limit:     cfg.Limit,
			Remaining: cfg.Limit - int(count),
			ResetAt:   resetAt,
		}
	}

	retryAfter := resetAt.Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Decision{
		Allowed:    false,
		Limit:      cfg.Limit,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
		Reason:     ReasonLimitExceeded,
	}
}
