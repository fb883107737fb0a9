// Package app contains the application services that orchestrate domain
// logic with the adapters behind ports.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/wsgate/adapters/metrics"
	"github.com/artpar/wsgate/domain/ratelimit"
	"github.com/artpar/wsgate/ports"
)

// LimiterConfig configures the rate limiter service.
type LimiterConfig struct {
	// Scopes maps each traffic class to its window config. A scope missing
	// from the map falls back to Default.
	Scopes  map[ratelimit.Scope]ratelimit.Config
	Default ratelimit.Config

	// FailOpen admits traffic when the store is unreachable. Off by
	// default: an unreachable store denies.
	FailOpen bool

	// RetryBackoff is the pause before the single store retry (default: 50ms).
	RetryBackoff time.Duration
}

// Limiter enforces fixed-window rate limits against a shared counter store.
// Config is swappable at runtime for hot reload.
type Limiter struct {
	store   ports.CounterStore
	clock   ports.Clock
	metrics *metrics.Collector
	logger  zerolog.Logger

	mu  sync.RWMutex
	cfg LimiterConfig
}

// NewLimiter creates a rate limiter service.
func NewLimiter(store ports.CounterStore, clk ports.Clock, cfg LimiterConfig, m *metrics.Collector, logger zerolog.Logger) *Limiter {
	return &Limiter{
		store:   store,
		clock:   clk,
		cfg:     normalizeLimiterConfig(cfg),
		metrics: m,
		logger:  logger,
	}
}

func normalizeLimiterConfig(cfg LimiterConfig) LimiterConfig {
	if cfg.Default.Limit <= 0 {
		cfg.Default = ratelimit.Config{Limit: 100, Window: time.Minute}
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 50 * time.Millisecond
	}
	return cfg
}

// UpdateConfig swaps the limiter config. In-flight windows keep counting
// under their existing keys; only the decision thresholds change.
func (l *Limiter) UpdateConfig(cfg LimiterConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = normalizeLimiterConfig(cfg)
}

func (l *Limiter) snapshotConfig() LimiterConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

func configFor(cfg LimiterConfig, scope ratelimit.Scope) ratelimit.Config {
	if sc, ok := cfg.Scopes[scope]; ok && sc.Limit > 0 {
		return sc
	}
	return cfg.Default
}

// Allow counts one unit of traffic for (scope, identity) and decides
// whether it fits the window. The increment happens before the decision,
// so a denied unit still consumed its count; that keeps the check a single
// atomic store operation.
//
// When the store is unreachable after one retry, the configured policy
// applies: fail-open admits with a degraded decision, fail-closed returns
// ports.ErrStoreUnavailable.
func (l *Limiter) Allow(ctx context.Context, scope ratelimit.Scope, identity string) (ratelimit.Decision, error) {
	lcfg := l.snapshotConfig()
	cfg := configFor(lcfg, scope)
	now := l.clock.Now()
	key := ratelimit.Key(scope, identity, ratelimit.WindowStart(now, cfg.Window))

	count, err := l.incrWithRetry(ctx, key, cfg.Window, lcfg.RetryBackoff)
	if err != nil {
		l.metrics.StoreErrors.Inc()
		if lcfg.FailOpen {
			l.metrics.DegradedDecisions.WithLabelValues("fail_open").Inc()
			l.logger.Warn().
				Err(err).
				Str("scope", string(scope)).
				Str("identity", identity).
				Msg("store unreachable, admitting fail-open")
			return ratelimit.Decision{
				Allowed:   true,
				Limit:     cfg.Limit,
				Remaining: cfg.Limit,
				ResetAt:   ratelimit.WindowStart(now, cfg.Window).Add(cfg.Window),
			}, nil
		}
		l.metrics.DegradedDecisions.WithLabelValues("fail_closed").Inc()
		l.logger.Error().
			Err(err).
			Str("scope", string(scope)).
			Str("identity", identity).
			Msg("store unreachable, denying fail-closed")
		return ratelimit.Decision{}, fmt.Errorf("rate limit check: %w", ports.ErrStoreUnavailable)
	}

	decision := ratelimit.Decide(count, cfg, now)
	if !decision.Allowed {
		l.metrics.RateLimitHits.WithLabelValues(string(scope)).Inc()
		l.logger.Debug().
			Str("scope", string(scope)).
			Str("identity", identity).
			Int64("count", count).
			Int("limit", cfg.Limit).
			Msg("rate limit exceeded")
	}
	return decision, nil
}

func (l *Limiter) incrWithRetry(ctx context.Context, key string, window, backoff time.Duration) (int64, error) {
	count, err := l.store.Incr(ctx, key, window)
	if err == nil {
		return count, nil
	}

	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	return l.store.Incr(ctx, key, window)
}
