// Package redis provides the shared-store adapters: a bounded connection
// pool and a counter store with atomic window increments.
package redis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/artpar/wsgate/ports"
)

// Config configures the Redis connection pool.
type Config struct {
	Addr     string
	Password string
	DB       int

	// MaxPoolSize bounds concurrent leases (default: 50).
	MaxPoolSize int
	// AcquireTimeout bounds Acquire when the caller's context carries no
	// deadline of its own (default: 5s).
	AcquireTimeout time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = 50
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 5 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

// Pool is a bounded lease layer over one go-redis client. The client keeps
// its own socket pool sized to MaxPoolSize; the lease channel is what gives
// callers explicit acquire/release semantics and a hard upper bound.
type Pool struct {
	client *redis.Client
	slots  chan struct{}
	cfg    Config
	logger zerolog.Logger
	closed atomic.Bool
}

var (
	sharedMu sync.Mutex
	shared   *Pool
)

// NewPool returns the process-wide pool, creating it on first call. Later
// calls return the existing pool; their config is ignored.
func NewPool(cfg Config, logger zerolog.Logger) *Pool {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		logger.Debug().Msg("redis pool already initialized, reusing")
		return shared
	}
	shared = newPool(cfg, logger)
	return shared
}

// resetShared drops the process-wide pool reference (for testing).
func resetShared() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	shared = nil
}

func newPool(cfg Config, logger zerolog.Logger) *Pool {
	cfg.applyDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxPoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	slots := make(chan struct{}, cfg.MaxPoolSize)
	for i := 0; i < cfg.MaxPoolSize; i++ {
		slots <- struct{}{}
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Int("max_pool_size", cfg.MaxPoolSize).
		Msg("redis pool initialized")

	return &Pool{
		client: client,
		slots:  slots,
		cfg:    cfg,
		logger: logger,
	}
}

// lease is one handed-out pool slot.
type lease struct {
	pool     *Pool
	released atomic.Bool
}

// Release returns the slot. Releasing twice is a no-op.
func (l *lease) Release() {
	if !l.released.CompareAndSwap(false, true) {
		l.pool.logger.Warn().Msg("double release of pool lease")
		return
	}
	l.pool.slots <- struct{}{}
}

// Acquire blocks until a slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (ports.Lease, error) {
	if p.closed.Load() {
		return nil, ports.ErrPoolExhausted
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	select {
	case <-p.slots:
		return &lease{pool: p}, nil
	case <-ctx.Done():
		p.logger.Warn().
			Int("max_pool_size", p.cfg.MaxPoolSize).
			Msg("pool acquire timed out")
		return nil, fmt.Errorf("acquire: %w", ports.ErrPoolExhausted)
	}
}

// Stats reports utilization from the lease channel, no network involved.
func (p *Pool) Stats() ports.PoolStats {
	idle := len(p.slots)
	return ports.PoolStats{
		Active: p.cfg.MaxPoolSize - idle,
		Idle:   idle,
		Max:    p.cfg.MaxPoolSize,
	}
}

// Ping round-trips the store and returns the observed latency.
func (p *Pool) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := p.client.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("redis ping: %w", err)
	}
	return time.Since(start), nil
}

// Close stops new acquires, waits up to ctx for in-flight leases to come
// back, then closes the client.
func (p *Pool) Close(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	reclaimed := 0
	for reclaimed < p.cfg.MaxPoolSize {
		select {
		case <-p.slots:
			reclaimed++
		case <-ctx.Done():
			p.logger.Warn().
				Int("outstanding", p.cfg.MaxPoolSize-reclaimed).
				Msg("pool closed with leases still outstanding")
			return p.client.Close()
		}
	}
	p.logger.Info().Msg("redis pool drained")
	return p.client.Close()
}

// Ensure interface compliance.
var _ ports.ConnPool = (*Pool)(nil)
