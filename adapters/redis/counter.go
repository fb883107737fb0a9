package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/artpar/wsgate/ports"
)

// incrWithExpire increments a counter and, when the increment creates it,
// sets the TTL in the same script invocation. Splitting INCR and EXPIRE
// across two round-trips would leave a crash window where the counter
// never expires.
var incrWithExpire = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// CounterStore implements ports.CounterStore against Redis, routing every
// command through a pool lease.
type CounterStore struct {
	pool   *Pool
	logger zerolog.Logger
}

// NewCounterStore creates a counter store backed by the given pool.
func NewCounterStore(pool *Pool, logger zerolog.Logger) *CounterStore {
	return &CounterStore{pool: pool, logger: logger}
}

// Incr atomically increments key and returns the post-increment value.
func (s *CounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	l, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer l.Release()

	ttlSeconds := int64(ttl / time.Second)
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	count, err := incrWithExpire.Run(ctx, s.pool.client, []string{key}, ttlSeconds).Int64()
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("counter increment failed")
		return 0, fmt.Errorf("incr %s: %w", key, ports.ErrStoreUnavailable)
	}
	return count, nil
}

// Ping verifies the store is reachable.
func (s *CounterStore) Ping(ctx context.Context) error {
	_, err := s.pool.Ping(ctx)
	return err
}

// Close is a no-op; the pool owns the client and its lifecycle.
func (s *CounterStore) Close() error {
	return nil
}

// Ensure interface compliance.
var _ ports.CounterStore = (*CounterStore)(nil)
