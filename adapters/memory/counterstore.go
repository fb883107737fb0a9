package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/artpar/wsgate/ports"
)

// counterShard is a single shard of the counter store.
type counterShard struct {
	mu      sync.Mutex
	entries map[string]*counterEntry
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// CounterStore is a sharded in-memory implementation of ports.CounterStore.
// Uses sharding to reduce lock contention for high throughput. Intended for
// development and tests; production deployments use the Redis adapter so
// counters are shared across processes.
type CounterStore struct {
	shards    []*counterShard
	numShards int
	cleanup   *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// CounterStoreConfig configures the in-memory counter store.
type CounterStoreConfig struct {
	NumShards       int           // Number of shards (default: 32)
	CleanupInterval time.Duration // How often to drop expired counters (default: 1m)
}

// NewCounterStore creates a new sharded in-memory counter store.
func NewCounterStore(cfg CounterStoreConfig) *CounterStore {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	s := &CounterStore{
		shards:    make([]*counterShard, cfg.NumShards),
		numShards: cfg.NumShards,
		done:      make(chan struct{}),
	}

	for i := range s.shards {
		s.shards[i] = &counterShard{
			entries: make(map[string]*counterEntry),
		}
	}

	// Start background cleanup
	s.cleanup = time.NewTicker(cfg.CleanupInterval)
	go s.cleanupLoop()

	return s
}

// getShard returns the shard for a given key using consistent hashing.
func (s *CounterStore) getShard(key string) *counterShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(s.numShards)]
}

// Incr atomically increments the counter at key, creating it with the given
// TTL when absent or expired. Creation and expiry assignment happen under
// one shard lock, mirroring the single-round-trip guarantee of the Redis
// script.
func (s *CounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := time.Now()
	shard := s.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	ent, ok := shard.entries[key]
	if !ok || now.After(ent.expiresAt) {
		ent = &counterEntry{expiresAt: now.Add(ttl)}
		shard.entries[key] = ent
	}
	ent.count++
	return ent.count, nil
}

// Ping always succeeds: the store is in-process.
func (s *CounterStore) Ping(ctx context.Context) error {
	return nil
}

// cleanupLoop periodically removes expired counters.
func (s *CounterStore) cleanupLoop() {
	for {
		select {
		case <-s.cleanup.C:
			s.doCleanup()
		case <-s.done:
			return
		}
	}
}

// doCleanup removes counters whose TTL has elapsed.
func (s *CounterStore) doCleanup() {
	now := time.Now()

	for _, shard := range s.shards {
		shard.mu.Lock()
		for key, ent := range shard.entries {
			if now.After(ent.expiresAt) {
				delete(shard.entries, key)
			}
		}
		shard.mu.Unlock()
	}
}

// Close stops the cleanup goroutine.
func (s *CounterStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cleanup.Stop()
	})
	return nil
}

// Clear removes all counters (for testing).
func (s *CounterStore) Clear() {
	for _, shard := range s.shards {
		shard.mu.Lock()
		shard.entries = make(map[string]*counterEntry)
		shard.mu.Unlock()
	}
}

// Len returns the total number of counters across all shards (for testing).
func (s *CounterStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		total += len(shard.entries)
		shard.mu.Unlock()
	}
	return total
}

// Ensure interface compliance.
var _ ports.CounterStore = (*CounterStore)(nil)
