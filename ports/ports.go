// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/wsgate/domain/session"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Counter Store Port
// -----------------------------------------------------------------------------

// ErrStoreUnavailable is returned when the backing store cannot be reached
// after the limiter's single retry.
var ErrStoreUnavailable = errors.New("counter store unavailable")

// CounterStore persists rate limit counters in a shared store.
type CounterStore interface {
	// Incr atomically increments the counter at key and returns the
	// post-increment value. When the increment creates the counter, the TTL
	// is applied in the same atomic step so a window can never outlive its
	// expiry (a read-then-write pair would race on exactly that).
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}

// -----------------------------------------------------------------------------
// Connection Pool Port
// -----------------------------------------------------------------------------

// ErrPoolExhausted is returned when no connection becomes free within the
// caller's timeout.
var ErrPoolExhausted = errors.New("connection pool exhausted")

// PoolStats reports pool utilization for the health surface.
type PoolStats struct {
	Active int `json:"active"`
	Idle   int `json:"idle"`
	Max    int `json:"max"`
}

// Lease is a temporary, exclusive hand-out of one pool slot.
type Lease interface {
	// Release returns the slot to the pool. Idempotent: releasing twice is
	// a no-op, logged as an anomaly by the implementation.
	Release()
}

// ConnPool owns a bounded set of connections to the shared store and hands
// out leases. Exactly one pool exists per process.
type ConnPool interface {
	// Acquire blocks until a slot is free or ctx is done. A cancelled or
	// timed-out acquire holds no resource.
	Acquire(ctx context.Context) (Lease, error)

	// Stats returns current utilization without blocking on the network.
	Stats() PoolStats

	// Ping round-trips the store and returns the observed latency.
	Ping(ctx context.Context) (time.Duration, error)

	// Close drains in-flight leases for a bounded grace period, then
	// releases all resources.
	Close(ctx context.Context) error
}

// -----------------------------------------------------------------------------
// Session Registry Port
// -----------------------------------------------------------------------------

// SessionRegistry tracks live WebSocket sessions. Implementations must stay
// safe under arbitrary interleaving without a global lock.
type SessionRegistry interface {
	// Register creates a record for a newly admitted session. Fails with
	// session.ErrDuplicateSession if the id is already present.
	Register(id, clientID, remoteIP string) (session.Record, error)

	// Touch records one received message of the given size. Fails with
	// session.ErrUnknownSession if the id is absent.
	Touch(id string, bytes int64) error

	// RecordSent records one delivered message of the given size.
	RecordSent(id string, bytes int64) error

	// Get returns a copy of the record for id.
	Get(id string) (session.Record, error)

	// Close transitions the session to Closed and removes the record after
	// a short grace period. Idempotent.
	Close(id string)

	// Snapshot aggregates all live sessions for the stats endpoint.
	Snapshot() session.Snapshot
}
