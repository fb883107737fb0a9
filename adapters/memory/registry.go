package memory

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/artpar/wsgate/domain/session"
	"github.com/artpar/wsgate/ports"
)

const registryShardCount = 32

// registryShard guards one slice of the session map. Per-shard locks keep a
// slow session from stalling unrelated ones.
type registryShard struct {
	mu       sync.RWMutex
	sessions map[string]*session.Record
}

// Registry is a sharded in-memory implementation of ports.SessionRegistry.
type Registry struct {
	shards [registryShardCount]*registryShard
	clock  ports.Clock
	grace  time.Duration
}

// RegistryConfig configures the session registry.
type RegistryConfig struct {
	Clock ports.Clock
	// Grace is how long a Closed record stays readable before removal,
	// allowing a final stats read (default: 5s).
	Grace time.Duration
}

// NewRegistry creates a new in-memory session registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Grace <= 0 {
		cfg.Grace = 5 * time.Second
	}
	r := &Registry{
		clock: cfg.Clock,
		grace: cfg.Grace,
	}
	for i := range r.shards {
		r.shards[i] = &registryShard{
			sessions: make(map[string]*session.Record),
		}
	}
	return r
}

// getShard returns the shard for a given session id using consistent hashing.
func (r *Registry) getShard(id string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return r.shards[h.Sum32()%registryShardCount]
}

// Register creates a record for a newly admitted session.
func (r *Registry) Register(id, clientID, remoteIP string) (session.Record, error) {
	now := r.clock.Now()
	shard := r.getShard(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if _, ok := shard.sessions[id]; ok {
		return session.Record{}, session.ErrDuplicateSession
	}

	rec := &session.Record{
		ID:           id,
		ClientID:     clientID,
		RemoteIP:     remoteIP,
		OpenedAt:     now,
		LastActivity: now,
		State:        session.StateOpen,
	}
	shard.sessions[id] = rec
	return *rec, nil
}

// Touch records one received message of the given size.
func (r *Registry) Touch(id string, bytes int64) error {
	shard := r.getShard(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.sessions[id]
	if !ok || rec.State == session.StateClosed {
		return session.ErrUnknownSession
	}
	rec.MessagesReceived++
	rec.BytesReceived += bytes
	rec.LastActivity = r.clock.Now()
	return nil
}

// RecordSent records one delivered message of the given size.
func (r *Registry) RecordSent(id string, bytes int64) error {
	shard := r.getShard(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.sessions[id]
	if !ok || rec.State == session.StateClosed {
		return session.ErrUnknownSession
	}
	rec.MessagesSent++
	rec.BytesSent += bytes
	rec.LastActivity = r.clock.Now()
	return nil
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (session.Record, error) {
	shard := r.getShard(id)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	rec, ok := shard.sessions[id]
	if !ok {
		return session.Record{}, session.ErrUnknownSession
	}
	return *rec, nil
}

// Close transitions the session to Closed and schedules removal after the
// grace period. Closing an unknown or already-Closed session is a no-op.
func (r *Registry) Close(id string) {
	shard := r.getShard(id)
	shard.mu.Lock()
	rec, ok := shard.sessions[id]
	if !ok || rec.State == session.StateClosed {
		shard.mu.Unlock()
		return
	}
	rec.State = session.StateClosed
	shard.mu.Unlock()

	time.AfterFunc(r.grace, func() {
		shard.mu.Lock()
		defer shard.mu.Unlock()
		if cur, ok := shard.sessions[id]; ok && cur.State == session.StateClosed {
			delete(shard.sessions, id)
		}
	})
}

// Snapshot aggregates all live sessions. Each shard is read under its own
// short RLock so writers are never blocked for long.
func (r *Registry) Snapshot() session.Snapshot {
	now := r.clock.Now()
	var snap session.Snapshot

	for _, shard := range r.shards {
		shard.mu.RLock()
		for _, rec := range shard.sessions {
			snap.TotalMessages += rec.MessagesReceived
			snap.TotalBytes += rec.BytesReceived
			if rec.State == session.StateOpen {
				snap.OpenSessions++
				snap.Sessions = append(snap.Sessions, rec.Summary(now))
			}
		}
		shard.mu.RUnlock()
	}
	return snap
}

// Len returns the number of records currently held (for testing).
func (r *Registry) Len() int {
	total := 0
	for _, shard := range r.shards {
		shard.mu.RLock()
		total += len(shard.sessions)
		shard.mu.RUnlock()
	}
	return total
}

// Ensure interface compliance.
var _ ports.SessionRegistry = (*Registry)(nil)
