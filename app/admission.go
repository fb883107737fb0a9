package app

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/artpar/wsgate/adapters/metrics"
	"github.com/artpar/wsgate/domain/admission"
	"github.com/artpar/wsgate/domain/ratelimit"
	"github.com/artpar/wsgate/domain/session"
	"github.com/artpar/wsgate/ports"
)

// DefaultMaxMessageBytes is the ceiling on a single WebSocket message.
const DefaultMaxMessageBytes = 16384

// AdmissionConfig configures the admission service.
type AdmissionConfig struct {
	// AllowedOrigins whitelists browser origins for WebSocket upgrades.
	// Empty allows every origin.
	AllowedOrigins []string

	// MaxMessageBytes caps a single message (default: 16384). A message of
	// exactly this size is admitted.
	MaxMessageBytes int64

	// CloseOnOversize escalates an oversize message from reject-and-keep
	// to closing the connection.
	CloseOnOversize bool
}

// Admission decides whether requests, connections and messages may proceed.
// A nil Rejection means admitted. Denials leave no trace in the session
// registry; only the rate limit counter, which by construction counts the
// attempt, is touched.
type Admission struct {
	limiter  *Limiter
	registry ports.SessionRegistry
	ids      ports.IDGenerator
	metrics  *metrics.Collector
	logger   zerolog.Logger

	mu  sync.RWMutex
	cfg AdmissionConfig
}

// NewAdmission creates an admission service.
func NewAdmission(limiter *Limiter, registry ports.SessionRegistry, ids ports.IDGenerator, cfg AdmissionConfig, m *metrics.Collector, logger zerolog.Logger) *Admission {
	return &Admission{
		limiter:  limiter,
		registry: registry,
		ids:      ids,
		cfg:      normalizeAdmissionConfig(cfg),
		metrics:  m,
		logger:   logger,
	}
}

func normalizeAdmissionConfig(cfg AdmissionConfig) AdmissionConfig {
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}
	return cfg
}

// UpdateConfig swaps the admission config. Open sessions pick up the new
// message ceiling on their next message.
func (a *Admission) UpdateConfig(cfg AdmissionConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = normalizeAdmissionConfig(cfg)
}

func (a *Admission) snapshotConfig() AdmissionConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// MaxMessageBytes returns the configured per-message ceiling.
func (a *Admission) MaxMessageBytes() int64 {
	return a.snapshotConfig().MaxMessageBytes
}

// CloseOnOversize reports whether oversize messages should end the session.
func (a *Admission) CloseOnOversize() bool {
	return a.snapshotConfig().CloseOnOversize
}

func (a *Admission) record(scope ratelimit.Scope, outcome string) {
	a.metrics.AdmissionDecisions.WithLabelValues(string(scope), outcome).Inc()
}

// AdmitRequest admits one HTTP request from identity. The decision is
// returned even on denial so the caller can set rate limit headers.
func (a *Admission) AdmitRequest(ctx context.Context, identity string) (ratelimit.Decision, *admission.Rejection) {
	d, err := a.limiter.Allow(ctx, ratelimit.ScopeHTTP, identity)
	if err != nil {
		a.record(ratelimit.ScopeHTTP, "error")
		return d, rejectionForError(err)
	}
	if !d.Allowed {
		a.record(ratelimit.ScopeHTTP, "denied")
		return d, &admission.ErrRateLimited
	}
	a.record(ratelimit.ScopeHTTP, "allowed")
	return d, nil
}

// AdmitConnection admits one WebSocket upgrade and registers the session.
// Policy checks run before the rate limit check so an invalid request never
// consumes budget.
func (a *Admission) AdmitConnection(ctx context.Context, clientID, remoteIP, origin string) (session.Record, *admission.Rejection) {
	if !a.originAllowed(origin) {
		a.record(ratelimit.ScopeWSConnect, "denied")
		a.logger.Warn().Str("origin", origin).Msg("origin rejected")
		return session.Record{}, &admission.ErrOriginForbidden
	}
	if err := session.ValidateClientID(clientID); err != nil {
		a.record(ratelimit.ScopeWSConnect, "denied")
		return session.Record{}, &admission.ErrInvalidClientID
	}

	// WebSocket budgets partition by the client-supplied id, not the
	// remote address: the id is the session's identity.
	d, err := a.limiter.Allow(ctx, ratelimit.ScopeWSConnect, clientID)
	if err != nil {
		a.record(ratelimit.ScopeWSConnect, "error")
		return session.Record{}, rejectionForError(err)
	}
	if !d.Allowed {
		a.record(ratelimit.ScopeWSConnect, "denied")
		return session.Record{}, &admission.ErrRateLimited
	}

	rec, err := a.registry.Register(a.ids.New(), clientID, remoteIP)
	if err != nil {
		a.record(ratelimit.ScopeWSConnect, "denied")
		if errors.Is(err, session.ErrDuplicateSession) {
			return session.Record{}, &admission.ErrDuplicateSession
		}
		return session.Record{}, &admission.ErrStoreUnavailable
	}

	a.record(ratelimit.ScopeWSConnect, "allowed")
	a.metrics.OpenSessions.Inc()
	a.logger.Info().
		Str("session_id", rec.ID).
		Str("client_id", clientID).
		Str("remote_ip", remoteIP).
		Msg("session admitted")
	return rec, nil
}

// AdmitMessage admits one inbound message on an open session. The size check
// runs first so an oversize message never consumes rate limit budget. The
// message budget partitions by clientID, like the connect budget.
func (a *Admission) AdmitMessage(ctx context.Context, sessionID, clientID string, size int64) *admission.Rejection {
	maxBytes := a.MaxMessageBytes()
	if size > maxBytes {
		a.record(ratelimit.ScopeWSMessage, "denied")
		a.metrics.OversizeRejects.Inc()
		a.logger.Warn().
			Str("session_id", sessionID).
			Int64("size", size).
			Int64("max", maxBytes).
			Msg("oversize message rejected")
		return &admission.ErrPayloadTooLarge
	}

	d, err := a.limiter.Allow(ctx, ratelimit.ScopeWSMessage, clientID)
	if err != nil {
		a.record(ratelimit.ScopeWSMessage, "error")
		return rejectionForError(err)
	}
	if !d.Allowed {
		a.record(ratelimit.ScopeWSMessage, "denied")
		return &admission.ErrRateLimited
	}

	if err := a.registry.Touch(sessionID, size); err != nil {
		a.record(ratelimit.ScopeWSMessage, "error")
		a.logger.Warn().
			Err(err).
			Str("session_id", sessionID).
			Msg("message on unregistered session")
		return &admission.ErrUnknownSession
	}

	a.record(ratelimit.ScopeWSMessage, "allowed")
	a.metrics.MessageSize.Observe(float64(size))
	a.metrics.MessagesTotal.WithLabelValues("received").Inc()
	return nil
}

// CloseSession records the end of a session.
func (a *Admission) CloseSession(sessionID string) {
	a.registry.Close(sessionID)
	a.metrics.OpenSessions.Dec()
}

// RecordSent records one delivered message for the stats surface.
func (a *Admission) RecordSent(sessionID string, size int64) {
	if err := a.registry.RecordSent(sessionID, size); err != nil {
		return
	}
	a.metrics.MessagesTotal.WithLabelValues("sent").Inc()
}

// Snapshot exposes the registry aggregate for the stats endpoint.
func (a *Admission) Snapshot() session.Snapshot {
	return a.registry.Snapshot()
}

// Session returns the record for one session id.
func (a *Admission) Session(sessionID string) (session.Record, error) {
	return a.registry.Get(sessionID)
}

func (a *Admission) originAllowed(origin string) bool {
	allowedOrigins := a.snapshotConfig().AllowedOrigins
	// Non-browser clients send no Origin header.
	if len(allowedOrigins) == 0 || origin == "" {
		return true
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func rejectionForError(err error) *admission.Rejection {
	switch {
	case errors.Is(err, ports.ErrPoolExhausted):
		return &admission.ErrPoolExhausted
	case errors.Is(err, ports.ErrStoreUnavailable):
		return &admission.ErrStoreUnavailable
	default:
		return &admission.ErrStoreUnavailable
	}
}
