// Package session provides value types and pure validation for WebSocket
// session tracking. Mutation and concurrency live behind
// ports.SessionRegistry; implementations are in adapters/.
package session

import (
	"errors"
	"time"
)

// MaxClientIDLength bounds client-supplied identifiers.
const MaxClientIDLength = 100

// State is the lifecycle state of a session.
type State string

const (
	StateOpen    State = "open"
	StateClosing State = "closing"
	StateClosed  State = "closed"
)

// Record tracks one live WebSocket session (value type).
type Record struct {
	ID           string
	ClientID     string
	RemoteIP     string
	OpenedAt     time.Time
	LastActivity time.Time

	MessagesReceived int64
	MessagesSent     int64
	BytesReceived    int64
	BytesSent        int64

	State State
}

// Snapshot is a point-in-time aggregate over all sessions (value type).
// Served by the stats endpoint; building it must not block writers for
// more than a bounded critical section.
type Snapshot struct {
	OpenSessions  int              `json:"open_sessions"`
	TotalMessages int64            `json:"total_messages"`
	TotalBytes    int64            `json:"total_bytes"`
	Sessions      []SessionSummary `json:"sessions,omitempty"`
}

// SessionSummary is the per-session view exposed by the stats endpoint.
type SessionSummary struct {
	ClientID         string  `json:"client_id"`
	ConnectedSeconds float64 `json:"connected_seconds"`
	MessagesReceived int64   `json:"messages_received"`
	MessagesSent     int64   `json:"messages_sent"`
	BytesReceived    int64   `json:"bytes_received"`
	BytesSent        int64   `json:"bytes_sent"`
}

// Registry errors.
var (
	ErrDuplicateSession = errors.New("session id already registered")
	ErrUnknownSession   = errors.New("unknown session id")
)

// ValidateClientID checks a client-supplied identifier before admission.
func ValidateClientID(id string) error {
	if id == "" {
		return errors.New("client id is empty")
	}
	if len(id) > MaxClientIDLength {
		return errors.New("client id exceeds maximum length")
	}
	return nil
}

// Duration returns how long the session has been connected as of now.
func (r Record) Duration(now time.Time) time.Duration {
	return now.Sub(r.OpenedAt)
}

// Summary converts a record to its stats-endpoint view.
func (r Record) Summary(now time.Time) SessionSummary {
	return SessionSummary{
		ClientID:         r.ClientID,
		ConnectedSeconds: r.Duration(now).Seconds(),
		MessagesReceived: r.MessagesReceived,
		MessagesSent:     r.MessagesSent,
		BytesReceived:    r.BytesReceived,
		BytesSent:        r.BytesSent,
	}
}
