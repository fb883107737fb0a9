package http

import (
	"sync"

	"github.com/rs/zerolog"
)

// wsClient is one connected session's outbound queue. Writes go through the
// queue so a single goroutine owns the socket. The send channel is never
// closed; shutdown is signalled on done, so a reader mid-message can still
// enqueue safely and have the payload dropped.
type wsClient struct {
	sessionID string
	clientID  string
	send      chan []byte
	done      chan struct{}
}

// Hub tracks connected WebSocket clients and fans out broadcasts.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
	logger  zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*wsClient),
		logger:  logger,
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.sessionID] = c
}

func (h *Hub) remove(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[sessionID]; ok {
		delete(h.clients, sessionID)
		close(c.done)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll drains the hub on shutdown. Signalling done makes each writer
// send a close frame and drop the connection, which unwinds the reader and
// its session record.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.done)
	}
}

// Broadcast queues payload for every client except the sender. A client
// whose queue is full is skipped rather than blocking the sender.
func (h *Hub) Broadcast(payload []byte, exceptSessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, c := range h.clients {
		if id == exceptSessionID {
			continue
		}
		select {
		case c.send <- payload:
			delivered++
		default:
			h.logger.Warn().
				Str("session_id", id).
				Str("client_id", c.clientID).
				Msg("send queue full, dropping broadcast")
		}
	}
	return delivered
}
