package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/artpar/wsgate/app"
	"github.com/artpar/wsgate/domain/admission"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendQueueSize = 32
)

// Envelope is the message frame exchanged with WebSocket clients.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	From      string          `json:"from,omitempty"`
	Delivered int             `json:"delivered,omitempty"`
}

// WSHandler upgrades admitted connections and runs their message loops.
type WSHandler struct {
	admission *app.Admission
	hub       *Hub
	logger    zerolog.Logger
	upgrader  websocket.Upgrader
}

// NewWSHandler creates a WebSocket handler.
func NewWSHandler(adm *app.Admission, hub *Hub, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		admission: adm,
		hub:       hub,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin policy is enforced by the admission service before
			// the upgrade, with a clean HTTP status.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve admits and upgrades one client connection. Admission runs before
// the upgrade so a denial is an ordinary HTTP response, not a half-open
// socket.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	remoteIP := extractIP(r)
	origin := r.Header.Get("Origin")

	rec, rej := h.admission.AdmitConnection(r.Context(), clientID, remoteIP, origin)
	if rej != nil {
		writeRejection(w, rej, 0)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn().Err(err).Str("client_id", clientID).Msg("upgrade failed")
		h.admission.CloseSession(rec.ID)
		return
	}

	client := &wsClient{
		sessionID: rec.ID,
		clientID:  clientID,
		send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
	}
	h.hub.add(client)

	go h.writeLoop(conn, client)
	h.readLoop(r.Context(), conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *wsClient) {
	defer func() {
		h.hub.remove(client.sessionID)
		h.admission.CloseSession(client.sessionID)
		conn.Close()
		h.logger.Info().
			Str("session_id", client.sessionID).
			Str("client_id", client.clientID).
			Msg("session closed")
	}()

	// The hard read limit sits above the admission ceiling so an oversize
	// message can be read, rejected and reported without tearing down the
	// connection. Anything past the hard limit is abuse and drops the
	// socket outright.
	maxBytes := h.admission.MaxMessageBytes()
	conn.SetReadLimit(maxBytes*2 + 1024)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	h.enqueue(client, Envelope{Type: "connected", SessionID: client.sessionID})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug().Err(err).Str("session_id", client.sessionID).Msg("read error")
			}
			return
		}

		rej := h.admission.AdmitMessage(ctx, client.sessionID, client.clientID, int64(len(data)))
		if rej != nil {
			if !h.handleRejection(conn, client, rej) {
				return
			}
			continue
		}

		h.handleMessage(client, data)
	}
}

// handleRejection delivers a denial to the client. It returns false when
// the connection must close.
func (h *WSHandler) handleRejection(conn *websocket.Conn, client *wsClient, rej *admission.Rejection) bool {
	if rej.WSCode == admission.WSCloseMessageTooBig && !h.admission.CloseOnOversize() {
		// Reject the message, keep the connection.
		h.enqueue(client, Envelope{Type: "error", Error: rej.Message})
		return true
	}

	msg := websocket.FormatCloseMessage(rej.WSCode, rej.Message)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return false
}

func (h *WSHandler) handleMessage(client *wsClient, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.enqueue(client, Envelope{Type: "error", Error: "invalid message: expected JSON envelope"})
		return
	}

	switch env.Type {
	case "ping":
		h.enqueue(client, Envelope{Type: "pong", Data: env.Data})
	case "echo":
		h.enqueue(client, Envelope{Type: "echo", Data: env.Data, From: client.clientID})
	case "broadcast":
		payload, err := json.Marshal(Envelope{Type: "broadcast", Data: env.Data, From: client.clientID})
		if err != nil {
			h.enqueue(client, Envelope{Type: "error", Error: "invalid broadcast payload"})
			return
		}
		delivered := h.hub.Broadcast(payload, client.sessionID)
		h.enqueue(client, Envelope{Type: "broadcast_ack", Delivered: delivered})
	default:
		h.enqueue(client, Envelope{Type: "error", Error: "unknown message type: " + env.Type})
	}
}

// enqueue marshals and queues one envelope for the client. After shutdown
// the payload is dropped; the send channel stays open so a reader that is
// still mid-message never trips on it.
func (h *WSHandler) enqueue(client *wsClient, env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case <-client.done:
	case client.send <- payload:
	default:
		h.logger.Warn().Str("session_id", client.sessionID).Msg("send queue full, dropping message")
	}
}

func (h *WSHandler) writeLoop(conn *websocket.Conn, client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case payload := <-client.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
			h.admission.RecordSent(client.sessionID, int64(len(payload)))
		case <-client.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
