// Package http provides the HTTP and WebSocket surface of the gateway.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/wsgate/adapters/metrics"
	"github.com/artpar/wsgate/app"
	"github.com/artpar/wsgate/domain/admission"
	"github.com/artpar/wsgate/pkg/jsonapi"
	"github.com/artpar/wsgate/ports"
)

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// HealthResponse represents a basic health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// DetailedHealthResponse is the full view served by /health/detailed.
type DetailedHealthResponse struct {
	Status   string          `json:"status"`
	Store    StoreHealth     `json:"store"`
	Pool     ports.PoolStats `json:"pool"`
	Sessions SessionHealth   `json:"sessions"`
	Runtime  RuntimeHealth   `json:"runtime"`
}

// RuntimeHealth reports process-level resource usage.
type RuntimeHealth struct {
	Goroutines int    `json:"goroutines"`
	AllocBytes uint64 `json:"alloc_bytes"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
}

// StoreHealth reports reachability of the shared counter store.
type StoreHealth struct {
	Reachable bool    `json:"reachable"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// SessionHealth reports the session registry aggregate.
type SessionHealth struct {
	Open          int   `json:"open"`
	TotalMessages int64 `json:"total_messages"`
}

// HealthHandler serves the health check endpoints.
type HealthHandler struct {
	pool      ports.ConnPool
	admission *app.Admission
	logger    zerolog.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(pool ports.ConnPool, adm *app.Admission, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{pool: pool, admission: adm, logger: logger}
}

// Liveness returns OK whenever the process is up. It deliberately touches
// no dependency so an unreachable store never flaps liveness.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readiness checks whether the shared store is reachable.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.pool.Ping(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Detailed reports store reachability, pool utilization and session counts.
func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := DetailedHealthResponse{
		Status: "ok",
		Pool:   h.pool.Stats(),
	}

	if latency, err := h.pool.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Store = StoreHealth{Reachable: false, Error: err.Error()}
	} else {
		resp.Store = StoreHealth{
			Reachable: true,
			LatencyMs: float64(latency.Microseconds()) / 1000,
		}
	}

	snap := h.admission.Snapshot()
	resp.Sessions = SessionHealth{
		Open:          snap.OpenSessions,
		TotalMessages: snap.TotalMessages,
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	resp.Runtime = RuntimeHealth{
		Goroutines: runtime.NumGoroutine(),
		AllocBytes: mem.Alloc,
		NumGC:      mem.NumGC,
		GoVersion:  runtime.Version(),
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// StatsHandler serves the WebSocket session stats endpoint.
type StatsHandler struct {
	admission *app.Admission
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(adm *app.Admission) *StatsHandler {
	return &StatsHandler{admission: adm}
}

// Stats returns the live session aggregate.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.admission.Snapshot())
}

// Version returns the service version.
func Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version: "dev",
		Service: "wsgate",
	})
}

// RouterConfig holds the handlers and middleware inputs for the router.
type RouterConfig struct {
	Health    *HealthHandler
	Stats     *StatsHandler
	WebSocket *WSHandler
	Admission *app.Admission
	Metrics   *metrics.Collector
	Logger    zerolog.Logger
}

// NewRouter creates the main HTTP router.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)
	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}
	r.Use(NewRateLimitMiddleware(cfg.Admission, cfg.Logger))

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"service": "wsgate", "status": "ok"})
	})

	r.Get("/health", cfg.Health.Liveness)
	r.Get("/health/", cfg.Health.Liveness)
	r.Get("/health/liveness", cfg.Health.Liveness)
	r.Get("/health/readiness", cfg.Health.Readiness)
	r.Get("/health/detailed", cfg.Health.Detailed)

	if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Get("/version", Version)

	r.Get("/ws/stats", cfg.Stats.Stats)
	r.Get("/ws/{clientID}", cfg.WebSocket.Serve)

	return r
}

// writeRejection maps an admission rejection onto a JSON:API error body.
func writeRejection(w http.ResponseWriter, rej *admission.Rejection, retryAfter time.Duration) {
	if rej.Status == http.StatusTooManyRequests && retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds()+0.999)))
	}
	jsonapi.WriteError(w, jsonapi.NewError(rej.Status, rej.Code, rej.Message))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// extractIP extracts the client IP from the request.
func extractIP(r *http.Request) string {
	// Check X-Forwarded-For header
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
