package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/artpar/wsgate/adapters/metrics"
	"github.com/artpar/wsgate/app"
	"github.com/artpar/wsgate/domain/ratelimit"
)

// exemptPath reports whether a path bypasses rate limiting and metrics.
// Probes and scrapes must keep working while clients are throttled.
func exemptPath(path string) bool {
	return strings.HasPrefix(path, "/health") || path == "/metrics" || path == "/version"
}

// NewRateLimitMiddleware creates middleware that admits each HTTP request
// through the rate limiter and sets the X-RateLimit-* headers.
func NewRateLimitMiddleware(adm *app.Admission, logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			// WebSocket upgrades are admitted under their own scope by
			// the WS handler.
			if strings.HasPrefix(r.URL.Path, "/ws/") && r.URL.Path != "/ws/stats" {
				next.ServeHTTP(w, r)
				return
			}

			identity := extractIP(r)
			d, rej := adm.AdmitRequest(r.Context(), identity)

			setRateLimitHeaders(w, d)
			if rej != nil {
				logger.Debug().
					Str("identity", identity).
					Str("path", r.URL.Path).
					Str("code", rej.Code).
					Msg("request rejected")
				writeRejection(w, rej, d.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	if d.Limit == 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// SecurityHeaders sets the standard browser hardening headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// NewMetricsMiddleware creates middleware that records request metrics.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start).Seconds()
			status := statusLabel(ww.Status())
			path := normalizePath(r.URL.Path)

			m.RequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			m.RequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
		})
	}
}

// normalizePath collapses per-client WS paths so label cardinality stays
// bounded.
func normalizePath(path string) string {
	if strings.HasPrefix(path, "/ws/") && path != "/ws/stats" {
		return "/ws/{clientID}"
	}
	if len(path) > 50 {
		return path[:50] + "..."
	}
	return path
}

// statusLabel returns a string label for the status code.
func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if exemptPath(r.URL.Path) {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
