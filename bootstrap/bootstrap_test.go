package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/wsgate/config"
	"github.com/artpar/wsgate/domain/ratelimit"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wsgate.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// Metrics stay off in these tests so repeated App construction does not
// double-register collectors on the process-wide Prometheus registry.
func TestNewWithOptions_Defaults(t *testing.T) {
	t.Setenv("WSGATE_METRICS_ENABLED", "false")
	a, err := NewWithOptions(Options{})
	if err != nil {
		t.Fatalf("NewWithOptions() error = %v", err)
	}
	t.Cleanup(func() { a.Shutdown() })

	if a.HTTPServer == nil {
		t.Fatal("HTTPServer is nil")
	}
	if got, want := a.HTTPServer.Addr, "0.0.0.0:8080"; got != want {
		t.Errorf("Addr = %q, want %q", got, want)
	}
	if a.limiter == nil || a.admission == nil {
		t.Error("services not initialized")
	}
}

func TestNewWithOptions_ConfigFile(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
rate_limit:
  limit: 20
  window_secs: 30
websocket:
  message_max_bytes: 4096
metrics:
  enabled: false
`)

	a, err := NewWithOptions(Options{ConfigPath: path})
	if err != nil {
		t.Fatalf("NewWithOptions() error = %v", err)
	}
	t.Cleanup(func() { a.Shutdown() })

	if got, want := a.HTTPServer.Addr, "127.0.0.1:9090"; got != want {
		t.Errorf("Addr = %q, want %q", got, want)
	}
	if got := a.admission.MaxMessageBytes(); got != 4096 {
		t.Errorf("MaxMessageBytes() = %d, want 4096", got)
	}
}

func TestLimiterConfigMapping(t *testing.T) {
	cfg := &config.Config{}
	cfg.RateLimit.Limit = 100
	cfg.RateLimit.WindowSecs = 60
	cfg.RateLimit.FailOpen = true
	cfg.RateLimit.WSMessage = config.ScopeLimitConfig{Limit: 500}
	cfg.RateLimit.WSConnect = config.ScopeLimitConfig{Limit: 10, WindowSecs: 120}

	lc := limiterConfig(cfg)

	if lc.Default.Limit != 100 || lc.Default.Window != time.Minute {
		t.Errorf("Default = %+v, want 100 per minute", lc.Default)
	}
	if !lc.FailOpen {
		t.Error("FailOpen = false, want true")
	}
	// A scope without a window override inherits the default window.
	if got := lc.Scopes[ratelimit.ScopeWSMessage]; got.Limit != 500 || got.Window != time.Minute {
		t.Errorf("ws_message = %+v, want 500 per minute", got)
	}
	if got := lc.Scopes[ratelimit.ScopeWSConnect]; got.Limit != 10 || got.Window != 2*time.Minute {
		t.Errorf("ws_connect = %+v, want 10 per 2m", got)
	}
	if _, ok := lc.Scopes[ratelimit.ScopeHTTP]; ok {
		t.Error("http scope present, want fallback to default")
	}
}

func TestReloadUpdatesServices(t *testing.T) {
	path := writeConfig(t, `
rate_limit:
  limit: 5
websocket:
  message_max_bytes: 1024
metrics:
  enabled: false
`)

	a, err := NewWithOptions(Options{ConfigPath: path})
	if err != nil {
		t.Fatalf("NewWithOptions() error = %v", err)
	}
	t.Cleanup(func() { a.Shutdown() })

	if got := a.admission.MaxMessageBytes(); got != 1024 {
		t.Fatalf("MaxMessageBytes() = %d, want 1024 before reload", got)
	}

	if err := os.WriteFile(path, []byte(`
rate_limit:
  limit: 50
websocket:
  message_max_bytes: 8192
metrics:
  enabled: false
`), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := a.Holder.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if got := a.admission.MaxMessageBytes(); got != 8192 {
		t.Errorf("MaxMessageBytes() = %d, want 8192 after reload", got)
	}
}
