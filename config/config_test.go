package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/wsgate/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wsgate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, want localhost:6379", cfg.Redis.Addr)
	}
	if cfg.Redis.MaxPoolSize != 50 {
		t.Errorf("Redis.MaxPoolSize = %d, want 50", cfg.Redis.MaxPoolSize)
	}
	if cfg.RateLimit.Limit != 100 || cfg.RateLimit.WindowSecs != 60 {
		t.Errorf("RateLimit = %+v, want limit=100 window=60", cfg.RateLimit)
	}
	if cfg.RateLimit.FailOpen {
		t.Error("RateLimit.FailOpen = true, want the fail-closed default")
	}
	if cfg.WebSocket.MessageMaxBytes != 16384 {
		t.Errorf("WebSocket.MessageMaxBytes = %d, want 16384", cfg.WebSocket.MessageMaxBytes)
	}
	if cfg.WebSocket.CloseOnOversize {
		t.Error("WebSocket.CloseOnOversize = true, want false by default")
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 8443
redis:
  addr: redis.internal:6379
  max_pool_size: 25
rate_limit:
  limit: 10
  window_secs: 30
  fail_open: true
  ws_message:
    limit: 300
    window_secs: 10
websocket:
  message_max_bytes: 8192
  close_on_oversize: true
  allowed_origins:
    - https://app.example
logging:
  level: debug
  format: console
environment: production
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Redis.MaxPoolSize != 25 {
		t.Errorf("Redis.MaxPoolSize = %d, want 25", cfg.Redis.MaxPoolSize)
	}
	if !cfg.RateLimit.FailOpen {
		t.Error("RateLimit.FailOpen = false, want true")
	}
	if cfg.RateLimit.WSMessage.Limit != 300 {
		t.Errorf("WSMessage.Limit = %d, want 300", cfg.RateLimit.WSMessage.Limit)
	}
	if !cfg.WebSocket.CloseOnOversize {
		t.Error("CloseOnOversize = false, want true")
	}
	if len(cfg.WebSocket.AllowedOrigins) != 1 || cfg.WebSocket.AllowedOrigins[0] != "https://app.example" {
		t.Errorf("AllowedOrigins = %v", cfg.WebSocket.AllowedOrigins)
	}
	if cfg.Environment != "production" {
		t.Errorf("Environment = %q, want production", cfg.Environment)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "rate_limit:\n  limit: 10\n")

	t.Setenv("WSGATE_RATELIMIT_LIMIT", "42")
	t.Setenv("WSGATE_WS_MESSAGE_MAX_BYTES", "4096")
	t.Setenv("WSGATE_WS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.RateLimit.Limit != 42 {
		t.Errorf("RateLimit.Limit = %d, want env override 42", cfg.RateLimit.Limit)
	}
	if cfg.WebSocket.MessageMaxBytes != 4096 {
		t.Errorf("MessageMaxBytes = %d, want 4096", cfg.WebSocket.MessageMaxBytes)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.WebSocket.AllowedOrigins) != 2 ||
		cfg.WebSocket.AllowedOrigins[0] != want[0] ||
		cfg.WebSocket.AllowedOrigins[1] != want[1] {
		t.Errorf("AllowedOrigins = %v, want %v", cfg.WebSocket.AllowedOrigins, want)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WSGATE_SERVER_PORT", "9090")
	t.Setenv("WSGATE_RATELIMIT_FAIL_OPEN", "yes")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if !cfg.RateLimit.FailOpen {
		t.Error("FailOpen = false, want true via env")
	}
}

func TestLoadWithFallbackMissingFile(t *testing.T) {
	cfg, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFallback() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "negative limit",
			yaml:    "rate_limit:\n  limit: -5\n",
			wantErr: "rate_limit.limit",
		},
		{
			name:    "bad port",
			yaml:    "server:\n  port: 99999\n",
			wantErr: "server.port",
		},
		{
			name:    "bad environment",
			yaml:    "environment: staging\n",
			wantErr: "environment",
		},
		{
			name:    "wildcard origin in production",
			yaml:    "environment: production\nwebsocket:\n  allowed_origins: [\"*\"]\n",
			wantErr: "allowed_origins",
		},
		{
			name:    "bad log level",
			yaml:    "logging:\n  level: verbose\n",
			wantErr: "logging.level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := config.Load(path)
			if err == nil {
				t.Fatal("Load() error = nil, want validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestWildcardOriginAllowedInDevelopment(t *testing.T) {
	path := writeConfig(t, "websocket:\n  allowed_origins: [\"*\"]\n")
	if _, err := config.Load(path); err != nil {
		t.Errorf("Load() error = %v, want wildcard accepted in development", err)
	}
}
