// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Redis       RedisConfig     `yaml:"redis"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	WebSocket   WebSocketConfig `yaml:"websocket"`
	Logging     LoggingConfig   `yaml:"logging"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Environment string          `yaml:"environment"` // "development" or "production"
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig configures the shared store connection pool.
type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password,omitempty"`
	DB             int           `yaml:"db"`
	MaxPoolSize    int           `yaml:"max_pool_size"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
}

// RateLimitConfig configures the fixed-window rate limiter.
type RateLimitConfig struct {
	// Limit and WindowSecs are the default budget for every scope.
	Limit      int `yaml:"limit"`
	WindowSecs int `yaml:"window_secs"`

	// Per-scope overrides. Zero means "use the default above".
	HTTP      ScopeLimitConfig `yaml:"http,omitempty"`
	WSConnect ScopeLimitConfig `yaml:"ws_connect,omitempty"`
	WSMessage ScopeLimitConfig `yaml:"ws_message,omitempty"`

	// FailOpen admits traffic when the store is unreachable. The safe
	// default is to deny.
	FailOpen bool `yaml:"fail_open"`
}

// ScopeLimitConfig overrides the budget for one traffic class.
type ScopeLimitConfig struct {
	Limit      int `yaml:"limit"`
	WindowSecs int `yaml:"window_secs"`
}

// WebSocketConfig configures the WebSocket surface.
type WebSocketConfig struct {
	MessageMaxBytes int64    `yaml:"message_max_bytes"`
	CloseOnOversize bool     `yaml:"close_on_oversize"`
	AllowedOrigins  []string `yaml:"allowed_origins,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	// Seed defaults that cannot survive unmarshal (false is the zero
	// value, so "enabled: false" in the file must stick).
	cfg := Config{Metrics: MetricsConfig{Enabled: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// This is useful for Docker deployments where no config file is needed.
//
// Environment variables:
//
//	WSGATE_SERVER_HOST          - Server host (default: 0.0.0.0)
//	WSGATE_SERVER_PORT          - Server port (default: 8080)
//	WSGATE_REDIS_ADDR           - Redis address (default: localhost:6379)
//	WSGATE_REDIS_PASSWORD       - Redis password
//	WSGATE_REDIS_MAX_POOL_SIZE  - Max pooled connections (default: 50)
//	WSGATE_RATELIMIT_LIMIT      - Requests per window (default: 100)
//	WSGATE_RATELIMIT_WINDOW     - Window seconds (default: 60)
//	WSGATE_RATELIMIT_FAIL_OPEN  - Admit when store is down (default: false)
//	WSGATE_WS_MESSAGE_MAX_BYTES - Max WebSocket message size (default: 16384)
//	WSGATE_WS_CLOSE_ON_OVERSIZE - Close connection on oversize (default: false)
//	WSGATE_LOG_LEVEL            - Log level: debug, info, warn, error (default: info)
//	WSGATE_LOG_FORMAT           - Log format: json or console (default: json)
//	WSGATE_METRICS_ENABLED      - Enable /metrics endpoint (default: true)
//	WSGATE_ENVIRONMENT          - development or production (default: development)
func LoadFromEnv() (*Config, error) {
	cfg := Config{Metrics: MetricsConfig{Enabled: true}}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment
// variables. The gateway runs fine on pure defaults, so a missing file is
// not an error.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies WSGATE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("WSGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("WSGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WSGATE_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("WSGATE_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Redis configuration
	if v := os.Getenv("WSGATE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("WSGATE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("WSGATE_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("WSGATE_REDIS_MAX_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.MaxPoolSize = n
		}
	}

	// Rate limit configuration
	if v := os.Getenv("WSGATE_RATELIMIT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Limit = n
		}
	}
	if v := os.Getenv("WSGATE_RATELIMIT_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.WindowSecs = n
		}
	}
	if v := os.Getenv("WSGATE_RATELIMIT_FAIL_OPEN"); v != "" {
		cfg.RateLimit.FailOpen = parseBool(v)
	}

	// WebSocket configuration
	if v := os.Getenv("WSGATE_WS_MESSAGE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.WebSocket.MessageMaxBytes = n
		}
	}
	if v := os.Getenv("WSGATE_WS_CLOSE_ON_OVERSIZE"); v != "" {
		cfg.WebSocket.CloseOnOversize = parseBool(v)
	}
	if v := os.Getenv("WSGATE_WS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.WebSocket.AllowedOrigins = origins
	}

	// Logging configuration
	if v := os.Getenv("WSGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WSGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("WSGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}

	if v := os.Getenv("WSGATE_ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.MaxPoolSize == 0 {
		cfg.Redis.MaxPoolSize = 50
	}
	if cfg.Redis.AcquireTimeout == 0 {
		cfg.Redis.AcquireTimeout = 5 * time.Second
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}

	if cfg.RateLimit.Limit == 0 {
		cfg.RateLimit.Limit = 100
	}
	if cfg.RateLimit.WindowSecs == 0 {
		cfg.RateLimit.WindowSecs = 60
	}

	if cfg.WebSocket.MessageMaxBytes == 0 {
		cfg.WebSocket.MessageMaxBytes = 16384
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", cfg.Server.Port)
	}

	if cfg.Redis.MaxPoolSize < 1 {
		return fmt.Errorf("redis.max_pool_size must be positive, got %d", cfg.Redis.MaxPoolSize)
	}

	if cfg.RateLimit.Limit < 1 {
		return fmt.Errorf("rate_limit.limit must be positive, got %d", cfg.RateLimit.Limit)
	}
	if cfg.RateLimit.WindowSecs < 1 {
		return fmt.Errorf("rate_limit.window_secs must be positive, got %d", cfg.RateLimit.WindowSecs)
	}

	if cfg.WebSocket.MessageMaxBytes < 1 {
		return fmt.Errorf("websocket.message_max_bytes must be positive, got %d", cfg.WebSocket.MessageMaxBytes)
	}

	validEnvs := map[string]bool{"development": true, "production": true}
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("environment must be 'development' or 'production', got %q", cfg.Environment)
	}

	if cfg.Environment == "production" {
		for _, origin := range cfg.WebSocket.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("websocket.allowed_origins must not contain '*' in production")
			}
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}
