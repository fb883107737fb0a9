// Package bootstrap wires all dependencies and starts the application.
// Configuration comes from a YAML file plus WSGATE_* environment
// overrides, and reloads on SIGHUP or a file change.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/artpar/wsgate/adapters/clock"
	wshttp "github.com/artpar/wsgate/adapters/http"
	"github.com/artpar/wsgate/adapters/idgen"
	"github.com/artpar/wsgate/adapters/memory"
	"github.com/artpar/wsgate/adapters/metrics"
	"github.com/artpar/wsgate/adapters/redis"
	"github.com/artpar/wsgate/app"
	"github.com/artpar/wsgate/config"
	"github.com/artpar/wsgate/domain/ratelimit"
)

const poolStatsInterval = 10 * time.Second

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Holder     *config.Holder
	Metrics    *metrics.Collector
	HTTPServer *http.Server

	pool      *redis.Pool
	limiter   *app.Limiter
	admission *app.Admission
	hub       *wshttp.Hub

	statsDone chan struct{}
}

// Options provides optional knobs for application initialization.
type Options struct {
	// ConfigPath is the YAML config file. Missing file means defaults
	// plus environment overrides.
	ConfigPath string
}

// New creates and initializes the application with default options.
func New() (*App, error) {
	return NewWithOptions(Options{})
}

// NewWithOptions creates and initializes the application.
func NewWithOptions(opts Options) (*App, error) {
	holder, err := config.NewHolder(opts.ConfigPath, zerolog.Nop())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := holder.Get()

	logger := setupLogger(cfg.Logging)
	holder.SetLogger(logger)

	logger.Info().
		Str("environment", cfg.Environment).
		Msg("initializing wsgate")

	a := &App{
		Logger:    logger,
		Holder:    holder,
		statsDone: make(chan struct{}),
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Msg("prometheus metrics enabled")
	} else {
		// A collector on a private registry keeps the services unconditional
		// without exposing /metrics.
		a.Metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	}

	a.initServices(cfg)
	a.initHTTPServer(cfg)
	a.wireReload()

	return a, nil
}

func (a *App) initServices(cfg *config.Config) {
	a.pool = redis.NewPool(redis.Config{
		Addr:           cfg.Redis.Addr,
		Password:       cfg.Redis.Password,
		DB:             cfg.Redis.DB,
		MaxPoolSize:    cfg.Redis.MaxPoolSize,
		AcquireTimeout: cfg.Redis.AcquireTimeout,
		DialTimeout:    cfg.Redis.DialTimeout,
	}, a.Logger)

	store := redis.NewCounterStore(a.pool, a.Logger)
	registry := memory.NewRegistry(memory.RegistryConfig{Clock: clock.Real{}})

	a.limiter = app.NewLimiter(store, clock.Real{}, limiterConfig(cfg), a.Metrics, a.Logger)
	a.admission = app.NewAdmission(a.limiter, registry, idgen.UUID{}, admissionConfig(cfg), a.Metrics, a.Logger)

	a.Logger.Info().
		Str("redis_addr", cfg.Redis.Addr).
		Int("max_pool_size", cfg.Redis.MaxPoolSize).
		Int("rate_limit", cfg.RateLimit.Limit).
		Int("rate_window_secs", cfg.RateLimit.WindowSecs).
		Bool("fail_open", cfg.RateLimit.FailOpen).
		Msg("admission services initialized")
}

func (a *App) initHTTPServer(cfg *config.Config) {
	a.hub = wshttp.NewHub(a.Logger)

	router := wshttp.NewRouter(wshttp.RouterConfig{
		Health:    wshttp.NewHealthHandler(a.pool, a.admission, a.Logger),
		Stats:     wshttp.NewStatsHandler(a.admission),
		WebSocket: wshttp.NewWSHandler(a.admission, a.hub, a.Logger),
		Admission: a.admission,
		Metrics:   routerMetrics(cfg, a.Metrics),
		Logger:    a.Logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	a.HTTPServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	a.Logger.Info().Str("addr", addr).Msg("http server configured")
}

// wireReload pushes config changes into the running services. Server
// address and pool size are not reloadable and need a restart.
func (a *App) wireReload() {
	a.Holder.OnChange(func(cfg *config.Config) {
		if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			zerolog.SetGlobalLevel(level)
		}
		a.limiter.UpdateConfig(limiterConfig(cfg))
		a.admission.UpdateConfig(admissionConfig(cfg))
		a.Metrics.ConfigReloads.Inc()
	})
	a.Holder.OnReloadError(func(error) {
		a.Metrics.ConfigReloadErrors.Inc()
	})
}

// limiterConfig maps file config onto the limiter service config.
func limiterConfig(cfg *config.Config) app.LimiterConfig {
	lc := app.LimiterConfig{
		Default: ratelimit.Config{
			Limit:  cfg.RateLimit.Limit,
			Window: time.Duration(cfg.RateLimit.WindowSecs) * time.Second,
		},
		FailOpen: cfg.RateLimit.FailOpen,
		Scopes:   map[ratelimit.Scope]ratelimit.Config{},
	}
	for scope, override := range map[ratelimit.Scope]config.ScopeLimitConfig{
		ratelimit.ScopeHTTP:      cfg.RateLimit.HTTP,
		ratelimit.ScopeWSConnect: cfg.RateLimit.WSConnect,
		ratelimit.ScopeWSMessage: cfg.RateLimit.WSMessage,
	} {
		if override.Limit <= 0 {
			continue
		}
		window := time.Duration(override.WindowSecs) * time.Second
		if window <= 0 {
			window = time.Duration(cfg.RateLimit.WindowSecs) * time.Second
		}
		lc.Scopes[scope] = ratelimit.Config{Limit: override.Limit, Window: window}
	}
	return lc
}

func admissionConfig(cfg *config.Config) app.AdmissionConfig {
	return app.AdmissionConfig{
		AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
		MaxMessageBytes: cfg.WebSocket.MessageMaxBytes,
		CloseOnOversize: cfg.WebSocket.CloseOnOversize,
	}
}

func routerMetrics(cfg *config.Config, m *metrics.Collector) *metrics.Collector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return m
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	a.Holder.WatchSignals()
	if err := a.Holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch unavailable")
	}

	go a.pollPoolStats()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// pollPoolStats exports pool occupancy gauges until shutdown.
func (a *App) pollPoolStats() {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			stats := a.pool.Stats()
			a.Metrics.SetPoolStats(stats.Active, stats.Idle)
		case <-a.statsDone:
			return
		}
	}
}

// Shutdown gracefully stops the application. In-flight requests get the
// configured shutdown window, then the store pool is released.
func (a *App) Shutdown() error {
	timeout := a.Holder.Get().Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	close(a.statsDone)
	a.Holder.Stop()

	if a.hub != nil && a.hub.Count() > 0 {
		a.Logger.Info().Int("open_sessions", a.hub.Count()).Msg("closing live sessions")
		a.hub.CloseAll()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.pool != nil {
		if err := a.pool.Close(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("store pool close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
