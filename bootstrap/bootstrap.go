// Package bootstrap wires all dependencies and runs the gateway.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/llmgate/llmgate/adapters/anthropic"
	"github.com/llmgate/llmgate/adapters/clock"
	"github.com/llmgate/llmgate/adapters/httpapi"
	"github.com/llmgate/llmgate/adapters/idgen"
	"github.com/llmgate/llmgate/adapters/metrics"
	"github.com/llmgate/llmgate/adapters/sqlite"
	"github.com/llmgate/llmgate/app"
	"github.com/llmgate/llmgate/config"
	"github.com/llmgate/llmgate/ports"
)

// App represents the running gateway.
type App struct {
	Logger     zerolog.Logger
	DB         *sqlite.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	// Services
	auth    *app.Authenticator
	ledger  *app.LedgerService
	gateway *app.GatewayService

	// Adapters (for cleanup)
	recorder ports.UsageRecorder
	holder   *config.Holder
}

// New creates and initializes the gateway from a loaded configuration.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	logger.Info().Msg("initializing llmgate")

	a := &App{Logger: logger}

	if err := a.init(cfg); err != nil {
		a.closePartial()
		return nil, err
	}
	return a, nil
}

// NewWithHotReload creates the gateway with config hot reload enabled:
// file watch plus SIGHUP. Only plan limits and log level apply live; the
// rest of the config requires a restart.
func NewWithHotReload(path string) (*App, error) {
	holder, err := config.NewHolder(path, zerolog.New(os.Stdout).With().Timestamp().Logger())
	if err != nil {
		return nil, err
	}

	a, err := New(holder.Get())
	if err != nil {
		holder.Stop()
		return nil, err
	}
	a.holder = holder

	holder.OnChange(func(cfg *config.Config) {
		a.applyReload(cfg)
	})
	holder.OnError(func(error) {
		if a.Metrics != nil {
			a.Metrics.ConfigReloadErrors.Inc()
		}
	})
	if err := holder.Watch(); err != nil {
		a.Logger.Warn().Err(err).Msg("config watch unavailable, reload on restart only")
	}

	return a, nil
}

func (a *App) init(cfg *config.Config) error {
	// Database
	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	a.DB = db
	a.Logger.Info().Str("dsn", cfg.Database.DSN).Msg("database initialized")

	// Metrics
	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		a.Logger.Info().Msg("prometheus metrics enabled")
	}

	// Stores
	tokenStore := sqlite.NewTokenStore(db)
	windowStore := sqlite.NewRateWindowStore(db)
	creditStore := sqlite.NewCreditStore(db)
	usageStore := sqlite.NewUsageStore(db)

	// Usage recorder
	a.recorder = NewLocalUsageRecorder(usageStore, RecorderOptions{
		BatchSize:     cfg.Usage.BatchSize,
		FlushInterval: cfg.Usage.FlushInterval,
		MaxBuffer:     cfg.Usage.MaxBuffer,
		Metrics:       a.Metrics,
		Log:           a.Logger,
	})

	// Upstream client
	forwarder := anthropic.New(cfg.Upstream.URL, cfg.Upstream.APIKey,
		anthropic.WithTimeout(cfg.Upstream.Timeout))

	// Services
	realClock := clock.Real{}
	a.auth = app.NewAuthenticator(tokenStore, realClock, a.Logger, cfg.Auth.CacheTTL)
	a.ledger = app.NewLedgerService(windowStore, creditStore, usageStore, realClock, a.Logger, cfg.Limits())
	a.gateway = app.NewGatewayService(app.GatewayDeps{
		Auth:      a.auth,
		Ledger:    a.ledger,
		Forwarder: forwarder,
		Recorder:  a.recorder,
		Clock:     realClock,
		IDGen:     idgen.UUID{},
		Log:       a.Logger,
	})

	// HTTP surface
	handler := httpapi.NewHandler(httpapi.HandlerDeps{
		Service:           a.gateway,
		Auth:              a.auth,
		Usage:             usageStore,
		Clock:             realClock,
		Metrics:           a.Metrics,
		Log:               a.Logger,
		KeepaliveInterval: cfg.Relay.KeepaliveInterval,
		AuthHeaders:       cfg.Auth.Headers,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	a.HTTPServer = &http.Server{
		Addr:        addr,
		Handler:     handler.Router(),
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout stays at the configured value, zero by default:
		// SSE responses can legitimately run for minutes.
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	a.Logger.Info().Str("addr", addr).Msg("http server configured")
	return nil
}

// applyReload applies the live-reloadable parts of a new configuration.
func (a *App) applyReload(cfg *config.Config) {
	a.ledger.UpdatePlans(cfg.Limits())

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if a.Metrics != nil {
		a.Metrics.ConfigReloads.Inc()
	}
	a.Logger.Info().Int("plans", len(cfg.Plans)).Msg("configuration applied")
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM or a server
// error, then shuts down gracefully.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting http server")
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

// Shutdown gracefully stops the application: drain HTTP, flush the usage
// recorder, close the database.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.holder != nil {
		a.holder.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("usage recorder close error")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// closePartial releases resources after a failed init.
func (a *App) closePartial() {
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
