package cmd

import (
	"context"
	"time"

	"github.com/Iron-Ham/finpace/internal/config"
	"github.com/Iron-Ham/finpace/internal/event"
	"github.com/Iron-Ham/finpace/internal/logging"
	"github.com/Iron-Ham/finpace/internal/telemetry"
)

// env holds what every long-running command needs.
type env struct {
	cfg      *config.Config
	logger   *logging.Logger
	bus      *event.Bus
	shutdown telemetry.ShutdownFunc
}

// setup loads the configuration and starts logging and telemetry.
func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.Init(ctx, Version, cfg.Telemetry.Endpoint, cfg.Telemetry.Insecure)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	return &env{
		cfg:      cfg,
		logger:   logger,
		bus:      event.NewBus(event.WithLogger(logger.Slog())),
		shutdown: shutdown,
	}, nil
}

// newLogger returns the rotating file logger, or a no-op logger when
// logging is disabled.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLoggerWithRotation(cfg.Paths.ResolveDataDir(), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
}

// Close flushes telemetry and closes the log file.
func (e *env) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.shutdown(ctx); err != nil {
		e.logger.Warn("telemetry shutdown failed", "error", err.Error())
	}
	e.bus.Clear()
	_ = e.logger.Close()
}
