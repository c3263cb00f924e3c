package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Iron-Ham/finpace/internal/pacing"
	"github.com/spf13/viper"
)

// Config represents the complete finpace configuration
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Simulate  SimulateConfig  `mapstructure:"simulate"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Paths     PathsConfig     `mapstructure:"paths"`
}

// APIConfig locates the finance web application
type APIConfig struct {
	// BaseURL is the scheme and host of the web application (e.g. "http://localhost:3000")
	BaseURL string `mapstructure:"base_url"`
	// Token is sent as a bearer token on every request. Empty means no Authorization header.
	Token string `mapstructure:"token"`
}

// WorkerConfig controls the background categorization worker and the
// adaptive controller that paces it
type WorkerConfig struct {
	// EndpointPath is appended to api.base_url for the batch call
	EndpointPath string `mapstructure:"endpoint_path"`

	InitialBatchSize int `mapstructure:"initial_batch_size"`
	MinBatchSize     int `mapstructure:"min_batch_size"`
	MaxBatchSize     int `mapstructure:"max_batch_size"`
	BatchStep        int `mapstructure:"batch_step"`

	BaseIntervalMs int `mapstructure:"base_interval_ms"`
	MinIntervalMs  int `mapstructure:"min_interval_ms"`
	MaxIntervalMs  int `mapstructure:"max_interval_ms"`

	SuccessThreshold     int `mapstructure:"success_threshold"`
	ErrorThreshold       int `mapstructure:"error_threshold"`
	HighBacklogThreshold int `mapstructure:"high_backlog_threshold"`

	RecoveryFactor         float64 `mapstructure:"recovery_factor"`
	BackoffFactor          float64 `mapstructure:"backoff_factor"`
	TransportBackoffFactor float64 `mapstructure:"transport_backoff_factor"`
	RetryMarginMs          int     `mapstructure:"retry_margin_ms"`
	QuotaLowFraction       float64 `mapstructure:"quota_low_fraction"`
	QuotaMultiplier        float64 `mapstructure:"quota_multiplier"`

	// IdleMultiplier scales the base interval when the backlog is empty
	IdleMultiplier float64 `mapstructure:"idle_multiplier"`
	// DiagnosticsEveryRuns emits a diagnostics line every N runs
	DiagnosticsEveryRuns int `mapstructure:"diagnostics_every_runs"`
	// DiagnosticsEveryItems emits a diagnostics line every N processed items
	DiagnosticsEveryItems int `mapstructure:"diagnostics_every_items"`
	// StallThreshold is the consecutive error count that raises a stall alert (0 = disabled)
	StallThreshold int `mapstructure:"stall_threshold"`
	// RequestTimeoutMs bounds a single batch call (0 = no timeout)
	RequestTimeoutMs int `mapstructure:"request_timeout_ms"`
}

// SyncConfig controls the bank-sync progress display
type SyncConfig struct {
	FetchingAfterMs int `mapstructure:"fetching_after_ms"`
	SyncingAfterMs  int `mapstructure:"syncing_after_ms"`
	TickIntervalMs  int `mapstructure:"tick_interval_ms"`
	DismissAfterMs  int `mapstructure:"dismiss_after_ms"`
	// MaxParallel caps concurrent account syncs for "sync --all"
	MaxParallel int `mapstructure:"max_parallel"`
	// TimeoutMs bounds a single remote sync call (0 = no timeout)
	TimeoutMs int `mapstructure:"timeout_ms"`
}

// SimulateConfig shapes the in-process backend used by "finpace simulate"
type SimulateConfig struct {
	// RatePerMinute is the number of items the fake limiter admits per minute
	RatePerMinute int `mapstructure:"rate_per_minute"`
	// Burst is the limiter bucket size
	Burst int `mapstructure:"burst"`
	// Backlog is the number of uncategorized transactions to start with
	Backlog int `mapstructure:"backlog"`
	// Accounts is the number of fake linked accounts
	Accounts int `mapstructure:"accounts"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is active (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level sets the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// TelemetryConfig controls OpenTelemetry export
type TelemetryConfig struct {
	// Endpoint is an OTLP/HTTP collector (host:port). Empty disables export.
	Endpoint string `mapstructure:"endpoint"`
	// Insecure disables TLS to the collector
	Insecure bool `mapstructure:"insecure"`
}

// PathsConfig controls where finpace keeps its files
type PathsConfig struct {
	// DataDir holds the log files and the snapshot cache.
	// Empty means the default under the user's data directory.
	DataDir string `mapstructure:"data_dir"`
}

// ResolveDataDir returns the data directory with ~ expanded.
func (p *PathsConfig) ResolveDataDir() string {
	path := p.DataDir
	if path == "" {
		return defaultDataDir()
	}

	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}
	return path
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "finpace")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".finpace"
	}
	return filepath.Join(home, ".local", "share", "finpace")
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:3000",
		},
		Worker: WorkerConfig{
			EndpointPath:           "/api/transactions/categorize",
			InitialBatchSize:       5,
			MinBatchSize:           1,
			MaxBatchSize:           50,
			BatchStep:              2,
			BaseIntervalMs:         5000,
			MinIntervalMs:          2000,
			MaxIntervalMs:          300000, // 5 minutes
			SuccessThreshold:       3,
			ErrorThreshold:         3,
			HighBacklogThreshold:   20,
			RecoveryFactor:         0.9,
			BackoffFactor:          1.5,
			TransportBackoffFactor: 2.0,
			RetryMarginMs:          1000,
			QuotaLowFraction:       0.2,
			QuotaMultiplier:        1.5,
			IdleMultiplier:         2.0,
			DiagnosticsEveryRuns:   10,
			DiagnosticsEveryItems:  500,
			StallThreshold:         20,
			RequestTimeoutMs:       0,
		},
		Sync: SyncConfig{
			FetchingAfterMs: 600,
			SyncingAfterMs:  1500,
			TickIntervalMs:  400,
			DismissAfterMs:  3000,
			MaxParallel:     3,
			TimeoutMs:       0,
		},
		Simulate: SimulateConfig{
			RatePerMinute: 120,
			Burst:         20,
			Backlog:       400,
			Accounts:      3,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Telemetry: TelemetryConfig{
			Endpoint: "",
			Insecure: true,
		},
		Paths: PathsConfig{
			DataDir: "", // Empty means ~/.local/share/finpace
		},
	}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// BaseInterval returns the healthy polling interval
func (c *WorkerConfig) BaseInterval() time.Duration { return ms(c.BaseIntervalMs) }

// RequestTimeout returns the per-call timeout (0 means none)
func (c *WorkerConfig) RequestTimeout() time.Duration { return ms(c.RequestTimeoutMs) }

// ControllerOptions translates the worker section into controller options.
func (c *WorkerConfig) ControllerOptions() []pacing.Option {
	return []pacing.Option{
		pacing.WithBatchBounds(c.MinBatchSize, c.MaxBatchSize),
		pacing.WithInitialBatchSize(c.InitialBatchSize),
		pacing.WithBatchStep(c.BatchStep),
		pacing.WithIntervalBounds(ms(c.MinIntervalMs), ms(c.MaxIntervalMs)),
		pacing.WithBaseInterval(ms(c.BaseIntervalMs)),
		pacing.WithSuccessThreshold(c.SuccessThreshold),
		pacing.WithErrorThreshold(c.ErrorThreshold),
		pacing.WithHighBacklogThreshold(c.HighBacklogThreshold),
		pacing.WithRecoveryFactor(c.RecoveryFactor),
		pacing.WithBackoffFactor(c.BackoffFactor),
		pacing.WithTransportBackoffFactor(c.TransportBackoffFactor),
		pacing.WithRetryMargin(ms(c.RetryMarginMs)),
		pacing.WithQuotaThrottle(c.QuotaLowFraction, c.QuotaMultiplier),
	}
}

// FetchingAfter returns the delay before the Fetching checkpoint
func (c *SyncConfig) FetchingAfter() time.Duration { return ms(c.FetchingAfterMs) }

// SyncingAfter returns the delay before the Syncing checkpoint
func (c *SyncConfig) SyncingAfter() time.Duration { return ms(c.SyncingAfterMs) }

// TickInterval returns the period of the Syncing increments
func (c *SyncConfig) TickInterval() time.Duration { return ms(c.TickIntervalMs) }

// DismissAfter returns how long a finished session stays visible
func (c *SyncConfig) DismissAfter() time.Duration { return ms(c.DismissAfterMs) }

// Timeout returns the per-account sync timeout (0 means none)
func (c *SyncConfig) Timeout() time.Duration { return ms(c.TimeoutMs) }

// SetDefaults registers default values with viper
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers default values on v
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	// API defaults
	v.SetDefault("api.base_url", defaults.API.BaseURL)
	v.SetDefault("api.token", defaults.API.Token)

	// Worker defaults
	w := defaults.Worker
	v.SetDefault("worker.endpoint_path", w.EndpointPath)
	v.SetDefault("worker.initial_batch_size", w.InitialBatchSize)
	v.SetDefault("worker.min_batch_size", w.MinBatchSize)
	v.SetDefault("worker.max_batch_size", w.MaxBatchSize)
	v.SetDefault("worker.batch_step", w.BatchStep)
	v.SetDefault("worker.base_interval_ms", w.BaseIntervalMs)
	v.SetDefault("worker.min_interval_ms", w.MinIntervalMs)
	v.SetDefault("worker.max_interval_ms", w.MaxIntervalMs)
	v.SetDefault("worker.success_threshold", w.SuccessThreshold)
	v.SetDefault("worker.error_threshold", w.ErrorThreshold)
	v.SetDefault("worker.high_backlog_threshold", w.HighBacklogThreshold)
	v.SetDefault("worker.recovery_factor", w.RecoveryFactor)
	v.SetDefault("worker.backoff_factor", w.BackoffFactor)
	v.SetDefault("worker.transport_backoff_factor", w.TransportBackoffFactor)
	v.SetDefault("worker.retry_margin_ms", w.RetryMarginMs)
	v.SetDefault("worker.quota_low_fraction", w.QuotaLowFraction)
	v.SetDefault("worker.quota_multiplier", w.QuotaMultiplier)
	v.SetDefault("worker.idle_multiplier", w.IdleMultiplier)
	v.SetDefault("worker.diagnostics_every_runs", w.DiagnosticsEveryRuns)
	v.SetDefault("worker.diagnostics_every_items", w.DiagnosticsEveryItems)
	v.SetDefault("worker.stall_threshold", w.StallThreshold)
	v.SetDefault("worker.request_timeout_ms", w.RequestTimeoutMs)

	// Sync defaults
	v.SetDefault("sync.fetching_after_ms", defaults.Sync.FetchingAfterMs)
	v.SetDefault("sync.syncing_after_ms", defaults.Sync.SyncingAfterMs)
	v.SetDefault("sync.tick_interval_ms", defaults.Sync.TickIntervalMs)
	v.SetDefault("sync.dismiss_after_ms", defaults.Sync.DismissAfterMs)
	v.SetDefault("sync.max_parallel", defaults.Sync.MaxParallel)
	v.SetDefault("sync.timeout_ms", defaults.Sync.TimeoutMs)

	// Simulate defaults
	v.SetDefault("simulate.rate_per_minute", defaults.Simulate.RatePerMinute)
	v.SetDefault("simulate.burst", defaults.Simulate.Burst)
	v.SetDefault("simulate.backlog", defaults.Simulate.Backlog)
	v.SetDefault("simulate.accounts", defaults.Simulate.Accounts)

	// Logging defaults
	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Telemetry defaults
	v.SetDefault("telemetry.endpoint", defaults.Telemetry.Endpoint)
	v.SetDefault("telemetry.insecure", defaults.Telemetry.Insecure)

	// Paths defaults
	v.SetDefault("paths.data_dir", defaults.Paths.DataDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "finpace")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".finpace"
	}
	return filepath.Join(home, ".config", "finpace")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
