package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "worker.max_batch_size")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateAPI()...)
	errors = append(errors, c.validateWorker()...)
	errors = append(errors, c.validateSync()...)
	errors = append(errors, c.validateSimulate()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validatePaths()...)

	return errors
}

func positive(field string, v int) []ValidationError {
	if v > 0 {
		return nil
	}
	return []ValidationError{{Field: field, Value: v, Message: "must be positive"}}
}

func nonNegative(field string, v int) []ValidationError {
	if v >= 0 {
		return nil
	}
	return []ValidationError{{Field: field, Value: v, Message: "must be non-negative"}}
}

// validateAPI validates the APIConfig
func (c *Config) validateAPI() []ValidationError {
	var errors []ValidationError

	u, err := url.Parse(c.API.BaseURL)
	if c.API.BaseURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "api.base_url",
			Value:   c.API.BaseURL,
			Message: "must be an absolute http(s) URL",
		})
	}

	return errors
}

// validateWorker validates the WorkerConfig
func (c *Config) validateWorker() []ValidationError {
	var errors []ValidationError
	w := c.Worker

	if !strings.HasPrefix(w.EndpointPath, "/") {
		errors = append(errors, ValidationError{
			Field:   "worker.endpoint_path",
			Value:   w.EndpointPath,
			Message: "must start with /",
		})
	}

	errors = append(errors, positive("worker.min_batch_size", w.MinBatchSize)...)
	errors = append(errors, positive("worker.batch_step", w.BatchStep)...)
	if w.MaxBatchSize < w.MinBatchSize {
		errors = append(errors, ValidationError{
			Field:   "worker.max_batch_size",
			Value:   w.MaxBatchSize,
			Message: fmt.Sprintf("must be at least min_batch_size (%d)", w.MinBatchSize),
		})
	}
	if w.InitialBatchSize < w.MinBatchSize || w.InitialBatchSize > w.MaxBatchSize {
		errors = append(errors, ValidationError{
			Field:   "worker.initial_batch_size",
			Value:   w.InitialBatchSize,
			Message: fmt.Sprintf("must be between %d and %d", w.MinBatchSize, w.MaxBatchSize),
		})
	}

	errors = append(errors, positive("worker.min_interval_ms", w.MinIntervalMs)...)
	if w.MaxIntervalMs < w.MinIntervalMs {
		errors = append(errors, ValidationError{
			Field:   "worker.max_interval_ms",
			Value:   w.MaxIntervalMs,
			Message: fmt.Sprintf("must be at least min_interval_ms (%d)", w.MinIntervalMs),
		})
	}
	if w.BaseIntervalMs < w.MinIntervalMs || w.BaseIntervalMs > w.MaxIntervalMs {
		errors = append(errors, ValidationError{
			Field:   "worker.base_interval_ms",
			Value:   w.BaseIntervalMs,
			Message: fmt.Sprintf("must be between %d and %d", w.MinIntervalMs, w.MaxIntervalMs),
		})
	}

	errors = append(errors, positive("worker.success_threshold", w.SuccessThreshold)...)
	errors = append(errors, positive("worker.error_threshold", w.ErrorThreshold)...)
	errors = append(errors, nonNegative("worker.high_backlog_threshold", w.HighBacklogThreshold)...)
	errors = append(errors, nonNegative("worker.retry_margin_ms", w.RetryMarginMs)...)
	errors = append(errors, nonNegative("worker.stall_threshold", w.StallThreshold)...)
	errors = append(errors, nonNegative("worker.request_timeout_ms", w.RequestTimeoutMs)...)
	errors = append(errors, positive("worker.diagnostics_every_runs", w.DiagnosticsEveryRuns)...)
	errors = append(errors, positive("worker.diagnostics_every_items", w.DiagnosticsEveryItems)...)

	if w.RecoveryFactor <= 0 || w.RecoveryFactor >= 1 {
		errors = append(errors, ValidationError{
			Field:   "worker.recovery_factor",
			Value:   w.RecoveryFactor,
			Message: "must be between 0 and 1 (exclusive)",
		})
	}
	for field, f := range map[string]float64{
		"worker.backoff_factor":           w.BackoffFactor,
		"worker.transport_backoff_factor": w.TransportBackoffFactor,
	} {
		if f <= 1 {
			errors = append(errors, ValidationError{Field: field, Value: f, Message: "must be greater than 1"})
		}
	}
	if w.QuotaLowFraction < 0 || w.QuotaLowFraction > 1 {
		errors = append(errors, ValidationError{
			Field:   "worker.quota_low_fraction",
			Value:   w.QuotaLowFraction,
			Message: "must be between 0 and 1",
		})
	}
	if w.QuotaMultiplier < 1 {
		errors = append(errors, ValidationError{
			Field:   "worker.quota_multiplier",
			Value:   w.QuotaMultiplier,
			Message: "must be at least 1",
		})
	}
	if w.IdleMultiplier < 1 {
		errors = append(errors, ValidationError{
			Field:   "worker.idle_multiplier",
			Value:   w.IdleMultiplier,
			Message: "must be at least 1",
		})
	}

	// Map iteration order is random; keep output stable for users and tests.
	slices.SortStableFunc(errors, func(a, b ValidationError) int {
		return strings.Compare(a.Field, b.Field)
	})
	return errors
}

// validateSync validates the SyncConfig
func (c *Config) validateSync() []ValidationError {
	var errors []ValidationError
	s := c.Sync

	errors = append(errors, positive("sync.fetching_after_ms", s.FetchingAfterMs)...)
	errors = append(errors, positive("sync.tick_interval_ms", s.TickIntervalMs)...)
	errors = append(errors, positive("sync.dismiss_after_ms", s.DismissAfterMs)...)
	errors = append(errors, positive("sync.max_parallel", s.MaxParallel)...)
	errors = append(errors, nonNegative("sync.timeout_ms", s.TimeoutMs)...)
	if s.SyncingAfterMs <= s.FetchingAfterMs {
		errors = append(errors, ValidationError{
			Field:   "sync.syncing_after_ms",
			Value:   s.SyncingAfterMs,
			Message: fmt.Sprintf("must be greater than fetching_after_ms (%d)", s.FetchingAfterMs),
		})
	}

	return errors
}

// validateSimulate validates the SimulateConfig
func (c *Config) validateSimulate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, positive("simulate.rate_per_minute", c.Simulate.RatePerMinute)...)
	errors = append(errors, positive("simulate.burst", c.Simulate.Burst)...)
	errors = append(errors, nonNegative("simulate.backlog", c.Simulate.Backlog)...)
	errors = append(errors, nonNegative("simulate.accounts", c.Simulate.Accounts)...)

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	errors = append(errors, positive("logging.max_size_mb", c.Logging.MaxSizeMB)...)

	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	errors = append(errors, nonNegative("logging.max_backups", c.Logging.MaxBackups)...)

	return errors
}

// validatePaths validates the PathsConfig
func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	if strings.ContainsRune(c.Paths.DataDir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "paths.data_dir",
			Value:   c.Paths.DataDir,
			Message: "path contains invalid null character",
		})
	}

	return errors
}
