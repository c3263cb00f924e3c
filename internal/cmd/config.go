package cmd

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/finpace/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify finpace configuration",
	Long: `View or modify finpace configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  finpace config set api.base_url https://budget.example.com
  finpace config set worker.max_batch_size 25
  finpace config set sync.max_parallel 5

Run 'finpace config show' to see every key. The resulting configuration is
validated before it is written.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/finpace/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, "Current configuration:")
	_, _ = fmt.Fprintln(out)

	// Show where config is being read from
	if used := viper.ConfigFileUsed(); used != "" {
		_, _ = fmt.Fprintf(out, "Config file: %s\n", used)
	} else {
		_, _ = fmt.Fprintln(out, "Config file: (none - using defaults)")
	}
	_, _ = fmt.Fprintln(out)

	printConfig(out, cfg)
	return nil
}

func printConfig(w io.Writer, cfg *config.Config) {
	p := func(format string, args ...any) { _, _ = fmt.Fprintf(w, format, args...) }

	token := "(unset)"
	if cfg.API.Token != "" {
		token = "(set)"
	}
	p("api:\n")
	p("  base_url: %s\n", cfg.API.BaseURL)
	p("  token: %s\n", token)

	wc := cfg.Worker
	p("worker:\n")
	p("  endpoint_path: %s\n", wc.EndpointPath)
	p("  initial_batch_size: %d\n", wc.InitialBatchSize)
	p("  min_batch_size: %d\n", wc.MinBatchSize)
	p("  max_batch_size: %d\n", wc.MaxBatchSize)
	p("  batch_step: %d\n", wc.BatchStep)
	p("  base_interval_ms: %d\n", wc.BaseIntervalMs)
	p("  min_interval_ms: %d\n", wc.MinIntervalMs)
	p("  max_interval_ms: %d\n", wc.MaxIntervalMs)
	p("  success_threshold: %d\n", wc.SuccessThreshold)
	p("  error_threshold: %d\n", wc.ErrorThreshold)
	p("  high_backlog_threshold: %d\n", wc.HighBacklogThreshold)
	p("  recovery_factor: %g\n", wc.RecoveryFactor)
	p("  backoff_factor: %g\n", wc.BackoffFactor)
	p("  transport_backoff_factor: %g\n", wc.TransportBackoffFactor)
	p("  retry_margin_ms: %d\n", wc.RetryMarginMs)
	p("  quota_low_fraction: %g\n", wc.QuotaLowFraction)
	p("  quota_multiplier: %g\n", wc.QuotaMultiplier)
	p("  idle_multiplier: %g\n", wc.IdleMultiplier)
	p("  diagnostics_every_runs: %d\n", wc.DiagnosticsEveryRuns)
	p("  diagnostics_every_items: %d\n", wc.DiagnosticsEveryItems)
	p("  stall_threshold: %d\n", wc.StallThreshold)
	p("  request_timeout_ms: %d\n", wc.RequestTimeoutMs)

	sc := cfg.Sync
	p("sync:\n")
	p("  fetching_after_ms: %d\n", sc.FetchingAfterMs)
	p("  syncing_after_ms: %d\n", sc.SyncingAfterMs)
	p("  tick_interval_ms: %d\n", sc.TickIntervalMs)
	p("  dismiss_after_ms: %d\n", sc.DismissAfterMs)
	p("  max_parallel: %d\n", sc.MaxParallel)
	p("  timeout_ms: %d\n", sc.TimeoutMs)

	p("simulate:\n")
	p("  rate_per_minute: %d\n", cfg.Simulate.RatePerMinute)
	p("  burst: %d\n", cfg.Simulate.Burst)
	p("  backlog: %d\n", cfg.Simulate.Backlog)
	p("  accounts: %d\n", cfg.Simulate.Accounts)

	p("logging:\n")
	p("  enabled: %v\n", cfg.Logging.Enabled)
	p("  level: %s\n", cfg.Logging.Level)
	p("  max_size_mb: %d\n", cfg.Logging.MaxSizeMB)
	p("  max_backups: %d\n", cfg.Logging.MaxBackups)

	p("telemetry:\n")
	p("  endpoint: %s\n", cfg.Telemetry.Endpoint)
	p("  insecure: %v\n", cfg.Telemetry.Insecure)

	p("paths:\n")
	p("  data_dir: %s\n", cfg.Paths.ResolveDataDir())
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, raw := args[0], args[1]

	value, err := parseConfigValue(viper.GetViper(), key, raw)
	if err != nil {
		return err
	}

	// Validate the whole configuration with the new value in place.
	candidate := viper.New()
	config.SetDefaultsOn(candidate)
	if err := candidate.MergeConfigMap(viper.AllSettings()); err != nil {
		return fmt.Errorf("failed to copy configuration: %w", err)
	}
	candidate.Set(key, value)
	if _, err := config.LoadFrom(candidate); err != nil {
		return err
	}

	// Ensure config directory exists
	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set(key, value)

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = config.ConfigFile()
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Set %s = %v\n", key, value)
	_, _ = fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

// parseConfigValue converts raw to the type of key's default value.
func parseConfigValue(v *viper.Viper, key, raw string) (any, error) {
	if !slices.Contains(v.AllKeys(), key) || key == "config" {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'finpace config show' to see valid keys", key)
	}

	switch v.Get(key).(type) {
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return b, nil
	case int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		return n, nil
	case float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected number", key)
		}
		return f, nil
	default:
		return raw, nil
	}
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'finpace config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigFile), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Created config file at %s\n", configFile)
	_, _ = fmt.Fprintln(out, "Edit this file to point finpace at your application.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if used := viper.ConfigFileUsed(); used != "" {
		_, _ = fmt.Fprintf(out, "Active config: %s\n", used)
	} else {
		_, _ = fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	_, _ = fmt.Fprintln(out, "\nSearch paths:")
	_, _ = fmt.Fprintf(out, "  1. %s\n", config.ConfigFile())
	_, _ = fmt.Fprintln(out, "  2. ./config.yaml (current directory)")
	_, _ = fmt.Fprintln(out, "\nEnvironment variables: FINPACE_* (e.g., FINPACE_API_BASE_URL)")
	return nil
}

const defaultConfigFile = `# finpace configuration

# The personal-finance web application
api:
  base_url: http://localhost:3000
  # Bearer token sent with every request (leave empty for none)
  token: ""

# Background categorization worker. Batch size and interval start at the
# initial values and adapt within the min/max bounds.
worker:
  endpoint_path: /api/transactions/categorize
  initial_batch_size: 5
  min_batch_size: 1
  max_batch_size: 50
  batch_step: 2
  base_interval_ms: 5000
  min_interval_ms: 2000
  max_interval_ms: 300000
  # Consecutive successes before growing, consecutive errors before shrinking
  success_threshold: 3
  error_threshold: 3
  # Pending count above which a streak of successes grows the batch
  high_backlog_threshold: 20
  recovery_factor: 0.9
  backoff_factor: 1.5
  transport_backoff_factor: 2.0
  # Added to the server's retry hint after a rate limit
  retry_margin_ms: 1000
  # Slow down when remaining quota drops below this fraction of the limit
  quota_low_fraction: 0.2
  quota_multiplier: 1.5
  # Interval multiplier while nothing is pending
  idle_multiplier: 2.0
  diagnostics_every_runs: 10
  diagnostics_every_items: 500
  # Consecutive errors before the worker reports itself stalled (0 disables)
  stall_threshold: 20
  # Per-call timeout (0 = none)
  request_timeout_ms: 0

# Bank-sync progress display
sync:
  fetching_after_ms: 600
  syncing_after_ms: 1500
  tick_interval_ms: 400
  # How long a finished sync stays on screen
  dismiss_after_ms: 3000
  max_parallel: 3
  timeout_ms: 0

# Simulated backend used by "finpace simulate"
simulate:
  rate_per_minute: 120
  burst: 20
  backlog: 400
  accounts: 3

logging:
  enabled: true
  # debug, info, warn, error
  level: info
  max_size_mb: 10
  max_backups: 3

# OpenTelemetry export over OTLP/HTTP (leave endpoint empty to disable)
telemetry:
  endpoint: ""
  insecure: true

paths:
  # Log files and the account snapshot cache (default: ~/.local/share/finpace)
  data_dir: ""
`
