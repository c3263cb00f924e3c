package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/finpace/internal/categorize"
	"github.com/Iron-Ham/finpace/internal/config"
	"github.com/Iron-Ham/finpace/internal/pacing"
	"github.com/Iron-Ham/finpace/internal/telemetry"
	"github.com/Iron-Ham/finpace/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background categorization worker",
	Long: `Run the categorization worker until interrupted.

The worker calls the categorize endpoint in a loop. Batch size and interval
start from the configured values and adapt to the server: they grow while
calls succeed and shrink or slow down on errors, rate limits and low quota.

Edits to the batch size, interval, threshold and factor settings in the
worker section of the config file apply while running. The request timeout,
idle multiplier, diagnostics cadence and stall threshold are read at start.

Examples:
  # Run against the configured application
  finpace worker

  # Run a single batch and print the outcome
  finpace worker --once`,
	RunE: runWorker,
}

var workerOnce bool

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "Run a single batch and exit")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	w, err := newWorker(e, e.cfg.API.BaseURL)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if workerOnce {
		c := w.Controller()
		state, stats, delay := w.Step(ctx, c.Initial(), pacing.NewRunStatistics(time.Now()))
		_, _ = fmt.Fprintf(out, "processed=%d errors=%d next: %s (sleep %s)\n",
			stats.TotalProcessed, stats.TotalErrors, state.Params(), delay)
		return nil
	}

	detach := newStatusPrinter(out).Attach(e.bus)
	defer detach()

	if path := viper.ConfigFileUsed(); path != "" {
		r := newReloader(w, e.bus, e.logger)
		viper.OnConfigChange(r.onChange)
		viper.WatchConfig()
		e.logger.Info("watching config for changes", "path", path)
	}

	_, _ = fmt.Fprintf(out, "worker running against %s (Ctrl+C to stop)\n", e.cfg.API.BaseURL)
	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newWorker builds a worker for the categorize endpoint at baseURL using the
// loaded configuration.
func newWorker(e *env, baseURL string) (*worker.Worker, error) {
	wc := e.cfg.Worker

	instruments, err := telemetry.NewWorkerInstruments(nil)
	if err != nil {
		return nil, err
	}

	client := categorize.NewClient(baseURL, wc.EndpointPath,
		categorize.WithToken(e.cfg.API.Token),
		categorize.WithTimeout(wc.RequestTimeout()),
		categorize.WithLogger(e.logger),
	)

	return worker.New(client, newController(&wc),
		worker.WithLogger(e.logger),
		worker.WithBus(e.bus),
		worker.WithInstruments(instruments),
		worker.WithIdleMultiplier(wc.IdleMultiplier),
		worker.WithDiagnostics(wc.DiagnosticsEveryRuns, wc.DiagnosticsEveryItems),
		worker.WithStallThreshold(wc.StallThreshold),
	), nil
}

func newController(wc *config.WorkerConfig) *pacing.Controller {
	return pacing.NewController(wc.ControllerOptions()...)
}
