package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/finpace/internal/banksync"
	"github.com/Iron-Ham/finpace/internal/simserver"
	"github.com/Iron-Ham/finpace/internal/store"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the worker against a simulated backend",
	Long: `Start an in-process backend that enforces a categorization quota, then
run the worker (and optionally bank syncs) against it.

The backend answers the same endpoints as the web application: it rate
limits categorize calls, reports remaining quota, and delays sync calls.
Use it to watch the worker adapt without touching real data.

Examples:
  # Run for two minutes with the configured quota
  finpace simulate --duration 2m

  # Tighter quota, plus a sync of every simulated account
  finpace simulate --rate 30 --sync`,
	RunE: runSimulate,
}

var (
	simulateAddr     string
	simulateDuration time.Duration
	simulateRate     int
	simulateSync     bool
)

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVar(&simulateAddr, "addr", "127.0.0.1:0", "Listen address of the simulated backend")
	simulateCmd.Flags().DurationVar(&simulateDuration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	simulateCmd.Flags().IntVar(&simulateRate, "rate", 0, "Categorize quota per minute (overrides simulate.rate_per_minute)")
	simulateCmd.Flags().BoolVar(&simulateSync, "sync", false, "Also sync every simulated account once")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if simulateDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, simulateDuration)
		defer cancel()
	}

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	sc := e.cfg.Simulate
	perMinute := sc.RatePerMinute
	if simulateRate > 0 {
		perMinute = simulateRate
	}
	srv := simserver.New(
		simserver.WithRate(float64(perMinute), sc.Burst),
		simserver.WithBacklog(sc.Backlog),
		simserver.WithAccounts(sc.Accounts),
		simserver.WithToken(e.cfg.API.Token),
		simserver.WithEndpointPath(e.cfg.Worker.EndpointPath),
		simserver.WithLogger(e.logger),
	)

	ln, err := net.Listen("tcp", simulateAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", simulateAddr, err)
	}
	baseURL := "http://" + ln.Addr().String()

	w, err := newWorker(e, baseURL)
	if err != nil {
		_ = ln.Close()
		return err
	}

	out := cmd.OutOrStdout()
	detach := newStatusPrinter(out).Attach(e.bus)
	defer detach()

	_, _ = fmt.Fprintf(out, "simulated backend at %s: %d/min, backlog %d, %d accounts\n",
		baseURL, perMinute, sc.Backlog, sc.Accounts)

	var errs []error
	var wg conc.WaitGroup
	wg.Go(func() {
		if err := srv.Serve(ctx, ln); err != nil {
			errs = append(errs, fmt.Errorf("simulated backend: %w", err))
		}
	})

	var syncErr error
	if simulateSync {
		wg.Go(func() {
			// Snapshots stay in memory so simulated accounts never reach the real cache.
			st, err := store.Open("")
			if err != nil {
				syncErr = err
				return
			}
			defer func() { _ = st.Close() }()
			client := banksync.NewClient(baseURL, banksync.WithClientToken(e.cfg.API.Token))
			syncErr = syncAccounts(ctx, e, client, st, nil, out, false)
		})
	}

	runErr := w.Run(ctx)
	wg.Wait()

	stats := srv.Stats()
	_, _ = fmt.Fprintf(out, "\nrequests=%d categorized=%d rate_limited=%d syncs=%d backlog_left=%d\n",
		stats.Requests, stats.Categorized, stats.RateLimited, stats.Syncs, srv.Backlog())

	if ctx.Err() != nil {
		runErr = nil
	}
	return errors.Join(append(errs, runErr, syncErr)...)
}
