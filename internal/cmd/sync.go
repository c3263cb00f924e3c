package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/finpace/internal/banksync"
	"github.com/Iron-Ham/finpace/internal/config"
	"github.com/Iron-Ham/finpace/internal/store"
	"github.com/Iron-Ham/finpace/internal/tui"
)

var syncCmd = &cobra.Command{
	Use:   "sync [account-id...]",
	Short: "Sync bank accounts and show progress",
	Long: `Run a bank sync for the given accounts, or every linked account with --all.

The sync call is a single long-running request with no progress reporting.
While it runs, each account shows an estimated progress bar seeded from the
transaction count of its previous sync. The bar never claims completion
before the server answers.

Examples:
  # Sync one account
  finpace sync acc_1

  # Sync every linked account, three at a time
  finpace sync --all

  # Plain line output (default when stdout is not a terminal)
  finpace sync --all --plain`,
	RunE: runSync,
}

var (
	syncAll   bool
	syncPlain bool
)

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVar(&syncAll, "all", false, "Sync every linked account")
	syncCmd.Flags().BoolVar(&syncPlain, "plain", false, "Print one line per phase change instead of the interactive view")
}

func runSync(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !syncAll {
		return errors.New("specify one or more account IDs, or --all")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	st, err := store.Open(e.cfg.Paths.ResolveDataDir())
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	client := banksync.NewClient(e.cfg.API.BaseURL, banksync.WithClientToken(e.cfg.API.Token))
	return syncAccounts(ctx, e, client, st, args, cmd.OutOrStdout(), !syncPlain && tui.IsTerminal(os.Stdout))
}

// syncAccounts syncs ids (all accounts when empty) against remote and
// renders progress interactively or as plain lines.
func syncAccounts(ctx context.Context, e *env, remote banksync.Remote, st *store.AccountStore, ids []string, out io.Writer, interactive bool) error {
	tracker := banksync.NewTracker(e.bus,
		banksync.WithSchedule(syncSchedule(&e.cfg.Sync)),
		banksync.WithTrackerLogger(e.logger),
	)
	defer tracker.Close()

	syncer := banksync.NewSyncer(remote, tracker,
		banksync.WithSnapshotStore(st),
		banksync.WithSyncLogger(e.logger),
		banksync.WithSyncTimeout(e.cfg.Sync.Timeout()),
		banksync.WithMaxParallel(e.cfg.Sync.MaxParallel),
	)

	names := accountNames(st)
	work := func(ctx context.Context) error { return syncer.SyncAll(ctx, ids) }

	if interactive {
		res, err := tui.New(e.bus,
			tui.WithAccountNames(names),
			tui.WithDismiss(tracker.Dismiss),
		).Run(ctx, work)
		if res.Interrupted {
			_, _ = fmt.Fprintln(out, "sync interrupted")
			return nil
		}
		return err
	}

	printer := tui.NewPrinter(out, names)
	detach := printer.Attach(e.bus)
	err := work(ctx)
	// Close publishes any result still queued, so print before detaching.
	tracker.Close()
	detach()

	// Failures already show on their rows; a stopped run is not one.
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// accountNames maps cached account IDs to display names. A cold cache
// yields an empty map; rows then show the raw ID.
func accountNames(st *store.AccountStore) map[string]string {
	names := make(map[string]string)
	accounts, err := st.ListAccounts()
	if err != nil {
		return names
	}
	for _, a := range accounts {
		if a.Name != "" {
			names[a.PlaidID] = a.Name
		}
	}
	return names
}

func syncSchedule(sc *config.SyncConfig) banksync.Schedule {
	s := banksync.DefaultSchedule()
	s.FetchingAfter = sc.FetchingAfter()
	s.SyncingAfter = sc.SyncingAfter()
	s.TickInterval = sc.TickInterval()
	s.DismissAfter = sc.DismissAfter()
	return s
}
