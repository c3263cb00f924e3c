package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/finpace/internal/banksync"
	"github.com/Iron-Ham/finpace/internal/errors"
	"github.com/Iron-Ham/finpace/internal/store"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List linked accounts",
	Long: `List the linked accounts known to finpace.

By default the local snapshot cache is shown: balances and transaction counts
as of each account's last sync. Use --refresh to fetch the current list from
the application and update the cache first.`,
	RunE: runAccounts,
}

var accountsRefresh bool

func init() {
	rootCmd.AddCommand(accountsCmd)

	accountsCmd.Flags().BoolVar(&accountsRefresh, "refresh", false, "Fetch accounts from the application before listing")
}

func runAccounts(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	st, err := store.Open(e.cfg.Paths.ResolveDataDir())
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if accountsRefresh {
		client := banksync.NewClient(e.cfg.API.BaseURL, banksync.WithClientToken(e.cfg.API.Token))
		if err := refreshAccounts(cmd.Context(), client, st); err != nil {
			return err
		}
	}

	accounts, err := st.ListAccounts()
	if err != nil {
		return err
	}
	printAccounts(cmd.OutOrStdout(), accounts)
	return nil
}

// refreshAccounts replaces the cached snapshots with the remote list.
func refreshAccounts(ctx context.Context, remote banksync.Remote, st *store.AccountStore) error {
	accounts, err := remote.Accounts(ctx)
	if errors.Is(err, errors.ErrUnauthorized) {
		return fmt.Errorf("%w\nCheck api.token with 'finpace config show'", err)
	}
	if err != nil {
		return err
	}
	if err := st.PutAccounts(accounts...); err != nil {
		return fmt.Errorf("failed to cache accounts: %w", err)
	}
	return nil
}

func printAccounts(w io.Writer, accounts []banksync.AccountSnapshot) {
	if len(accounts) == 0 {
		_, _ = fmt.Fprintln(w, "No accounts cached. Run 'finpace accounts --refresh' or 'finpace sync --all'.")
		return
	}

	_, _ = fmt.Fprintf(w, "%-16s %-20s %14s %8s  %s\n", "ID", "NAME", "BALANCE", "TXNS", "LAST SYNC")
	for _, a := range accounts {
		synced := "never"
		if !a.SyncedAt.IsZero() {
			synced = a.SyncedAt.Local().Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%-16s %-20s %14s %8d  %s\n",
			a.PlaidID, a.Name, a.Balance.StringFixed(2), a.TransactionCount, synced)
	}
}
