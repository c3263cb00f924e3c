package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Iron-Ham/finpace/internal/banksync"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]*AccountStore {
	t.Helper()
	disk, err := Open(t.TempDir())
	require.NoError(t, err)
	mem, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = disk.Close()
		_ = mem.Close()
	})
	return map[string]*AccountStore{"bolt": disk, "memory": mem}
}

func TestAccountStoreRoundTrip(t *testing.T) {
	syncedAt := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.GetAccount("acc_1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.PutAccounts(banksync.AccountSnapshot{
				PlaidID:          "acc_1",
				Name:             "Checking",
				Balance:          decimal.RequireFromString("1520.07"),
				TransactionCount: 88,
				SyncedAt:         syncedAt,
			}))

			got, ok, err := s.GetAccount("acc_1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "Checking", got.Name)
			assert.Equal(t, 88, got.TransactionCount)
			assert.True(t, got.Balance.Equal(decimal.RequireFromString("1520.07")))
			assert.True(t, got.SyncedAt.Equal(syncedAt))
		})
	}
}

func TestAccountStoreKeepsSyncedAt(t *testing.T) {
	syncedAt := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.PutAccounts(banksync.AccountSnapshot{PlaidID: "acc_1", TransactionCount: 10, SyncedAt: syncedAt}))
			// Server snapshots carry no sync time.
			require.NoError(t, s.PutAccounts(banksync.AccountSnapshot{PlaidID: "acc_1", TransactionCount: 12}))

			got, _, err := s.GetAccount("acc_1")
			require.NoError(t, err)
			assert.Equal(t, 12, got.TransactionCount)
			assert.True(t, got.SyncedAt.Equal(syncedAt))
		})
	}
}

func TestAccountStoreListAndDelete(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.PutAccounts(
				banksync.AccountSnapshot{PlaidID: "c", Name: "Savings"},
				banksync.AccountSnapshot{PlaidID: "b", Name: "Checking"},
				banksync.AccountSnapshot{PlaidID: "a", Name: "Checking"},
			))

			list, err := s.ListAccounts()
			require.NoError(t, err)
			ids := make([]string, len(list))
			for i, a := range list {
				ids[i] = a.PlaidID
			}
			assert.Equal(t, []string{"a", "b", "c"}, ids)

			require.NoError(t, s.DeleteAccount("b"))
			_, ok, err := s.GetAccount("b")
			require.NoError(t, err)
			assert.False(t, ok)

			list, err = s.ListAccounts()
			require.NoError(t, err)
			assert.Len(t, list, 2)
		})
	}
}

func TestAccountStorePersists(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.PutAccounts(banksync.AccountSnapshot{PlaidID: "acc_1", TransactionCount: 3}))
	require.NoError(t, s.Close())

	_, err = os.Stat(filepath.Join(dir, FileName))
	require.NoError(t, err)

	s, err = Open(dir)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, ok, err := s.GetAccount("acc_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, got.TransactionCount)
}

func TestAccountStoreAsSnapshotStore(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	require.NoError(t, s.PutAccounts(banksync.AccountSnapshot{PlaidID: "acc_1", TransactionCount: 100}))

	var _ banksync.SnapshotStore = s
	got, ok, err := s.GetAccount("acc_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 120, banksync.EstimateTotal(got.TransactionCount))
}
