package banksync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/finpace/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote serves fixed accounts and per-account sync results.
type fakeRemote struct {
	mu          sync.Mutex
	accounts    []AccountSnapshot
	accountsErr error
	counts      map[string]int
	errs        map[string]error
	block       chan struct{}
	synced      []string
}

func (f *fakeRemote) Accounts(ctx context.Context) ([]AccountSnapshot, error) {
	if f.accountsErr != nil {
		return nil, f.accountsErr
	}
	return append([]AccountSnapshot(nil), f.accounts...), nil
}

func (f *fakeRemote) Sync(ctx context.Context, accountID string) (int, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, accountID)
	if err := f.errs[accountID]; err != nil {
		return 0, err
	}
	return f.counts[accountID], nil
}

func (f *fakeRemote) syncedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := append([]string(nil), f.synced...)
	sort.Strings(ids)
	return ids
}

// memStore is an in-memory SnapshotStore.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]AccountSnapshot
}

func newMemStore(accounts ...AccountSnapshot) *memStore {
	s := &memStore{accounts: make(map[string]AccountSnapshot)}
	_ = s.PutAccounts(accounts...)
	return s
}

func (s *memStore) GetAccount(id string) (AccountSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	return a, ok, nil
}

func (s *memStore) PutAccounts(accounts ...AccountSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range accounts {
		s.accounts[a.PlaidID] = a
	}
	return nil
}

// stagedRemote answers the nth Sync call with counts[n] once gates[n] is
// closed.
type stagedRemote struct {
	fakeRemote
	callMu sync.Mutex
	calls  int
	gates  []chan struct{}
	counts []int
}

func (r *stagedRemote) Sync(ctx context.Context, accountID string) (int, error) {
	r.callMu.Lock()
	n := r.calls
	r.calls++
	r.callMu.Unlock()
	<-r.gates[n]
	return r.counts[n], nil
}

func (r *stagedRemote) started() int {
	r.callMu.Lock()
	defer r.callMu.Unlock()
	return r.calls
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSyncer(t *testing.T, remote Remote, opts ...SyncerOption) (*Syncer, *Tracker) {
	t.Helper()
	tr, _ := newTestTracker(t, fastSchedule(time.Hour))
	opts = append([]SyncerOption{WithSyncClock(func() time.Time { return fixedNow })}, opts...)
	return NewSyncer(remote, tr, opts...), tr
}

func TestSyncerSync(t *testing.T) {
	remote := &fakeRemote{
		accounts: []AccountSnapshot{{PlaidID: "acc_1", Name: "Checking", TransactionCount: 40}},
		counts:   map[string]int{"acc_1": 55},
	}
	store := newMemStore()
	s, tr := newTestSyncer(t, remote, WithSnapshotStore(store))

	count, err := s.Sync(context.Background(), "acc_1")

	require.NoError(t, err)
	assert.Equal(t, 55, count)

	require.Eventually(t, phaseIs(tr, "acc_1", PhaseComplete), waitFor, poll)
	p, _ := tr.Snapshot("acc_1")
	assert.Equal(t, 50, p.EstimatedTotal, "estimate seeded from the live snapshot")
	assert.Equal(t, 55, p.Total())

	cached, ok, err := store.GetAccount("acc_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 55, cached.TransactionCount)
	assert.Equal(t, "Checking", cached.Name)
	assert.Equal(t, fixedNow, cached.SyncedAt)
}

func TestSyncerFallsBackToCache(t *testing.T) {
	remote := &fakeRemote{
		accountsErr: errors.New("connection refused"),
		counts:      map[string]int{"acc_1": 101},
	}
	store := newMemStore(AccountSnapshot{PlaidID: "acc_1", TransactionCount: 100})
	s, tr := newTestSyncer(t, remote, WithSnapshotStore(store))

	_, err := s.Sync(context.Background(), "acc_1")
	require.NoError(t, err)

	require.Eventually(t, phaseIs(tr, "acc_1", PhaseComplete), waitFor, poll)
	p, _ := tr.Snapshot("acc_1")
	assert.Equal(t, 120, p.EstimatedTotal)
}

func TestSyncerUnknownAccount(t *testing.T) {
	remote := &fakeRemote{counts: map[string]int{"new": 4}}
	s, tr := newTestSyncer(t, remote)

	count, err := s.Sync(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	require.Eventually(t, phaseIs(tr, "new", PhaseComplete), waitFor, poll)
	p, _ := tr.Snapshot("new")
	assert.Equal(t, EstimateTotal(0), p.EstimatedTotal)

	snap, err := s.lastSnapshot(context.Background(), "other")
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)
	assert.Equal(t, AccountSnapshot{PlaidID: "other"}, snap)
}

func TestSyncerFailure(t *testing.T) {
	t.Run("sync error passes through", func(t *testing.T) {
		remote := &fakeRemote{errs: map[string]error{
			"acc_1": errors.NewSyncError("ITEM_LOGIN_REQUIRED", nil).WithAccountID("acc_1"),
		}}
		s, tr := newTestSyncer(t, remote)

		_, err := s.Sync(context.Background(), "acc_1")

		require.Error(t, err)
		assert.Equal(t, "ITEM_LOGIN_REQUIRED", errors.UserMessage(err))
		require.Eventually(t, phaseIs(tr, "acc_1", PhaseError), waitFor, poll)
		p, _ := tr.Snapshot("acc_1")
		assert.Equal(t, "ITEM_LOGIN_REQUIRED", p.Message)
	})

	t.Run("plain error is wrapped", func(t *testing.T) {
		remote := &fakeRemote{errs: map[string]error{"acc_1": fmt.Errorf("boom")}}
		s, _ := newTestSyncer(t, remote)

		_, err := s.Sync(context.Background(), "acc_1")

		var syncErr *errors.SyncError
		require.True(t, errors.As(err, &syncErr))
		assert.Equal(t, "acc_1", syncErr.AccountID)
		assert.Equal(t, "boom", syncErr.Message())
	})
}

func TestSyncerContextCancelled(t *testing.T) {
	remote := &fakeRemote{
		counts: map[string]int{"acc_1": 9},
		block:  make(chan struct{}),
	}
	s, tr := newTestSyncer(t, remote)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := s.Sync(ctx, "acc_1")
		errc <- err
	}()

	require.Eventually(t, func() bool { return tr.Active() == 1 }, waitFor, poll)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	_, err := s.Sync(context.Background(), "acc_1")
	assert.ErrorIs(t, err, errors.ErrSyncInProgress)

	close(remote.block)
	require.Eventually(t, phaseIs(tr, "acc_1", PhaseComplete), waitFor, poll,
		"the call keeps running and its result still lands")
}

func TestSyncerSyncAll(t *testing.T) {
	t.Run("empty list syncs every account", func(t *testing.T) {
		remote := &fakeRemote{
			accounts: []AccountSnapshot{{PlaidID: "a"}, {PlaidID: "b"}, {PlaidID: "c"}},
			counts:   map[string]int{"a": 1, "b": 2, "c": 3},
		}
		store := newMemStore()
		s, _ := newTestSyncer(t, remote, WithSnapshotStore(store), WithMaxParallel(2))

		require.NoError(t, s.SyncAll(context.Background(), nil))
		assert.Equal(t, []string{"a", "b", "c"}, remote.syncedIDs())

		cached, ok, _ := store.GetAccount("c")
		require.True(t, ok)
		assert.Equal(t, 3, cached.TransactionCount)
	})

	t.Run("failures are joined", func(t *testing.T) {
		remote := &fakeRemote{
			counts: map[string]int{"a": 1},
			errs: map[string]error{
				"b": errors.NewSyncError("b failed", nil),
				"c": errors.NewSyncError("c failed", nil),
			},
		}
		s, _ := newTestSyncer(t, remote, WithMaxParallel(1))

		err := s.SyncAll(context.Background(), []string{"a", "b", "c"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "b failed")
		assert.Contains(t, err.Error(), "c failed")
		assert.Equal(t, []string{"a", "b", "c"}, remote.syncedIDs())
	})

	t.Run("listing failure", func(t *testing.T) {
		remote := &fakeRemote{accountsErr: errors.New("down")}
		s, _ := newTestSyncer(t, remote)

		err := s.SyncAll(context.Background(), nil)
		assert.ErrorContains(t, err, "failed to list accounts")
	})
}

func TestSyncerRestartAfterDismiss(t *testing.T) {
	remote := &stagedRemote{
		gates:  []chan struct{}{make(chan struct{}), make(chan struct{})},
		counts: []int{7, 30},
	}
	s, tr := newTestSyncer(t, remote)

	type outcome struct {
		count int
		err   error
	}
	run := func() <-chan outcome {
		c := make(chan outcome, 1)
		go func() {
			n, err := s.Sync(context.Background(), "acc_1")
			c <- outcome{n, err}
		}()
		return c
	}

	first := run()
	require.Eventually(t, func() bool { return remote.started() == 1 }, waitFor, poll)
	tr.Dismiss("acc_1")

	second := run()
	require.Eventually(t, func() bool { return remote.started() == 2 }, waitFor, poll)

	close(remote.gates[0])
	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, 7, got.count)

	time.Sleep(20 * time.Millisecond)
	p, ok := tr.Snapshot("acc_1")
	require.True(t, ok)
	assert.False(t, p.Phase.Terminal(), "second session completed by the first call's result")
	assert.Nil(t, p.FinalTotal)

	close(remote.gates[1])
	got = <-second
	require.NoError(t, got.err)
	assert.Equal(t, 30, got.count)

	require.Eventually(t, phaseIs(tr, "acc_1", PhaseComplete), waitFor, poll)
	p, _ = tr.Snapshot("acc_1")
	assert.Equal(t, 30, p.Total())
}
