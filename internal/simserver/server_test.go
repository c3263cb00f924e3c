package simserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/finpace/internal/banksync"
	"github.com/Iron-Ham/finpace/internal/categorize"
	"github.com/Iron-Ham/finpace/internal/errors"
	"github.com/Iron-Ham/finpace/internal/pacing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func startServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	s := New(opts...)
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)
	return s, hs
}

func categorizeOnce(t *testing.T, baseURL string, batch int, now time.Time) pacing.Signal {
	t.Helper()
	resp, err := http.Post(baseURL+DefaultEndpointPath+"?batch_size="+strconv.Itoa(batch), "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return categorize.ToSignal(resp.StatusCode, resp.Header, body, now)
}

func TestCategorizeWithinQuota(t *testing.T) {
	clock := newManualClock()
	s, hs := startServer(t, WithRate(60, 10), WithBacklog(25), WithClock(clock.Now))

	sig := categorizeOnce(t, hs.URL, 5, clock.Now())

	require.True(t, sig.IsSuccess(), "signal = %+v", sig)
	assert.Equal(t, 5, sig.ItemsProcessed)
	assert.Equal(t, 20, sig.ItemsPending)
	require.NotNil(t, sig.Quota)
	assert.Equal(t, 10, sig.Quota.Limit)
	assert.Equal(t, 5, sig.Quota.Remaining)
	assert.Equal(t, 20, s.Backlog())
	assert.Equal(t, Stats{Requests: 1, Categorized: 5}, s.Stats())
}

func TestCategorizeRateLimited(t *testing.T) {
	clock := newManualClock()
	s, hs := startServer(t, WithRate(60, 10), WithBacklog(100), WithClock(clock.Now))

	require.True(t, categorizeOnce(t, hs.URL, 5, clock.Now()).IsSuccess())

	sig := categorizeOnce(t, hs.URL, 10, clock.Now())
	assert.Equal(t, pacing.Failure, sig.Outcome)
	assert.True(t, sig.RateLimited)
	assert.Equal(t, 5*time.Second, sig.RetryAfter)
	assert.Equal(t, 1, s.Stats().RateLimited)
	assert.Equal(t, 95, s.Backlog(), "rejected batches categorize nothing")

	clock.Advance(5 * time.Second)
	sig = categorizeOnce(t, hs.URL, 10, clock.Now())
	assert.True(t, sig.IsSuccess(), "the cancelled reservation returns its tokens")
	assert.Equal(t, 85, s.Backlog())
}

func TestCategorizeBatchLargerThanBucket(t *testing.T) {
	clock := newManualClock()
	_, hs := startServer(t, WithRate(60, 10), WithBacklog(100), WithClock(clock.Now))

	resp, err := http.Post(hs.URL+DefaultEndpointPath+"?batch_size=20", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "20", resp.Header.Get("Retry-After"))

	var body categorize.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, categorize.CodeRateLimited, body.Code)
	require.NotNil(t, body.Metrics)
	require.NotNil(t, body.Metrics.RateLimitInfo)
	assert.Equal(t, 20.0, body.Metrics.RateLimitInfo.ResetIn)
}

func TestCategorizeEmptyBacklog(t *testing.T) {
	_, hs := startServer(t, WithBacklog(0))

	sig := categorizeOnce(t, hs.URL, 5, time.Now())

	require.True(t, sig.IsSuccess())
	assert.True(t, sig.Idle())
}

func TestCategorizeBadBatchSize(t *testing.T) {
	_, hs := startServer(t)

	for _, q := range []string{"", "?batch_size=0", "?batch_size=abc"} {
		resp, err := http.Post(hs.URL+DefaultEndpointPath+q, "application/json", nil)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "query %q", q)
	}
}

func TestCategorizeThroughClient(t *testing.T) {
	_, hs := startServer(t, WithRate(600, 50), WithBacklog(12), WithToken("tok"))

	c := categorize.NewClient(hs.URL, DefaultEndpointPath, categorize.WithToken("tok"))
	sig, err := c.Categorize(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, 8, sig.ItemsProcessed)
	assert.Equal(t, 4, sig.ItemsPending)

	sig, err = categorize.NewClient(hs.URL, DefaultEndpointPath).Categorize(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, pacing.Failure, sig.Outcome, "missing token is rejected")
	assert.False(t, sig.RateLimited)
}

func TestAccounts(t *testing.T) {
	_, hs := startServer(t,
		WithAccounts(0),
		WithAccount(Account{PlaidID: "acc_x", Name: "Joint", Balance: decimal.RequireFromString("99.95"), TransactionCount: 7}),
	)

	accounts, err := banksync.NewClient(hs.URL).Accounts(context.Background())

	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "acc_x", accounts[0].PlaidID)
	assert.Equal(t, "Joint", accounts[0].Name)
	assert.Equal(t, 7, accounts[0].TransactionCount)
	assert.True(t, accounts[0].Balance.Equal(decimal.RequireFromString("99.95")))
}

func TestGeneratedAccounts(t *testing.T) {
	s := New(WithAccounts(5))

	require.Len(t, s.accounts, 5)
	assert.Equal(t, "acc_1", s.accounts[0].PlaidID)
	assert.Equal(t, "Checking", s.accounts[0].Name)
	assert.Equal(t, "Checking 2", s.accounts[4].Name)
	assert.Equal(t, 40, s.accounts[0].TransactionCount)
}

func TestSync(t *testing.T) {
	s, hs := startServer(t,
		WithAccounts(0),
		WithAccount(Account{PlaidID: "ok", TransactionCount: 30}),
		WithAccount(Account{PlaidID: "broken", FailWith: "ITEM_LOGIN_REQUIRED"}),
		WithSyncDelay(0),
		WithNewPerSync(6),
		WithBacklog(0),
	)
	c := banksync.NewClient(hs.URL)

	count, err := c.Sync(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, 36, count)
	assert.Equal(t, 6, s.Backlog(), "new transactions join the categorize backlog")

	_, err = c.Sync(context.Background(), "broken")
	require.Error(t, err)
	assert.Equal(t, "ITEM_LOGIN_REQUIRED", errors.UserMessage(err))

	_, err = c.Sync(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, "Account not found", errors.UserMessage(err))

	assert.Equal(t, 2, s.Stats().Syncs)
}

func TestSyncAbandoned(t *testing.T) {
	s, hs := startServer(t, WithSyncDelay(5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := banksync.NewClient(hs.URL).Sync(ctx, "acc_1")

	require.Error(t, err)
	assert.Equal(t, 0, s.Stats().Syncs)
}

func TestSetRate(t *testing.T) {
	clock := newManualClock()
	s, hs := startServer(t, WithRate(60, 10), WithBacklog(100), WithClock(clock.Now))

	require.True(t, categorizeOnce(t, hs.URL, 10, clock.Now()).IsSuccess())
	s.SetRate(600)

	clock.Advance(time.Second)
	sig := categorizeOnce(t, hs.URL, 10, clock.Now())
	assert.True(t, sig.IsSuccess(), "ten tokens refill in one second at 600/min")
}

func TestListenAndServe(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not return after cancel")
	}
}
