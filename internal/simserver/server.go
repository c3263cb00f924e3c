package simserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/Iron-Ham/finpace/internal/banksync"
	"github.com/Iron-Ham/finpace/internal/categorize"
	"github.com/Iron-Ham/finpace/internal/logging"
)

// Default simulation parameters.
const (
	DefaultRatePerMinute = 120
	DefaultBurst         = 20
	DefaultBacklog       = 400
	DefaultAccounts      = 3
	DefaultSyncDelay     = 4 * time.Second
	DefaultNewPerSync    = 12

	// DefaultEndpointPath matches the worker's default endpoint.
	DefaultEndpointPath = "/api/transactions/categorize"
)

// Account is one simulated linked account.
type Account struct {
	PlaidID          string
	Name             string
	Balance          decimal.Decimal
	TransactionCount int
	// FailWith makes every sync of the account fail with this message.
	FailWith string
}

// Option configures a Server.
type Option func(*Server)

// WithRate sets the categorize quota in transactions per minute and the
// bucket size.
func WithRate(perMinute float64, burst int) Option {
	return func(s *Server) {
		if perMinute > 0 {
			s.perMinute = perMinute
		}
		if burst > 0 {
			s.burst = burst
		}
	}
}

// WithBacklog sets the number of uncategorized transactions.
func WithBacklog(n int) Option {
	return func(s *Server) { s.backlog = max(n, 0) }
}

// WithAccounts creates n generated accounts.
func WithAccounts(n int) Option {
	return func(s *Server) {
		s.accounts = nil
		for i := range max(n, 0) {
			s.accounts = append(s.accounts, generatedAccount(i))
		}
	}
}

// WithAccount adds a specific account.
func WithAccount(a Account) Option {
	return func(s *Server) { s.accounts = append(s.accounts, a) }
}

// WithSyncDelay sets how long a bank sync takes.
func WithSyncDelay(d time.Duration) Option {
	return func(s *Server) { s.syncDelay = max(d, 0) }
}

// WithNewPerSync sets how many new transactions each sync finds. They are
// added to the categorize backlog.
func WithNewPerSync(n int) Option {
	return func(s *Server) { s.newPerSync = max(n, 0) }
}

// WithToken requires a bearer token on every request.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithEndpointPath sets the categorize path.
func WithEndpointPath(path string) Option {
	return func(s *Server) {
		if path != "" {
			s.endpointPath = "/" + strings.TrimLeft(path, "/")
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock used for quota accounting.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// Server simulates the application backend.
type Server struct {
	perMinute    float64
	burst        int
	syncDelay    time.Duration
	newPerSync   int
	token        string
	endpointPath string
	logger       *logging.Logger
	now          func() time.Time

	mu       sync.Mutex
	limiter  *rate.Limiter
	backlog  int
	accounts []Account
	stats    Stats
}

// Stats counts what the server has seen.
type Stats struct {
	Requests    int
	Categorized int
	RateLimited int
	Syncs       int
}

// New creates a Server.
func New(opts ...Option) *Server {
	s := &Server{
		perMinute:    DefaultRatePerMinute,
		burst:        DefaultBurst,
		backlog:      DefaultBacklog,
		syncDelay:    DefaultSyncDelay,
		newPerSync:   DefaultNewPerSync,
		endpointPath: DefaultEndpointPath,
		logger:       logging.NopLogger(),
		now:          time.Now,
	}
	for i := range DefaultAccounts {
		s.accounts = append(s.accounts, generatedAccount(i))
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limiter = rate.NewLimiter(rate.Limit(s.perMinute/60), s.burst)
	s.logger = s.logger.WithComponent("simserver")
	return s
}

func generatedAccount(i int) Account {
	names := []string{"Checking", "Savings", "Credit Card", "Brokerage"}
	name := names[i%len(names)]
	if i >= len(names) {
		name = fmt.Sprintf("%s %d", name, i/len(names)+1)
	}
	return Account{
		PlaidID:          fmt.Sprintf("acc_%d", i+1),
		Name:             name,
		Balance:          decimal.New(int64(250000+i*137531), -2),
		TransactionCount: 40 + 35*i,
	}
}

// Handler returns the HTTP handler serving every simulated endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+s.endpointPath, s.handleCategorize)
	mux.HandleFunc("GET "+banksync.AccountsPath, s.handleAccounts)
	mux.HandleFunc("POST "+banksync.SyncPath, s.handleSync)
	return s.authenticate(mux)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("simulated backend listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Backlog returns the number of uncategorized transactions.
func (s *Server) Backlog() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backlog
}

// AddBacklog adds uncategorized transactions.
func (s *Server) AddBacklog(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backlog += max(n, 0)
}

// Stats returns a copy of the request counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// SetRate changes the quota; the bucket keeps its current tokens.
func (s *Server) SetRate(perMinute float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if perMinute > 0 {
		s.perMinute = perMinute
		s.limiter.SetLimitAt(s.now(), rate.Limit(perMinute/60))
	}
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	batch, err := strconv.Atoi(r.URL.Query().Get("batch_size"))
	if err != nil || batch < 1 {
		writeJSON(w, http.StatusBadRequest, categorize.Response{Error: "batch_size must be a positive integer"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Requests++
	now := s.now()

	cost := min(batch, max(s.backlog, 1))
	res := s.limiter.ReserveN(now, cost)
	if wait, ok := s.rejection(res, now, cost); !ok {
		s.stats.RateLimited++
		secs := int(math.Ceil(wait.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		s.quotaHeaders(w.Header(), now)
		s.logger.Debug("categorize rate limited", "batch_size", batch, "retry_in_s", secs)
		writeJSON(w, http.StatusTooManyRequests, categorize.Response{
			Error: fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", secs),
			Code:  categorize.CodeRateLimited,
			Metrics: &categorize.Metrics{
				RateLimitInfo: &categorize.ResetInfo{ResetIn: float64(secs)},
			},
		})
		return
	}

	done := min(batch, s.backlog)
	s.backlog -= done
	s.stats.Categorized += done
	s.quotaHeaders(w.Header(), now)
	writeJSON(w, http.StatusOK, categorize.Response{
		Categorized: done,
		Pending:     s.backlog,
		RateLimit:   s.quota(now),
	})
}

// rejection reports whether the reservation can be served now. When it
// cannot, the reservation is cancelled and the returned duration is when
// it could be.
func (s *Server) rejection(res *rate.Reservation, now time.Time, cost int) (time.Duration, bool) {
	if !res.OK() {
		// The batch exceeds the bucket; it can never pass.
		perSecond := s.perMinute / 60
		return time.Duration(float64(cost) / perSecond * float64(time.Second)), false
	}
	wait := res.DelayFrom(now)
	if wait > 0 {
		res.CancelAt(now)
		return wait, false
	}
	return 0, true
}

func (s *Server) quota(now time.Time) *categorize.RateLimitInfo {
	remaining := max(int(s.limiter.TokensAt(now)), 0)
	return &categorize.RateLimitInfo{
		Limit:     s.burst,
		Remaining: remaining,
		ResetAt:   s.fullAt(now, remaining).UnixMilli(),
	}
}

func (s *Server) quotaHeaders(h http.Header, now time.Time) {
	q := s.quota(now)
	h.Set("X-RateLimit-Limit", strconv.Itoa(q.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(q.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(q.ResetAt/1000, 10))
}

// fullAt returns when the bucket will be full again.
func (s *Server) fullAt(now time.Time, remaining int) time.Time {
	missing := float64(s.burst - remaining)
	perSecond := s.perMinute / 60
	return now.Add(time.Duration(missing / perSecond * float64(time.Second)))
}

type accountJSON struct {
	PlaidID          string          `json:"plaidId"`
	Name             string          `json:"name"`
	Balance          decimal.Decimal `json:"balance"`
	TransactionCount int             `json:"transactionCount"`
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]accountJSON, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, accountJSON{a.PlaidID, a.Name, a.Balance, a.TransactionCount})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

type syncAccountJSON struct {
	Account struct {
		PlaidID string `json:"plaidId"`
	} `json:"account"`
	Transactions int `json:"transactions"`
}

type syncResponseJSON struct {
	Success  bool              `json:"success"`
	Accounts []syncAccountJSON `json:"accounts"`
	Error    string            `json:"error,omitempty"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"accountId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		writeJSON(w, http.StatusBadRequest, syncResponseJSON{Error: "accountId is required"})
		return
	}

	s.mu.Lock()
	idx := s.accountIndex(req.AccountID)
	s.mu.Unlock()
	if idx < 0 {
		writeJSON(w, http.StatusNotFound, syncResponseJSON{Error: "Account not found"})
		return
	}

	log := s.logger.WithAccount(req.AccountID)
	log.Debug("bank sync started", "delay", s.syncDelay.String())

	timer := time.NewTimer(s.syncDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-r.Context().Done():
		log.Debug("bank sync abandoned by client")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Syncs++
	a := &s.accounts[idx]
	if a.FailWith != "" {
		writeJSON(w, http.StatusOK, syncResponseJSON{Error: a.FailWith})
		return
	}

	a.TransactionCount += s.newPerSync
	s.backlog += s.newPerSync

	entry := syncAccountJSON{Transactions: a.TransactionCount}
	entry.Account.PlaidID = a.PlaidID
	writeJSON(w, http.StatusOK, syncResponseJSON{Success: true, Accounts: []syncAccountJSON{entry}})
}

func (s *Server) accountIndex(id string) int {
	for i, a := range s.accounts {
		if a.PlaidID == id {
			return i
		}
	}
	return -1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
