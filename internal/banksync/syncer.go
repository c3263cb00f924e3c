package banksync

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/finpace/internal/errors"
	"github.com/Iron-Ham/finpace/internal/logging"
	"github.com/Iron-Ham/finpace/internal/telemetry"
)

const defaultMaxParallel = 3

// SnapshotStore caches account snapshots between runs.
type SnapshotStore interface {
	GetAccount(accountID string) (AccountSnapshot, bool, error)
	PutAccounts(accounts ...AccountSnapshot) error
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithSnapshotStore sets the local snapshot cache.
func WithSnapshotStore(s SnapshotStore) SyncerOption {
	return func(sy *Syncer) { sy.store = s }
}

// WithSyncLogger sets the logger.
func WithSyncLogger(l *logging.Logger) SyncerOption {
	return func(sy *Syncer) {
		if l != nil {
			sy.logger = l
		}
	}
}

// WithSyncTimeout bounds each remote sync call. Zero means no bound.
func WithSyncTimeout(d time.Duration) SyncerOption {
	return func(sy *Syncer) { sy.timeout = max(d, 0) }
}

// WithMaxParallel caps concurrent syncs in SyncAll.
func WithMaxParallel(n int) SyncerOption {
	return func(sy *Syncer) {
		if n > 0 {
			sy.maxParallel = n
		}
	}
}

// WithSyncClock sets the clock used to stamp cached snapshots.
func WithSyncClock(now func() time.Time) SyncerOption {
	return func(sy *Syncer) {
		if now != nil {
			sy.now = now
		}
	}
}

// Syncer runs bank syncs and reports them to a Tracker.
type Syncer struct {
	remote      Remote
	tracker     *Tracker
	store       SnapshotStore
	logger      *logging.Logger
	tracer      trace.Tracer
	timeout     time.Duration
	maxParallel int
	now         func() time.Time
}

// NewSyncer creates a Syncer.
func NewSyncer(remote Remote, tracker *Tracker, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		remote:      remote,
		tracker:     tracker,
		logger:      logging.NopLogger(),
		tracer:      telemetry.Tracer("finpace/banksync"),
		maxParallel: defaultMaxParallel,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("sync")
	return s
}

// Sync runs one account's sync to completion and returns its transaction
// count. If ctx ends first, Sync returns ctx.Err() while the remote call
// keeps running; its result still reaches the tracker.
func (s *Syncer) Sync(ctx context.Context, accountID string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "banksync.sync", trace.WithAttributes(
		attribute.String("account_id", accountID),
	))
	defer span.End()

	log := s.logger.WithAccount(accountID)
	snap, err := s.lastSnapshot(ctx, accountID)
	known := err == nil
	if errors.Is(err, errors.ErrAccountNotFound) {
		log.Debug("no previous snapshot; using the default estimate")
	}
	sess, err := s.tracker.start(accountID, snap.TransactionCount)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	// The call outlives both ctx and the session's dismissal.
	callCtx := context.WithoutCancel(ctx)
	done := make(chan Result, 1)
	go func() {
		if s.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, s.timeout)
			defer cancel()
		}
		count, err := s.remote.Sync(callCtx, accountID)
		r := Result{Count: count, Err: err}
		// Delivered to this call's own session; a newer one for the
		// same account waits for its own result.
		if !s.tracker.deliver(sess, r) {
			log.Debug("sync result not shown; session was dismissed")
		}
		if err == nil {
			s.remember(accountID, snap, known, count)
		}
		done <- r
	}()

	select {
	case r := <-done:
		if r.Err != nil {
			span.RecordError(r.Err)
			span.SetStatus(codes.Error, "sync failed")
			var syncErr *errors.SyncError
			if !errors.As(r.Err, &syncErr) {
				r.Err = errors.NewSyncError(errors.UserMessage(r.Err), r.Err).WithAccountID(accountID)
			}
			return 0, r.Err
		}
		span.SetAttributes(attribute.Int("transactions", r.Count))
		return r.Count, nil
	case <-ctx.Done():
		log.Info("stopped waiting for sync; call continues in background")
		return 0, ctx.Err()
	}
}

// SyncAll syncs the given accounts concurrently, at most MaxParallel at a
// time. An empty list syncs every account the snapshot endpoint knows. The
// returned error joins every account's failure.
func (s *Syncer) SyncAll(ctx context.Context, accountIDs []string) error {
	if len(accountIDs) == 0 {
		accounts, err := s.remote.Accounts(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to list accounts")
		}
		s.cache(accounts...)
		for _, a := range accounts {
			accountIDs = append(accountIDs, a.PlaidID)
		}
	}

	p := pool.New().WithErrors().WithMaxGoroutines(s.maxParallel)
	for _, id := range accountIDs {
		p.Go(func() error {
			_, err := s.Sync(ctx, id)
			return err
		})
	}
	return p.Wait()
}

// lastSnapshot prefers the live snapshot endpoint and falls back to the
// local cache. An account neither knows gets a zero snapshot and
// errors.ErrAccountNotFound.
func (s *Syncer) lastSnapshot(ctx context.Context, accountID string) (AccountSnapshot, error) {
	log := s.logger.WithAccount(accountID)

	accounts, err := s.remote.Accounts(ctx)
	if err == nil {
		s.cache(accounts...)
		for _, a := range accounts {
			if a.PlaidID == accountID {
				return a, nil
			}
		}
		log.Warn("account missing from snapshot endpoint")
	} else {
		log.Warn("snapshot endpoint failed, using cache", "error", err.Error())
	}

	if s.store != nil {
		snap, ok, err := s.store.GetAccount(accountID)
		if err != nil {
			log.Warn("snapshot cache read failed", "error", err.Error())
		} else if ok {
			return snap, nil
		}
	}
	return AccountSnapshot{PlaidID: accountID}, errors.Wrapf(errors.ErrAccountNotFound, "account %s", accountID)
}

func (s *Syncer) remember(accountID string, snap AccountSnapshot, known bool, count int) {
	if !known {
		snap = AccountSnapshot{PlaidID: accountID}
	}
	snap.TransactionCount = count
	snap.SyncedAt = s.now()
	s.cache(snap)
}

func (s *Syncer) cache(accounts ...AccountSnapshot) {
	if s.store == nil || len(accounts) == 0 {
		return
	}
	if err := s.store.PutAccounts(accounts...); err != nil {
		s.logger.Warn("snapshot cache write failed", "error", err.Error())
	}
}
