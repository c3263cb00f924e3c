package banksync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/finpace/internal/errors"
	"github.com/Iron-Ham/finpace/internal/event"
	"github.com/Iron-Ham/finpace/internal/logging"
)

// Result is the outcome of the remote sync call. Count is the number of
// transactions the server reported; it is ignored when Err is set.
type Result struct {
	Count int
	Err   error
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithSchedule sets the progress schedule.
func WithSchedule(s Schedule) TrackerOption {
	return func(t *Tracker) { t.schedule = s.normalize() }
}

// WithTrackerLogger sets the logger.
func WithTrackerLogger(l *logging.Logger) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// Tracker owns the progress sessions, one per account.
type Tracker struct {
	bus      *event.Bus
	schedule Schedule
	logger   *logging.Logger

	mu       sync.Mutex
	sessions map[string]*session
	wg       conc.WaitGroup
}

// NewTracker creates a Tracker publishing progress to bus. bus may be nil.
func NewTracker(bus *event.Bus, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		bus:      bus,
		schedule: DefaultSchedule(),
		logger:   logging.NopLogger(),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.WithComponent("sync")
	return t
}

// Schedule returns the schedule in use.
func (t *Tracker) Schedule() Schedule {
	return t.schedule
}

// session is the message interface to one owner goroutine.
type session struct {
	accountID string
	results   chan Result
	dismiss   chan struct{}
	done      chan struct{}
	once      sync.Once
	delivered atomic.Bool
	// replaced sessions exit without a dismissed event; the account's
	// new session owns the display.
	replaced atomic.Bool
	// dropped is set by a user dismissal; a late result is discarded.
	dropped atomic.Bool
	// prev is the session this one replaced. Its owner exits before this
	// one publishes, so the account's events stay ordered.
	prev *session

	mu       sync.RWMutex
	progress Progress
}

func (s *session) snapshot() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

func (s *session) requestDismiss() {
	s.once.Do(func() { close(s.dismiss) })
}

// step is one timer advance: move to phase (if later) and raise the
// counter to at least current.
type step struct {
	phase   Phase
	current int
}

// Start opens a session for accountID seeded with the account's last known
// transaction count. A session still waiting on its result makes Start fail
// with errors.ErrSyncInProgress; a finished or dismissed session is
// replaced.
func (t *Tracker) Start(accountID string, lastCount int) (Progress, error) {
	s, err := t.start(accountID, lastCount)
	if err != nil {
		return s.snapshot(), err
	}
	return s.snapshot(), nil
}

// start returns the new session, or the active one with
// errors.ErrSyncInProgress.
func (t *Tracker) start(accountID string, lastCount int) (*session, error) {
	t.mu.Lock()
	prev, ok := t.sessions[accountID]
	if ok {
		if !prev.dropped.Load() && !prev.snapshot().Phase.Terminal() {
			t.mu.Unlock()
			return prev, errors.ErrSyncInProgress
		}
		prev.replaced.Store(true)
		prev.requestDismiss()
	}

	estimate := EstimateTotal(lastCount)
	s := &session{
		accountID: accountID,
		results:   make(chan Result, 1),
		dismiss:   make(chan struct{}),
		done:      make(chan struct{}),
		prev:      prev,
		progress: Progress{
			AccountID:      accountID,
			EstimatedTotal: estimate,
			Phase:          PhaseConnecting,
			Message:        "Connecting to bank",
			UpdatedAt:      time.Now(),
		},
	}
	t.sessions[accountID] = s
	t.wg.Go(func() { t.own(s) })
	t.mu.Unlock()

	t.logger.WithAccount(accountID).Info("sync started",
		"last_count", lastCount,
		"estimated_total", estimate)
	return s, nil
}

// Update delivers the remote result for accountID's current session. Only
// the first result of a session counts; results for unknown or dismissed
// sessions are dropped. It reports whether the result reached a live
// session.
func (t *Tracker) Update(accountID string, r Result) bool {
	t.mu.Lock()
	s, ok := t.sessions[accountID]
	t.mu.Unlock()
	if !ok {
		t.logger.WithAccount(accountID).Debug("result for inactive session dropped")
		return false
	}
	return t.deliver(s, r)
}

// deliver hands r to s. A session that was dismissed or already has a
// result keeps what it shows.
func (t *Tracker) deliver(s *session, r Result) bool {
	if s.dropped.Load() {
		t.logger.WithAccount(s.accountID).Debug("result for dismissed session dropped")
		return false
	}
	if !s.delivered.CompareAndSwap(false, true) {
		return false
	}
	s.results <- r
	return true
}

// Dismiss removes the session from display. The remote call, if still
// running, is not affected; its result will be dropped.
func (t *Tracker) Dismiss(accountID string) {
	t.mu.Lock()
	s, ok := t.sessions[accountID]
	t.mu.Unlock()
	if ok {
		s.dropped.Store(true)
		s.requestDismiss()
	}
}

// Snapshot returns the current progress of accountID's session.
func (t *Tracker) Snapshot(accountID string) (Progress, bool) {
	t.mu.Lock()
	s, ok := t.sessions[accountID]
	t.mu.Unlock()
	if !ok {
		return Progress{}, false
	}
	return s.snapshot(), true
}

// Active returns the number of sessions currently displayed.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Close dismisses every session and waits for their goroutines to exit.
func (t *Tracker) Close() {
	t.mu.Lock()
	for _, s := range t.sessions {
		s.requestDismiss()
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// own is the session's single owner. It applies timer steps until the
// result arrives, then waits out the dismiss delay.
func (t *Tracker) own(s *session) {
	defer close(s.done)
	defer t.remove(s)

	if s.prev != nil {
		<-s.prev.done
		s.prev = nil
	}
	t.publish(s.snapshot())

	timerCtx, stopTimer := context.WithCancel(context.Background())
	defer stopTimer()

	steps := make(chan step)
	t.wg.Go(func() { t.runTimer(timerCtx, s.snapshot().EstimatedTotal, steps) })

	log := t.logger.WithAccount(s.accountID)
	ceiling := t.schedule.ceiling(s.snapshot().EstimatedTotal)
	results := s.results
	var (
		dismissTimer *time.Timer
		autoDismiss  <-chan time.Time
	)
	defer func() {
		if dismissTimer != nil {
			dismissTimer.Stop()
		}
	}()

	for {
		select {
		case st := <-steps:
			p := s.snapshot()
			if p.Phase.Terminal() {
				continue
			}
			p.Current = max(p.Current, min(st.current, ceiling))
			if st.phase > p.Phase {
				p.Phase = st.phase
				p.Message = phaseMessage(st.phase)
			}
			if p.Current >= ceiling && p.Phase < PhaseProcessing {
				p.Phase = PhaseProcessing
				p.Message = phaseMessage(PhaseProcessing)
			}
			if p.Phase == PhaseProcessing {
				stopTimer()
			}
			t.set(s, p)

		case r := <-results:
			results = nil
			if s.dropped.Load() {
				continue
			}
			stopTimer()
			t.finish(s, r, log)

			dismissTimer = time.NewTimer(t.schedule.DismissAfter)
			autoDismiss = dismissTimer.C

		case <-autoDismiss:
			t.publishDismissed(s.accountID, "auto")
			return

		case <-s.dismiss:
			if s.replaced.Load() {
				log.Debug("session replaced")
				return
			}
			// On Close, a result delivered before the dismissal is still
			// shown.
			if results != nil && !s.dropped.Load() {
				select {
				case r := <-results:
					t.finish(s, r, log)
				default:
				}
			}
			t.publishDismissed(s.accountID, "user")
			return
		}
	}
}

// finish moves the session to Complete or Error with the remote result.
func (t *Tracker) finish(s *session, r Result, log *logging.Logger) {
	p := s.snapshot()
	if r.Err != nil {
		p.Phase = PhaseError
		p.Err = r.Err
		p.Message = failureMessage(r.Err)
		logFailure(log, r.Err, p.Current)
	} else {
		count := max(r.Count, 0)
		p.FinalTotal = &count
		p.Current = max(p.Current, count)
		p.Phase = PhaseComplete
		p.Message = completeMessage(count)
		log.Info("sync complete", "count", count, "estimated_total", p.EstimatedTotal)
	}
	t.set(s, p)
}

// failureMessage is the row text for a failed sync. Errors not meant for
// users show a generic text; the detail goes to the log.
func failureMessage(err error) string {
	if !errors.IsUserFacing(err) {
		return "Sync failed"
	}
	return errors.UserMessage(err)
}

func logFailure(log *logging.Logger, err error, displayed int) {
	if errors.IsRateLimited(err) {
		retryAfter, _ := errors.RetryAfter(err)
		log.Warn("sync rate limited",
			"error", err.Error(),
			"retry_after", retryAfter.String(),
			"displayed", displayed)
		return
	}
	args := []any{
		"error", err.Error(),
		"transport", errors.IsTransport(err),
		"retryable", errors.IsRetryable(err),
		"displayed", displayed,
	}
	if errors.GetSeverity(err) >= errors.SeverityError {
		log.Error("sync failed", args...)
		return
	}
	log.Warn("sync failed", args...)
}

// runTimer sends the scheduled checkpoints and ticks until ctx is
// cancelled. It never reads session state; the owner clamps every value.
func (t *Tracker) runTimer(ctx context.Context, estimate int, steps chan<- step) {
	sched := t.schedule
	send := func(st step) bool {
		select {
		case steps <- st:
			return true
		case <-ctx.Done():
			return false
		}
	}
	wait := func(d time.Duration) bool {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !wait(sched.FetchingAfter) || !send(step{PhaseFetching, sched.checkpoint(estimate, sched.FetchingPercent)}) {
		return
	}
	if !wait(sched.SyncingAfter-sched.FetchingAfter) {
		return
	}
	current := sched.checkpoint(estimate, sched.SyncingPercent)
	if !send(step{PhaseSyncing, current}) {
		return
	}

	ticker := time.NewTicker(sched.TickInterval)
	defer ticker.Stop()
	inc := sched.tickStep(estimate)
	for {
		select {
		case <-ticker.C:
			current += inc
			if !send(step{PhaseSyncing, current}) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (t *Tracker) set(s *session, p Progress) {
	p.UpdatedAt = time.Now()
	s.mu.Lock()
	s.progress = p
	s.mu.Unlock()
	t.publish(p)
}

func (t *Tracker) remove(s *session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessions[s.accountID] == s {
		delete(t.sessions, s.accountID)
	}
}

func (t *Tracker) publish(p Progress) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(event.NewSyncProgressEvent(
		p.AccountID, p.Phase.String(), p.Current, p.Total(), p.Percent(),
		p.Message, p.Phase.Terminal(), p.Phase == PhaseError))
}

func (t *Tracker) publishDismissed(accountID, reason string) {
	t.logger.WithAccount(accountID).Debug("sync dismissed", "reason", reason)
	if t.bus != nil {
		t.bus.Publish(event.NewSyncDismissedEvent(accountID, reason))
	}
}
