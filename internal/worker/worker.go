package worker

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/finpace/internal/event"
	"github.com/Iron-Ham/finpace/internal/logging"
	"github.com/Iron-Ham/finpace/internal/pacing"
	"github.com/Iron-Ham/finpace/internal/telemetry"
)

// Default worker values.
const (
	defaultIdleMultiplier        = 2.0
	defaultDiagnosticsEveryRuns  = 10
	defaultDiagnosticsEveryItems = 500
	defaultStallThreshold        = 20
)

// Categorizer issues one batch call. A non-nil error means the server was
// never heard from.
type Categorizer interface {
	Categorize(ctx context.Context, batchSize int) (pacing.Signal, error)
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithBus sets the bus that receives diagnostics, tuning and stall events.
func WithBus(b *event.Bus) Option {
	return func(w *Worker) { w.bus = b }
}

// WithTracer sets the tracer used for per-batch spans.
func WithTracer(t trace.Tracer) Option {
	return func(w *Worker) {
		if t != nil {
			w.tracer = t
		}
	}
}

// WithInstruments sets the metric instruments.
func WithInstruments(wi *telemetry.WorkerInstruments) Option {
	return func(w *Worker) { w.instruments = wi }
}

// WithIdleMultiplier sets the factor applied to the base interval when the
// backlog is empty. Values below 1 are ignored.
func WithIdleMultiplier(f float64) Option {
	return func(w *Worker) {
		if f >= 1 {
			w.idleMultiplier = f
		}
	}
}

// WithDiagnostics sets how often diagnostics are emitted: every runs
// iterations or every items processed transactions, whichever comes first.
func WithDiagnostics(runs, items int) Option {
	return func(w *Worker) {
		if runs > 0 {
			w.diagEveryRuns = runs
		}
		if items > 0 {
			w.diagEveryItems = items
		}
	}
}

// WithStallThreshold sets the consecutive error count that raises a stall
// alert. Zero disables the alert.
func WithStallThreshold(n int) Option {
	return func(w *Worker) { w.stallThreshold = max(n, 0) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithSleeper overrides how Run waits between iterations. The function must
// return ctx.Err() when ctx is cancelled.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(w *Worker) {
		if sleep != nil {
			w.sleep = sleep
		}
	}
}

// Worker drives the categorization loop.
type Worker struct {
	client      Categorizer
	bus         *event.Bus
	logger      *logging.Logger
	tracer      trace.Tracer
	instruments *telemetry.WorkerInstruments
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error

	idleMultiplier float64
	diagEveryRuns  int
	diagEveryItems int
	stallThreshold int

	mu         sync.Mutex
	controller *pacing.Controller
	state      pacing.TuningState
	stats      pacing.RunStatistics

	// Owned by the goroutine driving Step.
	diagRuns    int
	diagItems   int
	stalled     bool
	streakStart time.Time
}

// New creates a Worker.
func New(client Categorizer, controller *pacing.Controller, opts ...Option) *Worker {
	if controller == nil {
		controller = pacing.NewController()
	}
	w := &Worker{
		client:         client,
		controller:     controller,
		logger:         logging.NopLogger(),
		tracer:         telemetry.Tracer("finpace/worker"),
		now:            time.Now,
		sleep:          sleepContext,
		idleMultiplier: defaultIdleMultiplier,
		diagEveryRuns:  defaultDiagnosticsEveryRuns,
		diagEveryItems: defaultDiagnosticsEveryItems,
		stallThreshold: defaultStallThreshold,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent("worker")
	return w
}

// Controller returns the controller currently in use.
func (w *Worker) Controller() *pacing.Controller {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.controller
}

// Reconfigure swaps the controller. The running state is clamped into the
// new bounds at the start of the next iteration; streaks are kept.
func (w *Worker) Reconfigure(c *pacing.Controller) {
	if c == nil {
		return
	}
	w.mu.Lock()
	w.controller = c
	w.mu.Unlock()
	w.logger.Info("controller reconfigured")
}

// Snapshot returns the state and statistics after the most recent Run
// iteration.
func (w *Worker) Snapshot() (pacing.TuningState, pacing.RunStatistics) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state, w.stats
}

// Run starts from the controller's initial state and iterates until ctx is
// cancelled, returning ctx.Err().
func (w *Worker) Run(ctx context.Context) error {
	state := w.Controller().Initial()
	stats := pacing.NewRunStatistics(w.now())
	w.publishSnapshot(state, stats)

	w.logger.Info("worker started",
		"batch_size", state.BatchSize,
		"interval", state.Interval.String())

	for {
		var delay time.Duration
		state, stats, delay = w.Step(ctx, state, stats)
		w.publishSnapshot(state, stats)

		if err := w.sleep(ctx, delay); err != nil {
			w.logger.Info("worker stopped",
				"runs", stats.TotalRuns,
				"processed", stats.TotalProcessed,
				"errors", stats.TotalErrors,
				"rate_limit_hits", stats.RateLimitHits)
			return err
		}
	}
}

func (w *Worker) publishSnapshot(state pacing.TuningState, stats pacing.RunStatistics) {
	w.mu.Lock()
	w.state = state
	w.stats = stats
	w.mu.Unlock()
}

// Step performs one iteration: call, classify, update, record. It returns
// the next state, the updated statistics and how long to wait before the
// next call. If ctx is cancelled during the call, the inputs are returned
// unchanged with a zero delay.
func (w *Worker) Step(ctx context.Context, state pacing.TuningState, stats pacing.RunStatistics) (pacing.TuningState, pacing.RunStatistics, time.Duration) {
	c := w.Controller()

	if clamped := c.Clamp(state); clamped.Params() != state.Params() {
		w.tuningChanged(state.Params(), clamped.Params(), "reload")
		state = clamped
	}
	used := state.Params()

	ctx, span := w.tracer.Start(ctx, "worker.batch", trace.WithAttributes(
		attribute.Int("batch_size", used.BatchSize),
		attribute.Int64("interval_ms", used.Interval.Milliseconds()),
	))
	sig, err := w.client.Categorize(ctx, used.BatchSize)
	now := w.now()

	var (
		next    pacing.TuningState
		cause   string
		lastErr string
		delay   time.Duration
	)
	switch {
	case err != nil && ctx.Err() != nil:
		span.End()
		return state, stats, 0

	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		next = c.ObserveTransportFailure(state)
		stats = stats.RecordTransportFailure()
		cause = "transport"
		lastErr = err.Error()
		w.logger.Warn("batch call failed",
			"error", lastErr,
			"consecutive_errors", next.ConsecutiveErrors,
			"next_interval", next.Interval.String())

	default:
		span.SetAttributes(
			attribute.String("outcome", sig.Outcome.String()),
			attribute.Bool("rate_limited", sig.RateLimited),
			attribute.Int("processed", sig.ItemsProcessed),
			attribute.Int("pending", sig.ItemsPending),
		)
		next = c.Update(state, sig)
		stats = stats.Record(sig, used, now)
		cause = outcomeCause(sig)
		w.logOutcome(sig, next)
		if !sig.IsSuccess() {
			span.SetStatus(codes.Error, sig.Message)
			lastErr = sig.Message
		}
	}
	span.End()

	delay = next.Interval
	if err == nil && sig.Idle() {
		delay = max(delay, scale(c.BaseInterval(), w.idleMultiplier))
	}

	if next.Params() != used {
		w.tuningChanged(used, next.Params(), cause)
	}
	w.trackStall(next, lastErr, now)
	w.record(ctx, err, sig, next)
	w.maybeDiagnostics(next, stats, now)

	return next, stats, delay
}

func outcomeCause(sig pacing.Signal) string {
	switch {
	case sig.IsSuccess():
		return "success"
	case sig.RateLimited:
		return "rate_limited"
	default:
		return "failure"
	}
}

func (w *Worker) logOutcome(sig pacing.Signal, next pacing.TuningState) {
	switch {
	case sig.IsSuccess():
		w.logger.Info("batch processed",
			"processed", sig.ItemsProcessed,
			"pending", sig.ItemsPending,
			"next_batch_size", next.BatchSize,
			"next_interval", next.Interval.String())
	case sig.RateLimited:
		w.logger.Warn("batch rate limited",
			"message", sig.Message,
			"retry_after", sig.RetryAfter.String(),
			"next_batch_size", next.BatchSize,
			"next_interval", next.Interval.String())
	default:
		w.logger.Warn("batch failed",
			"message", sig.Message,
			"consecutive_errors", next.ConsecutiveErrors,
			"next_batch_size", next.BatchSize)
	}
	if sig.Quota != nil {
		w.logger.Debug("quota telemetry", "quota", sig.Quota.String())
	}
}

func (w *Worker) tuningChanged(prev, next pacing.Params, cause string) {
	w.logger.Debug("tuning changed",
		"from", prev.String(),
		"to", next.String(),
		"cause", cause)
	if w.bus != nil {
		w.bus.Publish(event.NewTuningChangedEvent(prev, next, cause))
	}
}

// trackStall raises one alert per failure streak and a recovery notice on
// the first success after it.
func (w *Worker) trackStall(next pacing.TuningState, lastErr string, now time.Time) {
	if next.ConsecutiveErrors == 1 {
		w.streakStart = now
	}

	if next.ConsecutiveErrors == 0 {
		if w.stalled {
			stalledFor := now.Sub(w.streakStart)
			w.stalled = false
			w.logger.Info("worker recovered", "stalled_for", stalledFor.String())
			if w.bus != nil {
				w.bus.Publish(event.NewWorkerRecoveredEvent(stalledFor))
			}
		}
		return
	}

	if w.stallThreshold == 0 || w.stalled || next.ConsecutiveErrors < w.stallThreshold {
		return
	}
	w.stalled = true
	w.logger.Error("worker stalled",
		"consecutive_errors", next.ConsecutiveErrors,
		"since", w.streakStart,
		"last_error", lastErr)
	if w.bus != nil {
		w.bus.Publish(event.NewWorkerStalledEvent(next.ConsecutiveErrors, lastErr, w.streakStart))
	}
}

func (w *Worker) record(ctx context.Context, err error, sig pacing.Signal, next pacing.TuningState) {
	wi := w.instruments
	if wi == nil {
		return
	}
	// The call context may carry a request timeout; metrics must not fail
	// because of it.
	ctx = context.WithoutCancel(ctx)

	wi.Batches.Add(ctx, 1)
	switch {
	case err != nil:
		wi.Errors.Add(ctx, 1, metricAttr("transport"))
	case sig.IsSuccess():
		wi.Processed.Add(ctx, int64(sig.ItemsProcessed))
	case sig.RateLimited:
		wi.Errors.Add(ctx, 1, metricAttr("rate_limited"))
		wi.RateLimitHits.Add(ctx, 1)
	default:
		wi.Errors.Add(ctx, 1, metricAttr("failure"))
	}
	wi.BatchSize.Record(ctx, int64(next.BatchSize))
	wi.IntervalMs.Record(ctx, next.Interval.Milliseconds())
}

func (w *Worker) maybeDiagnostics(next pacing.TuningState, stats pacing.RunStatistics, now time.Time) {
	if stats.TotalRuns-w.diagRuns < w.diagEveryRuns && stats.TotalProcessed-w.diagItems < w.diagEveryItems {
		return
	}
	w.diagRuns = stats.TotalRuns
	w.diagItems = stats.TotalProcessed

	e := event.NewWorkerDiagnosticsEvent(stats, next, now)
	args := []any{
		"runs", stats.TotalRuns,
		"processed", stats.TotalProcessed,
		"errors", stats.TotalErrors,
		"rate_limit_hits", stats.RateLimitHits,
		"throughput_per_min", round2(e.ThroughputPerMinute),
		"error_rate", round2(e.ErrorRate),
		"batch_size", next.BatchSize,
		"interval", next.Interval.String(),
	}
	if stats.BestParams != nil {
		args = append(args,
			"best", stats.BestParams.String(),
			"best_throughput_per_min", round2(stats.BestThroughputPerMinute))
	}
	if stats.LastQuota != nil {
		args = append(args, "last_quota", stats.LastQuota.String())
	}
	w.logger.Info("worker diagnostics", args...)

	if w.instruments != nil {
		w.instruments.Throughput.Record(context.Background(), e.ThroughputPerMinute)
	}
	if w.bus != nil {
		w.bus.Publish(e)
	}
}
