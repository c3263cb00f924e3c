package pacing

import (
	"math"
	"time"
)

// Default controller values.
const (
	defaultMinBatchSize           = 1
	defaultMaxBatchSize           = 50
	defaultInitialBatchSize       = 5
	defaultBatchStep              = 2
	defaultMinInterval            = 2 * time.Second
	defaultMaxInterval            = 5 * time.Minute
	defaultBaseInterval           = 5 * time.Second
	defaultSuccessThreshold       = 3
	defaultErrorThreshold         = 3
	defaultHighBacklogThreshold   = 20
	defaultRecoveryFactor         = 0.9
	defaultBackoffFactor          = 1.5
	defaultTransportBackoffFactor = 2.0
	defaultRetryMargin            = time.Second
	defaultQuotaLowFraction       = 0.2
	defaultQuotaMultiplier        = 1.5
)

// Option configures a Controller.
type Option func(*Controller)

// WithBatchBounds sets the inclusive range the batch size is kept in.
func WithBatchBounds(minSize, maxSize int) Option {
	return func(c *Controller) {
		c.minBatchSize = minSize
		c.maxBatchSize = maxSize
	}
}

// WithInitialBatchSize sets the batch size used for the first request.
func WithInitialBatchSize(n int) Option {
	return func(c *Controller) { c.initialBatchSize = n }
}

// WithBatchStep sets how much the batch size grows or shrinks per step.
// Rate-limit rejections shrink by twice this step; a large backlog grows by
// twice this step.
func WithBatchStep(n int) Option {
	return func(c *Controller) { c.batchStep = n }
}

// WithIntervalBounds sets the inclusive range the interval is kept in.
func WithIntervalBounds(minInterval, maxInterval time.Duration) Option {
	return func(c *Controller) {
		c.minInterval = minInterval
		c.maxInterval = maxInterval
	}
}

// WithBaseInterval sets the interval used when the remote is healthy.
// The first request waits this long and recovery after a slowdown heads
// back towards it.
func WithBaseInterval(d time.Duration) Option {
	return func(c *Controller) { c.baseInterval = d }
}

// WithSuccessThreshold sets how many consecutive successes are needed
// before the batch size grows.
func WithSuccessThreshold(n int) Option {
	return func(c *Controller) { c.successThreshold = n }
}

// WithErrorThreshold sets how many consecutive non-rate-limit failures are
// needed before the batch size shrinks.
func WithErrorThreshold(n int) Option {
	return func(c *Controller) { c.errorThreshold = n }
}

// WithHighBacklogThreshold sets the pending count above which growth steps
// are doubled.
func WithHighBacklogThreshold(n int) Option {
	return func(c *Controller) { c.highBacklogThreshold = n }
}

// WithRecoveryFactor sets the multiplier (< 1) applied to an elevated
// interval after each success.
func WithRecoveryFactor(f float64) Option {
	return func(c *Controller) { c.recoveryFactor = f }
}

// WithBackoffFactor sets the multiplier (> 1) applied to the interval after
// a rate-limit rejection without a retry hint.
func WithBackoffFactor(f float64) Option {
	return func(c *Controller) { c.backoffFactor = f }
}

// WithTransportBackoffFactor sets the multiplier (> 1) applied to the
// interval when the remote could not be reached at all.
func WithTransportBackoffFactor(f float64) Option {
	return func(c *Controller) { c.transportBackoffFactor = f }
}

// WithRetryMargin sets the safety margin added to a server retry hint so
// the next attempt never lands exactly on the reset boundary.
func WithRetryMargin(d time.Duration) Option {
	return func(c *Controller) { c.retryMargin = d }
}

// WithQuotaThrottle configures proactive throttling: when less than
// lowFraction of the quota window remains, the interval is multiplied by
// multiplier even if the call succeeded.
func WithQuotaThrottle(lowFraction, multiplier float64) Option {
	return func(c *Controller) {
		c.quotaLowFraction = lowFraction
		c.quotaMultiplier = multiplier
	}
}

// Controller holds the adaptation policy. It never performs I/O and never
// mutates its inputs; every method returns a new TuningState.
type Controller struct {
	minBatchSize           int
	maxBatchSize           int
	initialBatchSize       int
	batchStep              int
	minInterval            time.Duration
	maxInterval            time.Duration
	baseInterval           time.Duration
	successThreshold       int
	errorThreshold         int
	highBacklogThreshold   int
	recoveryFactor         float64
	backoffFactor          float64
	transportBackoffFactor float64
	retryMargin            time.Duration
	quotaLowFraction       float64
	quotaMultiplier        float64
}

// NewController creates a Controller with the given options.
// Unset options use defaults.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		minBatchSize:           defaultMinBatchSize,
		maxBatchSize:           defaultMaxBatchSize,
		initialBatchSize:       defaultInitialBatchSize,
		batchStep:              defaultBatchStep,
		minInterval:            defaultMinInterval,
		maxInterval:            defaultMaxInterval,
		baseInterval:           defaultBaseInterval,
		successThreshold:       defaultSuccessThreshold,
		errorThreshold:         defaultErrorThreshold,
		highBacklogThreshold:   defaultHighBacklogThreshold,
		recoveryFactor:         defaultRecoveryFactor,
		backoffFactor:          defaultBackoffFactor,
		transportBackoffFactor: defaultTransportBackoffFactor,
		retryMargin:            defaultRetryMargin,
		quotaLowFraction:       defaultQuotaLowFraction,
		quotaMultiplier:        defaultQuotaMultiplier,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.normalize()
	return c
}

// normalize repairs option combinations that would make the bounds
// invariants unsatisfiable.
func (c *Controller) normalize() {
	c.minBatchSize = max(c.minBatchSize, 1)
	c.maxBatchSize = max(c.maxBatchSize, c.minBatchSize)
	c.batchStep = max(c.batchStep, 1)
	c.minInterval = max(c.minInterval, 0)
	c.maxInterval = max(c.maxInterval, c.minInterval)
	c.baseInterval = min(max(c.baseInterval, c.minInterval), c.maxInterval)
	c.successThreshold = max(c.successThreshold, 1)
	c.errorThreshold = max(c.errorThreshold, 1)
	if c.recoveryFactor <= 0 || c.recoveryFactor >= 1 {
		c.recoveryFactor = defaultRecoveryFactor
	}
	if c.backoffFactor <= 1 {
		c.backoffFactor = defaultBackoffFactor
	}
	if c.transportBackoffFactor <= 1 {
		c.transportBackoffFactor = defaultTransportBackoffFactor
	}
	if c.quotaMultiplier < 1 {
		c.quotaMultiplier = defaultQuotaMultiplier
	}
	c.retryMargin = max(c.retryMargin, 0)
}

// BaseInterval returns the interval used when the remote is healthy.
func (c *Controller) BaseInterval() time.Duration {
	return c.baseInterval
}

// BatchBounds returns the inclusive batch size range.
func (c *Controller) BatchBounds() (minSize, maxSize int) {
	return c.minBatchSize, c.maxBatchSize
}

// IntervalBounds returns the inclusive interval range.
func (c *Controller) IntervalBounds() (minInterval, maxInterval time.Duration) {
	return c.minInterval, c.maxInterval
}

// Initial returns the seed state: the initial batch size at the base
// interval with no streaks.
func (c *Controller) Initial() TuningState {
	return c.Clamp(TuningState{
		BatchSize: c.initialBatchSize,
		Interval:  c.baseInterval,
	})
}

// Clamp returns s with batch size and interval forced into bounds.
func (c *Controller) Clamp(s TuningState) TuningState {
	s.BatchSize = min(max(s.BatchSize, c.minBatchSize), c.maxBatchSize)
	s.Interval = c.clampInterval(s.Interval)
	s.ConsecutiveSuccesses = max(s.ConsecutiveSuccesses, 0)
	s.ConsecutiveErrors = max(s.ConsecutiveErrors, 0)
	return s
}

// Update folds one remote call outcome into the state.
func (c *Controller) Update(s TuningState, sig Signal) TuningState {
	s = c.Clamp(s)

	if sig.Outcome == Success {
		s = c.onSuccess(s, sig)
	} else {
		s = c.onFailure(s, sig)
	}

	// Quota telemetry throttles ahead of a rejection regardless of outcome.
	if sig.Quota != nil && sig.Quota.Low(c.quotaLowFraction) {
		s.Interval = c.clampInterval(scale(s.Interval, c.quotaMultiplier))
	}

	return s
}

// ObserveTransportFailure records a call that never reached the server.
// The interval always backs off; the batch size is left alone because the
// failure says nothing about how much work the server can take.
func (c *Controller) ObserveTransportFailure(s TuningState) TuningState {
	s = c.Clamp(s)
	s.ConsecutiveErrors++
	s.ConsecutiveSuccesses = 0
	s.Interval = c.clampInterval(scale(s.Interval, c.transportBackoffFactor))
	return s
}

func (c *Controller) onSuccess(s TuningState, sig Signal) TuningState {
	s.ConsecutiveSuccesses++
	s.ConsecutiveErrors = 0

	if s.Interval > c.baseInterval {
		s.Interval = max(scale(s.Interval, c.recoveryFactor), c.minInterval)
	}

	if s.ConsecutiveSuccesses >= c.successThreshold && s.BatchSize < c.maxBatchSize {
		step := c.batchStep
		if sig.ItemsPending > c.highBacklogThreshold {
			step *= 2
		}
		s.BatchSize = min(s.BatchSize+step, c.maxBatchSize)
		s.ConsecutiveSuccesses = 0
	}

	return s
}

func (c *Controller) onFailure(s TuningState, sig Signal) TuningState {
	s.ConsecutiveErrors++
	s.ConsecutiveSuccesses = 0

	if sig.RateLimited {
		s.BatchSize = max(s.BatchSize-2*c.batchStep, c.minBatchSize)
		if sig.RetryAfter > 0 {
			// Never retry earlier than the server asked, and never shorten
			// an interval that is already longer.
			s.Interval = c.clampInterval(max(s.Interval, sig.RetryAfter+c.retryMargin))
		} else {
			s.Interval = c.clampInterval(scale(s.Interval, c.backoffFactor))
		}
		return s
	}

	if s.ConsecutiveErrors >= c.errorThreshold {
		s.BatchSize = max(s.BatchSize-c.batchStep, c.minBatchSize)
	}
	return s
}

func (c *Controller) clampInterval(d time.Duration) time.Duration {
	return min(max(d, c.minInterval), c.maxInterval)
}

// scale multiplies d by f, rounded to the millisecond and saturating
// instead of overflowing.
func scale(d time.Duration, f float64) time.Duration {
	v := float64(d) * f
	if v >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(v).Round(time.Millisecond)
}
