package pacing

import (
	"fmt"
	"time"
)

// Outcome is the result class of one remote call.
type Outcome int

const (
	// Success means the remote call processed a batch.
	Success Outcome = iota

	// Failure means the remote call was rejected or returned an error body.
	Failure
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Quota is rate-limit window telemetry reported by the server.
type Quota struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Low reports whether less than fraction of the quota window remains.
func (q Quota) Low(fraction float64) bool {
	if q.Limit <= 0 {
		return false
	}
	return float64(q.Remaining) < float64(q.Limit)*fraction
}

// String returns a compact representation for log lines.
func (q Quota) String() string {
	if q.ResetAt.IsZero() {
		return fmt.Sprintf("%d/%d", q.Remaining, q.Limit)
	}
	return fmt.Sprintf("%d/%d reset=%s", q.Remaining, q.Limit, q.ResetAt.Format(time.RFC3339))
}

// Signal captures the outcome of one remote call. A Signal is built fresh
// from every response and discarded once folded into the tuning state.
type Signal struct {
	Outcome Outcome

	// ItemsProcessed is the number of items handled by the call.
	// Only meaningful on Success.
	ItemsProcessed int

	// ItemsPending is the server's estimate of the remaining backlog.
	ItemsPending int

	// RateLimited distinguishes "slow down" rejections from other failures.
	// Only meaningful on Failure.
	RateLimited bool

	// RetryAfter is the server-suggested delay before retrying.
	// Zero means no hint was given.
	RetryAfter time.Duration

	// Quota is the most recent quota telemetry, if the server sent any.
	Quota *Quota

	// Message is the server's error text, kept for diagnostics.
	Message string
}

// SuccessSignal builds a Success signal.
func SuccessSignal(processed, pending int) Signal {
	return Signal{
		Outcome:        Success,
		ItemsProcessed: max(processed, 0),
		ItemsPending:   max(pending, 0),
	}
}

// FailureSignal builds a Failure signal that is not a rate-limit rejection.
func FailureSignal(message string) Signal {
	return Signal{
		Outcome: Failure,
		Message: message,
	}
}

// RateLimitedSignal builds a rate-limited Failure signal. A zero retryAfter
// means the server gave no hint.
func RateLimitedSignal(message string, retryAfter time.Duration) Signal {
	return Signal{
		Outcome:     Failure,
		RateLimited: true,
		RetryAfter:  max(retryAfter, 0),
		Message:     message,
	}
}

// WithQuota returns a copy of the signal carrying quota telemetry.
func (s Signal) WithQuota(q Quota) Signal {
	s.Quota = &q
	return s
}

// IsSuccess reports whether the call succeeded.
func (s Signal) IsSuccess() bool {
	return s.Outcome == Success
}

// Idle reports whether the call succeeded with nothing left to process.
func (s Signal) Idle() bool {
	return s.Outcome == Success && s.ItemsPending == 0
}
