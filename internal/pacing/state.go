package pacing

import (
	"fmt"
	"time"
)

// Params is a batch size and interval pair.
type Params struct {
	BatchSize int
	Interval  time.Duration
}

// String returns a compact representation for log lines.
func (p Params) String() string {
	return fmt.Sprintf("batch=%d interval=%s", p.BatchSize, p.Interval)
}

// TuningState is the adaptive state carried from one loop iteration to the
// next. It is only ever changed by a Controller.
type TuningState struct {
	BatchSize            int
	Interval             time.Duration
	ConsecutiveSuccesses int
	ConsecutiveErrors    int
}

// Params returns the batch size and interval currently in effect.
func (s TuningState) Params() Params {
	return Params{BatchSize: s.BatchSize, Interval: s.Interval}
}

// String returns a compact representation for log lines.
func (s TuningState) String() string {
	return fmt.Sprintf("batch=%d interval=%s successes=%d errors=%d",
		s.BatchSize, s.Interval, s.ConsecutiveSuccesses, s.ConsecutiveErrors)
}
