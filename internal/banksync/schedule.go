package banksync

import (
	"math"
	"time"
)

// Schedule holds the timing and checkpoint percentages of the simulated
// progress.
type Schedule struct {
	// FetchingAfter is the delay from start to the Fetching checkpoint.
	FetchingAfter time.Duration
	// SyncingAfter is the delay from start to the Syncing checkpoint.
	SyncingAfter time.Duration
	// TickInterval is the period of the increments while Syncing.
	TickInterval time.Duration
	// DismissAfter is how long a Complete or Error session stays visible.
	DismissAfter time.Duration

	FetchingPercent float64
	SyncingPercent  float64
	TickPercent     float64
	// CeilingPercent bounds the displayed count before the real result.
	// The bound is exclusive.
	CeilingPercent float64
}

// DefaultSchedule returns the standard progress schedule.
func DefaultSchedule() Schedule {
	return Schedule{
		FetchingAfter:   600 * time.Millisecond,
		SyncingAfter:    1500 * time.Millisecond,
		TickInterval:    400 * time.Millisecond,
		DismissAfter:    3 * time.Second,
		FetchingPercent: 15,
		SyncingPercent:  35,
		TickPercent:     2,
		CeilingPercent:  88,
	}
}

// normalize fills unset or inconsistent fields from the defaults.
func (s Schedule) normalize() Schedule {
	d := DefaultSchedule()
	if s.FetchingAfter <= 0 {
		s.FetchingAfter = d.FetchingAfter
	}
	if s.SyncingAfter <= s.FetchingAfter {
		s.SyncingAfter = s.FetchingAfter + (d.SyncingAfter - d.FetchingAfter)
	}
	if s.TickInterval <= 0 {
		s.TickInterval = d.TickInterval
	}
	if s.DismissAfter <= 0 {
		s.DismissAfter = d.DismissAfter
	}
	if s.CeilingPercent <= 0 || s.CeilingPercent >= 100 {
		s.CeilingPercent = d.CeilingPercent
	}
	if s.FetchingPercent <= 0 {
		s.FetchingPercent = d.FetchingPercent
	}
	if s.SyncingPercent <= s.FetchingPercent {
		s.SyncingPercent = max(d.SyncingPercent, s.FetchingPercent)
	}
	if s.TickPercent <= 0 {
		s.TickPercent = d.TickPercent
	}
	return s
}

// ceiling returns the largest displayed count allowed before the real
// result: the greatest integer strictly below CeilingPercent of estimate.
func (s Schedule) ceiling(estimate int) int {
	limit := float64(estimate) * s.CeilingPercent / 100
	c := int(math.Ceil(limit)) - 1
	return max(c, 0)
}

func (s Schedule) checkpoint(estimate int, percent float64) int {
	return min(int(float64(estimate)*percent/100), s.ceiling(estimate))
}

func (s Schedule) tickStep(estimate int) int {
	return max(int(math.Round(float64(estimate)*s.TickPercent/100)), 1)
}
