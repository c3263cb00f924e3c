package pacing

import "time"

// defaultMinSampleSize is the number of processed items required before a
// throughput figure is trusted enough to become the recorded best.
const defaultMinSampleSize = 100

// RunStatistics accumulates over the life of the process. It is a value:
// Record returns an updated copy and never touches shared state.
type RunStatistics struct {
	TotalProcessed int
	TotalErrors    int
	TotalRuns      int
	RateLimitHits  int
	StartTime      time.Time

	// BestThroughputPerMinute and BestParams are an operator hint, not a
	// proven optimum. They only move once MinSampleSize items have been
	// processed.
	BestThroughputPerMinute float64
	BestParams              *Params

	// LastQuota is the most recent quota telemetry, replaced wholesale.
	LastQuota *Quota

	// MinSampleSize gates best-throughput updates.
	MinSampleSize int
}

// NewRunStatistics returns empty statistics starting at start.
func NewRunStatistics(start time.Time) RunStatistics {
	return RunStatistics{
		StartTime:     start,
		MinSampleSize: defaultMinSampleSize,
	}
}

// Record folds one signal into the statistics. used is the batch size and
// interval that produced the signal.
func (r RunStatistics) Record(sig Signal, used Params, now time.Time) RunStatistics {
	r.TotalRuns++

	if sig.Outcome == Success {
		r.TotalProcessed += sig.ItemsProcessed
	} else {
		r.TotalErrors++
		if sig.RateLimited {
			r.RateLimitHits++
		}
	}

	if sig.Quota != nil {
		q := *sig.Quota
		r.LastQuota = &q
	}

	if tp := r.ThroughputPerMinute(now); r.TotalProcessed > r.MinSampleSize && tp > r.BestThroughputPerMinute {
		r.BestThroughputPerMinute = tp
		best := used
		r.BestParams = &best
	}

	return r
}

// RecordTransportFailure counts a call that never reached the server.
func (r RunStatistics) RecordTransportFailure() RunStatistics {
	r.TotalRuns++
	r.TotalErrors++
	return r
}

// ThroughputPerMinute returns processed items per minute since StartTime.
func (r RunStatistics) ThroughputPerMinute(now time.Time) float64 {
	elapsed := now.Sub(r.StartTime).Minutes()
	if elapsed <= 0 {
		return 0
	}
	return float64(r.TotalProcessed) / elapsed
}

// ErrorRate returns the fraction of runs that failed.
func (r RunStatistics) ErrorRate() float64 {
	if r.TotalRuns == 0 {
		return 0
	}
	return float64(r.TotalErrors) / float64(r.TotalRuns)
}
