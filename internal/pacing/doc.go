// Package pacing decides how much categorization work to request from the
// remote API and how long to wait between requests.
//
// The remote endpoint sits behind a rate limiter whose capacity is unknown.
// The only feedback is the outcome of each call: how many items were
// processed, how many are still pending, whether the call was rejected for
// exceeding the rate limit, and sometimes a retry hint or quota telemetry.
// The [Controller] folds that feedback into a [TuningState] and returns the
// next batch size and interval.
//
// The core types are:
//
//   - [Signal]: the outcome of one remote call
//   - [Controller]: the adaptation policy (pure, no I/O)
//   - [TuningState]: batch size, interval, and outcome streaks
//   - [RunStatistics]: process-wide counters and the best observed config
//
// # Usage
//
//	ctrl := pacing.NewController(
//	    pacing.WithBatchBounds(1, 50),
//	    pacing.WithSuccessThreshold(3),
//	)
//	state := ctrl.Initial()
//	stats := pacing.NewRunStatistics(time.Now())
//
//	for {
//	    sig := callRemote(state.BatchSize)
//	    used := state.Config()
//	    state = ctrl.Update(state, sig)
//	    stats = stats.Record(sig, used, time.Now())
//	    time.Sleep(state.Interval)
//	}
//
// # Thread Safety
//
// A [Controller] is immutable after construction and safe for concurrent
// use. [TuningState] and [RunStatistics] are plain values owned by the caller.
package pacing
