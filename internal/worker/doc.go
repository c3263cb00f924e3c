// Package worker runs the background categorization loop.
//
// The loop is the only part of the pacing system that performs I/O or
// sleeps. Each iteration issues one batch call, folds the outcome into the
// tuning state through a pacing.Controller, records run statistics, and
// sleeps for the interval the controller chose. Nothing is fatal: every
// failure path yields a delay and another iteration, and Run returns only
// when its context is cancelled.
//
// # Usage
//
//	client := categorize.NewClient(cfg.API.BaseURL, cfg.Worker.EndpointPath)
//	w := worker.New(client, pacing.NewController(cfg.Worker.ControllerOptions()...),
//	    worker.WithLogger(logger),
//	    worker.WithBus(bus),
//	    worker.WithStallThreshold(cfg.Worker.StallThreshold),
//	)
//	err := w.Run(ctx) // blocks until ctx is cancelled
//
// Step is exported for callers that want to drive iterations themselves:
// it takes the state and statistics explicitly and returns the new values
// together with the delay before the next call.
//
// # Thread Safety
//
// Run and Step must be driven from a single goroutine; exactly one request
// is in flight at a time. Reconfigure and Snapshot may be called from any
// goroutine.
package worker
