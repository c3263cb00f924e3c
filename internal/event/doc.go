// Package event provides a pub-sub event bus connecting finpace's producers
// (the categorization worker, the bank-sync tracker, the config watcher) to
// their presentation (log lines, the terminal progress view, telemetry).
//
// Producers publish without knowing who listens. The worker loop never
// depends on anything subscribed here, so a slow or failing subscriber can
// only delay delivery, never change pacing decisions.
//
// # Event Categories
//
// Worker:
//   - [WorkerDiagnosticsEvent]: periodic throughput and tuning summary
//   - [TuningChangedEvent]: batch size or interval moved
//   - [WorkerStalledEvent], [WorkerRecoveredEvent]: long failure streaks
//
// Bank sync:
//   - [SyncProgressEvent]: a session's displayed progress changed
//   - [SyncDismissedEvent]: a session left the display
//
// Config:
//   - [ConfigReloadedEvent]: the config file changed on disk
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. Handlers run synchronously on the
// publishing goroutine; a panicking handler is logged and skipped.
//
// # Basic Usage
//
//	bus := event.NewBus()
//	bus.Subscribe(event.TypeSyncProgress, func(e event.Event) {
//	    p := e.(event.SyncProgressEvent)
//	    fmt.Printf("%s %s %.0f%%\n", p.AccountID, p.Phase, p.Percent)
//	})
//	bus.Publish(event.NewSyncDismissedEvent("acc-1", "auto"))
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action": worker.diagnostics,
// worker.tuning_changed, worker.stalled, worker.recovered, sync.progress,
// sync.dismissed, config.reloaded.
package event
