// Package banksync runs user-initiated bank syncs and simulates their
// progress.
//
// The bank-sync endpoint is a single long call with no progress callback.
// Tracker keeps one progress session per account and advances a displayed
// counter along timed checkpoints so the user sees movement. The counter
// never decreases and stays below a pre-completion ceiling until the real
// result arrives. The real result always wins: it cancels the timer,
// reconciles the count and moves the session to Complete or Error. Finished
// sessions dismiss themselves after a short delay.
//
// Syncer wires the pieces together: it seeds the estimate from the account
// snapshot endpoint (falling back to the local snapshot cache), starts a
// Tracker session, runs the remote sync and reports its result.
//
// # Usage
//
//	tracker := banksync.NewTracker(bus)
//	defer tracker.Close()
//
//	syncer := banksync.NewSyncer(banksync.NewClient(baseURL), tracker,
//	    banksync.WithSnapshotStore(store))
//	if err := syncer.SyncAll(ctx, accountIDs); err != nil { ... }
//
// # Thread Safety
//
// Tracker and Syncer are safe for concurrent use. Each session is owned by
// a single goroutine; Start, Update, Dismiss and Snapshot communicate with
// it by message. Sessions for different accounts share nothing but the
// event bus.
package banksync
