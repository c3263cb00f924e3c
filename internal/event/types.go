package event

import (
	"time"

	"github.com/Iron-Ham/finpace/internal/pacing"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns "category.action", e.g. "worker.stalled".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeWorkerDiagnostics = "worker.diagnostics"
	TypeTuningChanged     = "worker.tuning_changed"
	TypeWorkerStalled     = "worker.stalled"
	TypeWorkerRecovered   = "worker.recovered"
	TypeSyncProgress      = "sync.progress"
	TypeSyncDismissed     = "sync.dismissed"
	TypeConfigReloaded    = "config.reloaded"
)

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Worker Events
// -----------------------------------------------------------------------------

// WorkerDiagnosticsEvent summarizes the worker's run so far.
type WorkerDiagnosticsEvent struct {
	baseEvent
	Stats   pacing.RunStatistics
	Current pacing.TuningState
	// ThroughputPerMinute and ErrorRate are computed at publish time.
	ThroughputPerMinute float64
	ErrorRate           float64
}

// NewWorkerDiagnosticsEvent creates a WorkerDiagnosticsEvent.
func NewWorkerDiagnosticsEvent(stats pacing.RunStatistics, current pacing.TuningState, now time.Time) WorkerDiagnosticsEvent {
	return WorkerDiagnosticsEvent{
		baseEvent:           baseEvent{eventType: TypeWorkerDiagnostics, timestamp: now},
		Stats:               stats,
		Current:             current,
		ThroughputPerMinute: stats.ThroughputPerMinute(now),
		ErrorRate:           stats.ErrorRate(),
	}
}

// TuningChangedEvent is emitted when the controller moved batch size or
// interval.
type TuningChangedEvent struct {
	baseEvent
	Previous pacing.Params
	Current  pacing.Params
	Cause    string // "success", "failure", "rate_limited", "transport", "reload"
}

// NewTuningChangedEvent creates a TuningChangedEvent.
func NewTuningChangedEvent(previous, current pacing.Params, cause string) TuningChangedEvent {
	return TuningChangedEvent{
		baseEvent: newBaseEvent(TypeTuningChanged),
		Previous:  previous,
		Current:   current,
		Cause:     cause,
	}
}

// WorkerStalledEvent is emitted once per failure streak when the streak
// reaches the stall threshold.
type WorkerStalledEvent struct {
	baseEvent
	ConsecutiveErrors int
	LastError         string
	Since             time.Time // Time of the first failure in the streak
}

// NewWorkerStalledEvent creates a WorkerStalledEvent.
func NewWorkerStalledEvent(consecutiveErrors int, lastError string, since time.Time) WorkerStalledEvent {
	return WorkerStalledEvent{
		baseEvent:         newBaseEvent(TypeWorkerStalled),
		ConsecutiveErrors: consecutiveErrors,
		LastError:         lastError,
		Since:             since,
	}
}

// WorkerRecoveredEvent is emitted on the first success after a stall.
type WorkerRecoveredEvent struct {
	baseEvent
	StalledFor time.Duration
}

// NewWorkerRecoveredEvent creates a WorkerRecoveredEvent.
func NewWorkerRecoveredEvent(stalledFor time.Duration) WorkerRecoveredEvent {
	return WorkerRecoveredEvent{
		baseEvent:  newBaseEvent(TypeWorkerRecovered),
		StalledFor: stalledFor,
	}
}

// -----------------------------------------------------------------------------
// Bank Sync Events
// -----------------------------------------------------------------------------

// SyncProgressEvent carries the displayed state of one account's sync.
type SyncProgressEvent struct {
	baseEvent
	AccountID string
	Phase     string
	Current   int
	Total     int     // FinalTotal once known, otherwise the estimate
	Percent   float64 // 0-100
	Message   string
	Terminal  bool // Complete or Error
	Failed    bool
}

// NewSyncProgressEvent creates a SyncProgressEvent.
func NewSyncProgressEvent(accountID, phase string, current, total int, percent float64, message string, terminal, failed bool) SyncProgressEvent {
	return SyncProgressEvent{
		baseEvent: newBaseEvent(TypeSyncProgress),
		AccountID: accountID,
		Phase:     phase,
		Current:   current,
		Total:     total,
		Percent:   percent,
		Message:   message,
		Terminal:  terminal,
		Failed:    failed,
	}
}

// SyncDismissedEvent is emitted when a session is removed from display.
type SyncDismissedEvent struct {
	baseEvent
	AccountID string
	Reason    string // "auto" or "user"
}

// NewSyncDismissedEvent creates a SyncDismissedEvent.
func NewSyncDismissedEvent(accountID, reason string) SyncDismissedEvent {
	return SyncDismissedEvent{
		baseEvent: newBaseEvent(TypeSyncDismissed),
		AccountID: accountID,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Config Events
// -----------------------------------------------------------------------------

// ConfigReloadedEvent is emitted after the config file changed on disk.
// Err is non-empty when the new file was rejected and the old values kept.
type ConfigReloadedEvent struct {
	baseEvent
	Path string
	Err  string
}

// NewConfigReloadedEvent creates a ConfigReloadedEvent.
func NewConfigReloadedEvent(path, errMsg string) ConfigReloadedEvent {
	return ConfigReloadedEvent{
		baseEvent: newBaseEvent(TypeConfigReloaded),
		Path:      path,
		Err:       errMsg,
	}
}
