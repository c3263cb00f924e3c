package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/finpace/internal/event"
	"github.com/Iron-Ham/finpace/internal/pacing"
)

func TestFormatStatus(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stats := pacing.NewRunStatistics(start)
	stats.TotalRuns = 12
	stats.TotalProcessed = 90
	stats.RateLimitHits = 2
	stats.BestParams = &pacing.Params{BatchSize: 9, Interval: 3 * time.Second}
	stats.BestThroughputPerMinute = 45
	state := pacing.TuningState{BatchSize: 7, Interval: 4 * time.Second}

	tests := []struct {
		name  string
		event event.Event
		want  []string
	}{
		{
			name:  "diagnostics",
			event: event.NewWorkerDiagnosticsEvent(stats, state, start.Add(2*time.Minute)),
			want:  []string{"runs=12", "processed=90", "rate_limited=2", "batch=7 interval=4s", "best=[batch=9 interval=3s @ 45.0/min]"},
		},
		{
			name:  "stalled",
			event: event.NewWorkerStalledEvent(20, "server unavailable", start),
			want:  []string{"STALLED", "20 consecutive errors", "server unavailable"},
		},
		{
			name:  "recovered",
			event: event.NewWorkerRecoveredEvent(90 * time.Second),
			want:  []string{"recovered after 1m30s"},
		},
		{
			name:  "config reloaded",
			event: event.NewConfigReloadedEvent("/tmp/config.yaml", ""),
			want:  []string{"config /tmp/config.yaml reloaded"},
		},
		{
			name:  "config rejected",
			event: event.NewConfigReloadedEvent("/tmp/config.yaml", "worker.max_batch_size: must be positive"),
			want:  []string{"rejected", "keeping previous settings", "must be positive"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatStatus(tt.event)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("formatStatus() = %q, want it to contain %q", got, want)
				}
			}
		})
	}
}

func TestFormatStatusIgnoresOtherEvents(t *testing.T) {
	e := event.NewSyncDismissedEvent("acc_1", "auto")
	if got := formatStatus(e); got != "" {
		t.Errorf("formatStatus(sync dismissed) = %q, want empty", got)
	}
}

func TestStatusPrinterAttach(t *testing.T) {
	bus := event.NewBus()
	var buf bytes.Buffer
	detach := newStatusPrinter(&buf).Attach(bus)

	bus.Publish(event.NewWorkerRecoveredEvent(time.Second))
	detach()
	bus.Publish(event.NewWorkerRecoveredEvent(time.Second))

	if got := strings.Count(buf.String(), "recovered"); got != 1 {
		t.Errorf("printed %d recovered lines, want 1:\n%s", got, buf.String())
	}
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after detach, want 0", bus.SubscriptionCount())
	}
}
