package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Iron-Ham/finpace/internal/event"
)

// statusPrinter writes worker events as one-line summaries.
type statusPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func newStatusPrinter(w io.Writer) *statusPrinter {
	return &statusPrinter{w: w}
}

// Attach subscribes to the worker events on bus and returns a function that
// detaches the printer.
func (p *statusPrinter) Attach(bus *event.Bus) func() {
	ids := []string{
		bus.Subscribe(event.TypeWorkerDiagnostics, p.handle),
		bus.Subscribe(event.TypeWorkerStalled, p.handle),
		bus.Subscribe(event.TypeWorkerRecovered, p.handle),
		bus.Subscribe(event.TypeConfigReloaded, p.handle),
	}
	return func() {
		for _, id := range ids {
			bus.Unsubscribe(id)
		}
	}
}

func (p *statusPrinter) handle(e event.Event) {
	line := formatStatus(e)
	if line == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.w, "[%s] %s\n", e.Timestamp().Format("15:04:05"), line)
}

func formatStatus(e event.Event) string {
	switch e := e.(type) {
	case event.WorkerDiagnosticsEvent:
		s := fmt.Sprintf("runs=%d processed=%d throughput=%.1f/min errors=%.1f%% rate_limited=%d %s",
			e.Stats.TotalRuns, e.Stats.TotalProcessed, e.ThroughputPerMinute,
			e.ErrorRate*100, e.Stats.RateLimitHits, e.Current.Params())
		if best := e.Stats.BestParams; best != nil {
			s += fmt.Sprintf(" best=[%s @ %.1f/min]", best, e.Stats.BestThroughputPerMinute)
		}
		if q := e.Stats.LastQuota; q != nil {
			s += " quota=" + q.String()
		}
		return s
	case event.WorkerStalledEvent:
		return fmt.Sprintf("STALLED: %d consecutive errors since %s, last: %s",
			e.ConsecutiveErrors, e.Since.Format(time.TimeOnly), e.LastError)
	case event.WorkerRecoveredEvent:
		return fmt.Sprintf("recovered after %s", e.StalledFor.Round(time.Second))
	case event.ConfigReloadedEvent:
		if e.Err != "" {
			return fmt.Sprintf("config %s rejected, keeping previous settings: %s", e.Path, e.Err)
		}
		return fmt.Sprintf("config %s reloaded", e.Path)
	}
	return ""
}
