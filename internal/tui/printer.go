package tui

import (
	"fmt"
	"io"
	"sync"

	"github.com/Iron-Ham/finpace/internal/event"
)

// Printer writes sync progress as plain lines, one per phase change, for
// output that is not a terminal.
type Printer struct {
	w     io.Writer
	names map[string]string

	mu     sync.Mutex
	phases map[string]string
	failed map[string]bool
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer, names map[string]string) *Printer {
	return &Printer{
		w:      w,
		names:  names,
		phases: make(map[string]string),
		failed: make(map[string]bool),
	}
}

// Attach subscribes the printer to bus and returns a function that
// detaches it.
func (p *Printer) Attach(bus *event.Bus) func() {
	id := bus.Subscribe(event.TypeSyncProgress, func(e event.Event) {
		if pe, ok := e.(event.SyncProgressEvent); ok {
			p.Handle(pe)
		}
	})
	return func() { bus.Unsubscribe(id) }
}

// Handle prints e if it moves the account to a new phase.
func (p *Printer) Handle(e event.SyncProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.phases[e.AccountID] == e.Phase {
		return
	}
	p.phases[e.AccountID] = e.Phase
	if e.Failed {
		p.failed[e.AccountID] = true
	}

	label := e.AccountID
	if name, ok := p.names[e.AccountID]; ok && name != "" {
		label = fmt.Sprintf("%s (%s)", name, e.AccountID)
	}
	_, _ = fmt.Fprintf(p.w, "%-24s %-10s %3.0f%% %s %s\n",
		label, e.Phase, e.Percent, counterText(e.Phase, e.Current, e.Total), e.Message)
}

// Failed returns the number of accounts that ended in error.
func (p *Printer) Failed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.failed)
}
