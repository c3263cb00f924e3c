package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Iron-Ham/finpace/internal/event"
)

func TestPrinterOneLinePerPhase(t *testing.T) {
	var buf bytes.Buffer
	bus := event.NewBus()
	p := NewPrinter(&buf, map[string]string{"acc_1": "Checking"})
	detach := p.Attach(bus)

	bus.Publish(progressEvent("acc_1", "connecting", 0, 60, 0, "Connecting to bank"))
	bus.Publish(progressEvent("acc_1", "syncing", 21, 60, 35, "Syncing transactions"))
	bus.Publish(progressEvent("acc_1", "syncing", 22, 60, 36.6, "Syncing transactions"))
	bus.Publish(progressEvent("acc_1", "error", 22, 60, 36.6, "ITEM_LOGIN_REQUIRED"))

	detach()
	bus.Publish(progressEvent("acc_2", "connecting", 0, 10, 0, "Connecting to bank"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "Checking (acc_1)") {
		t.Errorf("line 0 = %q, want account label", lines[0])
	}
	if !strings.Contains(lines[2], "ITEM_LOGIN_REQUIRED") {
		t.Errorf("line 2 = %q, want error message", lines[2])
	}
	if got := p.Failed(); got != 1 {
		t.Errorf("Failed() = %d, want 1", got)
	}
}

func TestPrinterCompleteShowsFinalCount(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, nil)

	p.Handle(progressEvent("acc_1", "processing", 44, 50, 88, "Processing transactions"))
	p.Handle(progressEvent("acc_1", "complete", 44, 20, 100, "Synced 20 transactions"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], " 20/20 ") {
		t.Errorf("line 1 = %q, want counter 20/20", lines[1])
	}
	if strings.Contains(lines[1], "44/20") {
		t.Errorf("line 1 = %q, counter overshoots the final count", lines[1])
	}
}
