package styles

import "testing"

func TestPhaseColor(t *testing.T) {
	tests := []struct {
		phase    string
		expected string // Expected color hex value
	}{
		{"connecting", "#9CA3AF"},
		{"fetching", "#60A5FA"},
		{"syncing", "#A78BFA"},
		{"processing", "#F59E0B"},
		{"complete", "#10B981"},
		{"error", "#F87171"},
		{"unknown", "#9CA3AF"}, // Should fall back to MutedColor
	}

	for _, tt := range tests {
		t.Run(tt.phase, func(t *testing.T) {
			got := PhaseColor(tt.phase)
			if string(got) != tt.expected {
				t.Errorf("PhaseColor(%q) = %q, want %q", tt.phase, got, tt.expected)
			}
		})
	}
}

func TestPhaseIcon(t *testing.T) {
	tests := []struct {
		phase    string
		expected string
	}{
		{"complete", "✓"},
		{"error", "✗"},
		{"syncing", ""},
		{"connecting", ""},
	}

	for _, tt := range tests {
		t.Run(tt.phase, func(t *testing.T) {
			if got := PhaseIcon(tt.phase); got != tt.expected {
				t.Errorf("PhaseIcon(%q) = %q, want %q", tt.phase, got, tt.expected)
			}
		})
	}
}
