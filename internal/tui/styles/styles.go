package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple (violet-400)
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red (red-400)
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray (gray-500)
	BlueColor      = lipgloss.Color("#60A5FA") // Blue

	// Convenience styles for colors
	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Text      = lipgloss.NewStyle().Foreground(TextColor)

	// Phase colors
	PhaseConnecting = lipgloss.Color("#9CA3AF") // Gray
	PhaseFetching   = lipgloss.Color("#60A5FA") // Blue
	PhaseSyncing    = lipgloss.Color("#A78BFA") // Purple
	PhaseProcessing = lipgloss.Color("#F59E0B") // Amber
	PhaseComplete   = lipgloss.Color("#10B981") // Green
	PhaseError      = lipgloss.Color("#F87171") // Red

	// Base styles
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	AccountName = lipgloss.NewStyle().
			Bold(true).
			Foreground(TextColor)

	Counter = lipgloss.NewStyle().
		Foreground(MutedColor)

	// Help bar
	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)

	HelpKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(SecondaryColor)

	// Error message
	ErrorMsg = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	// Success message
	SuccessMsg = lipgloss.NewStyle().
			Foreground(SecondaryColor).
			Bold(true)
)

// PhaseColor returns the color for a sync phase name.
func PhaseColor(phase string) lipgloss.Color {
	switch phase {
	case "connecting":
		return PhaseConnecting
	case "fetching":
		return PhaseFetching
	case "syncing":
		return PhaseSyncing
	case "processing":
		return PhaseProcessing
	case "complete":
		return PhaseComplete
	case "error":
		return PhaseError
	default:
		return MutedColor
	}
}

// PhaseIcon returns the glyph shown for a finished phase. Running phases
// return "" and are drawn with a spinner.
func PhaseIcon(phase string) string {
	switch phase {
	case "complete":
		return "✓"
	case "error":
		return "✗"
	default:
		return ""
	}
}
