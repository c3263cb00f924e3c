package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/finpace/internal/tui/styles"
)

// View renders the sync view.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Bank sync"))
	b.WriteString("\n")

	if len(m.order) == 0 {
		if m.done {
			b.WriteString(styles.Muted.Render("Nothing left to show."))
		} else {
			b.WriteString(styles.Subtitle.Render("Waiting for sync to start..."))
		}
		b.WriteString("\n")
	}

	for _, id := range m.order {
		b.WriteString(m.renderRow(m.rows[id]))
		b.WriteString("\n")
	}

	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderRow(r *row) string {
	color := styles.PhaseColor(r.phase)

	icon := styles.PhaseIcon(r.phase)
	if icon == "" {
		icon = m.spinner.View()
	} else {
		icon = lipgloss.NewStyle().Foreground(color).Render(icon)
	}

	label := truncate(m.label(r.accountID), labelWidth)
	label = styles.AccountName.Width(labelWidth).Render(label)

	bar := m.bar.ViewAs(r.percent / 100)
	percent := fmt.Sprintf("%3.0f%%", r.percent)
	counter := styles.Counter.Render(counterText(r.phase, r.current, r.total))

	msgStyle := lipgloss.NewStyle().Foreground(color)
	if r.failed {
		msgStyle = styles.ErrorMsg
	}

	return fmt.Sprintf("%s %s %s %s %s  %s",
		icon, label, bar, percent, counter, msgStyle.Render(r.message))
}

func (m Model) renderHelp() string {
	keys := []string{
		styles.HelpKey.Render("x") + " dismiss finished",
		styles.HelpKey.Render("q") + " quit",
	}
	return styles.HelpBar.Render(strings.Join(keys, "  "))
}

// counterText renders "current/total". A completed sync shows its final
// count; the estimate it ran past is no longer meaningful.
func counterText(phase string, current, total int) string {
	if phase == "complete" {
		current = total
	}
	return fmt.Sprintf("%d/%d", current, total)
}

func truncate(s string, n int) string {
	if lipgloss.Width(s) <= n {
		return s
	}
	if n <= 1 {
		return ansi.Truncate(s, n, "")
	}
	return ansi.Truncate(s, n, "…")
}
