package tui

import (
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/finpace/internal/event"
	"github.com/Iron-Ham/finpace/internal/tui/styles"
)

// Layout constants
const (
	defaultWidth = 80
	labelWidth   = 18
	minBarWidth  = 10
	maxBarWidth  = 40
)

// row is the display state of one account.
type row struct {
	accountID string
	phase     string
	current   int
	total     int
	percent   float64
	message   string
	terminal  bool
	failed    bool
}

// Model is the Bubble Tea model of the sync view.
type Model struct {
	names   map[string]string
	order   []string
	rows    map[string]*row
	spinner spinner.Model
	bar     progress.Model
	width   int
	dismiss dismissFunc

	done     bool
	err      error
	quitting bool
	// failures counts every account that ended in error, dismissed or not.
	failures map[string]bool
}

// NewModel creates a Model. names maps account IDs to display names and
// may be nil.
func NewModel(names map[string]string) Model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(styles.Primary),
	)
	bar := progress.New(
		progress.WithGradient(string(styles.PrimaryColor), string(styles.SecondaryColor)),
		progress.WithoutPercentage(),
	)
	m := Model{
		names:    names,
		rows:     make(map[string]*row),
		spinner:  s,
		bar:      bar,
		failures: make(map[string]bool),
	}
	m.resize(defaultWidth)
	return m
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update applies one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.resize(msg.Width)
		return m, nil

	case event.SyncProgressEvent:
		m.apply(msg)
		return m, m.quitIfFinished()

	case event.SyncDismissedEvent:
		m.remove(msg.AccountID)
		return m, m.quitIfFinished()

	case workDoneMsg:
		m.done = true
		m.err = msg.err
		return m, m.quitIfFinished()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "x":
		// Dismiss every finished row.
		if m.dismiss != nil {
			for _, id := range m.order {
				if r := m.rows[id]; r.terminal {
					m.dismiss(id)
				}
			}
		}
	}
	return m, nil
}

func (m *Model) apply(e event.SyncProgressEvent) {
	r, ok := m.rows[e.AccountID]
	if !ok {
		r = &row{accountID: e.AccountID}
		m.rows[e.AccountID] = r
		m.order = append(m.order, e.AccountID)
	}
	r.phase = e.Phase
	r.current = e.Current
	r.total = e.Total
	r.percent = e.Percent
	r.message = e.Message
	r.terminal = e.Terminal
	r.failed = e.Failed
	if e.Failed {
		m.failures[e.AccountID] = true
	} else {
		delete(m.failures, e.AccountID)
	}
}

func (m *Model) remove(accountID string) {
	if _, ok := m.rows[accountID]; !ok {
		return
	}
	delete(m.rows, accountID)
	for i, id := range m.order {
		if id == accountID {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
}

// quitIfFinished ends the program once the work returned and every row
// still shown has reached a terminal phase.
func (m Model) quitIfFinished() tea.Cmd {
	if !m.done {
		return nil
	}
	for _, r := range m.rows {
		if !r.terminal {
			return nil
		}
	}
	return tea.Quit
}

func (m *Model) resize(width int) {
	if width <= 0 {
		width = defaultWidth
	}
	m.width = width
	// icon + label + counter + percent take roughly half the line.
	m.bar.Width = min(max(width-labelWidth-30, minBarWidth), maxBarWidth)
}

// Failed reports how many accounts ended in error.
func (m Model) Failed() int {
	return len(m.failures)
}

// Err returns the error the work function returned.
func (m Model) Err() error {
	return m.err
}

// Interrupted reports whether the user quit before the work finished.
func (m Model) Interrupted() bool {
	return m.quitting && !m.done
}

func (m Model) label(accountID string) string {
	if name, ok := m.names[accountID]; ok && name != "" {
		return name
	}
	return accountID
}
