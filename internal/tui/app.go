package tui

import (
	"context"
	"errors"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/Iron-Ham/finpace/internal/event"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// AppOption configures an App.
type AppOption func(*App)

// WithAccountNames sets display names for account IDs.
func WithAccountNames(names map[string]string) AppOption {
	return func(a *App) { a.names = names }
}

// WithDismiss lets the user dismiss finished rows.
func WithDismiss(fn func(accountID string)) AppOption {
	return func(a *App) { a.dismiss = fn }
}

// WithOutput sets the program's input and output. A nil in disables
// keyboard input.
func WithOutput(in io.Reader, out io.Writer) AppOption {
	return func(a *App) {
		a.in = in
		a.out = out
	}
}

// App wraps the Bubbletea program
type App struct {
	bus     *event.Bus
	names   map[string]string
	dismiss func(string)
	in      io.Reader
	out     io.Writer
}

// Result summarizes a finished App run.
type Result struct {
	Failed      int
	Interrupted bool
}

// New creates an App that draws the sync events published on bus.
func New(bus *event.Bus, opts ...AppOption) *App {
	a := &App{bus: bus}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run draws progress while work runs. It returns when work has returned and
// every displayed sync has finished, or when the user quits; quitting
// cancels the context passed to work.
func (a *App) Run(ctx context.Context, work func(context.Context) error) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewModel(a.names)
	model.dismiss = a.dismiss

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if a.out != nil {
		opts = append(opts, tea.WithInput(a.in), tea.WithOutput(a.out))
	}
	program := tea.NewProgram(model, opts...)

	// Subscribe before work starts so the first events are not missed.
	subs := []string{
		a.bus.Subscribe(event.TypeSyncProgress, func(e event.Event) { program.Send(e) }),
		a.bus.Subscribe(event.TypeSyncDismissed, func(e event.Event) { program.Send(e) }),
	}
	defer func() {
		for _, id := range subs {
			a.bus.Unsubscribe(id)
		}
	}()

	go func() {
		err := work(ctx)
		program.Send(workDoneMsg{err: err})
	}()

	// Bubble Tea turns SIGINT into ErrInterrupted and a cancelled ctx into
	// ErrProgramKilled; both end the view without failing the run.
	final, err := program.Run()
	interrupted := errors.Is(err, tea.ErrInterrupted)
	if err != nil && !interrupted && !errors.Is(err, tea.ErrProgramKilled) {
		return Result{}, err
	}

	m, _ := final.(Model)
	return Result{Failed: m.Failed(), Interrupted: interrupted || m.Interrupted()}, m.Err()
}
