package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/finpace/internal/config"
	"github.com/Iron-Ham/finpace/internal/logging"
	"github.com/Iron-Ham/finpace/internal/tui/styles"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View finpace logs",
	Long: `View and filter the finpace log, including rotated backups.

Examples:
  # Show the last 50 entries
  finpace logs

  # Show everything
  finpace logs -n 0

  # Follow new entries as they are written
  finpace logs -f

  # Only the worker, warnings and above, from the last hour
  finpace logs --component worker --level warn --since 1h

  # One account's sync history
  finpace logs --account acc_1

  # Search messages and attributes
  finpace logs --grep "rate limit|quota"`,
	RunE: runLogs,
}

var (
	logsTail      int
	logsFollow    bool
	logsLevel     string
	logsSince     string
	logsComponent string
	logsAccount   string
	logsGrep      string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show entries since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "Filter by component (worker, sync, simserver, config)")
	logsCmd.Flags().StringVar(&logsAccount, "account", "", "Filter by account ID")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter entries matching pattern (regex)")
}

// entryMatcher combines the structured filter with an optional regex over
// the message and attributes.
type entryMatcher struct {
	filter logging.Filter
	grep   *regexp.Regexp
}

func (m entryMatcher) Match(e logging.Entry) bool {
	if !m.filter.Match(e) {
		return false
	}
	if m.grep == nil {
		return true
	}
	return m.grep.MatchString(e.Format())
}

func newEntryMatcher(now time.Time) (entryMatcher, error) {
	m := entryMatcher{filter: logging.Filter{
		Level:     logsLevel,
		Component: logsComponent,
		AccountID: logsAccount,
	}}

	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return m, fmt.Errorf("invalid duration format: %w", err)
		}
		m.filter.Since = now.Add(-d)
	}

	if logsGrep != "" {
		re, err := regexp.Compile(logsGrep)
		if err != nil {
			return m, fmt.Errorf("invalid grep pattern: %w", err)
		}
		m.grep = re
	}
	return m, nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dir := cfg.Paths.ResolveDataDir()

	match, err := newEntryMatcher(time.Now())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if logsFollow {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		_, _ = fmt.Fprintln(out, "Following logs... (Ctrl+C to stop)")
		return followLogs(ctx, out, filepath.Join(dir, logging.FileName), match)
	}

	entries, err := logging.ReadDir(dir)
	if err != nil {
		_, _ = fmt.Fprintf(out, "No logs found. Logs are stored in %s\n", dir)
		return nil
	}
	displayLogs(out, entries, logsTail, match)
	return nil
}

// displayLogs prints the last tail entries accepted by match.
func displayLogs(w io.Writer, entries []logging.Entry, tail int, match entryMatcher) {
	var shown []logging.Entry
	for _, e := range entries {
		if match.Match(e) {
			shown = append(shown, e)
		}
	}

	if tail > 0 && len(shown) > tail {
		shown = shown[len(shown)-tail:]
	}

	for _, e := range shown {
		_, _ = fmt.Fprintln(w, renderEntry(e))
	}
	if len(shown) == 0 {
		_, _ = fmt.Fprintln(w, "No matching log entries found.")
	}
}

// renderEntry formats e and colors it by level. lipgloss drops the colors
// when the output is not a terminal.
func renderEntry(e logging.Entry) string {
	line := e.Format()
	switch strings.ToUpper(e.Level) {
	case logging.LevelDebug:
		return styles.Muted.Render(line)
	case logging.LevelWarn:
		return styles.Warning.Render(line)
	case logging.LevelError:
		return styles.Error.Render(line)
	default:
		return line
	}
}

// followLogs prints entries appended to path until ctx ends. A rotation
// replaces the file; the new one is read from its start.
func followLogs(ctx context.Context, w io.Writer, path string, match entryMatcher) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to watch logs: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory so the file can be recreated by rotation.
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch logs: %w", err)
	}

	t := &tailer{path: path, w: w, match: match}
	if err := t.open(io.SeekEnd); err != nil && !os.IsNotExist(err) {
		return err
	}
	defer t.close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching logs: %w", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				t.drain()
				t.close()
				if err := t.open(io.SeekStart); err != nil && !os.IsNotExist(err) {
					return err
				}
				t.drain()
			case ev.Has(fsnotify.Write):
				if t.f == nil {
					if err := t.open(io.SeekStart); err != nil && !os.IsNotExist(err) {
						return err
					}
				}
				t.drain()
			}
		}
	}
}

// tailer reads complete lines appended to one log file.
type tailer struct {
	path    string
	w       io.Writer
	match   entryMatcher
	f       *os.File
	r       *bufio.Reader
	partial string
}

func (t *tailer) open(whence int) error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	if _, err := f.Seek(0, whence); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to seek log file: %w", err)
	}
	t.f = f
	t.r = bufio.NewReader(f)
	t.partial = ""
	return nil
}

func (t *tailer) close() {
	if t.f != nil {
		_ = t.f.Close()
		t.f, t.r = nil, nil
	}
}

// drain prints every complete line available. A trailing partial line is
// kept until the rest of it is written.
func (t *tailer) drain() {
	if t.r == nil {
		return
	}
	for {
		chunk, err := t.r.ReadString('\n')
		t.partial += chunk
		if err != nil {
			return
		}
		line := t.partial
		t.partial = ""

		entries, _ := logging.Read(strings.NewReader(line))
		for _, e := range entries {
			if t.match.Match(e) {
				_, _ = fmt.Fprintln(t.w, renderEntry(e))
			}
		}
	}
}
