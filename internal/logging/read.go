package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Entry is one parsed line of a finpace log file.
type Entry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	Component string         `json:"component,omitempty"`
	AccountID string         `json:"account_id,omitempty"`
	Phase     string         `json:"phase,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Filter selects entries. Zero-valued fields match everything; set fields
// are combined with AND.
type Filter struct {
	// Level keeps entries at or above this level.
	Level           string
	Since           time.Time
	Component       string
	AccountID       string
	MessageContains string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ReadDir reads finpace.log and its rotated backups from dir, oldest first.
// Lines that are not valid JSON are skipped.
func ReadDir(dir string) ([]Entry, error) {
	paths, err := filepath.Glob(filepath.Join(dir, FileName+".*"))
	if err != nil {
		return nil, err
	}
	// finpace.log.3 is older than finpace.log.1.
	sort.Slice(paths, func(i, j int) bool {
		return backupIndex(paths[i]) > backupIndex(paths[j])
	})
	paths = append(paths, filepath.Join(dir, FileName))

	var entries []Entry
	found := false
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		found = true
		batch, err := Read(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(p), err)
		}
		entries = append(entries, batch...)
	}
	if !found {
		return nil, fmt.Errorf("no log file in %s", dir)
	}
	return entries, nil
}

func backupIndex(path string) int {
	n, err := strconv.Atoi(path[strings.LastIndexByte(path, '.')+1:])
	if err != nil {
		return 0
	}
	return n
}

// Read parses JSON log lines from r.
func Read(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := parseEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

func parseEntry(line string) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	entry := Entry{Attrs: make(map[string]any)}
	for k, v := range raw {
		s, _ := v.(string)
		switch k {
		case "time":
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				entry.Time = t
			}
		case "level":
			entry.Level = s
		case "msg":
			entry.Message = s
		case "component":
			entry.Component = s
		case "account_id":
			entry.AccountID = s
		case "phase":
			entry.Phase = s
		default:
			entry.Attrs[k] = v
		}
	}
	return entry, nil
}

// Apply returns the entries matching f.
func (f Filter) Apply(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Match reports whether e satisfies every set field of f.
func (f Filter) Match(e Entry) bool {
	if f.Level != "" {
		want, okWant := levelOrder[strings.ToUpper(f.Level)]
		got, okGot := levelOrder[e.Level]
		if okWant && okGot && got < want {
			return false
		}
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if f.Component != "" && e.Component != f.Component {
		return false
	}
	if f.AccountID != "" && e.AccountID != f.AccountID {
		return false
	}
	if f.MessageContains != "" && !strings.Contains(e.Message, f.MessageContains) {
		return false
	}
	return true
}

// Format renders e as a single human-readable line:
//
//	[2006-01-02 15:04:05.000] INFO  worker - batch processed {"pending":3}
func (e Entry) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %-5s", e.Time.Format("2006-01-02 15:04:05.000"), e.Level)
	if e.Component != "" {
		fmt.Fprintf(&b, " %s", e.Component)
	}
	b.WriteString(" - ")
	b.WriteString(e.Message)

	var ctx []string
	if e.AccountID != "" {
		ctx = append(ctx, "account="+e.AccountID)
	}
	if e.Phase != "" {
		ctx = append(ctx, "phase="+e.Phase)
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	if len(e.Attrs) > 0 {
		// json.Marshal sorts map keys.
		attrs, _ := json.Marshal(e.Attrs)
		b.WriteByte(' ')
		b.Write(attrs)
	}
	return b.String()
}
