// Package tui renders bank-sync progress in the terminal.
//
// App is a Bubble Tea program that draws one progress bar per account from
// the sync.progress and sync.dismissed events on the bus. Printer is the
// non-interactive fallback used when stdout is not a terminal: it writes one
// line per phase change.
package tui
