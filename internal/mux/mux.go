// Package mux provides an abstraction over terminal multiplexers (tmux,
// zellij).
//
// This package is pure transport: it reports session topology, captures
// pane content, and transmits text or keys to panes. It never interprets
// what it carries. All calls shell out to the multiplexer binary and are
// treated as fallible remote operations.
package mux

import (
	"context"

	"github.com/timvw/pane-mirror/internal/model"
)

// Multiplexer abstracts terminal multiplexer operations.
// Implementations exist for tmux and (future) zellij.
type Multiplexer interface {
	// Name returns the multiplexer name (e.g., "tmux", "zellij").
	Name() string

	// DiscoverSessions returns all sessions with their windows, in the
	// multiplexer's listing order.
	DiscoverSessions(ctx context.Context) ([]model.Session, error)

	// ListPanes returns the panes of one window, addressed by its
	// stable window identifier.
	ListPanes(ctx context.Context, windowID string) ([]model.Pane, error)

	// Capture returns a pane's content including the given number of
	// scrollback lines above the visible area. The target may be a
	// stable pane identifier or any other form the multiplexer accepts.
	Capture(ctx context.Context, target string, scrollback int) (string, error)

	// SendText transmits text to a pane exactly as given, with no
	// activation keystroke appended.
	SendText(ctx context.Context, target string, text string) error

	// SendKey transmits a single named key from the multiplexer's key
	// vocabulary (e.g., "Enter", "Escape", "C-c", "C-u").
	SendKey(ctx context.Context, target string, key string) error
}
