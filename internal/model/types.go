package model

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Window represents a terminal multiplexer window.
type Window struct {
	// ID is the multiplexer's stable window identifier (e.g., "@3").
	// It survives renames and reorders for the lifetime of the server.
	ID string `json:"id"`
	// Index is the window's current position within its session.
	Index int `json:"index"`
	// Name is the window's current display name.
	Name string `json:"name"`
}

// Session represents a terminal multiplexer session and its windows.
type Session struct {
	// Name is the session name as reported by the multiplexer.
	Name string `json:"name"`
	// Windows are the session's windows in index order.
	Windows []Window `json:"windows"`
}

// Pane represents a single pane within a window.
type Pane struct {
	// ID is the multiplexer's stable pane identifier (e.g., "%5").
	ID string `json:"id"`
	// Index is the pane's position within its window.
	Index int `json:"index"`
	// Title is the pane title, often the hostname or the running
	// program. May be empty.
	Title string `json:"title,omitempty"`
}

// Target is a fully qualified pane address in "session:window.pane"
// form, as accepted by tmux -t.
type Target struct {
	Session string `json:"session"`
	Window  int    `json:"window"`
	Pane    int    `json:"pane"`
}

// String renders the target in "session:window.pane" form.
func (t Target) String() string {
	return fmt.Sprintf("%s:%d.%d", t.Session, t.Window, t.Pane)
}

// ParseTarget parses a "session:window.pane" string. The session name
// may itself contain ':' or '.'; the last occurrences win.
func ParseTarget(s string) (Target, error) {
	ci := strings.LastIndex(s, ":")
	if ci < 0 {
		return Target{}, fmt.Errorf("invalid target %q: missing ':'", s)
	}
	di := strings.LastIndex(s, ".")
	if di < ci {
		return Target{}, fmt.Errorf("invalid target %q: missing '.' after ':'", s)
	}
	w, err := strconv.Atoi(s[ci+1 : di])
	if err != nil {
		return Target{}, fmt.Errorf("invalid target %q: bad window index: %w", s, err)
	}
	p, err := strconv.Atoi(s[di+1:])
	if err != nil {
		return Target{}, fmt.Errorf("invalid target %q: bad pane index: %w", s, err)
	}
	return Target{Session: s[:ci], Window: w, Pane: p}, nil
}

// Sanitize maps a session or window name to its directory-safe form:
// every rune outside letters, digits, and underscore becomes an
// underscore.
func Sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return '_'
	}, name)
}

// WindowDirName computes the directory name for a window from its
// current index and display name.
func WindowDirName(index int, name string) string {
	return fmt.Sprintf("%d-%s", index, Sanitize(name))
}
