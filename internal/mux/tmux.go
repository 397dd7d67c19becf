package mux

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/timvw/pane-mirror/internal/model"
)

// Tmux implements the Multiplexer interface for tmux.
type Tmux struct{}

// NewTmux creates a new tmux multiplexer.
func NewTmux() *Tmux {
	return &Tmux{}
}

// Name returns "tmux".
func (t *Tmux) Name() string {
	return "tmux"
}

// DiscoverSessions lists every window on the server in one call and
// groups them by session, preserving tmux's listing order.
func (t *Tmux) DiscoverSessions(ctx context.Context) ([]model.Session, error) {
	// Format: session_name\twindow_id\twindow_index\twindow_name.
	// The name is last so embedded tabs in it survive SplitN.
	format := "#{session_name}\t#{window_id}\t#{window_index}\t#{window_name}"
	out, err := t.run(ctx, "list-windows", "-a", "-F", format)
	if err != nil {
		return nil, fmt.Errorf("tmux list-windows: %w", err)
	}

	var sessions []model.Session
	index := map[string]int{}
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 4)
		if len(parts) != 4 {
			continue
		}
		winIndex, err := strconv.Atoi(parts[2])
		if err != nil {
			continue
		}
		w := model.Window{ID: parts[1], Index: winIndex, Name: parts[3]}

		name := parts[0]
		i, ok := index[name]
		if !ok {
			i = len(sessions)
			index[name] = i
			sessions = append(sessions, model.Session{Name: name})
		}
		sessions[i].Windows = append(sessions[i].Windows, w)
	}

	return sessions, nil
}

// ListPanes returns the panes of the window with the given stable ID.
func (t *Tmux) ListPanes(ctx context.Context, windowID string) ([]model.Pane, error) {
	format := "#{pane_index}\t#{pane_id}\t#{pane_title}"
	out, err := t.run(ctx, "list-panes", "-t", windowID, "-F", format)
	if err != nil {
		return nil, fmt.Errorf("tmux list-panes -t %s: %w", windowID, err)
	}

	var panes []model.Pane
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		paneIndex, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		panes = append(panes, model.Pane{Index: paneIndex, ID: parts[1], Title: parts[2]})
	}

	return panes, nil
}

// Capture returns the pane's content with scrollback lines of history
// above the visible area. The output is the capture verbatim; lines are
// not joined or trimmed.
func (t *Tmux) Capture(ctx context.Context, target string, scrollback int) (string, error) {
	out, err := t.run(ctx, "capture-pane", "-p", "-t", target, "-S", fmt.Sprintf("-%d", scrollback))
	if err != nil {
		return "", fmt.Errorf("tmux capture-pane -t %s: %w", target, err)
	}
	return out, nil
}

// SendText transmits text to the pane without an activation keystroke.
// Printable ASCII goes through send-keys -l; anything else (control
// bytes, multi-byte characters) goes through the hex channel so tmux
// cannot reinterpret it.
func (t *Tmux) SendText(ctx context.Context, target string, text string) error {
	if text == "" {
		return nil
	}
	if isPrintableASCII(text) {
		if _, err := t.run(ctx, "send-keys", "-t", target, "-l", "--", text); err != nil {
			return fmt.Errorf("tmux send-keys -l -t %s: %w", target, err)
		}
		return nil
	}
	args := []string{"send-keys", "-t", target, "-H"}
	for i := 0; i < len(text); i++ {
		args = append(args, fmt.Sprintf("%02x", text[i]))
	}
	if _, err := t.run(ctx, args...); err != nil {
		return fmt.Errorf("tmux send-keys -H -t %s: %w", target, err)
	}
	return nil
}

// SendKey transmits a single named key to the pane.
func (t *Tmux) SendKey(ctx context.Context, target string, key string) error {
	if _, err := t.run(ctx, "send-keys", "-t", target, key); err != nil {
		return fmt.Errorf("tmux send-keys %s -t %s: %w", key, target, err)
	}
	return nil
}

// run executes a tmux command and returns its stdout.
func (t *Tmux) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "tmux", args...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("%w: %s", err, string(exitErr.Stderr))
		}
		return "", err
	}
	return string(out), nil
}

// isPrintableASCII reports whether every byte of s is in the printable
// ASCII range (space through tilde).
func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
