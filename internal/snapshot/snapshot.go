// Package snapshot renders and writes pane content mirrors.
//
// A snapshot file is a fixed 4-line header, a "---" separator, and the
// captured pane text verbatim. Each cycle's capture fully replaces the
// previous one; the write is atomic so a reader never sees a partial
// file. The pane's queue file is created empty alongside the snapshot,
// but only if absent — the writer never touches existing queue bytes.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/timvw/pane-mirror/internal/fsutil"
	"github.com/timvw/pane-mirror/internal/mux"
)

const (
	// ContentFileName is the snapshot file within a pane directory.
	ContentFileName = "content.txt"
	// QueueFileName is the input queue file within a pane directory.
	QueueFileName = "input.txt"
	// separator sits between the header and the captured text.
	separator = "---"
)

// Header identifies the pane a snapshot belongs to.
type Header struct {
	Session     string
	WindowIndex int
	WindowName  string
	PaneIndex   int
	Title       string
}

// String renders the fixed 4-line header followed by the separator.
func (h Header) String() string {
	return fmt.Sprintf("Session: %s\nWindow: %d (%s)\nPane: %d\nTitle: %s\n%s\n",
		h.Session, h.WindowIndex, h.WindowName, h.PaneIndex, h.Title, separator)
}

// ParseHeader splits a snapshot file into its header and the captured
// text. ok is false when the content does not carry a well-formed
// header.
func ParseHeader(content string) (h Header, text string, ok bool) {
	rest := content
	next := func() (string, bool) {
		i := strings.IndexByte(rest, '\n')
		if i < 0 {
			return "", false
		}
		line := rest[:i]
		rest = rest[i+1:]
		return line, true
	}

	line, lok := next()
	if !lok || !strings.HasPrefix(line, "Session: ") {
		return Header{}, "", false
	}
	h.Session = strings.TrimPrefix(line, "Session: ")

	line, lok = next()
	if !lok || !strings.HasPrefix(line, "Window: ") {
		return Header{}, "", false
	}
	win := strings.TrimPrefix(line, "Window: ")
	sp := strings.IndexByte(win, ' ')
	if sp < 0 {
		return Header{}, "", false
	}
	idx, err := strconv.Atoi(win[:sp])
	if err != nil {
		return Header{}, "", false
	}
	h.WindowIndex = idx
	name := win[sp+1:]
	if !strings.HasPrefix(name, "(") || !strings.HasSuffix(name, ")") {
		return Header{}, "", false
	}
	h.WindowName = name[1 : len(name)-1]

	line, lok = next()
	if !lok || !strings.HasPrefix(line, "Pane: ") {
		return Header{}, "", false
	}
	pane, err := strconv.Atoi(strings.TrimPrefix(line, "Pane: "))
	if err != nil {
		return Header{}, "", false
	}
	h.PaneIndex = pane

	line, lok = next()
	if !lok || !strings.HasPrefix(line, "Title: ") {
		return Header{}, "", false
	}
	h.Title = strings.TrimPrefix(line, "Title: ")

	line, lok = next()
	if !lok || line != separator {
		return Header{}, "", false
	}

	return h, rest, true
}

// Writer captures pane content and writes snapshot files.
type Writer struct {
	mux        mux.Multiplexer
	scrollback int
}

// NewWriter creates a Writer capturing scrollback lines of history per
// pane.
func NewWriter(m mux.Multiplexer, scrollback int) *Writer {
	return &Writer{mux: m, scrollback: scrollback}
}

// Capture returns the pane's content with the configured scrollback.
func (w *Writer) Capture(ctx context.Context, target string) (string, error) {
	return w.mux.Capture(ctx, target, w.scrollback)
}

// Write renders the snapshot into paneDir/content.txt atomically and
// ensures the queue file exists. The pane directory is created as
// needed.
func (w *Writer) Write(paneDir string, h Header, text string) error {
	if err := os.MkdirAll(paneDir, 0o755); err != nil {
		return fmt.Errorf("creating pane directory %s: %w", paneDir, err)
	}
	data := h.String() + text
	if err := fsutil.WriteFileAtomic(filepath.Join(paneDir, ContentFileName), []byte(data), 0o644); err != nil {
		return err
	}
	return ensureQueue(paneDir)
}

// ensureQueue creates an empty queue file if none exists. An existing
// file, whatever it holds, is left alone.
func ensureQueue(paneDir string) error {
	f, err := os.OpenFile(filepath.Join(paneDir, QueueFileName), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("creating queue file in %s: %w", paneDir, err)
	}
	return f.Close()
}
