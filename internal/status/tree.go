// Package status renders the live mirror tree in a terminal UI. It
// works from the mirrored files alone — snapshots, queue files, and
// their modification times — so it needs no multiplexer access except
// to jump the client to a pane.
package status

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/timvw/pane-mirror/internal/model"
	"github.com/timvw/pane-mirror/internal/snapshot"
)

// PaneEntry is one pane directory found under the mirror root.
type PaneEntry struct {
	Session   string // session directory name (sanitized)
	WindowDir string // window directory name, e.g. "0-bash"
	Dir       string // absolute pane directory

	Header    snapshot.Header
	HasHeader bool

	// QueueDepth is the number of complete lines waiting in input.txt.
	QueueDepth int

	// Captured is the snapshot file's modification time.
	Captured time.Time
}

// Target returns the pane's "session:window.pane" address from its
// snapshot header, using the original (unsanitized) session name.
func (p PaneEntry) Target() string {
	return model.Target{
		Session: p.Header.Session,
		Window:  p.Header.WindowIndex,
		Pane:    p.Header.PaneIndex,
	}.String()
}

// WalkRoot reads the mirror tree and returns its panes in directory
// order: sessions, then windows, then panes. Directories without a
// readable snapshot are skipped; a half-built tree renders as far as
// it goes.
func WalkRoot(root string) ([]PaneEntry, error) {
	sessions, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var panes []PaneEntry
	for _, se := range sessions {
		if !se.IsDir() {
			continue
		}
		sessionDir := filepath.Join(root, se.Name())
		windows, err := os.ReadDir(sessionDir)
		if err != nil {
			continue
		}
		for _, we := range windows {
			if !we.IsDir() {
				continue
			}
			windowDir := filepath.Join(sessionDir, we.Name())
			entries, err := os.ReadDir(windowDir)
			if err != nil {
				continue
			}
			for _, pe := range entries {
				if !pe.IsDir() {
					continue
				}
				paneDir := filepath.Join(windowDir, pe.Name())
				contentPath := filepath.Join(paneDir, snapshot.ContentFileName)
				data, err := os.ReadFile(contentPath)
				if err != nil {
					continue
				}

				entry := PaneEntry{
					Session:   se.Name(),
					WindowDir: we.Name(),
					Dir:       paneDir,
				}
				if info, err := os.Stat(contentPath); err == nil {
					entry.Captured = info.ModTime()
				}
				if h, _, ok := snapshot.ParseHeader(string(data)); ok {
					entry.Header = h
					entry.HasHeader = true
				}
				entry.QueueDepth = queueDepth(filepath.Join(paneDir, snapshot.QueueFileName))
				panes = append(panes, entry)
			}
		}
	}
	return panes, nil
}

// queueDepth counts the complete lines waiting in a queue file. A
// missing file and a trailing fragment both count zero.
func queueDepth(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return bytes.Count(data, []byte{'\n'})
}
