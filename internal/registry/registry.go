// Package registry tracks window identity across reconcile cycles.
//
// Windows rename and reorder freely upstream; the only stable handle is
// the multiplexer's window ID. Each session directory carries a
// windows.json mapping window ID to the window's current directory
// name, so a rename is detected as "known ID, different desired name"
// and handled as a directory rename instead of a delete-and-recreate
// that would orphan queued input. The persisted file is the durable
// source of truth; no in-process state survives a restart.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/timvw/pane-mirror/internal/fsutil"
	"github.com/timvw/pane-mirror/internal/logging"
	"github.com/timvw/pane-mirror/internal/model"
)

// FileName is the registry file's name within a session directory.
const FileName = "windows.json"

var regLog = logging.ForComponent(logging.CompRegistry)

// Registry is one session's window-ID-to-directory-name mapping.
type Registry struct {
	mapping map[string]string
	dirty   bool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{mapping: map[string]string{}}
}

// Load reads a session's registry file. A missing or corrupt file
// yields an empty registry, never an error; the mapping is rebuilt by
// the next Resolve.
func Load(sessionDir string) *Registry {
	r := New()
	data, err := os.ReadFile(filepath.Join(sessionDir, FileName))
	if err != nil {
		return r
	}
	if err := json.Unmarshal(data, &r.mapping); err != nil {
		regLog.Warn("corrupt registry file, rebuilding", "dir", sessionDir, "error", err)
		r.mapping = map[string]string{}
	}
	return r
}

// Exists reports whether a session directory has a registry file.
func Exists(sessionDir string) bool {
	_, err := os.Stat(filepath.Join(sessionDir, FileName))
	return err == nil
}

// Dir returns the directory name recorded for a window ID.
func (r *Registry) Dir(id string) (string, bool) {
	dir, ok := r.mapping[id]
	return dir, ok
}

// Put records a window ID to directory name pair. Used by legacy
// migration to seed a registry from matched directories.
func (r *Registry) Put(id, dir string) {
	if r.mapping[id] == dir {
		return
	}
	r.mapping[id] = dir
	r.dirty = true
}

// Len returns the number of recorded windows.
func (r *Registry) Len() int {
	return len(r.mapping)
}

// Resolved pairs a live window with its directory for this cycle.
type Resolved struct {
	Window model.Window
	// Dir is the directory name under the session directory.
	Dir string
	// Created is set when the directory was created this cycle.
	Created bool
	// RenamedFrom holds the previous directory name when the window
	// was renamed this cycle.
	RenamedFrom string
}

// Resolve brings the session directory in line with the live window
// set. For each live window it computes the desired directory name
// (index-sanitizedName) and creates or renames as needed; a rename
// whose target already exists on disk is a stale collision and the
// stale directory is deleted first. Mapping entries whose window ID is
// no longer live are pruned and their directories removed.
//
// Filesystem failures are logged and skip only the affected window;
// the entry keeps its old state so the operation is retried next
// cycle. The returned slice holds only successfully resolved windows.
// removed lists the directory names pruned this cycle.
func (r *Registry) Resolve(sessionDir string, live []model.Window) (resolved []Resolved, removed []string) {
	liveIDs := make(map[string]bool, len(live))

	for _, w := range live {
		liveIDs[w.ID] = true
		desired := model.WindowDirName(w.Index, w.Name)
		desiredPath := filepath.Join(sessionDir, desired)

		current, known := r.mapping[w.ID]
		if known && current == desired {
			resolved = append(resolved, Resolved{Window: w, Dir: desired})
			continue
		}

		if !known {
			if err := os.MkdirAll(desiredPath, 0o755); err != nil {
				regLog.Warn("creating window directory", "dir", desiredPath, "error", err)
				continue
			}
			r.mapping[w.ID] = desired
			r.dirty = true
			resolved = append(resolved, Resolved{Window: w, Dir: desired, Created: true})
			continue
		}

		// Known ID with a changed desired name: rename in place.
		currentPath := filepath.Join(sessionDir, current)
		if _, err := os.Stat(currentPath); err != nil {
			// Source directory vanished out from under us; start fresh.
			if err := os.MkdirAll(desiredPath, 0o755); err != nil {
				regLog.Warn("recreating window directory", "dir", desiredPath, "error", err)
				continue
			}
			r.mapping[w.ID] = desired
			r.dirty = true
			resolved = append(resolved, Resolved{Window: w, Dir: desired, Created: true})
			continue
		}
		if _, err := os.Stat(desiredPath); err == nil {
			// Stale collision: a directory left behind by a previously
			// deleted window occupies the target name.
			if err := os.RemoveAll(desiredPath); err != nil {
				regLog.Warn("removing stale directory before rename", "dir", desiredPath, "error", err)
				continue
			}
		}
		if err := os.Rename(currentPath, desiredPath); err != nil {
			regLog.Warn("renaming window directory", "from", currentPath, "to", desiredPath, "error", err)
			continue
		}
		r.mapping[w.ID] = desired
		r.dirty = true
		resolved = append(resolved, Resolved{Window: w, Dir: desired, RenamedFrom: current})
	}

	// Prune entries for windows no longer live.
	for id, dir := range r.mapping {
		if liveIDs[id] {
			continue
		}
		path := filepath.Join(sessionDir, dir)
		if err := os.RemoveAll(path); err != nil {
			regLog.Warn("removing stale window directory", "dir", path, "error", err)
			continue
		}
		delete(r.mapping, id)
		r.dirty = true
		removed = append(removed, dir)
	}

	return resolved, removed
}

// Save persists the mapping to the session's registry file, but only if
// it changed this cycle. The write is atomic and the file is
// human-readable JSON.
func (r *Registry) Save(sessionDir string) error {
	if !r.dirty {
		return nil
	}
	data, err := json.MarshalIndent(r.mapping, "", "  ")
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(sessionDir, FileName), append(data, '\n'), 0o644); err != nil {
		return err
	}
	r.dirty = false
	return nil
}
