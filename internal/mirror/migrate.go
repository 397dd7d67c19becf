package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/timvw/pane-mirror/internal/model"
	"github.com/timvw/pane-mirror/internal/registry"
)

// migrateLegacy upgrades a session directory from the old layout where
// window directories were named by bare index ("0", "1"). Each numeric
// directory is matched by index against the live windows: matches are
// renamed to the index-name form and seeded into the registry, the rest
// are deleted (their window is gone and an index alone cannot say which
// one it was).
//
// Runs only while the session has no registry file; the file written at
// the end of the first cycle is the done marker, so the migration is
// one-time per session and safe across restarts.
func migrateLegacy(sessionDir string, live []model.Window, reg *registry.Registry) (int, error) {
	entries, err := os.ReadDir(sessionDir)
	if err != nil {
		return 0, fmt.Errorf("reading session directory: %w", err)
	}

	byIndex := make(map[int]model.Window, len(live))
	for _, w := range live {
		byIndex[w.Index] = w
	}

	migrated := 0
	for _, e := range entries {
		if !e.IsDir() || !isNumericName(e.Name()) {
			continue
		}
		idx, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		oldPath := filepath.Join(sessionDir, e.Name())

		w, ok := byIndex[idx]
		if !ok {
			if err := os.RemoveAll(oldPath); err != nil {
				recLog.Warn("removing unmatched legacy directory", "dir", oldPath, "error", err)
			}
			continue
		}

		newName := model.WindowDirName(w.Index, w.Name)
		newPath := filepath.Join(sessionDir, newName)
		if _, err := os.Stat(newPath); err == nil {
			// Both layouts present for the same window; the named form
			// wins and the numeric leftover goes.
			if err := os.RemoveAll(oldPath); err != nil {
				recLog.Warn("removing duplicate legacy directory", "dir", oldPath, "error", err)
				continue
			}
			reg.Put(w.ID, newName)
			migrated++
			continue
		}
		if err := os.Rename(oldPath, newPath); err != nil {
			recLog.Warn("renaming legacy directory", "from", oldPath, "to", newPath, "error", err)
			continue
		}
		reg.Put(w.ID, newName)
		migrated++
	}

	return migrated, nil
}
