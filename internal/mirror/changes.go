package mirror

import (
	"crypto/sha256"
	"fmt"
)

// ChangeTracker remembers each pane's last captured content hash so a
// cycle can tell real output changes from quiet panes. The snapshot is
// written either way; the tracker only feeds metrics and the activity
// feed, so observers are not flooded by rewrites of identical content.
//
// The tracker is touched only by the reconciler's single-threaded
// cycle, so it carries no lock. State does not survive a restart; the
// first cycle after startup reports every pane as changed.
type ChangeTracker struct {
	hashes map[string]string // pane ID -> content hash
}

// NewChangeTracker creates an empty tracker.
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{hashes: make(map[string]string)}
}

// Changed records content for a pane and reports whether it differs
// from the previous cycle. A pane seen for the first time is changed.
// A nil tracker reports every capture as changed.
func (t *ChangeTracker) Changed(paneID, content string) bool {
	if t == nil {
		return true
	}
	h := hashContent(content)
	prev, ok := t.hashes[paneID]
	t.hashes[paneID] = h
	return !ok || prev != h
}

// Prune drops entries for panes no longer live, keeping the tracker
// from growing across pane churn.
func (t *ChangeTracker) Prune(live map[string]bool) {
	if t == nil {
		return
	}
	for id := range t.hashes {
		if !live[id] {
			delete(t.hashes, id)
		}
	}
}

// hashContent returns a hex-encoded SHA256 hash of the content.
func hashContent(content string) string {
	h := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", h)
}
