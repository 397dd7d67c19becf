package activity

import (
	"fmt"
	"strings"
	"time"
)

const (
	KindCycle    = "cycle"
	KindSnapshot = "snapshot"
	KindInput    = "input"
	KindRename   = "rename"
	KindRemove   = "remove"
	KindError    = "error"
)

// Event is one datagram on the daemon's activity feed. The daemon
// publishes these as it works; the status view collects them. Target
// identifies what the event is about (a pane target like "work:1.0",
// a session name, or a relative directory) and may be empty for
// cycle-level events.
type Event struct {
	Kind   string    `json:"kind"`
	RunID  string    `json:"run_id"`
	TS     time.Time `json:"ts"`
	Target string    `json:"target,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

func (e Event) Validate() error {
	if !isValidKind(e.Kind) {
		return fmt.Errorf("invalid kind %q", e.Kind)
	}
	if strings.TrimSpace(e.RunID) == "" {
		return fmt.Errorf("run_id is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

func isValidKind(kind string) bool {
	switch kind {
	case KindCycle, KindSnapshot, KindInput, KindRename, KindRemove, KindError:
		return true
	default:
		return false
	}
}
