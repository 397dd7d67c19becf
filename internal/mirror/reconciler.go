// Package mirror drives the reconcile loop: it walks the live
// multiplexer tree, brings the on-disk mirror in line with it, refreshes
// pane snapshots, drains input queues, and removes what no longer exists
// upstream. One Reconcile call is one cycle; the daemon runs cycles on a
// timer, the sync command runs exactly one.
package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/timvw/pane-mirror/internal/activity"
	"github.com/timvw/pane-mirror/internal/config"
	"github.com/timvw/pane-mirror/internal/logging"
	"github.com/timvw/pane-mirror/internal/model"
	"github.com/timvw/pane-mirror/internal/mux"
	pmotel "github.com/timvw/pane-mirror/internal/otel"
	"github.com/timvw/pane-mirror/internal/queue"
	"github.com/timvw/pane-mirror/internal/registry"
	"github.com/timvw/pane-mirror/internal/snapshot"
)

var tracer = otel.Tracer("pane-mirror")

var recLog = logging.ForComponent(logging.CompReconciler)

// Reconciler holds the collaborators for one mirror tree. The zero
// value is not usable; Mux, Root, Snapshots, and Queues are required.
// Changes, Metrics, and Feed may be nil (all three are nil-safe).
type Reconciler struct {
	Mux             mux.Multiplexer
	Root            string
	Snapshots       *snapshot.Writer
	Queues          *queue.Processor
	ExcludeSessions []string // session names or prefix globs to skip
	Changes         *ChangeTracker
	Metrics         *pmotel.Metrics
	Feed            *activity.Publisher
}

// CycleStats reports what one reconcile cycle did.
type CycleStats struct {
	Sessions         int   `json:"sessions"`
	Windows          int   `json:"windows"`
	Panes            int   `json:"panes"`
	SnapshotsChanged int   `json:"snapshots_changed"`
	QueueLines       int   `json:"queue_lines"`
	Renamed          int   `json:"renamed"`
	Removed          int   `json:"removed"`
	Errors           int   `json:"errors"`
	DurationMs       int64 `json:"duration_ms"`

	// PaneDirs lists the live pane directories this cycle touched, for
	// the queue watcher.
	PaneDirs []string `json:"-"`
}

// Reconcile runs one full cycle. It returns an error only when the
// cycle could not start at all (session discovery failed, or the mirror
// root cannot be created); every per-session, per-window, and per-pane
// failure is logged, counted in Errors, and skipped so one broken unit
// never stops the rest of the tree.
func (r *Reconciler) Reconcile(ctx context.Context) (*CycleStats, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "reconcile")
	defer span.End()

	stats := &CycleStats{}

	sessions, err := r.Mux.DiscoverSessions(ctx)
	if err != nil {
		r.Metrics.RecordCycle(ctx, time.Since(start), true)
		return stats, fmt.Errorf("discovering sessions: %w", err)
	}

	if err := os.MkdirAll(r.Root, 0o755); err != nil {
		r.Metrics.RecordCycle(ctx, time.Since(start), true)
		return stats, fmt.Errorf("creating mirror root %s: %w", r.Root, err)
	}

	// Directory names of every live session, excluded ones included:
	// exclusion skips the writing, not the existence.
	liveSessions := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		liveSessions[model.Sanitize(s.Name)] = true
	}

	livePanes := make(map[string]bool)
	for _, s := range sessions {
		if config.MatchesExcludeList(s.Name, r.ExcludeSessions) {
			recLog.Debug("session excluded", "session", s.Name)
			continue
		}
		stats.Sessions++
		r.reconcileSession(ctx, s, stats, livePanes)
	}

	r.cleanupSessions(ctx, liveSessions, stats)
	r.Changes.Prune(livePanes)

	dur := time.Since(start)
	stats.DurationMs = dur.Milliseconds()
	span.SetAttributes(
		attribute.Int("sessions.total", stats.Sessions),
		attribute.Int("panes.total", stats.Panes),
		attribute.Int("queue.lines", stats.QueueLines),
		attribute.Int("dirs.removed", stats.Removed),
		attribute.Int("errors.total", stats.Errors),
	)
	r.Metrics.RecordCycle(ctx, dur, false)
	r.Metrics.RecordRemovals(ctx, stats.Removed)
	r.Feed.Publish(activity.KindCycle, "",
		fmt.Sprintf("%d sessions, %d panes, %d queue lines", stats.Sessions, stats.Panes, stats.QueueLines))

	return stats, nil
}

func (r *Reconciler) reconcileSession(ctx context.Context, s model.Session, stats *CycleStats, livePanes map[string]bool) {
	sessionDir := filepath.Join(r.Root, model.Sanitize(s.Name))
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		recLog.Warn("creating session directory", "dir", sessionDir, "error", err)
		r.unitError(ctx, stats, "session", s.Name, err)
		return
	}

	reg := registry.Load(sessionDir)
	if !registry.Exists(sessionDir) {
		if n, err := migrateLegacy(sessionDir, s.Windows, reg); err != nil {
			recLog.Warn("migrating legacy layout", "dir", sessionDir, "error", err)
			r.unitError(ctx, stats, "session", s.Name, err)
		} else if n > 0 {
			recLog.Info("migrated legacy window directories", "session", s.Name, "windows", n)
		}
	}

	resolved, removed := reg.Resolve(sessionDir, s.Windows)
	for _, dir := range removed {
		stats.Removed++
		r.Feed.Publish(activity.KindRemove, s.Name+"/"+dir, "window closed")
	}

	for _, rw := range resolved {
		if rw.RenamedFrom != "" {
			stats.Renamed++
			r.Metrics.RecordRename(ctx)
			r.Feed.Publish(activity.KindRename, s.Name+"/"+rw.Dir, "was "+rw.RenamedFrom)
			recLog.Info("window directory renamed", "session", s.Name, "from", rw.RenamedFrom, "to", rw.Dir)
		}
		stats.Windows++
		r.reconcileWindow(ctx, s, rw, sessionDir, stats, livePanes)
	}

	if err := reg.Save(sessionDir); err != nil {
		recLog.Warn("saving window registry", "dir", sessionDir, "error", err)
		r.unitError(ctx, stats, "session", s.Name, err)
	}
}

func (r *Reconciler) reconcileWindow(ctx context.Context, s model.Session, rw registry.Resolved, sessionDir string, stats *CycleStats, livePanes map[string]bool) {
	windowDir := filepath.Join(sessionDir, rw.Dir)

	panes, err := r.Mux.ListPanes(ctx, rw.Window.ID)
	if err != nil {
		// The window may have closed mid-cycle. Skip it, pane cleanup
		// included: a later cycle confirms the absence before anything
		// is deleted.
		recLog.Warn("listing panes", "window", rw.Window.ID, "error", err)
		r.unitError(ctx, stats, "window", s.Name+"/"+rw.Dir, err)
		return
	}

	liveIdx := make(map[string]bool, len(panes))
	for _, p := range panes {
		liveIdx[strconv.Itoa(p.Index)] = true
		livePanes[p.ID] = true
		stats.Panes++
		r.mirrorPane(ctx, s, rw, p, windowDir, stats)
	}

	r.cleanupPanes(ctx, s, rw, windowDir, liveIdx, stats)
}

func (r *Reconciler) mirrorPane(ctx context.Context, s model.Session, rw registry.Resolved, p model.Pane, windowDir string, stats *CycleStats) {
	target := model.Target{Session: s.Name, Window: rw.Window.Index, Pane: p.Index}.String()
	ctx, span := tracer.Start(ctx, "mirror_pane",
		trace.WithAttributes(
			attribute.String("pane.id", p.ID),
			attribute.String("pane.target", target),
		))
	defer span.End()

	paneDir := filepath.Join(windowDir, strconv.Itoa(p.Index))

	text, err := r.Snapshots.Capture(ctx, p.ID)
	if err != nil {
		recLog.Warn("capturing pane", "pane", p.ID, "target", target, "error", err)
		r.unitError(ctx, stats, "pane", target, err)
		return
	}

	h := snapshot.Header{
		Session:     s.Name,
		WindowIndex: rw.Window.Index,
		WindowName:  rw.Window.Name,
		PaneIndex:   p.Index,
		Title:       p.Title,
	}
	if err := r.Snapshots.Write(paneDir, h, text); err != nil {
		recLog.Warn("writing snapshot", "dir", paneDir, "error", err)
		r.unitError(ctx, stats, "pane", target, err)
		return
	}
	changed := r.Changes.Changed(p.ID, text)
	if changed {
		stats.SnapshotsChanged++
		r.Feed.Publish(activity.KindSnapshot, target, "content changed")
	}
	r.Metrics.RecordPane(ctx, changed)
	span.SetAttributes(attribute.Bool("snapshot.changed", changed))

	res, qerr := r.Queues.Process(ctx, paneDir, p.ID)
	if res.Lines > 0 {
		stats.QueueLines += res.Lines
		r.Metrics.RecordQueueLines(ctx, res.Lines)
		r.Feed.Publish(activity.KindInput, target, fmt.Sprintf("%d lines", res.Lines))
		recLog.Info("queued input applied", "target", target, "lines", res.Lines)
	}
	if qerr != nil {
		// The consumed prefix is already trimmed; the failed line stays
		// at the head of the file for the next cycle.
		recLog.Warn("processing queue", "target", target, "lines_applied", res.Lines, "error", qerr)
		r.Metrics.RecordQueueError(ctx)
		r.unitError(ctx, stats, "pane", target, qerr)
	}
	span.SetAttributes(attribute.Int("queue.lines", res.Lines))

	stats.PaneDirs = append(stats.PaneDirs, paneDir)
}

// cleanupPanes deletes pane directories under a window whose pane is no
// longer live, queued input included.
func (r *Reconciler) cleanupPanes(ctx context.Context, s model.Session, rw registry.Resolved, windowDir string, liveIdx map[string]bool, stats *CycleStats) {
	entries, err := os.ReadDir(windowDir)
	if err != nil {
		recLog.Warn("reading window directory", "dir", windowDir, "error", err)
		r.unitError(ctx, stats, "window", s.Name+"/"+rw.Dir, err)
		return
	}
	for _, e := range entries {
		if !e.IsDir() || !isNumericName(e.Name()) || liveIdx[e.Name()] {
			continue
		}
		path := filepath.Join(windowDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			recLog.Warn("removing stale pane directory", "dir", path, "error", err)
			r.unitError(ctx, stats, "pane", path, err)
			continue
		}
		stats.Removed++
		r.Feed.Publish(activity.KindRemove, s.Name+"/"+rw.Dir+"/"+e.Name(), "pane closed")
		recLog.Info("stale pane directory removed", "dir", path)
	}
}

// cleanupSessions deletes root-level directories whose session no
// longer exists upstream. Plain files (the instance lock among them)
// are left alone.
func (r *Reconciler) cleanupSessions(ctx context.Context, live map[string]bool, stats *CycleStats) {
	entries, err := os.ReadDir(r.Root)
	if err != nil {
		recLog.Warn("reading mirror root", "dir", r.Root, "error", err)
		r.unitError(ctx, stats, "session", r.Root, err)
		return
	}
	for _, e := range entries {
		if !e.IsDir() || live[e.Name()] {
			continue
		}
		path := filepath.Join(r.Root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			recLog.Warn("removing stale session directory", "dir", path, "error", err)
			r.unitError(ctx, stats, "session", e.Name(), err)
			continue
		}
		stats.Removed++
		r.Feed.Publish(activity.KindRemove, e.Name(), "session closed")
		recLog.Info("stale session directory removed", "dir", path)
	}
}

func (r *Reconciler) unitError(ctx context.Context, stats *CycleStats, unit, target string, err error) {
	stats.Errors++
	r.Metrics.RecordUnitError(ctx, unit)
	r.Feed.Publish(activity.KindError, target, err.Error())
}

// isNumericName reports whether s is a bare decimal number, the form
// pane directories (and legacy window directories) are named in.
func isNumericName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
