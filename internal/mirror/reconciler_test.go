package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/timvw/pane-mirror/internal/model"
	"github.com/timvw/pane-mirror/internal/queue"
	"github.com/timvw/pane-mirror/internal/registry"
	"github.com/timvw/pane-mirror/internal/snapshot"
)

// fakeMux serves a mutable live topology and records transmissions.
type fakeMux struct {
	sessions []model.Session
	panes    map[string][]model.Pane // window ID -> panes
	captures map[string]string       // pane ID -> content
	sent     []string                // "paneID kind:value"

	discoverErr   error
	failListPanes map[string]bool // window ID -> fail
	failCapture   map[string]bool // pane ID -> fail
}

func (m *fakeMux) Name() string { return "fake" }

func (m *fakeMux) DiscoverSessions(ctx context.Context) ([]model.Session, error) {
	if m.discoverErr != nil {
		return nil, m.discoverErr
	}
	return m.sessions, nil
}

func (m *fakeMux) ListPanes(ctx context.Context, windowID string) ([]model.Pane, error) {
	if m.failListPanes[windowID] {
		return nil, fmt.Errorf("window %s gone", windowID)
	}
	return m.panes[windowID], nil
}

func (m *fakeMux) Capture(ctx context.Context, target string, scrollback int) (string, error) {
	if m.failCapture[target] {
		return "", fmt.Errorf("pane %s gone", target)
	}
	return m.captures[target], nil
}

func (m *fakeMux) SendText(ctx context.Context, target, text string) error {
	m.sent = append(m.sent, target+" text:"+text)
	return nil
}

func (m *fakeMux) SendKey(ctx context.Context, target, key string) error {
	m.sent = append(m.sent, target+" key:"+key)
	return nil
}

func newTestReconciler(m *fakeMux, root string) *Reconciler {
	return &Reconciler{
		Mux:       m,
		Root:      root,
		Snapshots: snapshot.NewWriter(m, 100),
		Queues:    queue.NewProcessor(m),
		Changes:   NewChangeTracker(),
	}
}

func reconcileOK(t *testing.T, r *Reconciler) *CycleStats {
	t.Helper()
	stats, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	return stats
}

func mustNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be gone, stat err = %v", path, err)
	}
}

func TestReconcileBuildsTree(t *testing.T) {
	m := &fakeMux{
		sessions: []model.Session{{
			Name: "work",
			Windows: []model.Window{
				{ID: "@1", Index: 0, Name: "bash"},
				{ID: "@2", Index: 1, Name: "vim"},
			},
		}},
		panes: map[string][]model.Pane{
			"@1": {{ID: "%1", Index: 0, Title: "host"}, {ID: "%2", Index: 1, Title: "logs"}},
			"@2": {{ID: "%3", Index: 0, Title: "main.go"}},
		},
		captures: map[string]string{
			"%1": "$ echo hi\nhi\n",
			"%2": "tail -f app.log\n",
			"%3": "package main\n",
		},
	}
	root := t.TempDir()
	r := newTestReconciler(m, root)

	stats := reconcileOK(t, r)

	if stats.Sessions != 1 || stats.Windows != 2 || stats.Panes != 3 {
		t.Fatalf("stats = %+v, want 1 session, 2 windows, 3 panes", stats)
	}
	if stats.SnapshotsChanged != 3 {
		t.Errorf("SnapshotsChanged = %d, want 3 on first sight", stats.SnapshotsChanged)
	}
	if stats.Errors != 0 || stats.Removed != 0 {
		t.Errorf("stats = %+v, want no errors or removals", stats)
	}
	if len(stats.PaneDirs) != 3 {
		t.Errorf("PaneDirs = %v, want 3 entries", stats.PaneDirs)
	}

	content, err := os.ReadFile(filepath.Join(root, "work", "0-bash", "0", snapshot.ContentFileName))
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	want := "Session: work\nWindow: 0 (bash)\nPane: 0\nTitle: host\n---\n$ echo hi\nhi\n"
	if string(content) != want {
		t.Errorf("snapshot = %q, want %q", content, want)
	}

	qdata, err := os.ReadFile(filepath.Join(root, "work", "0-bash", "0", snapshot.QueueFileName))
	if err != nil {
		t.Fatalf("reading queue file: %v", err)
	}
	if len(qdata) != 0 {
		t.Errorf("fresh queue file = %q, want empty", qdata)
	}

	if !registry.Exists(filepath.Join(root, "work")) {
		t.Error("expected windows.json after the first cycle")
	}
	if _, err := os.Stat(filepath.Join(root, "work", "1-vim", "0", snapshot.ContentFileName)); err != nil {
		t.Errorf("second window snapshot: %v", err)
	}
}

func TestReconcileSecondCycleUnchanged(t *testing.T) {
	m := &fakeMux{
		sessions: []model.Session{{
			Name:    "work",
			Windows: []model.Window{{ID: "@1", Index: 0, Name: "bash"}},
		}},
		panes:    map[string][]model.Pane{"@1": {{ID: "%1", Index: 0}}},
		captures: map[string]string{"%1": "quiet\n"},
	}
	r := newTestReconciler(m, t.TempDir())

	reconcileOK(t, r)
	stats := reconcileOK(t, r)

	if stats.SnapshotsChanged != 0 {
		t.Errorf("SnapshotsChanged = %d, want 0 for identical content", stats.SnapshotsChanged)
	}
	if stats.Panes != 1 {
		t.Errorf("Panes = %d, want 1", stats.Panes)
	}
}

func TestReconcileRenameKeepsQueue(t *testing.T) {
	m := &fakeMux{
		sessions: []model.Session{{
			Name:    "work",
			Windows: []model.Window{{ID: "@1", Index: 0, Name: "bash"}},
		}},
		panes:    map[string][]model.Pane{"@1": {{ID: "%1", Index: 0}}},
		captures: map[string]string{"%1": "hello\n"},
	}
	root := t.TempDir()
	r := newTestReconciler(m, root)
	reconcileOK(t, r)

	// A fragment without a newline survives every drain.
	queuePath := filepath.Join(root, "work", "0-bash", "0", snapshot.QueueFileName)
	if err := os.WriteFile(queuePath, []byte("half-typed"), 0o644); err != nil {
		t.Fatal(err)
	}

	m.sessions[0].Windows[0].Name = "build"
	stats := reconcileOK(t, r)

	if stats.Renamed != 1 {
		t.Fatalf("Renamed = %d, want 1", stats.Renamed)
	}
	mustNotExist(t, filepath.Join(root, "work", "0-bash"))
	data, err := os.ReadFile(filepath.Join(root, "work", "0-build", "0", snapshot.QueueFileName))
	if err != nil {
		t.Fatalf("queue after rename: %v", err)
	}
	if string(data) != "half-typed" {
		t.Errorf("queue content = %q, want %q", data, "half-typed")
	}
}

func TestReconcileDrainsQueue(t *testing.T) {
	m := &fakeMux{
		sessions: []model.Session{{
			Name:    "work",
			Windows: []model.Window{{ID: "@1", Index: 0, Name: "bash"}},
		}},
		panes:    map[string][]model.Pane{"@1": {{ID: "%1", Index: 0}}},
		captures: map[string]string{"%1": "$ \n"},
	}
	root := t.TempDir()
	r := newTestReconciler(m, root)
	reconcileOK(t, r)

	paneDir := filepath.Join(root, "work", "0-bash", "0")
	if err := queue.Append(paneDir, "echo hi"); err != nil {
		t.Fatal(err)
	}

	stats := reconcileOK(t, r)

	if stats.QueueLines != 1 {
		t.Fatalf("QueueLines = %d, want 1", stats.QueueLines)
	}
	want := []string{"%1 text:echo hi", "%1 key:Enter"}
	if len(m.sent) != len(want) || m.sent[0] != want[0] || m.sent[1] != want[1] {
		t.Errorf("sent = %v, want %v", m.sent, want)
	}
	data, err := os.ReadFile(filepath.Join(paneDir, snapshot.QueueFileName))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("queue after drain = %q, want empty", data)
	}
}

func TestReconcileRemovesDeadPanes(t *testing.T) {
	m := &fakeMux{
		sessions: []model.Session{{
			Name:    "work",
			Windows: []model.Window{{ID: "@1", Index: 0, Name: "bash"}},
		}},
		panes: map[string][]model.Pane{
			"@1": {{ID: "%1", Index: 0}, {ID: "%2", Index: 1}},
		},
		captures: map[string]string{"%1": "a\n", "%2": "b\n"},
	}
	root := t.TempDir()
	r := newTestReconciler(m, root)
	reconcileOK(t, r)

	// Unconsumed input does not protect a dead pane's directory.
	if err := queue.Append(filepath.Join(root, "work", "0-bash", "1"), "never sent"); err != nil {
		t.Fatal(err)
	}

	m.panes["@1"] = m.panes["@1"][:1]
	stats := reconcileOK(t, r)

	if stats.Removed != 1 {
		t.Fatalf("Removed = %d, want 1", stats.Removed)
	}
	mustNotExist(t, filepath.Join(root, "work", "0-bash", "1"))
	if _, err := os.Stat(filepath.Join(root, "work", "0-bash", "0", snapshot.ContentFileName)); err != nil {
		t.Errorf("surviving pane: %v", err)
	}
	for _, s := range m.sent {
		if strings.Contains(s, "never sent") {
			t.Errorf("dead pane's queue was dispatched: %v", m.sent)
		}
	}
}

func TestReconcileRemovesDeadSessions(t *testing.T) {
	m := &fakeMux{
		sessions: []model.Session{
			{Name: "work", Windows: []model.Window{{ID: "@1", Index: 0, Name: "bash"}}},
			{Name: "scratch", Windows: []model.Window{{ID: "@9", Index: 0, Name: "sh"}}},
		},
		panes: map[string][]model.Pane{
			"@1": {{ID: "%1", Index: 0}},
			"@9": {{ID: "%9", Index: 0}},
		},
		captures: map[string]string{"%1": "a\n", "%9": "b\n"},
	}
	root := t.TempDir()
	r := newTestReconciler(m, root)
	reconcileOK(t, r)

	// Plain files at the root (the instance lock) are never cleaned up.
	lockPath := filepath.Join(root, ".lock")
	if err := os.WriteFile(lockPath, []byte("123\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	m.sessions = m.sessions[:1]
	stats := reconcileOK(t, r)

	if stats.Removed != 1 {
		t.Fatalf("Removed = %d, want 1", stats.Removed)
	}
	mustNotExist(t, filepath.Join(root, "scratch"))
	if _, err := os.Stat(filepath.Join(root, "work")); err != nil {
		t.Errorf("surviving session: %v", err)
	}
	if _, err := os.Stat(lockPath); err != nil {
		t.Errorf("lock file: %v", err)
	}
}

func TestReconcileWindowErrorDefersCleanup(t *testing.T) {
	m := &fakeMux{
		sessions: []model.Session{{
			Name:    "work",
			Windows: []model.Window{{ID: "@1", Index: 0, Name: "bash"}},
		}},
		panes: map[string][]model.Pane{
			"@1": {{ID: "%1", Index: 0}, {ID: "%2", Index: 1}},
		},
		captures:      map[string]string{"%1": "a\n", "%2": "b\n"},
		failListPanes: map[string]bool{},
	}
	root := t.TempDir()
	r := newTestReconciler(m, root)
	reconcileOK(t, r)

	// A failed pane listing must not be read as "all panes gone".
	m.panes["@1"] = m.panes["@1"][:1]
	m.failListPanes["@1"] = true
	stats := reconcileOK(t, r)

	if stats.Errors != 1 {
		t.Fatalf("Errors = %d, want 1", stats.Errors)
	}
	if _, err := os.Stat(filepath.Join(root, "work", "0-bash", "1")); err != nil {
		t.Fatalf("pane dir removed on listing error: %v", err)
	}

	m.failListPanes["@1"] = false
	stats = reconcileOK(t, r)
	if stats.Removed != 1 {
		t.Fatalf("Removed = %d after recovery, want 1", stats.Removed)
	}
	mustNotExist(t, filepath.Join(root, "work", "0-bash", "1"))
}

func TestReconcileCaptureErrorSkipsPane(t *testing.T) {
	m := &fakeMux{
		sessions: []model.Session{{
			Name:    "work",
			Windows: []model.Window{{ID: "@1", Index: 0, Name: "bash"}},
		}},
		panes: map[string][]model.Pane{
			"@1": {{ID: "%1", Index: 0}, {ID: "%2", Index: 1}},
		},
		captures:    map[string]string{"%1": "a\n", "%2": "b\n"},
		failCapture: map[string]bool{},
	}
	root := t.TempDir()
	r := newTestReconciler(m, root)
	reconcileOK(t, r)

	if err := queue.Append(filepath.Join(root, "work", "0-bash", "0"), "queued"); err != nil {
		t.Fatal(err)
	}
	m.failCapture["%1"] = true
	stats := reconcileOK(t, r)

	if stats.Errors != 1 {
		t.Fatalf("Errors = %d, want 1", stats.Errors)
	}
	// The skipped pane's queue stays untouched for the next cycle.
	data, err := os.ReadFile(filepath.Join(root, "work", "0-bash", "0", snapshot.QueueFileName))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "queued\n" {
		t.Errorf("queue = %q, want untouched %q", data, "queued\n")
	}
	if len(m.sent) != 0 {
		t.Errorf("sent = %v, want none while capture fails", m.sent)
	}

	m.failCapture["%1"] = false
	stats = reconcileOK(t, r)
	if stats.QueueLines != 1 {
		t.Fatalf("QueueLines = %d after recovery, want 1", stats.QueueLines)
	}
}

func TestReconcileExcludedSessionLeftAlone(t *testing.T) {
	m := &fakeMux{
		sessions: []model.Session{
			{Name: "work", Windows: []model.Window{{ID: "@1", Index: 0, Name: "bash"}}},
			{Name: "scratch-7", Windows: []model.Window{{ID: "@9", Index: 0, Name: "sh"}}},
		},
		panes: map[string][]model.Pane{
			"@1": {{ID: "%1", Index: 0}},
			"@9": {{ID: "%9", Index: 0}},
		},
		captures: map[string]string{"%1": "a\n", "%9": "b\n"},
	}
	root := t.TempDir()
	r := newTestReconciler(m, root)
	r.ExcludeSessions = []string{"scratch-*"}

	// Leftovers from before the exclusion was configured.
	stale := filepath.Join(root, "scratch-7", "0-sh")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatal(err)
	}

	stats := reconcileOK(t, r)

	if stats.Sessions != 1 {
		t.Fatalf("Sessions = %d, want 1", stats.Sessions)
	}
	// Not written to, but not cleaned up either: the session is live.
	if _, err := os.Stat(stale); err != nil {
		t.Errorf("excluded session dir: %v", err)
	}
	mustNotExist(t, filepath.Join(root, "scratch-7", "0-sh", "0"))
}

func TestReconcileDiscoveryError(t *testing.T) {
	m := &fakeMux{discoverErr: fmt.Errorf("server not running")}
	r := newTestReconciler(m, t.TempDir())

	if _, err := r.Reconcile(context.Background()); err == nil {
		t.Fatal("expected an error when discovery fails")
	}
}

func TestReconcileSanitizesSessionNames(t *testing.T) {
	m := &fakeMux{
		sessions: []model.Session{{
			Name:    "my work: apps/web",
			Windows: []model.Window{{ID: "@1", Index: 0, Name: "run dev"}},
		}},
		panes:    map[string][]model.Pane{"@1": {{ID: "%1", Index: 0}}},
		captures: map[string]string{"%1": "ok\n"},
	}
	root := t.TempDir()
	r := newTestReconciler(m, root)
	reconcileOK(t, r)

	snap := filepath.Join(root, "my_work__apps_web", "0-run_dev", "0", snapshot.ContentFileName)
	data, err := os.ReadFile(snap)
	if err != nil {
		t.Fatalf("sanitized path: %v", err)
	}
	// The header keeps the original names; only paths are sanitized.
	h, _, ok := snapshot.ParseHeader(string(data))
	if !ok {
		t.Fatal("snapshot header did not parse")
	}
	if h.Session != "my work: apps/web" || h.WindowName != "run dev" {
		t.Errorf("header = %+v, want original names", h)
	}
}
