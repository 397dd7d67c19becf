package mirror

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/timvw/pane-mirror/internal/model"
	"github.com/timvw/pane-mirror/internal/registry"
	"github.com/timvw/pane-mirror/internal/snapshot"
)

func TestMigrateLegacyLayout(t *testing.T) {
	m := &fakeMux{
		sessions: []model.Session{{
			Name: "work",
			Windows: []model.Window{
				{ID: "@1", Index: 0, Name: "bash"},
				{ID: "@2", Index: 1, Name: "vim"},
			},
		}},
		panes: map[string][]model.Pane{
			"@1": {{ID: "%1", Index: 0}},
			"@2": {{ID: "%2", Index: 0}},
		},
		captures: map[string]string{"%1": "a\n", "%2": "b\n"},
	}
	root := t.TempDir()
	sessionDir := filepath.Join(root, "work")

	// Old layout: window directories named by bare index, one of them
	// with no live counterpart. A newline-less fragment marks the queue
	// so we can see it carried over rather than recreated.
	for _, dir := range []string{"0/0", "1/0", "5/0"} {
		if err := os.MkdirAll(filepath.Join(sessionDir, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	legacyQueue := filepath.Join(sessionDir, "0", "0", snapshot.QueueFileName)
	if err := os.WriteFile(legacyQueue, []byte("half-typed"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := newTestReconciler(m, root)
	reconcileOK(t, r)

	mustNotExist(t, filepath.Join(sessionDir, "0"))
	mustNotExist(t, filepath.Join(sessionDir, "1"))
	mustNotExist(t, filepath.Join(sessionDir, "5"))

	data, err := os.ReadFile(filepath.Join(sessionDir, "0-bash", "0", snapshot.QueueFileName))
	if err != nil {
		t.Fatalf("queue after migration: %v", err)
	}
	if string(data) != "half-typed" {
		t.Errorf("queue content = %q, want %q", data, "half-typed")
	}
	if _, err := os.Stat(filepath.Join(sessionDir, "1-vim")); err != nil {
		t.Errorf("second migrated window: %v", err)
	}
	if !registry.Exists(sessionDir) {
		t.Error("expected windows.json after migration cycle")
	}
}

func TestMigrateRunsOncePerSession(t *testing.T) {
	m := &fakeMux{
		sessions: []model.Session{{
			Name:    "work",
			Windows: []model.Window{{ID: "@1", Index: 0, Name: "bash"}},
		}},
		panes:    map[string][]model.Pane{"@1": {{ID: "%1", Index: 0}}},
		captures: map[string]string{"%1": "a\n"},
	}
	root := t.TempDir()
	r := newTestReconciler(m, root)
	reconcileOK(t, r)

	// With the registry file in place a numeric directory is no longer
	// legacy data and must not be matched or deleted.
	stray := filepath.Join(root, "work", "3")
	if err := os.MkdirAll(stray, 0o755); err != nil {
		t.Fatal(err)
	}
	reconcileOK(t, r)

	if _, err := os.Stat(stray); err != nil {
		t.Fatalf("stray numeric dir touched after migration completed: %v", err)
	}
}

func TestMigrateLegacyPrefersNamedDir(t *testing.T) {
	sessionDir := t.TempDir()
	live := []model.Window{{ID: "@1", Index: 0, Name: "bash"}}

	// Both layouts present for the same window: the named form wins.
	if err := os.MkdirAll(filepath.Join(sessionDir, "0"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(sessionDir, "0-bash"), 0o755); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(sessionDir, "0-bash", "keep.txt")
	if err := os.WriteFile(marker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := registry.New()
	n, err := migrateLegacy(sessionDir, live, reg)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if n != 1 {
		t.Fatalf("migrated = %d, want 1", n)
	}
	mustNotExist(t, filepath.Join(sessionDir, "0"))
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("named dir contents: %v", err)
	}
	if dir, ok := reg.Dir("@1"); !ok || dir != "0-bash" {
		t.Errorf("registry seeded with %q (%v), want 0-bash", dir, ok)
	}
}

func TestMigrateIgnoresNonNumericEntries(t *testing.T) {
	sessionDir := t.TempDir()
	for _, name := range []string{"0-bash", "notes", "windows.json.bak"} {
		if err := os.MkdirAll(filepath.Join(sessionDir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	reg := registry.New()
	n, err := migrateLegacy(sessionDir, []model.Window{{ID: "@1", Index: 0, Name: "bash"}}, reg)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if n != 0 {
		t.Fatalf("migrated = %d, want 0", n)
	}
	for _, name := range []string{"0-bash", "notes", "windows.json.bak"} {
		if _, err := os.Stat(filepath.Join(sessionDir, name)); err != nil {
			t.Errorf("%s was touched: %v", name, err)
		}
	}
}

func TestIsNumericName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"0", true},
		{"12", true},
		{"007", true},
		{"", false},
		{"-1", false},
		{"1a", false},
		{"0-bash", false},
	}
	for _, tt := range tests {
		if got := isNumericName(tt.name); got != tt.want {
			t.Errorf("isNumericName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
