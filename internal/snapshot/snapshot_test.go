package snapshot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHeaderString(t *testing.T) {
	h := Header{
		Session:     "work",
		WindowIndex: 1,
		WindowName:  "bash",
		PaneIndex:   0,
		Title:       "host",
	}
	want := "Session: work\nWindow: 1 (bash)\nPane: 0\nTitle: host\n---\n"
	if got := h.String(); got != want {
		t.Errorf("Header.String() = %q, want %q", got, want)
	}
}

func TestHeaderStringEmptyTitle(t *testing.T) {
	h := Header{Session: "s", WindowIndex: 0, WindowName: "w", PaneIndex: 2}
	want := "Session: s\nWindow: 0 (w)\nPane: 2\nTitle: \n---\n"
	if got := h.String(); got != want {
		t.Errorf("Header.String() = %q, want %q", got, want)
	}
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantOK   bool
		wantH    Header
		wantText string
	}{
		{
			name:     "round trip",
			content:  Header{Session: "work", WindowIndex: 1, WindowName: "bash", PaneIndex: 0, Title: "host"}.String() + "line one\nline two\n",
			wantOK:   true,
			wantH:    Header{Session: "work", WindowIndex: 1, WindowName: "bash", PaneIndex: 0, Title: "host"},
			wantText: "line one\nline two\n",
		},
		{
			name:     "empty capture",
			content:  Header{Session: "s", WindowIndex: 0, WindowName: "w", PaneIndex: 0}.String(),
			wantOK:   true,
			wantH:    Header{Session: "s", WindowIndex: 0, WindowName: "w", PaneIndex: 0},
			wantText: "",
		},
		{
			name:     "window name with parens",
			content:  "Session: s\nWindow: 2 (my (odd) name)\nPane: 1\nTitle: t\n---\nbody",
			wantOK:   true,
			wantH:    Header{Session: "s", WindowIndex: 2, WindowName: "my (odd) name", PaneIndex: 1, Title: "t"},
			wantText: "body",
		},
		{
			name:    "missing separator",
			content: "Session: s\nWindow: 1 (w)\nPane: 0\nTitle: \nbody\n",
			wantOK:  false,
		},
		{
			name:    "not a snapshot",
			content: "random file contents\n",
			wantOK:  false,
		},
		{
			name:    "empty",
			content: "",
			wantOK:  false,
		},
		{
			name:    "bad window index",
			content: "Session: s\nWindow: x (w)\nPane: 0\nTitle: \n---\n",
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, text, ok := ParseHeader(tt.content)
			if ok != tt.wantOK {
				t.Fatalf("ParseHeader() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if h != tt.wantH {
				t.Errorf("header = %+v, want %+v", h, tt.wantH)
			}
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
		})
	}
}

func TestWriteSnapshotAndQueue(t *testing.T) {
	dir := t.TempDir()
	paneDir := filepath.Join(dir, "work", "1-bash", "0")
	w := NewWriter(nil, 500)
	h := Header{Session: "work", WindowIndex: 1, WindowName: "bash", PaneIndex: 0, Title: "host"}

	if err := w.Write(paneDir, h, "$ echo hi\nhi\n"); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(paneDir, ContentFileName))
	if err != nil {
		t.Fatalf("content file not written: %v", err)
	}
	want := h.String() + "$ echo hi\nhi\n"
	if string(data) != want {
		t.Errorf("content = %q, want %q", data, want)
	}

	queue, err := os.ReadFile(filepath.Join(paneDir, QueueFileName))
	if err != nil {
		t.Fatalf("queue file not created: %v", err)
	}
	if len(queue) != 0 {
		t.Errorf("new queue file not empty: %q", queue)
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(paneDir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestWriteNeverTruncatesQueue(t *testing.T) {
	paneDir := filepath.Join(t.TempDir(), "0")
	if err := os.MkdirAll(paneDir, 0o755); err != nil {
		t.Fatal(err)
	}
	pending := "queued command\n/key C-c\npartial"
	if err := os.WriteFile(filepath.Join(paneDir, QueueFileName), []byte(pending), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewWriter(nil, 500)
	h := Header{Session: "s", WindowIndex: 0, WindowName: "w", PaneIndex: 0}
	for i := 0; i < 3; i++ {
		if err := w.Write(paneDir, h, "capture\n"); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}

	queue, err := os.ReadFile(filepath.Join(paneDir, QueueFileName))
	if err != nil {
		t.Fatal(err)
	}
	if string(queue) != pending {
		t.Errorf("queue file modified by writer: got %q, want %q", queue, pending)
	}
}

func TestWriteReplacesPreviousSnapshot(t *testing.T) {
	paneDir := filepath.Join(t.TempDir(), "0")
	w := NewWriter(nil, 500)
	h := Header{Session: "s", WindowIndex: 0, WindowName: "w", PaneIndex: 0}

	if err := w.Write(paneDir, h, "first capture, quite long\n"); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(paneDir, h, "second\n"); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(filepath.Join(paneDir, ContentFileName))
	if string(data) != h.String()+"second\n" {
		t.Errorf("snapshot not fully replaced: %q", data)
	}
}
