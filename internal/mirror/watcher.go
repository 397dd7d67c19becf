package mirror

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/timvw/pane-mirror/internal/logging"
	"github.com/timvw/pane-mirror/internal/snapshot"
)

var watchLog = logging.ForComponent(logging.CompWatch)

// Watcher wakes the daemon ahead of its next timed cycle when queue
// bytes land on disk, so queued input is applied promptly instead of
// waiting out the poll interval. Only writes to queue files count;
// snapshot rewrites and registry saves are ignored.
//
// Wakeups are advisory. A lost or spurious signal costs at most one
// poll interval of latency or one idle cycle; the timed loop stays the
// source of truth.
type Watcher struct {
	debounce time.Duration
	fsw      *fsnotify.Watcher

	// C receives one coalesced signal after queue activity settles.
	C chan struct{}

	mu   sync.Mutex
	dirs map[string]bool
}

// NewWatcher starts a watcher that signals C debounce after the first
// queue write of a burst.
func NewWatcher(debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		debounce: debounce,
		fsw:      fsw,
		C:        make(chan struct{}, 1),
		dirs:     make(map[string]bool),
	}
	go w.loop()
	return w, nil
}

// Track replaces the watched set with the pane directories from the
// latest cycle. Directories are watched rather than files because queue
// rewrites replace the file by rename, which would drop a file-level
// watch.
func (w *Watcher) Track(paneDirs []string) {
	next := make(map[string]bool, len(paneDirs))
	for _, d := range paneDirs {
		next[d] = true
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for d := range w.dirs {
		if !next[d] {
			_ = w.fsw.Remove(d)
		}
	}
	for d := range next {
		if !w.dirs[d] {
			if err := w.fsw.Add(d); err != nil {
				watchLog.Debug("watching pane directory", "dir", d, "error", err)
				delete(next, d)
			}
		}
	}
	w.dirs = next
}

// Close stops the watcher. C is not closed; a receiver blocked on it
// should also select on its own done channel.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	var settle <-chan time.Time
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != snapshot.QueueFileName {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			if settle == nil {
				settle = time.After(w.debounce)
			}
		case <-settle:
			settle = nil
			select {
			case w.C <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			watchLog.Debug("watcher error", "error", err)
		}
	}
}
