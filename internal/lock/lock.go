// Package lock provides the single-instance advisory lock for the
// mirror daemon. Two daemons writing one tree would fight over renames
// and queue rewrites, so the root carries a flock'd PID file.
package lock

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// FileName is the lock file's name within the mirror root.
const FileName = ".lock"

// Lock is a held advisory lock. The flock is dropped when the process
// exits, so a crash never leaves the root locked.
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes an exclusive non-blocking flock on path and records the
// caller's PID in it. If another process holds the lock, the error
// names the holder when its PID is readable.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		data, _ := os.ReadFile(path)
		f.Close()
		if pid := strings.TrimSpace(string(data)); pid != "" {
			return nil, fmt.Errorf("another instance is running (pid %s)", pid)
		}
		return nil, fmt.Errorf("another instance is running: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncating lock file %s: %w", path, err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing pid to lock file %s: %w", path, err)
	}
	return &Lock{f: f, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock. The PID file is left in place; a later
// Acquire reuses it.
func (l *Lock) Release() error {
	return l.f.Close()
}

// HolderPID returns the PID recorded in a lock file, or 0 if the file
// is missing or holds no PID. It does not check whether the lock is
// actually held.
func HolderPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
