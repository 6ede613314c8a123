// Package lockfile keeps two chatd servers from sharing one data directory.
//
// The lock is a file holding the owner's PID and acquisition time. A lock
// whose PID is gone is stale and gets taken over.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Name is the lock file created inside a data directory.
const Name = ".chatd.lock"

// ErrLocked means another live process holds the lock.
var ErrLocked = errors.New("data directory is in use")

// Lock is an exclusive lock on a data directory.
type Lock struct {
	path   string
	file   *os.File
	pid    int
	locked bool
}

// ForDir returns the lock guarding dir. Nothing is created until Acquire.
func ForDir(dir string) *Lock {
	return New(filepath.Join(dir, Name))
}

// New returns a lock at an explicit path.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Acquire takes the lock or returns an error wrapping ErrLocked.
func (l *Lock) Acquire() error {
	if l.locked {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	file, err := l.create()
	if os.IsExist(err) {
		owner, alive := l.owner()
		if alive {
			return fmt.Errorf("%w: held by PID %d (%s)", ErrLocked, owner, l.path)
		}
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale lock: %w", err)
		}
		file, err = l.create()
	}
	if err != nil {
		return fmt.Errorf("create lock: %w", err)
	}

	l.file = file
	l.pid = os.Getpid()
	l.locked = true

	content := fmt.Sprintf("%d\n%s\n", l.pid, time.Now().Format(time.RFC3339))
	if _, err := file.WriteString(content); err != nil {
		l.Release()
		return fmt.Errorf("write lock: %w", err)
	}
	if err := file.Sync(); err != nil {
		l.Release()
		return fmt.Errorf("sync lock: %w", err)
	}
	return nil
}

func (l *Lock) create() (*os.File, error) {
	return os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
}

// owner reports the PID recorded in the existing lock file and whether that
// process still runs. Unreadable or malformed files count as stale.
func (l *Lock) owner() (int, bool) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, false
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, isProcessRunning(pid)
}

// Release drops the lock and removes the file. Releasing an unheld lock is a
// no-op.
func (l *Lock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false

	var errs []error
	if l.file != nil {
		errs = append(errs, l.file.Close())
		l.file = nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("remove lock: %w", err))
	}
	return errors.Join(errs...)
}

// Locked reports whether this Lock is held.
func (l *Lock) Locked() bool { return l.locked }

// PID of the holder, set after a successful Acquire.
func (l *Lock) PID() int { return l.pid }

// Path of the lock file.
func (l *Lock) Path() string { return l.path }
