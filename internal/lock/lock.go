// Package lock provides the advisory lock that serializes mutating zman
// operations across processes.
package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultName is the lock file name inside the lock directory.
const DefaultName = "zman.lock"

// ErrHeld is returned when another process holds the lock.
var ErrHeld = errors.New("lock held by another process")

// Lock is a flock(2) on a file holding the owner's PID. It is non-blocking:
// Acquire fails immediately if someone else has it. Holds nest within one
// Lock, so only the outermost Release unlocks.
type Lock struct {
	path     string
	f        *os.File
	writable bool
	depth    int

	open func(name string, flag int, perm os.FileMode) (*os.File, error)
}

// New returns an unacquired lock at dir/DefaultName.
func New(dir string) *Lock {
	return &Lock{path: filepath.Join(dir, DefaultName), open: os.OpenFile}
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Acquire takes the lock. Calling it while already held adds a nested hold.
func (l *Lock) Acquire() error {
	if l.f != nil {
		l.depth++
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, writable, err := l.openFile()
	if err != nil {
		return fmt.Errorf("failed to open lock file %s: %w", l.path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			if pid := l.HolderPID(); pid > 0 {
				return fmt.Errorf("another zman operation is running (PID %d): %w", pid, ErrHeld)
			}
			return fmt.Errorf("another zman operation is running (%s): %w", l.path, ErrHeld)
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	if writable {
		if err := f.Truncate(0); err == nil {
			f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
		}
	}
	l.f = f
	l.writable = writable
	l.depth = 1
	return nil
}

// openFile opens the lock file for writing, falling back to read-only when
// another user (usually root) owns it. flock works on either.
func (l *Lock) openFile() (*os.File, bool, error) {
	open := l.open
	if open == nil {
		open = os.OpenFile
	}
	f, err := open(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err == nil {
		return f, true, nil
	}
	if !errors.Is(err, fs.ErrPermission) {
		return nil, false, err
	}
	f, rerr := open(l.path, os.O_RDONLY, 0)
	if rerr != nil {
		return nil, false, err
	}
	return f, false, nil
}

// Release drops one hold and unlocks when the last one goes. The file itself
// is left in place; removing it would let a waiter lock an unlinked inode.
func (l *Lock) Release() error {
	if l.f == nil {
		return nil
	}
	if l.depth > 1 {
		l.depth--
		return nil
	}
	f := l.f
	l.f = nil
	l.depth = 0
	if l.writable {
		f.Truncate(0)
	}
	err := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// IsHeld reports whether this Lock currently holds the flock.
func (l *Lock) IsHeld() bool { return l.f != nil }

// HolderPID returns the PID recorded in the lock file, or 0.
func (l *Lock) HolderPID() int {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
