package realmstore

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// recordLock is an flock-based exclusive lock on a realm or profile record
// file, guarding the on-disk YAML against a concurrent writer from another
// process while FileStore.mu guards against concurrent writers within this
// one.
type recordLock struct {
	file     *os.File
	path     string
	isLocked bool
}

// newRecordLock opens (creating if needed) the .lock sidecar for path.
func newRecordLock(path string) (*recordLock, error) {
	lockPath := path + ".lock"

	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("realmstore: create lock directory: %w", err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("realmstore: create lock file: %w", err)
	}

	return &recordLock{file: file, path: lockPath}, nil
}

// lock acquires the exclusive lock, blocking until it is available.
func (l *recordLock) lock() error {
	if l.isLocked {
		return fmt.Errorf("realmstore: lock already held for %s", l.path)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("realmstore: acquire lock %s: %w", l.path, err)
	}
	l.isLocked = true
	return nil
}

// close releases the lock, if held, and closes the sidecar file.
func (l *recordLock) close() error {
	if l.isLocked {
		if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
			return fmt.Errorf("realmstore: release lock %s: %w", l.path, err)
		}
		l.isLocked = false
	}
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return fmt.Errorf("realmstore: close lock file %s: %w", l.path, err)
		}
		l.file = nil
	}
	return nil
}
