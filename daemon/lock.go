package daemon

import (
	"fmt"
	"os"
	"path/filepath"
)

// Lock is a cross-process exclusive lock guarding against two daemons
// watching the same fleet at once. The store itself stays safe for the
// status/reset/commit CLI paths via SQLite's WAL mode.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock takes the exclusive daemon lock, failing immediately if
// another process holds it.
func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := lockFile(file); err != nil {
		file.Close()
		return nil, fmt.Errorf("another daemon is already running (lock: %s): %w", path, err)
	}

	// Record the holder for debugging
	_ = file.Truncate(0)
	fmt.Fprintf(file, "%d\n", os.Getpid())

	return &Lock{path: path, file: file}, nil
}

// Release drops the lock and removes the lock file
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	if err := unlockFile(l.file); err != nil {
		l.file.Close()
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return err
	}
	l.file = nil
	return os.Remove(l.path)
}
