//go:build unix

package daemon

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile acquires a non-blocking exclusive lock (Unix implementation)
func lockFile(file *os.File) error {
	return unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

// unlockFile releases the lock (Unix implementation)
func unlockFile(file *os.File) error {
	return unix.Flock(int(file.Fd()), unix.LOCK_UN)
}
