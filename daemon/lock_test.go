package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")

	lock, err := AcquireLock(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data, "lock file records the holder pid")

	require.NoError(t, lock.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "lock file removed on release")
}

func TestAcquireLockFailsWhenHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")

	first, err := AcquireLock(path)
	require.NoError(t, err)
	defer first.Release()

	_, err = AcquireLock(path)
	assert.ErrorContains(t, err, "already running")
}

func TestLockCanBeReacquiredAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")

	first, err := AcquireLock(path)
	require.NoError(t, err)
	require.NoError(t, first.Release())

	second, err := AcquireLock(path)
	require.NoError(t, err)
	assert.NoError(t, second.Release())
}

func TestReleaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")

	lock, err := AcquireLock(path)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	assert.NoError(t, lock.Release())
}
