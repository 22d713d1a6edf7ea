package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetOrCreateRepoIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.GetOrCreateRepo(ctx, "/repo/a")
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Equal(t, "/repo/a", first.Path)

	second, err := store.GetOrCreateRepo(ctx, "/repo/a")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestGetRepoByPathNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRepoByPath(context.Background(), "/nowhere")
	assert.ErrorIs(t, err, ErrRepoNotFound)
}

func TestApplyFileDeltaFoldsIntoCounter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	repo, err := store.GetOrCreateRepo(ctx, "/repo/a")
	require.NoError(t, err)

	require.NoError(t, store.ApplyFileDelta(ctx, repo.ID, "pkg/a.go", 15, 15))

	delta, err := store.CumulativeDelta(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15), delta)

	complexity, found, err := store.GetFileComplexity(ctx, repo.ID, "pkg/a.go")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(15), complexity)

	// Recompute at 10: signed delta of -5 updates both sides
	require.NoError(t, store.ApplyFileDelta(ctx, repo.ID, "pkg/a.go", 10, -5))

	delta, err = store.CumulativeDelta(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), delta)

	complexity, found, err = store.GetFileComplexity(ctx, repo.ID, "pkg/a.go")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(10), complexity)
}

func TestGetFileComplexityAbsent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	repo, err := store.GetOrCreateRepo(ctx, "/repo/a")
	require.NoError(t, err)

	complexity, found, err := store.GetFileComplexity(ctx, repo.ID, "unknown.go")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, complexity)
}

func TestRemoveFileSubtractsRecordedValue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	repo, err := store.GetOrCreateRepo(ctx, "/repo/a")
	require.NoError(t, err)

	require.NoError(t, store.ApplyFileDelta(ctx, repo.ID, "pkg/a.go", 7, 7))

	prior, err := store.RemoveFile(ctx, repo.ID, "pkg/a.go")
	require.NoError(t, err)
	assert.Equal(t, int64(7), prior)

	delta, err := store.CumulativeDelta(ctx, repo.ID)
	require.NoError(t, err)
	assert.Zero(t, delta, "deletion must roll the recorded value back out")

	_, found, err := store.GetFileComplexity(ctx, repo.ID, "pkg/a.go")
	require.NoError(t, err)
	assert.False(t, found, "record must not be left dangling")
}

func TestRemoveFileWithoutRecordIsNoop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	repo, err := store.GetOrCreateRepo(ctx, "/repo/a")
	require.NoError(t, err)

	prior, err := store.RemoveFile(ctx, repo.ID, "never-seen.go")
	require.NoError(t, err)
	assert.Zero(t, prior)

	delta, err := store.CumulativeDelta(ctx, repo.ID)
	require.NoError(t, err)
	assert.Zero(t, delta)
}

func TestResetDelta(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	repo, err := store.GetOrCreateRepo(ctx, "/repo/a")
	require.NoError(t, err)
	require.NoError(t, store.ApplyFileDelta(ctx, repo.ID, "a.go", 30, 30))

	require.NoError(t, store.ResetDelta(ctx, repo.ID))

	delta, err := store.CumulativeDelta(ctx, repo.ID)
	require.NoError(t, err)
	assert.Zero(t, delta)

	// File records survive a counter reset
	complexity, found, err := store.GetFileComplexity(ctx, repo.ID, "a.go")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(30), complexity)
}

func TestSetHeadState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	repo, err := store.GetOrCreateRepo(ctx, "/repo/a")
	require.NoError(t, err)

	require.NoError(t, store.SetHeadState(ctx, repo.ID, "abc123", "main"))

	loaded, err := store.GetRepoByPath(ctx, "/repo/a")
	require.NoError(t, err)
	assert.Equal(t, "abc123", loaded.LastCommitHash)
	assert.Equal(t, "main", loaded.LastBranch)
}

func TestReposAreIndependent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, err := store.GetOrCreateRepo(ctx, "/repo/a")
	require.NoError(t, err)
	b, err := store.GetOrCreateRepo(ctx, "/repo/b")
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)

	require.NoError(t, store.ApplyFileDelta(ctx, a.ID, "main.go", 12, 12))
	require.NoError(t, store.ApplyFileDelta(ctx, b.ID, "main.go", 3, 3))

	deltaA, err := store.CumulativeDelta(ctx, a.ID)
	require.NoError(t, err)
	deltaB, err := store.CumulativeDelta(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), deltaA)
	assert.Equal(t, int64(3), deltaB)

	count, err := store.FileCount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStateSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store, err := NewStore(dbPath)
	require.NoError(t, err)
	repo, err := store.GetOrCreateRepo(ctx, "/repo/a")
	require.NoError(t, err)
	require.NoError(t, store.ApplyFileDelta(ctx, repo.ID, "a.go", 9, 9))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.GetRepoByPath(ctx, "/repo/a")
	require.NoError(t, err)
	assert.Equal(t, int64(9), loaded.CumulativeDelta)
}
