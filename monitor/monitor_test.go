package monitor

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftwatch/gitops"
	"driftwatch/storage"
)

// fakeGit lets tests move HEAD and the branch between polls
type fakeGit struct {
	mu     sync.Mutex
	head   string
	branch string
}

func (f *fakeGit) set(head, branch string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head, f.branch = head, branch
}

func (f *fakeGit) StageAll(ctx context.Context, path string) error { return nil }

func (f *fakeGit) Commit(ctx context.Context, path, message string) (bool, error) {
	return false, nil
}

func (f *fakeGit) HeadHash(ctx context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeGit) CurrentBranch(ctx context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.branch, nil
}

func (f *fakeGit) Log(ctx context.Context, path, prefix string) ([]gitops.CommitEntry, error) {
	return nil, nil
}

type monitorFixture struct {
	monitor *Monitor
	store   *storage.Store
	repoID  uint
	git     *fakeGit
}

func newFixture(t *testing.T, head, branch string) *monitorFixture {
	t.Helper()

	store, err := storage.NewStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	repo, err := store.GetOrCreateRepo(context.Background(), "/repo/a")
	require.NoError(t, err)

	git := &fakeGit{head: head, branch: branch}
	mon := New("/repo/a", repo.ID, store, git, time.Second, &sync.Mutex{})
	require.NoError(t, mon.Init(context.Background()))

	return &monitorFixture{monitor: mon, store: store, repoID: repo.ID, git: git}
}

func (f *monitorFixture) grow(t *testing.T, delta int64) {
	t.Helper()
	require.NoError(t, f.store.ApplyFileDelta(context.Background(), f.repoID, "a.go", delta, delta))
}

func (f *monitorFixture) delta(t *testing.T) int64 {
	t.Helper()
	delta, err := f.store.CumulativeDelta(context.Background(), f.repoID)
	require.NoError(t, err)
	return delta
}

func TestInitSeedsHeadState(t *testing.T) {
	fix := newFixture(t, "abc123", "main")

	repo, err := fix.store.GetRepoByPath(context.Background(), "/repo/a")
	require.NoError(t, err)
	assert.Equal(t, "abc123", repo.LastCommitHash)
	assert.Equal(t, "main", repo.LastBranch)
}

func TestInitAcceptsUnbornRepository(t *testing.T) {
	// No commits yet: HEAD is an explicit empty string, not an error
	fix := newFixture(t, "", "main")

	require.NoError(t, fix.monitor.Poll(context.Background()))
	assert.Zero(t, fix.delta(t))
}

func TestNoChangeIsNoop(t *testing.T) {
	fix := newFixture(t, "abc123", "main")
	fix.grow(t, 12)

	require.NoError(t, fix.monitor.Poll(context.Background()))

	assert.Equal(t, int64(12), fix.delta(t), "counter untouched when nothing moved")
}

func TestManualCommitResetsExactlyOnce(t *testing.T) {
	fix := newFixture(t, "abc123", "main")
	fix.grow(t, 12)

	// Someone committed by hand: HEAD moved, branch did not
	fix.git.set("def456", "main")
	require.NoError(t, fix.monitor.Poll(context.Background()))
	assert.Zero(t, fix.delta(t))

	// Subsequent no-change polls must not reset again
	fix.grow(t, 5)
	require.NoError(t, fix.monitor.Poll(context.Background()))
	require.NoError(t, fix.monitor.Poll(context.Background()))
	assert.Equal(t, int64(5), fix.delta(t))
}

func TestBranchSwitchResetsEvenOnSameHash(t *testing.T) {
	// A fast-forward checkout can land on the identical commit; branch
	// identity is the primary signal, not the hash.
	fix := newFixture(t, "abc123", "main")
	fix.grow(t, 8)

	fix.git.set("abc123", "feature")
	require.NoError(t, fix.monitor.Poll(context.Background()))

	assert.Zero(t, fix.delta(t))

	repo, err := fix.store.GetRepoByPath(context.Background(), "/repo/a")
	require.NoError(t, err)
	assert.Equal(t, "feature", repo.LastBranch)
}

func TestFirstCommitInUnbornRepoResets(t *testing.T) {
	fix := newFixture(t, "", "main")
	fix.grow(t, 4)

	fix.git.set("abc123", "main")
	require.NoError(t, fix.monitor.Poll(context.Background()))

	assert.Zero(t, fix.delta(t))
}

func TestRunStopsOnCancel(t *testing.T) {
	fix := newFixture(t, "abc123", "main")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fix.monitor.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop on cancellation")
	}
}
