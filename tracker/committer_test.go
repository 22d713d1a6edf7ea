package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftwatch/gitops"
	"driftwatch/storage"
)

// fakeGit scripts the version-control boundary
type fakeGit struct {
	stageCalls  int
	commitCalls int
	created     bool
	stageErr    error
	commitErr   error
	head        string
	branch      string
	messages    []string
}

func (f *fakeGit) StageAll(ctx context.Context, path string) error {
	f.stageCalls++
	return f.stageErr
}

func (f *fakeGit) Commit(ctx context.Context, path, message string) (bool, error) {
	f.commitCalls++
	f.messages = append(f.messages, message)
	if f.commitErr != nil {
		return false, f.commitErr
	}
	return f.created, nil
}

func (f *fakeGit) HeadHash(ctx context.Context, path string) (string, error) {
	return f.head, nil
}

func (f *fakeGit) CurrentBranch(ctx context.Context, path string) (string, error) {
	return f.branch, nil
}

func (f *fakeGit) Log(ctx context.Context, path, prefix string) ([]gitops.CommitEntry, error) {
	return nil, nil
}

func newCommitterFixture(t *testing.T, git *fakeGit, threshold int64) (*AutoCommitter, *storage.Store, uint) {
	t.Helper()

	store, err := storage.NewStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	repo, err := store.GetOrCreateRepo(context.Background(), "/repo/a")
	require.NoError(t, err)

	committer := NewAutoCommitter("/repo/a", repo.ID, store, git, threshold,
		"checkpoint: complexity delta {delta}")
	return committer, store, repo.ID
}

func TestCheckAndCommitBelowThreshold(t *testing.T) {
	git := &fakeGit{created: true}
	committer, store, repoID := newCommitterFixture(t, git, 10)
	ctx := context.Background()

	require.NoError(t, store.ApplyFileDelta(ctx, repoID, "a.go", 9, 9))
	require.NoError(t, committer.CheckAndCommit(ctx))

	assert.Zero(t, git.commitCalls, "below threshold means no attempt")
	delta, err := store.CumulativeDelta(ctx, repoID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), delta)
}

func TestCheckAndCommitAtThreshold(t *testing.T) {
	git := &fakeGit{created: true, head: "abc123", branch: "main"}
	committer, store, repoID := newCommitterFixture(t, git, 10)
	ctx := context.Background()

	require.NoError(t, store.ApplyFileDelta(ctx, repoID, "a.go", 10, 10))
	require.NoError(t, committer.CheckAndCommit(ctx))

	assert.Equal(t, 1, git.stageCalls)
	assert.Equal(t, 1, git.commitCalls, "exactly one attempt")
	require.Len(t, git.messages, 1)
	assert.Equal(t, "checkpoint: complexity delta 10", git.messages[0])

	delta, err := store.CumulativeDelta(ctx, repoID)
	require.NoError(t, err)
	assert.Zero(t, delta, "counter resets after a successful checkpoint")

	repo, err := store.GetRepoByPath(ctx, "/repo/a")
	require.NoError(t, err)
	assert.Equal(t, "abc123", repo.LastCommitHash, "own checkpoint recorded as known head")
	assert.Equal(t, "main", repo.LastBranch)
}

func TestNothingToCommitPreservesCounter(t *testing.T) {
	// An external revert can leave nothing staged even though the counter
	// grew; the growth is not in history yet, so the counter must survive.
	git := &fakeGit{created: false}
	committer, store, repoID := newCommitterFixture(t, git, 10)
	ctx := context.Background()

	require.NoError(t, store.ApplyFileDelta(ctx, repoID, "a.go", 20, 20))
	require.NoError(t, committer.CheckAndCommit(ctx))

	assert.Equal(t, 1, git.commitCalls)
	delta, err := store.CumulativeDelta(ctx, repoID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), delta, "never falsely reset")
}

func TestCommitErrorPreservesCounter(t *testing.T) {
	git := &fakeGit{commitErr: errors.New("index.lock held")}
	committer, store, repoID := newCommitterFixture(t, git, 10)
	ctx := context.Background()

	require.NoError(t, store.ApplyFileDelta(ctx, repoID, "a.go", 15, 15))
	err := committer.CheckAndCommit(ctx)
	assert.Error(t, err)

	delta, derr := store.CumulativeDelta(ctx, repoID)
	require.NoError(t, derr)
	assert.Equal(t, int64(15), delta, "counter stays for retry on the next batch")
}

func TestStageErrorPreservesCounter(t *testing.T) {
	git := &fakeGit{stageErr: errors.New("permission denied")}
	committer, store, repoID := newCommitterFixture(t, git, 10)
	ctx := context.Background()

	require.NoError(t, store.ApplyFileDelta(ctx, repoID, "a.go", 15, 15))
	err := committer.CheckAndCommit(ctx)
	assert.Error(t, err)
	assert.Zero(t, git.commitCalls)

	delta, derr := store.CumulativeDelta(ctx, repoID)
	require.NoError(t, derr)
	assert.Equal(t, int64(15), delta)
}

func TestForceCommitIgnoresThreshold(t *testing.T) {
	git := &fakeGit{created: true, head: "def456", branch: "main"}
	committer, store, repoID := newCommitterFixture(t, git, 100)
	ctx := context.Background()

	require.NoError(t, store.ApplyFileDelta(ctx, repoID, "a.go", 3, 3))

	created, err := committer.ForceCommit(ctx)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Contains(t, git.messages[0], "3")

	delta, err := store.CumulativeDelta(ctx, repoID)
	require.NoError(t, err)
	assert.Zero(t, delta)
}

func TestForceCommitNothingStaged(t *testing.T) {
	git := &fakeGit{created: false}
	committer, store, repoID := newCommitterFixture(t, git, 100)
	ctx := context.Background()

	require.NoError(t, store.ApplyFileDelta(ctx, repoID, "a.go", 3, 3))

	created, err := committer.ForceCommit(ctx)
	require.NoError(t, err)
	assert.False(t, created)

	delta, err := store.CumulativeDelta(ctx, repoID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), delta)
}

func TestEndToEndThresholdFlow(t *testing.T) {
	// A new file scored at 15 against threshold 10: record stored,
	// delta accumulated, one commit whose message carries the value,
	// counter zeroed afterwards.
	git := &fakeGit{created: true, head: "feedface", branch: "main"}

	store, err := storage.NewStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	repo, err := store.GetOrCreateRepo(ctx, "/repo/e2e")
	require.NoError(t, err)

	committer := NewAutoCommitter("/repo/e2e", repo.ID, store, git, 10,
		"checkpoint: complexity delta {delta}")

	require.NoError(t, store.ApplyFileDelta(ctx, repo.ID, "new.go", 15, 15))

	recorded, found, err := store.GetFileComplexity(ctx, repo.ID, "new.go")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(15), recorded)

	require.NoError(t, committer.CheckAndCommit(ctx))

	require.Len(t, git.messages, 1)
	assert.Contains(t, git.messages[0], "15")

	delta, err := store.CumulativeDelta(ctx, repo.ID)
	require.NoError(t, err)
	assert.Zero(t, delta)
}

func TestRenderMessage(t *testing.T) {
	assert.Equal(t, "checkpoint: complexity delta 42",
		RenderMessage("checkpoint: complexity delta {delta}", 42))
	assert.Equal(t, "no placeholder", RenderMessage("no placeholder", 42))
	assert.Equal(t, "-5 drift", RenderMessage("{delta} drift", -5))
}

func TestMessagePrefix(t *testing.T) {
	assert.Equal(t, "checkpoint: complexity delta",
		MessagePrefix("checkpoint: complexity delta {delta}"))
	assert.Equal(t, "plain", MessagePrefix("plain"))
	assert.Equal(t, "", MessagePrefix("{delta} first"))
}
