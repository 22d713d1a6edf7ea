// Package monitor polls git for out-of-band history changes. A manual
// commit or a branch switch means the accumulated complexity growth has
// been captured (or abandoned) elsewhere, so the counter resets.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"driftwatch/gitops"
	"driftwatch/logging"
	"driftwatch/storage"
)

// Monitor compares the persisted (hash, branch) pair against live git on a
// fixed interval. The persisted pair is the source of truth so that the
// daemon's own checkpoints (which update it) are never mistaken for manual
// commits.
type Monitor struct {
	repoPath string
	repoID   uint
	store    *storage.Store
	git      gitops.Ops
	interval time.Duration

	// repoMu is shared with the tracker so a reset never lands mid-batch
	repoMu *sync.Mutex
}

// New creates a monitor for one repository
func New(repoPath string, repoID uint, store *storage.Store, git gitops.Ops, interval time.Duration, repoMu *sync.Mutex) *Monitor {
	return &Monitor{
		repoPath: repoPath,
		repoID:   repoID,
		store:    store,
		git:      git,
		interval: interval,
		repoMu:   repoMu,
	}
}

// Init seeds the persisted head state from live git. An unborn repository
// reports an empty hash; that is a valid starting state, not an error.
func (m *Monitor) Init(ctx context.Context) error {
	hash, err := m.git.HeadHash(ctx, m.repoPath)
	if err != nil {
		return fmt.Errorf("failed to read HEAD: %w", err)
	}
	branch, err := m.git.CurrentBranch(ctx, m.repoPath)
	if err != nil {
		return fmt.Errorf("failed to read branch: %w", err)
	}
	if err := m.store.SetHeadState(ctx, m.repoID, hash, branch); err != nil {
		return fmt.Errorf("failed to seed head state: %w", err)
	}
	logging.Logger.Debug("git state seeded",
		"repo", m.repoPath, "head", hash, "branch", branch)
	return nil
}

// Run polls until ctx is cancelled. Poll failures are logged and retried on
// the next tick; they never stop the loop.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Poll(ctx); err != nil {
				logging.Logger.Warn("git state poll failed",
					"repo", m.repoPath, "error", err)
			}
		}
	}
}

// Poll runs one comparison cycle. Branch identity is checked before the
// hash: a checkout also moves HEAD, and two branches can point at the same
// commit, so the hash alone would miss a switch.
func (m *Monitor) Poll(ctx context.Context) error {
	hash, err := m.git.HeadHash(ctx, m.repoPath)
	if err != nil {
		return fmt.Errorf("failed to read HEAD: %w", err)
	}
	branch, err := m.git.CurrentBranch(ctx, m.repoPath)
	if err != nil {
		return fmt.Errorf("failed to read branch: %w", err)
	}

	m.repoMu.Lock()
	defer m.repoMu.Unlock()

	repo, err := m.store.GetRepoByPath(ctx, m.repoPath)
	if err != nil {
		return fmt.Errorf("failed to load repo state: %w", err)
	}

	switch {
	case branch != repo.LastBranch:
		logging.Logger.Info("branch switch detected, resetting counter",
			"repo", m.repoPath, "from", repo.LastBranch, "to", branch)
		return m.reset(ctx, hash, branch)

	case hash != repo.LastCommitHash:
		logging.Logger.Info("external commit detected, resetting counter",
			"repo", m.repoPath, "head", hash)
		return m.reset(ctx, hash, branch)

	default:
		return nil
	}
}

// reset zeroes the counter and records the new head state
func (m *Monitor) reset(ctx context.Context, hash, branch string) error {
	if err := m.store.ResetDelta(ctx, m.repoID); err != nil {
		return fmt.Errorf("failed to reset counter: %w", err)
	}
	if err := m.store.SetHeadState(ctx, m.repoID, hash, branch); err != nil {
		return fmt.Errorf("failed to update head state: %w", err)
	}
	return nil
}
