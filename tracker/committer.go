package tracker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"driftwatch/gitops"
	"driftwatch/logging"
	"driftwatch/storage"
)

// AutoCommitter cuts a checkpoint commit once the cumulative delta crosses
// the threshold. At most one commit attempt is made per processed batch.
type AutoCommitter struct {
	repoPath  string
	repoID    uint
	store     *storage.Store
	git       gitops.Ops
	threshold int64
	template  string
}

// NewAutoCommitter wires a committer for one repository
func NewAutoCommitter(repoPath string, repoID uint, store *storage.Store, git gitops.Ops, threshold int64, template string) *AutoCommitter {
	return &AutoCommitter{
		repoPath:  repoPath,
		repoID:    repoID,
		store:     store,
		git:       git,
		threshold: threshold,
		template:  template,
	}
}

// CheckAndCommit reads the cumulative delta and commits a checkpoint when
// it has reached the threshold. Below threshold it does nothing.
func (c *AutoCommitter) CheckAndCommit(ctx context.Context) error {
	delta, err := c.store.CumulativeDelta(ctx, c.repoID)
	if err != nil {
		return fmt.Errorf("failed to read delta: %w", err)
	}
	if delta < c.threshold {
		return nil
	}
	_, err = c.commit(ctx, delta)
	return err
}

// ForceCommit commits a checkpoint with the current delta regardless of the
// threshold. Used by the CLI commit command.
func (c *AutoCommitter) ForceCommit(ctx context.Context) (bool, error) {
	delta, err := c.store.CumulativeDelta(ctx, c.repoID)
	if err != nil {
		return false, fmt.Errorf("failed to read delta: %w", err)
	}
	return c.commit(ctx, delta)
}

// commit stages everything and attempts one checkpoint commit. A
// nothing-to-commit outcome leaves the counter untouched: the accumulated
// growth has not been captured in history yet.
func (c *AutoCommitter) commit(ctx context.Context, delta int64) (bool, error) {
	message := RenderMessage(c.template, delta)

	if err := c.git.StageAll(ctx, c.repoPath); err != nil {
		return false, fmt.Errorf("failed to stage changes: %w", err)
	}

	created, err := c.git.Commit(ctx, c.repoPath, message)
	if err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	if !created {
		logging.Logger.Info("nothing to commit, counter preserved",
			"repo", c.repoPath, "delta", delta)
		return false, nil
	}

	if err := c.store.ResetDelta(ctx, c.repoID); err != nil {
		return true, fmt.Errorf("checkpoint created but counter reset failed: %w", err)
	}

	// Record the new HEAD so the monitor doesn't mistake our own
	// checkpoint for an external commit
	hash, err := c.git.HeadHash(ctx, c.repoPath)
	if err == nil {
		branch, berr := c.git.CurrentBranch(ctx, c.repoPath)
		if berr == nil {
			if serr := c.store.SetHeadState(ctx, c.repoID, hash, branch); serr != nil {
				logging.Logger.Warn("failed to record checkpoint head", "error", serr)
			}
		}
	}

	logging.Logger.Info("checkpoint committed",
		"repo", c.repoPath, "delta", delta, "message", message)
	return true, nil
}

// RenderMessage substitutes the delta value into the message template
func RenderMessage(template string, delta int64) string {
	return strings.ReplaceAll(template, "{delta}", strconv.FormatInt(delta, 10))
}

// MessagePrefix returns the template text before the {delta} placeholder,
// used to filter checkpoint commits out of git log.
func MessagePrefix(template string) string {
	if i := strings.Index(template, "{delta}"); i >= 0 {
		return strings.TrimRight(template[:i], " ")
	}
	return template
}
