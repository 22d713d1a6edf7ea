// Package gitops wraps the git CLI behind the narrow interface the daemon
// consumes: stage-all, commit, head-hash, current-branch and checkpoint log.
package gitops

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"driftwatch/logging"
)

// Ops is the version-control surface consumed by the tracker, the monitor
// and the CLI. Implementations must be safe for concurrent use from one
// repository's worker and poll loop.
type Ops interface {
	// StageAll stages every working-tree change (`git add -A`)
	StageAll(ctx context.Context, path string) error
	// Commit creates a commit with message. Returns false with a nil error
	// when there was nothing staged to commit.
	Commit(ctx context.Context, path, message string) (bool, error)
	// HeadHash returns the current HEAD commit hash, or an empty string for
	// an unborn (no commits yet) repository.
	HeadHash(ctx context.Context, path string) (string, error)
	// CurrentBranch returns the checked-out branch name
	CurrentBranch(ctx context.Context, path string) (string, error)
	// Log returns commits whose subject starts with prefix, newest first
	Log(ctx context.Context, path, prefix string) ([]CommitEntry, error)
}

// CommitEntry is one commit from the checkpoint history
type CommitEntry struct {
	Hash    string
	Subject string
	When    time.Time
}

// Git runs the real git binary via subprocess
type Git struct{}

// New returns a subprocess-backed Ops implementation
func New() *Git {
	return &Git{}
}

// StageAll stages all working-tree changes including deletions
func (g *Git) StageAll(ctx context.Context, path string) error {
	if _, err := g.run(ctx, path, "add", "-A"); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}
	return nil
}

// Commit creates a commit. A "nothing to commit" outcome is not an error:
// it returns (false, nil) so callers can leave their counters untouched.
func (g *Git) Commit(ctx context.Context, path, message string) (bool, error) {
	output, err := g.run(ctx, path, "commit", "-m", message)
	if err != nil {
		if strings.Contains(output, "nothing to commit") ||
			strings.Contains(output, "no changes added to commit") {
			return false, nil
		}
		return false, fmt.Errorf("git commit failed: %w", err)
	}
	return true, nil
}

// HeadHash returns the HEAD commit hash, or "" for an unborn repository
func (g *Git) HeadHash(ctx context.Context, path string) (string, error) {
	output, err := g.run(ctx, path, "rev-parse", "HEAD")
	if err != nil {
		// An empty repository has no HEAD yet; that is a valid state
		if strings.Contains(output, "unknown revision") ||
			strings.Contains(output, "ambiguous argument 'HEAD'") {
			return "", nil
		}
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(output), nil
}

// CurrentBranch returns the checked-out branch name
func (g *Git) CurrentBranch(ctx context.Context, path string) (string, error) {
	output, err := g.run(ctx, path, "branch", "--show-current")
	if err != nil {
		return "", fmt.Errorf("git branch failed: %w", err)
	}
	return strings.TrimSpace(output), nil
}

// Log lists commits whose subject starts with prefix, newest first
func (g *Git) Log(ctx context.Context, path, prefix string) ([]CommitEntry, error) {
	output, err := g.run(ctx, path, "log", "--pretty=format:%H%x09%ct%x09%s")
	if err != nil {
		if strings.Contains(output, "does not have any commits yet") {
			return nil, nil
		}
		return nil, fmt.Errorf("git log failed: %w", err)
	}

	return parseLog(output, prefix), nil
}

// parseLog extracts checkpoint entries from tab-separated git log output
func parseLog(output, prefix string) []CommitEntry {
	var entries []CommitEntry
	for _, line := range strings.Split(output, "\n") {
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		if prefix != "" && !strings.HasPrefix(parts[2], prefix) {
			continue
		}
		epoch, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, CommitEntry{
			Hash:    parts[0],
			Subject: parts[2],
			When:    time.Unix(epoch, 0),
		})
	}
	return entries
}

// run executes git with combined output so failure text is inspectable
func (g *Git) run(ctx context.Context, path string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", path}, args...)...)
	out, err := cmd.CombinedOutput()
	output := string(out)
	if err != nil {
		logging.Logger.Debug("git command failed",
			"args", strings.Join(args, " "), "path", path, "output", strings.TrimSpace(output))
	}
	return output, err
}
