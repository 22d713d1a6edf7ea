package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"driftwatch/config"
	"driftwatch/gitops"
	"driftwatch/paths"
	"driftwatch/storage"
	"driftwatch/tracker"
)

// StatusCmd prints the cumulative delta per enabled repository
type StatusCmd struct{}

// Run executes the status command
func (s *StatusCmd) Run(cli *CLI) error {
	cfg := cli.Config()

	store, err := storage.NewStore(cli.DatabasePath())
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	printed := 0
	for _, repoCfg := range cfg.Repos {
		if !repoCfg.Enabled {
			continue
		}
		printed++
		settings := cfg.Resolve(repoCfg)

		repo, err := store.GetRepoByPath(ctx, repoCfg.Path)
		if errors.Is(err, storage.ErrRepoNotFound) {
			fmt.Printf("%s  delta 0/%d  %s\n", repoCfg.Path, settings.Threshold,
				mutedStyle.Render("not yet tracked"))
			continue
		}
		if err != nil {
			return err
		}

		head := repo.LastCommitHash
		if head == "" {
			head = "(unborn)"
		} else if len(head) > 12 {
			head = head[:12]
		}
		fmt.Printf("%s  delta %d/%d  %s\n", repo.Path,
			repo.CumulativeDelta, settings.Threshold,
			mutedStyle.Render(fmt.Sprintf("head %s branch %s", head, repo.LastBranch)))
	}

	if printed == 0 {
		fmt.Println("No enabled repositories.")
	}
	return nil
}

// CommitCmd forces a checkpoint commit with the current delta
type CommitCmd struct {
	Path string `arg:"" help:"Repository to checkpoint"`
}

// Run executes the commit command
func (c *CommitCmd) Run(cli *CLI) error {
	abs, err := config.ValidateRepoPath(c.Path)
	if err != nil {
		return err
	}
	settings := resolveSettings(cli.Config(), abs)

	store, err := storage.NewStore(cli.DatabasePath())
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	repo, err := store.GetOrCreateRepo(ctx, abs)
	if err != nil {
		return err
	}

	committer := tracker.NewAutoCommitter(abs, repo.ID, store, gitops.New(),
		int64(settings.Threshold), settings.MessageTemplate)

	created, err := committer.ForceCommit(ctx)
	if err != nil {
		return err
	}
	if !created {
		fmt.Println("Nothing to commit; counter unchanged.")
		return nil
	}

	fmt.Printf("Checkpoint committed for %s\n", abs)
	return nil
}

// ResetCmd zeroes the cumulative delta without committing
type ResetCmd struct {
	Path string `arg:"" help:"Repository whose counter to reset"`
}

// Run executes the reset command
func (r *ResetCmd) Run(cli *CLI) error {
	abs, err := absolutePath(r.Path)
	if err != nil {
		return err
	}

	store, err := storage.NewStore(cli.DatabasePath())
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	repo, err := store.GetRepoByPath(ctx, abs)
	if errors.Is(err, storage.ErrRepoNotFound) {
		return fmt.Errorf("repository not tracked: %s", abs)
	}
	if err != nil {
		return err
	}

	if err := store.ResetDelta(ctx, repo.ID); err != nil {
		return err
	}

	fmt.Printf("Cumulative delta reset for %s\n", abs)
	return nil
}

// HistoryCmd lists prior checkpoint commits
type HistoryCmd struct {
	Path string `arg:"" help:"Repository whose checkpoint history to show"`
}

// Run executes the history command
func (h *HistoryCmd) Run(cli *CLI) error {
	abs, err := config.ValidateRepoPath(h.Path)
	if err != nil {
		return err
	}
	settings := resolveSettings(cli.Config(), abs)
	prefix := tracker.MessagePrefix(settings.MessageTemplate)

	entries, err := gitops.New().Log(context.Background(), abs, prefix)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No checkpoint commits found.")
		return nil
	}

	fmt.Println(headerStyle.Render("Checkpoint history"))
	for _, entry := range entries {
		hash := entry.Hash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		fmt.Printf("  %s  %s  %s\n", mutedStyle.Render(hash),
			entry.When.Format("2006-01-02 15:04"), entry.Subject)
	}
	return nil
}

// resolveSettings returns the repo's effective settings, using pure
// defaults when the path is not in the config file.
func resolveSettings(cfg *config.Config, abs string) config.RepoSettings {
	if repoCfg := cfg.FindRepo(abs); repoCfg != nil {
		return cfg.Resolve(*repoCfg)
	}
	return cfg.Resolve(config.RepoConfig{Path: abs})
}

// absolutePath cleans a user-supplied path without requiring it to exist
func absolutePath(path string) (string, error) {
	abs, err := filepath.Abs(paths.ExpandPath(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	return filepath.Clean(abs), nil
}
