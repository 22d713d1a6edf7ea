package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"driftwatch/complexity"
	"driftwatch/config"
	"driftwatch/daemon"
	"driftwatch/gitops"
	"driftwatch/logging"
	"driftwatch/paths"
)

// WatchCmd runs one repository's watch loop in the foreground
type WatchCmd struct {
	Path string `arg:"" help:"Repository directory to watch"`
}

// Run executes the watch command, blocking until interrupted
func (w *WatchCmd) Run(cli *CLI) error {
	abs, err := config.ValidateRepoPath(w.Path)
	if err != nil {
		return err
	}

	cfg := cli.Config()
	settings := resolveSettings(cfg, abs)
	debounce := time.Duration(cfg.DebounceSeconds()) * time.Second
	poll := time.Duration(cfg.PollSeconds()) * time.Second

	orch, err := daemon.NewOrchestrator(settings, cli.DatabasePath(),
		gitops.New(), complexity.NewStructural(), debounce, poll)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return orch.Run(ctx)
}

// DaemonCmd runs all enabled repositories concurrently
type DaemonCmd struct{}

// Run executes the daemon command, blocking until interrupted
func (d *DaemonCmd) Run(cli *CLI) error {
	lock, err := daemon.AcquireLock(paths.LockPath())
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logging.Logger.Warn("failed to release daemon lock", "error", err)
		}
	}()

	supervisor := daemon.NewSupervisor(cli.Config(), cli.DatabasePath(),
		gitops.New(), complexity.NewStructural())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return supervisor.Run(ctx)
}
