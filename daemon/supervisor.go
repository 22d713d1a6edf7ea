package daemon

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"driftwatch/complexity"
	"driftwatch/config"
	"driftwatch/gitops"
	"driftwatch/logging"
)

// Supervisor runs one independent Orchestrator per enabled repository. A
// single repository's failure is logged and contained; the others keep
// running.
type Supervisor struct {
	cfg    *config.Config
	dbPath string
	git    gitops.Ops
	calc   complexity.Calculator
}

// NewSupervisor prepares a supervisor over the configured repositories
func NewSupervisor(cfg *config.Config, dbPath string, git gitops.Ops, calc complexity.Calculator) *Supervisor {
	return &Supervisor{cfg: cfg, dbPath: dbPath, git: git, calc: calc}
}

// Run starts every enabled repository and blocks until ctx is cancelled.
// Per-repository startup errors do not abort the rest of the fleet.
func (s *Supervisor) Run(ctx context.Context) error {
	debounce := time.Duration(s.cfg.DebounceSeconds()) * time.Second
	poll := time.Duration(s.cfg.PollSeconds()) * time.Second

	g, gctx := errgroup.WithContext(ctx)

	started := 0
	for _, repo := range s.cfg.Repos {
		if !repo.Enabled {
			continue
		}
		settings := s.cfg.Resolve(repo)

		orch, err := NewOrchestrator(settings, s.dbPath, s.git, s.calc, debounce, poll)
		if err != nil {
			logging.Logger.Error("repository watch failed to start",
				"path", settings.Path, "error", err)
			continue
		}
		started++

		g.Go(func() error {
			if err := orch.Run(gctx); err != nil {
				// Contained: one repository never takes down the daemon
				logging.Logger.Error("repository watch stopped",
					"path", settings.Path, "error", err)
			}
			return nil
		})
	}

	if started == 0 {
		logging.Logger.Warn("no repositories started")
	} else {
		logging.Logger.Info("daemon running", "repositories", started)
	}

	return g.Wait()
}
