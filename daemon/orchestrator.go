// Package daemon wires the per-repository stack (watcher, dispatcher,
// tracker, monitor, store) and supervises one such stack per configured
// repository.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"driftwatch/complexity"
	"driftwatch/config"
	"driftwatch/dispatch"
	"driftwatch/gitops"
	"driftwatch/logging"
	"driftwatch/monitor"
	"driftwatch/storage"
	"driftwatch/tracker"
)

// Orchestrator runs one repository's watch loop. Each instance owns its own
// store handle, queue and lock; repositories never share state.
type Orchestrator struct {
	settings config.RepoSettings
	store    *storage.Store
	watcher  *Watcher
	tracker  *tracker.Tracker
	monitor  *monitor.Monitor
}

// NewOrchestrator opens the persistent store and builds the full stack for
// one repository. Any failure here is fatal for this repository's watch:
// running on unreliable state is worse than not starting.
func NewOrchestrator(settings config.RepoSettings, dbPath string, git gitops.Ops, calc complexity.Calculator, debounce, pollInterval time.Duration) (*Orchestrator, error) {
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	ctx := context.Background()
	repo, err := store.GetOrCreateRepo(ctx, settings.Path)
	if err != nil {
		store.Close()
		return nil, err
	}

	repoMu := &sync.Mutex{}

	committer := tracker.NewAutoCommitter(settings.Path, repo.ID, store, git,
		int64(settings.Threshold), settings.MessageTemplate)
	trk := tracker.New(settings.Path, repo.ID, store, calc, committer, debounce, repoMu)
	dispatcher := dispatch.New(settings.Path, settings.IncludePatterns, settings.ExcludePatterns, trk)

	mon := monitor.New(settings.Path, repo.ID, store, git, pollInterval, repoMu)
	if err := mon.Init(ctx); err != nil {
		store.Close()
		return nil, err
	}

	watcher, err := NewWatcher(settings.Path, dispatcher)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Orchestrator{
		settings: settings,
		store:    store,
		watcher:  watcher,
		tracker:  trk,
		monitor:  mon,
	}, nil
}

// Run blocks until ctx is cancelled. Shutdown order matters: the watcher
// stops first so no new events arrive, then the worker and monitor wind
// down, then the store handle is released.
func (o *Orchestrator) Run(ctx context.Context) error {
	logging.Logger.Info("watching repository",
		"path", o.settings.Path, "threshold", o.settings.Threshold)

	workerCtx, stopWorkers := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.tracker.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		o.monitor.Run(workerCtx)
	}()

	o.watcher.Start()

	<-ctx.Done()

	o.watcher.Stop()
	stopWorkers()
	wg.Wait()

	if err := o.store.Close(); err != nil {
		logging.Logger.Warn("failed to close store", "path", o.settings.Path, "error", err)
	}

	logging.Logger.Info("stopped watching repository", "path", o.settings.Path)
	return nil
}
