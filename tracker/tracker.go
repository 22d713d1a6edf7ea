// Package tracker owns the debounce queue and the per-repository worker
// loop: raw changes are coalesced per path, complexity deltas are computed
// and folded into the durable counter, and the auto-committer is given
// exactly one chance per batch to cut a checkpoint.
package tracker

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"driftwatch/complexity"
	"driftwatch/logging"
	"driftwatch/storage"
)

// Action classifies a pending change
type Action string

const (
	// ActionProcess recomputes the file's complexity (create and modify)
	ActionProcess Action = "process"
	// ActionDelete removes the file's record and rolls back its value
	ActionDelete Action = "delete"
)

// DefaultQueueCapacity bounds the raw event queue; overflow sheds load
// instead of blocking the watcher callback.
const DefaultQueueCapacity = 5000

// PendingChange is one coalesced change waiting out the debounce window.
// It lives only in memory: a change still pending at shutdown is lost until
// the file is next observed changing.
type PendingChange struct {
	Action     Action
	Path       string
	EnqueuedAt time.Time
}

// Committer is consulted once after every processed batch
type Committer interface {
	CheckAndCommit(ctx context.Context) error
}

// Tracker debounces changes for one repository and applies their
// complexity deltas to the persistent counter.
type Tracker struct {
	repoPath string
	repoID   uint
	store    *storage.Store
	calc     complexity.Calculator
	commit   Committer
	debounce time.Duration

	// repoMu serializes counter access with the git state monitor
	repoMu *sync.Mutex

	queue chan PendingChange

	// now is swappable in tests
	now func() time.Time
}

// New creates a tracker for one repository
func New(repoPath string, repoID uint, store *storage.Store, calc complexity.Calculator, commit Committer, debounce time.Duration, repoMu *sync.Mutex) *Tracker {
	return &Tracker{
		repoPath: repoPath,
		repoID:   repoID,
		store:    store,
		calc:     calc,
		commit:   commit,
		debounce: debounce,
		repoMu:   repoMu,
		queue:    make(chan PendingChange, DefaultQueueCapacity),
		now:      time.Now,
	}
}

// Enqueue appends a change without blocking. On a full queue the event is
// dropped with a warning; shedding load beats stalling the watcher thread.
func (t *Tracker) Enqueue(action Action, path string) {
	change := PendingChange{Action: action, Path: path, EnqueuedAt: t.now()}
	select {
	case t.queue <- change:
	default:
		logging.Logger.Warn("event queue full, dropping change",
			"repo", t.repoPath, "action", string(action), "path", path)
	}
}

// Run is the worker loop. It blocks on the queue with a timeout matching
// the debounce window, merges events per path with last-event-wins
// semantics, and flushes a path once it has been quiet for a full window.
// Returns when ctx is cancelled; any un-expired pending entries are
// discarded.
func (t *Tracker) Run(ctx context.Context) {
	pending := make(map[string]PendingChange)
	timer := time.NewTimer(t.debounce)
	defer timer.Stop()

	for {
		if len(pending) == 0 {
			// Nothing pending: block until an event or cancellation
			select {
			case <-ctx.Done():
				return
			case change := <-t.queue:
				pending[change.Path] = change
				resetTimer(timer, t.debounce)
			}
			continue
		}

		select {
		case <-ctx.Done():
			if len(pending) > 0 {
				logging.Logger.Info("discarding pending changes at shutdown",
					"repo", t.repoPath, "count", len(pending))
			}
			return

		case change := <-t.queue:
			// Last event wins regardless of type
			pending[change.Path] = change
			resetTimer(timer, t.nextWakeup(pending))

		case <-timer.C:
			batch := t.takeExpired(pending)
			if len(batch) > 0 {
				t.processBatch(ctx, batch)
			}
			if len(pending) > 0 {
				resetTimer(timer, t.nextWakeup(pending))
			}
		}
	}
}

// takeExpired removes and returns every pending entry whose debounce
// window has elapsed.
func (t *Tracker) takeExpired(pending map[string]PendingChange) []PendingChange {
	now := t.now()
	var batch []PendingChange
	for path, change := range pending {
		if now.Sub(change.EnqueuedAt) >= t.debounce {
			batch = append(batch, change)
			delete(pending, path)
		}
	}
	return batch
}

// nextWakeup computes how long to sleep until the oldest pending entry
// expires
func (t *Tracker) nextWakeup(pending map[string]PendingChange) time.Duration {
	now := t.now()
	wait := t.debounce
	for _, change := range pending {
		remaining := t.debounce - now.Sub(change.EnqueuedAt)
		if remaining < wait {
			wait = remaining
		}
	}
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

// processBatch applies one flushed batch under the repository lock and then
// gives the committer its single chance for this batch. A persistence
// failure abandons the rest of the batch; the next edit recomputes from
// stored state.
func (t *Tracker) processBatch(ctx context.Context, batch []PendingChange) {
	t.repoMu.Lock()
	defer t.repoMu.Unlock()

	logging.Logger.Debug("processing batch", "repo", t.repoPath, "changes", len(batch))

	for _, change := range batch {
		var err error
		switch change.Action {
		case ActionProcess:
			err = t.processFile(ctx, change.Path)
		case ActionDelete:
			err = t.deleteFile(ctx, change.Path)
		}
		if err != nil {
			logging.Logger.Error("batch aborted on persistence error",
				"repo", t.repoPath, "path", change.Path, "error", err)
			return
		}
	}

	if err := t.commit.CheckAndCommit(ctx); err != nil {
		// Counter stays as-is; the next batch retries the check
		logging.Logger.Error("checkpoint attempt failed", "repo", t.repoPath, "error", err)
	}
}

// processFile recomputes one file's complexity and folds the signed delta
// into the cumulative counter. Calculator failures are per-file and do not
// abort the batch; only storage errors propagate.
func (t *Tracker) processFile(ctx context.Context, relPath string) error {
	absPath := filepath.Join(t.repoPath, filepath.FromSlash(relPath))

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		// Benign race: the file vanished between the event and the flush
		logging.Logger.Debug("file gone before processing", "path", relPath)
		return nil
	}

	score, err := t.calc.Score(absPath)
	if err != nil {
		logging.Logger.Warn("complexity calculation failed, skipping file",
			"path", relPath, "error", err)
		return nil
	}

	prior, _, err := t.store.GetFileComplexity(ctx, t.repoID, relPath)
	if err != nil {
		return err
	}

	delta := score - prior
	if delta == 0 {
		return nil
	}

	if err := t.store.ApplyFileDelta(ctx, t.repoID, relPath, score, delta); err != nil {
		return err
	}

	logging.Logger.Debug("complexity updated",
		"path", relPath, "complexity", score, "delta", delta)
	return nil
}

// deleteFile removes a tracked file's record and subtracts its recorded
// value from the counter. Deleting an untracked path is a no-op.
func (t *Tracker) deleteFile(ctx context.Context, relPath string) error {
	prior, err := t.store.RemoveFile(ctx, t.repoID, relPath)
	if err != nil {
		return err
	}
	if prior != 0 {
		logging.Logger.Debug("tracked file deleted",
			"path", relPath, "reclaimed", prior)
	}
	return nil
}

// resetTimer safely rearms a timer that may have fired
func resetTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}
