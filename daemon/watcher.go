package daemon

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"driftwatch/dispatch"
	"driftwatch/logging"
)

// Watcher recursively watches one repository tree and hands raw events to
// the dispatcher. fsnotify is non-recursive, so every subdirectory is added
// at startup and new directories are added as they appear.
type Watcher struct {
	repoPath   string
	fsWatcher  *fsnotify.Watcher
	dispatcher *dispatch.Dispatcher
	done       chan struct{}
}

// NewWatcher sets up the recursive watch. The watcher is not running until
// Start is called.
func NewWatcher(repoPath string, dispatcher *dispatch.Dispatcher) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	w := &Watcher{
		repoPath:   repoPath,
		fsWatcher:  fsWatcher,
		dispatcher: dispatcher,
		done:       make(chan struct{}),
	}

	if err := w.addRecursive(repoPath); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return w, nil
}

// Start consumes events until Stop is called. The callback goroutine only
// filters and enqueues; all I/O happens on the tracker's worker.
func (w *Watcher) Start() {
	go func() {
		defer close(w.done)
		for {
			select {
			case event, ok := <-w.fsWatcher.Events:
				if !ok {
					return
				}
				w.handle(event)
			case err, ok := <-w.fsWatcher.Errors:
				if !ok {
					return
				}
				logging.Logger.Warn("watcher error", "repo", w.repoPath, "error", err)
			}
		}
	}()
}

// Stop closes the filesystem watcher and waits for the event goroutine to
// finish, guaranteeing no new events reach the tracker afterwards.
func (w *Watcher) Stop() {
	w.fsWatcher.Close()
	<-w.done
}

// handle grows the watch on directory creation and forwards file events
func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				logging.Logger.Warn("failed to watch new directory",
					"path", event.Name, "error", err)
			}
			return
		}
	}
	w.dispatcher.Dispatch(event)
}

// addRecursive adds root and every subdirectory to the watch, skipping the
// VCS metadata tree.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories can vanish mid-walk; that is not fatal
			logging.Logger.Debug("walk error", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
