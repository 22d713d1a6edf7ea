// Package dispatch filters raw filesystem events before they reach the
// tracker: VCS metadata is dropped, exclude globs are applied, and when
// include globs are configured a path must match at least one of them.
package dispatch

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"driftwatch/logging"
	"driftwatch/tracker"
)

// Dispatcher routes accepted (action, path) pairs to a tracker queue.
// It performs no I/O itself.
type Dispatcher struct {
	repoPath string
	include  []string
	exclude  []string
	sink     Sink
}

// Sink receives accepted changes; the tracker's Enqueue satisfies it
type Sink interface {
	Enqueue(action tracker.Action, path string)
}

// New creates a dispatcher for one repository
func New(repoPath string, include, exclude []string, sink Sink) *Dispatcher {
	return &Dispatcher{
		repoPath: repoPath,
		include:  include,
		exclude:  exclude,
		sink:     sink,
	}
}

// Dispatch inspects one raw fsnotify event and forwards it if accepted.
// Create events are routed like writes: a first-time file simply gets its
// first processing pass.
func (d *Dispatcher) Dispatch(event fsnotify.Event) {
	rel, ok := d.Accept(event.Name)
	if !ok {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		d.sink.Enqueue(tracker.ActionDelete, rel)
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		d.sink.Enqueue(tracker.ActionProcess, rel)
	default:
		// Chmod and friends carry no content change
	}
}

// Accept reports whether the absolute path passes the filter rules and
// returns its normalized repo-relative form.
func (d *Dispatcher) Accept(absPath string) (string, bool) {
	rel, err := filepath.Rel(d.repoPath, absPath)
	if err != nil {
		logging.Logger.Debug("event outside repository", "path", absPath)
		return "", false
	}
	rel = filepath.ToSlash(rel)

	if rel == ".git" || strings.HasPrefix(rel, ".git/") {
		return "", false
	}

	for _, pattern := range d.exclude {
		if matchGlob(pattern, rel) {
			return "", false
		}
	}

	if len(d.include) == 0 {
		return rel, true
	}
	for _, pattern := range d.include {
		if matchGlob(pattern, rel) {
			return rel, true
		}
	}
	return "", false
}

// matchGlob matches a doublestar pattern against a forward-slash path.
// Invalid patterns are logged and treated as non-matching.
func matchGlob(pattern, rel string) bool {
	ok, err := doublestar.Match(pattern, rel)
	if err != nil {
		logging.Logger.Warn("invalid glob pattern", "pattern", pattern, "error", err)
		return false
	}
	return ok
}
