// Package search implements the search/cancel-search operation family: a
// cancellable filesystem walk that matches a glob-style pattern against the
// base names of files under a root and streams matches to a sink as they
// are found.
// It is grounded on katzenpost's worker.Worker background-task
// idiom, generalized from a network reader loop to a directory walk, using
// a context.Context for the cancellation half of "search/cancel-search"
// rather than a dedicated channel, since filepath.WalkDir offers a natural
// cancellation point (returning an error from the walk callback).
package search

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/kestrelsys/rexec/internal/worker"
)

// Match is one search hit.
type Match struct {
	Path string
}

// Sink receives matches as they are found and a final completion signal.
type Sink interface {
	Matched(id string, m Match)
	Completed(id string)
}

var errCancelled = errors.New("search: cancelled")

// Search is one running, cancellable filesystem search.
type Search struct {
	worker.Worker
	id     string
	cancel context.CancelFunc
}

// Registry tracks running searches by id so CancelSearch can stop
// one in flight.
type Registry struct {
	mu      sync.Mutex
	running map[string]*Search
}

// NewRegistry returns an empty search Registry.
func NewRegistry() *Registry {
	return &Registry{running: make(map[string]*Search)}
}

// Start begins a new search for pattern under root, identified by id, and
// returns immediately; matches and completion are reported on sink as the
// walk progresses.
func (r *Registry) Start(id, root, pattern string, sink Sink) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Search{id: id, cancel: cancel}

	r.mu.Lock()
	r.running[id] = s
	r.mu.Unlock()

	s.Go(func() {
		defer s.Done()
		defer func() {
			r.mu.Lock()
			delete(r.running, id)
			r.mu.Unlock()
			sink.Completed(id)
		}()
		_ = walk(ctx, root, pattern, func(m Match) { sink.Matched(id, m) })
	})
}

// Cancel stops the search registered under id, if any.
func (r *Registry) Cancel(id string) {
	r.mu.Lock()
	s, ok := r.running[id]
	r.mu.Unlock()
	if ok {
		s.cancel()
	}
}

func walk(ctx context.Context, root, pattern string, emit func(Match)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return errCancelled
		default:
		}
		if d.IsDir() {
			return nil
		}
		matched, mErr := filepath.Match(pattern, filepath.Base(path))
		if mErr != nil {
			return mErr
		}
		if matched {
			emit(Match{Path: path})
		}
		return nil
	})
}
