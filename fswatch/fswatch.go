// Package fswatch is the filesystem change source behind the watch/unwatch
// operations: it wraps fsnotify.Watcher in a
// worker.Worker-managed background loop and republishes raw events as
// watchreg.Event values the watcher registry can filter and route.
// It is grounded on katzenpost's worker.Worker-embedding background-loop
// idiom (stream/stream.go), generalized from framing network bytes to
// draining an fsnotify event channel.
package fswatch

import (
	"errors"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/kestrelsys/rexec/internal/logging"
	"github.com/kestrelsys/rexec/internal/worker"
	"github.com/kestrelsys/rexec/server/watchreg"
)

// Kind names matching fsnotify's operation bits, reused as watchreg.Kind
// values so a Watch request's Only/Except kind filters can name them
// directly.
const (
	KindCreate watchreg.Kind = "create"
	KindWrite  watchreg.Kind = "write"
	KindRemove watchreg.Kind = "remove"
	KindRename watchreg.Kind = "rename"
	KindChmod  watchreg.Kind = "chmod"
)

func kindOf(op fsnotify.Op) watchreg.Kind {
	switch {
	case op&fsnotify.Create != 0:
		return KindCreate
	case op&fsnotify.Write != 0:
		return KindWrite
	case op&fsnotify.Remove != 0:
		return KindRemove
	case op&fsnotify.Rename != 0:
		return KindRename
	default:
		return KindChmod
	}
}

// Source watches one or more filesystem roots and dispatches every event
// into a registry.
type Source struct {
	worker.Worker
	w        *fsnotify.Watcher
	registry *watchreg.Registry
	connID   string
	log      *log.Logger
}

// NewSource creates an fsnotify-backed source feeding registry, attributing
// every error event to connID.
func NewSource(registry *watchreg.Registry, connID string) (*Source, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	s := &Source{w: w, registry: registry, connID: connID, log: logging.New("fswatch")}
	s.Go(s.run)
	return s, nil
}

// Add registers root with the underlying fsnotify watcher. fsnotify watches
// a single directory non-recursively; recursive watches are realized by the
// caller (fsops.ReadDir-style walk) adding every subdirectory.
func (s *Source) Add(root string) error {
	return s.w.Add(root)
}

// Remove unregisters root.
func (s *Source) Remove(root string) error {
	return s.w.Remove(root)
}

func (s *Source) run() {
	defer s.Done()
	for {
		select {
		case ev, ok := <-s.w.Events:
			if !ok {
				return
			}
			s.registry.Dispatch(watchreg.Event{Kind: kindOf(ev.Op), Path: ev.Name})
		case err, ok := <-s.w.Errors:
			if !ok {
				return
			}
			s.log.Warn("watch error", "error", err)
			s.registry.DispatchError(s.connID, watchreg.ErrorEvent{Message: errMessage(err)})
		case <-s.HaltCh():
			_ = s.w.Close()
			return
		}
	}
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	var msg string
	if unwrapped := errors.Unwrap(err); unwrapped != nil {
		msg = unwrapped.Error()
	} else {
		msg = err.Error()
	}
	return msg
}

// Close stops the source's background loop and releases the underlying
// fsnotify watcher.
func (s *Source) Close() {
	s.Halt()
}
