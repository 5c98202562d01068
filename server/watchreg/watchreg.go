// Package watchreg implements the watcher registry: a set of registered
// filesystem watches, each carrying (connection id, canonical path, allowed
// kinds), that filters incoming filesystem change events and emits matching
// ones on a registered reply sink. Watches are stored by watch id; two
// registrations with the same (connection id, canonical path, allowed
// kinds) are kept as separate entries. It is grounded on the postoffice
// routing-map idiom (postoffice.PostOffice) for its guarded registration
// set, narrowed here to path/kind matching instead of id-keyed delivery,
// with the registry guarded by a read-write lock.
package watchreg

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/kestrelsys/rexec/proto"
)

// Kind is a filesystem change event kind (create, write, remove, rename,
// chmod, ...); the concrete set is owned by fswatch, which this package
// treats as an opaque string so it need not import fsnotify's event types.
type Kind string

// Sink is where a matching event is delivered: an
// envelope-producing reply target, typically a connection's reply queue.
type Sink interface {
	Send(e proto.Envelope) error
}

// Event is one observed filesystem change.
type Event struct {
	Kind Kind
	Path string
}

// ErrorEvent is a filesystem-watch failure.
type ErrorEvent struct {
	Message string
	Paths   []string
}

// watch is one registered (connection_id, canonical_path, allowed_kinds)
// entry.
type watch struct {
	id            string
	connectionID  string
	canonicalPath string
	recursive     bool
	only          map[Kind]bool // nil means unrestricted
	except        map[Kind]bool
	sink          Sink
	emitNoMatch   bool
}

// allows reports whether k passes this watch's filter: allowed kinds are
// (if Only is empty then ALL else Only) minus Except.
func (w *watch) allows(k Kind) bool {
	if w.except[k] {
		return false
	}
	if w.only == nil {
		return true
	}
	return w.only[k]
}

// contains reports whether path is within scope of w.canonicalPath honouring
// the recursive flag: recursive watches accept any
// descendant, non-recursive watches accept only the path itself or a direct
// child.
func (w *watch) contains(path string) bool {
	path = filepath.Clean(path)
	root := filepath.Clean(w.canonicalPath)
	if path == root {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	if w.recursive {
		return true
	}
	return !strings.Contains(rel, string(filepath.Separator))
}

// Registry holds every registered watch across all connections.
type Registry struct {
	mu      sync.RWMutex
	watches map[string]*watch
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{watches: make(map[string]*watch)}
}

// Options configures a new watch registration.
type Options struct {
	ConnectionID  string
	CanonicalPath string
	Recursive     bool
	Only          []Kind
	Except        []Kind
	Sink          Sink
	EmitNoMatch   bool
}

func toSet(ks []Kind) map[Kind]bool {
	if len(ks) == 0 {
		return nil
	}
	set := make(map[Kind]bool, len(ks))
	for _, k := range ks {
		set[k] = true
	}
	return set
}

// Register adds a new watch under id, replacing any watch already
// registered under that id.
func (r *Registry) Register(id string, opt Options) {
	w := &watch{
		id:            id,
		connectionID:  opt.ConnectionID,
		canonicalPath: opt.CanonicalPath,
		recursive:     opt.Recursive,
		only:          toSet(opt.Only),
		except:        toSet(opt.Except),
		sink:          opt.Sink,
		emitNoMatch:   opt.EmitNoMatch,
	}
	r.mu.Lock()
	r.watches[id] = w
	r.mu.Unlock()
}

// Unregister removes a watch by id.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.watches, id)
	r.mu.Unlock()
}

// Dispatch filters ev against every registered watch, emitting a Changed response on each matching watch's sink.
func (r *Registry) Dispatch(ev Event) {
	r.mu.RLock()
	matches := make([]*watch, 0, len(r.watches))
	for _, w := range r.watches {
		if w.allows(ev.Kind) && w.contains(ev.Path) {
			matches = append(matches, w)
		}
	}
	r.mu.RUnlock()

	for _, w := range matches {
		_ = w.sink.Send(changedEnvelope(w.id, ev))
	}
}

// DispatchError delivers an error event to every watch on connectionID,
// honouring each watch's emitNoMatch flag when paths is empty or none of
// paths fall within that watch's scope.
func (r *Registry) DispatchError(connectionID string, errEvent ErrorEvent) {
	r.mu.RLock()
	matches := make([]*watch, 0)
	for _, w := range r.watches {
		if w.connectionID != connectionID {
			continue
		}
		if len(errEvent.Paths) == 0 {
			if w.emitNoMatch {
				matches = append(matches, w)
			}
			continue
		}
		hit := false
		for _, p := range errEvent.Paths {
			if w.contains(p) {
				hit = true
				break
			}
		}
		if hit || w.emitNoMatch {
			matches = append(matches, w)
		}
	}
	r.mu.RUnlock()

	for _, w := range matches {
		_ = w.sink.Send(errorEnvelope(w.id, errEvent))
	}
}

func changedEnvelope(watchID string, ev Event) proto.Envelope {
	cmd, _ := proto.Encode("changed", struct {
		WatchID string `cbor:"watch_id"`
		Kind    string `cbor:"kind"`
		Path    string `cbor:"path"`
	}{WatchID: watchID, Kind: string(ev.Kind), Path: ev.Path})
	return proto.Envelope{ID: proto.NewID(), Payload: proto.NewSingle(cmd)}
}

func errorEnvelope(watchID string, errEvent ErrorEvent) proto.Envelope {
	cmd, _ := proto.Encode("watch_error", struct {
		WatchID string   `cbor:"watch_id"`
		Message string   `cbor:"message"`
		Paths   []string `cbor:"paths,omitempty"`
	}{WatchID: watchID, Message: errEvent.Message, Paths: errEvent.Paths})
	return proto.Envelope{ID: proto.NewID(), Payload: proto.NewSingle(cmd)}
}
