// Package procreg implements the process registry: a process id →
// routing-handle map that lets incoming ProcStdin/ProcKill/ProcResizePty
// requests reach the right spawned process. It is modeled on rexec's
// postoffice routing map (postoffice.PostOffice), narrowed from "any
// origin id → mailbox" to the process-specific handle the dispatcher
// needs, and guarded by a read-write lock: reads (routing) under RLock,
// mutations under Lock.
package procreg

import (
	"sync"

	"github.com/kestrelsys/rexec/rerrors"
)

// Handle is what the registry stores for one live process: the channels a
// router uses to forward stdin bytes, a kill signal, and (for PTY-backed
// processes) a resize request. ResizeCh is nil for non-PTY processes.
type Handle struct {
	StdinCh  chan<- []byte
	KillCh   chan<- struct{}
	ResizeCh chan<- ResizeRequest
}

// ResizeRequest carries a new PTY size.
type ResizeRequest struct {
	Cols uint16
	Rows uint16
}

// Registry is the process id → Handle map. The zero value is not usable;
// construct with New.
type Registry struct {
	mu      sync.RWMutex
	handles map[uint64]Handle
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{handles: make(map[uint64]Handle)}
}

// Insert registers h under id, overwriting any previous entry. Called on
// successful process spawn.
func (r *Registry) Insert(id uint64, h Handle) {
	r.mu.Lock()
	r.handles[id] = h
	r.mu.Unlock()
}

// Remove unregisters id. Called on process exit or kill.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	delete(r.handles, id)
	r.mu.Unlock()
}

// CleanupFunc removes id's entry when a spawned process exits.
type CleanupFunc func()

// MakeCleanup returns the cleanup closure spawn hands to the process
// multiplexer. Unlike postoffice's reaper, which this registry
// is otherwise grounded on, a cleanup closure is handed out once per process
// and must outlive nothing beyond that one process's lifetime, so it is
// simply a bound method value rather than needing its own weak-reference
// discipline: it cannot resurrect or prolong the registry any more than the
// multiplexer goroutine already calling it does.
func (r *Registry) MakeCleanup(id uint64) CleanupFunc {
	return func() { r.Remove(id) }
}

// lookup returns id's handle, or a routing error: NotFound if id was never
// registered, or was already removed.
func (r *Registry) lookup(id uint64) (Handle, error) {
	r.mu.RLock()
	h, ok := r.handles[id]
	r.mu.RUnlock()
	if !ok {
		return Handle{}, rerrors.New(rerrors.NotFound, "procreg: no such process %d", id)
	}
	return h, nil
}

// SendStdin routes data to id's stdin channel. A send on a closed or absent
// channel surfaces as BrokenPipe.
func (r *Registry) SendStdin(id uint64, data []byte) error {
	h, err := r.lookup(id)
	if err != nil {
		return err
	}
	if h.StdinCh == nil {
		return rerrors.New(rerrors.BrokenPipe, "procreg: process %d has no stdin", id)
	}
	return sendOrBrokenPipe(h.StdinCh, data)
}

// Kill routes a kill signal to id.
func (r *Registry) Kill(id uint64) error {
	h, err := r.lookup(id)
	if err != nil {
		return err
	}
	if h.KillCh == nil {
		return rerrors.New(rerrors.BrokenPipe, "procreg: process %d has no kill channel", id)
	}
	return sendOrBrokenPipe(h.KillCh, struct{}{})
}

// Resize routes a PTY resize request to id. Returns Unsupported if id was
// not spawned with a PTY.
func (r *Registry) Resize(id uint64, req ResizeRequest) error {
	h, err := r.lookup(id)
	if err != nil {
		return err
	}
	if h.ResizeCh == nil {
		return rerrors.New(rerrors.Unsupported, "procreg: process %d has no pty", id)
	}
	return sendOrBrokenPipe(h.ResizeCh, req)
}

// sendOrBrokenPipe performs a non-blocking-aware send that distinguishes a
// closed receiver (panics on send) from ordinary success, reporting the
// former as BrokenPipe rather than propagating the panic.
func sendOrBrokenPipe[T any](ch chan<- T, v T) (err error) {
	defer func() {
		if recover() != nil {
			err = rerrors.New(rerrors.BrokenPipe, "procreg: channel closed")
		}
	}()
	ch <- v
	return nil
}
