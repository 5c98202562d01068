// Package worker provides the Halt/HaltCh/Go/Done task-lifecycle primitive
// that every background loop in rexec embeds: the process multiplexer's
// incoming/outgoing loops, the filesystem watch source, the post office
// reaper, the transport's background reader, spawned-process I/O loops,
// and running searches. It is modeled on katzenpost's
// core/worker.Worker, which client2.connection, client2.ARQ, stream.Stream,
// and server/cborplugin.Client all embed by value to get Go/Halt/HaltCh.
package worker

import "sync"

// Worker is embedded by value into any type that runs background goroutines
// which must be cleanly torn down on Halt.
type Worker struct {
	haltOnce sync.Once
	haltCh   chan struct{}
	wg       sync.WaitGroup
	initOnce sync.Once
}

func (w *Worker) init() {
	w.initOnce.Do(func() {
		w.haltCh = make(chan struct{})
	})
}

// HaltCh returns the channel closed by Halt; loops select on it to notice
// shutdown.
func (w *Worker) HaltCh() <-chan struct{} {
	w.init()
	return w.haltCh
}

// Go launches fn as a tracked goroutine. fn is responsible for returning
// promptly once HaltCh is closed and for calling Done() exactly once before
// it returns, mirroring katzenpost's reader()/writer() loops that call
// s.Done() on their terminal path rather than relying on a deferred wrapper.
func (w *Worker) Go(fn func()) {
	w.init()
	w.wg.Add(1)
	go fn()
}

// Done marks one Go'd goroutine as finished. Safe to call from inside the
// goroutine launched by Go, exactly once.
func (w *Worker) Done() {
	w.wg.Done()
}

// Halt closes HaltCh (idempotently) and blocks until every goroutine started
// via Go has called Done.
func (w *Worker) Halt() {
	w.init()
	w.haltOnce.Do(func() {
		close(w.haltCh)
	})
	w.wg.Wait()
}

// Halted reports whether Halt has been called.
func (w *Worker) Halted() bool {
	w.init()
	select {
	case <-w.haltCh:
		return true
	default:
		return false
	}
}
