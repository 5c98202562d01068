// Package procmux implements the client-side remote-process multiplexer:
// issuing a spawn request, awaiting the ProcSpawned acknowledgement, and
// then demultiplexing that process's subsequent ProcStdout/ProcStderr/
// ProcDone messages (delivered through a postoffice mailbox keyed by the
// request's origin id) into separate stdin/stdout/stderr/kill channels. It
// is grounded on katzenpost's worker.Worker background-task pairing
// (stream/stream.go's reader/writer split), generalized from one
// bidirectional network stream into a pair of independent Outgoing/
// Incoming loops, one per direction of a single remote process.
package procmux

import (
	"context"
	"sync"

	"github.com/kestrelsys/rexec/internal/worker"
	"github.com/kestrelsys/rexec/postoffice"
	"github.com/kestrelsys/rexec/proto"
	"github.com/kestrelsys/rexec/rerrors"
)

// Sender is how procmux fires outgoing envelopes (ProcStdin, ProcKill,
// ProcResizePty) onto the shared connection.
type Sender interface {
	Send(e proto.Envelope) error
}

// ResizeRequest carries a new PTY size.
type ResizeRequest struct {
	Cols uint16
	Rows uint16
}

// Outcome is the result of wait(): whether the process succeeded and its
// exit code, if known.
type Outcome struct {
	Success bool
	Code    *int
}

// Process is the client-side handle to one remote process.
type Process struct {
	worker.Worker

	id     uint64
	sender Sender
	mail   *postoffice.Mailbox

	stdinCh  chan []byte
	killCh   chan struct{}
	resizeCh chan ResizeRequest
	stdoutCh chan []byte
	stderrCh chan []byte

	done      chan Outcome
	waitErr   error
	abortd    chan struct{}
	abortOnce sync.Once

	stopCh   chan struct{} // closed by incoming() to tell outgoing() to exit
	stopOnce sync.Once
}

func (p *Process) stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// closeAbort closes abortd exactly once, so both Kill and Abort can call it
// without a double-close panic.
func (p *Process) closeAbort() {
	p.abortOnce.Do(func() { close(p.abortd) })
}

// The following mirror dispatch.ProcStdin/ProcKill/ProcResizePty's wire
// shape; they are redeclared locally rather than imported to avoid a
// dependency cycle between server/dispatch and client/procmux.
type procStdout struct {
	ID   uint64 `cbor:"id"`
	Data []byte `cbor:"data"`
}

type procStderr struct {
	ID   uint64 `cbor:"id"`
	Data []byte `cbor:"data"`
}

type procDone struct {
	ID      uint64 `cbor:"id"`
	Success bool   `cbor:"success"`
	Code    *int   `cbor:"code,omitempty"`
}

type procStdin struct {
	ID   uint64 `cbor:"id"`
	Data []byte `cbor:"data"`
}

type procKill struct {
	ID uint64 `cbor:"id"`
}

type procResizePty struct {
	ID   uint64 `cbor:"id"`
	Cols uint16 `cbor:"cols"`
	Rows uint16 `cbor:"rows"`
}

// New creates the client-side process object for an already-acknowledged
// spawn: id is the process id from ProcSpawned, mail is the mailbox
// registered under the spawn request's origin id, and sender fires outgoing
// envelopes onto the shared connection.
func New(id uint64, sender Sender, mail *postoffice.Mailbox, withResize bool) *Process {
	p := &Process{
		id:       id,
		sender:   sender,
		mail:     mail,
		stdinCh:  make(chan []byte, 16),
		killCh:   make(chan struct{}, 1),
		stdoutCh: make(chan []byte, 16),
		stderrCh: make(chan []byte, 16),
		done:     make(chan Outcome, 1),
		abortd:   make(chan struct{}),
		stopCh:   make(chan struct{}),
	}
	if withResize {
		p.resizeCh = make(chan ResizeRequest, 1)
	}

	p.Go(func() { defer p.Done(); p.outgoing() })
	p.Go(func() { defer p.Done(); p.incoming() })
	return p
}

// Stdin returns the channel writes are sent on; Write wraps the common
// "write bytes to the process" use case.
func (p *Process) Stdin() chan<- []byte { return p.stdinCh }

// Write sends data to the process's stdin, failing with BrokenPipe if the
// process (or this handle) has already been killed/aborted.
func (p *Process) Write(data []byte) error {
	select {
	case <-p.abortd:
		return rerrors.New(rerrors.BrokenPipe, "procmux: process %d stdin closed", p.id)
	default:
	}
	select {
	case p.stdinCh <- data:
		return nil
	case <-p.abortd:
		return rerrors.New(rerrors.BrokenPipe, "procmux: process %d stdin closed", p.id)
	}
}

// Stdout returns the channel stdout chunks are delivered on.
func (p *Process) Stdout() <-chan []byte { return p.stdoutCh }

// Stderr returns the channel stderr chunks are delivered on.
func (p *Process) Stderr() <-chan []byte { return p.stderrCh }

// Resize requests a PTY size change; only valid if the process was spawned
// with a pty.
func (p *Process) Resize(req ResizeRequest) error {
	if p.resizeCh == nil {
		return rerrors.New(rerrors.Unsupported, "procmux: process %d has no pty", p.id)
	}
	select {
	case <-p.abortd:
		return rerrors.New(rerrors.BrokenPipe, "procmux: process %d closed", p.id)
	default:
	}
	select {
	case p.resizeCh <- req:
		return nil
	case <-p.abortd:
		return rerrors.New(rerrors.BrokenPipe, "procmux: process %d closed", p.id)
	}
}

// Kill sends a kill signal; a subsequent Write (or Resize) fails with
// BrokenPipe, since outgoing() exits as soon as it relays the kill and
// nothing would ever drain stdinCh/resizeCh again.
func (p *Process) Kill() {
	select {
	case p.killCh <- struct{}{}:
	default:
	}
	p.closeAbort()
}

// Wait blocks until the process's outcome is known, or ctx is cancelled.
// When the mailbox closes before a ProcDone arrives, the returned error is
// UnexpectedEof.
func (p *Process) Wait(ctx context.Context) (Outcome, error) {
	select {
	case o := <-p.done:
		return o, p.waitErr
	case <-ctx.Done():
		return Outcome{}, rerrors.Wrap(rerrors.TimedOut, ctx.Err())
	}
}

// Abort cancels both background loops; a subsequent Wait reports failure.
func (p *Process) Abort() {
	p.closeAbort()
	p.Halt()
}

// outgoing selects over stdin, kill, and resize, wrapping each into the
// matching wire command and firing it on sender.
func (p *Process) outgoing() {
	for {
		select {
		case data := <-p.stdinCh:
			cmd, _ := proto.Encode("proc_stdin", procStdin{ID: p.id, Data: data})
			_ = p.sender.Send(proto.NewRequest(proto.NewSingle(cmd), nil))
		case <-p.killCh:
			cmd, _ := proto.Encode("proc_kill", procKill{ID: p.id})
			_ = p.sender.Send(proto.NewRequest(proto.NewSingle(cmd), nil))
			return
		case req := <-p.resizeChOrNil():
			cmd, _ := proto.Encode("proc_resize_pty", procResizePty{ID: p.id, Cols: req.Cols, Rows: req.Rows})
			_ = p.sender.Send(proto.NewRequest(proto.NewSingle(cmd), nil))
		case <-p.abortd:
			return
		case <-p.stopCh:
			return
		case <-p.HaltCh():
			return
		}
	}
}

func (p *Process) resizeChOrNil() chan ResizeRequest {
	return p.resizeCh
}

// incoming consumes the mailbox for this process's origin id, routing
// ProcStdout/ProcStderr/ProcDone and reporting UnexpectedEof if the
// mailbox closes before a ProcDone arrives.
func (p *Process) incoming() {
	defer close(p.stdoutCh)
	defer close(p.stderrCh)

	// Halt (via Abort) cancels ctx so a pending mailbox receive returns.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-p.HaltCh():
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		v, ok := p.mail.Next(ctx)
		if !ok {
			p.waitErr = rerrors.New(rerrors.UnexpectedEof, "procmux: mailbox closed before proc_done")
			p.reportDone(Outcome{})
			p.stop()
			return
		}

		env, ok := v.(proto.Envelope)
		if !ok {
			continue
		}
		cmd, err := env.Payload.DecodeSingleCommand()
		if err != nil {
			continue
		}

		switch cmd.Type {
		case "proc_stdout":
			var m procStdout
			if proto.Decode(cmd, &m) == nil {
				p.stdoutCh <- m.Data
			}
		case "proc_stderr":
			var m procStderr
			if proto.Decode(cmd, &m) == nil {
				p.stderrCh <- m.Data
			}
		case "proc_done":
			var m procDone
			if proto.Decode(cmd, &m) == nil {
				p.reportDone(Outcome{Success: m.Success, Code: m.Code})
			}
			p.stop()
			return
		}
	}
}

func (p *Process) reportDone(o Outcome) {
	select {
	case p.done <- o:
	default:
	}
}
