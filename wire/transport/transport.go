// Package transport implements a framed transport: buffered read/write of
// frames over an underlying byte stream, with
// backpressure and a replaceable codec chain installed atomically by the
// handshake. It generalizes the ad hoc buffered length-prefixed I/O the
// teacher inlines into stream/stream.go's readFrame/txFrame and
// client2/connection.go's wire.Session into its own reusable type.
package transport

import (
	"errors"
	"io"
	"sync"

	"github.com/kestrelsys/rexec/internal/logging"
	"github.com/kestrelsys/rexec/internal/worker"
	"github.com/kestrelsys/rexec/rerrors"
	"github.com/kestrelsys/rexec/wire/codec"
	"github.com/kestrelsys/rexec/wire/frame"
)

// DefaultBufferSize is the initial capacity for incoming/outgoing byte
// buffers, used when a caller does not override it.
const DefaultBufferSize = 64 * 1024

// State is one point in a transport's lifecycle, broadcast to any
// StateWatcher subscriber.
type State int

const (
	// StatePlain is the state from New until a codec is installed by the
	// handshake.
	StatePlain State = iota
	// StateSecured is entered once SetCodec installs the negotiated codec.
	StateSecured
	// StateClosed is entered once Close has torn the transport down.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePlain:
		return "plain"
	case StateSecured:
		return "secured"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateWatcher broadcasts a transport's lifecycle transitions to any number
// of independent observers (reconnect policy, metrics, a CLI), generalizing
// katzenpost's single OnConnFn callback (client2/connection.go's
// onConnStatusChange) into a fan-out a caller can Subscribe to more than
// once.
type StateWatcher struct {
	mu       sync.Mutex
	state    State
	watchers []chan State
}

func newStateWatcher() *StateWatcher {
	return &StateWatcher{}
}

// Subscribe returns a channel that receives every subsequent state
// transition, buffered by one slot so a slow consumer cannot block the
// transport; a value already current when Subscribe is called is not
// replayed. The channel is never closed; stop reading from it once no
// longer interested.
func (w *StateWatcher) Subscribe() <-chan State {
	ch := make(chan State, 1)
	w.mu.Lock()
	w.watchers = append(w.watchers, ch)
	w.mu.Unlock()
	return ch
}

// State returns the current state.
func (w *StateWatcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *StateWatcher) set(s State) {
	w.mu.Lock()
	w.state = s
	watchers := w.watchers
	w.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- s:
		default:
			// Drop the stale pending value and replace it so a slow
			// subscriber still observes the latest state, never a stall.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// ErrWouldBlock is returned by the Try* methods when no complete frame (or
// write capacity) is currently available, without that being an error
// condition for the caller.
var ErrWouldBlock = rerrors.New(rerrors.WouldBlock, "transport: operation would block")

var log = logging.New("wire/transport")

type readResult struct {
	data []byte
	err  error
}

// T is a framed transport over an underlying byte stream. A T must not be
// shared between a reader and a writer that both mutate its codec
// concurrently; SetCodec is expected to be called only while no
// concurrent ReadFrame/WriteFrame is in flight, i.e. during the handshake.
type T struct {
	worker.Worker

	conn   io.ReadWriteCloser
	bufCap int

	codecMu sync.RWMutex
	cdc     codec.Codec

	incomingMu sync.Mutex
	incoming   []byte
	readCh     chan readResult
	readOnce   sync.Once

	writeMu  sync.Mutex
	outgoing []byte

	states *StateWatcher
}

// New wraps conn in a framed transport. The transport starts with the Plain
// codec; frames are sent and received unencrypted until a handshake
// installs the negotiated codec via SetCodec.
func New(conn io.ReadWriteCloser, bufCap int) *T {
	if bufCap <= 0 {
		bufCap = DefaultBufferSize
	}
	return &T{
		conn:   conn,
		bufCap: bufCap,
		cdc:    codec.Plain{},
		readCh: make(chan readResult, 1),
		states: newStateWatcher(),
	}
}

// States returns the transport's state watcher, for observers (reconnect
// policy, metrics, a CLI) that want to react to handshake completion or
// teardown independently of the connection's request/response flow.
func (t *T) States() *StateWatcher {
	return t.states
}

func (t *T) startReader() {
	t.readOnce.Do(func() {
		t.Go(func() {
			defer t.Done()
			for {
				buf := make([]byte, t.bufCap)
				n, err := t.conn.Read(buf)
				select {
				case t.readCh <- readResult{data: buf[:n], err: err}:
				case <-t.HaltCh():
					return
				}
				if err != nil {
					return
				}
			}
		})
	})
}

// Codec returns the currently installed codec.
func (t *T) Codec() codec.Codec {
	t.codecMu.RLock()
	defer t.codecMu.RUnlock()
	return t.cdc
}

// SetCodec atomically replaces the transport's codec, as required after a
// successful handshake. Both the
// incoming and outgoing byte buffers are cleared so the new codec never
// sees bytes framed under the old one; on failure to install (none here,
// but kept symmetrical with the handshake's own rollback) the caller should
// simply not call SetCodec and keep using the prior instance.
func (t *T) SetCodec(c codec.Codec) {
	t.codecMu.Lock()
	t.cdc = c
	t.codecMu.Unlock()

	t.incomingMu.Lock()
	t.incoming = nil
	t.incomingMu.Unlock()

	t.writeMu.Lock()
	t.outgoing = nil
	t.writeMu.Unlock()

	log.Debugf("codec replaced with %s; buffers cleared", c.Name())
	t.states.set(StateSecured)
}

// TryReadFrame attempts to decode one frame without blocking on the
// underlying connection beyond bytes already queued by the background
// reader. It returns ErrWouldBlock when no complete frame is available yet;
// (nil, nil) on clean end-of-stream with nothing buffered; and
// UnexpectedEof if a partial frame remains at clean EOF.
func (t *T) TryReadFrame() (frame.Frame, error) {
	t.startReader()

	t.incomingMu.Lock()
	defer t.incomingMu.Unlock()

	if f, ok, err := t.decodeBuffered(); err != nil || ok {
		return f, err
	}

	select {
	case r := <-t.readCh:
		return t.absorb(r)
	default:
		return nil, ErrWouldBlock
	}
}

// ReadFrame blocks until a frame is available, the stream ends cleanly, or
// an error occurs. It loops around TryReadFrame using the background
// reader's channel as its readiness signal.
func (t *T) ReadFrame() (frame.Frame, error) {
	t.startReader()
	for {
		f, err := t.TryReadFrame()
		if err == nil {
			return f, nil
		}
		if errors.Is(err, ErrWouldBlock) || (func() bool { k, ok := rerrors.As(err); return ok && k.Kind == rerrors.WouldBlock })() {
			t.incomingMu.Lock()
			// Nothing decodable yet; block for the next chunk.
			select {
			case r := <-t.readCh:
				f2, err2 := t.absorb(r)
				t.incomingMu.Unlock()
				if err2 == nil || !isWouldBlock(err2) {
					return f2, err2
				}
				continue
			case <-t.HaltCh():
				t.incomingMu.Unlock()
				return nil, rerrors.New(rerrors.ConnectionAborted, "transport: halted")
			}
		}
		return f, err
	}
}

func isWouldBlock(err error) bool {
	k, ok := rerrors.As(err)
	return ok && k.Kind == rerrors.WouldBlock
}

// decodeBuffered tries to pull one wire frame out of t.incoming and decode
// it through the current codec. Caller must hold incomingMu.
func (t *T) decodeBuffered() (frame.Frame, bool, error) {
	raw, consumed, ok := frame.Read(t.incoming)
	if !ok {
		return nil, false, nil
	}
	t.incoming = t.incoming[consumed:]
	app, err := t.Codec().Decode(raw)
	if err != nil {
		return nil, true, rerrors.Wrap(rerrors.InvalidData, err)
	}
	return app, true, nil
}

// absorb merges a background-reader result into the incoming buffer and
// attempts one decode. Caller must hold incomingMu.
func (t *T) absorb(r readResult) (frame.Frame, error) {
	t.incoming = append(t.incoming, r.data...)
	if f, ok, err := t.decodeBuffered(); err != nil || ok {
		return f, err
	}
	if r.err != nil {
		if r.err == io.EOF {
			if len(t.incoming) > 0 {
				return nil, rerrors.New(rerrors.UnexpectedEof, "transport: partial frame at clean EOF")
			}
			return nil, nil
		}
		return nil, rerrors.Wrap(rerrors.Io, r.err)
	}
	return nil, ErrWouldBlock
}

// TryWriteFrame encodes f, appends it to the outgoing buffer, and flushes as
// many bytes as the underlying connection accepts in one Write call. A
// zero-length write against a non-empty outgoing buffer is fatal
// (WriteZero).
func (t *T) TryWriteFrame(f frame.Frame) error {
	payload, err := t.Codec().Encode(f)
	if err != nil {
		return rerrors.Wrap(rerrors.InvalidData, err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.outgoing = frame.Write(payload, t.outgoing)
	return t.tryFlushLocked()
}

// WriteFrame encodes f and blocks until the entire frame (and anything else
// queued) has been written out.
func (t *T) WriteFrame(f frame.Frame) error {
	payload, err := t.Codec().Encode(f)
	if err != nil {
		return rerrors.Wrap(rerrors.InvalidData, err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.outgoing = frame.Write(payload, t.outgoing)
	for len(t.outgoing) > 0 {
		if err := t.flushLocked(); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes out as much of the outgoing buffer as the connection accepts
// right now.
func (t *T) Flush() error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.flushLocked()
}

// tryFlushLocked performs a single, non-looping write attempt, consuming as
// many outgoing bytes as the connection accepts right now.
func (t *T) tryFlushLocked() error {
	if len(t.outgoing) == 0 {
		return nil
	}
	n, err := t.conn.Write(t.outgoing)
	if n > 0 {
		t.outgoing = t.outgoing[n:]
	}
	if err != nil {
		return rerrors.Wrap(rerrors.Io, err)
	}
	if n == 0 {
		return rerrors.New(rerrors.WriteZero, "transport: write accepted zero bytes on non-empty buffer")
	}
	return nil
}

func (t *T) flushLocked() error {
	for len(t.outgoing) > 0 {
		n, err := t.conn.Write(t.outgoing)
		if n > 0 {
			t.outgoing = t.outgoing[n:]
		}
		if err != nil {
			return rerrors.Wrap(rerrors.Io, err)
		}
		if n == 0 {
			return rerrors.New(rerrors.WriteZero, "transport: write accepted zero bytes on non-empty buffer")
		}
	}
	return nil
}

// Close shuts down the background reader and closes the underlying
// connection.
func (t *T) Close() error {
	err := t.conn.Close()
	t.Halt()
	t.states.set(StateClosed)
	return err
}
