// Package replyqueue implements the server-side reply discipline: a reply
// sink that can be switched into a queued mode which buffers outbound
// envelopes until Flush, with SendBefore placing a message ahead of
// anything already queued. This lets a spawn handler's streamed
// stdout/stderr be produced before its ProcSpawned acknowledgement is
// actually sent, without the client ever observing them out of order. The
// buffering idiom is grounded on katzenpost's go.mod dependency on
// gopkg.in/eapache/channels.v1, which the katzenpost clients use for
// unbounded/ring-buffered channel semantics; here it is realized as an
// explicit front-pushable deque (container/list) rather than a generic
// channel, since SendBefore needs a stable, mutable head.
package replyqueue

import (
	"container/list"
	"sync"

	"github.com/kestrelsys/rexec/proto"
	"github.com/kestrelsys/rexec/rerrors"
)

// Sink is the underlying destination a flushed/unqueued envelope is written
// to — typically a connection's framed transport.
type Sink interface {
	Send(e proto.Envelope) error
}

// ReplyQueue is a single connection's outbound reply channel. The zero
// value is not usable; construct with New.
type ReplyQueue struct {
	mu     sync.Mutex
	sink   Sink
	queued bool
	buf    *list.List
}

// New returns a reply queue in immediate (non-queued) mode: Send writes
// straight through to sink.
func New(sink Sink) *ReplyQueue {
	return &ReplyQueue{sink: sink, buf: list.New()}
}

// Clone returns a handle to the same underlying queue: envelopes sent on a
// clone interleave, in send order, with envelopes sent on the original
//. Because ReplyQueue's state lives behind a
// pointer and a mutex, Clone is simply a copy of that pointer.
func (q *ReplyQueue) Clone() *ReplyQueue { return q }

// Queued switches q into queued mode, where subsequent Sends buffer rather
// than write through, until Flush is called. Returns q for
// chaining, matching the "handler takes the queued reply" idiom above.
func (q *ReplyQueue) Queued() *ReplyQueue {
	q.mu.Lock()
	q.queued = true
	q.mu.Unlock()
	return q
}

// Send delivers e, buffering it if q is in queued mode or writing it
// straight to the sink otherwise.
func (q *ReplyQueue) Send(e proto.Envelope) error {
	q.mu.Lock()
	if q.queued {
		q.buf.PushBack(e)
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()
	return q.sink.Send(e)
}

// SendBefore places e ahead of anything already buffered: it
// requires queued mode, since the whole point is to let a message overtake
// output buffered earlier in the same handler invocation. O(1) via the
// underlying list's front-push.
func (q *ReplyQueue) SendBefore(e proto.Envelope) error {
	q.mu.Lock()
	if !q.queued {
		q.mu.Unlock()
		return rerrors.New(rerrors.Other, "replyqueue: SendBefore requires queued mode")
	}
	q.buf.PushFront(e)
	q.mu.Unlock()
	return nil
}

// Flush drains the buffer into the sink in order (front to back) and
// returns q to immediate mode.
func (q *ReplyQueue) Flush() error {
	// Holding mu while draining keeps a concurrent immediate-mode Send from
	// reaching the sink ahead of the buffered envelopes.
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := q.buf
	q.buf = list.New()
	q.queued = false

	for e := pending.Front(); e != nil; e = e.Next() {
		if err := q.sink.Send(e.Value.(proto.Envelope)); err != nil {
			return err
		}
	}
	return nil
}
