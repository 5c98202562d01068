package main

import (
	"context"
	"net"

	"github.com/kestrelsys/rexec/internal/metrics"
	"github.com/kestrelsys/rexec/proto"
	"github.com/kestrelsys/rexec/server/dispatch"
	"github.com/kestrelsys/rexec/server/replyqueue"
	"github.com/kestrelsys/rexec/wire/codec"
	"github.com/kestrelsys/rexec/wire/frame"
	"github.com/kestrelsys/rexec/wire/handshake"
	"github.com/kestrelsys/rexec/wire/transport"
)

// envelopeSink adapts a framed transport into replyqueue.Sink by marshaling
// each outgoing envelope to CBOR and handing it to the transport as one
// frame.
type envelopeSink struct {
	t       *transport.T
	metrics *metrics.Sink
}

func (s *envelopeSink) Send(e proto.Envelope) error {
	b, err := e.Marshal()
	if err != nil {
		return err
	}
	if err := s.t.WriteFrame(frame.Frame(b)); err != nil {
		return err
	}
	s.metrics.IncFramesWritten()
	return nil
}

// handleConn runs one connection end to end: handshake, then a blocking
// read loop that decodes and dispatches each incoming envelope in turn
//. A
// request's own handler may still do long-running, concurrent work (a
// spawned process, a filesystem watch) that streams further output through
// the reply queue independently of this loop.
func (s *server) handleConn(ctx context.Context, conn net.Conn) {
	connID := conn.RemoteAddr().String()
	t := transport.New(conn, transport.DefaultBufferSize)
	defer t.Close()

	result, err := handshake.RunResponder(t, handshake.Capabilities{
		CompressionTypes: []codec.Type{codec.TypeZlib},
		EncryptionTypes:  []codec.Type{codec.TypeChaCha20P1305},
	})
	if err != nil {
		log.Warnf("connection %s: handshake failed: %v", connID, err)
		return
	}
	t.SetCodec(result.Codec)

	reply := replyqueue.New(&envelopeSink{t: t, metrics: s.metrics})
	connCtx := dispatch.Context{Context: ctx, ConnectionID: connID, Reply: reply}

	if err := s.dispatcher.OnConnect(connCtx); err != nil {
		log.Warnf("connection %s: rejected by handler: %v", connID, err)
		return
	}
	defer s.dispatcher.OnDisconnect(connCtx)

	log.Infof("connection %s established", connID)
	for {
		f, err := t.ReadFrame()
		if err != nil {
			log.Debugf("connection %s: read loop ending: %v", connID, err)
			return
		}
		if f == nil {
			return // clean EOF
		}
		s.metrics.IncFramesRead()

		var env proto.Envelope
		if err := proto.Unmarshal(f, &env); err != nil {
			log.Warnf("connection %s: malformed envelope: %v", connID, err)
			continue
		}

		// Dispatched synchronously, one request at a time: Dispatch's
		// queued-mode toggle on the connection's shared reply queue is not
		// safe to run concurrently across requests (only its own internal
		// batch fan-out clones the queue for concurrent handler calls).
		// Response order therefore follows request arrival order, with any slow handler's own goroutine-backed work (e.g.
		// a running process) continuing to stream through the reply queue
		// after Dispatch itself has returned.
		reqCtx := dispatch.Context{Context: ctx, ConnectionID: connID, Reply: reply}
		s.dispatcher.Dispatch(reqCtx, env)
	}
}
