package procmux

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelsys/rexec/postoffice"
	"github.com/kestrelsys/rexec/proto"
	"github.com/kestrelsys/rexec/rerrors"
)

type recordingSender struct {
	sent chan proto.Envelope
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(chan proto.Envelope, 16)}
}

func (s *recordingSender) Send(e proto.Envelope) error {
	s.sent <- e
	return nil
}

func cmdEnvelope(typ string, v interface{}) proto.Envelope {
	cmd, _ := proto.Encode(typ, v)
	return proto.Envelope{ID: proto.NewID(), Payload: proto.NewSingle(cmd)}
}

func TestProcessRoutesStdoutAndCompletes(t *testing.T) {
	po := postoffice.New(time.Minute)
	defer po.Close()
	mail := po.MakeMailbox("origin-1", 8)

	sender := newRecordingSender()
	p := New(42, sender, mail, false)

	po.Deliver("origin-1", cmdEnvelope("proc_stdout", struct {
		ID   uint64 `cbor:"id"`
		Data []byte `cbor:"data"`
	}{ID: 42, Data: []byte("hi\n")}))

	select {
	case got := <-p.Stdout():
		require.Equal(t, "hi\n", string(got))
	case <-time.After(5 * time.Second):
		t.Fatal("expected stdout chunk")
	}

	po.Deliver("origin-1", cmdEnvelope("proc_done", struct {
		ID      uint64 `cbor:"id"`
		Success bool   `cbor:"success"`
		Code    *int   `cbor:"code,omitempty"`
	}{ID: 42, Success: true, Code: intPtr(0)}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	outcome, err := p.Wait(ctx)
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.Equal(t, 0, *outcome.Code)
}

func TestKillFiresProcKillCommandAndBreaksSubsequentWrite(t *testing.T) {
	po := postoffice.New(time.Minute)
	defer po.Close()
	mail := po.MakeMailbox("origin-2", 8)

	sender := newRecordingSender()
	p := New(7, sender, mail, false)
	require.NoError(t, p.Write([]byte("x")))

	select {
	case env := <-sender.sent:
		cmd, err := env.Payload.DecodeSingleCommand()
		require.NoError(t, err)
		require.Equal(t, "proc_stdin", cmd.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("expected proc_stdin to be sent")
	}

	p.Kill()
	select {
	case env := <-sender.sent:
		cmd, err := env.Payload.DecodeSingleCommand()
		require.NoError(t, err)
		require.Equal(t, "proc_kill", cmd.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("expected proc_kill to be sent")
	}

	// A subsequent write must fail with BrokenPipe rather than silently
	// buffer or block forever: outgoing() has already returned, so nothing
	// drains stdinCh anymore.
	err := p.Write([]byte("y"))
	require.Error(t, err)
	k, ok := rerrors.As(err)
	require.True(t, ok)
	require.Equal(t, rerrors.BrokenPipe, k.Kind)
}

func TestMailboxClosedBeforeDoneIsUnexpectedEof(t *testing.T) {
	po := postoffice.New(time.Minute)
	defer po.Close()
	mail := po.MakeMailbox("origin-3", 8)

	sender := newRecordingSender()
	p := New(9, sender, mail, false)
	mail.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := p.Wait(ctx)
	require.Error(t, err)
}

func intPtr(v int) *int { return &v }
