package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelsys/rexec/wire/codec"
	"github.com/kestrelsys/rexec/wire/frame"
)

func TestWriteReadFrameOverPipe(t *testing.T) {
	a, b := net.Pipe()
	ta := New(a, 4096)
	tb := New(b, 4096)
	defer ta.Close()
	defer tb.Close()

	done := make(chan error, 1)
	go func() {
		done <- ta.WriteFrame(frame.Frame("hello"))
	}()

	got, err := tb.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, frame.Frame("hello"), got)
	require.NoError(t, <-done)
}

func TestCleanEOFReturnsNilFrame(t *testing.T) {
	a, b := net.Pipe()
	tb := New(b, 4096)
	defer tb.Close()

	go a.Close()

	f, err := tb.ReadFrame()
	require.NoError(t, err)
	require.Nil(t, f)
}

func TestTryReadFrameWouldBlock(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	tb := New(b, 4096)
	defer tb.Close()

	time.Sleep(10 * time.Millisecond)
	_, err := tb.TryReadFrame()
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestStateWatcherObservesTransitions(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	ta := New(a, 4096)

	require.Equal(t, StatePlain, ta.States().State())
	sub := ta.States().Subscribe()

	ta.SetCodec(codec.Plain{})
	require.Equal(t, StateSecured, <-sub)
	require.Equal(t, StateSecured, ta.States().State())

	require.NoError(t, ta.Close())
	require.Equal(t, StateClosed, <-sub)
}
