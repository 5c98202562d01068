package procreg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrelsys/rexec/rerrors"
)

func TestSendStdinRoutesToRegisteredProcess(t *testing.T) {
	r := New()
	stdin := make(chan []byte, 1)
	r.Insert(1, Handle{StdinCh: stdin})

	require.NoError(t, r.SendStdin(1, []byte("hi")))
	require.Equal(t, []byte("hi"), <-stdin)
}

func TestRoutingUnknownIDIsNotFound(t *testing.T) {
	r := New()
	err := r.SendStdin(99, []byte("x"))
	e, ok := rerrors.As(err)
	require.True(t, ok)
	require.Equal(t, rerrors.NotFound, e.Kind)
}

func TestSendAfterRemoveIsNotFound(t *testing.T) {
	r := New()
	stdin := make(chan []byte, 1)
	r.Insert(1, Handle{StdinCh: stdin})
	r.Remove(1)

	err := r.SendStdin(1, []byte("x"))
	e, ok := rerrors.As(err)
	require.True(t, ok)
	require.Equal(t, rerrors.NotFound, e.Kind)
}

func TestSendOnClosedChannelIsBrokenPipe(t *testing.T) {
	r := New()
	stdin := make(chan []byte)
	close(stdin)
	r.Insert(1, Handle{StdinCh: stdin})

	err := r.SendStdin(1, []byte("x"))
	e, ok := rerrors.As(err)
	require.True(t, ok)
	require.Equal(t, rerrors.BrokenPipe, e.Kind)
}

func TestResizeWithoutPtyIsUnsupported(t *testing.T) {
	r := New()
	r.Insert(1, Handle{StdinCh: make(chan []byte, 1)})

	err := r.Resize(1, ResizeRequest{Cols: 80, Rows: 24})
	e, ok := rerrors.As(err)
	require.True(t, ok)
	require.Equal(t, rerrors.Unsupported, e.Kind)
}

func TestKillRoutesToRegisteredProcess(t *testing.T) {
	r := New()
	kill := make(chan struct{}, 1)
	r.Insert(7, Handle{KillCh: kill})

	require.NoError(t, r.Kill(7))
	<-kill
}
