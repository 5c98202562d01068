package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		[]byte("hi"),
		make([]byte, 4096),
	}
	for _, payload := range cases {
		buf := Write(Frame(payload), nil)
		got, consumed, ok := Read(buf)
		require.True(t, ok)
		require.Equal(t, len(buf), consumed)
		require.Equal(t, Frame(payload), got)
	}
}

func TestReadPartialFrame(t *testing.T) {
	buf := Write(Frame([]byte("hello world")), nil)
	_, _, ok := Read(buf[:HeaderLen+3])
	require.False(t, ok)

	_, _, ok = Read(buf[:HeaderLen-1])
	require.False(t, ok)
}

func TestReadAdvancesPastOneFrameOnly(t *testing.T) {
	var buf []byte
	buf = Write(Frame([]byte("a")), buf)
	buf = Write(Frame([]byte("bb")), buf)

	f1, n1, ok := Read(buf)
	require.True(t, ok)
	require.Equal(t, Frame("a"), f1)

	f2, n2, ok := Read(buf[n1:])
	require.True(t, ok)
	require.Equal(t, Frame("bb"), f2)
	require.Equal(t, len(buf), n1+n2)
}

func TestReadClaimedInvalidData(t *testing.T) {
	_, _, err := ReadClaimed([]byte{0, 0, 0})
	require.Error(t, err)
}
