package codec

import (
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrelsys/rexec/wire/frame"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := io.ReadFull(rand.Reader, key)
	require.NoError(t, err)
	return key
}

func TestPlainRoundTrip(t *testing.T) {
	f := frame.Frame("hello")
	var p Plain
	enc, err := p.Encode(f)
	require.NoError(t, err)
	dec, err := p.Decode(enc)
	require.NoError(t, err)
	require.Equal(t, f, dec)
}

func TestZlibRoundTrip(t *testing.T) {
	z := NewZlib(0)
	f := frame.Frame("the quick brown fox jumps over the lazy dog, repeatedly, repeatedly, repeatedly")
	enc, err := z.Encode(f)
	require.NoError(t, err)
	dec, err := z.Decode(enc)
	require.NoError(t, err)
	require.Equal(t, f, dec)
}

func TestAEADRoundTripAndTamperDetection(t *testing.T) {
	key := randomKey(t)
	a, err := NewAEAD(key)
	require.NoError(t, err)

	f := frame.Frame("secret payload")
	enc, err := a.Encode(f)
	require.NoError(t, err)
	dec, err := a.Decode(enc)
	require.NoError(t, err)
	require.Equal(t, f, dec)

	tampered := append(frame.Frame{}, enc...)
	tampered[len(tampered)-1] ^= 0xFF
	_, err = a.Decode(tampered)
	require.Error(t, err)
}

func TestAEADNoncesAreUnique(t *testing.T) {
	key := randomKey(t)
	a, err := NewAEAD(key)
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		enc, err := a.Encode(frame.Frame("same plaintext every time"))
		require.NoError(t, err)
		nonce := string(enc[:24])
		require.False(t, seen[nonce], "nonce reused")
		seen[nonce] = true
	}
}

func TestChainEncodeDecodeOrder(t *testing.T) {
	key := randomKey(t)
	enc, err := NewAEAD(key)
	require.NoError(t, err)
	z := NewZlib(0)

	chain := Build(enc, z)
	f := frame.Frame("encrypt then compress on the way out")
	wire, err := chain.Encode(f)
	require.NoError(t, err)
	got, err := chain.Decode(wire)
	require.NoError(t, err)
	require.Equal(t, f, got)

	// The outer (encryption) codec runs first on encode, so the wire bytes
	// are the inner (compression) codec's output.
	inner, err := z.Decode(wire)
	require.NoError(t, err)
	plain, err := enc.Decode(inner)
	require.NoError(t, err)
	require.Equal(t, f, plain)
}

func TestBuildPicksPlainWhenNeitherNegotiated(t *testing.T) {
	c := Build(nil, nil)
	require.Equal(t, TypeNone, c.Name())
}
