package handshake

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrelsys/rexec/wire/codec"
	"github.com/kestrelsys/rexec/wire/transport"
)

func pipeTransports(t *testing.T) (*transport.T, *transport.T) {
	t.Helper()
	a, b := net.Pipe()
	return transport.New(a, transport.DefaultBufferSize), transport.New(b, transport.DefaultBufferSize)
}

func TestHandshakeNegotiatesPreferredEncryption(t *testing.T) {
	respT, initT := pipeTransports(t)

	resultCh := make(chan *Result, 1)
	errCh := make(chan error, 1)
	go func() {
		r, err := RunResponder(respT, Capabilities{
			EncryptionTypes: []codec.Type{"x25519-aead-a", codec.TypeChaCha20P1305},
		})
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- r
	}()

	initResult, err := RunInitiator(initT, Preferences{PreferredEncryption: codec.TypeChaCha20P1305})
	require.NoError(t, err)

	select {
	case err := <-errCh:
		t.Fatalf("responder failed: %v", err)
	case respResult := <-resultCh:
		require.Equal(t, codec.TypeChaCha20P1305, initResult.Codec.Name())
		require.Equal(t, codec.TypeChaCha20P1305, respResult.Codec.Name())

		// S3: a frame encrypted on one side decrypts on the other, and any
		// tampered byte yields InvalidData.
		f, err := initResult.Codec.Encode([]byte("hello from initiator"))
		require.NoError(t, err)
		dec, err := respResult.Codec.Decode(f)
		require.NoError(t, err)
		require.Equal(t, "hello from initiator", string(dec))

		tampered := append([]byte{}, f...)
		tampered[len(tampered)-1] ^= 0xFF
		_, err = respResult.Codec.Decode(tampered)
		require.Error(t, err)
	}
}

func TestHandshakeUnknownTypesAreInert(t *testing.T) {
	respT, initT := pipeTransports(t)

	resultCh := make(chan *Result, 1)
	go func() {
		r, _ := RunResponder(respT, Capabilities{EncryptionTypes: []codec.Type{"totally-unknown"}})
		resultCh <- r
	}()

	initResult, err := RunInitiator(initT, Preferences{})
	require.NoError(t, err)
	require.Equal(t, codec.TypeNone, initResult.Codec.Name())
	<-resultCh
}
