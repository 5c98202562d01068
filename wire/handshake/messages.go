// Package handshake implements the negotiation exchange: two peers
// speaking plain frames agree on a codec chain and, if encryption
// is chosen, derive a shared AEAD key via ephemeral X25519 plus a
// password-based KDF mixing the ECDH output with the XOR of both sides'
// salts. It is grounded on client2/connection.go's wire.Session.Initialize
// handshake call and katzenpost's broader reliance on golang.org/x/crypto
// for key agreement primitives (curve25519, hkdf/pbkdf2 family).
package handshake

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/kestrelsys/rexec/rerrors"
	"github.com/kestrelsys/rexec/wire/codec"
	"github.com/kestrelsys/rexec/wire/frame"
)

// Options is sent by the responder first, advertising its capabilities
//. All three handshake messages are envelope-less raw
// frames in the same CBOR binary format the rest of the wire protocol uses
//.
type Options struct {
	CompressionTypes []codec.Type `cbor:"compression_types"`
	EncryptionTypes  []codec.Type `cbor:"encryption_types"`
}

// Choice is the initiator's reply, selecting at most one compression and one
// encryption type from the advertised Options.
type Choice struct {
	CompressionType  *codec.Type `cbor:"compression_type,omitempty"`
	CompressionLevel *int        `cbor:"compression_level,omitempty"`
	EncryptionType   *codec.Type `cbor:"encryption_type,omitempty"`
}

// KeyExchange carries an ephemeral X25519 public key and a random salt, sent
// by both sides when encryption was chosen.
type KeyExchange struct {
	PublicKey []byte `cbor:"public_key"`
	Salt      []byte `cbor:"salt"`
}

func marshalFrame(v interface{}) (frame.Frame, error) {
	b, err := cbor.Marshal(v)
	if err != nil {
		return nil, rerrors.Wrap(rerrors.InvalidData, err)
	}
	return frame.Frame(b), nil
}

func unmarshalFrame(f frame.Frame, v interface{}) error {
	if err := cbor.Unmarshal(f, v); err != nil {
		return rerrors.Wrap(rerrors.InvalidData, err)
	}
	return nil
}

// FrameReadWriter is the minimal surface the handshake needs from the
// transport: synchronous, blocking plain-frame exchange. wire/transport.T
// satisfies this directly.
type FrameReadWriter interface {
	ReadFrame() (frame.Frame, error)
	WriteFrame(f frame.Frame) error
}
