// Package codec implements a small set of composable transforms applied to
// a frame's bytes before it hits the wire.
// The chaining idiom (outer transforms first on encode, last on decode)
// mirrors the way katzenpost layers frame encryption under stream framing
// in stream/stream.go, generalized here into an explicit Chain type instead
// of being inlined into one Stream method.
package codec

import "github.com/kestrelsys/rexec/wire/frame"

// Type names a codec for handshake negotiation.
type Type string

const (
	TypeNone        Type = "none"
	TypeZlib        Type = "zlib"
	TypeChaCha20P1305 Type = "x25519-chacha20poly1305"
)

// Codec transforms a frame on encode and reverses the transform on decode.
type Codec interface {
	Encode(f frame.Frame) (frame.Frame, error)
	Decode(f frame.Frame) (frame.Frame, error)
	Name() Type
}

// Plain is the identity codec, in effect before the handshake completes
//.
type Plain struct{}

func (Plain) Encode(f frame.Frame) (frame.Frame, error) { return f, nil }
func (Plain) Decode(f frame.Frame) (frame.Frame, error) { return f, nil }
func (Plain) Name() Type                                { return TypeNone }

// Chain composes two codecs: encode runs inner after outer; decode reverses
// the order: encode = inner.encode(outer.encode(frame)); decode =
// outer.decode(inner.decode(frame)).
type Chain struct {
	Outer Codec
	Inner Codec
}

func NewChain(outer, inner Codec) Chain {
	return Chain{Outer: outer, Inner: inner}
}

func (c Chain) Encode(f frame.Frame) (frame.Frame, error) {
	out, err := c.Outer.Encode(f)
	if err != nil {
		return nil, err
	}
	return c.Inner.Encode(out)
}

func (c Chain) Decode(f frame.Frame) (frame.Frame, error) {
	in, err := c.Inner.Decode(f)
	if err != nil {
		return nil, err
	}
	return c.Outer.Decode(in)
}

func (c Chain) Name() Type {
	if c.Outer.Name() == TypeNone {
		return c.Inner.Name()
	}
	if c.Inner.Name() == TypeNone {
		return c.Outer.Name()
	}
	return Type(string(c.Outer.Name()) + "+" + string(c.Inner.Name()))
}

// Build constructs the negotiated chain: Chain(encryption, compression) if
// both are present, else whichever exists, else Plain.
// encryption is nil if no encryption was negotiated; compression is nil if no
// compression was negotiated.
func Build(encryption, compression Codec) Codec {
	switch {
	case encryption != nil && compression != nil:
		return NewChain(encryption, compression)
	case encryption != nil:
		return encryption
	case compression != nil:
		return compression
	default:
		return Plain{}
	}
}
