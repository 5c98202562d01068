package handshake

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/pbkdf2"

	"github.com/kestrelsys/rexec/internal/logging"
	"github.com/kestrelsys/rexec/rerrors"
	"github.com/kestrelsys/rexec/wire/codec"
)

var log = logging.New("wire/handshake")

const (
	saltSize = 32
	// kdfIterations gives the password-based KDF real
	// attacker cost even though its input is an ECDH shared secret rather
	// than a human password. Both sides MUST agree on this constant.
	kdfIterations = 4096
)

// Capabilities is what a responder advertises.
type Capabilities struct {
	CompressionTypes []codec.Type
	EncryptionTypes  []codec.Type
}

// Preferences is what an initiator prefers, consulted by the selection rule
// in step 2: use preferred if listed, otherwise the first non-unknown
// offered, otherwise None.
type Preferences struct {
	PreferredCompression codec.Type
	CompressionLevel     int
	PreferredEncryption  codec.Type
}

// knownCompression/knownEncryption gate "unknown types remain inert": a
// type absent from these sets is never selected even if offered or
// preferred.
var (
	knownCompression = map[codec.Type]bool{codec.TypeZlib: true}
	knownEncryption  = map[codec.Type]bool{codec.TypeChaCha20P1305: true}
)

func selectType(offered []codec.Type, preferred codec.Type, known map[codec.Type]bool) codec.Type {
	if preferred != "" && known[preferred] {
		for _, t := range offered {
			if t == preferred {
				return preferred
			}
		}
	}
	for _, t := range offered {
		if known[t] {
			return t
		}
	}
	return ""
}

// Result is the outcome of a completed handshake: the negotiated codec chain
// ready to replace the transport's current (plain) codec.
type Result struct {
	Codec codec.Codec
}

// RunResponder executes the responder's side of the handshake:
// send Options, receive Choice, optionally exchange keys, and build the
// negotiated chain. On any failure the caller's transport is left
// unmodified; RunResponder never partially installs a codec.
func RunResponder(rw FrameReadWriter, caps Capabilities) (*Result, error) {
	opts := Options{CompressionTypes: caps.CompressionTypes, EncryptionTypes: caps.EncryptionTypes}
	f, err := marshalFrame(opts)
	if err != nil {
		return nil, err
	}
	if err := rw.WriteFrame(f); err != nil {
		return nil, rerrors.Wrap(rerrors.Io, err)
	}

	cf, err := rw.ReadFrame()
	if err != nil {
		return nil, rerrors.Wrap(rerrors.Io, err)
	}
	var choice Choice
	if err := unmarshalFrame(cf, &choice); err != nil {
		return nil, err
	}

	return finishHandshake(rw, choice, false)
}

// RunInitiator executes the initiator's side: receive Options, apply the
// selection rule against prefs, reply with Choice, optionally exchange keys.
func RunInitiator(rw FrameReadWriter, prefs Preferences) (*Result, error) {
	of, err := rw.ReadFrame()
	if err != nil {
		return nil, rerrors.Wrap(rerrors.Io, err)
	}
	var opts Options
	if err := unmarshalFrame(of, &opts); err != nil {
		return nil, err
	}

	choice := Choice{}
	if ct := selectType(opts.CompressionTypes, prefs.PreferredCompression, knownCompression); ct != "" {
		c := ct
		choice.CompressionType = &c
		if prefs.CompressionLevel != 0 {
			lvl := prefs.CompressionLevel
			choice.CompressionLevel = &lvl
		}
	}
	if et := selectType(opts.EncryptionTypes, prefs.PreferredEncryption, knownEncryption); et != "" {
		e := et
		choice.EncryptionType = &e
	}

	cf, err := marshalFrame(choice)
	if err != nil {
		return nil, err
	}
	if err := rw.WriteFrame(cf); err != nil {
		return nil, rerrors.Wrap(rerrors.Io, err)
	}

	return finishHandshake(rw, choice, true)
}

func finishHandshake(rw FrameReadWriter, choice Choice, isInitiator bool) (*Result, error) {
	var compression codec.Codec
	if choice.CompressionType != nil && *choice.CompressionType == codec.TypeZlib {
		level := 0
		if choice.CompressionLevel != nil {
			level = *choice.CompressionLevel
		}
		compression = codec.NewZlib(level)
	}

	var encryption codec.Codec
	if choice.EncryptionType != nil && *choice.EncryptionType == codec.TypeChaCha20P1305 {
		enc, err := exchangeKeys(rw, isInitiator)
		if err != nil {
			log.Warnf("key exchange failed: %v", err)
			return nil, err
		}
		encryption = enc
	}

	return &Result{Codec: codec.Build(encryption, compression)}, nil
}

func exchangeKeys(rw FrameReadWriter, isInitiator bool) (codec.Codec, error) {
	var priv [32]byte
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return nil, rerrors.Wrap(rerrors.Io, err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, rerrors.Wrap(rerrors.InvalidData, err)
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, rerrors.Wrap(rerrors.Io, err)
	}

	mine := KeyExchange{PublicKey: pub, Salt: salt}
	mf, err := marshalFrame(mine)
	if err != nil {
		return nil, err
	}

	var theirs KeyExchange
	// Initiator writes first so both sides don't block on ReadFrame.
	if isInitiator {
		if err := rw.WriteFrame(mf); err != nil {
			return nil, rerrors.Wrap(rerrors.Io, err)
		}
		tf, err := rw.ReadFrame()
		if err != nil {
			return nil, rerrors.Wrap(rerrors.Io, err)
		}
		if err := unmarshalFrame(tf, &theirs); err != nil {
			return nil, err
		}
	} else {
		tf, err := rw.ReadFrame()
		if err != nil {
			return nil, rerrors.Wrap(rerrors.Io, err)
		}
		if err := unmarshalFrame(tf, &theirs); err != nil {
			return nil, err
		}
		if err := rw.WriteFrame(mf); err != nil {
			return nil, rerrors.Wrap(rerrors.Io, err)
		}
	}

	shared, err := curve25519.X25519(priv[:], theirs.PublicKey)
	if err != nil {
		return nil, rerrors.New(rerrors.InvalidData, "handshake: invalid peer public key: %v", err)
	}

	key := deriveKey(shared, salt, theirs.Salt)
	defer key.Destroy()

	return codec.NewAEAD(key.Bytes())
}

// deriveKey mixes the ECDH shared secret with the XOR of both salts through
// PBKDF2-HMAC-SHA256. The
// result is held in a locked buffer until the AEAD codec is constructed from
// it, then wiped, following katzenpost's use of awnumar/memguard for
// sensitive key material.
func deriveKey(shared, saltA, saltB []byte) *memguard.LockedBuffer {
	xored := make([]byte, len(saltA))
	for i := range xored {
		b := byte(0)
		if i < len(saltA) {
			b ^= saltA[i]
		}
		if i < len(saltB) {
			b ^= saltB[i]
		}
		xored[i] = b
	}
	derived := pbkdf2.Key(shared, xored, kdfIterations, codec.KeySize, sha256.New)
	return memguard.NewBufferFromBytes(derived)
}
