// Package frame implements the length-prefixed byte frame that is the unit
// of the rexec wire protocol: an 8-byte big-endian length
// header followed by that many payload bytes. It is the lowest layer of the
// transport katzenpost builds with ad hoc length-prefixed reads in
// stream/stream.go and client2/connection.go's wire.Session; here the
// concern is pulled out into its own leaf package that never suspends and
// never holds a lock.
package frame

import (
	"encoding/binary"

	"github.com/kestrelsys/rexec/rerrors"
)

// HeaderLen is the width of the length prefix in bytes.
const HeaderLen = 8

// Frame is a decoded payload: a finite sequence of bytes corresponding to
// exactly one logical frame produced by a sender's codec chain.
type Frame []byte

// Write encodes frame as an 8-byte big-endian length followed by its bytes,
// appending the result to out and returning the extended slice.
func Write(f Frame, out []byte) []byte {
	var hdr [HeaderLen]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(len(f)))
	out = append(out, hdr[:]...)
	out = append(out, f...)
	return out
}

// Read attempts to decode a single frame from the front of buf. It returns
// the decoded frame, the number of bytes consumed from buf, and whether a
// complete frame was available. A nil frame with ok=false and consumed=0
// means buf held fewer than HeaderLen+length bytes (a partial frame) and the
// caller should wait for more data; it is not an error.
func Read(buf []byte) (f Frame, consumed int, ok bool) {
	if len(buf) < HeaderLen {
		return nil, 0, false
	}
	length := binary.BigEndian.Uint64(buf[:HeaderLen])
	total := HeaderLen + length
	if uint64(len(buf)) < total {
		return nil, 0, false
	}
	payload := make([]byte, length)
	copy(payload, buf[HeaderLen:total])
	return Frame(payload), int(total), true
}

// ReadClaimed behaves like Read but is used when the caller has already
// observed clean end-of-stream with buf outstanding: any failure to decode a
// length from a buffer the caller claims is "sufficient" is an InvalidData
// error, rather than a partial-frame signal.
func ReadClaimed(buf []byte) (f Frame, consumed int, err error) {
	if len(buf) < HeaderLen {
		return nil, 0, rerrors.New(rerrors.InvalidData, "frame: truncated length header (%d bytes)", len(buf))
	}
	length := binary.BigEndian.Uint64(buf[:HeaderLen])
	total := HeaderLen + length
	if uint64(len(buf)) < total {
		return nil, 0, rerrors.New(rerrors.InvalidData, "frame: claimed-sufficient buffer too short for length %d", length)
	}
	payload := make([]byte, length)
	copy(payload, buf[HeaderLen:total])
	return Frame(payload), int(total), nil
}
