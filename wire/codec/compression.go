package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/kestrelsys/rexec/rerrors"
	"github.com/kestrelsys/rexec/wire/frame"
)

// DefaultCompressionLevel is used whenever a caller negotiates compression
// without specifying a level.
const DefaultCompressionLevel = zlib.DefaultCompression

// Zlib is the zlib-class compression codec, implemented with
// klauspost/compress/zlib rather than the stdlib compress/zlib: the rest of
// the retrieved example pack (zstd-seekable-format-go, bearlytools/claw,
// R2Northstar/Atlas) standardizes on klauspost/compress for this exact
// concern, and it is a drop-in replacement with a faster implementation.
type Zlib struct {
	Level int
}

// NewZlib constructs a Zlib codec at the given compression level, falling
// back to DefaultCompressionLevel for an unspecified (zero) level.
func NewZlib(level int) Zlib {
	if level == 0 {
		level = DefaultCompressionLevel
	}
	return Zlib{Level: level}
}

func (z Zlib) Name() Type { return TypeZlib }

func (z Zlib) Encode(f frame.Frame) (frame.Frame, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, z.Level)
	if err != nil {
		return nil, rerrors.Wrap(rerrors.InvalidData, err)
	}
	if _, err := w.Write(f); err != nil {
		return nil, rerrors.Wrap(rerrors.InvalidData, err)
	}
	if err := w.Close(); err != nil {
		return nil, rerrors.Wrap(rerrors.InvalidData, err)
	}
	return frame.Frame(buf.Bytes()), nil
}

func (z Zlib) Decode(f frame.Frame) (frame.Frame, error) {
	r, err := zlib.NewReader(bytes.NewReader(f))
	if err != nil {
		return nil, rerrors.Wrap(rerrors.InvalidData, err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, rerrors.Wrap(rerrors.InvalidData, err)
	}
	return frame.Frame(out), nil
}
