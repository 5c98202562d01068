package proto

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/kestrelsys/rexec/rerrors"
)

// Result is the wire response for any single operation: either the success
// variant or a generic Error{kind, description} record. It is
// marshaled directly as a Payload item (Single, or one Batch entry) so that
// batch responses (a slice of Results) reuse the same Payload.Batch
// machinery as requests.
type Result struct {
	Type  string          `cbor:"type"`
	Ok    cbor.RawMessage `cbor:"ok,omitempty"`
	Error *WireError      `cbor:"error,omitempty"`
}

// WireError is the serialized form of rerrors.Error.
type WireError struct {
	Kind        string `cbor:"kind"`
	Description string `cbor:"description"`
}

// OkResult builds a successful Result wrapping v.
func OkResult(v interface{}) (Result, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return Result{}, rerrors.Wrap(rerrors.InvalidData, err)
	}
	return Result{Type: "ok", Ok: data}, nil
}

// ErrResult builds a failed Result from err, classifying it via rerrors.
func ErrResult(err error) Result {
	e, ok := rerrors.As(err)
	if !ok {
		e = rerrors.Wrap(rerrors.Other, err)
	}
	return Result{Type: "error", Error: &WireError{Kind: e.Kind.String(), Description: e.Description}}
}

// InterruptedResult is the synthetic response for batch entries short
// circuited after an earlier failure.
func InterruptedResult() Result {
	return ErrResult(rerrors.NewInterrupted())
}

// IsError reports whether r carries an error.
func (r Result) IsError() bool { return r.Type == "error" }

// DecodeOk unmarshals the success payload into v.
func (r Result) DecodeOk(v interface{}) error {
	if r.IsError() {
		return rerrors.New(rerrors.Other, "result: not an ok result")
	}
	if err := cbor.Unmarshal(r.Ok, v); err != nil {
		return rerrors.Wrap(rerrors.InvalidData, err)
	}
	return nil
}
