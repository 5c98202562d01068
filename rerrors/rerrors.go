// Package rerrors defines the closed error taxonomy shared by every layer of
// rexec, from the frame codec up through handler results. It plays the role
// katzenpost's client2.ConnectError/PKIError/ProtocolError family plays in
// katzenpost: small, named error values with a Kind an upper layer can switch
// on, instead of sentinel errors scattered per package.
package rerrors

import "fmt"

// Kind is a closed enumeration of error categories. Wire responses carry a
// Kind rather than a Go type, so peers on either end of the connection (which
// may not share this package) can interpret failures uniformly.
type Kind int

const (
	Other Kind = iota
	Io
	InvalidData
	WouldBlock
	UnexpectedEof
	WriteZero
	BrokenPipe
	NotFound
	NotConnected
	PermissionDenied
	ConnectionAborted
	TimedOut
	Unsupported
	Interrupted
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "Io"
	case InvalidData:
		return "InvalidData"
	case WouldBlock:
		return "WouldBlock"
	case UnexpectedEof:
		return "UnexpectedEof"
	case WriteZero:
		return "WriteZero"
	case BrokenPipe:
		return "BrokenPipe"
	case NotFound:
		return "NotFound"
	case NotConnected:
		return "NotConnected"
	case PermissionDenied:
		return "PermissionDenied"
	case ConnectionAborted:
		return "ConnectionAborted"
	case TimedOut:
		return "TimedOut"
	case Unsupported:
		return "Unsupported"
	case Interrupted:
		return "Interrupted"
	default:
		return "Other"
	}
}

// Error is the concrete error type used throughout rexec. It is the Go-side
// counterpart of the wire Error{kind, description} record.
type Error struct {
	Kind        Kind
	Description string
	Err         error
}

func (e *Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("rexec: %s: %s", e.Kind, e.Description)
	}
	if e.Err != nil {
		return fmt.Sprintf("rexec: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("rexec: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with a formatted description.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Description: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an existing error, preserving it via Unwrap.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Description: err.Error(), Err: err}
}

// InterruptedDescription is the fixed description used for synthetic
// batch-cancellation responses.
const InterruptedDescription = "Canceled due to earlier error"

// NewInterrupted builds the synthetic response placed at every position
// after the first failure in a sequential batch.
func NewInterrupted() *Error {
	return &Error{Kind: Interrupted, Description: InterruptedDescription}
}

// As reports whether err is, or wraps, an *Error and returns it.
func As(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	e, ok := err.(*Error)
	if ok {
		return e, true
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return As(u.Unwrap())
	}
	return nil, false
}

// KindOf extracts the Kind from err, defaulting to Other for plain errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Other
}
