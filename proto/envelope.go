// Package proto implements the envelope and request/response model: an
// {id, header, payload} triple where payload is either a single
// command/result or a batch of them, with a "sequence" header flag
// controlling batch execution order. It is grounded on the tagged CBOR
// records katzenpost uses for its own request/response pairs
// (server/cborplugin.Request/Response, client2.Request/Response), generalized
// from fixed Go structs into a reusable envelope that carries an opaque,
// type-tagged command.
package proto

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/kestrelsys/rexec/rerrors"
)

// NewID returns a fresh, globally-unique-per-connection opaque id, grounded on katzenpost's go.mod dependency on UUID generation
// (gofrs/uuid, here its actively-maintained sibling google/uuid).
func NewID() string {
	return uuid.NewString()
}

// Header is the free-form, transport-level key/value map carried by every
// envelope. Headers carry hints, not semantics, with the single exception of
// SequenceKey.
type Header map[string]interface{}

// SequenceKey is the distinguished boolean header consumed by batch
// dispatch.
const SequenceKey = "sequence"

// Sequenced reports whether h requests in-order, short-circuiting batch
// execution.
func (h Header) Sequenced() bool {
	if h == nil {
		return false
	}
	v, ok := h[SequenceKey]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Command is a type-tagged opaque operation payload: the "type" tag on the
// wire protocol's tagged union, with Data holding the operation-specific
// CBOR-encoded body. Concrete operation bodies (ProcSpawn,
// ReadFile, ...) are declared in server/dispatch and are packed into
// a Command via Encode/Decode below.
type Command struct {
	Type string          `cbor:"type"`
	Data cbor.RawMessage `cbor:"data,omitempty"`
}

// Encode packs a concrete operation value into a Command tagged with typ.
func Encode(typ string, v interface{}) (Command, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return Command{}, rerrors.Wrap(rerrors.InvalidData, err)
	}
	return Command{Type: typ, Data: data}, nil
}

// Decode unpacks c's Data into v; callers typically switch on c.Type first.
func Decode(c Command, v interface{}) error {
	if err := cbor.Unmarshal(c.Data, v); err != nil {
		return rerrors.Wrap(rerrors.InvalidData, err)
	}
	return nil
}

// Payload is either a single item or a batch of them. The
// item shape is Command on the request side and Result on the response
// side; Payload itself stores raw CBOR so it need not know which.
type Payload struct {
	Single cbor.RawMessage   `cbor:"single,omitempty"`
	Batch  []cbor.RawMessage `cbor:"batch,omitempty"`
}

// NewSingle wraps one item (a Command or a Result) as a non-batch payload.
func NewSingle(v interface{}) Payload {
	raw, err := cbor.Marshal(v)
	if err != nil {
		// Marshaling Command/Result values built by this package cannot
		// fail in practice; callers passing arbitrary types get a payload
		// that fails to decode downstream rather than a panic here.
		return Payload{}
	}
	return Payload{Single: raw}
}

// NewBatch wraps a sequence of items (Commands or Results) as a batch
// payload.
func NewBatch(vs []interface{}) Payload {
	items := make([]cbor.RawMessage, len(vs))
	for i, v := range vs {
		raw, err := cbor.Marshal(v)
		if err != nil {
			raw = nil
		}
		items[i] = raw
	}
	return Payload{Batch: items}
}

// IsBatch reports whether p carries a Batch payload.
func (p Payload) IsBatch() bool { return p.Batch != nil }

// DecodeSingleCommand decodes a non-batch request payload's item as a
// Command.
func (p Payload) DecodeSingleCommand() (Command, error) {
	var c Command
	if err := cbor.Unmarshal(p.Single, &c); err != nil {
		return Command{}, rerrors.Wrap(rerrors.InvalidData, err)
	}
	return c, nil
}

// DecodeBatchCommands decodes a batch request payload's items as Commands.
func (p Payload) DecodeBatchCommands() ([]Command, error) {
	cmds := make([]Command, len(p.Batch))
	for i, raw := range p.Batch {
		if err := cbor.Unmarshal(raw, &cmds[i]); err != nil {
			return nil, rerrors.Wrap(rerrors.InvalidData, err)
		}
	}
	return cmds, nil
}

// DecodeSingleResult decodes a non-batch response payload's item as a
// Result.
func (p Payload) DecodeSingleResult() (Result, error) {
	var r Result
	if err := cbor.Unmarshal(p.Single, &r); err != nil {
		return Result{}, rerrors.Wrap(rerrors.InvalidData, err)
	}
	return r, nil
}

// DecodeBatchResults decodes a batch response payload's items as Results.
func (p Payload) DecodeBatchResults() ([]Result, error) {
	results := make([]Result, len(p.Batch))
	for i, raw := range p.Batch {
		if err := cbor.Unmarshal(raw, &results[i]); err != nil {
			return nil, rerrors.Wrap(rerrors.InvalidData, err)
		}
	}
	return results, nil
}

// Envelope is the structured request/response object carried in a frame
//. Ids are assigned by the sender; a response sets OriginID to
// the request's Id.
type Envelope struct {
	ID       string  `cbor:"id"`
	OriginID string  `cbor:"origin_id,omitempty"`
	Header   Header  `cbor:"header,omitempty"`
	Payload  Payload `cbor:"payload"`
}

// Marshal serializes e to the self-describing CBOR binary format the core
// specifies.
func (e Envelope) Marshal() ([]byte, error) {
	b, err := cbor.Marshal(e)
	if err != nil {
		return nil, rerrors.Wrap(rerrors.InvalidData, err)
	}
	return b, nil
}

// Unmarshal decodes b into e.
func Unmarshal(b []byte, e *Envelope) error {
	if err := cbor.Unmarshal(b, e); err != nil {
		return rerrors.Wrap(rerrors.InvalidData, err)
	}
	return nil
}

// NewRequest builds a request envelope with a fresh id.
func NewRequest(payload Payload, header Header) Envelope {
	return Envelope{ID: NewID(), Header: header, Payload: payload}
}

// NewResponse builds a response envelope whose OriginID echoes req's Id.
func NewResponse(req Envelope, payload Payload) Envelope {
	return Envelope{ID: NewID(), OriginID: req.ID, Payload: payload}
}
