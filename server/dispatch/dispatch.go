package dispatch

import (
	"sync"

	"github.com/kestrelsys/rexec/proto"
	"github.com/kestrelsys/rexec/rerrors"
)

// operation type tags, matching the "type" tag on the tagged-union wire
// convention every command/result uses.
const (
	opVersion        = "version"
	opReadFile       = "read_file"
	opWriteFile      = "write_file"
	opReadDir        = "read_dir"
	opCreateDir      = "create_dir"
	opRemove         = "remove"
	opCopy           = "copy"
	opRename         = "rename"
	opExists         = "exists"
	opMetadata       = "metadata"
	opSetPermissions = "set_permissions"
	opWatch          = "watch"
	opUnwatch        = "unwatch"
	opSearch         = "search"
	opCancelSearch   = "cancel_search"
	opProcSpawn      = "proc_spawn"
	opProcKill       = "proc_kill"
	opProcStdin      = "proc_stdin"
	opProcResizePty  = "proc_resize_pty"
	opSystemInfo     = "system_info"
)

// Dispatcher routes incoming request envelopes to a Handler, applying
// batch execution and reply-queue discipline.
type Dispatcher struct {
	handler Handler
}

// New returns a Dispatcher that routes every request to handler.
func New(handler Handler) *Dispatcher {
	return &Dispatcher{handler: handler}
}

// Dispatch handles one request envelope arriving on connectionID, using
// reply as the connection's reply queue:
//
//  1. The reply queue is switched into queued mode for the duration of the
//     request.
//  2. A Single payload is invoked directly; its result becomes the response
//     payload.
//  3. A sequential batch (header["sequence"] == true) runs handlers in list
//     order, short-circuiting with synthetic Interrupted results after the
//     first error.
//  4. A concurrent batch runs all handlers concurrently and joins them,
//     preserving input order in the result slice.
//  5. The response envelope is sent with SendBefore (so it overtakes any
//     output already buffered by the handler) and the queue is flushed.
func (d *Dispatcher) Dispatch(ctx Context, req proto.Envelope) {
	ctx.RequestID = req.ID
	queued := ctx.Reply.Queued()
	ctx.Reply = queued

	var respPayload proto.Payload
	if req.Payload.IsBatch() {
		respPayload = d.dispatchBatch(ctx, req)
	} else {
		respPayload = d.dispatchSingle(ctx, req)
	}

	resp := proto.NewResponse(req, respPayload)
	_ = queued.SendBefore(resp)
	_ = queued.Flush()
}

func (d *Dispatcher) dispatchSingle(ctx Context, req proto.Envelope) proto.Payload {
	cmd, err := req.Payload.DecodeSingleCommand()
	if err != nil {
		res := proto.ErrResult(err)
		return proto.NewSingle(res)
	}
	res := d.invoke(ctx, cmd)
	return proto.NewSingle(res)
}

func (d *Dispatcher) dispatchBatch(ctx Context, req proto.Envelope) proto.Payload {
	cmds, err := req.Payload.DecodeBatchCommands()
	if err != nil {
		return proto.NewSingle(proto.ErrResult(err))
	}

	var results []proto.Result
	if req.Header.Sequenced() {
		results = d.runSequential(ctx, cmds)
	} else {
		results = d.runConcurrent(ctx, cmds)
	}

	items := make([]interface{}, len(results))
	for i, r := range results {
		items[i] = r
	}
	return proto.NewBatch(items)
}

// runSequential runs a sequential batch: entries before the first error get
// real responses, the failing entry gets the real error, and every entry
// after it gets a synthetic Interrupted response without the handler ever
// being invoked.
func (d *Dispatcher) runSequential(ctx Context, cmds []proto.Command) []proto.Result {
	results := make([]proto.Result, len(cmds))
	failed := false
	for i, cmd := range cmds {
		if failed {
			results[i] = proto.InterruptedResult()
			continue
		}
		res := d.invoke(ctx, cmd)
		results[i] = res
		if res.IsError() {
			failed = true
		}
	}
	return results
}

// runConcurrent runs every handler invocation concurrently, preserving
// input order in the returned slice; one entry's failure does not cancel
// its siblings.
func (d *Dispatcher) runConcurrent(ctx Context, cmds []proto.Command) []proto.Result {
	results := make([]proto.Result, len(cmds))
	var wg sync.WaitGroup
	for i, cmd := range cmds {
		wg.Add(1)
		go func(i int, cmd proto.Command) {
			defer wg.Done()
			// Each concurrent entry streams any output on its own clone of
			// the queued reply so interleaved writes stay serialized
			// through the queue's mutex without blocking siblings.
			sub := ctx
			sub.Reply = ctx.Reply.Clone()
			results[i] = d.invoke(sub, cmd)
		}(i, cmd)
	}
	wg.Wait()
	return results
}

// invoke decodes cmd's operation-specific body, routes it to the matching
// Handler method, and wraps the outcome as a wire Result. Handler errors are
// captured, never propagated as panics or connection failures.
func (d *Dispatcher) invoke(ctx Context, cmd proto.Command) (result proto.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = proto.ErrResult(rerrors.New(rerrors.Other, "handler panic: %v", r))
		}
	}()

	switch cmd.Type {
	case opVersion:
		return call(ctx, cmd, d.handler.Version)
	case opReadFile:
		return call(ctx, cmd, d.handler.ReadFile)
	case opWriteFile:
		return callVoid(ctx, cmd, d.handler.WriteFile)
	case opReadDir:
		return call(ctx, cmd, d.handler.ReadDir)
	case opCreateDir:
		return callVoid(ctx, cmd, d.handler.CreateDir)
	case opRemove:
		return callVoid(ctx, cmd, d.handler.Remove)
	case opCopy:
		return callVoid(ctx, cmd, d.handler.Copy)
	case opRename:
		return callVoid(ctx, cmd, d.handler.Rename)
	case opExists:
		return call(ctx, cmd, d.handler.Exists)
	case opMetadata:
		return call(ctx, cmd, d.handler.Metadata)
	case opSetPermissions:
		return callVoid(ctx, cmd, d.handler.SetPermissions)
	case opWatch:
		return call(ctx, cmd, d.handler.Watch)
	case opUnwatch:
		return callVoid(ctx, cmd, d.handler.Unwatch)
	case opSearch:
		return call(ctx, cmd, d.handler.Search)
	case opCancelSearch:
		return callVoid(ctx, cmd, d.handler.CancelSearch)
	case opProcSpawn:
		return call(ctx, cmd, d.handler.ProcSpawn)
	case opProcKill:
		return callVoid(ctx, cmd, d.handler.ProcKill)
	case opProcStdin:
		return callVoid(ctx, cmd, d.handler.ProcStdin)
	case opProcResizePty:
		return callVoid(ctx, cmd, d.handler.ProcResizePty)
	case opSystemInfo:
		return call(ctx, cmd, d.handler.SystemInfo)
	default:
		return proto.ErrResult(rerrors.New(rerrors.Unsupported, "unknown operation: %s", cmd.Type))
	}
}

// call decodes cmd.Data into Req and routes it to fn, wrapping a successful
// Resp as an ok Result. Generic over each operation's distinct request and
// response shape so dispatch's switch in invoke stays a flat, readable list
// rather than one bespoke branch per operation.
func call[Req, Resp any](ctx Context, cmd proto.Command, fn func(Context, Req) (Resp, error)) proto.Result {
	var req Req
	if err := proto.Decode(cmd, &req); err != nil {
		return proto.ErrResult(err)
	}
	resp, err := fn(ctx, req)
	if err != nil {
		return proto.ErrResult(err)
	}
	res, err := proto.OkResult(resp)
	if err != nil {
		return proto.ErrResult(err)
	}
	return res
}

// callVoid is call's counterpart for operations with no success payload
// beyond acknowledgement.
func callVoid[Req any](ctx Context, cmd proto.Command, fn func(Context, Req) error) proto.Result {
	var req Req
	if err := proto.Decode(cmd, &req); err != nil {
		return proto.ErrResult(err)
	}
	if err := fn(ctx, req); err != nil {
		return proto.ErrResult(err)
	}
	res, err := proto.OkResult(struct{}{})
	if err != nil {
		return proto.ErrResult(err)
	}
	return res
}

// OnConnect and OnDisconnect invoke the handler's connection lifecycle
// hooks. OnConnect failures are propagated so the caller can abort the
// connection.
func (d *Dispatcher) OnConnect(ctx Context) error {
	return d.handler.OnConnect(ctx)
}

func (d *Dispatcher) OnDisconnect(ctx Context) {
	d.handler.OnDisconnect(ctx)
}
