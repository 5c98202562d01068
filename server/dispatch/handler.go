// Package dispatch implements the server-side request dispatcher: it
// routes an incoming envelope to a Handler, applies batch semantics
// (sequential short-circuit vs. concurrent join), and writes the
// resulting response envelope back through a queued reply. The handler
// capability set is grounded on katzenpost's cborplugin.ServicePlugin
// interface (server/cborplugin/client.go) — a small interface a concrete
// plugin implements — generalized from one OnRequest method into one
// method per operation family, each defaulting to Unsupported via
// UnimplementedHandler so a concrete handler only overrides what it
// supports.
package dispatch

import (
	"context"

	"github.com/kestrelsys/rexec/rerrors"
	"github.com/kestrelsys/rexec/server/replyqueue"
)

// Context carries the per-request state a Handler method needs: the
// connection it arrived on and a reply sink clone it may use to stream
// output before (or instead of) returning.
type Context struct {
	context.Context
	ConnectionID string
	// RequestID is the originating envelope's id, set by Dispatch before a
	// handler runs. A handler that produces further asynchronous output
	// after returning (ProcSpawn's stdout/stderr/done, Search's matches)
	// stamps its envelopes' OriginID with this value so the client's post
	// office can route them back to whatever is waiting on the original
	// request.
	RequestID string
	Reply     *replyqueue.ReplyQueue
}

// Version is the boundary request for a version query.
type Version struct{}

// VersionInfo is the boundary response for a version query.
type VersionInfo struct {
	Version  string `cbor:"version"`
	Protocol int    `cbor:"protocol"`
}

// ReadFile is the boundary request for reading a file's contents.
type ReadFile struct {
	Path string `cbor:"path"`
	Text bool   `cbor:"text"`
}

// FileContents is the boundary response carrying either bytes or text.
type FileContents struct {
	Bytes []byte `cbor:"bytes,omitempty"`
	Text  string `cbor:"text,omitempty"`
}

// WriteFile is the boundary request for writing (or appending to) a file.
type WriteFile struct {
	Path   string `cbor:"path"`
	Bytes  []byte `cbor:"bytes,omitempty"`
	Text   string `cbor:"text,omitempty"`
	Append bool   `cbor:"append"`
}

// ReadDir is the boundary request for listing a directory.
type ReadDir struct {
	Path      string `cbor:"path"`
	Recursive bool   `cbor:"recursive"`
	Metadata  bool   `cbor:"metadata"`
}

// DirEntry is one entry of a ReadDir response.
type DirEntry struct {
	Path     string    `cbor:"path"`
	IsDir    bool      `cbor:"is_dir"`
	Metadata *Metadata `cbor:"metadata,omitempty"`
}

// CreateDir is the boundary request for creating a directory.
type CreateDir struct {
	Path      string `cbor:"path"`
	Recursive bool   `cbor:"recursive"`
}

// Remove is the boundary request for deleting a file or directory.
type Remove struct {
	Path  string `cbor:"path"`
	Force bool   `cbor:"force"`
}

// Copy is the boundary request for copying a file or directory.
type Copy struct {
	From string `cbor:"from"`
	To   string `cbor:"to"`
}

// Rename is the boundary request for renaming/moving a path.
type Rename struct {
	From string `cbor:"from"`
	To   string `cbor:"to"`
}

// Exists is the boundary request for an existence check.
type Exists struct {
	Path string `cbor:"path"`
}

// MetadataRequest is the boundary request for stat-like metadata.
type MetadataRequest struct {
	Path         string `cbor:"path"`
	Canonicalize bool   `cbor:"canonicalize"`
	FollowSymlinks bool `cbor:"follow_symlinks"`
}

// Metadata is the boundary response carrying file/dir metadata.
type Metadata struct {
	Path    string `cbor:"path"`
	IsDir   bool   `cbor:"is_dir"`
	IsFile  bool   `cbor:"is_file"`
	Symlink bool   `cbor:"symlink"`
	Size    uint64 `cbor:"size"`
	ModTime int64  `cbor:"mod_time"`
	Mode    uint32 `cbor:"mode"`
}

// SetPermissions is the boundary request for chmod-like operations.
type SetPermissions struct {
	Path            string `cbor:"path"`
	Mode            uint32 `cbor:"mode"`
	Recursive       bool   `cbor:"recursive"`
	FollowSymlinks  bool   `cbor:"follow_symlinks"`
	ExcludeSymlinks bool   `cbor:"exclude_symlinks"`
}

// Watch is the boundary request to register a filesystem watch.
type Watch struct {
	Path      string   `cbor:"path"`
	Recursive bool     `cbor:"recursive"`
	Only      []string `cbor:"only,omitempty"`
	Except    []string `cbor:"except,omitempty"`
}

// Watched is the boundary response acknowledging a watch registration.
type Watched struct {
	ID string `cbor:"id"`
}

// Unwatch is the boundary request to cancel a watch.
type Unwatch struct {
	ID string `cbor:"id"`
}

// Search is the boundary request to start a filesystem search.
type Search struct {
	Root    string `cbor:"root"`
	Pattern string `cbor:"pattern"`
}

// SearchStarted is the boundary response acknowledging a search.
type SearchStarted struct {
	ID string `cbor:"id"`
}

// CancelSearch is the boundary request to cancel a running search.
type CancelSearch struct {
	ID string `cbor:"id"`
}

// ProcSpawn is the boundary request to start a remote process.
type ProcSpawn struct {
	Cmd     string            `cbor:"cmd"`
	Env     map[string]string `cbor:"env,omitempty"`
	Cwd     string            `cbor:"cwd,omitempty"`
	PtyCols uint16            `cbor:"pty_cols,omitempty"`
	PtyRows uint16            `cbor:"pty_rows,omitempty"`
	Pty     bool              `cbor:"pty"`
}

// ProcSpawned is the response acknowledging a process spawn; it MUST be the
// first response byte range the client observes for the originating request
//.
type ProcSpawned struct {
	ID uint64 `cbor:"id"`
}

// ProcKill is the boundary request to terminate a running process.
type ProcKill struct {
	ID uint64 `cbor:"id"`
}

// ProcStdin is the boundary request carrying stdin bytes for a process.
type ProcStdin struct {
	ID   uint64 `cbor:"id"`
	Data []byte `cbor:"data"`
}

// ProcResizePty is the boundary request to resize a process's PTY.
type ProcResizePty struct {
	ID   uint64 `cbor:"id"`
	Cols uint16 `cbor:"cols"`
	Rows uint16 `cbor:"rows"`
}

// SystemInfo is the boundary request for host/system information.
type SystemInfo struct{}

// SystemInfoResult is the boundary response carrying system information.
type SystemInfoResult struct {
	OS       string `cbor:"os"`
	Arch     string `cbor:"arch"`
	Hostname string `cbor:"hostname"`
	NumCPU   int    `cbor:"num_cpu"`
}

// Handler is the full capability set a server-side implementation exposes
//. It is polymorphic over every
// operation family; UnimplementedHandler supplies an Unsupported default for
// every method so a concrete type only needs to override what it actually
// implements, matching the spec's "unimplemented operations return a
// well-defined unsupported error kind" requirement without resorting to
// reflection.
type Handler interface {
	OnConnect(ctx Context) error
	OnDisconnect(ctx Context)

	Version(ctx Context, req Version) (VersionInfo, error)
	ReadFile(ctx Context, req ReadFile) (FileContents, error)
	WriteFile(ctx Context, req WriteFile) error
	ReadDir(ctx Context, req ReadDir) ([]DirEntry, error)
	CreateDir(ctx Context, req CreateDir) error
	Remove(ctx Context, req Remove) error
	Copy(ctx Context, req Copy) error
	Rename(ctx Context, req Rename) error
	Exists(ctx Context, req Exists) (bool, error)
	Metadata(ctx Context, req MetadataRequest) (Metadata, error)
	SetPermissions(ctx Context, req SetPermissions) error
	Watch(ctx Context, req Watch) (Watched, error)
	Unwatch(ctx Context, req Unwatch) error
	Search(ctx Context, req Search) (SearchStarted, error)
	CancelSearch(ctx Context, req CancelSearch) error
	ProcSpawn(ctx Context, req ProcSpawn) (ProcSpawned, error)
	ProcKill(ctx Context, req ProcKill) error
	ProcStdin(ctx Context, req ProcStdin) error
	ProcResizePty(ctx Context, req ProcResizePty) error
	SystemInfo(ctx Context, req SystemInfo) (SystemInfoResult, error)
}

// UnimplementedHandler embeds into a concrete Handler to supply Unsupported
// defaults for every operation the concrete type does not override.
type UnimplementedHandler struct{}

func unsupported(op string) error {
	return rerrors.New(rerrors.Unsupported, "operation not implemented: %s", op)
}

func (UnimplementedHandler) OnConnect(Context) error    { return nil }
func (UnimplementedHandler) OnDisconnect(Context)       {}

func (UnimplementedHandler) Version(Context, Version) (VersionInfo, error) {
	return VersionInfo{}, unsupported("version")
}

func (UnimplementedHandler) ReadFile(Context, ReadFile) (FileContents, error) {
	return FileContents{}, unsupported("read_file")
}

func (UnimplementedHandler) WriteFile(Context, WriteFile) error {
	return unsupported("write_file")
}

func (UnimplementedHandler) ReadDir(Context, ReadDir) ([]DirEntry, error) {
	return nil, unsupported("read_dir")
}

func (UnimplementedHandler) CreateDir(Context, CreateDir) error {
	return unsupported("create_dir")
}

func (UnimplementedHandler) Remove(Context, Remove) error {
	return unsupported("remove")
}

func (UnimplementedHandler) Copy(Context, Copy) error {
	return unsupported("copy")
}

func (UnimplementedHandler) Rename(Context, Rename) error {
	return unsupported("rename")
}

func (UnimplementedHandler) Exists(Context, Exists) (bool, error) {
	return false, unsupported("exists")
}

func (UnimplementedHandler) Metadata(Context, MetadataRequest) (Metadata, error) {
	return Metadata{}, unsupported("metadata")
}

func (UnimplementedHandler) SetPermissions(Context, SetPermissions) error {
	return unsupported("set_permissions")
}

func (UnimplementedHandler) Watch(Context, Watch) (Watched, error) {
	return Watched{}, unsupported("watch")
}

func (UnimplementedHandler) Unwatch(Context, Unwatch) error {
	return unsupported("unwatch")
}

func (UnimplementedHandler) Search(Context, Search) (SearchStarted, error) {
	return SearchStarted{}, unsupported("search")
}

func (UnimplementedHandler) CancelSearch(Context, CancelSearch) error {
	return unsupported("cancel_search")
}

func (UnimplementedHandler) ProcSpawn(Context, ProcSpawn) (ProcSpawned, error) {
	return ProcSpawned{}, unsupported("proc_spawn")
}

func (UnimplementedHandler) ProcKill(Context, ProcKill) error {
	return unsupported("proc_kill")
}

func (UnimplementedHandler) ProcStdin(Context, ProcStdin) error {
	return unsupported("proc_stdin")
}

func (UnimplementedHandler) ProcResizePty(Context, ProcResizePty) error {
	return unsupported("proc_resize_pty")
}

func (UnimplementedHandler) SystemInfo(Context, SystemInfo) (SystemInfoResult, error) {
	return SystemInfoResult{}, unsupported("system_info")
}

var _ Handler = UnimplementedHandler{}
