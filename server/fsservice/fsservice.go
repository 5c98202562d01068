// Package fsservice wires fsops, procspawn, fswatch, search, procreg, and
// watchreg together behind the dispatch.Handler interface: it is the
// concrete plugin katzenpost's server/cborplugin.ServicePlugin pattern
// generalizes into, the one place in
// the tree that turns boundary requests into actual filesystem and process
// operations.
package fsservice

import (
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/carlmjohnson/versioninfo"

	"github.com/kestrelsys/rexec/fsops"
	"github.com/kestrelsys/rexec/fswatch"
	"github.com/kestrelsys/rexec/internal/logging"
	"github.com/kestrelsys/rexec/internal/statedb"
	"github.com/kestrelsys/rexec/procspawn"
	"github.com/kestrelsys/rexec/proto"
	"github.com/kestrelsys/rexec/search"
	"github.com/kestrelsys/rexec/server/dispatch"
	"github.com/kestrelsys/rexec/server/procreg"
	"github.com/kestrelsys/rexec/server/watchreg"
)

var log = logging.New("fsservice")

// Handler implements dispatch.Handler over the local filesystem and process
// table.
type Handler struct {
	dispatch.UnimplementedHandler

	procs      *procreg.Registry
	watches    *watchreg.Registry
	db         *statedb.DB
	nextProcID uint64

	mu        sync.Mutex
	fsWatches map[string]*fswatch.Source // watch id -> its OS-level source
	searches  *search.Registry
}

// New builds a Handler over the given process and watch registries. db is
// optional and may be nil; the Handler keeps it but writes nothing to it.
func New(procs *procreg.Registry, watches *watchreg.Registry, db *statedb.DB) *Handler {
	return &Handler{
		procs:     procs,
		watches:   watches,
		db:        db,
		fsWatches: make(map[string]*fswatch.Source),
		searches:  search.NewRegistry(),
	}
}

func (h *Handler) OnConnect(ctx dispatch.Context) error {
	log.Debugf("connection %s established", ctx.ConnectionID)
	return nil
}

func (h *Handler) OnDisconnect(ctx dispatch.Context) {
	log.Debugf("connection %s closed", ctx.ConnectionID)

	h.mu.Lock()
	for id, src := range h.fsWatches {
		if src != nil {
			src.Close()
		}
		delete(h.fsWatches, id)
	}
	h.mu.Unlock()
}

func (h *Handler) Version(dispatch.Context, dispatch.Version) (dispatch.VersionInfo, error) {
	return dispatch.VersionInfo{Version: versioninfo.Version, Protocol: 1}, nil
}

func (h *Handler) ReadFile(_ dispatch.Context, req dispatch.ReadFile) (dispatch.FileContents, error) {
	b, err := fsops.ReadFileBytes(req.Path)
	if err != nil {
		return dispatch.FileContents{}, err
	}
	if req.Text {
		return dispatch.FileContents{Text: string(b)}, nil
	}
	return dispatch.FileContents{Bytes: b}, nil
}

func (h *Handler) WriteFile(_ dispatch.Context, req dispatch.WriteFile) error {
	data := req.Bytes
	if req.Text != "" {
		data = []byte(req.Text)
	}
	return fsops.WriteFileBytes(req.Path, data, req.Append)
}

func (h *Handler) ReadDir(_ dispatch.Context, req dispatch.ReadDir) ([]dispatch.DirEntry, error) {
	entries, err := fsops.ReadDir(req.Path, req.Recursive, req.Metadata)
	if err != nil {
		return nil, err
	}
	out := make([]dispatch.DirEntry, 0, len(entries))
	for _, e := range entries {
		de := dispatch.DirEntry{Path: e.Path, IsDir: e.IsDir}
		if e.Metadata != nil {
			m := toMetadata(*e.Metadata)
			de.Metadata = &m
		}
		out = append(out, de)
	}
	return out, nil
}

func (h *Handler) CreateDir(_ dispatch.Context, req dispatch.CreateDir) error {
	return fsops.CreateDir(req.Path, req.Recursive)
}

func (h *Handler) Remove(_ dispatch.Context, req dispatch.Remove) error {
	return fsops.Remove(req.Path, req.Force)
}

func (h *Handler) Copy(_ dispatch.Context, req dispatch.Copy) error {
	return fsops.Copy(req.From, req.To)
}

func (h *Handler) Rename(_ dispatch.Context, req dispatch.Rename) error {
	return fsops.Rename(req.From, req.To)
}

func (h *Handler) Exists(_ dispatch.Context, req dispatch.Exists) (bool, error) {
	return fsops.Exists(req.Path)
}

func (h *Handler) Metadata(_ dispatch.Context, req dispatch.MetadataRequest) (dispatch.Metadata, error) {
	st, err := fsops.Metadata(req.Path, req.Canonicalize, req.FollowSymlinks)
	if err != nil {
		return dispatch.Metadata{}, err
	}
	return toMetadata(st), nil
}

func toMetadata(st fsops.Stat) dispatch.Metadata {
	return dispatch.Metadata{
		Path:    st.Path,
		IsDir:   st.IsDir,
		IsFile:  st.IsFile,
		Symlink: st.Symlink,
		Size:    st.Size,
		ModTime: st.ModTime,
		Mode:    st.Mode,
	}
}

func (h *Handler) SetPermissions(_ dispatch.Context, req dispatch.SetPermissions) error {
	return fsops.SetPermissions(req.Path, os.FileMode(req.Mode), fsops.SetPermissionsOptions{
		Recursive:       req.Recursive,
		FollowSymlinks:  req.FollowSymlinks,
		ExcludeSymlinks: req.ExcludeSymlinks,
	})
}

// Watch registers an OS-level fswatch source rooted at req.Path (one per
// watch id, not shared across watches on the same path, so Unwatch can tear
// down exactly the source it started) and a matching watchreg entry that
// filters and forwards events to the requesting connection's reply queue
//.
func (h *Handler) Watch(ctx dispatch.Context, req dispatch.Watch) (dispatch.Watched, error) {
	id := proto.NewID()

	src, err := fswatch.NewSource(h.watches, ctx.ConnectionID)
	if err != nil {
		return dispatch.Watched{}, err
	}
	if err := src.Add(req.Path); err != nil {
		src.Close()
		return dispatch.Watched{}, err
	}
	if req.Recursive {
		entries, err := fsops.ReadDir(req.Path, true, false)
		if err != nil {
			src.Close()
			return dispatch.Watched{}, err
		}
		for _, e := range entries {
			if e.IsDir {
				if err := src.Add(e.Path); err != nil {
					src.Close()
					return dispatch.Watched{}, err
				}
			}
		}
	}

	h.watches.Register(id, watchreg.Options{
		ConnectionID:  ctx.ConnectionID,
		CanonicalPath: req.Path,
		Recursive:     req.Recursive,
		Only:          toKinds(req.Only),
		Except:        toKinds(req.Except),
		Sink:          ctx.Reply,
	})

	h.mu.Lock()
	h.fsWatches[id] = src
	h.mu.Unlock()

	return dispatch.Watched{ID: id}, nil
}

func toKinds(ss []string) []watchreg.Kind {
	if ss == nil {
		return nil
	}
	out := make([]watchreg.Kind, len(ss))
	for i, s := range ss {
		out[i] = watchreg.Kind(s)
	}
	return out
}

func (h *Handler) Unwatch(_ dispatch.Context, req dispatch.Unwatch) error {
	h.watches.Unregister(req.ID)

	h.mu.Lock()
	src, ok := h.fsWatches[req.ID]
	delete(h.fsWatches, req.ID)
	h.mu.Unlock()

	if ok {
		src.Close()
	}
	return nil
}

// searchReplier adapts search.Sink into SearchMatched/SearchCompleted
// envelopes on the owning connection's reply queue.
type searchReplier struct {
	ctx dispatch.Context
}

func (r *searchReplier) Matched(id string, m search.Match) {
	r.send("search_matched", struct {
		ID   string `cbor:"id"`
		Path string `cbor:"path"`
	}{ID: id, Path: m.Path})
}

func (r *searchReplier) Completed(id string) {
	r.send("search_completed", struct {
		ID string `cbor:"id"`
	}{ID: id})
}

func (r *searchReplier) send(typ string, v interface{}) {
	cmd, err := proto.Encode(typ, v)
	if err != nil {
		return
	}
	_ = r.ctx.Reply.Send(proto.Envelope{ID: proto.NewID(), OriginID: r.ctx.RequestID, Payload: proto.NewSingle(cmd)})
}

func (h *Handler) Search(ctx dispatch.Context, req dispatch.Search) (dispatch.SearchStarted, error) {
	id := proto.NewID()
	h.searches.Start(id, req.Root, req.Pattern, &searchReplier{ctx: ctx})
	return dispatch.SearchStarted{ID: id}, nil
}

func (h *Handler) CancelSearch(_ dispatch.Context, req dispatch.CancelSearch) error {
	h.searches.Cancel(req.ID)
	return nil
}

// procSink adapts procspawn output into ProcStdout/ProcStderr/ProcDone
// envelopes delivered through the owning connection's reply queue.
type procSink struct {
	ctx dispatch.Context
}

func (s *procSink) Stdout(id uint64, data []byte) {
	s.send("proc_stdout", struct {
		ID   uint64 `cbor:"id"`
		Data []byte `cbor:"data"`
	}{ID: id, Data: data})
}

func (s *procSink) Stderr(id uint64, data []byte) {
	s.send("proc_stderr", struct {
		ID   uint64 `cbor:"id"`
		Data []byte `cbor:"data"`
	}{ID: id, Data: data})
}

func (s *procSink) Done(id uint64, success bool, code *int) {
	s.send("proc_done", struct {
		ID      uint64 `cbor:"id"`
		Success bool   `cbor:"success"`
		Code    *int   `cbor:"code,omitempty"`
	}{ID: id, Success: success, Code: code})
}

func (s *procSink) send(typ string, v interface{}) {
	cmd, err := proto.Encode(typ, v)
	if err != nil {
		return
	}
	_ = s.ctx.Reply.Send(proto.Envelope{ID: proto.NewID(), OriginID: s.ctx.RequestID, Payload: proto.NewSingle(cmd)})
}

func (h *Handler) ProcSpawn(ctx dispatch.Context, req dispatch.ProcSpawn) (dispatch.ProcSpawned, error) {
	id := atomic.AddUint64(&h.nextProcID, 1)
	cleanup := h.procs.MakeCleanup(id)

	p, err := procspawn.Spawn(id, procspawn.Options{
		Cmd: req.Cmd, Env: req.Env, Cwd: req.Cwd,
		Pty: req.Pty, PtyCols: req.PtyCols, PtyRows: req.PtyRows,
	}, &procSink{ctx: ctx}, cleanup)
	if err != nil {
		return dispatch.ProcSpawned{}, err
	}
	h.procs.Insert(id, p.Handle())
	return dispatch.ProcSpawned{ID: id}, nil
}

func (h *Handler) ProcKill(_ dispatch.Context, req dispatch.ProcKill) error {
	return h.procs.Kill(req.ID)
}

func (h *Handler) ProcStdin(_ dispatch.Context, req dispatch.ProcStdin) error {
	return h.procs.SendStdin(req.ID, req.Data)
}

func (h *Handler) ProcResizePty(_ dispatch.Context, req dispatch.ProcResizePty) error {
	return h.procs.Resize(req.ID, procreg.ResizeRequest{Cols: req.Cols, Rows: req.Rows})
}

func (h *Handler) SystemInfo(dispatch.Context, dispatch.SystemInfo) (dispatch.SystemInfoResult, error) {
	hostname, _ := os.Hostname()
	return dispatch.SystemInfoResult{
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		Hostname: hostname,
		NumCPU:   runtime.NumCPU(),
	}, nil
}
