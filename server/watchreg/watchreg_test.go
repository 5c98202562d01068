package watchreg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrelsys/rexec/proto"
)

type recordingSink struct {
	sent []proto.Envelope
}

func (s *recordingSink) Send(e proto.Envelope) error {
	s.sent = append(s.sent, e)
	return nil
}

func TestAllowedKindsComputation(t *testing.T) {
	allOnly := &watch{only: toSet(nil), except: toSet(nil)}
	require.True(t, allOnly.allows("create"))
	require.True(t, allOnly.allows("write"))

	onlyCreate := &watch{only: toSet([]Kind{"create"})}
	require.True(t, onlyCreate.allows("create"))
	require.False(t, onlyCreate.allows("write"))

	allExceptRemove := &watch{except: toSet([]Kind{"remove"})}
	require.True(t, allExceptRemove.allows("create"))
	require.False(t, allExceptRemove.allows("remove"))

	onlyMinusExcept := &watch{only: toSet([]Kind{"create", "remove"}), except: toSet([]Kind{"remove"})}
	require.True(t, onlyMinusExcept.allows("create"))
	require.False(t, onlyMinusExcept.allows("remove"))
}

func TestRecursiveContainsDescendants(t *testing.T) {
	w := &watch{canonicalPath: "/a/b", recursive: true}
	require.True(t, w.contains("/a/b"))
	require.True(t, w.contains("/a/b/c"))
	require.True(t, w.contains("/a/b/c/d"))
	require.False(t, w.contains("/a/other"))
}

func TestNonRecursiveOnlyDirectChildren(t *testing.T) {
	w := &watch{canonicalPath: "/a/b", recursive: false}
	require.True(t, w.contains("/a/b"))
	require.True(t, w.contains("/a/b/c"))
	require.False(t, w.contains("/a/b/c/d"))
}

func TestDispatchDeliversOnlyMatchingWatches(t *testing.T) {
	r := New()
	sink := &recordingSink{}
	r.Register("w1", Options{CanonicalPath: "/a", Recursive: true, Only: []Kind{"create"}, Sink: sink})

	r.Dispatch(Event{Kind: "create", Path: "/a/x"})
	r.Dispatch(Event{Kind: "remove", Path: "/a/x"}) // wrong kind
	r.Dispatch(Event{Kind: "create", Path: "/b/x"}) // wrong path

	require.Len(t, sink.sent, 1)
}

func TestUnregisterStopsDelivery(t *testing.T) {
	r := New()
	sink := &recordingSink{}
	r.Register("w1", Options{CanonicalPath: "/a", Recursive: true, Sink: sink})
	r.Unregister("w1")

	r.Dispatch(Event{Kind: "create", Path: "/a/x"})
	require.Empty(t, sink.sent)
}

func TestDispatchErrorHonoursEmitNoMatchFlag(t *testing.T) {
	r := New()
	silent := &recordingSink{}
	loud := &recordingSink{}
	r.Register("silent", Options{ConnectionID: "c1", CanonicalPath: "/a", Sink: silent, EmitNoMatch: false})
	r.Register("loud", Options{ConnectionID: "c1", CanonicalPath: "/a", Sink: loud, EmitNoMatch: true})

	r.DispatchError("c1", ErrorEvent{Message: "watch overflow"})

	require.Empty(t, silent.sent)
	require.Len(t, loud.sent, 1)
}
