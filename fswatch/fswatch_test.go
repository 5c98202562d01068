package fswatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelsys/rexec/proto"
	"github.com/kestrelsys/rexec/server/watchreg"
)

type recordingSink struct {
	ch chan proto.Envelope
}

func (s *recordingSink) Send(e proto.Envelope) error {
	s.ch <- e
	return nil
}

func TestSourceDispatchesCreateEvent(t *testing.T) {
	dir := t.TempDir()
	registry := watchreg.New()
	sink := &recordingSink{ch: make(chan proto.Envelope, 8)}
	registry.Register("w1", watchreg.Options{CanonicalPath: dir, Recursive: true, Sink: sink})

	src, err := NewSource(registry, "c1")
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.Add(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o644))

	select {
	case <-sink.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a dispatched change event")
	}
}
