package procspawn

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	stdout []byte
	done   bool
	success bool
	code   *int
	doneCh chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{doneCh: make(chan struct{})}
}

func (s *recordingSink) Stdout(id uint64, data []byte) {
	s.mu.Lock()
	s.stdout = append(s.stdout, data...)
	s.mu.Unlock()
}

func (s *recordingSink) Stderr(id uint64, data []byte) {}

func (s *recordingSink) Done(id uint64, success bool, code *int) {
	s.mu.Lock()
	s.done, s.success, s.code = true, success, code
	s.mu.Unlock()
	close(s.doneCh)
}

func TestSpawnCapturesStdoutAndExitStatus(t *testing.T) {
	sink := newRecordingSink()
	cleanupCalled := make(chan struct{})

	p, err := Spawn(1, Options{Cmd: "echo hi"}, sink, func() { close(cleanupCalled) })
	require.NoError(t, err)
	require.Equal(t, uint64(1), p.ID)

	select {
	case <-sink.doneCh:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not report done")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Equal(t, "hi\n", string(sink.stdout))
	require.True(t, sink.success)
	require.NotNil(t, sink.code)
	require.Equal(t, 0, *sink.code)

	select {
	case <-cleanupCalled:
	case <-time.After(time.Second):
		t.Fatal("cleanup was not invoked")
	}
}

func TestSpawnStdinIsEchoedBack(t *testing.T) {
	sink := newRecordingSink()
	p, err := Spawn(2, Options{Cmd: "cat"}, sink, nil)
	require.NoError(t, err)

	p.Handle().StdinCh <- []byte("hello\n")
	time.Sleep(100 * time.Millisecond)
	close(p.stdinCh)

	select {
	case <-sink.doneCh:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not report done")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Equal(t, "hello\n", string(sink.stdout))
}

func TestKillTerminatesProcess(t *testing.T) {
	sink := newRecordingSink()
	p, err := Spawn(3, Options{Cmd: "sleep 30"}, sink, nil)
	require.NoError(t, err)

	p.Handle().KillCh <- struct{}{}

	select {
	case <-sink.doneCh:
	case <-time.After(5 * time.Second):
		t.Fatal("killed process did not report done")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.False(t, sink.success)
}
