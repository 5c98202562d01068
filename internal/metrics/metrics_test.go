package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestDefaultSinkIsRegisteredOnce(t *testing.T) {
	s1 := Default()
	s2 := Default()
	require.Same(t, s1, s2)
}

func TestCountersIncrementThroughSink(t *testing.T) {
	s := Default()
	before := testutil.ToFloat64(s.FramesRead)
	s.IncFramesRead()
	require.Equal(t, before+1, testutil.ToFloat64(s.FramesRead))
}

func TestNilSinkMethodsAreNoOps(t *testing.T) {
	var s *Sink
	require.NotPanics(t, func() {
		s.IncFramesRead()
		s.IncFramesWritten()
		s.SetActiveMailboxes(3)
		s.SetActiveProcesses(1)
		s.ObserveDispatch(0.01)
	})
}
