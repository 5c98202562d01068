package postoffice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeliverFIFOOrdering(t *testing.T) {
	p := New(time.Hour)
	defer p.Close()

	mb := p.MakeMailbox("r1", 8)
	require.True(t, p.Deliver("r1", 1))
	require.True(t, p.Deliver("r1", 2))
	require.True(t, p.Deliver("r1", 3))

	ctx := context.Background()
	for _, want := range []int{1, 2, 3} {
		v, ok := mb.Next(ctx)
		require.True(t, ok)
		require.Equal(t, want, v)
	}
}

func TestDeliverUnknownIdWithoutDefaultDrops(t *testing.T) {
	p := New(time.Hour)
	defer p.Close()
	require.False(t, p.Deliver("missing", "x"))
}

func TestDeliverFallsBackToDefaultMailbox(t *testing.T) {
	p := New(time.Hour)
	defer p.Close()
	def := p.AssignDefaultMailbox(4)

	require.True(t, p.Deliver("unregistered", "hi"))
	v, ok := def.Next(context.Background())
	require.True(t, ok)
	require.Equal(t, "hi", v)
}

func TestCancelRemovesMailbox(t *testing.T) {
	p := New(time.Hour)
	defer p.Close()
	mb := p.MakeMailbox("r1", 1)
	p.Cancel("r1")
	require.True(t, mb.IsClosed())
	require.False(t, p.Deliver("r1", "x"))
}

func TestMapFiltersWithoutYielding(t *testing.T) {
	p := New(time.Hour)
	defer p.Close()
	mb := p.MakeMailbox("r1", 8)
	evens := mb.MapOpt(func(v Message) (Message, bool) {
		n := v.(int)
		if n%2 == 0 {
			return n, true
		}
		return nil, false
	})

	for i := 1; i <= 5; i++ {
		p.Deliver("r1", i)
	}

	v, ok := evens.Next(context.Background())
	require.True(t, ok)
	require.Equal(t, 2, v)
	v, ok = evens.Next(context.Background())
	require.True(t, ok)
	require.Equal(t, 4, v)
}

func TestReaperRemovesClosedMailboxes(t *testing.T) {
	p := New(10 * time.Millisecond)
	defer p.Close()
	mb := p.MakeMailbox("r1", 1)
	mb.Close()

	require.Eventually(t, func() bool {
		return !p.Deliver("r1", 1)
	}, time.Second, 5*time.Millisecond)
}
