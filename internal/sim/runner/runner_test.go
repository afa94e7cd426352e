package runner

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"voxelmind.ai/internal/sim/level"
	"voxelmind.ai/internal/sim/level/voxel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type counter struct {
	id    string
	ticks atomic.Int32
	panic bool
}

func (c *counter) ID() string { return c.id }

func (c *counter) Tick(level.World) {
	c.ticks.Add(1)
	if c.panic {
		panic("boom")
	}
}

func population(n int) []*counter {
	out := make([]*counter, n)
	for i := range out {
		out[i] = &counter{id: fmt.Sprintf("e%02d", i)}
	}
	return out
}

func newWorld(t *testing.T) *voxel.World {
	t.Helper()
	w, err := voxel.New(voxel.Config{})
	require.NoError(t, err)
	return w
}

func TestPartition(t *testing.T) {
	want := []Span{{0, 4}, {4, 7}, {7, 10}}
	if diff := cmp.Diff(want, Partition(10, 3)); diff != "" {
		t.Fatalf("partition mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, Partition(2, 8), 2)
	require.Nil(t, Partition(0, 4))
	require.Equal(t, []Span{{0, 5}}, Partition(5, 0))
}

func TestStepTicksEveryEntityOnce(t *testing.T) {
	w := newWorld(t)
	ents := population(37)
	r := New[*counter](WithShards(4))
	for step := 1; step <= 3; step++ {
		failed, err := r.Step(context.Background(), w, ents)
		require.NoError(t, err)
		require.Empty(t, failed)
		for _, e := range ents {
			require.EqualValues(t, step, e.ticks.Load(), e.id)
		}
	}
}

func TestPanicIsIsolatedToTheEntity(t *testing.T) {
	w := newWorld(t)
	ents := population(6)
	ents[1].panic = true
	ents[4].panic = true
	r := New[*counter](WithShards(2))

	failed, err := r.Step(context.Background(), w, ents)
	require.NoError(t, err)
	require.Equal(t, []string{"e01", "e04"}, failed)
	for _, e := range ents {
		require.EqualValues(t, 1, e.ticks.Load(), e.id)
	}
}

func TestCancelledStep(t *testing.T) {
	w := newWorld(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New[*counter](WithShards(3)).Step(ctx, w, population(9))
	require.ErrorIs(t, err, context.Canceled)
}
