package spmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// syncRuntime is a single-rank, synchronous Runtime stub used to test
// CountingSet/KVMap's dispatch logic in isolation from any real transport.
type syncRuntime struct{}

func (syncRuntime) Rank() int  { return 0 }
func (syncRuntime) World() int { return 1 }
func (syncRuntime) Async(dest int, fn func(ctx context.Context)) {
	fn(context.Background())
}
func (syncRuntime) Barrier(ctx context.Context) error { return nil }
func (syncRuntime) AllReduce(ctx context.Context, op ReduceOp, v float64) (float64, error) {
	return v, nil
}

func TestApplyOpSum(t *testing.T) {
	require.Equal(t, 5.0, ApplyOp(Sum, 2, 3))
}

func TestApplyOpMax(t *testing.T) {
	require.Equal(t, 5.0, ApplyOp(Max, 2, 5))
	require.Equal(t, 5.0, ApplyOp(Max, 5, 2))
}

func TestApplyOpMin(t *testing.T) {
	require.Equal(t, 2.0, ApplyOp(Min, 2, 5))
	require.Equal(t, 2.0, ApplyOp(Min, 5, 2))
}

func TestCountingSetIncrAccumulates(t *testing.T) {
	cs := NewCountingSet(syncRuntime{})
	ctx := context.Background()
	cs.Incr(ctx, 0, "a")
	cs.Incr(ctx, 0, "a")
	cs.Incr(ctx, 0, "b")

	require.Equal(t, 2, cs.Count("a"))
	require.Equal(t, 1, cs.Count("b"))
	require.Equal(t, 2, cs.Len())
}

func TestCountingSetForEachVisitsEveryKey(t *testing.T) {
	cs := NewCountingSet(syncRuntime{})
	ctx := context.Background()
	cs.Incr(ctx, 0, "a")
	cs.Incr(ctx, 0, "b")

	seen := map[string]int{}
	cs.ForEach(func(key string, count int) { seen[key] = count })
	require.Equal(t, map[string]int{"a": 1, "b": 1}, seen)
}

func TestKVMapPutGet(t *testing.T) {
	m := NewKVMap[int](syncRuntime{})
	ctx := context.Background()
	m.Put(ctx, 0, "node-1", 42)

	v, ok := m.Get("node-1")
	require.True(t, ok)
	require.Equal(t, 42, v)

	_, ok = m.Get("missing")
	require.False(t, ok)
	require.Equal(t, 1, m.Len())
}
