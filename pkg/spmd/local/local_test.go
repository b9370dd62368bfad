package local

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seriesdb/seriesdb/pkg/spmd"
)

func TestNewWorldAssignsRankAndWorld(t *testing.T) {
	rts := NewWorld(3)
	for i, rt := range rts {
		require.Equal(t, i, rt.Rank())
		require.Equal(t, 3, rt.World())
	}
}

func TestBarrierOrdersAsyncDelivery(t *testing.T) {
	rts := NewWorld(2)
	var mu sync.Mutex
	delivered := false

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		rts[0].Async(1, func(ctx context.Context) {
			mu.Lock()
			delivered = true
			mu.Unlock()
		})
		require.NoError(t, rts[0].Barrier(context.Background()))
	}()
	go func() {
		defer wg.Done()
		require.NoError(t, rts[1].Barrier(context.Background()))
	}()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.True(t, delivered, "Async send before Barrier must be visible after it returns")
}

func TestAllReduceSum(t *testing.T) {
	rts := NewWorld(4)
	results := make([]float64, 4)
	var wg sync.WaitGroup
	wg.Add(4)
	for r := 0; r < 4; r++ {
		go func(r int) {
			defer wg.Done()
			v, err := rts[r].AllReduce(context.Background(), spmd.Sum, float64(r+1))
			require.NoError(t, err)
			results[r] = v
		}(r)
	}
	wg.Wait()
	for _, v := range results {
		require.Equal(t, 10.0, v) // 1+2+3+4
	}
}

func TestAllReduceMax(t *testing.T) {
	rts := NewWorld(3)
	results := make([]float64, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	values := []float64{5, 99, 2}
	for r := 0; r < 3; r++ {
		go func(r int) {
			defer wg.Done()
			v, err := rts[r].AllReduce(context.Background(), spmd.Max, values[r])
			require.NoError(t, err)
			results[r] = v
		}(r)
	}
	wg.Wait()
	for _, v := range results {
		require.Equal(t, 99.0, v)
	}
}

func TestAsyncChainCompletesBeforeBarrierReturns(t *testing.T) {
	rts := NewWorld(3)
	var mu sync.Mutex
	var chainDone bool

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		// rank 0 sends to rank 1, whose handler sends on to rank 2.
		rts[0].Async(1, func(ctx context.Context) {
			rts[1].Async(2, func(ctx context.Context) {
				mu.Lock()
				chainDone = true
				mu.Unlock()
			})
		})
		require.NoError(t, rts[0].Barrier(context.Background()))
	}()
	go func() {
		defer wg.Done()
		require.NoError(t, rts[1].Barrier(context.Background()))
	}()
	go func() {
		defer wg.Done()
		require.NoError(t, rts[2].Barrier(context.Background()))
	}()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.True(t, chainDone)
}

func TestCountingSetAcrossRanks(t *testing.T) {
	rts := NewWorld(2)
	// One CountingSet shared by both rank goroutines: Async only promises
	// delivery order, not which instance a closure captures, so two
	// separately-constructed CountingSets would each see only their own
	// rank's self-increments.
	cs := spmd.NewCountingSet(rts[0])

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		cs.Incr(context.Background(), 1, "shared")
		require.NoError(t, rts[0].Barrier(context.Background()))
	}()
	go func() {
		defer wg.Done()
		cs.Incr(context.Background(), 1, "shared")
		require.NoError(t, rts[1].Barrier(context.Background()))
	}()
	wg.Wait()

	require.Equal(t, 2, cs.Count("shared"))
}
