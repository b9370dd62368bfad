package tcp

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seriesdb/seriesdb/pkg/spmd"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func dialWorld(t *testing.T, world int) []*Runtime {
	t.Helper()
	topo := make(Topology, world)
	for i := range topo {
		topo[i] = freeAddr(t)
	}

	rts := make([]*Runtime, world)
	var wg sync.WaitGroup
	wg.Add(world)
	for r := 0; r < world; r++ {
		go func(r int) {
			defer wg.Done()
			rt, err := Dial(r, topo)
			require.NoError(t, err)
			rts[r] = rt
		}(r)
	}
	wg.Wait()
	t.Cleanup(func() {
		for _, rt := range rts {
			rt.Close()
		}
	})
	return rts
}

func TestRankAndWorld(t *testing.T) {
	rts := dialWorld(t, 3)
	for i, rt := range rts {
		require.Equal(t, i, rt.Rank())
		require.Equal(t, 3, rt.World())
	}
}

func TestBarrierRendezvousesAllRanks(t *testing.T) {
	rts := dialWorld(t, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	for _, rt := range rts {
		go func(rt *Runtime) {
			defer wg.Done()
			require.NoError(t, rt.Barrier(context.Background()))
		}(rt)
	}
	wg.Wait()
}

func TestAllReduceSumAcrossProcessesEmulatedOverLoopback(t *testing.T) {
	rts := dialWorld(t, 3)
	results := make([]float64, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	for r, rt := range rts {
		go func(r int, rt *Runtime) {
			defer wg.Done()
			v, err := rt.AllReduce(context.Background(), spmd.Sum, float64(r+1))
			require.NoError(t, err)
			results[r] = v
		}(r, rt)
	}
	wg.Wait()
	for _, v := range results {
		require.Equal(t, 6.0, v) // 1+2+3
	}
}

func TestSendInvokesRegisteredHandlerOnDestination(t *testing.T) {
	rts := dialWorld(t, 2)

	var mu sync.Mutex
	var received []byte
	done := make(chan struct{})
	rts[1].RegisterHandler(7, func(from int, payload []byte) {
		mu.Lock()
		received = payload
		mu.Unlock()
		close(done)
	})

	require.NoError(t, rts[0].Send(1, 7, []byte("hello")))
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []byte("hello"), received)
}

func TestAsyncPanicsForRemoteDest(t *testing.T) {
	rts := dialWorld(t, 2)
	require.Panics(t, func() {
		rts[0].Async(1, func(context.Context) {})
	})
}

func TestAsyncRunsLocallyForSelf(t *testing.T) {
	rts := dialWorld(t, 1)
	called := false
	rts[0].Async(0, func(context.Context) { called = true })
	require.True(t, called)
}
