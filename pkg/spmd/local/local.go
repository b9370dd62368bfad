// Package local implements an spmd.Runtime where every rank is a goroutine
// in one process, for tests and single-machine use. Each rank drains its own
// mailbox on a dedicated background goroutine — a ticker-free, channel-driven
// worker loop generalized from "one cache, one flush loop" to "N ranks, N
// mailboxes".
package local

import (
	"context"
	"sync"
	"time"

	"github.com/seriesdb/seriesdb/pkg/spmd"
)

// hub is the shared coordination state for one world of local ranks:
// mailboxes for Async delivery, a generation-counted rendezvous for
// Barrier, and a second one for AllReduce.
type hub struct {
	pending int64 // atomic: tasks enqueued but not yet executed, across all mailboxes; must stay the struct's first field for 32-bit atomic alignment

	world     int
	mailboxes []chan func(context.Context)

	barrierMu   sync.Mutex
	barrierCond *sync.Cond
	barrierGen  int
	arrived     int

	reduceMu   sync.Mutex
	reduceCond *sync.Cond
	reduceGen  int
	reduceSeen int
	reduceOp   spmd.ReduceOp
	reduceAcc  float64
	reduceOut  float64
}

func newHub(world int) *hub {
	h := &hub{world: world, mailboxes: make([]chan func(context.Context), world)}
	for i := range h.mailboxes {
		h.mailboxes[i] = make(chan func(context.Context), 4096)
	}
	h.barrierCond = sync.NewCond(&h.barrierMu)
	h.reduceCond = sync.NewCond(&h.reduceMu)
	return h
}

// Runtime is one rank's view of a local world.
type Runtime struct {
	h    *hub
	rank int
}

// NewWorld spins up world ranks, each a *Runtime backed by a shared hub and
// a dedicated mailbox-draining goroutine. The returned slice's index i is
// rank i's Runtime.
func NewWorld(world int) []spmd.Runtime {
	if world <= 0 {
		panic("local: world size must be positive")
	}
	h := newHub(world)
	rts := make([]spmd.Runtime, world)
	for r := 0; r < world; r++ {
		rt := &Runtime{h: h, rank: r}
		rts[r] = rt
		go rt.drain()
	}
	return rts
}

func (rt *Runtime) drain() {
	for fn := range rt.h.mailboxes[rt.rank] {
		fn(context.Background())
		atomicAdd(&rt.h.pending, -1)
	}
}

func (rt *Runtime) Rank() int  { return rt.rank }
func (rt *Runtime) World() int { return rt.h.world }

// Async enqueues fn on dest's mailbox. Never blocks on dest's execution —
// only on the mailbox channel itself, which is sized generously enough
// that filling it indicates a runaway fan-out rather than ordinary use.
func (rt *Runtime) Async(dest int, fn func(ctx context.Context)) {
	atomicAdd(&rt.h.pending, 1)
	rt.h.mailboxes[dest] <- fn
}

// Barrier rendezvous with every other rank, then waits for the hub's
// in-flight task count to reach zero — necessary because a delivered task
// can itself enqueue further Async calls (message chains), so rendezvous
// alone would let a rank proceed before a chained delivery lands.
func (rt *Runtime) Barrier(ctx context.Context) error {
	rt.h.barrierMu.Lock()
	gen := rt.h.barrierGen
	rt.h.arrived++
	if rt.h.arrived == rt.h.world {
		rt.h.arrived = 0
		rt.h.barrierGen++
		rt.h.barrierCond.Broadcast()
	} else {
		for rt.h.barrierGen == gen {
			rt.h.barrierCond.Wait()
		}
	}
	rt.h.barrierMu.Unlock()

	for atomicLoad(&rt.h.pending) != 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}

// AllReduce combines v from every rank with op, blocking until all world
// ranks have called AllReduce for this round.
func (rt *Runtime) AllReduce(ctx context.Context, op spmd.ReduceOp, v float64) (float64, error) {
	h := rt.h
	h.reduceMu.Lock()
	gen := h.reduceGen
	if h.reduceSeen == 0 {
		h.reduceAcc = v
		h.reduceOp = op
	} else {
		h.reduceAcc = spmd.ApplyOp(h.reduceOp, h.reduceAcc, v)
	}
	h.reduceSeen++

	var out float64
	if h.reduceSeen == h.world {
		out = h.reduceAcc
		h.reduceOut = out
		h.reduceSeen = 0
		h.reduceGen++
		h.reduceCond.Broadcast()
	} else {
		for h.reduceGen == gen {
			h.reduceCond.Wait()
		}
		out = h.reduceOut
	}
	h.reduceMu.Unlock()
	return out, nil
}
