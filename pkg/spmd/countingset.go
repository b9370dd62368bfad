package spmd

import (
	"context"
	"sync"
)

// CountingSet is a distributed multiset keyed by string: any rank can
// increment any key, the increment is routed to the key's owning rank via
// Async, and after a Barrier each rank holds the authoritative count for
// every key it owns. This is the "distributed counting set" spec.md's §4.J
// degree algorithm builds on.
//
// One CountingSet instance must be shared by every participating rank —
// construct it once and hand the same pointer to each rank's goroutine,
// rather than calling NewCountingSet separately per rank. Async's contract
// only runs a closure "on rank dest at some point before the next barrier";
// it says nothing about whose captured state that closure mutates. A
// closure built from a per-rank instance still closes over that instance,
// so two independently-constructed CountingSets would each receive only
// their own rank's self-increments, silently losing every cross-rank one.
// Sharing one instance sidesteps the question entirely: every Incr, from
// whichever rank, mutates the one map every rank reads from. See
// pkg/spmd/local's package doc for why this only works when ranks are
// goroutines in one process; pkg/spmd/tcp's Async refuses cross-rank
// delivery outright rather than deliver this silently wrong.
type CountingSet struct {
	rt   Runtime
	mu   sync.Mutex
	data map[string]int
}

// NewCountingSet creates an empty counting set. See the type doc for why
// the returned pointer, not a fresh call per rank, must be shared across
// every rank using it.
func NewCountingSet(rt Runtime) *CountingSet {
	return &CountingSet{rt: rt, data: make(map[string]int)}
}

// Incr increments key's count by one on owner's rank. It always goes
// through Runtime.Async, even when owner is this rank — that keeps every
// mutation of cs.data serialized through the same delivery path (a rank's
// own direct calls would otherwise race with deliveries arriving from other
// ranks on a concurrently-running mailbox goroutine). Safe to call before a
// Barrier; counts are only guaranteed complete for keys owned by this rank
// after Barrier returns.
func (cs *CountingSet) Incr(ctx context.Context, owner int, key string) {
	cs.rt.Async(owner, func(context.Context) {
		cs.mu.Lock()
		cs.data[key]++
		cs.mu.Unlock()
	})
}

// Count returns key's count as observed by this rank. Meaningful only for
// keys this rank owns, and only after a Barrier.
func (cs *CountingSet) Count(key string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.data[key]
}

// Len returns the number of distinct keys recorded so far.
func (cs *CountingSet) Len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.data)
}

// ForEach visits every (key, count) pair recorded so far, in unspecified
// order.
func (cs *CountingSet) ForEach(fn func(key string, count int)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for k, c := range cs.data {
		fn(k, c)
	}
}
