package spmd

import (
	"context"
	"sync"
)

// KVMap is a distributed key→value map: any rank can Put an entry owned by
// any other rank, routed via Async, and after a Barrier each rank holds the
// authoritative entries for every key it owns. This backs the node-index
// backfill in spec.md §4.I's edge ingest and the key routing in
// graph.EraseEdgesByKeys.
//
// As with CountingSet, one KVMap instance must be shared by every
// participating rank rather than constructed separately per rank — see
// CountingSet's doc for why.
type KVMap[V any] struct {
	rt   Runtime
	mu   sync.Mutex
	data map[string]V
}

// NewKVMap creates an empty distributed map. See the type doc for why the
// returned pointer must be shared across every rank using it.
func NewKVMap[V any](rt Runtime) *KVMap[V] {
	return &KVMap[V]{rt: rt, data: make(map[string]V)}
}

// Put writes key=v on owner's rank. Always routed through Runtime.Async,
// even for owner == this rank — see CountingSet.Incr for why that matters.
func (m *KVMap[V]) Put(ctx context.Context, owner int, key string, v V) {
	m.rt.Async(owner, func(context.Context) {
		m.mu.Lock()
		m.data[key] = v
		m.mu.Unlock()
	})
}

// Get reads key from the map. Meaningful only for keys this rank owns, and
// only after a Barrier.
func (m *KVMap[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// Len returns the number of entries recorded so far.
func (m *KVMap[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// ForEach visits every (key, value) pair recorded so far, in unspecified
// order.
func (m *KVMap[V]) ForEach(fn func(key string, v V)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.data {
		fn(k, v)
	}
}
