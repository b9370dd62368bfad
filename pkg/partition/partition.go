// Package partition implements the partitioner from spec.md §4.F: a pure
// function mapping a key to an owning rank, used to route node and edge
// records to shards in a deterministic, reproducible way.
package partition

import "github.com/cespare/xxhash/v2"

// Owner returns the rank that owns key under a world of the given size.
// Deterministic and stable across processes and restarts: the same (key,
// world) pair always maps to the same rank, independent of insertion order
// or any other process-relative state (spec.md §4.F, "any well-defined byte
// hash suffices" — this module uses the same xxhash the string store does,
// so a key's owning rank can be computed without touching the heap at all).
//
// Panics if world <= 0, since a zero- or negative-size world is a
// configuration error, not a data condition.
func Owner(key string, world int) int {
	if world <= 0 {
		panic("partition: world size must be positive")
	}
	h := xxhash.Sum64String(key)
	return int(h % uint64(world))
}

// OwnerBytes is Owner's byte-slice counterpart, for callers (e.g. ingest
// coercion from non-UTF8 column data) that already hold raw bytes and would
// otherwise pay a string-conversion allocation.
func OwnerBytes(key []byte, world int) int {
	if world <= 0 {
		panic("partition: world size must be positive")
	}
	h := xxhash.Sum64(key)
	return int(h % uint64(world))
}

// Owns reports whether rank is key's owner under a world of the given size.
func Owns(key string, world, rank int) bool {
	return Owner(key, world) == rank
}
