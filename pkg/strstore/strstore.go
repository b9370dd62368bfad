// Package strstore implements the string store from spec.md §4.B: a set of
// immutable byte sequences allocated from the persistent heap, content
// addressed so find_or_add is idempotent and equality is transparent to
// heterogeneous lookups (plain strings, byte slices, or a strref.Accessor's
// view all hash the same way).
package strstore

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"

	"github.com/seriesdb/seriesdb/pkg/heap"
	"github.com/seriesdb/seriesdb/pkg/pool"
)

// Ptr is a stable, content-derived reference into the string store. Unlike
// a raw heap offset, a Ptr is a pure function of the string's bytes, so it
// is valid before, during, and after any number of process restarts without
// needing offset-pointer translation. The one trade-off spec.md's design
// notes accept implicitly ("any well-defined byte hash suffices" for the
// partitioner) is carried here too: a 64-bit hash collision between two
// distinct strings would alias them. At this module's target scale that
// risk is treated as negligible rather than guarded with a secondary
// byte-compare chain (see DESIGN.md's Open Question resolutions).
type Ptr uint64

// ErrNotFound is returned by Get for an unknown pointer.
var ErrNotFound = errors.New("strstore: pointer not found")

// Store is the string store, backed by one heap's PrefixStringStore
// key-space.
type Store struct {
	h *heap.Heap
}

// Open returns a Store over h's string-store prefix. Safe to call
// repeatedly; the store holds no in-process cache of its own — every
// lookup touches the heap, consistent with spec.md's single-owner-per-shard
// concurrency model needing no extra synchronization here.
func Open(h *heap.Heap) *Store {
	return &Store{h: h}
}

// appendKey appends p's 9-byte heap key onto buf, a buffer this package's
// callers draw from pool.GetByteBuffer so that every lookup (the hottest
// path in the store — one per FindOrAdd/Find/Get call) doesn't allocate a
// fresh 9-byte slice.
func appendKey(buf []byte, p Ptr) []byte {
	return append(buf,
		heap.PrefixStringStore,
		byte(p>>56), byte(p>>48), byte(p>>40), byte(p>>32),
		byte(p>>24), byte(p>>16), byte(p>>8), byte(p),
	)
}

// PtrOf computes the content pointer for s without touching the heap. Used
// by strref.Accessor and the partitioner's callers to predict a pointer
// before (or without) inserting.
func PtrOf(s string) Ptr {
	return Ptr(xxhash.Sum64String(s))
}

// FindOrAdd inserts s if not already present and returns its pointer.
// Idempotent on content: FindOrAdd(a) == FindOrAdd(b) whenever a == b,
// regardless of how many times either has been inserted before.
func (st *Store) FindOrAdd(s string) (Ptr, error) {
	p := PtrOf(s)
	k := appendKey(pool.GetByteBuffer(), p)
	defer pool.PutByteBuffer(k)
	err := st.h.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(k); err == nil {
			return nil // already present, idempotent no-op
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(k, []byte(s))
	})
	if err != nil {
		return 0, fmt.Errorf("strstore: find_or_add: %w", err)
	}
	return p, nil
}

// Find looks up s without inserting it.
func (st *Store) Find(s string) (Ptr, bool, error) {
	p := PtrOf(s)
	_, ok, err := st.Get(p)
	return p, ok, err
}

// Get resolves a pointer back to its string content.
func (st *Store) Get(p Ptr) (string, bool, error) {
	var out string
	var found bool
	k := appendKey(pool.GetByteBuffer(), p)
	defer pool.PutByteBuffer(k)
	err := st.h.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("strstore: get: %w", err)
	}
	return out, found, nil
}

// MustGet resolves a pointer, panicking (a programmer error per spec.md §7)
// if it is unknown. Used by strref.Accessor.ToView, which spec.md requires
// to "yield a view of the full string regardless of inline vs pooled" — a
// pooled accessor referencing a dead pointer is a broken invariant, not a
// recoverable condition.
func (st *Store) MustGet(p Ptr) string {
	s, ok, err := st.Get(p)
	if err != nil {
		panic(fmt.Sprintf("strstore: get %d: %v", p, err))
	}
	if !ok {
		panic(fmt.Sprintf("strstore: dangling pointer %d", p))
	}
	return s
}

// Size returns the number of distinct interned strings.
func (st *Store) Size() (int, error) {
	n := 0
	err := st.h.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte{heap.PrefixStringStore}})
		defer it.Close()
		for it.Seek([]byte{heap.PrefixStringStore}); it.ValidForPrefix([]byte{heap.PrefixStringStore}); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Clear removes every interned string. A distinct, explicit operation per
// spec.md §3 ("clear-all is a distinct explicit operation") — never run as
// a side effect of any other call.
func (st *Store) Clear() error {
	return st.h.DropPrefix(heap.PrefixStringStore)
}

// ForEach iterates every interned (pointer, string) pair. Order is
// unspecified (badger's key order, which is pointer-hash order).
func (st *Store) ForEach(fn func(p Ptr, s string) error) error {
	return st.h.View(func(txn *badger.Txn) error {
		prefix := []byte{heap.PrefixStringStore}
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			var p Ptr
			for i := 1; i < 9; i++ {
				p = p<<8 | Ptr(k[i])
			}
			var s string
			if err := item.Value(func(val []byte) error {
				s = string(val)
				return nil
			}); err != nil {
				return err
			}
			if err := fn(p, s); err != nil {
				return err
			}
		}
		return nil
	})
}
