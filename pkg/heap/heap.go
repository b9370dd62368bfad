// Package heap provides the persistent, named-object store every other
// component in seriesdb is built on.
//
// A Heap is one BadgerDB database per file-system shard (one per rank, per
// the SPMD shared-resource policy). Named objects live in disjoint key-space
// prefixes rather than separate files:
//
//	0x01  string store arena   (content-hash -> length-prefixed bytes)
//	0x02  nodes record store   (series headers + cell data)
//	0x03  edges record store
//	0x04  nodeindex            (node key -> local row id)
//
// This gives every consumer the contract spec.md asks of a persistent heap:
// "named lookup returns the same object across runs, with persistent offset
// pointers preserved" — here, "pointer" is realized as a content hash (see
// pkg/strstore) or a row id, neither of which depends on process-relative
// memory addresses, so there is nothing to translate on reopen.
package heap

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// Reserved prefixes for named objects. A component owns one prefix and
// never reads or writes another's.
const (
	PrefixStringStore = byte(0x01)
	PrefixNodes       = byte(0x02)
	PrefixEdges       = byte(0x03)
	PrefixNodeIndex   = byte(0x04)
)

// ErrReadOnly is returned by mutating calls on a heap opened read-only.
var ErrReadOnly = errors.New("heap: opened read-only")

// Options configures Open.
type Options struct {
	// Overwrite removes any existing heap at path before creating a fresh one.
	Overwrite bool

	// ReadOnly opens the heap without permitting writes. Mutating calls
	// through Heap return ErrReadOnly instead of panicking, since opening
	// read-only is a distinct, expected mode (spec.md §5).
	ReadOnly bool

	// SyncWrites forces fsync after every write. Off by default; callers
	// that need durability per-write (rather than per-barrier, the SPMD
	// norm) should set it explicitly.
	SyncWrites bool
}

// Heap is a memory-mapped-backed persistent store with a named-object
// directory, realized over BadgerDB.
type Heap struct {
	db       *badger.DB
	path     string
	readOnly bool
}

// Open creates or reopens a heap at path.
//
// If path does not exist, or opts.Overwrite is true, a fresh heap is
// created. Otherwise the existing heap is reopened in place — callers that
// expect specific named objects to already exist (e.g. the graph façade's
// four reserved series) must check for them after Open returns; their
// absence is a programmer error per spec.md §7.
func Open(path string, opts Options) (*Heap, error) {
	if opts.Overwrite {
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("heap: overwrite %s: %w", path, err)
		}
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("heap: mkdir %s: %w", path, err)
	}

	badgerOpts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithSyncWrites(opts.SyncWrites).
		WithReadOnly(opts.ReadOnly)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("heap: open %s: %w", path, err)
	}

	return &Heap{db: db, path: path, readOnly: opts.ReadOnly}, nil
}

// IsNew reports whether path contains no heap yet (used by callers that
// need to decide whether to create the four reserved graph series).
func IsNew(path string) bool {
	entries, err := os.ReadDir(path)
	if err != nil {
		return true
	}
	return len(entries) == 0
}

// ReadOnly reports whether this heap rejects mutating operations.
func (h *Heap) ReadOnly() bool { return h.readOnly }

// Path returns the directory this heap was opened from.
func (h *Heap) Path() string { return h.path }

// DB exposes the underlying BadgerDB for components (string store, record
// store) that need direct transaction access. Not exported API surface for
// end users of the graph façade — only for components within this module.
func (h *Heap) DB() *badger.DB { return h.db }

// Sync forces the value log to flush without closing the heap, so a
// concurrently opened read-only rank observes durable data after a barrier.
func (h *Heap) Sync() error {
	if h.readOnly {
		return nil
	}
	return h.db.Sync()
}

// Close flushes and closes the heap. Safe to call once.
func (h *Heap) Close() error {
	return h.db.Close()
}

// View runs fn in a read-only transaction.
func (h *Heap) View(fn func(txn *badger.Txn) error) error {
	return h.db.View(fn)
}

// Update runs fn in a read-write transaction. Returns ErrReadOnly if the
// heap was opened read-only.
func (h *Heap) Update(fn func(txn *badger.Txn) error) error {
	if h.readOnly {
		return ErrReadOnly
	}
	return h.db.Update(fn)
}

// DropPrefix removes every key under the given named-object prefix, used by
// Graph.Open(overwrite) style resets and by string store Clear().
func (h *Heap) DropPrefix(prefix byte) error {
	if h.readOnly {
		return ErrReadOnly
	}
	return h.db.DropPrefix([]byte{prefix})
}
