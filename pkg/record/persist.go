package record

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/seriesdb/seriesdb/pkg/heap"
	"github.com/seriesdb/seriesdb/pkg/series"
	"github.com/seriesdb/seriesdb/pkg/strref"
	"github.com/seriesdb/seriesdb/pkg/strstore"
	"github.com/seriesdb/seriesdb/pkg/value"
)

// snapshotSuffix follows the Store's prefix byte to form the single badger
// key a Store is persisted under, using the heap's prefix-byte namespacing: every named object in the heap owns one
// leading prefix byte, and everything after it is that object's own key space
// (here, a single fixed suffix, since a Store persists as one blob rather
// than per-cell keys — spec.md's persistence contract only requires that
// reopening a heap sees prior writes, not a particular on-disk layout).
var snapshotSuffix = []byte{0x00}

type cellSnapshot struct {
	Row  uint64
	Cell value.Cell
}

type seriesSnapshot struct {
	Name  string
	Kind  value.Kind
	Rep   series.Rep
	Cells []cellSnapshot
}

type storeSnapshot struct {
	NextRow uint64
	Live    []uint64
	Series  []seriesSnapshot
}

// SaveTo serializes the store as a single gob-encoded blob and writes it
// under the heap's prefix byte. It overwrites any previous snapshot there.
func (s *Store) SaveTo(h *heap.Heap, prefix byte) error {
	snap := storeSnapshot{NextRow: s.nextRow}
	s.ForAllRows(func(row uint64) { snap.Live = append(snap.Live, row) })

	for _, hdr := range s.headers {
		ss := seriesSnapshot{Name: hdr.name, Kind: hdr.col.ValueKind(), Rep: hdr.col.Rep()}
		hdr.col.ForAllRows(func(row uint64) {
			cell, ok := hdr.col.Cell(row, s.strings)
			if ok {
				ss.Cells = append(ss.Cells, cellSnapshot{Row: row, Cell: cell})
			}
		})
		snap.Series = append(snap.Series, ss)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("record: encode snapshot: %w", err)
	}
	key := append([]byte{prefix}, snapshotSuffix...)
	return h.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf.Bytes())
	})
}

// LoadFrom reconstructs a store previously written with SaveTo. It returns a
// fresh, empty store (ok=false) if no snapshot exists under prefix yet — the
// normal "first open" case (spec.md §4.A: "opening a fresh path behaves as
// construction").
func LoadFrom(h *heap.Heap, prefix byte, strings *strstore.Store) (st *Store, ok bool, err error) {
	key := append([]byte{prefix}, snapshotSuffix...)
	var raw []byte
	err = h.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("record: read snapshot: %w", err)
	}
	if raw == nil {
		return New(strings), false, nil
	}

	var snap storeSnapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snap); err != nil {
		return nil, false, fmt.Errorf("record: decode snapshot: %w", err)
	}

	st = New(strings)
	st.nextRow = snap.NextRow
	for _, row := range snap.Live {
		st.live.Add(row)
	}
	for _, ss := range snap.Series {
		idx := addSeriesForKind(st, ss.Name, ss.Kind, ss.Rep)
		for _, cs := range ss.Cells {
			if err := setCellForKind(st, idx, cs.Row, ss.Kind, cs.Cell); err != nil {
				return nil, false, err
			}
		}
	}
	return st, true, nil
}

func addSeriesForKind(s *Store, name string, kind value.Kind, rep series.Rep) int {
	switch kind {
	case value.KindBool:
		return AddSeries[bool](s, name, rep)
	case value.KindInt64:
		return AddSeries[int64](s, name, rep)
	case value.KindUint64:
		return AddSeries[uint64](s, name, rep)
	case value.KindDouble:
		return AddSeries[float64](s, name, rep)
	case value.KindString:
		return AddSeries[strref.Accessor](s, name, rep)
	default:
		panic(fmt.Sprintf("record: unsupported series kind %v", kind))
	}
}

func setCellForKind(s *Store, idx int, row uint64, kind value.Kind, cell value.Cell) error {
	switch kind {
	case value.KindBool:
		Set[bool](s, idx, row, cell.Bool)
	case value.KindInt64:
		Set[int64](s, idx, row, cell.Int64)
	case value.KindUint64:
		Set[uint64](s, idx, row, cell.Uint64)
	case value.KindDouble:
		Set[float64](s, idx, row, cell.Double)
	case value.KindString:
		if s.strings == nil {
			return fmt.Errorf("record: cannot restore string series %q without a string store", s.headers[idx].name)
		}
		a, err := strref.Of(s.strings, cell.Str)
		if err != nil {
			return fmt.Errorf("record: intern restored string: %w", err)
		}
		Set[strref.Accessor](s, idx, row, a)
	default:
		return fmt.Errorf("record: unsupported series kind %v", kind)
	}
	return nil
}
