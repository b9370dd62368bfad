// Package record implements the column-oriented record store from spec.md
// §4.E: a deque of row ids crossed with a set of named, independently-typed
// series, where every series is optional per row (sparse by construction,
// even when its own backing representation is Dense).
package record

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/seriesdb/seriesdb/pkg/pool"
	"github.com/seriesdb/seriesdb/pkg/series"
	"github.com/seriesdb/seriesdb/pkg/strstore"
	"github.com/seriesdb/seriesdb/pkg/value"
)

type seriesHeader struct {
	name string
	col  Column
}

// Store is one record store: a live-row set plus an ordered collection of
// named series. Row ids are assigned by AddRecord and never reused, even
// after RemoveRecord — spec.md §4.E's "row ids are stable for the lifetime
// of the store".
type Store struct {
	strings *strstore.Store // resolves string-series cells; nil is legal if the store holds no string series

	live    *roaring64.Bitmap
	nextRow uint64

	headers []seriesHeader
	index   map[string]int
}

// New creates an empty record store. strings may be nil if the store will
// never hold a string-typed series; Set[strref.Accessor] on a nil strings
// store still works (accessors resolve lazily), but ForAllDynamic and Cell
// reads of string series will panic without one.
func New(strings *strstore.Store) *Store {
	return &Store{
		strings: strings,
		live:    roaring64.New(),
		index:   make(map[string]int),
	}
}

// AddRecord allocates a new row id and marks it live. No series has a value
// for it yet; is_none is true for every series until Set is called.
func (s *Store) AddRecord() uint64 {
	row := s.nextRow
	s.nextRow++
	s.live.Add(row)
	return row
}

// NumRecords returns the number of live rows.
func (s *Store) NumRecords() int { return int(s.live.GetCardinality()) }

// NumSeries returns the number of series currently defined.
func (s *Store) NumSeries() int { return len(s.headers) }

// IsLive reports whether row was allocated by AddRecord and not yet removed.
func (s *Store) IsLive(row uint64) bool { return s.live.Contains(row) }

// FindSeries returns the current index of the named series, or ok=false if
// no such series exists. RemoveSeries shifts every later series' index down
// by one, so an index obtained before a removal must be looked up again.
func (s *Store) FindSeries(name string) (idx int, ok bool) {
	idx, ok = s.index[name]
	return
}

// GetSeriesNames returns every series name in the order it was added.
func (s *Store) GetSeriesNames() []string {
	names := make([]string, len(s.headers))
	for i, h := range s.headers {
		names[i] = h.name
	}
	return names
}

// IsSeriesType reports whether the named series exists and holds T.
func IsSeriesType[T Primitive](s *Store, name string) bool {
	idx, ok := s.index[name]
	if !ok {
		return false
	}
	_, ok = s.headers[idx].col.(*typedColumn[T])
	return ok
}

// AddSeries declares a new series of type T, defaulting to rep if it does
// not already exist. Idempotent: calling it again with the same name
// returns the existing index, even if rep differs (spec.md §9: "series
// creation is idempotent on name; representation is fixed at first creation").
// It panics if name already denotes a series of a different type, since that
// is a programmer error, not a data condition.
func AddSeries[T Primitive](s *Store, name string, rep series.Rep) int {
	if idx, ok := s.index[name]; ok {
		if _, same := s.headers[idx].col.(*typedColumn[T]); !same {
			panic(fmt.Sprintf("record: series %q already exists with a different type", name))
		}
		return idx
	}
	idx := len(s.headers)
	s.headers = append(s.headers, seriesHeader{name: name, col: newTypedColumn[T](rep)})
	s.index[name] = idx
	return idx
}

// RenameSeries renames an existing series in place, preserving its index,
// representation, and data. Returns an error if oldName doesn't exist or
// newName is already taken.
func (s *Store) RenameSeries(oldName, newName string) error {
	idx, ok := s.index[oldName]
	if !ok {
		return fmt.Errorf("record: unknown series %q", oldName)
	}
	if _, taken := s.index[newName]; taken {
		return fmt.Errorf("record: series %q already exists", newName)
	}
	s.headers[idx].name = newName
	delete(s.index, oldName)
	s.index[newName] = idx
	return nil
}

// RemoveSeries drops the named series entirely. Reports whether it existed.
func (s *Store) RemoveSeries(name string) bool {
	idx, ok := s.index[name]
	if !ok {
		return false
	}
	delete(s.index, name)
	s.headers = append(s.headers[:idx], s.headers[idx+1:]...)
	for name, i := range s.index {
		if i > idx {
			s.index[name] = i - 1
		}
	}
	return true
}

// RemoveRecord erases row from every series and retires it from the live
// set. Row ids are never reused; a later AddRecord always allocates a fresh,
// strictly larger id. Reports whether row was live.
func (s *Store) RemoveRecord(row uint64) bool {
	if !s.live.Contains(row) {
		return false
	}
	s.live.Remove(row)
	for _, h := range s.headers {
		h.col.Remove(row)
	}
	return true
}

func (s *Store) column(idx int) Column {
	if idx < 0 || idx >= len(s.headers) {
		panic(fmt.Sprintf("record: series index %d out of range", idx))
	}
	return s.headers[idx].col
}

func column[T Primitive](s *Store, idx int) *typedColumn[T] {
	c, ok := s.column(idx).(*typedColumn[T])
	if !ok {
		panic(fmt.Sprintf("record: series %q is not of the requested type", s.headers[idx].name))
	}
	return c
}

// Set writes v at (idx, row). row must already be live (from AddRecord);
// writing an out-of-range row is a programmer error and panics, matching
// the typed-accessor contract in spec.md §7.
func Set[T Primitive](s *Store, idx int, row uint64, v T) {
	if !s.live.Contains(row) {
		panic(fmt.Sprintf("record: row %d is not live", row))
	}
	column[T](s, idx).s.Set(row, v)
}

// Get reads the typed value at (idx, row). It panics if the series is not of
// type T, if row is out of range, or if the cell is absent — callers that
// expect absence should check IsNone first.
func Get[T Primitive](s *Store, idx int, row uint64) T {
	if !s.live.Contains(row) {
		panic(fmt.Sprintf("record: row %d is not live", row))
	}
	c := column[T](s, idx)
	v, ok := c.s.Get(row)
	if !ok {
		panic(fmt.Sprintf("record: cell (series %q, row %d) is absent", s.headers[idx].name, row))
	}
	return v
}

// IsNone reports whether (idx, row) has no value — including when row is
// out of range or not live, which is the one place absence is an ordinary
// outcome rather than a programmer error (spec.md §7).
func (s *Store) IsNone(idx int, row uint64) bool {
	if idx < 0 || idx >= len(s.headers) || !s.live.Contains(row) {
		return true
	}
	return !s.headers[idx].col.Contains(row)
}

// Remove erases the cell at (idx, row), leaving the row itself live.
// Reports whether a value was present.
func (s *Store) Remove(idx int, row uint64) bool {
	return s.column(idx).Remove(row)
}

// Size returns the number of present cells in the named series.
func (s *Store) Size(idx int) int { return s.column(idx).Size() }

// LoadFactor returns the named series' present-cell count divided by the
// store's current live-row count.
func (s *Store) LoadFactor(idx int) float64 {
	n := s.NumRecords()
	if n == 0 {
		return 0
	}
	return float64(s.column(idx).Size()) / float64(n)
}

// Convert migrates the named series between Dense and Sparse representation
// without touching any other series.
func (s *Store) Convert(idx int, rep series.Rep) { s.column(idx).Convert(rep) }

// ForAll visits every present (row, value) pair of a typed series in
// ascending row order.
func ForAll[T Primitive](s *Store, idx int, fn func(row uint64, v T)) {
	column[T](s, idx).s.ForAll(fn)
}

// ForAllRows visits every live row id in ascending order, independent of any
// particular series.
func (s *Store) ForAllRows(fn func(row uint64)) {
	it := s.live.Iterator()
	for it.HasNext() {
		fn(it.Next())
	}
}

// Cell dynamically reads the value at (idx, row), reporting false for an
// absent cell or a non-live row. Used by predicate binding and anything else
// that needs a series' value without committing to its static type.
func (s *Store) Cell(idx int, row uint64) (value.Cell, bool) {
	if !s.live.Contains(row) {
		return value.None, false
	}
	return s.column(idx).Cell(row, s.strings)
}

// VisitField invokes fn with the dynamic value at (name, row) iff the
// series exists, the row is live, and a value is present there; otherwise it
// is a no-op. It reports whether fn was invoked.
func (s *Store) VisitField(name string, row uint64, fn func(value.Cell)) bool {
	idx, ok := s.index[name]
	if !ok || !s.live.Contains(row) {
		return false
	}
	cell, ok := s.headers[idx].col.Cell(row, s.strings)
	if !ok {
		return false
	}
	fn(cell)
	return true
}

// ForAllDynamic visits every present (row, value) pair of the named series
// as dynamically-typed value.Cell, in ascending row order.
func (s *Store) ForAllDynamic(idx int, fn func(row uint64, v value.Cell)) {
	col := s.column(idx)
	col.ForAllRows(func(row uint64) {
		cell, ok := col.Cell(row, s.strings)
		if ok {
			fn(row, cell)
		}
	})
}

// ForAllDynamicRows visits every live row with the dynamic values of every
// series at that row, in series-declaration order; absent cells report
// value.None. cells is reused across calls to avoid a per-row allocation
// (spec.md §4.I notes cooperative iteration may stream cells this way) —
// callers that retain a value beyond the callback must copy it.
func (s *Store) ForAllDynamicRows(fn func(row uint64, cells []value.Cell)) {
	cells := pool.GetCellSlice()
	if cap(cells) < len(s.headers) {
		cells = make([]value.Cell, len(s.headers))
	} else {
		cells = cells[:len(s.headers)]
	}
	defer pool.PutCellSlice(cells)
	s.ForAllRows(func(row uint64) {
		for i, h := range s.headers {
			if cell, ok := h.col.Cell(row, s.strings); ok {
				cells[i] = cell
			} else {
				cells[i] = value.None
			}
		}
		fn(row, cells)
	})
}
