// Package series implements the adaptive dense/sparse column container from
// spec.md §4.D: a typed, single-column store indexed by row id, switchable
// in place between a densely-packed slice and a sparse map while preserving
// presence semantics exactly.
package series

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Rep selects a series' internal representation. Conversion (Convert) is
// the only migration path; new series default to Dense per spec.md §9
// ("default new series to dense... do not attempt auto-conversion").
type Rep int

const (
	Dense Rep = iota
	Sparse
)

func (r Rep) String() string {
	if r == Dense {
		return "dense"
	}
	return "sparse"
}

// Series[T] is one typed column. Presence is tracked by a roaring64 bitmap
// in both representations, so Contains, Size, and ForAll never need to
// special-case which backing store is active — only Get/Set/Erase/Convert
// touch the dense slice or sparse map directly.
type Series[T any] struct {
	rep     Rep
	present *roaring64.Bitmap
	dense   []T
	sparse  map[uint64]T
}

// New creates an empty series in the given representation.
func New[T any](rep Rep) *Series[T] {
	s := &Series[T]{rep: rep, present: roaring64.New()}
	if rep == Sparse {
		s.sparse = make(map[uint64]T)
	}
	return s
}

// Rep returns the current representation.
func (s *Series[T]) Rep() Rep { return s.rep }

// Contains reports whether row has a value, independent of representation.
func (s *Series[T]) Contains(row uint64) bool {
	return s.present.Contains(row)
}

// Get reads the value at row. ok is false if row is absent.
func (s *Series[T]) Get(row uint64) (T, bool) {
	var zero T
	if !s.present.Contains(row) {
		return zero, false
	}
	if s.rep == Dense {
		if row >= uint64(len(s.dense)) {
			return zero, false
		}
		return s.dense[row], true
	}
	v := s.sparse[row]
	return v, true
}

// Set writes v at row, creating the cell if absent. In dense mode a write
// past the current length grows the slice, zero-filling the gap (those
// rows remain absent per the presence bitmap, matching spec.md's "zero-fill
// with absent flags"). After Set, Contains(row) is always true.
func (s *Series[T]) Set(row uint64, v T) {
	if s.rep == Dense {
		if need := int(row) + 1; need > len(s.dense) {
			grown := make([]T, need)
			copy(grown, s.dense)
			s.dense = grown
		}
		s.dense[row] = v
	} else {
		s.sparse[row] = v
	}
	s.present.Add(row)
}

// Erase destroys the value at row and marks it absent. Idempotent on an
// already-absent row.
func (s *Series[T]) Erase(row uint64) bool {
	if !s.present.Contains(row) {
		return false
	}
	s.present.Remove(row)
	var zero T
	if s.rep == Dense {
		if row < uint64(len(s.dense)) {
			s.dense[row] = zero
		}
	} else {
		delete(s.sparse, row)
	}
	return true
}

// Size returns the number of present cells.
func (s *Series[T]) Size() int {
	return int(s.present.GetCardinality())
}

// LoadFactor returns the present-cell count divided by liveRows, the
// record store's total live-row count (the series itself does not know how
// many rows the store considers live, only how many of those rows it has a
// value for — the store supplies liveRows per spec.md §4.E's load_factor).
func (s *Series[T]) LoadFactor(liveRows int) float64 {
	if liveRows == 0 {
		return 0
	}
	return float64(s.Size()) / float64(liveRows)
}

// ForAll visits every present (row, value) pair in ascending row order.
func (s *Series[T]) ForAll(fn func(row uint64, v T)) {
	it := s.present.Iterator()
	for it.HasNext() {
		row := it.Next()
		v, _ := s.Get(row)
		fn(row, v)
	}
}

// Convert transitions the series to rep, re-homing every present cell. It
// is a no-op if already in that representation. Complexity is linear in the
// live-cell count (plus, for sparse->dense, the zero-fill implied by
// resizing to max+1).
func (s *Series[T]) Convert(rep Rep) {
	if rep == s.rep {
		return
	}
	switch rep {
	case Sparse:
		sparse := make(map[uint64]T, s.present.GetCardinality())
		it := s.present.Iterator()
		for it.HasNext() {
			row := it.Next()
			sparse[row] = s.dense[row]
		}
		s.dense = nil
		s.sparse = sparse
		s.rep = Sparse
	case Dense:
		max := uint64(0)
		if !s.present.IsEmpty() {
			max = s.present.Maximum()
		}
		dense := make([]T, max+1)
		for row, v := range s.sparse {
			dense[row] = v
		}
		s.sparse = nil
		s.dense = dense
		s.rep = Dense
	}
}

// DenseLen reports the physical length of the dense backing slice (tests
// and diagnostics only; not part of the documented cell-level contract).
func (s *Series[T]) DenseLen() int { return len(s.dense) }
