package record

import (
	"github.com/seriesdb/seriesdb/pkg/series"
	"github.com/seriesdb/seriesdb/pkg/strref"
	"github.com/seriesdb/seriesdb/pkg/strstore"
	"github.com/seriesdb/seriesdb/pkg/value"
)

// Primitive enumerates the cell types a series may hold. strref.Accessor
// stands in for "string" here: the record store never stores raw Go strings,
// only accessors that resolve through a shared strstore.Store (spec.md
// §4.E's "a series' string cells are strref.Accessor values, not strings").
type Primitive interface {
	bool | int64 | uint64 | float64 | strref.Accessor
}

func kindOf[T Primitive]() value.Kind {
	var zero T
	switch any(zero).(type) {
	case bool:
		return value.KindBool
	case int64:
		return value.KindInt64
	case uint64:
		return value.KindUint64
	case float64:
		return value.KindDouble
	case strref.Accessor:
		return value.KindString
	default:
		panic("record: unreachable primitive type")
	}
}

func cellOf[T Primitive](v T, strings *strstore.Store) value.Cell {
	switch x := any(v).(type) {
	case bool:
		return value.FromBool(x)
	case int64:
		return value.FromInt64(x)
	case uint64:
		return value.FromUint64(x)
	case float64:
		return value.FromDouble(x)
	case strref.Accessor:
		return value.FromString(x.ToView(strings))
	default:
		panic("record: unreachable primitive type")
	}
}

// Column is the type-erased view of a single series within a Store. The
// record store keeps series as a slice of Columns so that operations like
// ForAllDynamic, GetSeriesNames, and RemoveRecord can walk every series
// without knowing its element type; typed access (Get[T], Set[T]) recovers
// the concrete *typedColumn[T] with a type assertion.
type Column interface {
	ValueKind() value.Kind
	Rep() series.Rep
	Convert(series.Rep)
	Contains(row uint64) bool
	Remove(row uint64) bool
	Size() int
	ForAllRows(fn func(row uint64))
	// Cell dynamically reads row, resolving string series through strings
	// (which may be nil for non-string columns).
	Cell(row uint64, strings *strstore.Store) (value.Cell, bool)
}

// typedColumn is the sole concrete Column implementation, generic over the
// five primitive kinds. Every wrapper method only needs kindOf[T]/cellOf[T]
// to recover dynamic behavior, so the five spec.md "concrete wrapper types"
// collapse into one generic definition instead of five hand-duplicated ones.
type typedColumn[T Primitive] struct {
	s *series.Series[T]
}

func newTypedColumn[T Primitive](rep series.Rep) *typedColumn[T] {
	return &typedColumn[T]{s: series.New[T](rep)}
}

func (c *typedColumn[T]) ValueKind() value.Kind { return kindOf[T]() }
func (c *typedColumn[T]) Rep() series.Rep        { return c.s.Rep() }
func (c *typedColumn[T]) Convert(rep series.Rep) { c.s.Convert(rep) }
func (c *typedColumn[T]) Contains(row uint64) bool { return c.s.Contains(row) }
func (c *typedColumn[T]) Remove(row uint64) bool   { return c.s.Erase(row) }
func (c *typedColumn[T]) Size() int                { return c.s.Size() }

func (c *typedColumn[T]) ForAllRows(fn func(row uint64)) {
	c.s.ForAll(func(row uint64, _ T) { fn(row) })
}

func (c *typedColumn[T]) Cell(row uint64, strings *strstore.Store) (value.Cell, bool) {
	v, ok := c.s.Get(row)
	if !ok {
		return value.None, false
	}
	return cellOf(v, strings), true
}
