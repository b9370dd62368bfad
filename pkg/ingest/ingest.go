// Package ingest specifies the columnar ingest pipeline from spec.md §4.I: a
// row-stream interface the graph façade drives to load edges and vertices,
// decoupled from any particular file format.
package ingest

import "github.com/seriesdb/seriesdb/pkg/value"

// Cell is the dynamically-typed value a RowSource yields per column.
type Cell = value.Cell

// ColumnSpec describes one column a RowSource exposes.
type ColumnSpec struct {
	Name string
	Kind value.Kind
}

// RowSource is the external collaborator spec.md carves out for ingest: a
// forward-only stream of rows, each shaped like Schema(). A concrete
// implementation over parquet-go/parquet-go lives in pkg/ingest/parquet.
type RowSource interface {
	// Schema returns the column layout every row from Next conforms to.
	Schema() []ColumnSpec
	// Next returns the next row, in Schema() column order. ok is false
	// once the source is exhausted; err reports a read failure, distinct
	// from ordinary exhaustion.
	Next() (row []Cell, ok bool, err error)
	// Close releases any resources the source holds open.
	Close() error
}

// FindColumn returns the index of name within cols, or ok=false.
func FindColumn(cols []ColumnSpec, name string) (idx int, ok bool) {
	for i, c := range cols {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}
