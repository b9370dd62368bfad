// Package export mirrors pkg/ingest on the output side: a row-sink
// interface the graph façade drives when dumping nodes or edges back out,
// decoupled from any particular file format.
package export

import "github.com/seriesdb/seriesdb/pkg/value"

// Cell is the dynamically-typed value a Writer accepts per column.
type Cell = value.Cell

// ColumnSpec describes one column a Writer will accept rows for.
type ColumnSpec struct {
	Name string
	Kind value.Kind
}

// Writer is the external collaborator spec.md carves out for export: a
// forward-only sink that accepts a schema once, then one row at a time in
// that column order. A concrete implementation over parquet-go/parquet-go
// lives in pkg/export/parquet.
type Writer interface {
	// Schema declares the column layout every subsequent WriteRow call must
	// conform to. Called exactly once, before the first WriteRow.
	Schema(cols []ColumnSpec) error
	// WriteRow appends one row, in Schema() column order.
	WriteRow(vals []Cell) error
	// Close flushes any buffered rows and releases resources. Idempotent.
	Close() error
}
