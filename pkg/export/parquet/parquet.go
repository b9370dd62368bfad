// Package parquet adapts github.com/parquet-go/parquet-go into an
// export.Writer: the concrete columnar file writer spec.md treats as an
// external collaborator on the dump side.
package parquet

import (
	"fmt"
	"os"

	pq "github.com/parquet-go/parquet-go"

	"github.com/seriesdb/seriesdb/pkg/export"
	"github.com/seriesdb/seriesdb/pkg/value"
)

type writer struct {
	path string
	f    *os.File
	pw   *pq.Writer
	cols []export.ColumnSpec
}

// NewWriter returns a Writer that creates path lazily, once Schema is
// called. The graph façade names part files "<prefix>_<rank>.parquet" so
// pkg/ingest/parquet can later read a directory of them back as one stream.
func NewWriter(path string) export.Writer {
	return &writer{path: path}
}

func (w *writer) Schema(cols []export.ColumnSpec) error {
	if w.pw != nil {
		return fmt.Errorf("export/parquet: Schema already set")
	}
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("export/parquet: create %s: %w", w.path, err)
	}
	group := make(pq.Group, len(cols))
	for _, c := range cols {
		group[c.Name] = pq.Optional(leafOf(c.Kind))
	}
	w.f = f
	w.cols = cols
	w.pw = pq.NewWriter(f, pq.NewSchema("row", group))
	return nil
}

func leafOf(k value.Kind) pq.Node {
	switch k {
	case value.KindBool:
		return pq.Leaf(pq.BooleanType)
	case value.KindInt64, value.KindUint64:
		return pq.Leaf(pq.Int64Type)
	case value.KindDouble:
		return pq.Leaf(pq.DoubleType)
	default:
		return pq.Leaf(pq.ByteArrayType)
	}
}

func (w *writer) WriteRow(vals []export.Cell) error {
	if w.pw == nil {
		return fmt.Errorf("export/parquet: WriteRow called before Schema")
	}
	if len(vals) != len(w.cols) {
		return fmt.Errorf("export/parquet: WriteRow got %d values, schema has %d columns", len(vals), len(w.cols))
	}
	row := make(map[string]any, len(vals))
	for i, c := range w.cols {
		row[c.Name] = toGoValue(vals[i])
	}
	_, err := w.pw.Write(row)
	if err != nil {
		return fmt.Errorf("export/parquet: write row: %w", err)
	}
	return nil
}

func toGoValue(c export.Cell) any {
	if c.IsNone() {
		return nil
	}
	switch c.Kind {
	case value.KindBool:
		return c.Bool
	case value.KindInt64:
		return c.Int64
	case value.KindUint64:
		return c.Uint64
	case value.KindDouble:
		return c.Double
	case value.KindString:
		return c.Str
	default:
		return nil
	}
}

// Close flushes and closes the underlying file. Safe to call even if
// Schema was never invoked; a second Close is a no-op.
func (w *writer) Close() error {
	if w.pw == nil {
		return nil
	}
	pw := w.pw
	w.pw = nil
	if err := pw.Close(); err != nil {
		return fmt.Errorf("export/parquet: close writer: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("export/parquet: close file: %w", err)
	}
	return nil
}
