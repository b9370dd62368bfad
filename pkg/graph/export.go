package graph

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/seriesdb/seriesdb/pkg/export"
	exportparquet "github.com/seriesdb/seriesdb/pkg/export/parquet"
	"github.com/seriesdb/seriesdb/pkg/pool"
	"github.com/seriesdb/seriesdb/pkg/record"
	"github.com/seriesdb/seriesdb/pkg/value"
)

// DumpParquetEdges writes this rank's edges to <dir>/edges_<rank>.parquet,
// deriving each column's schema by sampling that column until a non-missing
// value is found (spec.md §4.K). overwrite controls whether an existing
// shard file is replaced.
func (g *Graph) DumpParquetEdges(dir string, overwrite bool) error {
	return dumpStore(g.Edges, dir, "edges", g.rt.Rank(), overwrite)
}

// DumpParquetVerts is DumpParquetEdges's node-record counterpart, writing
// <dir>/nodes_<rank>.parquet.
func (g *Graph) DumpParquetVerts(dir string, overwrite bool) error {
	return dumpStore(g.Nodes, dir, "nodes", g.rt.Rank(), overwrite)
}

func dumpStore(store *record.Store, dir, prefix string, rank int, overwrite bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("graph: dump: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%d.parquet", prefix, rank))
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("graph: dump: %s already exists", path)
		}
	}

	names := store.GetSeriesNames()
	if len(names) == 0 {
		return fmt.Errorf("graph: dump: store has no series")
	}
	idxs := make([]int, len(names))
	for i, name := range names {
		idxs[i], _ = store.FindSeries(name)
	}

	// Each column samples independently until it finds its own first
	// non-missing value (spec.md §4.K); a column that's missing at every
	// row it's asked about still gets a concrete schema entry by falling
	// back to string, rather than leaving a zero-value ColumnSpec that
	// collides with every other unsampled column under the same "" name.
	cols := make([]export.ColumnSpec, len(names))
	resolved := make([]bool, len(names))
	remaining := len(names)
	store.ForAllRows(func(row uint64) {
		if remaining == 0 {
			return
		}
		for i := range names {
			if resolved[i] {
				continue
			}
			cell, ok := store.Cell(idxs[i], row)
			if !ok || cell.Kind == value.KindNone {
				continue
			}
			cols[i] = export.ColumnSpec{Name: names[i], Kind: cell.Kind}
			resolved[i] = true
			remaining--
		}
	})
	for i, name := range names {
		if !resolved[i] {
			cols[i] = export.ColumnSpec{Name: name, Kind: value.KindString}
		}
	}

	w := exportparquet.NewWriter(path)
	if err := w.Schema(cols); err != nil {
		return fmt.Errorf("graph: dump: schema: %w", err)
	}

	vals := pool.GetCellSlice()
	if cap(vals) < len(idxs) {
		vals = make([]export.Cell, len(idxs))
	} else {
		vals = vals[:len(idxs)]
	}
	defer pool.PutCellSlice(vals)

	var writeErr error
	store.ForAllRows(func(row uint64) {
		if writeErr != nil {
			return
		}
		for i, idx := range idxs {
			vals[i], _ = store.Cell(idx, row)
		}
		writeErr = w.WriteRow(vals)
	})
	if writeErr != nil {
		w.Close()
		return fmt.Errorf("graph: dump: write row: %w", writeErr)
	}
	return w.Close()
}
