package graph

import (
	"context"
	"fmt"

	"github.com/seriesdb/seriesdb/pkg/ingest"
	ingestparquet "github.com/seriesdb/seriesdb/pkg/ingest/parquet"
	"github.com/seriesdb/seriesdb/pkg/partition"
	"github.com/seriesdb/seriesdb/pkg/record"
	"github.com/seriesdb/seriesdb/pkg/series"
	"github.com/seriesdb/seriesdb/pkg/spmd"
	"github.com/seriesdb/seriesdb/pkg/strref"
	"github.com/seriesdb/seriesdb/pkg/strstore"
	"github.com/seriesdb/seriesdb/pkg/value"
)

// IngestStats reports what an ingest call actually did, for the warnings
// spec.md §4.I's failure semantics call for without failing the whole call.
type IngestStats struct {
	RowsIngested    int
	NullEndpointsDropped int
	UnsupportedColumns   map[string]int
}

// IngestParquetEdges implements spec.md §4.I's five-step edge ingest
// policy: verify colU/colV are string columns, map every other requested
// column (meta, or every non-endpoint column when meta is nil) onto a new
// or existing edge series by its primitive kind, ensure edge.directed,
// stream rows, then barrier and backfill any endpoint key that isn't
// already a node.
//
// peers must include every participating rank (g among them); the backfill
// step routes each observed endpoint key to its owning rank via
// partition.Owner and a shared spmd.KVMap, exactly as spec.md names.
func (g *Graph) IngestParquetEdges(ctx context.Context, peers []*Graph, path string, recursive bool, colU, colV string, directed bool, meta []string) (IngestStats, error) {
	var stats IngestStats
	stats.UnsupportedColumns = make(map[string]int)

	src, err := ingestparquet.Open(path, recursive)
	if err != nil {
		return stats, fmt.Errorf("graph: open ingest source: %w", err)
	}
	defer src.Close()

	cols := src.Schema()
	uIdx, ok := ingest.FindColumn(cols, colU)
	if !ok || cols[uIdx].Kind != value.KindString {
		return stats, fmt.Errorf("graph: ingest: %q must be a byte-array column", colU)
	}
	vIdx, ok := ingest.FindColumn(cols, colV)
	if !ok || cols[vIdx].Kind != value.KindString {
		return stats, fmt.Errorf("graph: ingest: %q must be a byte-array column", colV)
	}

	mapped := mappedColumns(cols, colU, colV, meta)
	seriesIdx := make(map[string]int, len(mapped))
	for _, name := range mapped {
		col := cols[mustFindColumn(cols, name)]
		idx, ok := addSeriesForKind(g.Edges, name, col.Kind)
		if !ok {
			stats.UnsupportedColumns[name]++
			continue
		}
		seriesIdx[name] = idx
	}

	world := len(peers)
	if world == 0 {
		world = 1
	}
	endpoints := spmd.NewKVMap[bool](g.rt)

	for {
		row, ok, err := src.Next()
		if err != nil {
			return stats, fmt.Errorf("graph: ingest: read row: %w", err)
		}
		if !ok {
			break
		}
		uCell, vCell := row[uIdx], row[vIdx]
		if uCell.IsNone() || vCell.IsNone() {
			stats.NullEndpointsDropped++
			continue
		}

		r := g.Edges.AddRecord()
		record.Set[bool](g.Edges, g.edgeDirIdx, r, directed)
		uAcc, err := strref.Of(g.strings, uCell.Str)
		if err != nil {
			return stats, fmt.Errorf("graph: ingest: intern %q: %w", colU, err)
		}
		vAcc, err := strref.Of(g.strings, vCell.Str)
		if err != nil {
			return stats, fmt.Errorf("graph: ingest: intern %q: %w", colV, err)
		}
		record.Set[strref.Accessor](g.Edges, g.edgeUIdx, r, uAcc)
		record.Set[strref.Accessor](g.Edges, g.edgeVIdx, r, vAcc)

		for _, name := range mapped {
			idx, ok := seriesIdx[name]
			if !ok {
				continue
			}
			ci := mustFindColumn(cols, name)
			cell := row[ci]
			if cell.IsNone() {
				continue
			}
			if err := setCellForKind(g.Edges, g.strings, idx, r, cell); err != nil {
				return stats, fmt.Errorf("graph: ingest: write %q: %w", name, err)
			}
		}

		endpoints.Put(ctx, partition.Owner(uCell.Str, world), uCell.Str, true)
		endpoints.Put(ctx, partition.Owner(vCell.Str, world), vCell.Str, true)
		stats.RowsIngested++
	}

	if err := g.rt.Barrier(ctx); err != nil {
		return stats, fmt.Errorf("graph: ingest: barrier: %w", err)
	}

	endpoints.ForEach(func(key string, _ bool) {
		if _, exists := g.nodeIndex[key]; exists {
			return
		}
		r := g.Nodes.AddRecord()
		acc, err := strref.Of(g.strings, key)
		if err != nil {
			return
		}
		record.Set[strref.Accessor](g.Nodes, g.nodeIDIdx, r, acc)
		g.nodeIndex[key] = uint32(r)
	})

	return stats, nil
}

// IngestParquetVerts is the node-record analogue: nodeKeyCol plays the role
// colU/colV play for edges and becomes each row's node.id, and there is no
// endpoint backfill since a node is already keyed by the ingested column.
// Every row is stored on g's own shard; rows are not routed to the rank
// partition.Owner assigns their key.
func (g *Graph) IngestParquetVerts(ctx context.Context, path string, recursive bool, nodeKeyCol string, meta []string) (IngestStats, error) {
	var stats IngestStats
	stats.UnsupportedColumns = make(map[string]int)

	src, err := ingestparquet.Open(path, recursive)
	if err != nil {
		return stats, fmt.Errorf("graph: open ingest source: %w", err)
	}
	defer src.Close()

	cols := src.Schema()
	keyIdx, ok := ingest.FindColumn(cols, nodeKeyCol)
	if !ok || cols[keyIdx].Kind != value.KindString {
		return stats, fmt.Errorf("graph: ingest: %q must be a byte-array column", nodeKeyCol)
	}

	mapped := mappedColumns(cols, nodeKeyCol, "", meta)
	seriesIdx := make(map[string]int, len(mapped))
	for _, name := range mapped {
		col := cols[mustFindColumn(cols, name)]
		idx, ok := addSeriesForKind(g.Nodes, name, col.Kind)
		if !ok {
			stats.UnsupportedColumns[name]++
			continue
		}
		seriesIdx[name] = idx
	}

	for {
		row, ok, err := src.Next()
		if err != nil {
			return stats, fmt.Errorf("graph: ingest: read row: %w", err)
		}
		if !ok {
			break
		}
		keyCell := row[keyIdx]
		if keyCell.IsNone() {
			stats.NullEndpointsDropped++
			continue
		}

		r := g.Nodes.AddRecord()
		acc, err := strref.Of(g.strings, keyCell.Str)
		if err != nil {
			return stats, fmt.Errorf("graph: ingest: intern %q: %w", nodeKeyCol, err)
		}
		record.Set[strref.Accessor](g.Nodes, g.nodeIDIdx, r, acc)
		g.nodeIndex[keyCell.Str] = uint32(r)

		for _, name := range mapped {
			idx, ok := seriesIdx[name]
			if !ok {
				continue
			}
			ci := mustFindColumn(cols, name)
			cell := row[ci]
			if cell.IsNone() {
				continue
			}
			if err := setCellForKind(g.Nodes, g.strings, idx, r, cell); err != nil {
				return stats, fmt.Errorf("graph: ingest: write %q: %w", name, err)
			}
		}
		stats.RowsIngested++
	}

	return stats, nil
}

// mappedColumns returns every column name to map, excluding the endpoint
// columns: the names in meta if non-nil, otherwise every column in the
// source schema.
func mappedColumns(cols []ingest.ColumnSpec, exclude1, exclude2 string, meta []string) []string {
	names := meta
	if names == nil {
		for _, c := range cols {
			names = append(names, c.Name)
		}
	}
	var out []string
	for _, name := range names {
		if name == exclude1 || name == exclude2 {
			continue
		}
		out = append(out, name)
	}
	return out
}

func mustFindColumn(cols []ingest.ColumnSpec, name string) int {
	idx, _ := ingest.FindColumn(cols, name)
	return idx
}

// setCellForKind writes cell at (idx, row) on store, dispatching on kind to
// the right record.Set[T] instantiation — the dynamic-to-static bridge
// ingest needs since a RowSource only ever yields value.Cell, not a typed
// Go value.
func setCellForKind(store *record.Store, strings *strstore.Store, idx int, row uint64, cell value.Cell) error {
	switch cell.Kind {
	case value.KindBool:
		record.Set[bool](store, idx, row, cell.Bool)
	case value.KindInt64:
		record.Set[int64](store, idx, row, cell.Int64)
	case value.KindUint64:
		record.Set[uint64](store, idx, row, cell.Uint64)
	case value.KindDouble:
		record.Set[float64](store, idx, row, cell.Double)
	case value.KindString:
		a, err := strref.Of(strings, cell.Str)
		if err != nil {
			return fmt.Errorf("intern string: %w", err)
		}
		record.Set[strref.Accessor](store, idx, row, a)
	default:
		return fmt.Errorf("unsupported cell kind %v", cell.Kind)
	}
	return nil
}

// addSeriesForKind declares name on store with the series type the
// int32/int64->int64, float/double->double, byte-array->string,
// boolean->bool coercion table maps k onto. Reports ok=false for an
// unsupported kind (spec.md §4.I: "unsupported types emit a warning and
// are skipped").
func addSeriesForKind(store *record.Store, name string, k value.Kind) (int, bool) {
	switch k {
	case value.KindBool:
		return record.AddSeries[bool](store, name, series.Dense), true
	case value.KindInt64:
		return record.AddSeries[int64](store, name, series.Dense), true
	case value.KindUint64:
		return record.AddSeries[uint64](store, name, series.Dense), true
	case value.KindDouble:
		return record.AddSeries[float64](store, name, series.Dense), true
	case value.KindString:
		return record.AddSeries[strref.Accessor](store, name, series.Dense), true
	default:
		return 0, false
	}
}
