package algo

import (
	"context"
	"fmt"
	"sort"

	"github.com/seriesdb/seriesdb/pkg/predicate"
	"github.com/seriesdb/seriesdb/pkg/value"
)

// Comparator orders two comparison-series cells for TopK. It must return a
// negative number if a sorts before b, zero if equal, positive otherwise —
// "sorts before" meaning "ranks higher", so a max-top-k comparator is
// descending numeric order and a min-top-k comparator is ascending.
//
// spec.md's §9 Open Question asks what happens when companion series carry
// mixed types across rows; this module's answer is that every row
// compared by one Comparator must carry ser as the same value.Kind, and
// every present companion-series cell must carry that same kind — TopK
// returns an error on a mismatch rather than passing mixed kinds to cmp.
type Comparator func(a, b value.Cell) int

// Row is one globally-ranked result row: which rank and local row id it
// came from (for the stable (rank, row id) tie-break spec.md names), its
// comparison-series value, and its requested companion-series values.
type Row struct {
	Rank  int
	RowID uint64
	Value value.Cell
	Extra []value.Cell
}

// Kind selects which per-rank store TopK ranks rows from.
type Kind int

const (
	KindNodes Kind = iota
	KindEdges
)

// TopK returns the k globally highest-ranked rows (per cmp) across every
// rank's store named by kind, comparing series ser and carrying along the
// values of extra as companion columns, restricted to rows matching where.
// Each rank computes its own local top-k by sorting its matching rows and
// keeping the first k, then
// every local top-k is gathered and merged once — spec.md's
// "local-heap-then-gather-at-rank-0" strategy, expressed here as an
// in-process merge since every rank's Row slice is already available to
// the caller (pkg/spmd/local's shared-memory model makes the gather step a
// plain slice append rather than a network round trip).
func TopK(ctx context.Context, ranks []Rank, k int, ser string, extra []string, cmp Comparator, where predicate.Clause, kind Kind) ([]Row, error) {
	if len(ranks) == 0 {
		return nil, fmt.Errorf("algo: TopK requires at least one rank")
	}
	if k <= 0 {
		return nil, fmt.Errorf("algo: TopK: k must be positive, got %d", k)
	}

	localTops := make([][]Row, len(ranks))
	err := runPerRank(ranks, func(i int, rk Rank) error {
		store := rk.Nodes
		if kind == KindEdges {
			store = rk.Edges
		}
		idx, ok := store.FindSeries(ser)
		if !ok {
			return fmt.Errorf("algo: TopK: rank %d: unknown series %q", i, ser)
		}
		extraIdx := make([]int, len(extra))
		for j, name := range extra {
			ei, ok := store.FindSeries(name)
			if !ok {
				return fmt.Errorf("algo: TopK: rank %d: unknown companion series %q", i, name)
			}
			extraIdx[j] = ei
		}

		bound, err := predicate.Bind(store, where)
		if err != nil {
			return fmt.Errorf("algo: TopK: bind predicate on rank %d: %w", i, err)
		}

		var rows []Row
		var kindErr error
		store.ForAllRows(func(row uint64) {
			if !bound.Matches(row) {
				return
			}
			cell, ok := store.Cell(idx, row)
			if !ok {
				return
			}
			r := Row{Rank: i, RowID: row, Value: cell}
			if len(extraIdx) > 0 {
				r.Extra = make([]value.Cell, len(extraIdx))
				for j, ei := range extraIdx {
					c, present := store.Cell(ei, row)
					if present && c.Kind != cell.Kind && kindErr == nil {
						kindErr = fmt.Errorf("algo: TopK: rank %d: companion series %q holds %v, series %q holds %v", i, extra[j], c.Kind, ser, cell.Kind)
					}
					r.Extra[j] = c
				}
			}
			rows = append(rows, r)
		})
		if kindErr != nil {
			return kindErr
		}

		sortRows(rows, cmp)
		if len(rows) > k {
			rows = rows[:k]
		}
		localTops[i] = rows
		return nil
	})
	if err != nil {
		return nil, err
	}

	var merged []Row
	for _, rows := range localTops {
		merged = append(merged, rows...)
	}
	for _, r := range merged {
		if r.Value.Kind != merged[0].Value.Kind {
			return nil, fmt.Errorf("algo: TopK: series %q holds %v on rank %d and %v on rank %d", ser, merged[0].Value.Kind, merged[0].Rank, r.Value.Kind, r.Rank)
		}
	}
	sortRows(merged, cmp)
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// sortRows orders rows by cmp(Value), breaking ties by (Rank, RowID) as
// spec.md's stable tie-break names.
func sortRows(rows []Row, cmp Comparator) {
	sort.SliceStable(rows, func(i, j int) bool {
		if c := cmp(rows[i].Value, rows[j].Value); c != 0 {
			return c < 0
		}
		if rows[i].Rank != rows[j].Rank {
			return rows[i].Rank < rows[j].Rank
		}
		return rows[i].RowID < rows[j].RowID
	})
}
