package algo

import (
	"context"
	"fmt"

	"github.com/seriesdb/seriesdb/pkg/partition"
	"github.com/seriesdb/seriesdb/pkg/predicate"
	"github.com/seriesdb/seriesdb/pkg/record"
	"github.com/seriesdb/seriesdb/pkg/spmd"
)

// DegreeDir selects which of a node's incident edges Degree counts.
type DegreeDir int

const (
	DegreeIn DegreeDir = iota
	DegreeOut
	DegreeBoth
)

// Degree computes, for every node across every rank, the count of incident
// edges matching where (predicate.Always to count all of them) and writes
// it into a new uint64 series named outCol on each rank's Nodes store
// (spec.md §4.J).
//
// An edge not owned by the rank scanning it still counts toward its
// endpoint's degree on whichever rank owns that endpoint — routed through
// one spmd.CountingSet shared by every rank's goroutine here, so a
// cross-rank edge (u on rank 0, v on rank 1) increments both sides
// correctly. Undirected edges (edge.directed == false) increment both
// endpoints regardless of dir, matching an undirected edge's symmetry.
func Degree(ctx context.Context, ranks []Rank, dir DegreeDir, outCol string, where predicate.Clause) error {
	if len(ranks) == 0 {
		return fmt.Errorf("algo: Degree requires at least one rank")
	}
	world := len(ranks)
	cs := spmd.NewCountingSet(ranks[0].Runtime)

	err := runPerRank(ranks, func(i int, rk Rank) error {
		bound, err := predicate.Bind(rk.Edges, where)
		if err != nil {
			return fmt.Errorf("algo: Degree: bind predicate on rank %d: %w", i, err)
		}
		rk.Edges.ForAllRows(func(row uint64) {
			if !bound.Matches(row) {
				return
			}
			u, ok := nodeKey(rk.Edges, rk.EdgeU, row)
			if !ok {
				return
			}
			v, ok := nodeKey(rk.Edges, rk.EdgeV, row)
			if !ok {
				return
			}
			directed := record.Get[bool](rk.Edges, rk.EdgeDir, row)

			countU := dir == DegreeOut || dir == DegreeBoth || !directed
			countV := dir == DegreeIn || dir == DegreeBoth || !directed
			if countU {
				cs.Incr(ctx, partition.Owner(u, world), u)
			}
			if countV {
				cs.Incr(ctx, partition.Owner(v, world), v)
			}
		})
		return rk.Runtime.Barrier(ctx)
	})
	if err != nil {
		return err
	}

	return runPerRank(ranks, func(i int, rk Rank) error {
		idx := ensureUint64Series(rk.Nodes, outCol)
		rk.Nodes.ForAllRows(func(row uint64) {
			key, ok := nodeKey(rk.Nodes, rk.NodeID, row)
			if !ok {
				return
			}
			record.Set[uint64](rk.Nodes, idx, row, uint64(cs.Count(key)))
		})
		return nil
	})
}
