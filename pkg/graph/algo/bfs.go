package algo

import (
	"context"
	"fmt"

	"github.com/seriesdb/seriesdb/pkg/predicate"
	"github.com/seriesdb/seriesdb/pkg/record"
)

// BFS computes level distances from source over every edge (spec.md
// §4.J): the source is level 0, and in each round every node at
// level L visits its neighbors and sets any neighbor without a level yet to
// L+1. Terminates when a round sets no new levels. When undirected is
// false, only out-edges (edge.u -> edge.v) are followed; when true, both
// directions are. If levelCol is non-empty, levels are written as a uint64
// series of that name on every rank's Nodes store (unreached nodes keep
// whatever value AddSeries's zero-fill leaves, per spec.md's "optional"
// wording — callers that need to distinguish unreached nodes should check
// NHops-style visited tracking instead). Returns the total number of nodes
// visited (including source).
func BFS(ctx context.Context, ranks []Rank, source string, undirected bool, levelCol string) (int, error) {
	if len(ranks) == 0 {
		return 0, fmt.Errorf("algo: BFS requires at least one rank")
	}

	out, in, err := buildDirectedAdjacency(ctx, ranks, predicate.Always)
	if err != nil {
		return 0, err
	}
	if _, ok := out[source]; !ok {
		if _, ok := in[source]; !ok {
			return 0, fmt.Errorf("algo: BFS: unknown source node %q", source)
		}
	}

	levels := map[string]int{source: 0}
	frontier := []string{source}
	for len(frontier) > 0 {
		var next []string
		for _, u := range frontier {
			for _, v := range out[u] {
				if _, seen := levels[v]; !seen {
					levels[v] = levels[u] + 1
					next = append(next, v)
				}
			}
			if undirected {
				for _, v := range in[u] {
					if _, seen := levels[v]; !seen {
						levels[v] = levels[u] + 1
						next = append(next, v)
					}
				}
			}
		}
		frontier = next
	}

	if levelCol != "" {
		err := runPerRank(ranks, func(i int, rk Rank) error {
			idx := ensureUint64Series(rk.Nodes, levelCol)
			rk.Nodes.ForAllRows(func(row uint64) {
				key, ok := nodeKey(rk.Nodes, rk.NodeID, row)
				if !ok {
					return
				}
				if lvl, ok := levels[key]; ok {
					record.Set[uint64](rk.Nodes, idx, row, uint64(lvl))
				}
			})
			return nil
		})
		if err != nil {
			return 0, err
		}
	}

	return len(levels), nil
}

// buildDirectedAdjacency is buildNeighborLists's directed counterpart: it
// keeps edge.u -> edge.v and edge.v -> edge.u as separate adjacency maps so
// BFS/NHops can tell "out" from "in" for directed edges, while still
// merging every rank's shard into one replicated map (as KCore's does).
func buildDirectedAdjacency(ctx context.Context, ranks []Rank, where predicate.Clause) (out, in map[string][]string, err error) {
	perRankOut := make([]map[string][]string, len(ranks))
	perRankIn := make([]map[string][]string, len(ranks))
	err = runPerRank(ranks, func(i int, rk Rank) error {
		bound, berr := predicate.Bind(rk.Edges, where)
		if berr != nil {
			return fmt.Errorf("algo: bind predicate on rank %d: %w", i, berr)
		}
		o := make(map[string][]string)
		in := make(map[string][]string)
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
			o[u] = append(o[u], v)
			in[v] = append(in[v], u)
		})
		perRankOut[i] = o
		perRankIn[i] = in
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	out = make(map[string][]string)
	in = make(map[string][]string)
	for i := range ranks {
		for u, nbrs := range perRankOut[i] {
			out[u] = append(out[u], nbrs...)
		}
		for v, nbrs := range perRankIn[i] {
			in[v] = append(in[v], nbrs...)
		}
	}
	return out, in, nil
}
