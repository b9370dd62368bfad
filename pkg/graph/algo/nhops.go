package algo

import (
	"context"
	"fmt"

	"github.com/seriesdb/seriesdb/pkg/predicate"
	"github.com/seriesdb/seriesdb/pkg/record"
)

// NHops computes, for every node reachable from sources within hops hops,
// its distance to the nearest source (spec.md §4.J's multi-source BFS
// frontier expansion), writing the result as a uint64 series named outCol
// on every rank's Nodes store. Nodes farther than hops away, or
// unreachable, are left untouched by this series (same "optional write"
// semantics as BFS's levelCol). Edges are followed in both directions,
// matching connected-components-style undirected neighbor expansion —
// spec.md names no directed variant for n-hops, unlike BFS.
func NHops(ctx context.Context, ranks []Rank, sources []string, hops int, outCol string) error {
	if len(ranks) == 0 {
		return fmt.Errorf("algo: NHops requires at least one rank")
	}
	if hops < 0 {
		return fmt.Errorf("algo: NHops: hops must be >= 0, got %d", hops)
	}

	neighbors, err := buildNeighborLists(ctx, ranks, predicate.Always)
	if err != nil {
		return err
	}
	adj := make(map[string][]string)
	for _, local := range neighbors {
		for u, nbrs := range local {
			adj[u] = append(adj[u], nbrs...)
		}
	}

	visited := make(map[string]int, len(sources))
	frontier := make([]string, 0, len(sources))
	for _, s := range sources {
		if _, ok := visited[s]; !ok {
			visited[s] = 0
			frontier = append(frontier, s)
		}
	}

	for h := 0; h < hops && len(frontier) > 0; h++ {
		var next []string
		for _, u := range frontier {
			for _, v := range adj[u] {
				if _, seen := visited[v]; !seen {
					visited[v] = h + 1
					next = append(next, v)
				}
			}
		}
		frontier = next
	}

	return runPerRank(ranks, func(i int, rk Rank) error {
		idx := ensureUint64Series(rk.Nodes, outCol)
		rk.Nodes.ForAllRows(func(row uint64) {
			key, ok := nodeKey(rk.Nodes, rk.NodeID, row)
			if !ok {
				return
			}
			if dist, ok := visited[key]; ok {
				record.Set[uint64](rk.Nodes, idx, row, uint64(dist))
			}
		})
		return nil
	})
}
