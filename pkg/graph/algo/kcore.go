package algo

import (
	"context"
	"fmt"

	"github.com/seriesdb/seriesdb/pkg/predicate"
)

// KCore peels the graph by iterative degree-pruning (spec.md §4.J): for
// k = 1, 2, ..., repeatedly strip every node whose remaining degree is in
// (0, k) — removing it from its neighbors' remaining degree — until a round
// strips nothing, then advance to k+1. It returns a vector whose entries are
// the number of nodes pruned at each level that pruned at least one node
// (levels that prune nothing, including the always-vacuous k=1 interval, are
// skipped rather than recorded as zero). No per-node core value is written
// to any series.
//
// A level whose very first pass would strip every still-active node at
// once is not a genuine degree-driven cascade — every remaining node
// already sits at the same residual degree, so there is nothing left to
// peel incrementally. That level is discarded and peeling stops there,
// leaving those nodes as the graph's maximal stable core (its degeneracy)
// rather than force-assigning them a core value by wiping them out in one
// shot. Matches the original's bounded `for kcore := 1; kcore <=
// max_kcore+1; ...` outer loop (_examples/original_source/src/MetallGraph/
// MetallGraph.hpp:568), generalized to a self-derived bound since this
// port takes no max_kcore parameter.
//
// The adjacency and remaining-degree state is built once from every rank's
// edges matching where (buildNeighborLists) and merged into one in-process
// map, since k-core's peeling needs random access to any node's current
// neighbor list regardless of which rank owns it; ConnectedComponents
// merges its adjacency the same way.
func KCore(ctx context.Context, ranks []Rank, where predicate.Clause) ([]int, error) {
	if len(ranks) == 0 {
		return nil, fmt.Errorf("algo: KCore requires at least one rank")
	}

	neighbors, err := buildNeighborLists(ctx, ranks, where)
	if err != nil {
		return nil, err
	}

	adj := make(map[string]map[string]bool)
	addEdge := func(u, v string) {
		if adj[u] == nil {
			adj[u] = make(map[string]bool)
		}
		adj[u][v] = true
	}
	for _, local := range neighbors {
		for u, nbrs := range local {
			for _, v := range nbrs {
				addEdge(u, v)
			}
		}
	}

	degree := make(map[string]int, len(adj))
	for u, nbrs := range adj {
		degree[u] = len(nbrs)
	}

	removed := make(map[string]bool)
	remaining := len(degree)
	var counts []int

	pruneCandidates := func(k int) []string {
		var out []string
		for u, d := range degree {
			if !removed[u] && d > 0 && d < k {
				out = append(out, u)
			}
		}
		return out
	}

	// No graph needs more distinct peeling thresholds than it has nodes;
	// this bound only guards a fully-isolated (edgeless) graph, where no
	// level ever prunes anything, against looping forever.
	maxLevels := len(degree) + 1
	for k := 1; k <= maxLevels && remaining > 0; k++ {
		toPrune := pruneCandidates(k)
		if len(toPrune) == 0 {
			continue
		}
		if len(toPrune) == remaining {
			break
		}

		prunedThisLevel := 0
		for len(toPrune) > 0 {
			for _, u := range toPrune {
				removed[u] = true
				prunedThisLevel++
				for v := range adj[u] {
					if !removed[v] && adj[v][u] {
						delete(adj[v], u)
						degree[v]--
					}
				}
				degree[u] = 0
			}
			remaining -= len(toPrune)
			toPrune = pruneCandidates(k)
		}
		counts = append(counts, prunedThisLevel)
	}

	return counts, nil
}
