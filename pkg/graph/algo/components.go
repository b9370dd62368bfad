package algo

import (
	"context"
	"fmt"

	"github.com/seriesdb/seriesdb/pkg/predicate"
)

// ConnectedComponents assigns every node a component id via label
// propagation over edges matching where, writing the result into a new
// string series named outCol on each rank's Nodes store (spec.md §4.J).
// Component ids are the lexicographically smallest node.id in the
// component, so the result is deterministic and independent of rank count
// or scan order.
//
// Every rank's edge shard is merged into one replicated adjacency map (the
// same buildNeighborLists/merge pattern BFS and KCore use) before labels
// propagate, rather than routing per-round label updates across ranks via
// spmd: a node's neighbor may live on a different rank than the node
// itself, and a per-round message-passing scheme has to fully reconcile
// every neighbor's offer before advancing anyway, which is exactly what the
// replicated map gives for free. Each round every node adopts the smallest
// label among its neighbors' current labels; propagation repeats until a
// full pass changes nothing, which is the fixpoint where every node in a
// component holds that component's minimum node.id.
func ConnectedComponents(ctx context.Context, ranks []Rank, outCol string, where predicate.Clause) (int, error) {
	if len(ranks) == 0 {
		return 0, fmt.Errorf("algo: ConnectedComponents requires at least one rank")
	}

	neighbors, err := buildNeighborLists(ctx, ranks, where)
	if err != nil {
		return 0, err
	}
	adj := make(map[string][]string)
	for _, local := range neighbors {
		for u, nbrs := range local {
			adj[u] = append(adj[u], nbrs...)
		}
	}

	perRankKeys := make([][]string, len(ranks))
	err = runPerRank(ranks, func(i int, rk Rank) error {
		var keys []string
		rk.Nodes.ForAllRows(func(row uint64) {
			if key, ok := nodeKey(rk.Nodes, rk.NodeID, row); ok {
				keys = append(keys, key)
			}
		})
		perRankKeys[i] = keys
		return nil
	})
	if err != nil {
		return 0, err
	}
	// Merged sequentially rather than written from inside runPerRank's
	// per-rank goroutines: Go maps aren't safe for concurrent writes even to
	// disjoint keys, so every rank collects its own node keys first (into
	// its own slice) and only one goroutine (this one) ever writes labels.
	labels := make(map[string]string)
	for _, keys := range perRankKeys {
		for _, key := range keys {
			labels[key] = key
		}
	}

	for {
		changed := false
		for u, nbrs := range adj {
			for _, v := range nbrs {
				if labels[v] < labels[u] {
					labels[u] = labels[v]
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}

	err = runPerRank(ranks, func(i int, rk Rank) error {
		idx := ensureStringSeries(rk.Nodes, outCol)
		var writeErr error
		rk.Nodes.ForAllRows(func(row uint64) {
			if writeErr != nil {
				return
			}
			key, ok := nodeKey(rk.Nodes, rk.NodeID, row)
			if !ok {
				return
			}
			writeErr = setString(rk.Nodes, rk.Strings, idx, row, labels[key])
		})
		return writeErr
	})
	if err != nil {
		return 0, err
	}

	roots := make(map[string]bool)
	for _, label := range labels {
		roots[label] = true
	}
	return len(roots), nil
}

// buildNeighborLists scans each rank's edges matching where once, building
// a local adjacency map (node key -> neighbor keys, both directions) per
// rank. Shared by ConnectedComponents and NHops's BFS expansion.
func buildNeighborLists(ctx context.Context, ranks []Rank, where predicate.Clause) ([]map[string][]string, error) {
	out := make([]map[string][]string, len(ranks))
	err := runPerRank(ranks, func(i int, rk Rank) error {
		bound, err := predicate.Bind(rk.Edges, where)
		if err != nil {
			return fmt.Errorf("algo: bind predicate on rank %d: %w", i, err)
		}
		adj := make(map[string][]string)
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
			adj[u] = append(adj[u], v)
			adj[v] = append(adj[v], u)
		})
		out[i] = adj
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
