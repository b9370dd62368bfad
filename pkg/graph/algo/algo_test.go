package algo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seriesdb/seriesdb/pkg/heap"
	"github.com/seriesdb/seriesdb/pkg/predicate"
	"github.com/seriesdb/seriesdb/pkg/record"
	"github.com/seriesdb/seriesdb/pkg/series"
	"github.com/seriesdb/seriesdb/pkg/spmd/local"
	"github.com/seriesdb/seriesdb/pkg/strref"
	"github.com/seriesdb/seriesdb/pkg/strstore"
	"github.com/seriesdb/seriesdb/pkg/value"
)

// newSingleRankGraph builds one rank's Nodes/Edges stores with the four
// reserved series, backed by a fresh temp heap, for algo tests that don't
// need to exercise real cross-rank partitioning.
func newSingleRankGraph(t *testing.T) (nodes, edges *record.Store, strings *strstore.Store, idx struct{ NodeID, EdgeU, EdgeV, EdgeDir int }) {
	t.Helper()
	h, err := heap.Open(t.TempDir(), heap.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	strings = strstore.Open(h)
	nodes = record.New(strings)
	edges = record.New(strings)

	idx.NodeID = record.AddSeries[strref.Accessor](nodes, "node.id", series.Dense)
	idx.EdgeU = record.AddSeries[strref.Accessor](edges, "edge.u", series.Dense)
	idx.EdgeV = record.AddSeries[strref.Accessor](edges, "edge.v", series.Dense)
	idx.EdgeDir = record.AddSeries[bool](edges, "edge.directed", series.Dense)
	return nodes, edges, strings, idx
}

func addNode(t *testing.T, nodes *record.Store, strings *strstore.Store, idNodeID int, key string) uint64 {
	t.Helper()
	row := nodes.AddRecord()
	acc, err := strref.Of(strings, key)
	require.NoError(t, err)
	record.Set[strref.Accessor](nodes, idNodeID, row, acc)
	return row
}

func addEdge(t *testing.T, edges *record.Store, strings *strstore.Store, idx struct{ NodeID, EdgeU, EdgeV, EdgeDir int }, u, v string, directed bool) uint64 {
	t.Helper()
	row := edges.AddRecord()
	ua, err := strref.Of(strings, u)
	require.NoError(t, err)
	va, err := strref.Of(strings, v)
	require.NoError(t, err)
	record.Set[strref.Accessor](edges, idx.EdgeU, row, ua)
	record.Set[strref.Accessor](edges, idx.EdgeV, row, va)
	record.Set[bool](edges, idx.EdgeDir, row, directed)
	return row
}

// line graph a-b-c-d, undirected, single rank.
func buildLineGraph(t *testing.T) ([]Rank, *record.Store) {
	t.Helper()
	nodes, edges, strings, idx := newSingleRankGraph(t)
	for _, k := range []string{"a", "b", "c", "d"} {
		addNode(t, nodes, strings, idx.NodeID, k)
	}
	addEdge(t, edges, strings, idx, "a", "b", false)
	addEdge(t, edges, strings, idx, "b", "c", false)
	addEdge(t, edges, strings, idx, "c", "d", false)

	rts := local.NewWorld(1)
	ranks := []Rank{{
		Nodes: nodes, Edges: edges, Strings: strings,
		NodeID: idx.NodeID, EdgeU: idx.EdgeU, EdgeV: idx.EdgeV, EdgeDir: idx.EdgeDir,
		Runtime: rts[0],
	}}
	return ranks, nodes
}

func nodeCellString(t *testing.T, nodes *record.Store, idx int, row uint64) string {
	t.Helper()
	cell, ok := nodes.Cell(idx, row)
	require.True(t, ok)
	return cell.Str
}

func TestDegreeCountsBothEndpointsForUndirectedEdges(t *testing.T) {
	ranks, nodes := buildLineGraph(t)
	ctx := context.Background()

	require.NoError(t, Degree(ctx, ranks, DegreeBoth, "deg", predicate.Always))

	degIdx, ok := nodes.FindSeries("deg")
	require.True(t, ok)

	want := map[string]uint64{"a": 1, "b": 2, "c": 2, "d": 1}
	var seen int
	nodes.ForAllRows(func(row uint64) {
		key := nodeCellString(t, nodes, ranks[0].NodeID, row)
		got := record.Get[uint64](nodes, degIdx, row)
		require.Equal(t, want[key], got, "node %q", key)
		seen++
	})
	require.Equal(t, 4, seen)
}

func TestConnectedComponentsOnOneComponent(t *testing.T) {
	ranks, nodes := buildLineGraph(t)
	ctx := context.Background()

	n, err := ConnectedComponents(ctx, ranks, "comp", predicate.Always)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	compIdx, ok := nodes.FindSeries("comp")
	require.True(t, ok)
	labels := make(map[string]string)
	nodes.ForAllRows(func(row uint64) {
		key := nodeCellString(t, nodes, ranks[0].NodeID, row)
		labels[key] = nodeCellString(t, nodes, compIdx, row)
	})
	for _, v := range labels {
		require.Equal(t, "a", v)
	}
}

func TestConnectedComponentsWithTwoDisjointComponents(t *testing.T) {
	nodes, edges, strings, idx := newSingleRankGraph(t)
	for _, k := range []string{"a", "b", "x", "y"} {
		addNode(t, nodes, strings, idx.NodeID, k)
	}
	addEdge(t, edges, strings, idx, "a", "b", false)
	addEdge(t, edges, strings, idx, "x", "y", false)

	rts := local.NewWorld(1)
	ranks := []Rank{{
		Nodes: nodes, Edges: edges, Strings: strings,
		NodeID: idx.NodeID, EdgeU: idx.EdgeU, EdgeV: idx.EdgeV, EdgeDir: idx.EdgeDir,
		Runtime: rts[0],
	}}

	n, err := ConnectedComponents(context.Background(), ranks, "comp", predicate.Always)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestBFSLevelsFollowShortestPath(t *testing.T) {
	ranks, nodes := buildLineGraph(t)
	visited, err := BFS(context.Background(), ranks, "a", true, "lvl")
	require.NoError(t, err)
	require.Equal(t, 4, visited)

	lvlIdx, ok := nodes.FindSeries("lvl")
	require.True(t, ok)
	want := map[string]uint64{"a": 0, "b": 1, "c": 2, "d": 3}
	nodes.ForAllRows(func(row uint64) {
		key := nodeCellString(t, nodes, ranks[0].NodeID, row)
		require.Equal(t, want[key], record.Get[uint64](nodes, lvlIdx, row))
	})
}

func TestNHopsStopsAtHopLimit(t *testing.T) {
	ranks, nodes := buildLineGraph(t)
	require.NoError(t, NHops(context.Background(), ranks, []string{"a"}, 1, "hops"))

	hopsIdx, ok := nodes.FindSeries("hops")
	require.True(t, ok)
	var reached []string
	nodes.ForAllRows(func(row uint64) {
		if !nodes.IsNone(hopsIdx, row) {
			reached = append(reached, nodeCellString(t, nodes, ranks[0].NodeID, row))
		}
	})
	require.ElementsMatch(t, []string{"a", "b"}, reached)
}

func TestKCoreOnATriangleWithATail(t *testing.T) {
	nodes, edges, strings, idx := newSingleRankGraph(t)
	for _, k := range []string{"a", "b", "c", "d"} {
		addNode(t, nodes, strings, idx.NodeID, k)
	}
	// triangle a-b-c, plus a pendant edge c-d
	addEdge(t, edges, strings, idx, "a", "b", false)
	addEdge(t, edges, strings, idx, "b", "c", false)
	addEdge(t, edges, strings, idx, "c", "a", false)
	addEdge(t, edges, strings, idx, "c", "d", false)

	rts := local.NewWorld(1)
	ranks := []Rank{{
		Nodes: nodes, Edges: edges, Strings: strings,
		NodeID: idx.NodeID, EdgeU: idx.EdgeU, EdgeV: idx.EdgeV, EdgeDir: idx.EdgeDir,
		Runtime: rts[0],
	}}

	counts, err := KCore(context.Background(), ranks, predicate.Always)
	require.NoError(t, err)
	// d has degree 1 and prunes at k=2 (k=1's interval is empty); a,b,c form
	// a 2-core and never prune.
	require.Equal(t, []int{1}, counts)
}

func TestTopKOrdersDescendingWithStableTieBreak(t *testing.T) {
	nodes, edges, strings, idx := newSingleRankGraph(t)
	scoreIdx := record.AddSeries[int64](nodes, "score", series.Dense)
	for _, s := range []int64{5, 1, 5, 3} {
		row := nodes.AddRecord()
		record.Set[int64](nodes, scoreIdx, row, s)
	}

	rts := local.NewWorld(1)
	ranks := []Rank{{
		Nodes: nodes, Edges: edges, Strings: strings,
		NodeID: idx.NodeID, EdgeU: idx.EdgeU, EdgeV: idx.EdgeV, EdgeDir: idx.EdgeDir,
		Runtime: rts[0],
	}}

	descending := func(a, b value.Cell) int {
		switch {
		case a.Int64 > b.Int64:
			return -1
		case a.Int64 < b.Int64:
			return 1
		default:
			return 0
		}
	}

	rows, err := TopK(context.Background(), ranks, 2, "score", nil, descending, predicate.Always, KindNodes)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(5), rows[0].Value.Int64)
	require.Equal(t, int64(5), rows[1].Value.Int64)
	// both 5s tie; stable tie-break keeps the lower row id first.
	require.Less(t, rows[0].RowID, rows[1].RowID)
}
