package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seriesdb/seriesdb/pkg/predicate"
	"github.com/seriesdb/seriesdb/pkg/record"
	"github.com/seriesdb/seriesdb/pkg/series"
	"github.com/seriesdb/seriesdb/pkg/spmd/local"
	"github.com/seriesdb/seriesdb/pkg/strref"
)

func openTestGraph(t *testing.T, dir string) *Graph {
	t.Helper()
	rts := local.NewWorld(1)
	g, err := Open(dir, false, rts[0])
	require.NoError(t, err)
	return g
}

func addNode(t *testing.T, g *Graph, key string) uint64 {
	t.Helper()
	row := g.Nodes.AddRecord()
	acc, err := strref.Of(g.strings, key)
	require.NoError(t, err)
	record.Set[strref.Accessor](g.Nodes, g.nodeIDIdx, row, acc)
	g.nodeIndex[key] = uint32(row)
	return row
}

func TestOpenCreatesReservedSeries(t *testing.T) {
	g := openTestGraph(t, t.TempDir())
	defer g.Close()

	require.True(t, g.HasSeries(predicate.NodeClause, SeriesNodeID))
	require.True(t, g.HasSeries(predicate.EdgeClause, SeriesEdgeU))
	require.True(t, g.HasSeries(predicate.EdgeClause, SeriesEdgeV))
	require.True(t, g.HasSeries(predicate.EdgeClause, SeriesEdgeDirected))
}

func TestCloseReopenRoundTripsNodesAndIndex(t *testing.T) {
	dir := t.TempDir()
	g := openTestGraph(t, dir)
	addNode(t, g, "alice")
	addNode(t, g, "bob")
	require.NoError(t, g.Close())

	g2 := openTestGraph(t, dir)
	defer g2.Close()

	require.Equal(t, 2, g2.Nodes.NumRecords())
	require.Equal(t, uint32(0), g2.nodeIndex["alice"])
	require.Equal(t, uint32(1), g2.nodeIndex["bob"])
}

func TestRebuildNodeIndexOnCardinalityMismatch(t *testing.T) {
	g := openTestGraph(t, t.TempDir())
	defer g.Close()
	addNode(t, g, "alice")
	addNode(t, g, "bob")

	// Simulate a stale/corrupt index left over from a failed mid-batch ingest.
	g.nodeIndex = map[string]uint32{"alice": 0}
	require.NoError(t, g.rebuildNodeIndex())

	require.Len(t, g.nodeIndex, 2)
	require.Equal(t, uint32(0), g.nodeIndex["alice"])
	require.Equal(t, uint32(1), g.nodeIndex["bob"])
}

func TestAddSeriesRejectsTypeMismatchOnReserved(t *testing.T) {
	g := openTestGraph(t, t.TempDir())
	defer g.Close()

	_, err := AddSeries[bool](g, predicate.NodeClause, SeriesNodeID, series.Dense)
	require.Error(t, err)

	idx, err := AddSeries[strref.Accessor](g, predicate.NodeClause, SeriesNodeID, series.Dense)
	require.NoError(t, err)
	require.Equal(t, g.nodeIDIdx, idx)
}

func TestAddSeriesRejectsExistingNameWithDifferentType(t *testing.T) {
	g := openTestGraph(t, t.TempDir())
	defer g.Close()

	_, err := AddSeries[int64](g, predicate.NodeClause, "score", series.Dense)
	require.NoError(t, err)

	_, err = AddSeries[float64](g, predicate.NodeClause, "score", series.Dense)
	require.Error(t, err)
}

func TestDropSeriesRefusesReserved(t *testing.T) {
	g := openTestGraph(t, t.TempDir())
	defer g.Close()

	err := g.DropSeries(predicate.NodeClause, SeriesNodeID)
	require.Error(t, err)

	_, err = AddSeries[int64](g, predicate.NodeClause, "score", series.Dense)
	require.NoError(t, err)
	require.NoError(t, g.DropSeries(predicate.NodeClause, "score"))
	require.False(t, g.HasSeries(predicate.NodeClause, "score"))
}

func TestRenameSeriesValidation(t *testing.T) {
	g := openTestGraph(t, t.TempDir())
	defer g.Close()

	require.Error(t, g.RenameSeries(predicate.NodeClause, SeriesNodeID, "x"))
	require.Error(t, g.RenameSeries(predicate.NodeClause, "nope", "x"))

	_, err := AddSeries[int64](g, predicate.NodeClause, "score", series.Dense)
	require.NoError(t, err)
	_, err = AddSeries[int64](g, predicate.NodeClause, "other", series.Dense)
	require.NoError(t, err)
	require.Error(t, g.RenameSeries(predicate.NodeClause, "score", "other"))

	require.NoError(t, g.RenameSeries(predicate.NodeClause, "score", "renamed"))
	require.True(t, g.HasSeries(predicate.NodeClause, "renamed"))
	require.False(t, g.HasSeries(predicate.NodeClause, "score"))
}

func TestNumNodesCountsAcrossPeers(t *testing.T) {
	g := openTestGraph(t, t.TempDir())
	defer g.Close()
	addNode(t, g, "a")
	addNode(t, g, "b")
	addNode(t, g, "c")

	n, err := g.NumNodes(context.Background(), []*Graph{g}, predicate.Always)
	require.NoError(t, err)
	require.Equal(t, uint64(3), n)
}

func TestSelectNodesAndSampleNodes(t *testing.T) {
	g := openTestGraph(t, t.TempDir())
	defer g.Close()
	addNode(t, g, "a")
	addNode(t, g, "b")
	addNode(t, g, "c")

	rows, err := g.SelectNodes(predicate.Always)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1, 2}, rows)

	require.Equal(t, []uint64{0, 1}, g.SampleNodes(2))
}

func TestDescribeListsAllSeriesSortedByName(t *testing.T) {
	g := openTestGraph(t, t.TempDir())
	defer g.Close()

	info := g.Describe()
	names := make([]string, len(info))
	for i, s := range info {
		names[i] = s.Name
	}
	require.True(t, len(names) >= 4)
	for i := 1; i < len(names); i++ {
		require.LessOrEqual(t, names[i-1], names[i])
	}
}
