// Package graph implements the graph façade from spec.md §4.H: two
// record.Store instances (Nodes, Edges) composed over one heap, with the
// reserved series every node/edge needs to participate in the distributed
// primitives in pkg/graph/algo.
package graph

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/seriesdb/seriesdb/pkg/graph/algo"
	"github.com/seriesdb/seriesdb/pkg/heap"
	"github.com/seriesdb/seriesdb/pkg/partition"
	"github.com/seriesdb/seriesdb/pkg/predicate"
	"github.com/seriesdb/seriesdb/pkg/record"
	"github.com/seriesdb/seriesdb/pkg/series"
	"github.com/seriesdb/seriesdb/pkg/spmd"
	"github.com/seriesdb/seriesdb/pkg/strref"
	"github.com/seriesdb/seriesdb/pkg/strstore"
	"github.com/seriesdb/seriesdb/pkg/value"
)

// Reserved series names every Graph carries, per spec.md §4.H.
const (
	SeriesNodeID       = "node.id"
	SeriesEdgeU        = "edge.u"
	SeriesEdgeV        = "edge.v"
	SeriesEdgeDirected = "edge.directed"
)

var reservedNodeSeries = map[string]bool{SeriesNodeID: true}
var reservedEdgeSeries = map[string]bool{SeriesEdgeU: true, SeriesEdgeV: true, SeriesEdgeDirected: true}

// nodeIndexKey is the fixed heap key the node index snapshot lives under,
// following pkg/record.SaveTo's one-key-per-prefix convention.
var nodeIndexKey = []byte{heap.PrefixNodeIndex, 0x00}

// Graph is one rank's shard of the distributed graph: its own Nodes and
// Edges record stores, string store, and node index, all over one heap,
// plus the spmd.Runtime this rank participates with.
type Graph struct {
	h       *heap.Heap
	strings *strstore.Store
	rt      spmd.Runtime

	Nodes *record.Store
	Edges *record.Store

	mu        sync.Mutex
	nodeIndex map[string]uint32

	nodeIDIdx  int
	edgeUIdx   int
	edgeVIdx   int
	edgeDirIdx int
}

// Open creates or reopens a graph shard at path. rt is this rank's SPMD
// runtime — not part of spec.md's literal two-argument open(path,
// overwrite), but every collective primitive in §4.J needs one, so it is
// threaded in explicitly here rather than hidden behind a package global
// (see DESIGN.md).
//
// A fresh heap gets the four reserved series created on Nodes/Edges. A
// reopened one looks all four up and panics if any is missing — spec.md §7
// treats a heap whose named objects are absent as a programmer error, not a
// recoverable one.
func Open(path string, overwrite bool, rt spmd.Runtime) (*Graph, error) {
	fresh := overwrite || heap.IsNew(path)

	h, err := heap.Open(path, heap.Options{Overwrite: overwrite})
	if err != nil {
		return nil, fmt.Errorf("graph: open heap: %w", err)
	}

	strs := strstore.Open(h)

	nodes, _, err := record.LoadFrom(h, heap.PrefixNodes, strs)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("graph: load nodes: %w", err)
	}
	edges, _, err := record.LoadFrom(h, heap.PrefixEdges, strs)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("graph: load edges: %w", err)
	}

	g := &Graph{h: h, strings: strs, rt: rt, Nodes: nodes, Edges: edges}

	if fresh {
		g.nodeIDIdx = record.AddSeries[strref.Accessor](nodes, SeriesNodeID, series.Dense)
		g.edgeUIdx = record.AddSeries[strref.Accessor](edges, SeriesEdgeU, series.Dense)
		g.edgeVIdx = record.AddSeries[strref.Accessor](edges, SeriesEdgeV, series.Dense)
		g.edgeDirIdx = record.AddSeries[bool](edges, SeriesEdgeDirected, series.Dense)
		g.nodeIndex = make(map[string]uint32)
	} else {
		var ok bool
		if g.nodeIDIdx, ok = nodes.FindSeries(SeriesNodeID); !ok {
			panic("graph: reopened heap is missing reserved series " + SeriesNodeID)
		}
		if g.edgeUIdx, ok = edges.FindSeries(SeriesEdgeU); !ok {
			panic("graph: reopened heap is missing reserved series " + SeriesEdgeU)
		}
		if g.edgeVIdx, ok = edges.FindSeries(SeriesEdgeV); !ok {
			panic("graph: reopened heap is missing reserved series " + SeriesEdgeV)
		}
		if g.edgeDirIdx, ok = edges.FindSeries(SeriesEdgeDirected); !ok {
			panic("graph: reopened heap is missing reserved series " + SeriesEdgeDirected)
		}
		if err := g.loadNodeIndex(); err != nil {
			h.Close()
			return nil, fmt.Errorf("graph: load node index: %w", err)
		}
	}

	return g, nil
}

// Close persists Nodes, Edges, and the node index, then closes the heap.
func (g *Graph) Close() error {
	if err := g.Nodes.SaveTo(g.h, heap.PrefixNodes); err != nil {
		return fmt.Errorf("graph: save nodes: %w", err)
	}
	if err := g.Edges.SaveTo(g.h, heap.PrefixEdges); err != nil {
		return fmt.Errorf("graph: save edges: %w", err)
	}
	if err := g.saveNodeIndex(); err != nil {
		return fmt.Errorf("graph: save node index: %w", err)
	}
	return g.h.Close()
}

func (g *Graph) loadNodeIndex() error {
	var snap map[string]uint32
	err := g.h.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeIndexKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return gobDecodeNodeIndex(val, &snap)
		})
	})
	if err != nil {
		return err
	}

	if snap != nil && len(snap) == g.Nodes.NumRecords() {
		g.nodeIndex = snap
		return nil
	}
	return g.rebuildNodeIndex()
}

// rebuildNodeIndex reconstructs the key->row map from Nodes' node.id
// series, used whenever the persisted index's cardinality disagrees with
// the live row count (spec.md §9's resolved Open Question).
func (g *Graph) rebuildNodeIndex() error {
	idx := make(map[string]uint32, g.Nodes.NumRecords())
	record.ForAll[strref.Accessor](g.Nodes, g.nodeIDIdx, func(row uint64, a strref.Accessor) {
		idx[a.ToView(g.strings)] = uint32(row)
	})
	g.nodeIndex = idx
	return nil
}

func (g *Graph) saveNodeIndex() error {
	data, err := gobEncodeNodeIndex(g.nodeIndex)
	if err != nil {
		return err
	}
	return g.h.Update(func(txn *badger.Txn) error {
		return txn.Set(nodeIndexKey, data)
	})
}

func gobEncodeNodeIndex(m map[string]uint32) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("graph: encode node index: %w", err)
	}
	return buf.Bytes(), nil
}

func gobDecodeNodeIndex(data []byte, out *map[string]uint32) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(out)
}

// AddSeries declares a new series of type T on kind's store (Nodes or
// Edges). Unlike record.AddSeries's programmer-error panic, redeclaring a
// reserved or already-existing name with a mismatched type here returns an
// error — spec.md §7 classifies reserved-name reuse as a validation error,
// not a fatal one, since a caller driving ingest from untrusted column
// metadata needs to recover from it.
func AddSeries[T record.Primitive](g *Graph, kind predicate.Kind, name string, rep series.Rep) (int, error) {
	store := g.storeFor(kind)
	if g.isReserved(kind, name) {
		if !record.IsSeriesType[T](store, name) {
			return 0, fmt.Errorf("graph: %q is a reserved series and cannot be redeclared with a different type", name)
		}
		idx, _ := store.FindSeries(name)
		return idx, nil
	}
	if _, ok := store.FindSeries(name); ok && !record.IsSeriesType[T](store, name) {
		return 0, fmt.Errorf("graph: series %q already exists with a different type", name)
	}
	return record.AddSeries[T](store, name, rep), nil
}

// DropSeries removes the named series from kind's store. Refuses to drop a
// reserved series.
func (g *Graph) DropSeries(kind predicate.Kind, name string) error {
	if g.isReserved(kind, name) {
		return fmt.Errorf("graph: %q is a reserved series and cannot be dropped", name)
	}
	g.storeFor(kind).RemoveSeries(name)
	return nil
}

// HasSeries reports whether name is declared on kind's store.
func (g *Graph) HasSeries(kind predicate.Kind, name string) bool {
	_, ok := g.storeFor(kind).FindSeries(name)
	return ok
}

// GetNodeSeriesNames returns every series name declared on Nodes.
func (g *Graph) GetNodeSeriesNames() []string { return g.Nodes.GetSeriesNames() }

// GetEdgeSeriesNames returns every series name declared on Edges.
func (g *Graph) GetEdgeSeriesNames() []string { return g.Edges.GetSeriesNames() }

func (g *Graph) storeFor(kind predicate.Kind) *record.Store {
	if kind == predicate.NodeClause {
		return g.Nodes
	}
	return g.Edges
}

func (g *Graph) isReserved(kind predicate.Kind, name string) bool {
	if kind == predicate.NodeClause {
		return reservedNodeSeries[name]
	}
	return reservedEdgeSeries[name]
}

// NumNodes counts live nodes matching where (predicate.Always for all of
// them), summed across every rank listed in peers (which must include g
// itself).
func (g *Graph) NumNodes(ctx context.Context, peers []*Graph, where predicate.Clause) (uint64, error) {
	return countAcross(ctx, g, peers, func(gr *Graph) *record.Store { return gr.Nodes }, where)
}

// NumEdges counts live edges matching where, summed across every rank.
func (g *Graph) NumEdges(ctx context.Context, peers []*Graph, where predicate.Clause) (uint64, error) {
	return countAcross(ctx, g, peers, func(gr *Graph) *record.Store { return gr.Edges }, where)
}

func countAcross(ctx context.Context, g *Graph, peers []*Graph, store func(*Graph) *record.Store, where predicate.Clause) (uint64, error) {
	bound, err := predicate.Bind(store(g), where)
	if err != nil {
		return 0, fmt.Errorf("graph: bind predicate: %w", err)
	}
	var local uint64
	store(g).ForAllRows(func(row uint64) {
		if bound.Matches(row) {
			local++
		}
	})
	total, err := g.rt.AllReduce(ctx, spmd.Sum, float64(local))
	if err != nil {
		return 0, fmt.Errorf("graph: AllReduce: %w", err)
	}
	return uint64(total), nil
}

// EraseEdgesWhere removes every edge matching where, across this rank's
// shard only (callers drive every rank through their own Graph). It
// collects matching row ids before removing any of them, since RemoveRecord
// mutates the same live-row bitmap ForAllRows iterates.
func (g *Graph) EraseEdgesWhere(ctx context.Context, where predicate.Clause) (uint64, error) {
	bound, err := predicate.Bind(g.Edges, where)
	if err != nil {
		return 0, fmt.Errorf("graph: bind predicate: %w", err)
	}
	var toRemove []uint64
	g.Edges.ForAllRows(func(row uint64) {
		if bound.Matches(row) {
			toRemove = append(toRemove, row)
		}
	})
	for _, row := range toRemove {
		g.Edges.RemoveRecord(row)
	}
	return uint64(len(toRemove)), nil
}

// EraseEdgesByKeys removes every edge whose named column matches one of
// keys, after hash-routing keys to their owning rank (spec.md §4.H's
// key-set form). peers must include every participating rank, g among them.
func EraseEdgesByKeys(ctx context.Context, peers []*Graph, seriesName string, keys []string) (int, error) {
	if len(peers) == 0 {
		return 0, fmt.Errorf("graph: EraseEdgesByKeys requires at least one rank")
	}
	world := len(peers)
	owned := spmd.NewKVMap[bool](peers[0].rt)
	for _, k := range keys {
		owned.Put(ctx, partition.Owner(k, world), k, true)
	}
	if err := peers[0].rt.Barrier(ctx); err != nil {
		return 0, fmt.Errorf("graph: barrier: %w", err)
	}

	removed := make([]int, len(peers))
	for i, p := range peers {
		idx, ok := p.Edges.FindSeries(seriesName)
		if !ok {
			continue
		}
		var toRemove []uint64
		p.Edges.ForAllRows(func(row uint64) {
			cell, ok := p.Edges.Cell(idx, row)
			if !ok || cell.Kind != value.KindString {
				return
			}
			if _, isOwned := owned.Get(cell.Str); isOwned {
				toRemove = append(toRemove, row)
			}
		})
		for _, row := range toRemove {
			p.Edges.RemoveRecord(row)
		}
		removed[i] = len(toRemove)
	}

	total := 0
	for _, c := range removed {
		total += c
	}
	return total, nil
}

func (g *Graph) toRanks(peers []*Graph) []algo.Rank {
	ranks := make([]algo.Rank, len(peers))
	for i, p := range peers {
		ranks[i] = algo.Rank{
			Nodes: p.Nodes, Edges: p.Edges, Strings: p.strings,
			NodeID: p.nodeIDIdx, EdgeU: p.edgeUIdx, EdgeV: p.edgeVIdx, EdgeDir: p.edgeDirIdx,
			Runtime: p.rt,
		}
	}
	return ranks
}

// InDegree is Degree with DegreeIn.
func (g *Graph) InDegree(ctx context.Context, peers []*Graph, outCol string, where predicate.Clause) error {
	return algo.Degree(ctx, g.toRanks(peers), algo.DegreeIn, outCol, where)
}

// OutDegree is Degree with DegreeOut.
func (g *Graph) OutDegree(ctx context.Context, peers []*Graph, outCol string, where predicate.Clause) error {
	return algo.Degree(ctx, g.toRanks(peers), algo.DegreeOut, outCol, where)
}

// Degrees is Degree with DegreeBoth, spec.md's "total incident edges" form.
func (g *Graph) Degrees(ctx context.Context, peers []*Graph, outCol string, where predicate.Clause) error {
	return algo.Degree(ctx, g.toRanks(peers), algo.DegreeBoth, outCol, where)
}

// Degrees2 writes both in-degree and out-degree columns in one call, the
// convenience form spec.md's CLI surface exposes alongside Degrees.
func (g *Graph) Degrees2(ctx context.Context, peers []*Graph, inCol, outCol string, where predicate.Clause) error {
	if err := algo.Degree(ctx, g.toRanks(peers), algo.DegreeIn, inCol, where); err != nil {
		return err
	}
	return algo.Degree(ctx, g.toRanks(peers), algo.DegreeOut, outCol, where)
}

// ConnectedComponents labels every node with its component's representative
// and returns the number of distinct components.
func (g *Graph) ConnectedComponents(ctx context.Context, peers []*Graph, outCol string, where predicate.Clause) (int, error) {
	return algo.ConnectedComponents(ctx, g.toRanks(peers), outCol, where)
}

// NHops writes each node's hop distance to the nearest source, up to hops
// hops away.
func (g *Graph) NHops(ctx context.Context, peers []*Graph, sources []string, hops int, outCol string) error {
	return algo.NHops(ctx, g.toRanks(peers), sources, hops, outCol)
}

// TopK returns the k globally highest-ranked node rows by ser.
func (g *Graph) TopK(ctx context.Context, peers []*Graph, k int, ser string, extra []string, cmp algo.Comparator, where predicate.Clause) ([]algo.Row, error) {
	return algo.TopK(ctx, g.toRanks(peers), k, ser, extra, cmp, where, algo.KindNodes)
}

// KCore returns the per-level prune-count vector.
func (g *Graph) KCore(ctx context.Context, peers []*Graph, where predicate.Clause) ([]int, error) {
	return algo.KCore(ctx, g.toRanks(peers), where)
}

// BFS computes level distances from source, optionally writing levelCol.
func (g *Graph) BFS(ctx context.Context, peers []*Graph, source string, undirected bool, levelCol string) (int, error) {
	return algo.BFS(ctx, g.toRanks(peers), source, undirected, levelCol)
}

// Assign writes value into ser for every row on this rank matching where —
// spec.md's generic "set a series to a constant over a selection" helper.
func Assign[T record.Primitive](g *Graph, kind predicate.Kind, ser string, value T, where predicate.Clause) (uint64, error) {
	store := g.storeFor(kind)
	idx, ok := store.FindSeries(ser)
	if !ok {
		return 0, fmt.Errorf("graph: unknown series %q", ser)
	}
	bound, err := predicate.Bind(store, where)
	if err != nil {
		return 0, fmt.Errorf("graph: bind predicate: %w", err)
	}
	var n uint64
	store.ForAllRows(func(row uint64) {
		if bound.Matches(row) {
			record.Set[T](store, idx, row, value)
			n++
		}
	})
	return n, nil
}

// SelectNodes returns the row ids of every live node matching where, in
// ascending order.
func (g *Graph) SelectNodes(where predicate.Clause) ([]uint64, error) {
	return selectRows(g.Nodes, where)
}

// SelectEdges returns the row ids of every live edge matching where, in
// ascending order.
func (g *Graph) SelectEdges(where predicate.Clause) ([]uint64, error) {
	return selectRows(g.Edges, where)
}

func selectRows(store *record.Store, where predicate.Clause) ([]uint64, error) {
	bound, err := predicate.Bind(store, where)
	if err != nil {
		return nil, fmt.Errorf("graph: bind predicate: %w", err)
	}
	var rows []uint64
	store.ForAllRows(func(row uint64) {
		if bound.Matches(row) {
			rows = append(rows, row)
		}
	})
	return rows, nil
}

// SampleNodes returns up to n live node row ids, in ascending row-id order
// (a stable, reproducible sample: the first n live rows rather than a
// randomized selection).
func (g *Graph) SampleNodes(n int) []uint64 {
	var rows []uint64
	g.Nodes.ForAllRows(func(row uint64) {
		if len(rows) < n {
			rows = append(rows, row)
		}
	})
	return rows
}

// RenameSeries renames a series on kind's store, supplemented from
// original_source/MetallGraph.hpp (spec.md's distillation dropped it, but
// it changes no wire format and isn't named in any Non-goal). Refuses to
// rename a reserved series or onto an already-existing name.
func (g *Graph) RenameSeries(kind predicate.Kind, oldName, newName string) error {
	if g.isReserved(kind, oldName) {
		return fmt.Errorf("graph: %q is a reserved series and cannot be renamed", oldName)
	}
	store := g.storeFor(kind)
	if _, ok := store.FindSeries(newName); ok {
		return fmt.Errorf("graph: series %q already exists", newName)
	}
	if _, ok := store.FindSeries(oldName); !ok {
		return fmt.Errorf("graph: unknown series %q", oldName)
	}
	return store.RenameSeries(oldName, newName)
}

// SeriesInfo is one row of Describe's summary.
type SeriesInfo struct {
	Kind       predicate.Kind
	Name       string
	ValueKind  value.Kind
	Size       int
	LoadFactor float64
}

// Describe summarizes every declared series across Nodes and Edges,
// supplemented from original_source/select_edges.cpp's describe() dump.
func (g *Graph) Describe() []SeriesInfo {
	valueKind := func(store *record.Store, name string) value.Kind {
		switch {
		case record.IsSeriesType[bool](store, name):
			return value.KindBool
		case record.IsSeriesType[int64](store, name):
			return value.KindInt64
		case record.IsSeriesType[uint64](store, name):
			return value.KindUint64
		case record.IsSeriesType[float64](store, name):
			return value.KindDouble
		}
		return value.KindString
	}
	var out []SeriesInfo
	for _, name := range g.Nodes.GetSeriesNames() {
		idx, _ := g.Nodes.FindSeries(name)
		out = append(out, SeriesInfo{
			Kind: predicate.NodeClause, Name: name, ValueKind: valueKind(g.Nodes, name),
			Size: g.Nodes.Size(idx), LoadFactor: g.Nodes.LoadFactor(idx),
		})
	}
	for _, name := range g.Edges.GetSeriesNames() {
		idx, _ := g.Edges.FindSeries(name)
		out = append(out, SeriesInfo{
			Kind: predicate.EdgeClause, Name: name, ValueKind: valueKind(g.Edges, name),
			Size: g.Edges.Size(idx), LoadFactor: g.Edges.LoadFactor(idx),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
