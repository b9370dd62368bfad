// Package main provides the seriesdb CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seriesdb/seriesdb/pkg/config"
	"github.com/seriesdb/seriesdb/pkg/graph"
	"github.com/seriesdb/seriesdb/pkg/graph/algo"
	"github.com/seriesdb/seriesdb/pkg/predicate"
	predcel "github.com/seriesdb/seriesdb/pkg/predicate/cel"
	"github.com/seriesdb/seriesdb/pkg/spmd/local"
	"github.com/seriesdb/seriesdb/pkg/value"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "seriesdb",
		Short: "seriesdb - distributed column-oriented record engine for graph analytics",
		Long: `seriesdb stores nodes and edges as column-oriented record stores
partitioned across ranks, with a predicate runtime, parquet ingest/export,
and a set of distributed graph primitives (degree, connected components,
k-core, BFS, n-hops, top-k).

Every subcommand below opens --world ranks as goroutines in this one
process (the pkg/spmd/local transport) and operates on them together; each
rank's data lives under --data-dir/rank-<n>.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("seriesdb v%s\n", version)
		},
	})

	rootCmd.AddCommand(newIngestEdgesCmd())
	rootCmd.AddCommand(newIngestVertsCmd())
	rootCmd.AddCommand(newDegreeCmd())
	rootCmd.AddCommand(newComponentsCmd())
	rootCmd.AddCommand(newKCoreCmd())
	rootCmd.AddCommand(newBFSCmd())
	rootCmd.AddCommand(newNHopsCmd())
	rootCmd.AddCommand(newTopKCmd())
	rootCmd.AddCommand(newExportEdgesCmd())
	rootCmd.AddCommand(newExportVertsCmd())
	rootCmd.AddCommand(newDescribeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// addClusterFlags adds --data-dir/--world, defaulting from SERIESDB_DATA_DIR
// and SERIESDB_LOCAL_WORLD (pkg/config.LoadFromEnv) so a deployment can pin
// these via environment instead of repeating them on every invocation.
func addClusterFlags(cmd *cobra.Command) {
	cfg := config.LoadFromEnv()
	cmd.Flags().String("data-dir", cfg.Heap.DataDir, "data directory; each rank gets a rank-<n> subdirectory")
	cmd.Flags().Int("world", cfg.Cluster.LocalWorld, "number of ranks to simulate as goroutines in this process")
}

// openPeers opens world ranks under dataDir/rank-<n> over a shared
// pkg/spmd/local world, in the shape every distributed primitive needs:
// every rank's Graph held in one slice, in-process.
func openPeers(dataDir string, world int) ([]*graph.Graph, error) {
	if world <= 0 {
		return nil, fmt.Errorf("world must be positive, got %d", world)
	}
	runtimes := local.NewWorld(world)
	peers := make([]*graph.Graph, world)
	for i := 0; i < world; i++ {
		rankDir := filepath.Join(dataDir, fmt.Sprintf("rank-%d", i))
		if err := os.MkdirAll(rankDir, 0o755); err != nil {
			closePeers(peers[:i])
			return nil, fmt.Errorf("mkdir %s: %w", rankDir, err)
		}
		g, err := graph.Open(rankDir, false, runtimes[i])
		if err != nil {
			closePeers(peers[:i])
			return nil, fmt.Errorf("open rank %d: %w", i, err)
		}
		peers[i] = g
	}
	return peers, nil
}

func closePeers(peers []*graph.Graph) {
	for _, p := range peers {
		if p != nil {
			p.Close()
		}
	}
}

// printJSON writes v as indented JSON to stdout — the "JSON-like object"
// result envelope every subcommand returns.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// buildWhere compiles expr (a CEL boolean expression over store's series)
// into a predicate.Clause, or returns predicate.Always when expr is empty.
// Field kinds are sampled from the first live row of each series, matching
// pkg/graph/export.go's own schema-from-sample approach — a series with no
// live rows is skipped and unavailable to expr.
func buildWhere(store interface {
	GetSeriesNames() []string
	FindSeries(string) (int, bool)
	Cell(int, uint64) (value.Cell, bool)
	ForAllRows(func(uint64))
}, expr string) (predicate.Clause, error) {
	if expr == "" {
		return predicate.Always, nil
	}
	var fields []predcel.FieldSpec
	for _, name := range store.GetSeriesNames() {
		idx, ok := store.FindSeries(name)
		if !ok {
			continue
		}
		sampled := false
		store.ForAllRows(func(row uint64) {
			if sampled {
				return
			}
			if cell, ok := store.Cell(idx, row); ok {
				fields = append(fields, predcel.FieldSpec{Name: name, Kind: cell.Kind})
				sampled = true
			}
		})
	}
	return predcel.Compile(expr, fields)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func newIngestEdgesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest-edges",
		Short: "Ingest a parquet edge file or directory into the graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			world, _ := cmd.Flags().GetInt("world")
			path, _ := cmd.Flags().GetString("path")
			recursive, _ := cmd.Flags().GetBool("recursive")
			colU, _ := cmd.Flags().GetString("col-u")
			colV, _ := cmd.Flags().GetString("col-v")
			directed, _ := cmd.Flags().GetBool("directed")
			meta, _ := cmd.Flags().GetString("meta")

			peers, err := openPeers(dataDir, world)
			if err != nil {
				return err
			}
			defer closePeers(peers)

			ctx := context.Background()
			stats, err := peers[0].IngestParquetEdges(ctx, peers, path, recursive, colU, colV, directed, splitCSV(meta))
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
	addClusterFlags(cmd)
	cmd.Flags().String("path", "", "parquet file or directory to ingest")
	cmd.Flags().Bool("recursive", false, "descend into subdirectories when path is a directory")
	cmd.Flags().String("col-u", "src", "source-endpoint column name")
	cmd.Flags().String("col-v", "dst", "destination-endpoint column name")
	cmd.Flags().Bool("directed", true, "mark ingested edges as directed")
	cmd.Flags().String("meta", "", "comma-separated column names to map as edge series (default: every non-endpoint column)")
	cmd.MarkFlagRequired("path")
	return cmd
}

func newIngestVertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest-verts",
		Short: "Ingest a parquet node file or directory into the graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			world, _ := cmd.Flags().GetInt("world")
			path, _ := cmd.Flags().GetString("path")
			recursive, _ := cmd.Flags().GetBool("recursive")
			keyCol, _ := cmd.Flags().GetString("key-col")
			meta, _ := cmd.Flags().GetString("meta")

			peers, err := openPeers(dataDir, world)
			if err != nil {
				return err
			}
			defer closePeers(peers)

			ctx := context.Background()
			stats, err := peers[0].IngestParquetVerts(ctx, path, recursive, keyCol, splitCSV(meta))
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
	addClusterFlags(cmd)
	cmd.Flags().String("path", "", "parquet file or directory to ingest")
	cmd.Flags().Bool("recursive", false, "descend into subdirectories when path is a directory")
	cmd.Flags().String("key-col", "id", "node key column name")
	cmd.Flags().String("meta", "", "comma-separated column names to map as node series (default: every non-key column)")
	cmd.MarkFlagRequired("path")
	return cmd
}

func newDegreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "degree",
		Short: "Write each node's degree into a series",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			world, _ := cmd.Flags().GetInt("world")
			dir, _ := cmd.Flags().GetString("dir")
			outCol, _ := cmd.Flags().GetString("out-col")
			where, _ := cmd.Flags().GetString("where")

			peers, err := openPeers(dataDir, world)
			if err != nil {
				return err
			}
			defer closePeers(peers)

			clause, err := buildWhere(peers[0].Edges, where)
			if err != nil {
				return fmt.Errorf("compile --where: %w", err)
			}

			ctx := context.Background()
			var degErr error
			switch dir {
			case "in":
				degErr = peers[0].InDegree(ctx, peers, outCol, clause)
			case "out":
				degErr = peers[0].OutDegree(ctx, peers, outCol, clause)
			case "both", "":
				degErr = peers[0].Degrees(ctx, peers, outCol, clause)
			default:
				return fmt.Errorf("unknown --dir %q (want in, out, or both)", dir)
			}
			if degErr != nil {
				return degErr
			}
			return printJSON(map[string]any{"ok": true, "outCol": outCol})
		},
	}
	addClusterFlags(cmd)
	cmd.Flags().String("dir", "both", "in, out, or both")
	cmd.Flags().String("out-col", "degree", "node series to write the degree into")
	cmd.Flags().String("where", "", "CEL expression over edge series restricting which edges count")
	return cmd
}

func newComponentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "components",
		Short: "Label every node with its connected component",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			world, _ := cmd.Flags().GetInt("world")
			outCol, _ := cmd.Flags().GetString("out-col")
			where, _ := cmd.Flags().GetString("where")

			peers, err := openPeers(dataDir, world)
			if err != nil {
				return err
			}
			defer closePeers(peers)

			clause, err := buildWhere(peers[0].Edges, where)
			if err != nil {
				return fmt.Errorf("compile --where: %w", err)
			}

			n, err := peers[0].ConnectedComponents(context.Background(), peers, outCol, clause)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"components": n, "outCol": outCol})
		},
	}
	addClusterFlags(cmd)
	cmd.Flags().String("out-col", "component", "node series to write the component label into")
	cmd.Flags().String("where", "", "CEL expression over edge series restricting which edges connect nodes")
	return cmd
}

func newKCoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kcore",
		Short: "Report the per-level k-core prune-count vector",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			world, _ := cmd.Flags().GetInt("world")
			where, _ := cmd.Flags().GetString("where")

			peers, err := openPeers(dataDir, world)
			if err != nil {
				return err
			}
			defer closePeers(peers)

			clause, err := buildWhere(peers[0].Edges, where)
			if err != nil {
				return fmt.Errorf("compile --where: %w", err)
			}

			counts, err := peers[0].KCore(context.Background(), peers, clause)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"pruneCounts": counts})
		},
	}
	addClusterFlags(cmd)
	cmd.Flags().String("where", "", "CEL expression over edge series restricting which edges count")
	return cmd
}

func newBFSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bfs",
		Short: "Compute hop-level distances from a source node",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			world, _ := cmd.Flags().GetInt("world")
			source, _ := cmd.Flags().GetString("source")
			undirected, _ := cmd.Flags().GetBool("undirected")
			levelCol, _ := cmd.Flags().GetString("level-col")

			peers, err := openPeers(dataDir, world)
			if err != nil {
				return err
			}
			defer closePeers(peers)

			visited, err := peers[0].BFS(context.Background(), peers, source, undirected, levelCol)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"visited": visited, "levelCol": levelCol})
		},
	}
	addClusterFlags(cmd)
	cmd.Flags().String("source", "", "source node key")
	cmd.Flags().Bool("undirected", true, "traverse edges in both directions")
	cmd.Flags().String("level-col", "level", "node series to write hop distances into")
	cmd.MarkFlagRequired("source")
	return cmd
}

func newNHopsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nhops",
		Short: "Compute hop distance from the nearest of several source nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			world, _ := cmd.Flags().GetInt("world")
			sources, _ := cmd.Flags().GetString("sources")
			hops, _ := cmd.Flags().GetInt("hops")
			outCol, _ := cmd.Flags().GetString("out-col")

			peers, err := openPeers(dataDir, world)
			if err != nil {
				return err
			}
			defer closePeers(peers)

			if err := peers[0].NHops(context.Background(), peers, splitCSV(sources), hops, outCol); err != nil {
				return err
			}
			return printJSON(map[string]any{"ok": true, "outCol": outCol})
		},
	}
	addClusterFlags(cmd)
	cmd.Flags().String("sources", "", "comma-separated source node keys")
	cmd.Flags().Int("hops", 1, "maximum hop distance")
	cmd.Flags().String("out-col", "hops", "node series to write hop distances into")
	cmd.MarkFlagRequired("sources")
	return cmd
}

func newTopKCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topk",
		Short: "Return the k globally highest- (or lowest-) ranked node rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			world, _ := cmd.Flags().GetInt("world")
			k, _ := cmd.Flags().GetInt("k")
			ser, _ := cmd.Flags().GetString("series")
			extra, _ := cmd.Flags().GetString("extra")
			where, _ := cmd.Flags().GetString("where")
			descending, _ := cmd.Flags().GetBool("desc")

			peers, err := openPeers(dataDir, world)
			if err != nil {
				return err
			}
			defer closePeers(peers)

			clause, err := buildWhere(peers[0].Nodes, where)
			if err != nil {
				return fmt.Errorf("compile --where: %w", err)
			}

			rows, err := peers[0].TopK(context.Background(), peers, k, ser, splitCSV(extra), cellComparator(descending), clause)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"rows": rowsToJSON(rows)})
		},
	}
	addClusterFlags(cmd)
	cmd.Flags().Int("k", 10, "how many rows to return")
	cmd.Flags().String("series", "", "comparison series")
	cmd.Flags().String("extra", "", "comma-separated companion series to include per row")
	cmd.Flags().String("where", "", "CEL expression over node series restricting eligible rows")
	cmd.Flags().Bool("desc", true, "rank highest-first (false ranks lowest-first)")
	cmd.MarkFlagRequired("series")
	return cmd
}

func newExportEdgesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-edges",
		Short: "Dump every rank's edges to parquet shards",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			world, _ := cmd.Flags().GetInt("world")
			outDir, _ := cmd.Flags().GetString("out-dir")
			overwrite, _ := cmd.Flags().GetBool("overwrite")

			peers, err := openPeers(dataDir, world)
			if err != nil {
				return err
			}
			defer closePeers(peers)

			for _, p := range peers {
				if err := p.DumpParquetEdges(outDir, overwrite); err != nil {
					return err
				}
			}
			return printJSON(map[string]any{"ok": true, "outDir": outDir, "shards": world})
		},
	}
	addClusterFlags(cmd)
	cmd.Flags().String("out-dir", "./export", "directory to write edges_<rank>.parquet shards into")
	cmd.Flags().Bool("overwrite", false, "overwrite existing shard files")
	return cmd
}

func newExportVertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-verts",
		Short: "Dump every rank's nodes to parquet shards",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			world, _ := cmd.Flags().GetInt("world")
			outDir, _ := cmd.Flags().GetString("out-dir")
			overwrite, _ := cmd.Flags().GetBool("overwrite")

			peers, err := openPeers(dataDir, world)
			if err != nil {
				return err
			}
			defer closePeers(peers)

			for _, p := range peers {
				if err := p.DumpParquetVerts(outDir, overwrite); err != nil {
					return err
				}
			}
			return printJSON(map[string]any{"ok": true, "outDir": outDir, "shards": world})
		},
	}
	addClusterFlags(cmd)
	cmd.Flags().String("out-dir", "./export", "directory to write nodes_<rank>.parquet shards into")
	cmd.Flags().Bool("overwrite", false, "overwrite existing shard files")
	return cmd
}

func newDescribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Summarize every declared series across nodes and edges, per rank",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			world, _ := cmd.Flags().GetInt("world")

			peers, err := openPeers(dataDir, world)
			if err != nil {
				return err
			}
			defer closePeers(peers)

			ctx := context.Background()
			numNodes, err := peers[0].NumNodes(ctx, peers, predicate.Always)
			if err != nil {
				return err
			}
			numEdges, err := peers[0].NumEdges(ctx, peers, predicate.Always)
			if err != nil {
				return err
			}

			out := map[string]any{
				"numNodes": numNodes,
				"numEdges": numEdges,
			}
			for i, p := range peers {
				out["rank-"+strconv.Itoa(i)] = p.Describe()
			}
			return printJSON(out)
		},
	}
	addClusterFlags(cmd)
	return cmd
}

func rowsToJSON(rows []algo.Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		m := map[string]any{
			"rank":  r.Rank,
			"rowId": r.RowID,
			"value": cellToJSON(r.Value),
		}
		if len(r.Extra) > 0 {
			extras := make([]any, len(r.Extra))
			for j, c := range r.Extra {
				extras[j] = cellToJSON(c)
			}
			m["extra"] = extras
		}
		out[i] = m
	}
	return out
}

func cellToJSON(c value.Cell) any {
	switch c.Kind {
	case value.KindBool:
		return c.Bool
	case value.KindInt64:
		return c.Int64
	case value.KindUint64:
		return c.Uint64
	case value.KindDouble:
		return c.Double
	case value.KindString:
		return c.Str
	default:
		return nil
	}
}

// cellComparator compares two TopK comparison cells numerically or
// lexicographically depending on their kind, ordering descending when
// descending is true and ascending otherwise.
func cellComparator(descending bool) algo.Comparator {
	return func(a, b value.Cell) int {
		var cmp int
		switch a.Kind {
		case value.KindInt64:
			cmp = compareOrdered(a.Int64, b.Int64)
		case value.KindUint64:
			cmp = compareOrdered(a.Uint64, b.Uint64)
		case value.KindDouble:
			cmp = compareOrdered(a.Double, b.Double)
		case value.KindString:
			cmp = compareOrdered(a.Str, b.Str)
		case value.KindBool:
			cmp = compareOrdered(boolToInt(a.Bool), boolToInt(b.Bool))
		}
		if descending {
			return -cmp
		}
		return cmp
	}
}

func compareOrdered[T int64 | uint64 | float64 | string | int](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
