// Package config handles seriesdb configuration: per-process knobs via
// SERIESDB_* environment variables, plus the cluster's rank topology via a
// YAML file (gopkg.in/yaml.v3) since a peer address list doesn't fit an
// env-var's single-value shape.
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
//	topo, err := config.LoadTopology(cfg.Cluster.TopologyFile)
package config

import (
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/seriesdb/seriesdb/pkg/spmd/tcp"
)

// Config holds all seriesdb configuration loaded from SERIESDB_* environment
// variables. Use LoadFromEnv to build one, then Validate it before use.
type Config struct {
	Heap    HeapConfig
	Cluster ClusterConfig
	Logging LoggingConfig
	Runtime RuntimeConfig
}

// HeapConfig controls the on-disk badger-backed heap every rank opens.
type HeapConfig struct {
	// DataDir is the directory each rank's heap lives under; the rank
	// number is appended as a subdirectory (DataDir/rank-<n>).
	DataDir string
	// ReadOnly opens the heap without allowing mutation.
	ReadOnly bool
}

// ClusterConfig names this process's place in the SPMD cluster.
type ClusterConfig struct {
	// Rank is this process's rank (0-indexed). Rank 0 is always the
	// Barrier/AllReduce coordinator under pkg/spmd/tcp.
	Rank int
	// TopologyFile is the path to a YAML file listing every rank's dial
	// address, index == rank. Required when Transport is "tcp".
	TopologyFile string
	// Transport selects the spmd.Runtime implementation: "tcp" for a
	// real multi-process cluster, "local" for every rank as one
	// process's goroutines (tests, single-box runs).
	Transport string
	// LocalWorld is the goroutine-rank count used when Transport is
	// "local".
	LocalWorld int
}

// LoggingConfig controls process-wide log output.
type LoggingConfig struct {
	// Level: DEBUG, INFO, WARN, ERROR.
	Level string
	// Format: json or text.
	Format string
}

// RuntimeConfig tunes the Go runtime itself.
type RuntimeConfig struct {
	// MemLimit is the soft memory limit (GOMEMLIMIT) in bytes; 0 leaves
	// the runtime's default in place.
	MemLimit int64
	// GCPercent controls GC aggressiveness (GOGC); 100 is the default.
	GCPercent int
}

// Topology lists every rank's tcp.Runtime dial address, index == rank —
// an alias of pkg/spmd/tcp's own type, since that's what Dial takes.
type Topology = tcp.Topology

// LoadFromEnv reads SERIESDB_* environment variables into a Config, applying
// defaults for anything unset so LoadFromEnv can be called with nothing
// configured and still produce a usable single-rank local config.
func LoadFromEnv() *Config {
	cfg := &Config{}

	cfg.Heap.DataDir = getEnv("SERIESDB_DATA_DIR", "./data")
	cfg.Heap.ReadOnly = getEnvBool("SERIESDB_READ_ONLY", false)

	cfg.Cluster.Rank = getEnvInt("SERIESDB_RANK", 0)
	cfg.Cluster.TopologyFile = getEnv("SERIESDB_TOPOLOGY_FILE", "")
	cfg.Cluster.Transport = getEnv("SERIESDB_TRANSPORT", "local")
	cfg.Cluster.LocalWorld = getEnvInt("SERIESDB_LOCAL_WORLD", 1)

	cfg.Logging.Level = getEnv("SERIESDB_LOG_LEVEL", "INFO")
	cfg.Logging.Format = getEnv("SERIESDB_LOG_FORMAT", "json")

	cfg.Runtime.MemLimit = parseMemorySize(getEnv("SERIESDB_MEM_LIMIT", "0"))
	cfg.Runtime.GCPercent = getEnvInt("SERIESDB_GC_PERCENT", 100)

	return cfg
}

// Validate checks the configuration for values that would make startup
// fail later in a confusing way.
func (c *Config) Validate() error {
	if c.Cluster.Rank < 0 {
		return fmt.Errorf("config: negative rank %d", c.Cluster.Rank)
	}
	switch c.Cluster.Transport {
	case "local":
		if c.Cluster.LocalWorld <= 0 {
			return fmt.Errorf("config: local world size must be positive, got %d", c.Cluster.LocalWorld)
		}
	case "tcp":
		if c.Cluster.TopologyFile == "" {
			return fmt.Errorf("config: tcp transport requires SERIESDB_TOPOLOGY_FILE")
		}
	default:
		return fmt.Errorf("config: unknown transport %q (want local or tcp)", c.Cluster.Transport)
	}
	if c.Heap.DataDir == "" {
		return fmt.Errorf("config: data dir must not be empty")
	}
	return nil
}

// String returns a log-safe summary; nothing in Config is secret.
func (c *Config) String() string {
	return fmt.Sprintf("Config{rank: %d, transport: %s, dataDir: %s}",
		c.Cluster.Rank, c.Cluster.Transport, c.Heap.DataDir)
}

// LoadTopology reads a YAML cluster topology file: a flat list of dial
// addresses, index == rank.
//
//	- "127.0.0.1:9001"
//	- "127.0.0.1:9002"
//	- "127.0.0.1:9003"
func LoadTopology(path string) (Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read topology %s: %w", path, err)
	}
	var topo Topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return nil, fmt.Errorf("config: parse topology %s: %w", path, err)
	}
	if len(topo) == 0 {
		return nil, fmt.Errorf("config: topology %s lists no ranks", path)
	}
	return topo, nil
}

// ApplyRuntime applies the runtime memory settings to the Go runtime.
// Called early in main() before heavy allocations.
func (r RuntimeConfig) ApplyRuntime() {
	if r.MemLimit > 0 {
		debug.SetMemoryLimit(r.MemLimit)
	}
	if r.GCPercent != 100 {
		debug.SetGCPercent(r.GCPercent)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

// parseMemorySize parses a human-readable memory size string. Supports
// "1024", "1KB", "1MB", "1GB", "1TB", "0", "unlimited".
func parseMemorySize(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" || s == "UNLIMITED" {
		return 0
	}
	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "T"):
		multiplier = 1024 * 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "T")
	}

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return val * multiplier
}
