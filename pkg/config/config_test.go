package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearSeriesdbEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SERIESDB_DATA_DIR", "SERIESDB_READ_ONLY",
		"SERIESDB_RANK", "SERIESDB_TOPOLOGY_FILE", "SERIESDB_TRANSPORT", "SERIESDB_LOCAL_WORLD",
		"SERIESDB_LOG_LEVEL", "SERIESDB_LOG_FORMAT",
		"SERIESDB_MEM_LIMIT", "SERIESDB_GC_PERCENT",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearSeriesdbEnv(t)
	cfg := LoadFromEnv()

	if cfg.Heap.DataDir != "./data" {
		t.Errorf("DataDir = %q, want ./data", cfg.Heap.DataDir)
	}
	if cfg.Cluster.Rank != 0 {
		t.Errorf("Rank = %d, want 0", cfg.Cluster.Rank)
	}
	if cfg.Cluster.Transport != "local" {
		t.Errorf("Transport = %q, want local", cfg.Cluster.Transport)
	}
	if cfg.Cluster.LocalWorld != 1 {
		t.Errorf("LocalWorld = %d, want 1", cfg.Cluster.LocalWorld)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	clearSeriesdbEnv(t)
	t.Setenv("SERIESDB_DATA_DIR", "/var/lib/seriesdb")
	t.Setenv("SERIESDB_RANK", "2")
	t.Setenv("SERIESDB_TRANSPORT", "tcp")
	t.Setenv("SERIESDB_TOPOLOGY_FILE", "/etc/seriesdb/topology.yaml")

	cfg := LoadFromEnv()
	if cfg.Heap.DataDir != "/var/lib/seriesdb" {
		t.Errorf("DataDir = %q", cfg.Heap.DataDir)
	}
	if cfg.Cluster.Rank != 2 {
		t.Errorf("Rank = %d", cfg.Cluster.Rank)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsUnknownTransport(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Cluster.Transport = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error for unknown transport")
	}
}

func TestValidateRequiresTopologyFileForTCP(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Cluster.Transport = "tcp"
	cfg.Cluster.TopologyFile = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error for missing topology file")
	}
}

func TestValidateRejectsNonPositiveLocalWorld(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Cluster.Transport = "local"
	cfg.Cluster.LocalWorld = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error for zero local world")
	}
}

func TestLoadTopology(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topology.yaml")
	yamlContent := "- \"127.0.0.1:9001\"\n- \"127.0.0.1:9002\"\n- \"127.0.0.1:9003\"\n"
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatal(err)
	}

	topo, err := LoadTopology(path)
	if err != nil {
		t.Fatalf("LoadTopology() error = %v", err)
	}
	want := []string{"127.0.0.1:9001", "127.0.0.1:9002", "127.0.0.1:9003"}
	if len(topo) != len(want) {
		t.Fatalf("len(topo) = %d, want %d", len(topo), len(want))
	}
	for i, addr := range want {
		if topo[i] != addr {
			t.Errorf("topo[%d] = %q, want %q", i, topo[i], addr)
		}
	}
}

func TestLoadTopologyMissingFile(t *testing.T) {
	_, err := LoadTopology(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Error("LoadTopology() = nil, want error for missing file")
	}
}

func TestLoadTopologyEmptyListErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topology.yaml")
	if err := os.WriteFile(path, []byte("[]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTopology(path); err == nil {
		t.Error("LoadTopology() = nil, want error for empty topology")
	}
}

func TestParseMemorySize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"bytes numeric", "1024", 1024},
		{"bytes with B suffix", "1024B", 1024},
		{"kilobytes KB", "1KB", 1024},
		{"megabytes MB", "512MB", 512 * 1024 * 1024},
		{"gigabytes GB", "2GB", 2 * 1024 * 1024 * 1024},
		{"terabytes TB", "1TB", 1024 * 1024 * 1024 * 1024},
		{"zero", "0", 0},
		{"unlimited", "unlimited", 0},
		{"empty string", "", 0},
		{"whitespace", "  2GB  ", 2 * 1024 * 1024 * 1024},
		{"invalid chars", "abc", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseMemorySize(tt.input); got != tt.want {
				t.Errorf("parseMemorySize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
