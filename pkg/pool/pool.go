// Package pool provides object pooling for seriesdb's hot paths: dynamic row
// reads (record.Store.ForAllDynamicRows), parquet export row buffering
// (graph.dumpStore), and string-store key lookups (strstore.Store, called
// once per interned string on every FindOrAdd/Find/Get), all of which would
// otherwise allocate a fresh slice per row or per call.
//
// Pooled objects:
// - Cell slices (dynamic row reads, parquet export row buffering)
// - Byte buffers (strstore's 9-byte heap keys)
//
// Usage:
//
//	cells := pool.GetCellSlice()
//	defer pool.PutCellSlice(cells)
//	cells = append(cells, someCell)
package pool

import (
	"sync"

	"github.com/seriesdb/seriesdb/pkg/value"
)

// Config configures object pooling behavior.
type Config struct {
	// Enabled controls whether pooling is active.
	Enabled bool

	// MaxSize limits the capacity of a cell slice the pool will accept back;
	// larger ones are discarded instead of retained, bounding worst-case
	// pool memory after a one-off large batch. Byte buffers use a fixed
	// 1 MiB cap instead.
	MaxSize int
}

var globalConfig = Config{
	Enabled: true,
	MaxSize: 4096,
}

// Configure sets global pool configuration. Should be called early during
// initialization, before any Get/Put call.
func Configure(cfg Config) {
	globalConfig = cfg
	initPools()
}

func initPools() {
	cellSlicePool = sync.Pool{
		New: func() any { return make([]value.Cell, 0, 32) },
	}
	byteBufferPool = sync.Pool{
		New: func() any { return make([]byte, 0, 1024) },
	}
}

// IsEnabled returns whether pooling is enabled.
func IsEnabled() bool { return globalConfig.Enabled }

// =============================================================================
// Cell Slice Pool (dynamic row reads, parquet export row buffering)
// =============================================================================

var cellSlicePool = sync.Pool{
	New: func() any { return make([]value.Cell, 0, 32) },
}

// GetCellSlice returns a cell slice from the pool with length 0.
func GetCellSlice() []value.Cell {
	if !globalConfig.Enabled {
		return make([]value.Cell, 0, 32)
	}
	return cellSlicePool.Get().([]value.Cell)[:0]
}

// PutCellSlice returns a cell slice to the pool.
func PutCellSlice(cells []value.Cell) {
	if !globalConfig.Enabled {
		return
	}
	if cap(cells) > globalConfig.MaxSize {
		return
	}
	cellSlicePool.Put(cells[:0])
}

// =============================================================================
// Byte Buffer Pool (strstore heap keys)
// =============================================================================

var byteBufferPool = sync.Pool{
	New: func() any { return make([]byte, 0, 1024) },
}

// GetByteBuffer returns a byte buffer from the pool.
func GetByteBuffer() []byte {
	if !globalConfig.Enabled {
		return make([]byte, 0, 1024)
	}
	return byteBufferPool.Get().([]byte)[:0]
}

// PutByteBuffer returns a byte buffer to the pool.
func PutByteBuffer(buf []byte) {
	if !globalConfig.Enabled {
		return
	}
	if cap(buf) > 1024*1024 {
		return
	}
	byteBufferPool.Put(buf[:0])
}

