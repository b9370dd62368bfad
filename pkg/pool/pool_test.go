package pool

import (
	"sync"
	"testing"

	"github.com/seriesdb/seriesdb/pkg/value"
)

func TestConfigure(t *testing.T) {
	origConfig := globalConfig
	defer Configure(origConfig)

	t.Run("enable pooling", func(t *testing.T) {
		Configure(Config{Enabled: true, MaxSize: 500})
		if !IsEnabled() {
			t.Error("IsEnabled() = false, want true")
		}
		if globalConfig.MaxSize != 500 {
			t.Errorf("MaxSize = %d, want 500", globalConfig.MaxSize)
		}
	})

	t.Run("disable pooling", func(t *testing.T) {
		Configure(Config{Enabled: false, MaxSize: 1000})
		if IsEnabled() {
			t.Error("IsEnabled() = true, want false")
		}
	})
}

func TestCellSlicePool(t *testing.T) {
	Configure(Config{Enabled: true, MaxSize: 1000})

	t.Run("get returns empty slice", func(t *testing.T) {
		cells := GetCellSlice()
		if len(cells) != 0 {
			t.Errorf("len = %d, want 0", len(cells))
		}
		if cap(cells) == 0 {
			t.Error("cap should be > 0 (pre-allocated)")
		}
		PutCellSlice(cells)
	})

	t.Run("put and reuse", func(t *testing.T) {
		cells := GetCellSlice()
		cells = append(cells, value.FromInt64(42))
		PutCellSlice(cells)

		cells2 := GetCellSlice()
		if len(cells2) != 0 {
			t.Errorf("reused slice len = %d, want 0", len(cells2))
		}
		PutCellSlice(cells2)
	})

	t.Run("oversized slices not pooled", func(t *testing.T) {
		Configure(Config{Enabled: true, MaxSize: 10})
		defer Configure(Config{Enabled: true, MaxSize: 1000})

		cells := make([]value.Cell, 0, 100)
		PutCellSlice(cells) // should not panic, just not pool it
	})

	t.Run("disabled pooling creates new slices", func(t *testing.T) {
		Configure(Config{Enabled: false, MaxSize: 1000})
		defer Configure(Config{Enabled: true, MaxSize: 1000})

		cells := GetCellSlice()
		if cells == nil {
			t.Error("GetCellSlice returned nil when pooling disabled")
		}
		PutCellSlice(cells)
	})
}

func TestByteBufferPool(t *testing.T) {
	Configure(Config{Enabled: true, MaxSize: 1000})

	t.Run("get returns empty buffer", func(t *testing.T) {
		buf := GetByteBuffer()
		if len(buf) != 0 {
			t.Errorf("len = %d, want 0", len(buf))
		}
		if cap(buf) == 0 {
			t.Error("cap should be > 0")
		}
		PutByteBuffer(buf)
	})

	t.Run("reuse", func(t *testing.T) {
		buf := GetByteBuffer()
		buf = append(buf, []byte("test data")...)
		PutByteBuffer(buf)

		buf2 := GetByteBuffer()
		if len(buf2) != 0 {
			t.Errorf("reused buffer len = %d, want 0", len(buf2))
		}
		PutByteBuffer(buf2)
	})

	t.Run("oversized buffer not pooled", func(t *testing.T) {
		buf := make([]byte, 0, 2*1024*1024)
		PutByteBuffer(buf) // should not panic, just not pool it
	})
}

func TestConcurrentPoolAccess(t *testing.T) {
	Configure(Config{Enabled: true, MaxSize: 1000})

	const goroutines = 100
	const iterations = 100

	t.Run("cell slice pool concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(goroutines)
		for i := 0; i < goroutines; i++ {
			go func(id int) {
				defer wg.Done()
				for j := 0; j < iterations; j++ {
					cells := GetCellSlice()
					cells = append(cells, value.FromInt64(int64(id)))
					PutCellSlice(cells)
				}
			}(i)
		}
		wg.Wait()
	})

	t.Run("byte buffer pool concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(goroutines)
		for i := 0; i < goroutines; i++ {
			go func() {
				defer wg.Done()
				for j := 0; j < iterations; j++ {
					buf := GetByteBuffer()
					buf = append(buf, "x"...)
					PutByteBuffer(buf)
				}
			}()
		}
		wg.Wait()
	})
}

func BenchmarkCellSlicePool(b *testing.B) {
	Configure(Config{Enabled: true, MaxSize: 1000})

	b.Run("pooled", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			cells := GetCellSlice()
			cells = append(cells, value.FromInt64(1))
			PutCellSlice(cells)
		}
	})

	b.Run("unpooled", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			cells := make([]value.Cell, 0, 32)
			cells = append(cells, value.FromInt64(1))
			_ = cells
		}
	})
}
