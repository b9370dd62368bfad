package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToFloat64(t *testing.T) {
	f64, ok := ToFloat64(3.14)
	assert.True(t, ok)
	assert.InDelta(t, 3.14, f64, 0.0001)

	f32, ok := ToFloat64(float32(2.5))
	assert.True(t, ok)
	assert.InDelta(t, 2.5, f32, 0.0001)
}

func TestToInt64(t *testing.T) {
	i64, ok := ToInt64(int64(99))
	assert.True(t, ok)
	assert.Equal(t, int64(99), i64)

	i32, ok := ToInt64(int32(50))
	assert.True(t, ok)
	assert.Equal(t, int64(50), i32)
}

func BenchmarkToFloat64(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ToFloat64(float64(42))
	}
}

func BenchmarkToInt64(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ToInt64(int32(42))
	}
}
