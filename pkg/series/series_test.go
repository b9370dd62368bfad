package series

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteMakesRowPresent(t *testing.T) {
	s := New[int64](Dense)
	require.False(t, s.Contains(5))
	s.Set(5, 42)
	require.True(t, s.Contains(5))
	v, ok := s.Get(5)
	require.True(t, ok)
	require.Equal(t, int64(42), v)
}

func TestDenseWriteGrowsAndZeroFills(t *testing.T) {
	s := New[int64](Dense)
	s.Set(10, 99)
	require.Equal(t, 10, s.DenseLen()-1)
	for row := uint64(0); row < 10; row++ {
		require.False(t, s.Contains(row))
	}
	require.True(t, s.Contains(10))
}

func TestEraseIsIdempotentOnAbsentCell(t *testing.T) {
	s := New[bool](Sparse)
	require.False(t, s.Erase(3))
	s.Set(3, true)
	require.True(t, s.Erase(3))
	require.False(t, s.Erase(3))
	require.False(t, s.Contains(3))
}

// Scenario 5 from spec.md §8: a sparse int64 series with rows {0, 100, 1000}
// converts to dense and back without losing values or presence.
func TestSparseDenseRoundTripScenario(t *testing.T) {
	s := New[int64](Sparse)
	s.Set(0, 10)
	s.Set(100, 20)
	s.Set(1000, 30)

	require.Equal(t, 3, s.Size())
	require.InDelta(t, 3.0/1001.0, s.LoadFactor(1001), 1e-9)

	s.Convert(Dense)
	require.Equal(t, 3, s.Size())
	require.GreaterOrEqual(t, s.DenseLen(), 1001)
	for row, want := range map[uint64]int64{0: 10, 100: 20, 1000: 30} {
		v, ok := s.Get(row)
		require.True(t, ok)
		require.Equal(t, want, v)
	}

	s.Convert(Sparse)
	require.Equal(t, 3, s.Size())
	for row, want := range map[uint64]int64{0: 10, 100: 20, 1000: 30} {
		v, ok := s.Get(row)
		require.True(t, ok)
		require.Equal(t, want, v)
	}
}

// Universal invariant from spec.md §8: convert(k1); convert(k2); convert(k1)
// leaves every cell equal to its initial value.
func TestConvertRoundTripIsObservablyNoOp(t *testing.T) {
	s := New[float64](Dense)
	values := map[uint64]float64{0: 1.5, 3: -2.25, 7: 100}
	for row, v := range values {
		s.Set(row, v)
	}

	s.Convert(Sparse)
	s.Convert(Dense)
	s.Convert(Sparse)

	for row, want := range values {
		v, ok := s.Get(row)
		require.True(t, ok)
		require.Equal(t, want, v)
	}
	require.Equal(t, len(values), s.Size())
}

func TestConvertToSameRepIsNoOp(t *testing.T) {
	s := New[int64](Dense)
	s.Set(2, 7)
	s.Convert(Dense)
	v, ok := s.Get(2)
	require.True(t, ok)
	require.Equal(t, int64(7), v)
}
