package partition

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOwnerIsDeterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("node-%d", i)
		first := Owner(key, 8)
		for j := 0; j < 5; j++ {
			require.Equal(t, first, Owner(key, 8))
		}
	}
}

func TestOwnerIsWithinWorldRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		owner := Owner(fmt.Sprintf("key-%d", i), 7)
		require.GreaterOrEqual(t, owner, 0)
		require.Less(t, owner, 7)
	}
}

func TestOwnerSingleRankWorldAlwaysZero(t *testing.T) {
	require.Equal(t, 0, Owner("anything", 1))
}

func TestOwnerPanicsOnNonPositiveWorld(t *testing.T) {
	require.Panics(t, func() { Owner("k", 0) })
	require.Panics(t, func() { Owner("k", -1) })
}

func TestOwnsMatchesOwner(t *testing.T) {
	key := "consistent-key"
	owner := Owner(key, 4)
	for rank := 0; rank < 4; rank++ {
		require.Equal(t, rank == owner, Owns(key, 4, rank))
	}
}

func TestOwnerBytesMatchesOwnerForSameContent(t *testing.T) {
	key := "bytes-and-string-agree"
	require.Equal(t, Owner(key, 9), OwnerBytes([]byte(key), 9))
}

// Distributional sanity check, not a strict statistical guarantee: across
// enough distinct keys, every rank in a small world should get some share.
func TestOwnerDistributesAcrossRanks(t *testing.T) {
	world := 4
	counts := make([]int, world)
	for i := 0; i < 4000; i++ {
		counts[Owner(fmt.Sprintf("distribute-%d", i), world)]++
	}
	for rank, c := range counts {
		require.Greater(t, c, 0, "rank %d got no keys", rank)
	}
}
