package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seriesdb/seriesdb/pkg/value"
)

func TestFindColumn(t *testing.T) {
	cols := []ColumnSpec{
		{Name: "src", Kind: value.KindString},
		{Name: "dst", Kind: value.KindString},
		{Name: "weight", Kind: value.KindDouble},
	}

	idx, ok := FindColumn(cols, "dst")
	require.True(t, ok)
	require.Equal(t, 1, idx)

	_, ok = FindColumn(cols, "missing")
	require.False(t, ok)
}
