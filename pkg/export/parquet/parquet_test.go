package parquet

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seriesdb/seriesdb/pkg/export"
	"github.com/seriesdb/seriesdb/pkg/ingest"
	ingestparquet "github.com/seriesdb/seriesdb/pkg/ingest/parquet"
	"github.com/seriesdb/seriesdb/pkg/value"
)

func TestWriteThenReadBackRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	w := NewWriter(path)

	cols := []export.ColumnSpec{
		{Name: "src", Kind: value.KindInt64},
		{Name: "dst", Kind: value.KindInt64},
		{Name: "weight", Kind: value.KindDouble},
		{Name: "label", Kind: value.KindString},
	}
	require.NoError(t, w.Schema(cols))

	rows := [][]export.Cell{
		{value.FromInt64(1), value.FromInt64(2), value.FromDouble(0.5), value.FromString("a")},
		{value.FromInt64(3), value.FromInt64(4), value.FromDouble(1.5), value.FromString("b")},
	}
	for _, r := range rows {
		require.NoError(t, w.WriteRow(r))
	}
	require.NoError(t, w.Close())

	src, err := ingestparquet.Open(path, false)
	require.NoError(t, err)
	defer src.Close()

	// The parquet schema is a group keyed by column name, so columns are
	// looked up by name rather than assumed to keep their write order.
	schema := src.Schema()
	srcCol, ok := ingest.FindColumn(schema, "src")
	require.True(t, ok)
	weightCol, ok := ingest.FindColumn(schema, "weight")
	require.True(t, ok)
	labelCol, ok := ingest.FindColumn(schema, "label")
	require.True(t, ok)

	var got int
	for {
		row, ok, err := src.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		require.Equal(t, rows[got][0].Int64, row[srcCol].Int64)
		require.Equal(t, rows[got][2].Double, row[weightCol].Double)
		require.Equal(t, rows[got][3].Str, row[labelCol].Str)
		got++
	}
	require.Equal(t, 2, got)
}

func TestWriteRowBeforeSchemaErrors(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "out.parquet"))
	err := w.WriteRow([]export.Cell{value.FromInt64(1)})
	require.Error(t, err)
}

func TestSchemaCalledTwiceErrors(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "out.parquet"))
	cols := []export.ColumnSpec{{Name: "a", Kind: value.KindInt64}}
	require.NoError(t, w.Schema(cols))
	require.Error(t, w.Schema(cols))
	require.NoError(t, w.Close())
}

func TestWriteRowColumnCountMismatchErrors(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "out.parquet"))
	cols := []export.ColumnSpec{{Name: "a", Kind: value.KindInt64}, {Name: "b", Kind: value.KindInt64}}
	require.NoError(t, w.Schema(cols))
	defer w.Close()
	err := w.WriteRow([]export.Cell{value.FromInt64(1)})
	require.Error(t, err)
}

func TestCloseWithoutSchemaIsNoop(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "out.parquet"))
	require.NoError(t, w.Close())
}
