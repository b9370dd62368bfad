// Package parquet adapts github.com/parquet-go/parquet-go into an
// ingest.RowSource: the concrete columnar file reader spec.md treats as an
// external collaborator.
package parquet

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	pq "github.com/parquet-go/parquet-go"

	"github.com/seriesdb/seriesdb/pkg/convert"
	"github.com/seriesdb/seriesdb/pkg/ingest"
	"github.com/seriesdb/seriesdb/pkg/value"
)

type source struct {
	files   []*os.File
	readers []*pq.Reader
	cols    []ingest.ColumnSpec
	cur     int
	buf     [1]pq.Row
}

// Open opens path as a row source. If path names a directory, every
// "*.parquet" file inside it is concatenated into one logical stream, in
// sorted-name order — matching the per-rank shard naming
// (export/parquet.NewWriter's "<prefix>_<rank>.parquet") this package reads
// back. Every part file must share the same schema. recursive additionally
// descends into subdirectories when path is a directory, matching spec.md
// §4.I's "directory or file" input with an optional recursive walk.
func Open(path string, recursive bool) (ingest.RowSource, error) {
	paths, err := partFiles(path, recursive)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("ingest/parquet: no part files under %s", path)
	}

	s := &source{}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("ingest/parquet: open %s: %w", p, err)
		}
		info, err := f.Stat()
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("ingest/parquet: stat %s: %w", p, err)
		}
		pf, err := pq.OpenFile(f, info.Size())
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("ingest/parquet: open file %s: %w", p, err)
		}
		r := pq.NewReader(f, pf.Schema())
		s.files = append(s.files, f)
		s.readers = append(s.readers, r)
	}
	s.cols = columnsOf(s.readers[0].Schema())
	return s, nil
}

func columnsOf(schema *pq.Schema) []ingest.ColumnSpec {
	fields := schema.Fields()
	cols := make([]ingest.ColumnSpec, len(fields))
	for i, f := range fields {
		cols[i] = ingest.ColumnSpec{Name: f.Name(), Kind: kindOf(f.Type())}
	}
	return cols
}

func kindOf(t pq.Type) value.Kind {
	switch t.Kind() {
	case pq.Boolean:
		return value.KindBool
	case pq.Int32, pq.Int64:
		return value.KindInt64
	case pq.Float, pq.Double:
		return value.KindDouble
	case pq.ByteArray, pq.FixedLenByteArray:
		return value.KindString
	default:
		return value.KindNone
	}
}

// toCell maps a raw parquet value onto the engine's cell types, using
// pkg/convert's numeric coercion table for the int32/int64→int64 and
// float/double→double legs spec.md's ingest policy (§4.I) names.
func toCell(v pq.Value) ingest.Cell {
	if v.IsNull() {
		return value.None
	}
	switch v.Kind() {
	case pq.Boolean:
		return value.FromBool(v.Boolean())
	case pq.Int32:
		i, _ := convert.ToInt64(v.Int32())
		return value.FromInt64(i)
	case pq.Int64:
		i, _ := convert.ToInt64(v.Int64())
		return value.FromInt64(i)
	case pq.Float:
		f, _ := convert.ToFloat64(v.Float())
		return value.FromDouble(f)
	case pq.Double:
		f, _ := convert.ToFloat64(v.Double())
		return value.FromDouble(f)
	case pq.ByteArray, pq.FixedLenByteArray:
		return value.FromString(string(v.ByteArray()))
	default:
		return value.None
	}
}

func (s *source) Schema() []ingest.ColumnSpec { return s.cols }

func (s *source) Next() ([]ingest.Cell, bool, error) {
	for s.cur < len(s.readers) {
		n, err := s.readers[s.cur].ReadRows(s.buf[:])
		if n > 0 {
			row := s.buf[0]
			cells := make([]ingest.Cell, len(s.cols))
			for i := range s.cols {
				cells[i] = toCell(row[i])
			}
			return cells, true, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, false, fmt.Errorf("ingest/parquet: read row: %w", err)
		}
		s.cur++
	}
	return nil, false, nil
}

func (s *source) Close() error {
	var firstErr error
	for _, r := range s.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func partFiles(path string, recursive bool) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("ingest/parquet: stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var paths []string
	if recursive {
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(d.Name()) == ".parquet" {
				paths = append(paths, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("ingest/parquet: walk %s: %w", path, err)
		}
		sort.Strings(paths)
		return paths, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("ingest/parquet: read dir %s: %w", path, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".parquet" {
			continue
		}
		paths = append(paths, filepath.Join(path, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
