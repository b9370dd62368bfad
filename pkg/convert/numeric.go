// Package convert provides the numeric coercion table ingest's parquet
// reader uses to map a raw column value onto seriesdb's value.Cell
// kinds (int32/int64 -> int64, float32/float64 -> double, spec.md §4.I).
package convert

// ToInt64 widens a parquet int32 or int64 reader value to seriesdb's int64
// cell representation. The conversion is total for these two widths, so it
// always reports ok; the bool return mirrors ToFloat64's shape so both sit
// behind the same call pattern at the ingest call site.
func ToInt64[T int32 | int64](v T) (int64, bool) {
	return int64(v), true
}

// ToFloat64 widens a parquet float32 or float64 reader value to seriesdb's
// double cell representation.
func ToFloat64[T float32 | float64](v T) (float64, bool) {
	return float64(v), true
}
