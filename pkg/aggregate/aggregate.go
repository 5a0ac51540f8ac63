// Package aggregate implements the row-aggregator family: a
// per-operator map/reduce/present algebra. Each operator is a small
// struct satisfying RowAggregator, dispatched by operator kind rather
// than by a class hierarchy.
package aggregate

import (
	"math"

	"github.com/vjranagit/rangeql/pkg/rangevector"
)

// Accumulator holds one group's, one timestamp's running aggregation
// state. Row returns its current intermediate representation so reduce
// can run again one layer up without re-deriving types, which is what
// makes map-then-reduce-per-shard equivalent to reduce-over-the-union.
type Accumulator interface {
	// Reduce folds one already-mapped intermediate row into this
	// accumulator.
	Reduce(row rangevector.Row)
	// Row returns the accumulator's current intermediate row.
	Row() rangevector.Row
}

// RowAggregator is the uniform contract every aggregation operator
// satisfies.
type RowAggregator interface {
	// Name identifies the operator kind, used in plan printing and
	// metrics labels.
	Name() string

	// NewRowToMapInto allocates (once per leaf scan) a mutable row the
	// map phase writes into repeatedly, avoiding per-row allocation.
	NewRowToMapInto() rangevector.Row

	// Map projects one raw sample row into the operator's intermediate
	// shape, writing into outRow and returning it. key is the input range
	// vector's own label set, needed by fan-out operators (topk,
	// bottomk, countValues) that embed series identity into the
	// intermediate row.
	Map(key rangevector.RangeVectorKey, row rangevector.Row, outRow rangevector.Row) rangevector.Row

	// ReductionSchema is the column layout of Map's output / reduce's
	// input.
	ReductionSchema() rangevector.ResultSchema

	// NewAccumulator allocates a fresh per-(group,timestamp) accumulator.
	NewAccumulator() Accumulator

	// PresentationSchema is the column layout of Present's output.
	PresentationSchema() rangevector.ResultSchema

	// Present turns one group's reduced intermediate rows (ascending by
	// timestamp, one per distinct timestamp seen) into the user-visible
	// output range vector(s). limit bounds fan-out operators (topk,
	// bottomk, countValues). Fan-out operators fill NaN only at the
	// timestamps present in rows; rangeParams is attached to the outputs
	// as their OutputRange and does not add grid points.
	Present(key rangevector.RangeVectorKey, rows []rangevector.Row, limit int, rangeParams rangevector.OutputRange) ([]rangevector.RangeVector, error)
}

// BadQueryError reports parameters out of range, e.g. k <= 0 or a
// quantile outside [0,1].
type BadQueryError struct {
	Reason string
}

func (e *BadQueryError) Error() string { return "bad query: " + e.Reason }

// column helpers shared by every operator's schema.

func doubleColumn(name string) rangevector.ColumnInfo {
	return rangevector.ColumnInfo{Name: name, Type: rangevector.ColumnDouble}
}

func timestampColumn() rangevector.ColumnInfo {
	return rangevector.ColumnInfo{Name: "timestamp", Type: rangevector.ColumnTimestamp}
}

func stringColumn(name string) rangevector.ColumnInfo {
	return rangevector.ColumnInfo{Name: name, Type: rangevector.ColumnString}
}

// combineSkippingNaN folds v into acc using combine, treating acc==NaN as
// "no value seen yet" and any NaN v as "skip", the NaN-skip discipline
// Sum/Min/Max require.
func combineSkippingNaN(acc, v float64, combine func(a, b float64) float64) float64 {
	if math.IsNaN(v) {
		return acc
	}
	if math.IsNaN(acc) {
		return v
	}
	return combine(acc, v)
}

// fillNaNRow builds a presentation row of (timestamp, NaN) for timestamps
// with no contributing accumulator, used by every fan-out presenter.
func fillNaNRow(ts int64) rangevector.Row {
	return rangevector.NewTransientRow(ts, math.NaN())
}
