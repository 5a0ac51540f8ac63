package aggregate

import (
	"math"

	"github.com/vjranagit/rangeql/pkg/rangevector"
)

// countAggregator increments per non-NaN value; if all inputs at t are
// NaN, it outputs NaN rather than 0.
type countAggregator struct{}

func NewCount() RowAggregator { return &countAggregator{} }

func (a *countAggregator) Name() string { return "count" }

func (a *countAggregator) NewRowToMapInto() rangevector.Row { return rangevector.NewRow(2) }

func (a *countAggregator) Map(key rangevector.RangeVectorKey, row rangevector.Row, outRow rangevector.Row) rangevector.Row {
	v := row.GetDouble(1)
	if math.IsNaN(v) {
		outRow.SetLong(0, row.Timestamp())
		outRow.SetDouble(1, math.NaN())
		return outRow
	}
	outRow.SetLong(0, row.Timestamp())
	outRow.SetDouble(1, 1)
	return outRow
}

func (a *countAggregator) ReductionSchema() rangevector.ResultSchema {
	return rangevector.ResultSchema{Columns: []rangevector.ColumnInfo{timestampColumn(), doubleColumn("count")}}
}

func (a *countAggregator) NewAccumulator() Accumulator {
	return &countAccumulator{}
}

func (a *countAggregator) PresentationSchema() rangevector.ResultSchema { return a.ReductionSchema() }

func (a *countAggregator) Present(key rangevector.RangeVectorKey, rows []rangevector.Row, limit int, rangeParams rangevector.OutputRange) ([]rangevector.RangeVector, error) {
	return []rangevector.RangeVector{rangevector.NewMemoryRangeVector(key, rows, &rangeParams)}, nil
}

type countAccumulator struct {
	ts   int64
	n    float64
	seen bool
}

func (a *countAccumulator) Reduce(row rangevector.Row) {
	a.ts = row.Timestamp()
	v := row.GetDouble(1)
	if math.IsNaN(v) {
		return
	}
	a.n += v
	a.seen = true
}

func (a *countAccumulator) Row() rangevector.Row {
	if !a.seen {
		return rangevector.NewTransientRow(a.ts, math.NaN())
	}
	return rangevector.NewTransientRow(a.ts, a.n)
}

// groupAggregator always emits 1.0 when at least one non-NaN value
// exists at t; NaN otherwise.
type groupAggregator struct{}

func NewGroup() RowAggregator { return &groupAggregator{} }

func (a *groupAggregator) Name() string { return "group" }

func (a *groupAggregator) NewRowToMapInto() rangevector.Row { return rangevector.NewRow(2) }

func (a *groupAggregator) Map(key rangevector.RangeVectorKey, row rangevector.Row, outRow rangevector.Row) rangevector.Row {
	outRow.SetLong(0, row.Timestamp())
	outRow.SetDouble(1, row.GetDouble(1))
	return outRow
}

func (a *groupAggregator) ReductionSchema() rangevector.ResultSchema {
	return rangevector.ResultSchema{Columns: []rangevector.ColumnInfo{timestampColumn(), doubleColumn("group")}}
}

func (a *groupAggregator) NewAccumulator() Accumulator { return &groupAccumulator{} }

func (a *groupAggregator) PresentationSchema() rangevector.ResultSchema { return a.ReductionSchema() }

func (a *groupAggregator) Present(key rangevector.RangeVectorKey, rows []rangevector.Row, limit int, rangeParams rangevector.OutputRange) ([]rangevector.RangeVector, error) {
	return []rangevector.RangeVector{rangevector.NewMemoryRangeVector(key, rows, &rangeParams)}, nil
}

type groupAccumulator struct {
	ts   int64
	seen bool
}

func (a *groupAccumulator) Reduce(row rangevector.Row) {
	a.ts = row.Timestamp()
	if !math.IsNaN(row.GetDouble(1)) {
		a.seen = true
	}
}

func (a *groupAccumulator) Row() rangevector.Row {
	if a.seen {
		return rangevector.NewTransientRow(a.ts, 1.0)
	}
	return rangevector.NewTransientRow(a.ts, math.NaN())
}
