package aggregate

import (
	"math"

	"github.com/vjranagit/rangeql/pkg/rangevector"
)

// avgAggregator carries an intermediate (mean, count); reduce combines
// with the weighted-mean formula mean = (mean1*n1 + mean2*n2)/(n1+n2),
// NaN-skipping either side.
type avgAggregator struct{}

func NewAvg() RowAggregator { return &avgAggregator{} }

func (a *avgAggregator) Name() string { return "avg" }

func (a *avgAggregator) NewRowToMapInto() rangevector.Row { return rangevector.NewRow(3) }

func (a *avgAggregator) Map(key rangevector.RangeVectorKey, row rangevector.Row, outRow rangevector.Row) rangevector.Row {
	v := row.GetDouble(1)
	outRow.SetLong(0, row.Timestamp())
	if math.IsNaN(v) {
		outRow.SetDouble(1, math.NaN())
		outRow.SetDouble(2, 0)
		return outRow
	}
	outRow.SetDouble(1, v)
	outRow.SetDouble(2, 1)
	return outRow
}

func (a *avgAggregator) ReductionSchema() rangevector.ResultSchema {
	return rangevector.ResultSchema{Columns: []rangevector.ColumnInfo{timestampColumn(), doubleColumn("mean"), doubleColumn("count")}}
}

func (a *avgAggregator) NewAccumulator() Accumulator {
	return &avgAccumulator{mean: math.NaN()}
}

func (a *avgAggregator) PresentationSchema() rangevector.ResultSchema {
	return rangevector.ResultSchema{Columns: []rangevector.ColumnInfo{timestampColumn(), doubleColumn("avg")}}
}

func (a *avgAggregator) Present(key rangevector.RangeVectorKey, rows []rangevector.Row, limit int, rangeParams rangevector.OutputRange) ([]rangevector.RangeVector, error) {
	out := make([]rangevector.Row, len(rows))
	for i, r := range rows {
		out[i] = rangevector.NewTransientRow(r.Timestamp(), r.GetDouble(1))
	}
	return []rangevector.RangeVector{rangevector.NewMemoryRangeVector(key, out, &rangeParams)}, nil
}

type avgAccumulator struct {
	ts    int64
	mean  float64
	count float64
}

func (a *avgAccumulator) Reduce(row rangevector.Row) {
	a.ts = row.Timestamp()
	mean2, n2 := row.GetDouble(1), row.GetDouble(2)
	if n2 == 0 || math.IsNaN(mean2) {
		return
	}
	if math.IsNaN(a.mean) || a.count == 0 {
		a.mean, a.count = mean2, n2
		return
	}
	total := a.count + n2
	a.mean = (a.mean*a.count + mean2*n2) / total
	a.count = total
}

func (a *avgAccumulator) Row() rangevector.Row {
	out := rangevector.NewRow(3)
	out.SetLong(0, a.ts)
	out.SetDouble(1, a.mean)
	out.SetDouble(2, a.count)
	return out
}
