package aggregate

import (
	"math"

	"github.com/vjranagit/rangeql/pkg/rangevector"
)

// varianceAggregator implements Stdvar/Stddev: intermediate
// (mean, m2, count) combined with the Welford/Chan parallel-variance
// formula, presented as either the variance or its square root.
type varianceAggregator struct {
	name      string
	presentAs func(variance float64) float64
}

func NewStdvar() RowAggregator {
	return &varianceAggregator{name: "stdvar", presentAs: func(v float64) float64 { return v }}
}

func NewStddev() RowAggregator {
	return &varianceAggregator{name: "stddev", presentAs: math.Sqrt}
}

func (a *varianceAggregator) Name() string { return a.name }

func (a *varianceAggregator) NewRowToMapInto() rangevector.Row { return rangevector.NewRow(4) }

func (a *varianceAggregator) Map(key rangevector.RangeVectorKey, row rangevector.Row, outRow rangevector.Row) rangevector.Row {
	v := row.GetDouble(1)
	outRow.SetLong(0, row.Timestamp())
	if math.IsNaN(v) {
		outRow.SetDouble(1, math.NaN())
		outRow.SetDouble(2, 0)
		outRow.SetDouble(3, 0)
		return outRow
	}
	outRow.SetDouble(1, v)
	outRow.SetDouble(2, 0)
	outRow.SetDouble(3, 1)
	return outRow
}

func (a *varianceAggregator) ReductionSchema() rangevector.ResultSchema {
	return rangevector.ResultSchema{Columns: []rangevector.ColumnInfo{
		timestampColumn(), doubleColumn("mean"), doubleColumn("m2"), doubleColumn("count"),
	}}
}

func (a *varianceAggregator) NewAccumulator() Accumulator {
	return &varianceAccumulator{mean: math.NaN()}
}

func (a *varianceAggregator) PresentationSchema() rangevector.ResultSchema {
	return rangevector.ResultSchema{Columns: []rangevector.ColumnInfo{timestampColumn(), doubleColumn(a.name)}}
}

func (a *varianceAggregator) Present(key rangevector.RangeVectorKey, rows []rangevector.Row, limit int, rangeParams rangevector.OutputRange) ([]rangevector.RangeVector, error) {
	out := make([]rangevector.Row, len(rows))
	for i, r := range rows {
		mean, m2, n := r.GetDouble(1), r.GetDouble(2), r.GetDouble(3)
		if math.IsNaN(mean) || n == 0 {
			out[i] = rangevector.NewTransientRow(r.Timestamp(), math.NaN())
			continue
		}
		out[i] = rangevector.NewTransientRow(r.Timestamp(), a.presentAs(m2/n))
	}
	return []rangevector.RangeVector{rangevector.NewMemoryRangeVector(key, out, &rangeParams)}, nil
}

type varianceAccumulator struct {
	ts    int64
	mean  float64
	m2    float64
	count float64
}

// Reduce folds another (mean, m2, count) triple into this one using the
// Chan et al. parallel combination formula for Welford's online variance:
// given two partitions A and B, n = nA+nB, delta = meanB-meanA,
// mean = meanA + delta*nB/n, M2 = M2A + M2B + delta^2*nA*nB/n.
func (a *varianceAccumulator) Reduce(row rangevector.Row) {
	a.ts = row.Timestamp()
	mean2, m2b, n2 := row.GetDouble(1), row.GetDouble(2), row.GetDouble(3)
	if n2 == 0 || math.IsNaN(mean2) {
		return
	}
	if math.IsNaN(a.mean) || a.count == 0 {
		a.mean, a.m2, a.count = mean2, m2b, n2
		return
	}
	n := a.count + n2
	delta := mean2 - a.mean
	a.mean = a.mean + delta*n2/n
	a.m2 = a.m2 + m2b + delta*delta*a.count*n2/n
	a.count = n
}

func (a *varianceAccumulator) Row() rangevector.Row {
	out := rangevector.NewRow(4)
	out.SetLong(0, a.ts)
	out.SetDouble(1, a.mean)
	out.SetDouble(2, a.m2)
	out.SetDouble(3, a.count)
	return out
}
