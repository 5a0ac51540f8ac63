package aggregate

import (
	"math"

	"github.com/vjranagit/rangeql/pkg/rangevector"
)

// foldAggregator implements Sum, Min and Max: all three share the same
// shape (one running double, NaN-skip discipline, identity NaN), differing
// only in the combining function. Grafana Loki's VectorAggregation node
// and VictoriaMetrics' block_result aggregations use the same
// operation-enum-dispatches-to-a-shared-combine idiom for sum/min/max/avg.
// Sum additionally branches on histogram-typed rows, bucket-summing via
// rangevector.AddHistogram instead of folding doubles; Min/Max stay
// double-only since "smallest"/"largest" bucket set isn't well-defined.
type foldAggregator struct {
	name       string
	combine    func(a, b float64) float64
	histograms bool
}

// NewSum accumulates a running double s, init NaN: if v is NaN, keep s;
// else if s is NaN, set s=v; else s+=v. Histogram-typed input is summed
// bucket-wise instead.
func NewSum() RowAggregator {
	return &foldAggregator{name: "sum", combine: func(a, b float64) float64 { return a + b }, histograms: true}
}

// NewMin is the same fold with math.Min as the combining function.
func NewMin() RowAggregator {
	return &foldAggregator{name: "min", combine: math.Min}
}

// NewMax is the same fold with math.Max as the combining function.
func NewMax() RowAggregator {
	return &foldAggregator{name: "max", combine: math.Max}
}

func (a *foldAggregator) Name() string { return a.name }

func (a *foldAggregator) NewRowToMapInto() rangevector.Row { return rangevector.NewRow(2) }

func (a *foldAggregator) Map(key rangevector.RangeVectorKey, row rangevector.Row, outRow rangevector.Row) rangevector.Row {
	outRow.SetLong(0, row.Timestamp())
	if a.histograms && row.Cells[1].Type == rangevector.ColumnHistogram {
		outRow.SetHistogram(1, row.GetHistogram(1))
		return outRow
	}
	outRow.SetDouble(1, row.GetDouble(1))
	return outRow
}

func (a *foldAggregator) ReductionSchema() rangevector.ResultSchema {
	return rangevector.ResultSchema{Columns: []rangevector.ColumnInfo{timestampColumn(), doubleColumn(a.name)}}
}

func (a *foldAggregator) NewAccumulator() Accumulator {
	return &foldAccumulator{combine: a.combine, value: math.NaN(), histograms: a.histograms}
}

func (a *foldAggregator) PresentationSchema() rangevector.ResultSchema {
	return a.ReductionSchema()
}

func (a *foldAggregator) Present(key rangevector.RangeVectorKey, rows []rangevector.Row, limit int, rangeParams rangevector.OutputRange) ([]rangevector.RangeVector, error) {
	return []rangevector.RangeVector{rangevector.NewMemoryRangeVector(key, rows, &rangeParams)}, nil
}

type foldAccumulator struct {
	combine    func(a, b float64) float64
	histograms bool
	ts         int64
	value      float64
	hist       rangevector.Histogram
	sawHist    bool
}

func (a *foldAccumulator) Reduce(row rangevector.Row) {
	a.ts = row.Timestamp()
	if a.histograms && row.Cells[1].Type == rangevector.ColumnHistogram {
		h := row.GetHistogram(1)
		if !a.sawHist {
			a.hist = h
			a.sawHist = true
		} else {
			a.hist = rangevector.AddHistogram(a.hist, h)
		}
		return
	}
	a.value = combineSkippingNaN(a.value, row.GetDouble(1), a.combine)
}

func (a *foldAccumulator) Row() rangevector.Row {
	if a.sawHist {
		r := rangevector.NewRow(2)
		r.SetLong(0, a.ts)
		r.SetHistogram(1, a.hist)
		return r
	}
	return rangevector.NewTransientRow(a.ts, a.value)
}
