package aggregate

import (
	"math"

	"github.com/vjranagit/rangeql/pkg/aggregate/tdigest"
	"github.com/vjranagit/rangeql/pkg/rangevector"
)

// tdigestCompression is the digest size bound used for bounded
// compression.
const tdigestCompression = 100

// quantileAggregator: map adds each raw value to a fresh one-sample
// t-digest, reduce merges digests, present queries digest.Quantile(q).
type quantileAggregator struct {
	q float64
}

// NewQuantile builds a quantile aggregator. q must be in [0,1];
// anything else is a BadQueryError.
func NewQuantile(q float64) (RowAggregator, error) {
	if q < 0 || q > 1 {
		return nil, &BadQueryError{Reason: "quantile: q must be in [0,1]"}
	}
	return &quantileAggregator{q: q}, nil
}

func (a *quantileAggregator) Name() string { return "quantile" }

func (a *quantileAggregator) NewRowToMapInto() rangevector.Row { return rangevector.NewRow(2) }

func (a *quantileAggregator) Map(key rangevector.RangeVectorKey, row rangevector.Row, outRow rangevector.Row) rangevector.Row {
	v := row.GetDouble(1)
	outRow.SetLong(0, row.Timestamp())
	if math.IsNaN(v) {
		outRow.SetString(1, "")
		return outRow
	}
	d := tdigest.New(tdigestCompression)
	d.Add(v, 1)
	outRow.SetString(1, d.Marshal())
	return outRow
}

func (a *quantileAggregator) ReductionSchema() rangevector.ResultSchema {
	return rangevector.ResultSchema{Columns: []rangevector.ColumnInfo{timestampColumn(), stringColumn("digest")}}
}

func (a *quantileAggregator) NewAccumulator() Accumulator {
	return &quantileAccumulator{}
}

func (a *quantileAggregator) PresentationSchema() rangevector.ResultSchema {
	return rangevector.ResultSchema{Columns: []rangevector.ColumnInfo{timestampColumn(), doubleColumn("quantile")}}
}

func (a *quantileAggregator) Present(key rangevector.RangeVectorKey, rows []rangevector.Row, limit int, rangeParams rangevector.OutputRange) ([]rangevector.RangeVector, error) {
	out := make([]rangevector.Row, len(rows))
	for i, r := range rows {
		s := r.GetString(1)
		if s == "" {
			out[i] = fillNaNRow(r.Timestamp())
			continue
		}
		d := tdigest.Unmarshal(s)
		out[i] = rangevector.NewTransientRow(r.Timestamp(), d.Quantile(a.q))
	}
	return []rangevector.RangeVector{rangevector.NewMemoryRangeVector(key, out, &rangeParams)}, nil
}

type quantileAccumulator struct {
	ts     int64
	digest *tdigest.TDigest
	seen   bool
}

func (a *quantileAccumulator) Reduce(row rangevector.Row) {
	a.ts = row.Timestamp()
	s := row.GetString(1)
	if s == "" {
		return
	}
	next := tdigest.Unmarshal(s)
	if a.digest == nil {
		a.digest = next
	} else {
		a.digest.Merge(next)
	}
	a.seen = true
}

func (a *quantileAccumulator) Row() rangevector.Row {
	out := rangevector.NewRow(2)
	out.SetLong(0, a.ts)
	if !a.seen {
		out.SetString(1, "")
		return out
	}
	out.SetString(1, a.digest.Marshal())
	return out
}
