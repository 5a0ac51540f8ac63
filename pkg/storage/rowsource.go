package storage

import (
	"context"
	"math"
	"time"

	"github.com/vjranagit/rangeql/pkg/rangevector"
	"github.com/vjranagit/rangeql/pkg/types"
)

// RangeVectorSource adapts a Storage into the engine's execplan.RowSource
// collaborator, turning each matched series into a restartable
// RangeVector on the caller's step grid. It satisfies execplan.RowSource
// structurally without importing pkg/execplan, avoiding an import cycle.
type RangeVectorSource struct {
	Storage  Storage
	TenantID string
}

// NewRangeVectorSource builds a row source over an existing storage
// instance for a single tenant.
func NewRangeVectorSource(store Storage, tenantID string) *RangeVectorSource {
	if tenantID == "" {
		tenantID = "default"
	}
	return &RangeVectorSource{Storage: store, TenantID: tenantID}
}

// Select reads every series matching the given label matchers and
// resamples its stored samples onto rangeParams' step grid, holding the
// last-seen value within each step and carrying it forward to
// subsequent output timestamps.
func (s *RangeVectorSource) Select(ctx context.Context, dataset string, matchers map[string]string, rangeParams rangevector.OutputRange) ([]rangevector.RangeVector, rangevector.ResultSchema, error) {
	start := time.UnixMilli(rangeParams.StartMs)
	end := time.UnixMilli(rangeParams.EndMs)

	result, err := s.Storage.QueryMatchers(ctx, s.TenantID, matchers, start, end)
	if err != nil {
		return nil, rangevector.ResultSchema{}, err
	}

	rvs := make([]rangevector.RangeVector, 0, len(result.Series))
	for _, series := range result.Series {
		key := seriesKey(series.Metric)
		rows := resample(series.Samples, rangeParams)
		out := rangeParams
		rvs = append(rvs, rangevector.NewMemoryRangeVector(key, rows, &out))
	}

	return rvs, rangevector.ResultSchema{Columns: []rangevector.ColumnInfo{
		{Name: "timestamp", Type: rangevector.ColumnTimestamp},
		{Name: "value", Type: rangevector.ColumnDouble},
	}}, nil
}

// seriesKey canonicalizes a stored Metric into a RangeVectorKey, folding
// the metric name in as the conventional "__name__" label.
func seriesKey(m types.Metric) rangevector.RangeVectorKey {
	labels := make(map[string]string, len(m.Labels)+1)
	for k, v := range m.Labels {
		labels[k] = v
	}
	labels["__name__"] = m.Name
	return rangevector.NewRangeVectorKey(labels)
}

// resample walks a series' stored samples onto the fixed output grid,
// carrying the last value seen at or before each step timestamp forward
// and leaving steps with no prior sample as NaN.
func resample(samples []types.Sample, rangeParams rangevector.OutputRange) []rangevector.Row {
	n := rangeParams.NumSteps()
	if n <= 0 {
		return nil
	}

	rows := make([]rangevector.Row, n)
	idx := 0
	var lastValue float64
	haveValue := false

	for step := 0; step < n; step++ {
		ts := rangeParams.StartMs + int64(step)*rangeParams.StepMs
		cutoff := time.UnixMilli(ts)

		for idx < len(samples) && !samples[idx].Timestamp.After(cutoff) {
			lastValue = samples[idx].Value
			haveValue = true
			idx++
		}

		if haveValue {
			rows[step] = rangevector.NewTransientRow(ts, lastValue)
		} else {
			rows[step] = rangevector.NewTransientRow(ts, math.NaN())
		}
	}

	return rows
}
