package aggregate

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/vjranagit/rangeql/pkg/rangevector"
)

// countValuesAggregator implements CountValues: map is identity, reduce
// groups by value equality per timestamp into (value -> count), present
// fans out one range vector per distinct value keyed by
// {label: formattedValue}. The intermediate row carries a
// semicolon-delimited list of "formattedValue:count" pairs in a single
// string column so map, reduce and present all share one schema and
// reduce can run hierarchically.
//
// Float formatting uses Go's shortest round-trippable form
// (strconv.FormatFloat with 'g', -1 precision). Negative zero is
// normalized to "0" so -0 and 0 are never treated as distinct group
// keys.
type countValuesAggregator struct {
	label string
}

// NewCountValues builds a CountValues aggregator grouping by label.
func NewCountValues(label string) RowAggregator {
	return &countValuesAggregator{label: label}
}

func (a *countValuesAggregator) Name() string { return "count_values" }

func (a *countValuesAggregator) NewRowToMapInto() rangevector.Row { return rangevector.NewRow(2) }

func (a *countValuesAggregator) Map(key rangevector.RangeVectorKey, row rangevector.Row, outRow rangevector.Row) rangevector.Row {
	outRow.SetLong(0, row.Timestamp())
	v := row.GetDouble(1)
	if math.IsNaN(v) {
		outRow.SetString(1, "")
		return outRow
	}
	outRow.SetString(1, encodeCountPairs(map[string]float64{formatCountValue(v): 1}))
	return outRow
}

func (a *countValuesAggregator) ReductionSchema() rangevector.ResultSchema {
	return rangevector.ResultSchema{Columns: []rangevector.ColumnInfo{timestampColumn(), stringColumn("values")}}
}

func (a *countValuesAggregator) NewAccumulator() Accumulator {
	return &countValuesAccumulator{counts: make(map[string]float64)}
}

func (a *countValuesAggregator) PresentationSchema() rangevector.ResultSchema {
	return rangevector.ResultSchema{Columns: []rangevector.ColumnInfo{timestampColumn(), doubleColumn("count")}}
}

// Present fans out one output range vector per distinct formatted value
// ever seen across the group's reduced rows, each keyed by
// {label: formattedValue}, with that value's count at matching
// timestamps and NaN elsewhere.
func (a *countValuesAggregator) Present(key rangevector.RangeVectorKey, rows []rangevector.Row, limit int, rangeParams rangevector.OutputRange) ([]rangevector.RangeVector, error) {
	byValue := make(map[string]map[int64]float64)
	values := make([]string, 0)

	for _, r := range rows {
		pairs := decodeCountPairs(r.GetString(1))
		for value, count := range pairs {
			if _, ok := byValue[value]; !ok {
				byValue[value] = make(map[int64]float64)
				values = append(values, value)
			}
			byValue[value][r.Timestamp()] = count
		}
	}
	sort.Strings(values)

	out := make([]rangevector.RangeVector, 0, len(values))
	for _, value := range values {
		byTs := byValue[value]
		presentRows := make([]rangevector.Row, len(rows))
		for i, r := range rows {
			ts := r.Timestamp()
			if c, ok := byTs[ts]; ok {
				presentRows[i] = rangevector.NewTransientRow(ts, c)
			} else {
				presentRows[i] = fillNaNRow(ts)
			}
		}
		outKey := key.WithLabel(a.label, value)
		out = append(out, rangevector.NewMemoryRangeVector(outKey, presentRows, &rangeParams))
	}
	return out, nil
}

// formatCountValue implements the float-formatting policy: Go's shortest
// round-trippable decimal form, with -0 normalized to 0 so the sign bit
// never splits one logical value into two groups.
func formatCountValue(v float64) string {
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func encodeCountPairs(pairs map[string]float64) string {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(pairs[k], 'g', -1, 64))
	}
	return b.String()
}

func decodeCountPairs(encoded string) map[string]float64 {
	out := make(map[string]float64)
	if encoded == "" {
		return out
	}
	for _, part := range strings.Split(encoded, ";") {
		idx := strings.LastIndexByte(part, ':')
		if idx < 0 {
			continue
		}
		value := part[:idx]
		count, err := strconv.ParseFloat(part[idx+1:], 64)
		if err != nil {
			continue
		}
		out[value] += count
	}
	return out
}

// countValuesAccumulator groups one timestamp's contributing rows by
// formatted-value equality, merging each incoming encoded pair list into
// a running value->count table.
type countValuesAccumulator struct {
	ts     int64
	counts map[string]float64
}

func (a *countValuesAccumulator) Reduce(row rangevector.Row) {
	a.ts = row.Timestamp()
	for value, count := range decodeCountPairs(row.GetString(1)) {
		a.counts[value] += count
	}
}

func (a *countValuesAccumulator) Row() rangevector.Row {
	out := rangevector.NewRow(2)
	out.SetLong(0, a.ts)
	out.SetString(1, encodeCountPairs(a.counts))
	return out
}
