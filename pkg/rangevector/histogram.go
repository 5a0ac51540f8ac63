package rangevector

import "math"

// Histogram is a schema-tagged bucket set: (bucketSchemaID, values[]),
// added bucket-wise when schemas match. The real bucket-boundary semantics
// (exponential schema, custom bucket bounds) live in the column store or
// index this package treats as an external collaborator; only the
// arithmetic needed by the aggregator algebra is implemented here.
type Histogram struct {
	SchemaID int32
	Values   []float64
}

// SameSchema reports whether two histograms can be added bucket-wise.
func (h Histogram) SameSchema(o Histogram) bool {
	return h.SchemaID == o.SchemaID && len(h.Values) == len(o.Values)
}

// AllNaN returns a histogram of the same shape as h with every bucket
// value set to NaN, the result produced when two histograms with
// mismatched bucket schemas are summed, rather than failing the query.
func (h Histogram) AllNaN() Histogram {
	values := make([]float64, len(h.Values))
	for i := range values {
		values[i] = math.NaN()
	}
	return Histogram{SchemaID: h.SchemaID, Values: values}
}

// AddHistogram returns the bucket-wise sum of a and b. If their schemas
// don't match (e.g. differing bucket counts), the result carries a's
// shape with every bucket set to NaN.
func AddHistogram(a, b Histogram) Histogram {
	if !a.SameSchema(b) {
		return a.AllNaN()
	}
	out := Histogram{SchemaID: a.SchemaID, Values: make([]float64, len(a.Values))}
	for i := range out.Values {
		av, bv := a.Values[i], b.Values[i]
		switch {
		case math.IsNaN(av):
			out.Values[i] = bv
		case math.IsNaN(bv):
			out.Values[i] = av
		default:
			out.Values[i] = av + bv
		}
	}
	return out
}

// IsAllNaN reports whether every bucket of h is NaN, the all-inputs-NaN
// case aggregators must propagate rather than silently treating as zero.
func (h Histogram) IsAllNaN() bool {
	if len(h.Values) == 0 {
		return true
	}
	for _, v := range h.Values {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}
