package execplan

import (
	"context"
	"math"
	"sort"

	"github.com/vjranagit/rangeql/pkg/rangevector"
)

// RangeVectorTransformer is a post-doExecute pipeline stage: it
// receives (rvs, querySession, sampleLimit, schema, paramRVs) and
// returns a new range-vector stream plus a new schema.
type RangeVectorTransformer interface {
	Name() string
	// CanHandleEmptySchemas reports whether this transformer still runs
	// when the current schema is empty; false means it is skipped.
	CanHandleEmptySchemas() bool
	Apply(ctx context.Context, rvs []rangevector.RangeVector, session *QuerySession, sampleLimit int, schema rangevector.ResultSchema, paramRVs []ScalarRangeVector) ([]rangevector.RangeVector, rangevector.ResultSchema, error)
	// Args renders the transformer's parameters for printTree, as
	// "T~TransformerName(args)".
	Args() string
}

// ScalarRangeVector is the single-value-per-timestamp result of
// resolving a function-argument parameter sub-plan.
type ScalarRangeVector interface {
	rangevector.RangeVector
	ValueAt(ts int64) float64
}

// ScalarFixedDouble is a constant scalar parameter: the fallback used
// when dispatching a parameter sub-plan returns an empty result.
type ScalarFixedDouble struct {
	Value float64
}

// NewScalarFixedDouble builds a constant scalar parameter.
func NewScalarFixedDouble(v float64) *ScalarFixedDouble { return &ScalarFixedDouble{Value: v} }

func (s *ScalarFixedDouble) Key() rangevector.RangeVectorKey {
	return rangevector.NewRangeVectorKey(nil)
}
func (s *ScalarFixedDouble) Rows() rangevector.RowCursor        { return &fixedCursor{value: s.Value} }
func (s *ScalarFixedDouble) OutputRange() *rangevector.OutputRange { return nil }
func (s *ScalarFixedDouble) ValueAt(int64) float64              { return s.Value }

type fixedCursor struct {
	value float64
	done  bool
}

func (c *fixedCursor) Next() bool {
	if c.done {
		return false
	}
	c.done = true
	return true
}
func (c *fixedCursor) Row() rangevector.Row { return rangevector.NewTransientRow(0, c.value) }
func (c *fixedCursor) Err() error           { return nil }

// ScalarVectorPlan dispatches a nested plan and reduces its output to one
// value per timestamp, the way parameter sub-plans resolve to a single
// ScalarRangeVector.
type ScalarVectorPlan struct {
	Nested Plan
	byTs   map[int64]float64
}

// NewScalarVectorPlan wraps nested as a scalar parameter plan. Resolve
// must be called before ValueAt returns anything but NaN.
func NewScalarVectorPlan(nested Plan) *ScalarVectorPlan {
	return &ScalarVectorPlan{Nested: nested}
}

// Resolve executes the nested plan and caches the first value seen at
// each timestamp across its result range vectors. A scalar parameter
// plan is expected to produce a single series; if dispatch yields no
// rows the value at every timestamp falls back to ScalarFixedDouble(NaN).
func (s *ScalarVectorPlan) Resolve(ctx context.Context, session *QuerySession) (ScalarRangeVector, error) {
	resp := Execute(ctx, s.Nested, session)
	result, ok := resp.(*QueryResult)
	if !ok || len(result.Result) == 0 {
		return NewScalarFixedDouble(math.NaN()), nil
	}
	byTs := make(map[int64]float64)
	for _, srv := range result.Result {
		cur := srv.Rows()
		for cur.Next() {
			row := cur.Row()
			if _, seen := byTs[row.Timestamp()]; !seen {
				byTs[row.Timestamp()] = row.GetDouble(1)
			}
		}
		if cur.Err() != nil {
			return nil, cur.Err()
		}
	}
	s.byTs = byTs
	return s, nil
}

func (s *ScalarVectorPlan) Key() rangevector.RangeVectorKey {
	return rangevector.NewRangeVectorKey(nil)
}

func (s *ScalarVectorPlan) Rows() rangevector.RowCursor {
	rows := make([]rangevector.Row, 0, len(s.byTs))
	for ts, v := range s.byTs {
		rows = append(rows, rangevector.NewTransientRow(ts, v))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp() < rows[j].Timestamp() })
	return rangevector.NewMemoryRangeVector(s.Key(), rows, nil).Rows()
}

func (s *ScalarVectorPlan) OutputRange() *rangevector.OutputRange { return nil }

func (s *ScalarVectorPlan) ValueAt(ts int64) float64 {
	if v, ok := s.byTs[ts]; ok {
		return v
	}
	return math.NaN()
}
