package execplan

import (
	"context"
	"fmt"

	"github.com/vjranagit/rangeql/pkg/aggregate"
	"github.com/vjranagit/rangeql/pkg/dispatcher"
	"github.com/vjranagit/rangeql/pkg/rangevector"
	"github.com/vjranagit/rangeql/pkg/streamagg"
)

// AggregatePlan is the NonLeaf whose compose flat-maps child range
// vectors into a RangeVectorAggregator reduce phase, skipping the map
// phase since its children are typically SelectWithAggregate leaves
// that already ran it. This is what makes map-then-reduce-per-shard
// equivalent to reduce-over-the-union: the reduce phase here is the
// same commutative, associative fold each leaf already partially ran.
type AggregatePlan struct {
	NonLeaf
	Agg         aggregate.RowAggregator
	Grouping    streamagg.GroupingFunc
	Parallelism int
	Limit       int
	RangeParams rangevector.OutputRange
}

// NewAggregatePlan builds an AggregatePlan over children (typically
// SelectWithAggregate leaves for the same Agg). parallelChildTasks
// controls whether children dispatch concurrently.
func NewAggregatePlan(dataset string, disp dispatcher.Dispatcher, children []Plan, agg aggregate.RowAggregator, grouping streamagg.GroupingFunc, parallelism, limit int, rangeParams rangevector.OutputRange, parallelChildTasks bool) *AggregatePlan {
	p := &AggregatePlan{
		Agg:         agg,
		Grouping:    grouping,
		Parallelism: parallelism,
		Limit:       limit,
		RangeParams: rangeParams,
	}
	p.NonLeaf = NonLeaf{
		BasePlan: BasePlan{
			DatasetName: dataset,
			Disp:        disp,
			ChildPlans:  children,
			Sequential:  !parallelChildTasks,
		},
	}
	p.NonLeaf.Compose = p.compose
	return p
}

func (p *AggregatePlan) ClassName() string { return "AggregatePlan" }
func (p *AggregatePlan) Args() string      { return fmt.Sprintf("agg=%s", p.Agg.Name()) }

// compose flat-maps every surviving child's serialized range vectors
// into one reduce-then-present
// pass, skipping the map phase since each SelectWithAggregate leaf child
// already ran it.
func (p *AggregatePlan) compose(ctx context.Context, childResults []*QueryResult, firstSchema rangevector.ResultSchema, session *QuerySession) (ExecResult, error) {
	var childRVs []rangevector.RangeVector
	for _, r := range childResults {
		for _, srv := range r.Result {
			childRVs = append(childRVs, srv)
		}
	}
	if len(childRVs) == 0 {
		return ExecResult{Schema: rangevector.EmptySchema()}, nil
	}

	sagg := streamagg.New(p.Agg, p.Grouping, p.Parallelism)
	reduced, err := sagg.MapReduce(ctx, true, childRVs)
	if err != nil {
		return ExecResult{}, err
	}

	presented, err := sagg.Present(ctx, reduced, p.Limit, p.RangeParams)
	if err != nil {
		return ExecResult{}, err
	}

	return ExecResult{RangeVectors: presented, Schema: p.Agg.PresentationSchema()}, nil
}
