package execplan

import (
	"context"
	"fmt"

	"github.com/vjranagit/rangeql/pkg/aggregate"
	"github.com/vjranagit/rangeql/pkg/rangevector"
	"github.com/vjranagit/rangeql/pkg/streamagg"
)

// AggregateTransformer handles the case where a pipeline stage is
// itself a grouped aggregation applied to a single leaf with no NonLeaf
// wrapper: reduce (skipMapPhase=true, since the leaf already mapped)
// then present. Used when a query touches one shard and so never builds
// an AggregatePlan composer.
type AggregateTransformer struct {
	Agg         aggregate.RowAggregator
	Grouping    streamagg.GroupingFunc
	Parallelism int
	Limit       int
	RangeParams rangevector.OutputRange
}

func (t *AggregateTransformer) Name() string               { return "Aggregate" }
func (t *AggregateTransformer) CanHandleEmptySchemas() bool { return false }
func (t *AggregateTransformer) Args() string                { return fmt.Sprintf("agg=%s", t.Agg.Name()) }

func (t *AggregateTransformer) Apply(ctx context.Context, rvs []rangevector.RangeVector, session *QuerySession, sampleLimit int, schema rangevector.ResultSchema, paramRVs []ScalarRangeVector) ([]rangevector.RangeVector, rangevector.ResultSchema, error) {
	sagg := streamagg.New(t.Agg, t.Grouping, t.Parallelism)
	reduced, err := sagg.MapReduce(ctx, true, rvs)
	if err != nil {
		return nil, rangevector.ResultSchema{}, err
	}
	presented, err := sagg.Present(ctx, reduced, t.Limit, t.RangeParams)
	if err != nil {
		return nil, rangevector.ResultSchema{}, err
	}
	return presented, t.Agg.PresentationSchema(), nil
}
