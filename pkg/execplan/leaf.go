package execplan

import (
	"context"
	"fmt"

	"github.com/vjranagit/rangeql/pkg/aggregate"
	"github.com/vjranagit/rangeql/pkg/dispatcher"
	"github.com/vjranagit/rangeql/pkg/rangevector"
)

// RowSource is the leaf-side collaborator a query plan reads matching
// range vectors from. pkg/storage.RangeVectorSource is the production
// implementation over pkg/storage.Storage's query path.
type RowSource interface {
	Select(ctx context.Context, dataset string, matchers map[string]string, rangeParams rangevector.OutputRange) ([]rangevector.RangeVector, rangevector.ResultSchema, error)
}

// SelectRaw is the leaf that reads matching range vectors straight from
// a RowSource and performs no aggregation.
type SelectRaw struct {
	BasePlan
	Source      RowSource
	Matchers    map[string]string
	RangeParams rangevector.OutputRange
}

// NewSelectRaw builds a raw-scan leaf plan.
func NewSelectRaw(dataset string, disp dispatcher.Dispatcher, source RowSource, matchers map[string]string, rangeParams rangevector.OutputRange) *SelectRaw {
	return &SelectRaw{
		BasePlan:    BasePlan{DatasetName: dataset, Disp: disp},
		Source:      source,
		Matchers:    matchers,
		RangeParams: rangeParams,
	}
}

func (p *SelectRaw) ClassName() string { return "SelectRaw" }
func (p *SelectRaw) Args() string      { return fmt.Sprintf("matchers=%v", p.Matchers) }

func (p *SelectRaw) DoExecute(ctx context.Context, session *QuerySession) (ExecResult, error) {
	if err := session.CheckTimeout(); err != nil {
		return ExecResult{}, err
	}
	rvs, schema, err := p.Source.Select(ctx, p.Dataset(), p.Matchers, p.RangeParams)
	if err != nil {
		return ExecResult{}, err
	}
	return ExecResult{RangeVectors: rvs, Schema: schema}, nil
}

// SelectWithAggregate reads raw rows and immediately runs the
// aggregator's map phase on the leaf, emitting already mapped
// intermediate rows for a downstream AggregatePlan's Compose (or an
// AggregateTransformer) to reduce with skipMapPhase=true.
type SelectWithAggregate struct {
	BasePlan
	Source      RowSource
	Matchers    map[string]string
	RangeParams rangevector.OutputRange
	Agg         aggregate.RowAggregator
}

// NewSelectWithAggregate builds a leaf that scans and maps in one step.
func NewSelectWithAggregate(dataset string, disp dispatcher.Dispatcher, source RowSource, matchers map[string]string, rangeParams rangevector.OutputRange, agg aggregate.RowAggregator) *SelectWithAggregate {
	return &SelectWithAggregate{
		BasePlan:    BasePlan{DatasetName: dataset, Disp: disp},
		Source:      source,
		Matchers:    matchers,
		RangeParams: rangeParams,
		Agg:         agg,
	}
}

func (p *SelectWithAggregate) ClassName() string { return "SelectWithAggregate" }
func (p *SelectWithAggregate) Args() string {
	return fmt.Sprintf("agg=%s matchers=%v", p.Agg.Name(), p.Matchers)
}

func (p *SelectWithAggregate) DoExecute(ctx context.Context, session *QuerySession) (ExecResult, error) {
	if err := session.CheckTimeout(); err != nil {
		return ExecResult{}, err
	}
	rvs, _, err := p.Source.Select(ctx, p.Dataset(), p.Matchers, p.RangeParams)
	if err != nil {
		return ExecResult{}, err
	}

	mapInto := p.Agg.NewRowToMapInto()
	mapped := make([]rangevector.RangeVector, len(rvs))
	for i, rv := range rvs {
		rows, err := rangevector.Materialize(rv)
		if err != nil {
			return ExecResult{}, err
		}
		out := make([]rangevector.Row, len(rows))
		for j, row := range rows {
			out[j] = p.Agg.Map(rv.Key(), row, mapInto).Clone()
		}
		mapped[i] = rangevector.NewMemoryRangeVector(rv.Key(), out, rv.OutputRange())
	}
	return ExecResult{RangeVectors: mapped, Schema: p.Agg.ReductionSchema()}, nil
}
