// Package execplan implements the ExecPlan tree runtime (async task
// orchestration, transformer chain, limit enforcement) and the NonLeaf
// composer (child dispatch, schema unification, partial-result
// propagation), using this repo's own pkg/rangevector, pkg/aggregate and
// pkg/streamagg as the pipeline's data and algebra layers.
package execplan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vjranagit/rangeql/pkg/dispatcher"
	"github.com/vjranagit/rangeql/pkg/rangevector"
)

// defaultCompressThreshold is the container byte size above which
// SerializedRangeVector's builder zstd-compresses a container.
const defaultCompressThreshold = 4096

// ExecResult is what a plan's DoExecute returns: an eagerly available
// slice of range vectors plus their schema. Partial-result flags and
// accumulated child stats ride along so a NonLeaf's child-dispatch
// bookkeeping survives back up into the top-level QueryResult.
type ExecResult struct {
	RangeVectors         []rangevector.RangeVector
	Schema               rangevector.ResultSchema
	ResultCouldBePartial bool
	PartialResultsReason string
	AccumulatedStats     QueryStats
}

// Plan is the ExecPlan tree node contract: dataset, dispatcher,
// children, an ordered list of RangeVectorTransformers, doExecute, and
// enforceLimit.
type Plan interface {
	// ClassName names the plan node for metrics labels and printTree.
	ClassName() string
	// Args renders this node's own parameters for printTree; "" if none.
	Args() string
	Dataset() string
	Dispatcher() dispatcher.Dispatcher
	Children() []Plan
	Transformers() []RangeVectorTransformer
	EnforceLimit() bool
	// ParallelChildTasks reports whether children dispatch concurrently:
	// children.size when true, else 1, used to split long-range queries.
	ParallelChildTasks() bool
	DoExecute(ctx context.Context, session *QuerySession) (ExecResult, error)
}

// BasePlan implements the common, non-virtual parts of Plan; concrete
// leaves and NonLeaf embed it and supply ClassName/Args/DoExecute
// themselves.
type BasePlan struct {
	DatasetName      string
	Disp             dispatcher.Dispatcher
	ChildPlans       []Plan
	TransformerChain []RangeVectorTransformer
	DisableLimit     bool
	Sequential       bool
}

func (b *BasePlan) Dataset() string                        { return b.DatasetName }
func (b *BasePlan) Dispatcher() dispatcher.Dispatcher       { return b.Disp }
func (b *BasePlan) Children() []Plan                        { return b.ChildPlans }
func (b *BasePlan) Transformers() []RangeVectorTransformer  { return b.TransformerChain }
func (b *BasePlan) EnforceLimit() bool                      { return !b.DisableLimit }
func (b *BasePlan) ParallelChildTasks() bool                { return !b.Sequential }
func (b *BasePlan) Args() string                            { return "" }

// planAdapter adapts an execplan.Plan to dispatcher.Plan's type-erased
// Execute signature, so plans can be handed to a dispatcher.Dispatcher
// without pkg/dispatcher importing pkg/execplan (which itself imports
// pkg/dispatcher), the same small-consumer-interface pattern
// pkg/storage.Storage follows.
type planAdapter struct{ plan Plan }

func (a planAdapter) Execute(ctx context.Context, session interface{}) (interface{}, error) {
	qs, ok := session.(*QuerySession)
	if !ok {
		return nil, errors.New("execplan: invalid query session")
	}
	return Execute(ctx, a.plan, qs), nil
}

// AsDispatcherPlan adapts p for use with a dispatcher.Dispatcher.
func AsDispatcherPlan(p Plan) dispatcher.Plan { return planAdapter{plan: p} }

// Execute runs the execute(source, querySession) pipeline: step 1
// schedules DoExecute on the query scheduler with a timeout check, step
// 2 folds the transformer chain over the result and then materializes
// into serialized range vectors under the sample limit. Any error
// anywhere in the pipeline is captured into a QueryError with whatever
// stats were accumulated so far, so callers always receive a
// QueryResponse.
func Execute(ctx context.Context, plan Plan, session *QuerySession) (resp QueryResponse) {
	stats := QueryStats{}
	defer session.Metrics.TrackInFlight(session.Dataset)()
	defer func() {
		if r := recover(); r != nil {
			resp = &QueryError{ID: session.QueryID, QueryStats: stats, Cause: errors.Errorf("execplan: panic: %v", r)}
		}
	}()

	if err := session.CheckTimeout(); err != nil {
		return &QueryError{ID: session.QueryID, QueryStats: stats, Cause: err}
	}

	var execResult ExecResult
	start := time.Now()
	runErr := session.Scheduler.Submit(ctx, func(ctx context.Context) error {
		var err error
		execResult, err = plan.DoExecute(ctx, session)
		return err
	})
	session.Metrics.ObservePlanLatency(plan.ClassName(), plan.Dataset(), time.Since(start).Seconds())
	stats.Add(execResult.AccumulatedStats)
	if runErr != nil {
		return &QueryError{ID: session.QueryID, QueryStats: stats, Cause: runErr}
	}

	if err := session.CheckTimeout(); err != nil {
		return &QueryError{ID: session.QueryID, QueryStats: stats, Cause: err}
	}

	rvs, schema := execResult.RangeVectors, execResult.Schema
	for _, t := range plan.Transformers() {
		if schema.IsEmpty() && !t.CanHandleEmptySchemas() {
			continue
		}
		var err error
		rvs, schema, err = t.Apply(ctx, rvs, session, session.SampleLimit, schema, nil)
		if err != nil {
			return &QueryError{ID: session.QueryID, QueryStats: stats, Cause: err}
		}
	}

	if schema.IsEmpty() {
		return &QueryResult{
			ID:                   session.QueryID,
			Schema:               schema,
			QueryStats:           stats,
			ResultCouldBePartial: execResult.ResultCouldBePartial,
			PartialResultsReason: execResult.PartialResultsReason,
		}
	}

	builder, err := rangevector.NewContainerBuilder(defaultCompressThreshold)
	if err != nil {
		return &QueryError{ID: session.QueryID, QueryStats: stats, Cause: err}
	}
	serialized := make([]*rangevector.SerializedRangeVector, 0, len(rvs))
	var totalRows int64
	var keyBytes int64
	for _, rv := range rvs {
		srv, err := rangevector.NewSerializedRangeVector(rv, builder, schema, plan.ClassName())
		if err != nil {
			return &QueryError{ID: session.QueryID, QueryStats: stats, Cause: err}
		}
		if srv.NumRowsSerialized() == 0 {
			continue
		}
		totalRows += int64(srv.NumRowsSerialized())
		for _, l := range srv.Key().Labels() {
			keyBytes += int64(len(l.Name) + len(l.Value))
		}
		serialized = append(serialized, srv)
	}
	stats.NumRowsSerialized += totalRows
	stats.ResultBytes += builder.TotalBytes() + keyBytes

	if plan.EnforceLimit() && session.SampleLimit > 0 && totalRows > int64(session.SampleLimit) {
		return &QueryError{ID: session.QueryID, QueryStats: stats, Cause: &SampleLimitExceededError{NumRows: int(totalRows), Limit: session.SampleLimit}}
	}

	return &QueryResult{
		ID:                   session.QueryID,
		Schema:               schema,
		Result:               serialized,
		QueryStats:           stats,
		ResultCouldBePartial: execResult.ResultCouldBePartial,
		PartialResultsReason: execResult.PartialResultsReason,
	}
}

// PrintTree renders a human-readable plan tree: "E~ClassName(args) on
// dispatcher" for plan nodes, "T~TransformerName(args)" for
// transformers, indented by depth.
func PrintTree(p Plan, depth int) string {
	pad := strings.Repeat("  ", depth)
	var b strings.Builder
	fmt.Fprintf(&b, "%sE~%s(%s) on %s\n", pad, p.ClassName(), p.Args(), dispatcherName(p.Dispatcher()))
	for _, t := range p.Transformers() {
		fmt.Fprintf(&b, "%s  T~%s(%s)\n", pad, t.Name(), t.Args())
	}
	for _, c := range p.Children() {
		b.WriteString(PrintTree(c, depth+1))
	}
	return b.String()
}

func dispatcherName(d dispatcher.Dispatcher) string {
	switch d.(type) {
	case *dispatcher.LocalDispatcher:
		return "LocalDispatcher"
	case *dispatcher.RemoteDispatcher:
		return "RemoteDispatcher"
	default:
		return fmt.Sprintf("%T", d)
	}
}
