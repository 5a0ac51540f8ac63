package execplan

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/vjranagit/rangeql/pkg/rangevector"
)

// ComposeFunc is the subclass hook that turns dispatched child
// responses plus a reduced schema into this node's own merged
// range-vector stream.
type ComposeFunc func(ctx context.Context, childResults []*QueryResult, firstSchema rangevector.ResultSchema, session *QuerySession) (ExecResult, error)

// NonLeaf provides the composer boilerplate every non-leaf plan node
// shares: dispatch each child (parallel or sequential per ParallelChildTasks),
// tag by positional index, reduce schemas with SchemaReducer (default
// DefaultSchemaReducer), propagate partial-result flags and accumulated
// child stats upward, then call Compose to merge the surviving child
// results into this node's own output.
type NonLeaf struct {
	BasePlan
	SchemaReducer rangevector.SchemaReducer
	Compose       ComposeFunc
}

// DoExecute dispatches children, reduces their schemas, and composes
// their surviving results into this node's output.
func (n *NonLeaf) DoExecute(ctx context.Context, session *QuerySession) (ExecResult, error) {
	if err := session.CheckTimeout(); err != nil {
		return ExecResult{}, err
	}

	children := n.Children()
	responses := make([]*QueryResult, len(children))

	dispatchOne := func(dispatchCtx context.Context, i int) error {
		child := children[i]
		raw, err := child.Dispatcher().Dispatch(dispatchCtx, AsDispatcherPlan(child), session)
		if err != nil {
			return errors.Wrapf(err, "dispatch child %d", i)
		}
		resp, ok := raw.(QueryResponse)
		if !ok {
			return errors.Errorf("dispatch child %d: unexpected response type %T", i, raw)
		}
		if qerr, ok := resp.(*QueryError); ok {
			// A failed child is surfaced immediately but sibling
			// in-flight tasks may still complete; their stats are still
			// accumulated by the caller via responses[i] staying nil
			// here and this error short-circuiting dispatch.
			return qerr
		}
		responses[i] = resp.(*QueryResult)
		return nil
	}

	if n.ParallelChildTasks() && len(children) > 1 {
		// A plain errgroup.Group, not errgroup.WithContext: the derived
		// context from WithContext is cancelled the instant any goroutine
		// returns an error, which would abort still-running siblings'
		// DoExecute mid-flight. Every dispatchOne gets the original ctx
		// instead, so a failing child can only surface its own error; it
		// never cancels a sibling's work.
		var eg errgroup.Group
		for i := range children {
			i := i
			eg.Go(func() error { return dispatchOne(ctx, i) })
		}
		if err := eg.Wait(); err != nil {
			return ExecResult{AccumulatedStats: accumulateStats(responses)}, err
		}
	} else {
		for i := range children {
			if err := dispatchOne(ctx, i); err != nil {
				return ExecResult{AccumulatedStats: accumulateStats(responses)}, err
			}
		}
	}

	stats := accumulateStats(responses)
	var partial bool
	var partialReason string
	schemas := make([]rangevector.ResultSchema, 0, len(responses))
	surviving := make([]*QueryResult, 0, len(responses))
	for _, r := range responses {
		if r == nil {
			continue
		}
		if r.ResultCouldBePartial {
			partial = true
			if partialReason == "" {
				partialReason = r.PartialResultsReason
			}
		}
		if r.Schema.IsEmpty() {
			continue
		}
		schemas = append(schemas, r.Schema)
		surviving = append(surviving, r)
	}

	reducer := n.SchemaReducer
	if reducer == nil {
		reducer = rangevector.DefaultSchemaReducer
	}
	firstSchema, err := rangevector.ReduceSchemasWith(reducer, schemas...)
	if err != nil {
		return ExecResult{AccumulatedStats: stats}, err
	}

	result, err := n.Compose(ctx, surviving, firstSchema, session)
	if err != nil {
		return ExecResult{AccumulatedStats: stats}, err
	}
	result.ResultCouldBePartial = result.ResultCouldBePartial || partial
	if result.PartialResultsReason == "" {
		result.PartialResultsReason = partialReason
	}
	result.AccumulatedStats.Add(stats)
	return result, nil
}

// accumulateStats folds every already-dispatched child's QueryStats into
// one total, skipping slots left nil by a child that never completed.
// Called both on the success path and when a child error short-circuits
// dispatch, so a sibling's work is never discarded from the stats a
// QueryError eventually carries.
func accumulateStats(responses []*QueryResult) QueryStats {
	var stats QueryStats
	for _, r := range responses {
		if r == nil {
			continue
		}
		stats.Add(r.QueryStats)
	}
	return stats
}
