// Package streamagg implements RangeVectorAggregator: the streaming
// two-phase grouped aggregation that sits between the row aggregator
// algebra (pkg/aggregate) and the exec-plan runtime (pkg/execplan). Map
// runs per input range vector, optionally in parallel; reduce runs per
// group under a per-group mutex.
package streamagg

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/vjranagit/rangeql/pkg/aggregate"
	"github.com/vjranagit/rangeql/pkg/rangevector"
)

// GroupingFunc computes an input range vector's output group key.
type GroupingFunc func(rv rangevector.RangeVector) rangevector.RangeVectorKey

// SameKeyGrouping groups every input range vector into a single output
// group under its own key, the degenerate grouping used when the query
// has no `by`/`without` clause and all series collapse to one result.
func SameKeyGrouping(key rangevector.RangeVectorKey) GroupingFunc {
	return func(rangevector.RangeVector) rangevector.RangeVectorKey { return key }
}

// RangeVectorAggregator runs one operator's map/reduce/present pipeline
// over a set of input range vectors.
type RangeVectorAggregator struct {
	Agg         aggregate.RowAggregator
	Grouping    GroupingFunc
	Parallelism int
}

// New builds a RangeVectorAggregator. parallelism <= 0 is treated as 1
// (the map phase runs sequentially).
func New(agg aggregate.RowAggregator, grouping GroupingFunc, parallelism int) *RangeVectorAggregator {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &RangeVectorAggregator{Agg: agg, Grouping: grouping, Parallelism: parallelism}
}

// groupState is one group's running accumulator table, keyed by
// timestamp, guarded by its own mutex so unrelated groups' reduce calls
// never contend: accumulators are partitioned by group key under
// per-key exclusion.
type groupState struct {
	mu    sync.Mutex
	byTs  map[int64]aggregate.Accumulator
	order []int64
}

func (g *groupState) reduceRow(agg aggregate.RowAggregator, row rangevector.Row) {
	ts := row.Timestamp()
	g.mu.Lock()
	defer g.mu.Unlock()
	acc, ok := g.byTs[ts]
	if !ok {
		acc = agg.NewAccumulator()
		g.byTs[ts] = acc
		g.order = append(g.order, ts)
	}
	acc.Reduce(row)
}

// MapReduce runs the map then reduce phase. When skipMapPhase is true
// the input rows are already intermediate (the NonLeaf composer case,
// where leaves already ran the map phase) and are fed directly to
// reduce; otherwise each row is projected through agg.Map first. The
// per-range-vector map loop runs on a bounded errgroup pool sized by
// Parallelism.
func (r *RangeVectorAggregator) MapReduce(ctx context.Context, skipMapPhase bool, src []rangevector.RangeVector) ([]rangevector.RangeVector, error) {
	groups := make(map[uint64]*groupState)
	keys := make(map[uint64]rangevector.RangeVectorKey)
	var groupsMu sync.Mutex

	groupFor := func(key rangevector.RangeVectorKey) *groupState {
		h := key.Hash()
		groupsMu.Lock()
		defer groupsMu.Unlock()
		g, ok := groups[h]
		if !ok {
			g = &groupState{byTs: make(map[int64]aggregate.Accumulator)}
			groups[h] = g
			keys[h] = key
		}
		return g
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.Parallelism)

	for _, rv := range src {
		rv := rv
		eg.Go(func() error {
			inputKey := rv.Key()
			group := groupFor(r.Grouping(rv))
			cursor := rv.Rows()
			mapInto := r.Agg.NewRowToMapInto()
			for cursor.Next() {
				select {
				case <-egCtx.Done():
					return egCtx.Err()
				default:
				}
				row := cursor.Row()
				if !skipMapPhase {
					row = r.Agg.Map(inputKey, row, mapInto)
				}
				group.reduceRow(r.Agg, row)
			}
			return cursor.Err()
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, errors.Wrap(err, "streamagg: map-reduce")
	}

	out := make([]rangevector.RangeVector, 0, len(groups))
	for h, group := range groups {
		sort.Slice(group.order, func(i, j int) bool { return group.order[i] < group.order[j] })
		rows := make([]rangevector.Row, len(group.order))
		for i, ts := range group.order {
			rows[i] = group.byTs[ts].Row()
		}
		out = append(out, rangevector.NewMemoryRangeVector(keys[h], rows, nil))
	}
	return out, nil
}

// Present runs each reduced group's intermediate rows through the
// aggregator's own Present, which may fan out into several output range
// vectors (topK, bottomK, countValues).
func (r *RangeVectorAggregator) Present(ctx context.Context, reduced []rangevector.RangeVector, limit int, rangeParams rangevector.OutputRange) ([]rangevector.RangeVector, error) {
	out := make([]rangevector.RangeVector, 0, len(reduced))
	for _, rv := range reduced {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		rows, err := rangevector.Materialize(rv)
		if err != nil {
			return nil, errors.Wrap(err, "streamagg: present")
		}
		presented, err := r.Agg.Present(rv.Key(), rows, limit, rangeParams)
		if err != nil {
			return nil, err
		}
		out = append(out, presented...)
	}
	return out, nil
}
