package aggregate

import (
	"container/heap"
	"math"

	"github.com/vjranagit/rangeql/pkg/rangevector"
)

// topKAggregator implements TopK/BottomK: a 2k+1-column intermediate
// row (timestamp, then k (value, labelString) pairs), unfilled slots
// carrying a sentinel (-MaxDouble for topK, +MaxDouble for bottomK) so
// reduce's k-merge never confuses "empty slot" with a real value. The
// k-merge itself runs on container/heap: a bounded min-heap for topK
// selection, max-heap for bottomK.
type topKAggregator struct {
	name   string
	k      int
	bottom bool
}

// NewTopK builds a topk aggregator. k must be a positive integer;
// k<=0 is a BadQueryError.
func NewTopK(k int) (RowAggregator, error) {
	if k <= 0 {
		return nil, &BadQueryError{Reason: "topk: k must be positive"}
	}
	return &topKAggregator{name: "topk", k: k, bottom: false}, nil
}

// NewBottomK builds a bottomk aggregator.
func NewBottomK(k int) (RowAggregator, error) {
	if k <= 0 {
		return nil, &BadQueryError{Reason: "bottomk: k must be positive"}
	}
	return &topKAggregator{name: "bottomk", k: k, bottom: true}, nil
}

func (a *topKAggregator) Name() string { return a.name }

func (a *topKAggregator) sentinel() float64 {
	if a.bottom {
		return math.MaxFloat64
	}
	return -math.MaxFloat64
}

func (a *topKAggregator) NewRowToMapInto() rangevector.Row {
	return rangevector.NewRow(1 + 2*a.k)
}

// Map places the input sample into slot 0 and fills every other slot with
// the sentinel; reduce's k-merge folds these one-slot rows together.
func (a *topKAggregator) Map(key rangevector.RangeVectorKey, row rangevector.Row, outRow rangevector.Row) rangevector.Row {
	outRow.SetLong(0, row.Timestamp())
	v := row.GetDouble(1)
	label := seriesLabelString(key)
	if math.IsNaN(v) {
		for i := 0; i < a.k; i++ {
			outRow.SetDouble(1+2*i, a.sentinel())
			outRow.SetString(2+2*i, "")
		}
		return outRow
	}
	outRow.SetDouble(1, v)
	outRow.SetString(2, label)
	for i := 1; i < a.k; i++ {
		outRow.SetDouble(1+2*i, a.sentinel())
		outRow.SetString(2+2*i, "")
	}
	return outRow
}

func (a *topKAggregator) ReductionSchema() rangevector.ResultSchema {
	cols := make([]rangevector.ColumnInfo, 0, 1+2*a.k)
	cols = append(cols, timestampColumn())
	for i := 0; i < a.k; i++ {
		cols = append(cols, doubleColumn("value"), stringColumn("label"))
	}
	return rangevector.ResultSchema{Columns: cols}
}

func (a *topKAggregator) NewAccumulator() Accumulator {
	return &topKAccumulator{k: a.k, bottom: a.bottom}
}

func (a *topKAggregator) PresentationSchema() rangevector.ResultSchema {
	return rangevector.ResultSchema{Columns: []rangevector.ColumnInfo{timestampColumn(), doubleColumn(a.name)}}
}

// Present fans the group's k-slotted intermediate rows out into one
// output range vector per label that ever occupied a slot (at most k per
// timestamp, but possibly more than k in total), filling timestamps where
// that label was not selected with NaN.
func (a *topKAggregator) Present(key rangevector.RangeVectorKey, rows []rangevector.Row, limit int, rangeParams rangevector.OutputRange) ([]rangevector.RangeVector, error) {
	k := a.k
	if limit > 0 && limit < k {
		k = limit
	}

	type slotValue struct {
		ts    int64
		value float64
	}
	perLabel := make(map[string][]slotValue)
	order := make([]string, 0)

	for _, r := range rows {
		ts := r.Timestamp()
		for i := 0; i < k; i++ {
			v := r.GetDouble(1 + 2*i)
			lbl := r.GetString(2 + 2*i)
			if lbl == "" || v == a.sentinel() {
				continue
			}
			if _, ok := perLabel[lbl]; !ok {
				order = append(order, lbl)
			}
			perLabel[lbl] = append(perLabel[lbl], slotValue{ts: ts, value: v})
		}
	}

	out := make([]rangevector.RangeVector, 0, len(order))
	for _, lbl := range order {
		byTs := make(map[int64]float64, len(perLabel[lbl]))
		for _, sv := range perLabel[lbl] {
			byTs[sv.ts] = sv.value
		}
		presentRows := make([]rangevector.Row, len(rows))
		for i, r := range rows {
			ts := r.Timestamp()
			if v, ok := byTs[ts]; ok {
				presentRows[i] = rangevector.NewTransientRow(ts, v)
			} else {
				presentRows[i] = fillNaNRow(ts)
			}
		}
		outKey := key.WithLabel("__series__", lbl)
		out = append(out, rangevector.NewMemoryRangeVector(outKey, presentRows, &rangeParams))
	}
	return out, nil
}

// topKAccumulator keeps a bounded min-heap (for topK) or max-heap (for
// bottomK) of at most k (value,label) candidates per timestamp, merging
// each incoming slotted row's up to-k candidates in.
type topKAccumulator struct {
	k      int
	bottom bool
	ts     int64
	slots  []kvSlot
}

type kvSlot struct {
	value float64
	label string
}

// kHeap is a min-heap over value for topK selection (smallest of the
// current top-k sits at the root so it is evicted first when a larger
// candidate arrives), or a max-heap for bottomK.
type kHeap struct {
	slots  []kvSlot
	bottom bool
}

func (h kHeap) Len() int { return len(h.slots) }
func (h kHeap) Less(i, j int) bool {
	if h.bottom {
		return h.slots[i].value > h.slots[j].value
	}
	return h.slots[i].value < h.slots[j].value
}
func (h kHeap) Swap(i, j int)       { h.slots[i], h.slots[j] = h.slots[j], h.slots[i] }
func (h *kHeap) Push(x interface{}) { h.slots = append(h.slots, x.(kvSlot)) }
func (h *kHeap) Pop() interface{} {
	old := h.slots
	n := len(old)
	v := old[n-1]
	h.slots = old[:n-1]
	return v
}

func (a *topKAccumulator) Reduce(row rangevector.Row) {
	a.ts = row.Timestamp()
	sentinel := -math.MaxFloat64
	if a.bottom {
		sentinel = math.MaxFloat64
	}
	h := &kHeap{slots: a.slots, bottom: a.bottom}
	for i := 0; i < (row.NumColumns()-1)/2; i++ {
		v := row.GetDouble(1 + 2*i)
		lbl := row.GetString(2 + 2*i)
		if lbl == "" || v == sentinel {
			continue
		}
		if h.Len() < a.k {
			heap.Push(h, kvSlot{value: v, label: lbl})
			continue
		}
		if (!a.bottom && v > h.slots[0].value) || (a.bottom && v < h.slots[0].value) {
			h.slots[0] = kvSlot{value: v, label: lbl}
			heap.Fix(h, 0)
		}
	}
	a.slots = h.slots
}

func (a *topKAccumulator) Row() rangevector.Row {
	out := rangevector.NewRow(1 + 2*a.k)
	out.SetLong(0, a.ts)
	sentinel := -math.MaxFloat64
	if a.bottom {
		sentinel = math.MaxFloat64
	}
	for i := 0; i < a.k; i++ {
		if i < len(a.slots) {
			out.SetDouble(1+2*i, a.slots[i].value)
			out.SetString(2+2*i, a.slots[i].label)
		} else {
			out.SetDouble(1+2*i, sentinel)
			out.SetString(2+2*i, "")
		}
	}
	return out
}

// seriesLabelString renders a RangeVectorKey as a stable string for use
// as a topK/bottomK slot label, deliberately reusing RangeVectorKey's own
// canonical String() form rather than inventing a second encoding.
func seriesLabelString(key rangevector.RangeVectorKey) string {
	return key.String()
}
