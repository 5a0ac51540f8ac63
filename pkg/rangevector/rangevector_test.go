package rangevector

import (
	"math"
	"testing"
)

func TestMemoryRangeVectorRowsAscending(t *testing.T) {
	rows := []Row{
		NewTransientRow(1000, 1.0),
		NewTransientRow(2000, 2.0),
	}
	rv := NewMemoryRangeVector(NewRangeVectorKey(nil), rows, nil)

	cur := rv.Rows()
	var got []int64
	for cur.Next() {
		got = append(got, cur.Row().Timestamp())
	}
	if cur.Err() != nil {
		t.Fatalf("unexpected error: %v", cur.Err())
	}
	if len(got) != 2 || got[0] != 1000 || got[1] != 2000 {
		t.Fatalf("rows not in ascending order: %v", got)
	}
}

func TestMemoryRangeVectorRestartable(t *testing.T) {
	rv := NewMemoryRangeVector(NewRangeVectorKey(nil), []Row{NewTransientRow(1000, 1.0)}, nil)
	first, err := Materialize(rv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Materialize(rv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("MemoryRangeVector must be restartable, got %d then %d rows", len(first), len(second))
	}
}

func TestOutputRangeNumSteps(t *testing.T) {
	r := OutputRange{StartMs: 1000, StepMs: 1000, EndMs: 5000}
	if got := r.NumSteps(); got != 5 {
		t.Fatalf("NumSteps() = %d, want 5", got)
	}
}

func TestRowClonePreservesHistogramIndependently(t *testing.T) {
	row := NewRow(2)
	row.SetLong(0, 1000)
	row.SetHistogram(1, Histogram{SchemaID: 1, Values: []float64{1, 2}})

	clone := row.Clone()
	clone.Cells[1].H.Values[0] = math.NaN()

	if row.GetHistogram(1).Values[0] != 1 {
		t.Fatalf("Clone must deep-copy histogram buckets, mutation leaked into original")
	}
}
