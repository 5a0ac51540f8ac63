package rangevector

import (
	"math"
	"testing"
)

func TestSerializedRangeVectorRoundTrip(t *testing.T) {
	rows := []Row{
		NewTransientRow(1000, 1.5),
		NewTransientRow(2000, math.NaN()),
	}
	key := NewRangeVectorKey(map[string]string{"job": "api"})
	rv := NewMemoryRangeVector(key, rows, &OutputRange{StartMs: 1000, StepMs: 1000, EndMs: 2000})

	builder, err := NewContainerBuilder(4096)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	srv, err := NewSerializedRangeVector(rv, builder, schema(timestampCol(), doubleCol("v")), "TestPlan")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if srv.NumRowsSerialized() != 2 {
		t.Fatalf("NumRowsSerialized() = %d, want 2", srv.NumRowsSerialized())
	}
	if !srv.Key().Equals(key) {
		t.Fatalf("serialized range vector lost its key")
	}

	got, err := Materialize(srv)
	if err != nil {
		t.Fatalf("unexpected error decoding: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("decoded %d rows, want 2", len(got))
	}
	if got[0].Timestamp() != 1000 || got[0].GetDouble(1) != 1.5 {
		t.Fatalf("row 0 mismatch: %+v", got[0])
	}
	if got[1].Timestamp() != 2000 || !math.IsNaN(got[1].GetDouble(1)) {
		t.Fatalf("row 1 mismatch: %+v", got[1])
	}
}

func TestSerializedRangeVectorCompressesLargeContainers(t *testing.T) {
	var rows []Row
	for i := 0; i < 2000; i++ {
		rows = append(rows, NewTransientRow(int64(i)*1000, float64(i)))
	}
	rv := NewMemoryRangeVector(NewRangeVectorKey(nil), rows, nil)

	builder, err := NewContainerBuilder(64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	srv, err := NewSerializedRangeVector(rv, builder, schema(timestampCol(), doubleCol("v")), "TestPlan")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := Materialize(srv)
	if err != nil {
		t.Fatalf("unexpected error decoding compressed container: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("decoded %d rows, want %d", len(got), len(rows))
	}
	if builder.TotalBytes() <= 0 {
		t.Fatalf("expected non-zero total bytes")
	}
}

func TestSerializedRangeVectorSharedBuilder(t *testing.T) {
	builder, err := NewContainerBuilder(4096)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rv1 := NewMemoryRangeVector(NewRangeVectorKey(map[string]string{"s": "1"}), []Row{NewTransientRow(1000, 1)}, nil)
	rv2 := NewMemoryRangeVector(NewRangeVectorKey(map[string]string{"s": "2"}), []Row{NewTransientRow(1000, 2)}, nil)

	srv1, err := NewSerializedRangeVector(rv1, builder, schema(timestampCol(), doubleCol("v")), "p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	srv2, err := NewSerializedRangeVector(rv2, builder, schema(timestampCol(), doubleCol("v")), "p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if builder.NumRowsSerialized() != 2 {
		t.Fatalf("shared builder should see both vectors' rows, got %d", builder.NumRowsSerialized())
	}

	rows1, err := Materialize(srv1)
	if err != nil || len(rows1) != 1 || rows1[0].GetDouble(1) != 1 {
		t.Fatalf("srv1 round-trip failed: rows=%v err=%v", rows1, err)
	}
	rows2, err := Materialize(srv2)
	if err != nil || len(rows2) != 1 || rows2[0].GetDouble(1) != 2 {
		t.Fatalf("srv2 round-trip failed: rows=%v err=%v", rows2, err)
	}
}
