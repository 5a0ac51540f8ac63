package aggregate

import (
	"math"
	"testing"

	"github.com/vjranagit/rangeql/pkg/rangevector"
)

func TestCountValuesGroupsByFormattedValue(t *testing.T) {
	s1 := series(5, 5)
	s2 := series(5, 6)
	s3 := series(6, 6)

	agg := NewCountValues("value")
	reduced := runPipeline(t, agg, [][]rangevector.Row{s1, s2, s3})
	byLabel := presentFanout(t, agg, reduced, 0, "value")

	if len(byLabel) != 2 {
		t.Fatalf("expected 2 distinct values (5 and 6), got %d: %v", len(byLabel), byLabel)
	}

	rowsFor5 := byLabel["5"]
	if rowsFor5 == nil {
		t.Fatalf("expected a range vector keyed value=5, got keys %v", keysOf(byLabel))
	}
	if rowsFor5[0].GetDouble(1) != 2 {
		t.Fatalf("count of value 5 at t=1000 should be 2, got %v", rowsFor5[0].GetDouble(1))
	}
	if rowsFor5[1].GetDouble(1) != 1 {
		t.Fatalf("count of value 5 at t=2000 should be 1, got %v", rowsFor5[1].GetDouble(1))
	}

	rowsFor6 := byLabel["6"]
	if rowsFor6[0].GetDouble(1) != 1 {
		t.Fatalf("count of value 6 at t=1000 should be 1, got %v", rowsFor6[0].GetDouble(1))
	}
	if rowsFor6[1].GetDouble(1) != 2 {
		t.Fatalf("count of value 6 at t=2000 should be 2, got %v", rowsFor6[1].GetDouble(1))
	}
}

func TestCountValuesUnselectedTimestampIsNaN(t *testing.T) {
	s1 := series(1, 2)
	agg := NewCountValues("value")
	reduced := runPipeline(t, agg, [][]rangevector.Row{s1})
	byLabel := presentFanout(t, agg, reduced, 0, "value")

	row1 := byLabel["1"]
	if !math.IsNaN(row1[1].GetDouble(1)) {
		t.Fatalf("value 1's series should be NaN at a timestamp where it wasn't seen, got %v", row1[1].GetDouble(1))
	}
}

func TestFormatCountValueCanonicalForm(t *testing.T) {
	cases := []struct {
		v    float64
		want string
	}{
		{5.6, "5.6"},
		{2.0, "2"},
		{0.0, "0"},
		{math.Copysign(0, -1), "0"},
	}
	for _, c := range cases {
		if got := formatCountValue(c.v); got != c.want {
			t.Fatalf("formatCountValue(%v) = %q, want %q", c.v, got, c.want)
		}
	}
}

func keysOf(m map[string][]rangevector.Row) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
