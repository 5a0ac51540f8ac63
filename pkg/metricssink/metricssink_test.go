package metricssink

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservePlanLatencyRecordsHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg)

	s.ObservePlanLatency("SelectWithAggregate", "default", 0.25)

	count := testutil.CollectAndCount(s.PlanLatencySeconds)
	if count != 1 {
		t.Errorf("CollectAndCount = %d, want 1", count)
	}
}

func TestObservePlanLatencyOnNilSinkIsNoop(t *testing.T) {
	var s *Sink
	s.ObservePlanLatency("SelectWithAggregate", "default", 0.25)
}

func TestTrackInFlightIncrementsAndDecrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg)

	done := s.TrackInFlight("default")
	if got := testutil.ToFloat64(s.InFlightQueries.WithLabelValues("default")); got != 1 {
		t.Errorf("in-flight gauge = %v, want 1", got)
	}

	done()
	if got := testutil.ToFloat64(s.InFlightQueries.WithLabelValues("default")); got != 0 {
		t.Errorf("in-flight gauge after decrement = %v, want 0", got)
	}
}

func TestTrackInFlightOnNilSinkIsNoop(t *testing.T) {
	var s *Sink
	done := s.TrackInFlight("default")
	done()
}
