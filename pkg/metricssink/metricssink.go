// Package metricssink implements the query engine's own internal
// metrics surface: histograms and gauges keyed by plan class name and
// dataset/shard tags, with fire-and-forget emission, built on
// prometheus/client_golang.
package metricssink

import "github.com/prometheus/client_golang/prometheus"

// Sink is the query engine's own internal metrics surface, independent
// of the samples it aggregates.
type Sink struct {
	PlanLatencySeconds *prometheus.HistogramVec
	InFlightQueries    *prometheus.GaugeVec
}

// New registers the sink's collectors against reg and returns the sink.
// Passing prometheus.NewRegistry() keeps tests hermetic; passing
// prometheus.DefaultRegisterer wires into the process-wide /metrics
// endpoint.
func New(reg prometheus.Registerer) *Sink {
	s := &Sink{
		PlanLatencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rangeql",
			Subsystem: "exec",
			Name:      "plan_latency_seconds",
			Help:      "Exec plan node latency by plan class and dataset.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"plan_class", "dataset"}),
		InFlightQueries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rangeql",
			Subsystem: "exec",
			Name:      "in_flight_queries",
			Help:      "Number of queries currently executing, by dataset.",
		}, []string{"dataset"}),
	}
	reg.MustRegister(s.PlanLatencySeconds, s.InFlightQueries)
	return s
}

// ObservePlanLatency is fire-and-forget; callers never check an error
// from recording a metric.
func (s *Sink) ObservePlanLatency(planClass, dataset string, seconds float64) {
	if s == nil {
		return
	}
	s.PlanLatencySeconds.WithLabelValues(planClass, dataset).Observe(seconds)
}

// TrackInFlight increments the in-flight gauge for dataset and returns a
// func that decrements it; callers defer the returned func.
func (s *Sink) TrackInFlight(dataset string) func() {
	if s == nil {
		return func() {}
	}
	g := s.InFlightQueries.WithLabelValues(dataset)
	g.Inc()
	return g.Dec
}
