package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vjranagit/rangeql/pkg/aggregate"
	"github.com/vjranagit/rangeql/pkg/dispatcher"
	"github.com/vjranagit/rangeql/pkg/execplan"
	"github.com/vjranagit/rangeql/pkg/metricssink"
	"github.com/vjranagit/rangeql/pkg/rangevector"
	"github.com/vjranagit/rangeql/pkg/scheduler"
	"github.com/vjranagit/rangeql/pkg/storage"
	"github.com/vjranagit/rangeql/pkg/streamagg"
	"github.com/vjranagit/rangeql/pkg/types"
)

// Server implements the HTTP API server: a remote-write endpoint backed
// by storage.Storage directly, and a query endpoint that builds an
// execplan.Plan tree over a storage.RangeVectorSource and executes it
// through the engine.
type Server struct {
	storage   storage.Storage
	source    *storage.RangeVectorSource
	scheduler *scheduler.Scheduler
	metrics   *metricssink.Sink
	addr      string
	timeout   time.Duration
	logger    log.Logger
	server    *http.Server
}

// NewServer creates a new API server.
func NewServer(addr string, timeout time.Duration, store storage.Storage, sched *scheduler.Scheduler, metrics *metricssink.Sink, logger log.Logger) *Server {
	return &Server{
		storage:   store,
		source:    storage.NewRangeVectorSource(store, "default"),
		scheduler: sched,
		metrics:   metrics,
		addr:      addr,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/write", s.handleWrite)
	mux.HandleFunc("/api/v1/query", s.handleAggregateQuery)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleWrite handles remote write requests.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	tenantID := r.Header.Get("X-Tenant-ID")
	if tenantID == "" {
		tenantID = "default"
	}
	req.TenantID = tenantID

	if err := s.storage.Write(r.Context(), &req); err != nil {
		level.Error(s.logger).Log("msg", "write failed", "err", err)
		http.Error(w, fmt.Sprintf("Write failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "success"})
}

// aggregateQueryRequest describes a grouped aggregation over the stored
// dataset: op/matchers/grouping plus the output step grid.
type aggregateQueryRequest struct {
	Op       string            `json:"op"`
	Matchers map[string]string `json:"matchers"`
	GroupBy  []string          `json:"group_by"`
	K        int               `json:"k"`
	Quantile float64           `json:"quantile"`
	Label    string            `json:"label"`
	StartMs  int64             `json:"start_ms"`
	StepMs   int64             `json:"step_ms"`
	EndMs    int64             `json:"end_ms"`
	Limit    int               `json:"limit"`
}

type aggregateSeries struct {
	Labels     map[string]string `json:"labels"`
	Timestamps []int64           `json:"timestamps"`
	Values     []float64         `json:"values"`
}

type aggregateQueryResponse struct {
	Series               []aggregateSeries `json:"series"`
	ResultCouldBePartial bool              `json:"result_could_be_partial"`
	PartialResultsReason string            `json:"partial_results_reason,omitempty"`
	Error                string            `json:"error,omitempty"`
}

// handleAggregateQuery parses an aggregation request into an
// execplan.AggregatePlan over a single SelectWithAggregate leaf, runs it
// through execplan.Execute, and serializes the resulting range vectors.
func (s *Server) handleAggregateQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req aggregateQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	agg, err := buildAggregator(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rangeParams := rangevector.OutputRange{StartMs: req.StartMs, StepMs: req.StepMs, EndMs: req.EndMs}
	grouping := buildGrouping(req.GroupBy)
	disp := dispatcher.NewLocal()

	leaf := execplan.NewSelectWithAggregate("default", disp, s.source, req.Matchers, rangeParams, agg)
	plan := execplan.NewAggregatePlan("default", disp, []execplan.Plan{leaf}, agg, grouping, 4, req.Limit, rangeParams, false)

	session := &execplan.QuerySession{
		QueryID:      execplan.NewQueryID(),
		Dataset:      "default",
		SubmitTime:   time.Now(),
		QueryTimeout: s.timeout,
		SampleLimit:  0,
		Scheduler:    s.scheduler,
		Metrics:      s.metrics,
	}

	resp := execplan.Execute(r.Context(), plan, session)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toAggregateResponse(resp))
}

func buildAggregator(req aggregateQueryRequest) (aggregate.RowAggregator, error) {
	switch req.Op {
	case "sum":
		return aggregate.NewSum(), nil
	case "min":
		return aggregate.NewMin(), nil
	case "max":
		return aggregate.NewMax(), nil
	case "avg":
		return aggregate.NewAvg(), nil
	case "count":
		return aggregate.NewCount(), nil
	case "group":
		return aggregate.NewGroup(), nil
	case "stdvar":
		return aggregate.NewStdvar(), nil
	case "stddev":
		return aggregate.NewStddev(), nil
	case "topk":
		return aggregate.NewTopK(req.K)
	case "bottomk":
		return aggregate.NewBottomK(req.K)
	case "quantile":
		return aggregate.NewQuantile(req.Quantile)
	case "count_values":
		return aggregate.NewCountValues(req.Label), nil
	default:
		return nil, fmt.Errorf("unknown aggregation op %q", req.Op)
	}
}

func buildGrouping(groupBy []string) streamagg.GroupingFunc {
	if len(groupBy) == 0 {
		return streamagg.SameKeyGrouping(rangevector.NewRangeVectorKey(nil))
	}
	names := append([]string(nil), groupBy...)
	return func(rv rangevector.RangeVector) rangevector.RangeVectorKey {
		labels := make(map[string]string, len(names))
		for _, name := range names {
			if v, ok := rv.Key().Get(name); ok {
				labels[name] = v
			}
		}
		return rangevector.NewRangeVectorKey(labels)
	}
}

func toAggregateResponse(resp execplan.QueryResponse) aggregateQueryResponse {
	switch r := resp.(type) {
	case *execplan.QueryResult:
		out := aggregateQueryResponse{
			ResultCouldBePartial: r.ResultCouldBePartial,
			PartialResultsReason: r.PartialResultsReason,
		}
		for _, srv := range r.Result {
			rows, err := rangevector.Materialize(srv)
			if err != nil {
				out.Error = err.Error()
				continue
			}
			series := aggregateSeries{Labels: labelMap(srv.Key())}
			for _, row := range rows {
				v := row.GetDouble(1)
				// JSON has no NaN; grid points without a value are omitted.
				if math.IsNaN(v) {
					continue
				}
				series.Timestamps = append(series.Timestamps, row.Timestamp())
				series.Values = append(series.Values, v)
			}
			out.Series = append(out.Series, series)
		}
		return out
	case *execplan.QueryError:
		return aggregateQueryResponse{Error: r.Error()}
	default:
		return aggregateQueryResponse{Error: "unexpected query response type"}
	}
}

func labelMap(key rangevector.RangeVectorKey) map[string]string {
	labels := key.Labels()
	out := make(map[string]string, len(labels))
	for _, l := range labels {
		out[string(l.Name)] = string(l.Value)
	}
	return out
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}
