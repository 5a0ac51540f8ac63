package execplan

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vjranagit/rangeql/pkg/dispatcher"
	"github.com/vjranagit/rangeql/pkg/metricssink"
	"github.com/vjranagit/rangeql/pkg/rangevector"
	"github.com/vjranagit/rangeql/pkg/scheduler"
)

// fakeLeaf is a minimal Plan for exercising Execute without going
// through pkg/storage; DoExecute returns whatever rows/schema/error the
// test configures.
type fakeLeaf struct {
	BasePlan
	name   string
	rows   []rangevector.Row
	schema rangevector.ResultSchema
	err    error
	delay  time.Duration
}

func (f *fakeLeaf) ClassName() string { return f.name }

func (f *fakeLeaf) DoExecute(ctx context.Context, session *QuerySession) (ExecResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ExecResult{}, ctx.Err()
		}
	}
	if f.err != nil {
		return ExecResult{}, f.err
	}
	key := rangevector.NewRangeVectorKey(map[string]string{"series": f.name})
	return ExecResult{
		RangeVectors: []rangevector.RangeVector{rangevector.NewMemoryRangeVector(key, f.rows, nil)},
		Schema:       f.schema,
	}, nil
}

func newSession(sampleLimit int, timeout time.Duration) *QuerySession {
	return &QuerySession{
		QueryID:      NewQueryID(),
		SubmitTime:   time.Now(),
		QueryTimeout: timeout,
		SampleLimit:  sampleLimit,
		Scheduler:    scheduler.New("query", 4),
	}
}

func doubleSchema(name string) rangevector.ResultSchema {
	return rangevector.ResultSchema{Columns: []rangevector.ColumnInfo{
		{Name: "timestamp", Type: rangevector.ColumnTimestamp},
		{Name: name, Type: rangevector.ColumnDouble},
	}}
}

func TestExecuteLeafProducesResult(t *testing.T) {
	leaf := &fakeLeaf{
		BasePlan: BasePlan{Disp: dispatcher.NewLocal()},
		name:     "Leaf",
		rows:     []rangevector.Row{rangevector.NewTransientRow(1000, 1.5)},
		schema:   doubleSchema("v"),
	}
	resp := Execute(context.Background(), leaf, newSession(100, 0))
	result, ok := resp.(*QueryResult)
	if !ok {
		t.Fatalf("expected *QueryResult, got %T (%v)", resp, resp)
	}
	if len(result.Result) != 1 {
		t.Fatalf("expected one serialized range vector, got %d", len(result.Result))
	}
	if result.QueryStats.NumRowsSerialized != 1 {
		t.Fatalf("expected NumRowsSerialized=1, got %d", result.QueryStats.NumRowsSerialized)
	}
}

// TestExecuteRecordsMetrics verifies Execute observes plan latency and
// tracks the in-flight gauge around DoExecute, the wiring that closes
// the loop between QuerySession.Metrics and an actual query run.
func TestExecuteRecordsMetrics(t *testing.T) {
	leaf := &fakeLeaf{
		BasePlan: BasePlan{Disp: dispatcher.NewLocal()},
		name:     "Leaf",
		rows:     []rangevector.Row{rangevector.NewTransientRow(1000, 1.5)},
		schema:   doubleSchema("v"),
	}
	reg := prometheus.NewRegistry()
	sink := metricssink.New(reg)
	session := newSession(100, 0)
	session.Dataset = "default"
	session.Metrics = sink

	Execute(context.Background(), leaf, session)

	if count := testutil.CollectAndCount(sink.PlanLatencySeconds); count != 1 {
		t.Fatalf("expected one plan latency observation, got %d", count)
	}
	if got := testutil.ToFloat64(sink.InFlightQueries.WithLabelValues("default")); got != 0 {
		t.Fatalf("in-flight gauge should be back to 0 after Execute returns, got %v", got)
	}
}

func TestExecuteEmptySchemaYieldsEmptyResult(t *testing.T) {
	leaf := &fakeLeaf{
		BasePlan: BasePlan{Disp: dispatcher.NewLocal()},
		name:     "Leaf",
		schema:   rangevector.EmptySchema(),
	}
	resp := Execute(context.Background(), leaf, newSession(100, 0))
	result, ok := resp.(*QueryResult)
	if !ok {
		t.Fatalf("expected *QueryResult, got %T", resp)
	}
	if len(result.Result) != 0 {
		t.Fatalf("expected zero range vectors for an empty schema, got %d", len(result.Result))
	}
}

// TestSampleLimitEnforced verifies a query aborts once materialized
// rows exceed the session's sample limit.
func TestSampleLimitEnforced(t *testing.T) {
	leaf := &fakeLeaf{
		BasePlan: BasePlan{Disp: dispatcher.NewLocal()},
		name:     "Leaf",
		rows: []rangevector.Row{
			rangevector.NewTransientRow(1000, 1),
			rangevector.NewTransientRow(2000, 2),
			rangevector.NewTransientRow(3000, 3),
		},
		schema: doubleSchema("v"),
	}
	resp := Execute(context.Background(), leaf, newSession(2, 0))
	qerr, ok := resp.(*QueryError)
	if !ok {
		t.Fatalf("expected *QueryError when rows exceed sample limit, got %T", resp)
	}
	if _, ok := qerr.Cause.(*SampleLimitExceededError); !ok {
		t.Fatalf("expected SampleLimitExceededError, got %T", qerr.Cause)
	}
}

func TestDisableLimitSkipsEnforcement(t *testing.T) {
	leaf := &fakeLeaf{
		BasePlan: BasePlan{Disp: dispatcher.NewLocal(), DisableLimit: true},
		name:     "Leaf",
		rows: []rangevector.Row{
			rangevector.NewTransientRow(1000, 1),
			rangevector.NewTransientRow(2000, 2),
			rangevector.NewTransientRow(3000, 3),
		},
		schema: doubleSchema("v"),
	}
	resp := Execute(context.Background(), leaf, newSession(2, 0))
	if _, ok := resp.(*QueryResult); !ok {
		t.Fatalf("expected *QueryResult when EnforceLimit is disabled, got %T", resp)
	}
}

func TestExecuteTimeoutExceeded(t *testing.T) {
	leaf := &fakeLeaf{
		BasePlan: BasePlan{Disp: dispatcher.NewLocal()},
		name:     "Leaf",
		rows:     []rangevector.Row{rangevector.NewTransientRow(1000, 1)},
		schema:   doubleSchema("v"),
	}
	session := newSession(100, time.Millisecond)
	session.SubmitTime = time.Now().Add(-time.Hour)
	resp := Execute(context.Background(), leaf, session)
	qerr, ok := resp.(*QueryError)
	if !ok {
		t.Fatalf("expected *QueryError on timeout, got %T", resp)
	}
	if qerr.Cause != ErrQueryTimeout {
		t.Fatalf("expected ErrQueryTimeout, got %v", qerr.Cause)
	}
}

func TestExecuteLeafErrorBecomesQueryError(t *testing.T) {
	leaf := &fakeLeaf{
		BasePlan: BasePlan{Disp: dispatcher.NewLocal()},
		name:     "Leaf",
		err:      errTestLeaf,
	}
	resp := Execute(context.Background(), leaf, newSession(100, 0))
	if _, ok := resp.(*QueryError); !ok {
		t.Fatalf("expected *QueryError when DoExecute fails, got %T", resp)
	}
}

func TestPrintTreeFormat(t *testing.T) {
	leaf := &fakeLeaf{
		BasePlan: BasePlan{Disp: dispatcher.NewLocal()},
		name:     "Leaf",
	}
	tree := PrintTree(leaf, 0)
	if !strings.Contains(tree, "E~Leaf(") {
		t.Fatalf("printed tree should name the plan node, got %q", tree)
	}
	if !strings.Contains(tree, "LocalDispatcher") {
		t.Fatalf("printed tree should name the dispatcher, got %q", tree)
	}
}

var errTestLeaf = &testError{"leaf failed"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
