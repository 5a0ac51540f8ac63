package execplan

import (
	"github.com/google/uuid"

	"github.com/vjranagit/rangeql/pkg/rangevector"
)

// QueryStats accumulates the counters a QueryResult/QueryError carries:
// rows serialized and result bytes.
type QueryStats struct {
	NumRowsSerialized int64
	ResultBytes       int64
}

// Add folds another QueryStats into this one, aggregating child stats.
func (s *QueryStats) Add(o QueryStats) {
	s.NumRowsSerialized += o.NumRowsSerialized
	s.ResultBytes += o.ResultBytes
}

// QueryResponse is the sealed QueryResult|QueryError union every query
// resolves to.
type QueryResponse interface {
	isQueryResponse()
	QueryID() string
	Stats() QueryStats
}

// QueryResult is a successful, possibly partial, query outcome.
type QueryResult struct {
	ID                   string
	Schema               rangevector.ResultSchema
	Result               []*rangevector.SerializedRangeVector
	QueryStats           QueryStats
	ResultCouldBePartial bool
	PartialResultsReason string
}

func (*QueryResult) isQueryResponse()    {}
func (r *QueryResult) QueryID() string   { return r.ID }
func (r *QueryResult) Stats() QueryStats { return r.QueryStats }

// QueryError is a failed query outcome. It still carries whatever stats
// were accumulated before the failure, so callers always receive a
// QueryResponse with usable accounting.
type QueryError struct {
	ID         string
	QueryStats QueryStats
	Cause      error
}

func (*QueryError) isQueryResponse()    {}
func (e *QueryError) QueryID() string   { return e.ID }
func (e *QueryError) Stats() QueryStats { return e.QueryStats }
func (e *QueryError) Error() string     { return "query " + e.ID + " failed: " + e.Cause.Error() }
func (e *QueryError) Unwrap() error     { return e.Cause }

// NewQueryID mints a fresh query id carried by QueryResult/QueryError.
func NewQueryID() string { return uuid.NewString() }
