package execplan

import "github.com/pkg/errors"

// ErrQueryTimeout is raised when CheckTimeout finds the query has run
// past its configured timeout.
var ErrQueryTimeout = errors.New("execplan: query timeout")

// SampleLimitExceededError is raised during materialization when the
// serialized row count exceeds the session's sample limit, aborting the
// query.
type SampleLimitExceededError struct {
	NumRows int
	Limit   int
}

func (e *SampleLimitExceededError) Error() string {
	return "sample limit exceeded: materialized rows over configured limit"
}
