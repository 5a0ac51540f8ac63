package execplan

import (
	"time"

	"github.com/vjranagit/rangeql/pkg/dispatcher"
	"github.com/vjranagit/rangeql/pkg/metricssink"
	"github.com/vjranagit/rangeql/pkg/scheduler"
)

// QuerySession is the per-query context threaded through execute(),
// carrying the submit time used for timeout checks at each pipeline
// step boundary and the external collaborators a query needs: its
// scheduler, dispatcher, and metrics sink.
type QuerySession struct {
	QueryID           string
	Dataset           string
	SubmitTime        time.Time
	QueryTimeout      time.Duration
	SampleLimit       int
	Scheduler         *scheduler.Scheduler
	DefaultDispatcher dispatcher.Dispatcher
	Metrics           *metricssink.Sink
}

// Elapsed returns time since SubmitTime.
func (s *QuerySession) Elapsed() time.Duration { return time.Since(s.SubmitTime) }

// CheckTimeout fails with ErrQueryTimeout once now - submitTime exceeds
// QueryTimeout. A zero QueryTimeout disables the check.
func (s *QuerySession) CheckTimeout() error {
	if s.QueryTimeout > 0 && s.Elapsed() >= s.QueryTimeout {
		return ErrQueryTimeout
	}
	return nil
}
