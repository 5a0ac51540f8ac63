// Package dispatcher implements the Dispatcher abstraction:
// dispatch(plan) -> future<QueryResponse>, which may be local (invoke
// execute directly) or remote (serialize plan, send, deserialize
// response).
package dispatcher

import (
	"context"

	"github.com/pkg/errors"
)

// ErrRemoteDispatchNotImplemented is returned by RemoteDispatcher: no
// wire transport for remote plan dispatch exists in this repository.
var ErrRemoteDispatchNotImplemented = errors.New("dispatcher: remote dispatch not implemented")

// Plan is the minimal surface Dispatcher needs from an exec plan node,
// satisfied by execplan.Plan. Defined here (rather than imported) to
// keep pkg/dispatcher free of a dependency on pkg/execplan, which itself
// depends on Dispatcher, the same small consumer-defined interface
// pattern pkg/storage.Storage follows.
type Plan interface {
	Execute(ctx context.Context, session interface{}) (interface{}, error)
}

// Dispatcher sends a plan for execution and returns its response.
// session and the response are typed as interface{} to avoid an import
// cycle with pkg/execplan; callers type-assert back to
// *execplan.QuerySession / execplan.QueryResponse.
type Dispatcher interface {
	Dispatch(ctx context.Context, plan Plan, session interface{}) (interface{}, error)
}

// LocalDispatcher invokes the plan in-process, the only dispatch mode
// this repository actually runs.
type LocalDispatcher struct{}

// NewLocal builds a LocalDispatcher.
func NewLocal() *LocalDispatcher { return &LocalDispatcher{} }

func (d *LocalDispatcher) Dispatch(ctx context.Context, plan Plan, session interface{}) (interface{}, error) {
	return plan.Execute(ctx, session)
}

// RemoteDispatcher is a documented stub: constructing one is legal (so
// plan trees can reference a remote dataset without failing to build),
// but Dispatch always fails since no wire protocol exists.
type RemoteDispatcher struct {
	Endpoint string
}

// NewRemote builds a RemoteDispatcher stub for the given endpoint.
func NewRemote(endpoint string) *RemoteDispatcher { return &RemoteDispatcher{Endpoint: endpoint} }

func (d *RemoteDispatcher) Dispatch(ctx context.Context, plan Plan, session interface{}) (interface{}, error) {
	return nil, errors.Wrapf(ErrRemoteDispatchNotImplemented, "endpoint %q", d.Endpoint)
}
