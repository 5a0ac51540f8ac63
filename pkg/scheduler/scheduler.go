// Package scheduler implements a named task executor with a thread
// assertion for the query pool. Go has no thread identity to assert
// against, so the pool marks its goroutines with a context value
// instead and exposes an assertion helper any doExecute implementation
// can call to catch itself running off the query pool by mistake.
package scheduler

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type poolKey struct{}

// ErrNotOnQueryScheduler is returned by AssertOnQueryScheduler when the
// calling goroutine was not dispatched through a Scheduler of the
// expected name.
var ErrNotOnQueryScheduler = errors.New("scheduler: not running on query scheduler")

// Scheduler runs each submitted function on its own goroutine, tagging
// the context so nested code can verify it is executing on the query
// pool rather than, say, an I/O or HTTP-handler goroutine.
type Scheduler struct {
	name        string
	parallelism int
}

// New builds a named Scheduler. parallelism > 0 is applied as the limit
// of each Submit call's own errgroup; parallelism <= 0 leaves it unset.
func New(name string, parallelism int) *Scheduler {
	return &Scheduler{name: name, parallelism: parallelism}
}

// Name returns the pool's name, used by AssertOnQueryScheduler and by
// plan printing.
func (s *Scheduler) Name() string { return s.name }

// Submit runs fn on the pool, tagging ctx so AssertOnQueryScheduler(ctx,
// s.name) succeeds inside fn. Submit blocks until fn returns. Each call
// creates its own errgroup.Group running the single fn, so the
// parallelism limit does not bound concurrent Submit callers: every
// caller's fn runs at once.
func (s *Scheduler) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	tagged := context.WithValue(ctx, poolKey{}, s.name)
	eg, egCtx := errgroup.WithContext(tagged)
	if s.parallelism > 0 {
		eg.SetLimit(s.parallelism)
	}
	eg.Go(func() error { return fn(egCtx) })
	return eg.Wait()
}

// AssertOnQueryScheduler reports whether ctx was tagged by a Scheduler
// named poolName. Intended for debug-mode checks inside doExecute
// implementations that need to assert they execute on the expected
// query pool.
func AssertOnQueryScheduler(ctx context.Context, poolName string) error {
	v, _ := ctx.Value(poolKey{}).(string)
	if v != poolName {
		return errors.Wrapf(ErrNotOnQueryScheduler, "want pool %q, got %q", poolName, v)
	}
	return nil
}
