package dal

import (
	"context"
	"errors"
	"fmt"
	goruntime "runtime"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"
)

// minWorkers is the smallest pool a Runtime accepts.
const minWorkers = 2

// ErrTooFewWorkers indicates NewRuntime was asked for fewer than two workers.
var ErrTooFewWorkers = errors.New("runtime: at least two workers required")

// -----------------------------------------------------------------------------
// Runtime
// -----------------------------------------------------------------------------

// Runtime is a bounded worker pool that drives accessors which are not
// natively blocking.
//
// A context is "inside" a runtime after Enter, and every function executed by
// Block or Spawn receives a context attached to the runtime. Accessors use
// RuntimeFromContext to find the runtime they must schedule background work
// on.
type Runtime struct {
	workers int
	slots   *semaphore.Weighted
	entered atomic.Int64
	running atomic.Int64
}

// NewRuntime creates a runtime with the given number of workers.
func NewRuntime(workers int) (*Runtime, error) {
	if workers < minWorkers {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewWorkers, workers)
	}
	return &Runtime{
		workers: workers,
		slots:   semaphore.NewWeighted(int64(workers)),
	}, nil
}

var defaultRuntime = sync.OnceValue(func() *Runtime {
	rt, err := NewRuntime(max(minWorkers, goruntime.NumCPU()))
	if err != nil {
		log.Fatal("dal: default runtime", "err", err)
	}
	return rt
})

// DefaultRuntime returns the process-wide runtime, creating it on first use.
// Concurrent first callers observe the same instance. It is never shut down.
func DefaultRuntime() *Runtime {
	return defaultRuntime()
}

// Workers returns the pool size.
func (rt *Runtime) Workers() int { return rt.workers }

// Entered returns the number of unreleased Enter guards.
func (rt *Runtime) Entered() int64 { return rt.entered.Load() }

// Running returns the number of functions currently executing in Block.
func (rt *Runtime) Running() int64 { return rt.running.Load() }

// -----------------------------------------------------------------------------
// Context attachment
// -----------------------------------------------------------------------------

type (
	runtimeKey struct{}
	workerKey  struct{}
)

// RuntimeFromContext reports the runtime ctx is attached to, if any.
func RuntimeFromContext(ctx context.Context) (*Runtime, bool) {
	rt, ok := ctx.Value(runtimeKey{}).(*Runtime)
	return rt, ok && rt != nil
}

// onWorker reports whether ctx belongs to a function running on rt's pool.
func (rt *Runtime) onWorker(ctx context.Context) bool {
	w, _ := ctx.Value(workerKey{}).(*Runtime)
	return w == rt
}

// Guard is a scoped acquisition returned by Enter.
type Guard struct {
	once sync.Once
	rt   *Runtime
}

// Release ends the acquisition. It is safe to call more than once.
func (g *Guard) Release() {
	if g == nil || g.rt == nil {
		return
	}
	g.once.Do(func() { g.rt.entered.Add(-1) })
}

// Enter returns a context attached to rt and a guard that must be released
// when the caller leaves the scope, typically with defer.
//
// Entering a runtime the context is already attached to is a no-op: the same
// context and a guard with nothing to release are returned.
func (rt *Runtime) Enter(ctx context.Context) (context.Context, *Guard) {
	if cur, ok := RuntimeFromContext(ctx); ok && cur == rt {
		return ctx, &Guard{}
	}
	rt.entered.Add(1)
	return context.WithValue(ctx, runtimeKey{}, rt), &Guard{rt: rt}
}

func (rt *Runtime) workerContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, runtimeKey{}, rt)
	return context.WithValue(ctx, workerKey{}, rt)
}

// -----------------------------------------------------------------------------
// Execution
// -----------------------------------------------------------------------------

// Block runs fn on one of rt's workers and waits for it to finish.
//
// At most Workers functions execute at once. When ctx already belongs to one
// of rt's workers, fn runs inline. If ctx is done before a worker is free,
// Block returns ctx.Err() without running fn. Once fn has started, Block
// returns only after fn does; fn observes the cancellation through its ctx.
func (rt *Runtime) Block(ctx context.Context, fn func(ctx context.Context) error) error {
	if rt.onWorker(ctx) {
		return fn(ctx)
	}
	if err := rt.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	defer rt.slots.Release(1)

	rt.running.Add(1)
	defer rt.running.Add(-1)
	return fn(rt.workerContext(ctx))
}

// Spawn starts fn as a background task attached to rt. Spawned tasks do not
// occupy worker slots, so a function running inside Block may spawn and then
// wait on a task without starving the pool. A task is never on a worker
// itself: Block calls made from it take a slot like any other caller.
func (rt *Runtime) Spawn(ctx context.Context, fn func(ctx context.Context)) {
	tctx := context.WithValue(ctx, runtimeKey{}, rt)
	tctx = context.WithValue(tctx, workerKey{}, (*Runtime)(nil))
	go fn(tctx)
}
