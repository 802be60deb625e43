package dal

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNewRuntime_TooFewWorkers(t *testing.T) {
	_, err := NewRuntime(1)
	require.ErrorIs(t, err, ErrTooFewWorkers)

	rt, err := NewRuntime(2)
	require.NoError(t, err)
	require.Equal(t, 2, rt.Workers())
}

func TestDefaultRuntime_Concurrent(t *testing.T) {
	var g errgroup.Group
	got := make([]*Runtime, 32)
	for i := range got {
		g.Go(func() error {
			got[i] = DefaultRuntime()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, rt := range got {
		require.Same(t, got[0], rt)
	}
	require.GreaterOrEqual(t, got[0].Workers(), minWorkers)
}

func TestRuntime_Enter(t *testing.T) {
	rt, err := NewRuntime(2)
	require.NoError(t, err)

	_, ok := RuntimeFromContext(t.Context())
	require.False(t, ok)

	ctx, guard := rt.Enter(t.Context())
	cur, ok := RuntimeFromContext(ctx)
	require.True(t, ok)
	require.Same(t, rt, cur)
	require.EqualValues(t, 1, rt.Entered())

	// Re-entering the same runtime is a no-op.
	ctx2, inner := rt.Enter(ctx)
	require.Equal(t, ctx, ctx2)
	require.EqualValues(t, 1, rt.Entered())
	inner.Release()
	require.EqualValues(t, 1, rt.Entered())

	guard.Release()
	guard.Release()
	require.EqualValues(t, 0, rt.Entered())

	var nilGuard *Guard
	nilGuard.Release()
}

func TestRuntime_Block_Bounded(t *testing.T) {
	rt, err := NewRuntime(2)
	require.NoError(t, err)

	var active, peak atomic.Int64
	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			return rt.Block(t.Context(), func(ctx context.Context) error {
				cur := active.Add(1)
				for {
					p := peak.Load()
					if cur <= p || peak.CompareAndSwap(p, cur) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())
	require.LessOrEqual(t, peak.Load(), int64(2))
	require.GreaterOrEqual(t, peak.Load(), int64(1))
}

func TestRuntime_Block_Nested(t *testing.T) {
	rt, err := NewRuntime(2)
	require.NoError(t, err)

	var (
		attached *Runtime
		running  int64
	)
	err = rt.Block(t.Context(), func(ctx context.Context) error {
		attached, _ = RuntimeFromContext(ctx)
		return rt.Block(ctx, func(ctx context.Context) error {
			running = rt.Running()
			return nil
		})
	})
	require.NoError(t, err)
	require.Same(t, rt, attached)
	// Inline: the nested call did not take a second slot.
	require.EqualValues(t, 1, running)
}

func TestRuntime_Block_ReturnsError(t *testing.T) {
	rt, err := NewRuntime(2)
	require.NoError(t, err)

	err = rt.Block(t.Context(), func(context.Context) error { return errInjected })
	require.ErrorIs(t, err, errInjected)
}

func TestRuntime_Block_ContextDone(t *testing.T) {
	rt, err := NewRuntime(2)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var g errgroup.Group
	for range 2 {
		g.Go(func() error {
			return rt.Block(t.Context(), func(context.Context) error {
				started <- struct{}{}
				<-release
				return nil
			})
		})
	}
	<-started
	<-started

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err = rt.Block(ctx, func(context.Context) error {
		t.Error("fn must not run once ctx is done and the pool is full")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	require.NoError(t, g.Wait())
}

func TestRuntime_Spawn(t *testing.T) {
	rt, err := NewRuntime(2)
	require.NoError(t, err)

	got := make(chan *Runtime, 1)
	rt.Spawn(t.Context(), func(ctx context.Context) {
		cur, _ := RuntimeFromContext(ctx)
		got <- cur
	})
	require.Same(t, rt, <-got)
}

func TestRuntime_Block_CancelWaitsForFn(t *testing.T) {
	rt, err := NewRuntime(2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	buf := make([]byte, 4)
	var n int
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err = rt.Block(ctx, func(context.Context) error {
		time.Sleep(50 * time.Millisecond)
		n = copy(buf, "late")
		return nil
	})
	require.NoError(t, err)

	// fn finished before Block returned, so its writes are visible here.
	require.Equal(t, 4, n)
	require.Equal(t, "late", string(buf))
	require.EqualValues(t, 0, rt.Running())
}

func TestRuntime_Block_FnSeesCancellation(t *testing.T) {
	rt, err := NewRuntime(2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	err = rt.Block(ctx, func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRuntime_Spawn_NotOnWorker(t *testing.T) {
	rt, err := NewRuntime(2)
	require.NoError(t, err)

	var (
		onWorker bool
		running  int64
	)
	err = rt.Block(t.Context(), func(ctx context.Context) error {
		done := make(chan error, 1)
		rt.Spawn(ctx, func(ctx context.Context) {
			onWorker = rt.onWorker(ctx)
			done <- rt.Block(ctx, func(context.Context) error {
				running = rt.Running()
				return nil
			})
		})
		return <-done
	})
	require.NoError(t, err)
	require.False(t, onWorker)
	// The task's Block took its own slot next to the spawning function.
	require.EqualValues(t, 2, running)
}
