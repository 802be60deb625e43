package dal

import (
	"context"
	"errors"
	"io"
	"sync"
)

// -----------------------------------------------------------------------------
// Fault-Injection Accessor (test-only)
// -----------------------------------------------------------------------------
//
// faultAccessor wraps an Accessor and enables deterministic fault injection:
//   - queued errors per operation, consumed one per call
//   - a single mid-stream read fault
//   - call counting
//   - capability overrides

var errInjected = errors.New("injected fault")

type faultAccessor struct {
	inner Accessor

	mu    sync.Mutex
	errs  map[string][]error
	calls map[string]int

	readFault      error
	readFaultAfter int

	capability *Capability
}

func newFaultAccessor(inner Accessor) *faultAccessor {
	return &faultAccessor{
		inner: inner,
		errs:  make(map[string][]error),
		calls: make(map[string]int),
	}
}

// Inject queues errors for op ("exists", "reader", "writer", "delete").
func (f *faultAccessor) Inject(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op] = append(f.errs[op], errs...)
}

// FailReadAfter makes the next opened reader fail with err once after n bytes.
func (f *faultAccessor) FailReadAfter(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readFault = err
	f.readFaultAfter = n
}

// SetCapability overrides the reported capability set.
func (f *faultAccessor) SetCapability(c Capability) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capability = &c
}

// Calls returns how many times op was invoked.
func (f *faultAccessor) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *faultAccessor) next(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	q := f.errs[op]
	if len(q) == 0 {
		return nil
	}
	f.errs[op] = q[1:]
	return q[0]
}

func (f *faultAccessor) Info() Info {
	info := f.inner.Info()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.capability != nil {
		info.Capability = *f.capability
	}
	return info
}

func (f *faultAccessor) Exists(ctx context.Context, path string) (bool, error) {
	if err := f.next("exists"); err != nil {
		return false, err
	}
	return f.inner.Exists(ctx, path)
}

func (f *faultAccessor) Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	if err := f.next("reader"); err != nil {
		return nil, err
	}
	rc, err := f.inner.Reader(ctx, path, offset)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readFault != nil {
		rc = &faultReader{rc: rc, remaining: f.readFaultAfter, err: f.readFault}
		f.readFault = nil
	}
	return rc, nil
}

func (f *faultAccessor) Writer(ctx context.Context, path string) (io.WriteCloser, error) {
	if err := f.next("writer"); err != nil {
		return nil, err
	}
	return f.inner.Writer(ctx, path)
}

func (f *faultAccessor) Delete(ctx context.Context, path string) error {
	if err := f.next("delete"); err != nil {
		return err
	}
	return f.inner.Delete(ctx, path)
}

type faultReader struct {
	rc        io.ReadCloser
	remaining int
	err       error
}

func (r *faultReader) Read(p []byte) (int, error) {
	if r.remaining == 0 {
		return 0, r.err
	}
	if len(p) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.rc.Read(p)
	r.remaining -= n
	return n, err
}

func (r *faultReader) Close() error { return r.rc.Close() }

// -----------------------------------------------------------------------------
// Async Accessor (test-only)
// -----------------------------------------------------------------------------
//
// asyncAccessor behaves like a remote backend: it is not blocking and its
// writers hand bytes to a task spawned on the caller's runtime.

const schemeAsync Scheme = "async-test"

type asyncAccessor struct {
	inner Accessor
}

func (a *asyncAccessor) Info() Info {
	info := a.inner.Info()
	info.Scheme = schemeAsync
	info.Capability.Blocking = false
	return info
}

func (a *asyncAccessor) Exists(ctx context.Context, path string) (bool, error) {
	if _, ok := RuntimeFromContext(ctx); !ok {
		return false, ErrNoRuntime
	}
	return a.inner.Exists(ctx, path)
}

func (a *asyncAccessor) Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	if _, ok := RuntimeFromContext(ctx); !ok {
		return nil, ErrNoRuntime
	}
	return a.inner.Reader(ctx, path, offset)
}

func (a *asyncAccessor) Writer(ctx context.Context, path string) (io.WriteCloser, error) {
	rt, ok := RuntimeFromContext(ctx)
	if !ok {
		return nil, ErrNoRuntime
	}
	wc, err := a.inner.Writer(ctx, path)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	rt.Spawn(ctx, func(context.Context) {
		_, err := io.Copy(wc, pr)
		done <- errors.Join(err, wc.Close())
	})
	return &asyncWriter{pw: pw, done: done}, nil
}

func (a *asyncAccessor) Delete(ctx context.Context, path string) error {
	if _, ok := RuntimeFromContext(ctx); !ok {
		return ErrNoRuntime
	}
	return a.inner.Delete(ctx, path)
}

type asyncWriter struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *asyncWriter) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *asyncWriter) Close() error {
	_ = w.pw.Close()
	return <-w.done
}

func init() {
	Register(schemeAsync, func(m map[string]string) (Accessor, error) {
		inner, err := newMemoryFromMap(m)
		if err != nil {
			return nil, err
		}
		return &asyncAccessor{inner: inner}, nil
	})
}
