package dal

import (
	"context"
	"io"
)

// -----------------------------------------------------------------------------
// Blocking layer
// -----------------------------------------------------------------------------

// blockingLayer binds an accessor to a captured Runtime.
type blockingLayer struct {
	rt *Runtime
}

// NewBlockingLayer captures the runtime ctx is attached to and returns a layer
// that executes every accessor call, including stream reads, writes and
// closes, on that runtime's workers. The resulting accessor reports
// Capability.Blocking, so it can be driven by callers that carry no runtime.
//
// Returns ErrNoRuntime if ctx is not attached to a runtime; use Runtime.Enter
// first.
func NewBlockingLayer(ctx context.Context) (Layer, error) {
	rt, ok := RuntimeFromContext(ctx)
	if !ok {
		return nil, ErrNoRuntime
	}
	return &blockingLayer{rt: rt}, nil
}

func (l *blockingLayer) Apply(inner Accessor) Accessor {
	return &blockingAccessor{inner: inner, rt: l.rt}
}

type blockingAccessor struct {
	inner Accessor
	rt    *Runtime
}

// Runtime returns the captured runtime.
func (b *blockingAccessor) Runtime() *Runtime { return b.rt }

func (b *blockingAccessor) Info() Info {
	info := b.inner.Info()
	info.Capability.Blocking = true
	return info
}

func (b *blockingAccessor) Exists(ctx context.Context, path string) (bool, error) {
	var ok bool
	err := b.rt.Block(ctx, func(ctx context.Context) error {
		var err error
		ok, err = b.inner.Exists(ctx, path)
		return err
	})
	return ok, err
}

func (b *blockingAccessor) Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := b.rt.Block(ctx, func(ctx context.Context) error {
		var err error
		rc, err = b.inner.Reader(ctx, path, offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &blockingReader{rt: b.rt, ctx: ctx, rc: rc}, nil
}

func (b *blockingAccessor) Writer(ctx context.Context, path string) (io.WriteCloser, error) {
	var wc io.WriteCloser
	err := b.rt.Block(ctx, func(ctx context.Context) error {
		var err error
		wc, err = b.inner.Writer(ctx, path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &blockingWriter{rt: b.rt, ctx: ctx, wc: wc}, nil
}

func (b *blockingAccessor) Delete(ctx context.Context, path string) error {
	return b.rt.Block(ctx, func(ctx context.Context) error {
		return b.inner.Delete(ctx, path)
	})
}

func (b *blockingAccessor) Close() error {
	c, ok := b.inner.(io.Closer)
	if !ok {
		return nil
	}
	return b.rt.Block(context.Background(), func(context.Context) error {
		return c.Close()
	})
}

type blockingReader struct {
	rt  *Runtime
	ctx context.Context
	rc  io.ReadCloser
}

func (r *blockingReader) Read(p []byte) (int, error) {
	var n int
	err := r.rt.Block(r.ctx, func(context.Context) error {
		var err error
		n, err = r.rc.Read(p)
		return err
	})
	return n, err
}

func (r *blockingReader) Close() error {
	return r.rt.Block(r.ctx, func(context.Context) error {
		return r.rc.Close()
	})
}

type blockingWriter struct {
	rt  *Runtime
	ctx context.Context
	wc  io.WriteCloser
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	var n int
	err := w.rt.Block(w.ctx, func(context.Context) error {
		var err error
		n, err = w.wc.Write(p)
		return err
	})
	return n, err
}

func (w *blockingWriter) Close() error {
	return w.rt.Block(w.ctx, func(context.Context) error {
		return w.wc.Close()
	})
}
