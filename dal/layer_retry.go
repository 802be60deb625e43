package dal

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry defaults: exponential backoff with jitter, bounded attempts.
const (
	DefaultRetryMaxRetries      = 3
	DefaultRetryInitialInterval = time.Second
	DefaultRetryMaxInterval     = 60 * time.Second
	DefaultRetryMultiplier      = 2.0
	DefaultRetryJitter          = 0.5
)

// -----------------------------------------------------------------------------
// Retry configuration
// -----------------------------------------------------------------------------

type retryConfig struct {
	maxRetries uint64
	initial    time.Duration
	maxDelay   time.Duration
	multiplier float64
	jitter     float64
	notify     func(err error, next time.Duration)
}

// RetryOption configures NewRetryLayer.
type RetryOption func(*retryConfig)

// WithMaxRetries bounds the number of retries after the first attempt.
func WithMaxRetries(n uint64) RetryOption {
	return func(c *retryConfig) { c.maxRetries = n }
}

// WithInitialInterval sets the delay before the first retry.
func WithInitialInterval(d time.Duration) RetryOption {
	return func(c *retryConfig) { c.initial = d }
}

// WithMaxInterval caps the delay between retries.
func WithMaxInterval(d time.Duration) RetryOption {
	return func(c *retryConfig) { c.maxDelay = d }
}

// WithMultiplier sets the growth factor between delays.
func WithMultiplier(f float64) RetryOption {
	return func(c *retryConfig) { c.multiplier = f }
}

// WithJitter sets the randomization factor applied to each delay (0 disables).
func WithJitter(f float64) RetryOption {
	return func(c *retryConfig) { c.jitter = f }
}

// WithRetryNotify registers a callback invoked before each retry.
func WithRetryNotify(fn func(err error, next time.Duration)) RetryOption {
	return func(c *retryConfig) { c.notify = fn }
}

// -----------------------------------------------------------------------------
// Retry layer
// -----------------------------------------------------------------------------

// NewRetryLayer retries operations whose errors are marked temporary (see
// Temporary). Other errors are returned immediately. Readers that fail
// mid-stream are re-opened at the offset already consumed; writers resume
// with the bytes not yet accepted.
func NewRetryLayer(opts ...RetryOption) Layer {
	cfg := retryConfig{
		maxRetries: DefaultRetryMaxRetries,
		initial:    DefaultRetryInitialInterval,
		maxDelay:   DefaultRetryMaxInterval,
		multiplier: DefaultRetryMultiplier,
		jitter:     DefaultRetryJitter,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return LayerFunc(func(inner Accessor) Accessor {
		return &retryAccessor{inner: inner, cfg: cfg}
	})
}

type retryAccessor struct {
	inner Accessor
	cfg   retryConfig
}

// do runs op until it succeeds, fails permanently, the attempts are spent,
// or ctx is done.
func (r *retryAccessor) do(ctx context.Context, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.cfg.initial
	eb.MaxInterval = r.cfg.maxDelay
	eb.Multiplier = r.cfg.multiplier
	eb.RandomizationFactor = r.cfg.jitter
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, r.cfg.maxRetries), ctx)
	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !IsTemporary(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, r.cfg.notify)
}

func (r *retryAccessor) Info() Info { return r.inner.Info() }

func (r *retryAccessor) Exists(ctx context.Context, path string) (bool, error) {
	var ok bool
	err := r.do(ctx, func() error {
		var err error
		ok, err = r.inner.Exists(ctx, path)
		return err
	})
	return ok, err
}

func (r *retryAccessor) Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := r.do(ctx, func() error {
		var err error
		rc, err = r.inner.Reader(ctx, path, offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &retryReader{acc: r, ctx: ctx, path: path, offset: offset, rc: rc}, nil
}

func (r *retryAccessor) Writer(ctx context.Context, path string) (io.WriteCloser, error) {
	var wc io.WriteCloser
	err := r.do(ctx, func() error {
		var err error
		wc, err = r.inner.Writer(ctx, path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &retryWriter{acc: r, ctx: ctx, wc: wc}, nil
}

func (r *retryAccessor) Delete(ctx context.Context, path string) error {
	return r.do(ctx, func() error { return r.inner.Delete(ctx, path) })
}

func (r *retryAccessor) Close() error {
	if c, ok := r.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// retryReader re-opens the underlying stream at the current offset after a
// temporary failure.
type retryReader struct {
	acc    *retryAccessor
	ctx    context.Context
	path   string
	offset int64
	rc     io.ReadCloser
}

func (r *retryReader) Read(p []byte) (int, error) {
	var n int
	err := r.acc.do(r.ctx, func() error {
		if r.rc == nil {
			rc, err := r.acc.inner.Reader(r.ctx, r.path, r.offset)
			if err != nil {
				return err
			}
			r.rc = rc
		}
		var err error
		n, err = r.rc.Read(p)
		r.offset += int64(n)
		if err != nil && IsTemporary(err) {
			_ = r.rc.Close()
			r.rc = nil
			if n > 0 {
				// Deliver what arrived; the next Read re-opens.
				return nil
			}
		}
		return err
	})
	return n, err
}

func (r *retryReader) Close() error {
	if r.rc == nil {
		return nil
	}
	err := r.rc.Close()
	r.rc = nil
	return err
}

// retryWriter resumes writes with the unaccepted remainder of p.
type retryWriter struct {
	acc *retryAccessor
	ctx context.Context
	wc  io.WriteCloser
}

func (w *retryWriter) Write(p []byte) (int, error) {
	written := 0
	err := w.acc.do(w.ctx, func() error {
		n, err := w.wc.Write(p[written:])
		written += n
		return err
	})
	return written, err
}

func (w *retryWriter) Close() error {
	return w.wc.Close()
}
