package dal

import (
	"context"
	"errors"
	"io"

	"github.com/charmbracelet/log"
)

// -----------------------------------------------------------------------------
// Logging layer
// -----------------------------------------------------------------------------

// NewLoggingLayer logs every accessor call to logger. Successful calls and
// ErrNotFound are logged at debug level; other failures at warn. Streams log
// once when they are closed, with the number of bytes moved.
//
// A nil logger uses log.Default().
func NewLoggingLayer(logger *log.Logger) Layer {
	if logger == nil {
		logger = log.Default()
	}
	return LayerFunc(func(inner Accessor) Accessor {
		return &loggingAccessor{
			inner:  inner,
			logger: logger.With("scheme", inner.Info().Scheme),
		}
	})
}

type loggingAccessor struct {
	inner  Accessor
	logger *log.Logger
}

func (l *loggingAccessor) record(op, path string, err error, kv ...any) {
	kv = append([]any{"op", op, "path", path}, kv...)
	switch {
	case err == nil:
		l.logger.Debug("dal", kv...)
	case errors.Is(err, ErrNotFound) || errors.Is(err, io.EOF):
		l.logger.Debug("dal", append(kv, "err", err)...)
	default:
		l.logger.Warn("dal", append(kv, "err", err)...)
	}
}

func (l *loggingAccessor) Info() Info { return l.inner.Info() }

func (l *loggingAccessor) Exists(ctx context.Context, path string) (bool, error) {
	ok, err := l.inner.Exists(ctx, path)
	l.record("exists", path, err, "exists", ok)
	return ok, err
}

func (l *loggingAccessor) Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	rc, err := l.inner.Reader(ctx, path, offset)
	l.record("reader", path, err, "offset", offset)
	if err != nil {
		return nil, err
	}
	return &loggingReader{acc: l, path: path, rc: rc}, nil
}

func (l *loggingAccessor) Writer(ctx context.Context, path string) (io.WriteCloser, error) {
	wc, err := l.inner.Writer(ctx, path)
	l.record("writer", path, err)
	if err != nil {
		return nil, err
	}
	return &loggingWriter{acc: l, path: path, wc: wc}, nil
}

func (l *loggingAccessor) Delete(ctx context.Context, path string) error {
	err := l.inner.Delete(ctx, path)
	l.record("delete", path, err)
	return err
}

func (l *loggingAccessor) Close() error {
	if c, ok := l.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type loggingReader struct {
	acc   *loggingAccessor
	path  string
	rc    io.ReadCloser
	bytes int64
}

func (r *loggingReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	r.bytes += int64(n)
	if err != nil && err != io.EOF {
		r.acc.record("read", r.path, err, "bytes", r.bytes)
	}
	return n, err
}

func (r *loggingReader) Close() error {
	err := r.rc.Close()
	r.acc.record("read.close", r.path, err, "bytes", r.bytes)
	return err
}

type loggingWriter struct {
	acc   *loggingAccessor
	path  string
	wc    io.WriteCloser
	bytes int64
}

func (w *loggingWriter) Write(p []byte) (int, error) {
	n, err := w.wc.Write(p)
	w.bytes += int64(n)
	if err != nil {
		w.acc.record("write", w.path, err, "bytes", w.bytes)
	}
	return n, err
}

func (w *loggingWriter) Close() error {
	err := w.wc.Close()
	w.acc.record("write.close", w.path, err, "bytes", w.bytes)
	return err
}
