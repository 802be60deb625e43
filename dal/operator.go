package dal

import (
	"context"
	"io"
	"sync/atomic"
)

// -----------------------------------------------------------------------------
// Operator
// -----------------------------------------------------------------------------

// Operator is a configured accessor plus its layers.
//
// An Operator is safe for concurrent use; the streams it returns are not.
type Operator struct {
	acc    Accessor
	closed *atomic.Bool
}

// NewOperator wraps acc without any layers.
func NewOperator(acc Accessor) *Operator {
	return &Operator{acc: acc, closed: new(atomic.Bool)}
}

// Layer returns a new operator whose accessor is l applied to op's accessor.
// The receiver is left unchanged.
func (op *Operator) Layer(l Layer) *Operator {
	return &Operator{acc: l.Apply(op.acc), closed: op.closed}
}

// Info describes the outermost accessor.
func (op *Operator) Info() Info { return op.acc.Info() }

// Accessor returns the outermost accessor.
func (op *Operator) Accessor() Accessor { return op.acc }

// Exists reports whether path exists.
func (op *Operator) Exists(ctx context.Context, path string) (bool, error) {
	if err := op.check(op.Info().Capability.Stat); err != nil {
		return false, err
	}
	return op.acc.Exists(ctx, path)
}

// Reader opens path for sequential reading from the start.
func (op *Operator) Reader(ctx context.Context, path string) (*Reader, error) {
	if err := op.check(op.Info().Capability.Read); err != nil {
		return nil, err
	}
	rc, err := op.acc.Reader(ctx, path, 0)
	if err != nil {
		return nil, err
	}
	return &Reader{rc: rc}, nil
}

// Writer opens path for writing. The object is committed when the writer is
// closed.
func (op *Operator) Writer(ctx context.Context, path string) (*Writer, error) {
	if err := op.check(op.Info().Capability.Write); err != nil {
		return nil, err
	}
	wc, err := op.acc.Writer(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Writer{wc: wc}, nil
}

// Delete removes path. Deleting a missing path is not an error.
func (op *Operator) Delete(ctx context.Context, path string) error {
	if err := op.check(op.Info().Capability.Delete); err != nil {
		return err
	}
	return op.acc.Delete(ctx, path)
}

// Blocking returns a synchronous view of op.
// Returns ErrBlockingUnsupported if the accessor is not blocking; attach a
// blocking layer first (Build does this automatically).
func (op *Operator) Blocking() (*BlockingOperator, error) {
	if !op.Info().Capability.Blocking {
		return nil, ErrBlockingUnsupported
	}
	return &BlockingOperator{op: op}, nil
}

// Close releases the operator. Accessors that hold resources implement
// io.Closer; the call is forwarded to them. Streams already opened remain
// usable until they are closed. Close is idempotent.
func (op *Operator) Close() error {
	if !op.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c, ok := op.acc.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (op *Operator) check(supported bool) error {
	if op.closed.Load() {
		return ErrClosed
	}
	if !supported {
		return ErrUnsupported
	}
	return nil
}

// -----------------------------------------------------------------------------
// Streams
// -----------------------------------------------------------------------------

// Reader reads an object sequentially.
type Reader struct {
	rc     io.ReadCloser
	closed bool
}

// Read implements io.Reader. At end of stream it returns 0, io.EOF.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	return r.rc.Read(p)
}

// Close releases the stream. It is idempotent.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.rc.Close()
}

// Writer writes an object sequentially.
type Writer struct {
	wc     io.WriteCloser
	closed bool
}

// Write writes all of p or returns an error.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	written := 0
	for written < len(p) {
		n, err := w.wc.Write(p[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}

// Close flushes buffered data and commits the object. It is idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.wc.Close()
}

// -----------------------------------------------------------------------------
// BlockingOperator
// -----------------------------------------------------------------------------

// BlockingOperator is the synchronous view of an Operator, for callers that
// carry no context. Each call blocks until the backend operation completes.
type BlockingOperator struct {
	op *Operator
}

// Operator returns the underlying operator.
func (b *BlockingOperator) Operator() *Operator { return b.op }

// Info describes the outermost accessor.
func (b *BlockingOperator) Info() Info { return b.op.Info() }

// Exists reports whether path exists.
func (b *BlockingOperator) Exists(path string) (bool, error) {
	return b.op.Exists(context.Background(), path)
}

// Reader opens path for sequential reading from the start.
func (b *BlockingOperator) Reader(path string) (*Reader, error) {
	return b.op.Reader(context.Background(), path)
}

// Writer opens path for writing.
func (b *BlockingOperator) Writer(path string) (*Writer, error) {
	return b.op.Writer(context.Background(), path)
}

// Delete removes path.
func (b *BlockingOperator) Delete(path string) error {
	return b.op.Delete(context.Background(), path)
}

// Close releases the operator.
func (b *BlockingOperator) Close() error { return b.op.Close() }
