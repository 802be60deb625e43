// Package capi implements the handle façade behind the exported C symbols.
//
// Every function here takes and returns plain Go pointers and raw memory; the
// cgo layer in cmd/libcdal only converts between these and C handles. Opening
// a stream builds a fresh operator; freeing the stream closes both.
//
// Preconditions that the C caller must uphold (non-null paths, handles and
// buffers, UTF-8 paths) are enforced by panicking, with one exception kept
// for compatibility: ReaderRead reports a nil handle or buffer as -1.
package capi

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"unicode/utf8"
	"unsafe"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/justapithecus/cdal/dal"
	_ "github.com/justapithecus/cdal/dal/s3" // registers the s3 scheme
	"github.com/justapithecus/cdal/internal/options"
)

// DefaultRoot is the fs root used by the exported C symbols.
const DefaultRoot = "/tmp/opendal/"

var logger = log.NewWithOptions(os.Stderr, log.Options{
	Prefix:          "cdal",
	ReportTimestamp: true,
	Level:           log.WarnLevel,
})

// Facade opens streams on operators built from a fixed scheme and option
// map. It is safe for concurrent use.
type Facade struct {
	scheme  dal.Scheme
	options map[string]string
	build   []dal.BuildOption
}

// NewFacade returns a façade that builds operators for scheme from the
// option map opts, applying the build options in order.
func NewFacade(scheme dal.Scheme, opts map[string]string, build ...dal.BuildOption) *Facade {
	return &Facade{
		scheme:  scheme,
		options: options.Clone(opts),
		build:   append([]dal.BuildOption{dal.WithLogger(logger)}, build...),
	}
}

// Default is the façade behind the exported C symbols.
var Default = NewFacade(dal.SchemeFS, map[string]string{"root": DefaultRoot})

// Writer is an open write stream and the operator that owns it.
type Writer struct {
	op *dal.BlockingOperator
	w  *dal.Writer
}

// Reader is an open read stream and the operator that owns it.
type Reader struct {
	op *dal.BlockingOperator
	r  *dal.Reader
}

// -----------------------------------------------------------------------------
// Open
// -----------------------------------------------------------------------------

// OpenWriter opens a writer on Default.
func OpenWriter(path *byte) *Writer { return Default.OpenWriter(path) }

// OpenReader opens a reader on Default.
func OpenReader(path *byte) *Reader { return Default.OpenReader(path) }

// OpenWriter builds an operator and opens path for writing. It returns nil
// when the operator or the writer cannot be created. A nil or non-UTF-8 path
// panics.
func (f *Facade) OpenWriter(path *byte) *Writer {
	p := mustPath(path)

	op, err := f.operator()
	if err != nil {
		logger.Debug("open writer", "scheme", f.scheme, "path", p, "err", err)
		return nil
	}
	w, err := op.Writer(p)
	if err != nil {
		logger.Debug("open writer", "scheme", f.scheme, "path", p, "err", err)
		closeQuietly(op)
		return nil
	}
	return &Writer{op: op, w: w}
}

// OpenReader builds an operator and opens path for reading. It returns nil
// when path does not exist or on any failure. A nil or non-UTF-8 path
// panics.
func (f *Facade) OpenReader(path *byte) *Reader {
	p := mustPath(path)

	op, err := f.operator()
	if err != nil {
		logger.Debug("open reader", "scheme", f.scheme, "path", p, "err", err)
		return nil
	}
	exists, err := op.Exists(p)
	if err != nil || !exists {
		logger.Debug("open reader", "scheme", f.scheme, "path", p, "exists", exists, "err", err)
		closeQuietly(op)
		return nil
	}
	r, err := op.Reader(p)
	if err != nil {
		logger.Debug("open reader", "scheme", f.scheme, "path", p, "err", err)
		closeQuietly(op)
		return nil
	}
	return &Reader{op: op, r: r}
}

func (f *Facade) operator() (*dal.BlockingOperator, error) {
	return dal.Build(context.Background(), f.scheme, f.options, f.build...)
}

// -----------------------------------------------------------------------------
// Free
// -----------------------------------------------------------------------------

// FreeWriter flushes and commits w, then releases its operator. Failures are
// logged; the handle is gone either way. A nil w panics.
func FreeWriter(w *Writer) {
	if w == nil {
		panic("capi: FreeWriter called with nil writer")
	}
	if err := errors.Join(w.w.Close(), w.op.Close()); err != nil {
		logger.Warn("free writer", "err", err)
	}
}

// FreeReader closes r and releases its operator. A nil r panics.
func FreeReader(r *Reader) {
	if r == nil {
		panic("capi: FreeReader called with nil reader")
	}
	if err := errors.Join(r.r.Close(), r.op.Close()); err != nil {
		logger.Warn("free reader", "err", err)
	}
}

// -----------------------------------------------------------------------------
// Stream I/O
// -----------------------------------------------------------------------------

// WriterWrite appends n bytes at data to w. It returns n, or -1 if the
// bytes could not be written or n does not fit the result. A nil w or data
// panics. The buffer is not retained.
func WriterWrite(w *Writer, data unsafe.Pointer, n uintptr) int {
	if data == nil {
		panic("capi: WriterWrite called with nil data")
	}
	if w == nil {
		panic("capi: WriterWrite called with nil writer")
	}
	if n == 0 {
		return 0
	}
	if n > math.MaxInt {
		logger.Warn("write", "bytes", uint64(n), "err", "length out of range")
		return -1
	}

	buf := unsafe.Slice((*byte)(data), n)
	if _, err := w.w.Write(buf); err != nil {
		logger.Warn("write", "bytes", n, "err", err)
		return -1
	}
	return int(n)
}

// ReaderRead fills up to n bytes at data from r's current position. It
// returns the number of bytes stored, which is less than n only at end of
// stream, or -1 on failure or when n does not fit the result. A nil r or
// data returns -1.
func ReaderRead(r *Reader, data unsafe.Pointer, n uintptr) int {
	if r == nil || data == nil {
		return -1
	}
	if n == 0 {
		return 0
	}
	if n > math.MaxInt {
		return -1
	}

	buf := unsafe.Slice((*byte)(data), n)
	got, err := io.ReadFull(r.r, buf)
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return got
	default:
		logger.Warn("read", "bytes", got, "err", err)
		return -1
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// mustPath converts a NUL-terminated C string to a Go string.
func mustPath(p *byte) string {
	if p == nil {
		panic("capi: path is nil")
	}
	s := unix.BytePtrToString(p)
	if !utf8.ValidString(s) {
		panic("capi: path is not valid UTF-8")
	}
	return s
}

func closeQuietly(c io.Closer) { _ = c.Close() }
