package dal

import (
	"context"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compressor transforms object bytes on the way in and out of an accessor.
type Compressor interface {
	// Name identifies the format.
	Name() string

	// Extension is appended to every stored path (".gz", ".zst", "").
	Extension() string

	// Compress wraps w. Closing the returned writer flushes the frame but
	// does not close w.
	Compress(w io.Writer) (io.WriteCloser, error)

	// Decompress wraps r.
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// -----------------------------------------------------------------------------
// Gzip Compressor
// -----------------------------------------------------------------------------

type gzipCompressor struct{}

// NewGzipCompressor stores objects as gzip streams under a .gz suffix.
func NewGzipCompressor() Compressor { return gzipCompressor{} }

func (gzipCompressor) Name() string      { return "gzip" }
func (gzipCompressor) Extension() string { return ".gz" }

func (gzipCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

func (gzipCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// -----------------------------------------------------------------------------
// Zstd Compressor
// -----------------------------------------------------------------------------

type zstdCompressor struct{}

// NewZstdCompressor stores objects as Zstandard frames under a .zst suffix.
func NewZstdCompressor() Compressor { return zstdCompressor{} }

func (zstdCompressor) Name() string      { return "zstd" }
func (zstdCompressor) Extension() string { return ".zst" }

func (zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

func (zstdCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

// -----------------------------------------------------------------------------
// NoOp Compressor
// -----------------------------------------------------------------------------

type noopCompressor struct{}

// NewNoOpCompressor passes bytes through unchanged and keeps paths as given.
func NewNoOpCompressor() Compressor { return noopCompressor{} }

func (noopCompressor) Name() string      { return "noop" }
func (noopCompressor) Extension() string { return "" }

func (noopCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (noopCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// -----------------------------------------------------------------------------
// Compress layer
// -----------------------------------------------------------------------------

// NewCompressLayer stores every object through c at path+c.Extension().
// Readers opened at a non-zero offset decode from the start of the object
// and discard offset bytes of plain data.
func NewCompressLayer(c Compressor) Layer {
	return LayerFunc(func(inner Accessor) Accessor {
		return &compressAccessor{inner: inner, c: c}
	})
}

type compressAccessor struct {
	inner Accessor
	c     Compressor
}

func (a *compressAccessor) Info() Info { return a.inner.Info() }

func (a *compressAccessor) Exists(ctx context.Context, path string) (bool, error) {
	return a.inner.Exists(ctx, path+a.c.Extension())
}

func (a *compressAccessor) Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	if offset < 0 {
		return nil, ErrInvalidPath
	}
	raw, err := a.inner.Reader(ctx, path+a.c.Extension(), 0)
	if err != nil {
		return nil, err
	}
	dec, err := a.c.Decompress(raw)
	if err != nil {
		closer(raw)()
		return nil, err
	}
	if offset > 0 {
		if _, err := io.CopyN(io.Discard, dec, offset); err != nil && err != io.EOF {
			closer(dec)()
			closer(raw)()
			return nil, err
		}
	}
	return &compressReader{dec: dec, raw: raw}, nil
}

func (a *compressAccessor) Writer(ctx context.Context, path string) (io.WriteCloser, error) {
	raw, err := a.inner.Writer(ctx, path+a.c.Extension())
	if err != nil {
		return nil, err
	}
	enc, err := a.c.Compress(raw)
	if err != nil {
		closer(raw)()
		return nil, err
	}
	return &compressWriter{enc: enc, raw: raw}, nil
}

func (a *compressAccessor) Delete(ctx context.Context, path string) error {
	return a.inner.Delete(ctx, path+a.c.Extension())
}

func (a *compressAccessor) Close() error {
	if c, ok := a.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type compressReader struct {
	dec io.ReadCloser
	raw io.ReadCloser
}

func (r *compressReader) Read(p []byte) (int, error) { return r.dec.Read(p) }

func (r *compressReader) Close() error {
	decErr := r.dec.Close()
	if err := r.raw.Close(); err != nil {
		return err
	}
	return decErr
}

type compressWriter struct {
	enc io.WriteCloser
	raw io.WriteCloser
}

func (w *compressWriter) Write(p []byte) (int, error) { return w.enc.Write(p) }

// Close finishes the frame before committing the underlying object.
func (w *compressWriter) Close() error {
	if err := w.enc.Close(); err != nil {
		closer(w.raw)()
		return err
	}
	return w.raw.Close()
}
