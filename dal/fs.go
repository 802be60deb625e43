package dal

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/justapithecus/cdal/internal/options"
)

// defaultBufferSize is the fs writer buffer when buffer_size is not set.
const defaultBufferSize = 256 * 1024

// -----------------------------------------------------------------------------
// Filesystem Accessor
// -----------------------------------------------------------------------------

// FSConfig configures the fs scheme.
type FSConfig struct {
	// Root is the directory all paths resolve under. Required.
	// It is created (with parents) if missing.
	Root string `json:"root"`

	// AtomicWriteDir, if set, stages writes in a temporary file inside this
	// directory and renames it into place on Close. It must live on the same
	// filesystem as Root.
	AtomicWriteDir string `json:"atomic_write_dir"`

	// BufferSize is the writer buffer in bytes. Zero selects the default.
	BufferSize int `json:"buffer_size,string"`
}

// fsAccessor implements Accessor using the local filesystem.
type fsAccessor struct {
	root      string
	atomicDir string
	bufSize   int
}

// NewFS creates a filesystem-backed Accessor.
//
// Consistency: Immediate read-after-write once a writer is closed.
func NewFS(cfg FSConfig) (Accessor, error) {
	if cfg.Root == "" {
		return nil, &ConfigError{Scheme: SchemeFS, Key: "root", Err: errors.New("required")}
	}
	if cfg.BufferSize < 0 {
		return nil, &ConfigError{Scheme: SchemeFS, Key: "buffer_size", Err: errors.New("must not be negative")}
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, &InitError{Scheme: SchemeFS, Err: err}
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &InitError{Scheme: SchemeFS, Err: err}
	}

	a := &fsAccessor{root: root, bufSize: cfg.BufferSize}
	if a.bufSize == 0 {
		a.bufSize = defaultBufferSize
	}
	if cfg.AtomicWriteDir != "" {
		dir, err := filepath.Abs(cfg.AtomicWriteDir)
		if err != nil {
			return nil, &InitError{Scheme: SchemeFS, Err: err}
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &InitError{Scheme: SchemeFS, Err: err}
		}
		a.atomicDir = dir
	}
	return a, nil
}

func newFSFromMap(m map[string]string) (Accessor, error) {
	var cfg FSConfig
	if err := options.Decode(m, &cfg); err != nil {
		return nil, &ConfigError{Scheme: SchemeFS, Err: err}
	}
	return NewFS(cfg)
}

func (f *fsAccessor) Info() Info {
	return Info{
		Scheme: SchemeFS,
		Root:   f.root,
		Capability: Capability{
			Read:     true,
			Write:    true,
			Stat:     true,
			Delete:   true,
			Blocking: true,
		},
	}
}

func (f *fsAccessor) Exists(_ context.Context, path string) (bool, error) {
	fullPath, err := f.safePathForFile(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(fullPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, classifyFSError(err)
}

func (f *fsAccessor) Reader(_ context.Context, path string, offset int64) (io.ReadCloser, error) {
	if offset < 0 {
		return nil, ErrInvalidPath
	}
	fullPath, err := f.safePathForFile(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, classifyFSError(err)
	}
	if info, err := file.Stat(); err == nil && info.IsDir() {
		_ = file.Close()
		return nil, ErrNotFound
	}
	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			_ = file.Close()
			return nil, classifyFSError(err)
		}
	}
	return file, nil
}

func (f *fsAccessor) Writer(_ context.Context, path string) (io.WriteCloser, error) {
	fullPath, err := f.safePathForFile(path)
	if err != nil {
		return nil, err
	}

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return nil, classifyFSError(err)
	}

	if f.atomicDir == "" {
		file, err := os.Create(fullPath)
		if err != nil {
			return nil, classifyFSError(err)
		}
		return &fsWriter{file: file, buf: bufio.NewWriterSize(file, f.bufSize)}, nil
	}

	tmp, err := os.CreateTemp(f.atomicDir, ".cdal-*")
	if err != nil {
		return nil, classifyFSError(err)
	}
	return &fsWriter{
		file:   tmp,
		buf:    bufio.NewWriterSize(tmp, f.bufSize),
		target: fullPath,
	}, nil
}

func (f *fsAccessor) Delete(_ context.Context, path string) error {
	fullPath, err := f.safePathForFile(path)
	if err != nil {
		return err
	}
	err = os.Remove(fullPath)
	if err != nil && os.IsNotExist(err) {
		return nil // idempotent
	}
	return classifyFSError(err)
}

// safePathForFile validates and resolves a file path, ensuring it stays within the root.
// A leading slash is treated as relative to the root. Rejects empty paths and
// paths that resolve to the root itself or escape it.
//
// Note: This does not prevent symlink escapes.
func (f *fsAccessor) safePathForFile(path string) (string, error) {
	trimmed := strings.TrimLeft(path, "/")
	if trimmed == "" || strings.HasSuffix(trimmed, "/") {
		return "", ErrInvalidPath
	}

	cleaned := filepath.Clean(filepath.FromSlash(trimmed))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}

	fullPath := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(fullPath, f.root+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return fullPath, nil
}

// fsWriter buffers writes to a file. With a target set, the file is a
// temporary that is renamed onto target on Close.
type fsWriter struct {
	file   *os.File
	buf    *bufio.Writer
	target string
	closed bool
}

func (w *fsWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	// bufio.Writer keeps its first error, so a failed write is never
	// temporary for this stream.
	n, err := w.buf.Write(p)
	return n, permanent(err)
}

func (w *fsWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	err := errors.Join(flushErr, closeErr)

	if w.target == "" {
		return classifyFSError(err)
	}
	if err != nil {
		_ = os.Remove(w.file.Name())
		return classifyFSError(err)
	}
	if err := os.Rename(w.file.Name(), w.target); err != nil {
		_ = os.Remove(w.file.Name())
		return classifyFSError(err)
	}
	return nil
}

// classifyFSError marks transient errno values as temporary.
func classifyFSError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EBUSY) {
		return Temporary(err)
	}
	return err
}
