package dal

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/justapithecus/cdal/internal/options"
)

// -----------------------------------------------------------------------------
// Memory Accessor
// -----------------------------------------------------------------------------

// MemoryConfig configures the memory scheme.
type MemoryConfig struct {
	// Root is an optional key prefix.
	Root string `json:"root"`
}

// memoryAccessor implements Accessor using an in-memory map.
type memoryAccessor struct {
	root string

	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an in-memory Accessor.
//
// Consistency: Immediate once a writer is closed.
// Memory is safe for concurrent use.
func NewMemory(cfg MemoryConfig) Accessor {
	root := strings.Trim(cfg.Root, "/")
	if root != "" {
		root += "/"
	}
	return &memoryAccessor{
		root: root,
		data: make(map[string][]byte),
	}
}

func newMemoryFromMap(m map[string]string) (Accessor, error) {
	var cfg MemoryConfig
	if err := options.Decode(m, &cfg); err != nil {
		return nil, &ConfigError{Scheme: SchemeMemory, Err: err}
	}
	return NewMemory(cfg), nil
}

func (m *memoryAccessor) Info() Info {
	return Info{
		Scheme: SchemeMemory,
		Root:   "/" + m.root,
		Capability: Capability{
			Read:     true,
			Write:    true,
			Stat:     true,
			Delete:   true,
			Blocking: true,
		},
	}
}

func (m *memoryAccessor) Exists(_ context.Context, p string) (bool, error) {
	key, valid := m.key(p)
	if !valid {
		return false, ErrInvalidPath
	}

	m.mu.RLock()
	_, exists := m.data[key]
	m.mu.RUnlock()

	return exists, nil
}

func (m *memoryAccessor) Reader(_ context.Context, p string, offset int64) (io.ReadCloser, error) {
	key, valid := m.key(p)
	if !valid || offset < 0 {
		return nil, ErrInvalidPath
	}

	m.mu.RLock()
	data, exists := m.data[key]
	m.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	// Stored slices are never mutated after commit, so sharing is safe.
	return io.NopCloser(bytes.NewReader(data[offset:])), nil
}

func (m *memoryAccessor) Writer(_ context.Context, p string) (io.WriteCloser, error) {
	key, valid := m.key(p)
	if !valid {
		return nil, ErrInvalidPath
	}
	return &memoryWriter{store: m, key: key}, nil
}

func (m *memoryAccessor) Delete(_ context.Context, p string) error {
	key, valid := m.key(p)
	if !valid {
		return ErrInvalidPath
	}

	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()

	return nil
}

func (m *memoryAccessor) key(p string) (string, bool) {
	cleaned, valid := normalizePathForFile(p)
	if !valid {
		return "", false
	}
	return m.root + cleaned, true
}

// memoryWriter accumulates bytes and commits them on Close.
type memoryWriter struct {
	store  *memoryAccessor
	key    string
	buf    bytes.Buffer
	closed bool
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	return w.buf.Write(p)
}

func (w *memoryWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	w.store.mu.Lock()
	w.store.data[w.key] = w.buf.Bytes()
	w.store.mu.Unlock()
	return nil
}

// normalizePathForFile cleans a slash-separated path and rejects empty,
// root-only, directory-style and escaping paths.
func normalizePathForFile(p string) (string, bool) {
	if p == "" || strings.HasSuffix(p, "/") {
		return "", false
	}

	cleaned := path.Clean("/" + p)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", false
	}

	// path.Clean("/"+p) already folds leading "..", so also reject the raw form.
	raw := path.Clean(strings.TrimLeft(p, "/"))
	if raw == ".." || strings.HasPrefix(raw, "../") {
		return "", false
	}

	return cleaned, true
}
