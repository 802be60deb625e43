// Package dal provides path-level data access over pluggable storage schemes.
//
// An Operator wraps an Accessor (one per scheme) and exposes existence checks,
// sequential readers and writers, and deletes. Behavior such as retries,
// logging, compression, and synchronous execution on a shared worker pool is
// added by stacking Layers on top of the base accessor.
//
// Dal focuses on moving bytes. It does not implement listing, seeking, or
// metadata management.
package dal

import (
	"context"
	"io"
)

// -----------------------------------------------------------------------------
// Core types
// -----------------------------------------------------------------------------

// Scheme identifies the storage backend an operator binds to.
type Scheme string

// Built-in schemes. Additional schemes register themselves through Register.
const (
	SchemeFS     Scheme = "fs"
	SchemeMemory Scheme = "memory"
	SchemeS3     Scheme = "s3"
)

// String returns the scheme tag.
func (s Scheme) String() string { return string(s) }

// Capability describes which operations an accessor supports natively.
type Capability struct {
	// Read reports support for Reader.
	Read bool

	// Write reports support for Writer.
	Write bool

	// Stat reports support for Exists.
	Stat bool

	// Delete reports support for Delete.
	Delete bool

	// Blocking reports whether the accessor may be driven by a caller that is
	// not attached to a Runtime. Accessors that run background tasks for their
	// streams report false and must be wrapped with NewBlockingLayer before
	// use from synchronous code.
	Blocking bool
}

// Info is an accessor's self-description.
type Info struct {
	// Scheme is the backend tag.
	Scheme Scheme

	// Root is the backend-specific root (directory, key prefix).
	Root string

	// Name is the backend-specific container name (bucket), if any.
	Name string

	// Capability lists supported operations.
	Capability Capability
}

// -----------------------------------------------------------------------------
// Accessor interface
// -----------------------------------------------------------------------------

// Accessor is the contract every scheme implements.
//
// Paths are forward-slash separated and relative to the accessor root. A
// leading slash is ignored. Implementations must be safe for concurrent use
// by distinct streams; a single stream is not safe for concurrent use.
type Accessor interface {
	// Info describes the accessor.
	Info() Info

	// Exists reports whether path names an existing object.
	Exists(ctx context.Context, path string) (bool, error)

	// Reader opens path for sequential reading starting at offset.
	// Returns ErrNotFound if path does not exist.
	Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error)

	// Writer opens path for writing, truncating any existing object.
	// Parent directories are created as needed. Data becomes visible to
	// readers once Close returns successfully.
	Writer(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes path. Deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error
}

// -----------------------------------------------------------------------------
// Layer interface
// -----------------------------------------------------------------------------

// Layer wraps an Accessor with additional behavior.
type Layer interface {
	// Apply returns an Accessor that decorates inner.
	Apply(inner Accessor) Accessor
}

// LayerFunc adapts a function to the Layer interface.
type LayerFunc func(inner Accessor) Accessor

// Apply calls f(inner).
func (f LayerFunc) Apply(inner Accessor) Accessor { return f(inner) }
