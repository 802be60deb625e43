package dal

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Sentinel errors
// -----------------------------------------------------------------------------

// Error sentinel values for common conditions.
var (
	// ErrNotFound indicates a requested path does not exist.
	ErrNotFound = errNotFound{}

	// ErrInvalidPath indicates an empty path or one that escapes the root.
	ErrInvalidPath = errors.New("invalid path: escapes storage root")

	// ErrUnsupported indicates the accessor does not advertise the operation.
	ErrUnsupported = errors.New("operation not supported")

	// ErrClosed indicates use of a stream or operator after Close.
	ErrClosed = errors.New("already closed")

	// ErrNoRuntime indicates an operation that needs a Runtime was invoked
	// from a context that is not attached to one.
	ErrNoRuntime = errors.New("no runtime in context")

	// ErrBlockingUnsupported indicates Blocking was requested on an operator
	// whose accessor is not blocking and carries no blocking layer.
	ErrBlockingUnsupported = errors.New("accessor does not support blocking use")

	// ErrUnknownScheme indicates a scheme with no registered factory.
	ErrUnknownScheme = errors.New("unknown scheme")
)

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

// -----------------------------------------------------------------------------
// Construction errors
// -----------------------------------------------------------------------------

// ConfigError reports an option map that is invalid for its scheme.
type ConfigError struct {
	Scheme Scheme
	// Key is the offending option, if a single one is at fault.
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: config: %s: %v", e.Scheme, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: config: %v", e.Scheme, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// InitError reports a backend that refused to construct.
type InitError struct {
	Scheme Scheme
	Err    error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%s: init: %v", e.Scheme, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Temporary errors
// -----------------------------------------------------------------------------

// temporaryError marks an error as safe to retry.
type temporaryError struct {
	err error
}

func (e *temporaryError) Error() string   { return e.err.Error() }
func (e *temporaryError) Unwrap() error   { return e.err }
func (e *temporaryError) Temporary() bool { return true }

// Temporary marks err as retryable. A nil err stays nil.
func Temporary(err error) error {
	if err == nil || IsTemporary(err) {
		return err
	}
	return &temporaryError{err: err}
}

// permanentError hides the Temporary method of the errors it wraps.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string   { return e.err.Error() }
func (e *permanentError) Unwrap() error   { return e.err }
func (e *permanentError) Temporary() bool { return false }

// permanent marks err as not retryable, even when it wraps an errno that
// reports itself temporary. A nil err stays nil.
func permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsTemporary reports whether the outermost error in err's chain that has a
// Temporary method reports true.
func IsTemporary(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}
