package dal

import "io"

// closer returns a function that closes c, discarding the error.
// Use for cleanup on paths that already carry a more relevant error.
func closer(c io.Closer) func() {
	return func() { _ = c.Close() }
}
