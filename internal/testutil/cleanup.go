// Package testutil provides helpers for examples and tests.
package testutil

import (
	"os"

	"github.com/google/uuid"
)

// RemoveAll removes the path and any children. Errors are ignored.
// Use for defer cleanup of files written under shared roots.
//
// Usage:
//
//	defer testutil.RemoveAll(filepath.Join(capi.DefaultRoot, name))
func RemoveAll(path string) { _ = os.RemoveAll(path) }

// UniqueName returns a random object name with the given suffix, for tests
// that write under a root shared with other processes.
func UniqueName(suffix string) string { return uuid.NewString() + suffix }

// Pattern returns n deterministic, non-repeating-at-short-period bytes.
func Pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/251)
	}
	return b
}

// CString returns a pointer to a NUL-terminated copy of s.
func CString(s string) *byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return &b[0]
}
