// Package options decodes string option maps into typed configuration.
//
// Option maps arrive as map[string]string (from callers that only speak
// strings, such as the C façade). Each scheme declares a struct with json
// tags; non-string fields use the ",string" tag option so values such as
// "true" or "4096" decode into bool and int fields.
package options

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// json rejects keys that have no matching struct field.
var json = jsoniter.Config{
	EscapeHTML:            false,
	SortMapKeys:           true,
	DisallowUnknownFields: true,
}.Froze()

// ErrNilTarget indicates Decode was called with a nil destination.
var ErrNilTarget = errors.New("options: nil target")

// Decode fills the struct pointed to by v from m.
// Unknown keys and values that do not parse as the field type are errors.
// A nil or empty map leaves v untouched.
func Decode(m map[string]string, v any) error {
	if v == nil {
		return ErrNilTarget
	}
	if len(m) == 0 {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("options: encode: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("options: %w", err)
	}
	return nil
}

// Clone returns a shallow copy of m, so callers may keep the map they were
// given without aliasing it.
func Clone(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
