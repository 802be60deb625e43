package dal

import (
	"errors"
	"sync"

	"github.com/justapithecus/cdal/internal/options"
)

// Factory constructs an Accessor from a string option map.
//
// Factories return *ConfigError for option maps that are invalid for the
// scheme and *InitError when the backend refuses to construct. Any other
// error is reported to callers as an InitError.
type Factory func(options map[string]string) (Accessor, error)

var (
	registryMu sync.RWMutex
	registry   = map[Scheme]Factory{
		SchemeFS:     newFSFromMap,
		SchemeMemory: newMemoryFromMap,
	}
)

// Register makes a scheme available to ViaMap and Build. Registering a
// scheme twice replaces the earlier factory. It is intended to be called
// from package init functions of adapter packages.
func Register(scheme Scheme, factory Factory) {
	if factory == nil {
		panic("dal: Register factory is nil for scheme " + string(scheme))
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[scheme] = factory
}

// Registered reports whether scheme has a factory.
func Registered(scheme Scheme) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[scheme]
	return ok
}

// ViaMap constructs a bare operator (no layers) for scheme from an option map.
func ViaMap(scheme Scheme, opts map[string]string) (*Operator, error) {
	registryMu.RLock()
	factory, ok := registry[scheme]
	registryMu.RUnlock()
	if !ok {
		return nil, &ConfigError{Scheme: scheme, Err: ErrUnknownScheme}
	}

	acc, err := factory(options.Clone(opts))
	if err != nil {
		var cfgErr *ConfigError
		var initErr *InitError
		if errors.As(err, &cfgErr) || errors.As(err, &initErr) {
			return nil, err
		}
		return nil, &InitError{Scheme: scheme, Err: err}
	}
	return NewOperator(acc), nil
}
