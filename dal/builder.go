package dal

import (
	"context"

	"github.com/charmbracelet/log"
)

// -----------------------------------------------------------------------------
// Build options
// -----------------------------------------------------------------------------

type buildConfig struct {
	retry      []RetryOption
	logger     *log.Logger
	compressor Compressor
}

// BuildOption configures Build.
type BuildOption func(*buildConfig)

// WithRetry overrides the retry layer defaults.
func WithRetry(opts ...RetryOption) BuildOption {
	return func(c *buildConfig) { c.retry = append(c.retry, opts...) }
}

// WithLogger sets the logger used by the logging layer.
// The default is log.Default().
func WithLogger(l *log.Logger) BuildOption {
	return func(c *buildConfig) { c.logger = l }
}

// WithCompressor stores objects through c. The compress layer sits directly
// on the base accessor; outer layers see the caller's paths.
func WithCompressor(c Compressor) BuildOption {
	return func(cfg *buildConfig) { cfg.compressor = c }
}

// -----------------------------------------------------------------------------
// Build
// -----------------------------------------------------------------------------

// Build constructs a synchronous operator for scheme.
//
// The base operator comes from the scheme registry (see ViaMap). A retry
// layer and a logging layer are attached. If the accessor is not natively
// blocking, a blocking layer bound to the runtime ctx is attached to, or to
// DefaultRuntime when ctx carries none, is attached last.
//
// Invalid option maps yield *ConfigError; backends that refuse to construct
// yield *InitError.
func Build(ctx context.Context, scheme Scheme, options map[string]string, opts ...BuildOption) (*BlockingOperator, error) {
	var cfg buildConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	op, err := ViaMap(scheme, options)
	if err != nil {
		return nil, err
	}
	if cfg.compressor != nil {
		op = op.Layer(NewCompressLayer(cfg.compressor))
	}
	op = op.Layer(NewRetryLayer(cfg.retry...)).
		Layer(NewLoggingLayer(cfg.logger))

	if !op.Info().Capability.Blocking {
		rt, ok := RuntimeFromContext(ctx)
		if !ok {
			rt = DefaultRuntime()
		}
		ectx, guard := rt.Enter(ctx)
		layer, err := NewBlockingLayer(ectx)
		guard.Release()
		if err != nil {
			closer(op)()
			return nil, err
		}
		op = op.Layer(layer)
	}

	return op.Blocking()
}
