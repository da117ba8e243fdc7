package sidecargo

import (
	"runtime"

	"golang.org/x/time/rate"

	"github.com/hupe1980/sidecargo/codec"
	"github.com/hupe1980/sidecargo/migrate"
	"github.com/hupe1980/sidecargo/sidecar"
)

type options struct {
	logger          *Logger
	codec           codec.Codec
	signature       sidecar.PipelineSignature
	registry        *migrate.Registry
	producerVersion string
	concurrency     int
	ioLimiter       *rate.Limiter
	include         []string
	exclude         []string
	extensions      []string
	progress        ProgressListener
}

func defaultOptions() options {
	return options{
		logger:          NoopLogger(),
		codec:           codec.Default,
		signature:       sidecar.NewSignature(Version),
		registry:        migrate.DefaultRegistry(),
		producerVersion: Version,
		concurrency:     runtime.NumCPU(),
		extensions:      defaultExtensions,
		progress:        noopProgress{},
	}
}

// Option configures Store construction.
type Option func(*options)

// WithLogger sets the structured logger. The default discards all output.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCodec configures the codec used for sidecar records.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithSignature sets the current pipeline signature records are verified
// against. The default carries the current schema version and this
// library's version.
func WithSignature(sig sidecar.PipelineSignature) Option {
	return func(o *options) {
		o.signature = sig
	}
}

// WithRegistry sets the migration registry. The default registry holds
// the built-in schema upgrades.
func WithRegistry(r *migrate.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithProducerVersion sets the version string stamped onto records this
// store migrates.
func WithProducerVersion(v string) Option {
	return func(o *options) {
		o.producerVersion = v
	}
}

// WithConcurrency bounds the number of files processed in parallel
// during batch walks. Values below 1 fall back to the CPU count.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.concurrency = n
		}
	}
}

// WithIORateLimit throttles batch reads to roughly bytesPerSec across
// all workers. Zero disables throttling (the default).
func WithIORateLimit(bytesPerSec int64) Option {
	return func(o *options) {
		if bytesPerSec > 0 {
			o.ioLimiter = rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))
		}
	}
}

// WithInclude restricts batch walks to files matching at least one of
// the given glob patterns (doublestar syntax, matched against the path
// relative to the walk root). Include patterns replace the default
// extension filter.
func WithInclude(patterns ...string) Option {
	return func(o *options) {
		o.include = patterns
	}
}

// WithExclude skips files matching any of the given glob patterns during
// batch walks. Exclusion is applied before inclusion.
func WithExclude(patterns ...string) Option {
	return func(o *options) {
		o.exclude = patterns
	}
}

// WithExtensions replaces the default extension filter used when no
// include patterns are set. Extensions are lowercase, without the dot.
func WithExtensions(exts ...string) Option {
	return func(o *options) {
		if len(exts) > 0 {
			o.extensions = exts
		}
	}
}

// WithProgress registers a listener for per-file progress events during
// batch walks.
func WithProgress(l ProgressListener) Option {
	return func(o *options) {
		if l != nil {
			o.progress = l
		}
	}
}
