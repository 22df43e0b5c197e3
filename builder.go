package shiplog

import "time"

// Builder provides a fluent API for building pipeline configurations.
// Errors are accumulated and reported by Build.
type Builder struct {
	cfg  *Config
	opts []Option
	err  error
}

// NewBuilder creates a new configuration builder with default values
func NewBuilder() *Builder {
	return &Builder{
		cfg: DefaultConfig(),
	}
}

// Build validates the configuration and starts a pipeline
func (b *Builder) Build() (*Pipeline, error) {
	if b.err != nil {
		return nil, b.err
	}
	return New(b.cfg.Clone(), b.opts...)
}

// Config returns a copy of the configuration built so far
func (b *Builder) Config() (*Config, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.cfg.Clone(), nil
}

// ServerURL sets the collector base url
func (b *Builder) ServerURL(url string) *Builder {
	b.cfg.ServerURL = url
	return b
}

// APIKey sets the key sent with every upload
func (b *Builder) APIKey(key string) *Builder {
	b.cfg.APIKey = key
	return b
}

// MinimumLevel sets the configured minimum level
func (b *Builder) MinimumLevel(level Level) *Builder {
	if b.err != nil {
		return b
	}
	if !level.Valid() {
		b.err = fmtErrorf("invalid minimum level: %v", level)
		return b
	}
	b.cfg.MinimumLevel = level.String()
	return b
}

// LevelString sets the configured minimum level from a name
func (b *Builder) LevelString(level string) *Builder {
	if b.err != nil {
		return b
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		b.err = err
		return b
	}
	b.cfg.MinimumLevel = lvl.String()
	return b
}

// BatchSizeLimit sets the number of events per upload
func (b *Builder) BatchSizeLimit(n int64) *Builder {
	b.cfg.BatchSizeLimit = n
	return b
}

// FlushPeriod sets the maximum age of a buffered batch
func (b *Builder) FlushPeriod(d time.Duration) *Builder {
	b.cfg.FlushPeriodMs = d.Milliseconds()
	return b
}

// HeartbeatInterval sets the override refresh interval
func (b *Builder) HeartbeatInterval(d time.Duration) *Builder {
	b.cfg.HeartbeatIntervalS = int64(d / time.Second)
	return b
}

// BufferSize sets the intake channel capacity
func (b *Builder) BufferSize(size int64) *Builder {
	b.cfg.BufferSize = size
	return b
}

// RequestTimeout sets the per-request deadline
func (b *Builder) RequestTimeout(d time.Duration) *Builder {
	b.cfg.RequestTimeoutMs = d.Milliseconds()
	return b
}

// DrainTimeout bounds the final flush on shutdown
func (b *Builder) DrainTimeout(d time.Duration) *Builder {
	b.cfg.DrainTimeoutMs = d.Milliseconds()
	return b
}

// Compression selects the request body encoding ("", "gzip" or "zstd")
func (b *Builder) Compression(codec string) *Builder {
	b.cfg.Compression = codec
	return b
}

// EnableStdout mirrors shipped events to stdout/stderr
func (b *Builder) EnableStdout(enable bool) *Builder {
	b.cfg.EnableStdout = enable
	return b
}

// InternalErrorsToStderr enables pipeline diagnostics on stderr
func (b *Builder) InternalErrorsToStderr(enable bool) *Builder {
	b.cfg.InternalErrorsToStderr = enable
	return b
}

// Override applies "key=value" overrides
func (b *Builder) Override(overrides ...string) *Builder {
	if b.err != nil {
		return b
	}
	b.err = b.cfg.ApplyOverride(overrides...)
	return b
}

// With adds pipeline options
func (b *Builder) With(opts ...Option) *Builder {
	b.opts = append(b.opts, opts...)
	return b
}

// Example usage:
// pipeline, err := shiplog.NewBuilder().
//
//	ServerURL("https://logs.example.com").
//	APIKey(key).
//	LevelString("debug").
//	BatchSizeLimit(500).
//	Build()
//
// if err == nil {
//
//	 defer pipeline.Shutdown()
//	 pipeline.Logger("app").Info(ctx, "Pipeline started")
//
// }
