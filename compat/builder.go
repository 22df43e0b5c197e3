package compat

import (
	"fmt"

	"github.com/lixenwraith/shiplog"
)

// Category is the logger name used when the builder creates its own logger
const Category = "compat"

// Builder creates gnet and fasthttp adapters over a shared logger. It can
// use an existing *shiplog.Logger or start a pipeline from a *shiplog.Config.
type Builder struct {
	logger   *shiplog.Logger
	cfg      *shiplog.Config
	opts     []shiplog.Option
	pipeline *shiplog.Pipeline // Owned only when the builder started it
	err      error
}

// NewBuilder creates a new adapter builder
func NewBuilder() *Builder {
	return &Builder{}
}

// WithLogger specifies an existing logger to use for the adapters.
// If this is set WithConfig is ignored.
func (b *Builder) WithLogger(l *shiplog.Logger) *Builder {
	if l == nil {
		b.err = fmt.Errorf("shiplog/compat: provided logger cannot be nil")
		return b
	}
	b.logger = l
	return b
}

// WithConfig provides a configuration for a new pipeline, used only when no
// logger was provided
func (b *Builder) WithConfig(cfg *shiplog.Config, opts ...shiplog.Option) *Builder {
	b.cfg = cfg
	b.opts = opts
	return b
}

// getLogger resolves the logger to be used, starting a pipeline if necessary
func (b *Builder) getLogger() (*shiplog.Logger, error) {
	if b.err != nil {
		return nil, b.err
	}

	if b.logger != nil {
		return b.logger, nil
	}

	if b.cfg == nil {
		return nil, fmt.Errorf("shiplog/compat: a logger or a config with server_url is required")
	}

	p, err := shiplog.New(b.cfg, b.opts...)
	if err != nil {
		return nil, err
	}

	// Cache for subsequent builds with this builder
	b.pipeline = p
	b.logger = p.Logger(Category)
	return b.logger, nil
}

// BuildGnet creates a gnet adapter
func (b *Builder) BuildGnet(opts ...GnetOption) (*GnetAdapter, error) {
	l, err := b.getLogger()
	if err != nil {
		return nil, err
	}
	return NewGnetAdapter(l, opts...), nil
}

// BuildStructuredGnet creates a gnet adapter that captures "key=%v" pairs
// as event properties
func (b *Builder) BuildStructuredGnet(opts ...GnetOption) (*StructuredGnetAdapter, error) {
	l, err := b.getLogger()
	if err != nil {
		return nil, err
	}
	return NewStructuredGnetAdapter(l, opts...), nil
}

// BuildFastHTTP creates a fasthttp adapter
func (b *Builder) BuildFastHTTP(opts ...FastHTTPOption) (*FastHTTPAdapter, error) {
	l, err := b.getLogger()
	if err != nil {
		return nil, err
	}
	return NewFastHTTPAdapter(l, opts...), nil
}

// GetLogger returns the underlying logger, starting a pipeline if needed
func (b *Builder) GetLogger() (*shiplog.Logger, error) {
	return b.getLogger()
}

// Shutdown stops the pipeline the builder started. It is a no-op for
// loggers supplied through WithLogger.
func (b *Builder) Shutdown() error {
	if b.pipeline == nil {
		return nil
	}
	return b.pipeline.Shutdown()
}

// --- Example Usage ---
//
//	pipeline, err := shiplog.NewBuilder().
//		ServerURL("https://logs.example.com").
//		LevelString("debug").
//		Build()
//	if err != nil { /* handle error */ }
//	defer pipeline.Shutdown()
//
//	builder := compat.NewBuilder().WithLogger(pipeline.Logger("net"))
//
//	gnetLogger, _ := builder.BuildGnet()
//	go gnet.Run(events, "tcp://:9000", gnet.WithLogger(gnetLogger))
//
//	fasthttpLogger, _ := builder.BuildFastHTTP()
//	server := &fasthttp.Server{Handler: handler, Logger: fasthttpLogger}
//	go server.ListenAndServe(":8080")
