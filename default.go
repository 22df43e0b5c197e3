package shiplog

import (
	"sync/atomic"
	"time"
)

// Global pipeline for package-level functions
var defaultPipeline atomic.Pointer[Pipeline]

// Init starts the default pipeline. A previously installed default is shut
// down after the new one is in place.
func Init(cfg *Config, opts ...Option) error {
	p, err := New(cfg, opts...)
	if err != nil {
		return err
	}
	if old := defaultPipeline.Swap(p); old != nil {
		_ = old.Shutdown()
	}
	return nil
}

// InitFromFile starts the default pipeline from the [shiplog] table of a TOML file
func InitFromFile(path string, opts ...Option) error {
	cfg, err := NewConfigFromFile(path)
	if err != nil {
		return err
	}
	return Init(cfg, opts...)
}

// InitWithDefaults starts the default pipeline from built-in defaults and
// "key=value" overrides
func InitWithDefaults(overrides ...string) error {
	cfg := DefaultConfig()
	if err := cfg.ApplyOverride(overrides...); err != nil {
		return err
	}
	return Init(cfg)
}

// Default returns the default pipeline, or nil before Init
func Default() *Pipeline {
	return defaultPipeline.Load()
}

// For returns a logger on the default pipeline. Before Init the logger
// discards everything.
func For(category string) *Logger {
	return &Logger{category: category, p: defaultPipeline.Load()}
}

// Flush ships the default pipeline's buffered events
func Flush(timeout time.Duration) error {
	p := defaultPipeline.Load()
	if p == nil {
		return fmtErrorf("default pipeline not initialized")
	}
	return p.Flush(timeout)
}

// Shutdown stops the default pipeline and clears it
func Shutdown(timeout ...time.Duration) error {
	p := defaultPipeline.Swap(nil)
	if p == nil {
		return nil
	}
	return p.Shutdown(timeout...)
}
