package compat

import (
	"context"
	"fmt"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/lixenwraith/shiplog"
)

var _ fasthttp.Logger = (*FastHTTPAdapter)(nil)

// FastHTTPAdapter ships fasthttp server logs through a shiplog.Logger
type FastHTTPAdapter struct {
	logger        *shiplog.Logger
	defaultLevel  shiplog.Level
	levelDetector func(string) (shiplog.Level, bool) // Detects level from message content
}

// NewFastHTTPAdapter creates a new fasthttp-compatible logger adapter
func NewFastHTTPAdapter(logger *shiplog.Logger, opts ...FastHTTPOption) *FastHTTPAdapter {
	adapter := &FastHTTPAdapter{
		logger:        logger,
		defaultLevel:  shiplog.LevelInformation,
		levelDetector: DetectLogLevel,
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

// FastHTTPOption allows customizing adapter behavior
type FastHTTPOption func(*FastHTTPAdapter)

// WithDefaultLevel sets the level used when detection finds nothing
func WithDefaultLevel(level shiplog.Level) FastHTTPOption {
	return func(a *FastHTTPAdapter) {
		a.defaultLevel = level
	}
}

// WithLevelDetector sets a custom function to detect log level from message content
func WithLevelDetector(detector func(string) (shiplog.Level, bool)) FastHTTPOption {
	return func(a *FastHTTPAdapter) {
		a.levelDetector = detector
	}
}

// Printf implements fasthttp's Logger interface
func (a *FastHTTPAdapter) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	level := a.defaultLevel
	if a.levelDetector != nil {
		if detected, ok := a.levelDetector(msg); ok {
			level = detected
		}
	}
	if !a.logger.IsEnabled(level) {
		return
	}

	a.logger.Log(context.Background(), level, shiplog.EventID{}, shiplog.KV(
		shiplog.OriginalFormatKey, messageTemplate,
		"Message", msg,
		"Source", "fasthttp",
	), nil, nil)
}

// DetectLogLevel guesses a level from message keywords
func DetectLogLevel(msg string) (shiplog.Level, bool) {
	msgLower := strings.ToLower(msg)

	if strings.Contains(msgLower, "panic") || strings.Contains(msgLower, "fatal") {
		return shiplog.LevelCritical, true
	}

	if strings.Contains(msgLower, "error") || strings.Contains(msgLower, "failed") {
		return shiplog.LevelError, true
	}

	if strings.Contains(msgLower, "warn") || strings.Contains(msgLower, "deprecated") {
		return shiplog.LevelWarning, true
	}

	if strings.Contains(msgLower, "debug") {
		return shiplog.LevelDebug, true
	}

	if strings.Contains(msgLower, "trace") {
		return shiplog.LevelTrace, true
	}

	return shiplog.LevelInformation, false
}
