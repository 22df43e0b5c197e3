package compat

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/panjf2000/gnet/v2/pkg/logging"

	"github.com/lixenwraith/shiplog"
)

var _ logging.Logger = (*GnetAdapter)(nil)

// messageTemplate renders the preformatted text verbatim
const messageTemplate = "{Message:l}"

// GnetAdapter ships gnet engine logs through a shiplog.Logger
type GnetAdapter struct {
	logger       *shiplog.Logger
	fatalHandler func(msg string) // Customizable fatal behavior
}

// NewGnetAdapter creates a new gnet-compatible logger adapter
func NewGnetAdapter(logger *shiplog.Logger, opts ...GnetOption) *GnetAdapter {
	adapter := &GnetAdapter{
		logger: logger,
		fatalHandler: func(msg string) {
			os.Exit(1) // Default behavior matches gnet expectations
		},
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

// GnetOption allows customizing adapter behavior
type GnetOption func(*GnetAdapter)

// WithFatalHandler sets a custom fatal handler
func WithFatalHandler(handler func(string)) GnetOption {
	return func(a *GnetAdapter) {
		a.fatalHandler = handler
	}
}

func (a *GnetAdapter) write(level shiplog.Level, format string, args []any, extra ...any) {
	if !a.logger.IsEnabled(level) {
		return
	}
	kv := append([]any{
		shiplog.OriginalFormatKey, messageTemplate,
		"Message", fmt.Sprintf(format, args...),
		"Source", "gnet",
	}, extra...)
	a.logger.Log(context.Background(), level, shiplog.EventID{}, shiplog.KV(kv...), nil, nil)
}

// Debugf logs at debug level with printf-style formatting
func (a *GnetAdapter) Debugf(format string, args ...any) {
	a.write(shiplog.LevelDebug, format, args)
}

// Infof logs at information level with printf-style formatting
func (a *GnetAdapter) Infof(format string, args ...any) {
	a.write(shiplog.LevelInformation, format, args)
}

// Warnf logs at warning level with printf-style formatting
func (a *GnetAdapter) Warnf(format string, args ...any) {
	a.write(shiplog.LevelWarning, format, args)
}

// Errorf logs at error level with printf-style formatting
func (a *GnetAdapter) Errorf(format string, args ...any) {
	a.write(shiplog.LevelError, format, args)
}

// Fatalf logs at critical level, ships what is buffered, and triggers the fatal handler
func (a *GnetAdapter) Fatalf(format string, args ...any) {
	a.write(shiplog.LevelCritical, format, args, "Fatal", true)

	if p := a.logger.Pipeline(); p != nil {
		_ = p.Flush(time.Second)
	}

	if a.fatalHandler != nil {
		a.fatalHandler(fmt.Sprintf(format, args...))
	}
}
