// Package shiplog turns leveled, structured logging calls into batched
// uploads to a remote collector. A Pipeline owns the intake channel, the
// processor goroutine and the level switch; Loggers are cheap named front
// ends over it.
package shiplog

import (
	"context"
	"io"
	"net"
	"os"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/lixenwraith/shiplog/client"
	"github.com/lixenwraith/shiplog/event"
	"github.com/lixenwraith/shiplog/formatter"
	"github.com/lixenwraith/shiplog/sanitizer"
)

// Delivery errors, re-exported for errors.Is checks
var (
	ErrDeliveryFailed        = client.ErrDeliveryFailed
	ErrLevelDirectiveInvalid = client.ErrLevelDirectiveInvalid
)

// Uploader ships a batch and reports the collector's level directive. An
// empty batch is a refresh request.
type Uploader interface {
	Upload(ctx context.Context, batch []*event.Event) (client.Result, error)
	Close() error
}

// DeliveryFailureHandler is called from the processor goroutine when a batch
// could not be delivered
type DeliveryFailureHandler func(err error, events int)

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithUploader replaces the HTTP client
func WithUploader(u Uploader) Option {
	return func(p *Pipeline) { p.uploader = u }
}

// WithClock sets the clock used for timestamps, timers and deadlines
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithDeliveryFailureHandler sets the hook for failed uploads
func WithDeliveryFailureHandler(fn DeliveryFailureHandler) Option {
	return func(p *Pipeline) { p.onFailure = fn }
}

// WithDiagnostics redirects internal diagnostics from stderr
func WithDiagnostics(w io.Writer) Option {
	return func(p *Pipeline) { p.diagnostics = w }
}

// WithStdoutWriter redirects the console mirror
func WithStdoutWriter(w io.Writer) Option {
	return func(p *Pipeline) { p.stdout = w }
}

// WithDial routes the default HTTP client through a custom dialer
func WithDial(dial func(addr string) (net.Conn, error)) Option {
	return func(p *Pipeline) { p.dial = dial }
}

// Pipeline is the shipping half of the logger: intake, batching, upload and
// remote level control
type Pipeline struct {
	cfg    *Config
	state  State
	levels *LevelSwitch
	clock  clockwork.Clock

	intakeMu sync.RWMutex // read: enqueue, write: close on shutdown

	uploader  Uploader
	dial      func(addr string) (net.Conn, error)
	onFailure DeliveryFailureHandler

	mirror *formatter.Formatter // nil unless enable_stdout
	stdout io.Writer

	diagMu      sync.Mutex
	diagnostics io.Writer

	done     chan struct{} // Closed when the processor exits
	drainErr error         // Final flush result, read after done
}

// New validates cfg and starts a pipeline. A missing server url returns
// ErrMissingServerURL and nothing is started.
func New(cfg *Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmtErrorf("configuration cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:         cfg.Clone(),
		clock:       clockwork.NewRealClock(),
		diagnostics: os.Stderr,
	}
	for _, opt := range opts {
		opt(p)
	}

	level, ok := p.cfg.level()
	if !ok {
		p.internalLog("invalid minimum_level '%s', using %s", p.cfg.MinimumLevel, level)
	}
	p.levels = NewLevelSwitch(level, p.cfg.heartbeatInterval())

	if p.uploader == nil {
		copts := p.cfg.clientOptions()
		copts.Diagnostics = p.internalLog
		if p.dial != nil {
			copts.Dial = p.dial
		}
		c, err := client.New(copts)
		if err != nil {
			return nil, fmtErrorf("failed to create client: %w", err)
		}
		p.uploader = c
	}

	if p.cfg.EnableStdout {
		p.mirror = formatter.New(mirrorSanitizer(p.cfg.StdoutFormat)).
			Type(p.cfg.StdoutFormat).
			TimestampFormat(p.cfg.TimestampFormat)
		if p.stdout == nil {
			if p.cfg.StdoutTarget == "stderr" {
				p.stdout = os.Stderr
			} else {
				p.stdout = os.Stdout
			}
		}
	}

	p.state.StartTime.Store(p.clock.Now())
	p.state.flushRequestChan = make(chan flushRequest)
	p.done = make(chan struct{})

	ch := make(chan logRecord, p.cfg.BufferSize)
	p.state.ActiveLogChannel.Store(ch)
	p.state.ProcessorExited.Store(false)
	go p.processEvents(ch)

	return p, nil
}

// NewFromFile loads the [shiplog] table of a TOML file and starts a pipeline
func NewFromFile(path string, opts ...Option) (*Pipeline, error) {
	cfg, err := NewConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// Logger returns a logger whose events carry category as SourceContext.
// An empty category adds no SourceContext.
func (p *Pipeline) Logger(category string) *Logger {
	return &Logger{category: category, p: p}
}

// LevelSwitch returns the switch shared by this pipeline's loggers
func (p *Pipeline) LevelSwitch() *LevelSwitch {
	return p.levels
}

// Config returns a copy of the active configuration
func (p *Pipeline) Config() *Config {
	return p.cfg.Clone()
}

func mirrorSanitizer(format string) *sanitizer.Sanitizer {
	switch format {
	case "json":
		return sanitizer.New().Policy(sanitizer.PolicyJSON)
	case "raw":
		return sanitizer.New().Policy(sanitizer.PolicyRaw)
	default:
		return sanitizer.New().Policy(sanitizer.PolicyTxt)
	}
}
