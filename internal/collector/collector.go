// Package collector is a minimal bulk ingestion endpoint. It backs the
// collector command and the in-memory server used by pipeline tests.
package collector

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"github.com/valyala/fastjson"
)

const bulkPath = "/logging/bulk"

// Event is a decoded event from an upload
type Event struct {
	Timestamp       string
	Level           string
	MessageTemplate string
	Properties      map[string]any
	Exception       string
}

// Batch is one accepted upload
type Batch struct {
	ID     string
	APIKey string
	Events []Event
}

type failure struct {
	status int
	left   int
}

// Collector accepts bulk uploads and answers with a configurable level directive
type Collector struct {
	mu        sync.Mutex
	apiKey    string
	directive string
	failures  []failure
	batches   []Batch
	requests  int
	onBatch   func(Batch)
	notify    chan struct{}

	parser   fastjson.ParserPool
	zstdOnce sync.Once
	zstd     *zstd.Decoder
	zstdErr  error
}

// Option configures a Collector
type Option func(*Collector)

// WithAPIKey rejects uploads whose key does not match
func WithAPIKey(key string) Option {
	return func(c *Collector) { c.apiKey = key }
}

// WithDirective sets the response body returned for accepted uploads
func WithDirective(body string) Option {
	return func(c *Collector) { c.directive = body }
}

// WithBatchHandler is called for every accepted batch
func WithBatchHandler(fn func(Batch)) Option {
	return func(c *Collector) { c.onBatch = fn }
}

// New creates a collector
func New(opts ...Option) *Collector {
	c := &Collector{
		notify: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetDirective replaces the response body for subsequent uploads
func (c *Collector) SetDirective(body string) {
	c.mu.Lock()
	c.directive = body
	c.mu.Unlock()
}

// FailNext answers the next n requests with status
func (c *Collector) FailNext(status, n int) {
	c.mu.Lock()
	c.failures = append(c.failures, failure{status: status, left: n})
	c.mu.Unlock()
}

// Handler serves POST /logging/bulk
func (c *Collector) Handler(ctx *fasthttp.RequestCtx) {
	c.mu.Lock()
	c.requests++
	status := c.nextFailureLocked()
	c.mu.Unlock()

	if status != 0 {
		ctx.Error(fasthttp.StatusMessage(status), status)
		return
	}
	if string(ctx.Path()) != bulkPath {
		ctx.Error("not found", fasthttp.StatusNotFound)
		return
	}
	if !ctx.IsPost() {
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}

	key := string(ctx.Request.Header.Peek("X-API-Key"))
	if c.apiKey != "" && key != c.apiKey {
		ctx.Error("unauthorized", fasthttp.StatusUnauthorized)
		return
	}

	body, err := c.decodeBody(string(ctx.Request.Header.Peek(fasthttp.HeaderContentEncoding)), ctx.PostBody())
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusBadRequest)
		return
	}

	events, err := c.parseEvents(body)
	if err != nil {
		ctx.Error(fmt.Sprintf("invalid payload: %v", err), fasthttp.StatusBadRequest)
		return
	}

	batch := Batch{
		ID:     string(ctx.Request.Header.Peek("X-Batch-Id")),
		APIKey: key,
		Events: events,
	}

	c.mu.Lock()
	c.batches = append(c.batches, batch)
	directive := c.directive
	onBatch := c.onBatch
	c.mu.Unlock()

	if onBatch != nil {
		onBatch(batch)
	}
	select {
	case c.notify <- struct{}{}:
	default:
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	if directive != "" {
		ctx.SetContentType("application/json")
		ctx.SetBodyString(directive)
	}
}

func (c *Collector) nextFailureLocked() int {
	for len(c.failures) > 0 {
		f := &c.failures[0]
		if f.left <= 0 {
			c.failures = c.failures[1:]
			continue
		}
		f.left--
		return f.status
	}
	return 0
}

func (c *Collector) decodeBody(encoding string, body []byte) ([]byte, error) {
	switch encoding {
	case "":
		return body, nil
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "zstd":
		c.zstdOnce.Do(func() {
			c.zstd, c.zstdErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		})
		if c.zstdErr != nil {
			return nil, fmt.Errorf("zstd: %w", c.zstdErr)
		}
		return c.zstd.DecodeAll(body, nil)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

func (c *Collector) parseEvents(body []byte) ([]Event, error) {
	p := c.parser.Get()
	defer c.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, err
	}
	arr, err := v.Array()
	if err != nil {
		return nil, fmt.Errorf("expected array: %w", err)
	}

	events := make([]Event, 0, len(arr))
	for _, item := range arr {
		ev := Event{
			Timestamp:       string(item.GetStringBytes("timestamp")),
			Level:           string(item.GetStringBytes("level")),
			MessageTemplate: string(item.GetStringBytes("messageTemplate")),
			Exception:       string(item.GetStringBytes("exception")),
			Properties:      map[string]any{},
		}
		if props := item.GetObject("properties"); props != nil {
			props.Visit(func(k []byte, pv *fastjson.Value) {
				ev.Properties[string(k)] = toAny(pv)
			})
		}
		events = append(events, ev)
	}
	return events, nil
}

// toAny converts a parsed value to plain Go values; numbers become float64
func toAny(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		return v.GetFloat64()
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeArray:
		items := v.GetArray()
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = toAny(it)
		}
		return out
	case fastjson.TypeObject:
		out := map[string]any{}
		v.GetObject().Visit(func(k []byte, mv *fastjson.Value) {
			out[string(k)] = toAny(mv)
		})
		return out
	default:
		return nil
	}
}

// Batches returns a copy of accepted batches, including empty heartbeat batches
func (c *Collector) Batches() []Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Batch(nil), c.batches...)
}

// Events returns all accepted events in arrival order
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, b := range c.batches {
		out = append(out, b.Events...)
	}
	return out
}

// Requests counts all requests, including rejected ones
func (c *Collector) Requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

// Accepted is signaled after each accepted batch
func (c *Collector) Accepted() <-chan struct{} {
	return c.notify
}

// Serve runs the collector on ln until the returned stop function is called
func (c *Collector) Serve(ln net.Listener) (stop func() error) {
	srv := &fasthttp.Server{
		Handler: c.Handler,
		Name:    "shiplog-collector",
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ln)
	}()
	return func() error {
		err := srv.Shutdown()
		<-done
		if c.zstd != nil {
			c.zstd.Close()
		}
		return err
	}
}

// ServeInmemory runs the collector on an in-memory listener and returns a dial
// function for clients
func (c *Collector) ServeInmemory() (dial fasthttp.DialFunc, stop func() error) {
	ln := fasthttputil.NewInmemoryListener()
	stopServer := c.Serve(ln)
	dial = func(string) (net.Conn, error) {
		return ln.Dial()
	}
	return dial, stopServer
}
