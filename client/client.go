// Package client uploads event batches to the remote collector and reads back
// the collector's minimum level directive.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fastjson"

	"github.com/lixenwraith/shiplog/event"
	"github.com/lixenwraith/shiplog/formatter"
)

// BulkPath is appended to the server url for batch uploads
const BulkPath = "/logging/bulk"

// Request headers
const (
	HeaderAPIKey  = "X-API-Key"
	HeaderBatchID = "X-Batch-Id"
)

const (
	defaultTimeout  = 10 * time.Second
	maxErrorBodyLen = 256
)

// RetryPolicy decides which failed attempts are re-sent
type RetryPolicy struct {
	// Attempts is the total number of sends, including the first
	Attempts int
	// Statuses lists the HTTP status codes that are retried
	Statuses []int
	// RetryTransport also retries connection and timeout failures
	RetryTransport bool
	Delay          time.Duration
}

// NotFoundRetryPolicy retries a batch once when the collector answers 404.
// Other statuses and transport failures fail on the first attempt.
func NotFoundRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 2, Statuses: []int{fasthttp.StatusNotFound}}
}

func (p RetryPolicy) retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return slices.Contains(p.Statuses, se.Code)
	}
	return p.RetryTransport
}

// Options configures a Client
type Options struct {
	ServerURL   string
	APIKey      string
	Timeout     time.Duration
	Compression string // "", "gzip" or "zstd"
	Retry       RetryPolicy
	// Dial overrides connection setup; used to reach in-memory listeners
	Dial fasthttp.DialFunc
	// Diagnostics receives retry and directive notices
	Diagnostics func(format string, args ...any)
}

// Result describes an accepted upload
type Result struct {
	BatchID    string
	StatusCode int
	Attempts   int
	// Level is the suggested minimum when HasDirective is set and DirectiveErr is nil
	Level        event.Level
	HasDirective bool
	DirectiveErr error
}

// Client posts batches to <server>/logging/bulk
type Client struct {
	opts     Options
	endpoint string
	http     *fasthttp.Client
	parser   fastjson.ParserPool

	mu        sync.Mutex // guards formatter and encoder buffers
	formatter *formatter.Formatter
	encoder   *encoder
}

// New validates options and creates a client
func New(opts Options) (*Client, error) {
	server := strings.TrimRight(strings.TrimSpace(opts.ServerURL), "/")
	if server == "" {
		return nil, fmt.Errorf("client: server url is required")
	}
	if !strings.HasPrefix(server, "http://") && !strings.HasPrefix(server, "https://") {
		return nil, fmt.Errorf("client: server url must be http or https: %s", opts.ServerURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Retry.Attempts < 1 {
		opts.Retry.Attempts = 1
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = func(string, ...any) {}
	}

	enc, err := newEncoder(opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	hc := &fasthttp.Client{
		Name:                "shiplog",
		ReadTimeout:         opts.Timeout,
		WriteTimeout:        opts.Timeout,
		MaxIdleConnDuration: time.Minute,
	}
	if opts.Dial != nil {
		hc.Dial = opts.Dial
	}

	return &Client{
		opts:      opts,
		endpoint:  server + BulkPath,
		http:      hc,
		formatter: formatter.New(),
		encoder:   enc,
	}, nil
}

// Endpoint returns the bulk upload url
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Upload sends one batch. An empty batch is a valid heartbeat request. A
// non-success status, after the retry policy is exhausted, returns a
// *DeliveryError. A directive that cannot be parsed is reported in
// Result.DirectiveErr and does not fail the upload.
func (c *Client) Upload(ctx context.Context, batch []*event.Event) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := Result{BatchID: uuid.NewString()}

	payload := c.formatter.EncodeBatch(batch)
	body, err := c.encoder.encode(payload)
	if err != nil {
		return res, &DeliveryError{BatchID: res.BatchID, Err: fmt.Errorf("encode body: %w", err)}
	}

	var respBody []byte
	err = retry.New(
		retry.Context(ctx),
		retry.Attempts(uint(c.opts.Retry.Attempts)),
		retry.Delay(c.opts.Retry.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(c.opts.Retry.retryable),
		retry.OnRetry(func(n uint, err error) {
			c.opts.Diagnostics("retrying batch %s (attempt %d): %v\n", res.BatchID, n+2, err)
		}),
	).Do(func() error {
		res.Attempts++
		status, b, sendErr := c.send(ctx, res.BatchID, body)
		res.StatusCode = status
		respBody = b
		return sendErr
	})
	if err != nil {
		return res, &DeliveryError{
			BatchID:    res.BatchID,
			StatusCode: res.StatusCode,
			Attempts:   res.Attempts,
			Err:        err,
		}
	}

	p := c.parser.Get()
	res.Level, res.HasDirective, res.DirectiveErr = parseDirective(p, respBody)
	c.parser.Put(p)

	if res.DirectiveErr != nil {
		c.opts.Diagnostics("ignoring level directive for batch %s: %v\n", res.BatchID, res.DirectiveErr)
	}
	return res, nil
}

// send performs a single POST, returning the status and a copy of the body
func (c *Client) send(ctx context.Context, batchID string, body []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set(HeaderBatchID, batchID)
	if c.opts.APIKey != "" {
		req.Header.Set(HeaderAPIKey, c.opts.APIKey)
	}
	if c.opts.Compression != CompressNone {
		req.Header.Set(fasthttp.HeaderContentEncoding, c.opts.Compression)
	}
	req.SetBodyRaw(body)

	deadline := time.Now().Add(c.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, fmt.Errorf("send: %w", err)
	}

	status := resp.StatusCode()
	respBody := append([]byte(nil), resp.Body()...)
	if status < 200 || status > 299 {
		text := string(respBody)
		if len(text) > maxErrorBodyLen {
			text = text[:maxErrorBodyLen]
		}
		return status, nil, &StatusError{Code: status, Body: strings.TrimSpace(text)}
	}
	return status, respBody, nil
}

// Close releases idle connections and the compression encoder
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encoder.close()
}

// InmemoryDial adapts a listener Dial method to fasthttp.DialFunc
func InmemoryDial(dial func() (net.Conn, error)) fasthttp.DialFunc {
	return func(string) (net.Conn, error) {
		return dial()
	}
}
