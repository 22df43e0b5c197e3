package shiplog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixenwraith/shiplog/client"
	"github.com/lixenwraith/shiplog/event"
)

// fakeUploader records batches and answers with a configurable result
type fakeUploader struct {
	mu      sync.Mutex
	batches [][]*event.Event
	times   []time.Time
	result  client.Result
	err     error
	clock   clockwork.Clock
	block   chan struct{} // when set, the next upload waits for it to close
	started atomic.Int32
	closed  atomic.Bool
}

func (u *fakeUploader) Upload(ctx context.Context, batch []*event.Event) (client.Result, error) {
	u.started.Add(1)

	u.mu.Lock()
	block := u.block
	u.block = nil
	u.mu.Unlock()
	if block != nil {
		<-block
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.batches = append(u.batches, batch)
	if u.clock != nil {
		u.times = append(u.times, u.clock.Now())
	}
	return u.result, u.err
}

func (u *fakeUploader) Close() error {
	u.closed.Store(true)
	return nil
}

func (u *fakeUploader) setResult(res client.Result, err error) {
	u.mu.Lock()
	u.result, u.err = res, err
	u.mu.Unlock()
}

// nonEmpty returns the uploaded batches that carried events
func (u *fakeUploader) nonEmpty() [][]*event.Event {
	u.mu.Lock()
	defer u.mu.Unlock()
	var out [][]*event.Event
	for _, b := range u.batches {
		if len(b) > 0 {
			out = append(out, b)
		}
	}
	return out
}

func (u *fakeUploader) heartbeats() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, b := range u.batches {
		if len(b) == 0 {
			n++
		}
	}
	return n
}

func (u *fakeUploader) events() []*event.Event {
	var out []*event.Event
	for _, b := range u.nonEmpty() {
		out = append(out, b...)
	}
	return out
}

// syncBuffer is a goroutine-safe diagnostics sink
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testConfig returns a small, fast configuration
func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.ServerURL = "http://collector.test"
	cfg.BufferSize = 100
	cfg.BatchSizeLimit = 10
	cfg.FlushPeriodMs = 100
	cfg.HeartbeatIntervalS = 1
	cfg.DrainTimeoutMs = 1000
	return cfg
}

// createTestPipeline starts a pipeline over a fake uploader and fake clock
func createTestPipeline(t *testing.T, cfg *Config, opts ...Option) (*Pipeline, *fakeUploader, *clockwork.FakeClock) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	fc := clockwork.NewFakeClock()
	up := &fakeUploader{clock: fc}

	opts = append([]Option{WithUploader(up), WithClock(fc)}, opts...)
	p, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(2 * time.Second) })

	return p, up, fc
}

// countingBag counts how often it is iterated
type countingBag struct {
	ranged atomic.Int32
}

func (b *countingBag) Range(fn func(key string, value any) bool) {
	b.ranged.Add(1)
	fn("Value", 1)
	fn(OriginalFormatKey, "Counted {Value}")
}

type panickyBag struct{}

func (panickyBag) Range(func(string, any) bool) {
	panic("broken bag")
}

type orderPlaced struct {
	OrderID int
	Total   float64
}

type checkout struct {
	Cart  []string
	Total float64
	token string
}

func TestLogGatedSkipsExtraction(t *testing.T) {
	p, up, _ := createTestPipeline(t, nil)
	logger := p.Logger("gate")
	ctx := context.Background()

	bag := &countingBag{}
	logger.Log(ctx, LevelDebug, EventID{}, bag, nil, nil)
	logger.Log(ctx, LevelTrace, EventID{}, bag, nil, nil)
	assert.Equal(t, int32(0), bag.ranged.Load(), "suppressed levels must not touch state")

	logger.Log(ctx, LevelInformation, EventID{}, bag, nil, nil)
	assert.Equal(t, int32(1), bag.ranged.Load())

	require.NoError(t, p.Flush(time.Second))
	events := up.events()
	require.Len(t, events, 1)
	assert.Equal(t, "Counted {Value}", events[0].MessageTemplate())
}

func TestDebugSuppressedAtInformation(t *testing.T) {
	p, up, _ := createTestPipeline(t, nil)
	logger := p.Logger("app")
	ctx := context.Background()

	assert.False(t, logger.IsEnabled(LevelDebug))
	assert.True(t, logger.IsEnabled(LevelInformation))

	logger.Debug(ctx, "hidden {N}", 1)
	require.NoError(t, p.Flush(time.Second))
	assert.Empty(t, up.events())

	logger.Info(ctx, "shown {N}", 2)
	require.NoError(t, p.Flush(time.Second))
	events := up.events()
	require.Len(t, events, 1)
	assert.Equal(t, LevelInformation, events[0].Level)
}

func TestBagExtraction(t *testing.T) {
	p, up, _ := createTestPipeline(t, nil)
	logger := p.Logger("orders")

	state := Pairs{
		{Key: "OrderId", Value: 42},
		{Key: "@Checkout", Value: checkout{Cart: []string{"a", "b"}, Total: 9.5, token: "secret"}},
		{Key: "$Raw", Value: []int{1, 2}},
		{Key: OriginalFormatKey, Value: "Order {OrderId} placed {@Checkout} {$Raw}"},
	}
	logger.Log(context.Background(), LevelWarning, EventID{}, state, nil, nil)
	require.NoError(t, p.Flush(time.Second))

	events := up.events()
	require.Len(t, events, 1)
	ev := events[0]

	assert.Equal(t, "Order {OrderId} placed {@Checkout} {$Raw}", ev.MessageTemplate())

	id, ok := ev.Property("OrderId")
	require.True(t, ok)
	assert.Equal(t, event.KindScalar, id.Kind())
	assert.Equal(t, 42, id.Any())

	co, ok := ev.Property("Checkout")
	require.True(t, ok)
	assert.Equal(t, event.KindStructure, co.Kind())
	assert.Equal(t, "checkout", co.TypeTag())
	cart, ok := co.Lookup("Cart")
	require.True(t, ok)
	assert.Len(t, cart.Items(), 2)
	_, hidden := co.Lookup("token")
	assert.False(t, hidden, "unexported fields are not captured")

	raw, ok := ev.Property("Raw")
	require.True(t, ok)
	assert.Equal(t, "[1 2]", raw.Any())

	src, ok := ev.Property(PropertySourceContext)
	require.True(t, ok)
	assert.Equal(t, "orders", src.Any())
}

func TestStateFallbacks(t *testing.T) {
	p, up, _ := createTestPipeline(t, nil)
	logger := p.Logger("")
	ctx := context.Background()

	format := func(state any, err error) string {
		if o, ok := state.(orderPlaced); ok {
			return fmt.Sprintf("order %d for %.2f", o.OrderID, o.Total)
		}
		return fmt.Sprintf("formatted: %v", err)
	}

	logger.Log(ctx, LevelInformation, EventID{}, orderPlaced{OrderID: 7, Total: 3.5}, nil, format)
	logger.Log(ctx, LevelInformation, EventID{}, &orderPlaced{OrderID: 8}, nil, nil)
	logger.Log(ctx, LevelInformation, EventID{}, "plain text", nil, nil)
	logger.Log(ctx, LevelInformation, EventID{}, nil, errors.New("boom"), format)
	logger.Log(ctx, LevelInformation, EventID{}, nil, nil, nil)
	require.NoError(t, p.Flush(time.Second))

	events := up.events()
	require.Len(t, events, 5)

	assert.Equal(t, "{orderPlaced:l}", events[0].MessageTemplate())
	v, _ := events[0].Property("orderPlaced")
	assert.Equal(t, "order 7 for 3.50", v.Any())

	assert.Equal(t, "{orderPlaced:l}", events[1].MessageTemplate(), "pointer states use the element type name")

	assert.Equal(t, "{State:l}", events[2].MessageTemplate())
	v, _ = events[2].Property(PropertyState)
	assert.Equal(t, "plain text", v.Any())

	assert.Equal(t, "{Message:l}", events[3].MessageTemplate())
	v, _ = events[3].Property(PropertyMessage)
	assert.Equal(t, "formatted: boom", v.Any())
	assert.EqualError(t, events[3].Exception, "boom")

	assert.Equal(t, "", events[4].MessageTemplate())
	_, ok := events[4].Property(PropertySourceContext)
	assert.False(t, ok, "unnamed loggers add no SourceContext")
}

func TestEventIDProperty(t *testing.T) {
	p, up, _ := createTestPipeline(t, nil)
	logger := p.Logger("ids")
	ctx := context.Background()

	logger.Log(ctx, LevelError, EventID{ID: 1001}, Msg("with id"), nil, nil)
	logger.Log(ctx, LevelError, EventID{Name: "Startup"}, Msg("with name"), nil, nil)
	logger.Log(ctx, LevelError, EventID{}, Msg("without"), nil, nil)
	require.NoError(t, p.Flush(time.Second))

	events := up.events()
	require.Len(t, events, 3)

	id, ok := events[0].Property(PropertyEventID)
	require.True(t, ok)
	require.Len(t, id.Properties(), 1)
	n, _ := id.Lookup("Id")
	assert.Equal(t, 1001, n.Any())

	named, ok := events[1].Property(PropertyEventID)
	require.True(t, ok)
	require.Len(t, named.Properties(), 1)
	name, _ := named.Lookup("Name")
	assert.Equal(t, "Startup", name.Any())

	_, ok = events[2].Property(PropertyEventID)
	assert.False(t, ok)
}

func TestConvenienceMethods(t *testing.T) {
	p, up, fc := createTestPipeline(t, nil)
	p.LevelSwitch().Update(LevelTrace, fc.Now())
	logger := p.Logger("conv")
	ctx := context.Background()

	logger.Trace(ctx, "t {A}", 1)
	logger.Debug(ctx, "d {A}", 2)
	logger.Info(ctx, "Processed {Count} items in {Elapsed}", 3, "5ms")
	logger.Warn(ctx, "w {A}", 4)
	logger.Error(ctx, errors.New("bad"), "e {A}", 5)
	logger.Critical(ctx, nil, "c {A}", 6)
	require.NoError(t, p.Flush(time.Second))

	events := up.events()
	require.Len(t, events, 6)

	levels := make([]Level, len(events))
	for i, ev := range events {
		levels[i] = ev.Level
	}
	assert.Equal(t, []Level{LevelTrace, LevelDebug, LevelInformation, LevelWarning, LevelError, LevelCritical}, levels)

	count, _ := events[2].Property("Count")
	assert.Equal(t, 3, count.Any())
	elapsed, _ := events[2].Property("Elapsed")
	assert.Equal(t, "5ms", elapsed.Any())
	assert.EqualError(t, events[4].Exception, "bad")
}

func TestExtractPanicRecovered(t *testing.T) {
	p, up, _ := createTestPipeline(t, nil)
	logger := p.Logger("safe")

	assert.NotPanics(t, func() {
		logger.Log(context.Background(), LevelError, EventID{}, panickyBag{}, nil, nil)
	})
	assert.NotPanics(t, func() {
		logger.Log(context.Background(), LevelError, EventID{}, nil, nil, func(any, error) string {
			panic("formatter")
		})
	})
	require.NoError(t, p.Flush(time.Second))

	events := up.events()
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, "{State:l}", ev.MessageTemplate())
		v, _ := ev.Property(PropertyState)
		assert.Contains(t, v.Any(), "PANIC")
	}
}

func TestScopePanicRecovered(t *testing.T) {
	p, up, _ := createTestPipeline(t, nil)
	logger := p.Logger("safe")

	ctx, bad := BeginScope(context.Background(), panickyBag{})
	ctx, good := BeginScope(ctx, KV("Tenant", "acme"))
	assert.NotPanics(t, func() { logger.Info(ctx, "hello") })
	good.Close()
	bad.Close()

	ctx, nilState := BeginScope(context.Background(), (*MessageState)(nil))
	assert.NotPanics(t, func() { logger.Info(ctx, "nil scope") })
	nilState.Close()
	require.NoError(t, p.Flush(time.Second))

	events := up.events()
	require.Len(t, events, 2, "events survive a broken scope")

	tenant, ok := events[0].Property("Tenant")
	require.True(t, ok, "later scopes still merge")
	assert.Equal(t, "acme", tenant.Any())

	for _, ev := range events {
		scope, ok := ev.Property(PropertyScope)
		require.True(t, ok)
		require.Len(t, scope.Items(), 1)
		assert.Contains(t, scope.Items()[0].Any(), "PANIC=scope")
	}
}

func TestInvalidLevelRejected(t *testing.T) {
	p, up, fc := createTestPipeline(t, nil)
	p.LevelSwitch().Update(LevelTrace, fc.Now())
	logger := p.Logger("levels")

	assert.False(t, logger.IsEnabled(Level(99)))
	assert.False(t, logger.IsEnabled(Level(-1)))
	assert.True(t, logger.IsEnabled(LevelCritical))

	logger.Log(context.Background(), Level(99), EventID{}, Msg("out of range"), nil, nil)
	logger.Log(context.Background(), LevelCritical, EventID{}, Msg("in range"), nil, nil)
	require.NoError(t, p.Flush(time.Second))

	events := up.events()
	require.Len(t, events, 1)
	assert.Equal(t, LevelCritical, events[0].Level)
}

func TestLoggerScopes(t *testing.T) {
	p, up, _ := createTestPipeline(t, nil)
	logger := p.Logger("scoped")

	ctx, outer := logger.BeginScope(context.Background(), KV("RequestId", "r-1", "Tenant", "acme"))
	ctx, inner := logger.BeginScope(ctx, Msg("Handling {Route}", "/orders"))
	logger.Info(ctx, "inside")
	inner.Close()
	logger.Info(ctx, "after inner")
	outer.Close()
	logger.Info(ctx, "outside")
	require.NoError(t, p.Flush(time.Second))

	events := up.events()
	require.Len(t, events, 3)

	route, ok := events[0].Property("Route")
	require.True(t, ok)
	assert.Equal(t, "/orders", route.Any())
	scope, ok := events[0].Property(PropertyScope)
	require.True(t, ok)
	require.Len(t, scope.Items(), 1)
	assert.Equal(t, "Handling /orders", scope.Items()[0].Any())

	_, ok = events[1].Property("Route")
	assert.False(t, ok)
	tenant, ok := events[1].Property("Tenant")
	require.True(t, ok)
	assert.Equal(t, "acme", tenant.Any())

	_, ok = events[2].Property("RequestId")
	assert.False(t, ok)
}
