package compat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixenwraith/shiplog"
	"github.com/lixenwraith/shiplog/client"
	"github.com/lixenwraith/shiplog/event"
)

// recordingUploader keeps every shipped event
type recordingUploader struct {
	mu     sync.Mutex
	events []*event.Event
}

func (u *recordingUploader) Upload(_ context.Context, batch []*event.Event) (client.Result, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.events = append(u.events, batch...)
	return client.Result{StatusCode: 200}, nil
}

func (u *recordingUploader) Close() error { return nil }

func (u *recordingUploader) all() []*event.Event {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]*event.Event(nil), u.events...)
}

// createTestCompatBuilder starts a Debug-level pipeline over a recording uploader
func createTestCompatBuilder(t *testing.T) (*Builder, *shiplog.Pipeline, *recordingUploader) {
	t.Helper()
	up := &recordingUploader{}
	p, err := shiplog.NewBuilder().
		ServerURL("http://collector.test").
		LevelString("debug").
		With(shiplog.WithUploader(up)).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(time.Second) })

	return NewBuilder().WithLogger(p.Logger("net")), p, up
}

// flushed ships pending events and returns everything recorded
func flushed(t *testing.T, p *shiplog.Pipeline, up *recordingUploader) []*event.Event {
	t.Helper()
	require.NoError(t, p.Flush(time.Second))
	return up.all()
}

func prop(t *testing.T, ev *event.Event, name string) any {
	t.Helper()
	v, ok := ev.Property(name)
	require.True(t, ok, "missing property %s", name)
	return v.Any()
}

func TestCompatBuilder(t *testing.T) {
	t.Run("with existing logger", func(t *testing.T) {
		builder, _, _ := createTestCompatBuilder(t)

		gnetAdapter, err := builder.BuildGnet()
		require.NoError(t, err)
		l, err := builder.GetLogger()
		require.NoError(t, err)
		assert.Same(t, l, gnetAdapter.logger)
		assert.NoError(t, builder.Shutdown(), "supplied loggers are not owned")
	})

	t.Run("with config", func(t *testing.T) {
		cfg := shiplog.DefaultConfig()
		cfg.ServerURL = "http://collector.test"
		builder := NewBuilder().WithConfig(cfg, shiplog.WithUploader(&recordingUploader{}))

		fasthttpAdapter, err := builder.BuildFastHTTP()
		require.NoError(t, err)
		assert.Equal(t, Category, fasthttpAdapter.logger.Category())

		gnetAdapter, err := builder.BuildGnet()
		require.NoError(t, err)
		assert.Same(t, fasthttpAdapter.logger, gnetAdapter.logger, "pipeline is created once")

		require.NoError(t, builder.Shutdown())
	})

	t.Run("errors", func(t *testing.T) {
		_, err := NewBuilder().WithLogger(nil).BuildGnet()
		assert.Error(t, err)

		_, err = NewBuilder().BuildFastHTTP()
		assert.Error(t, err)

		_, err = NewBuilder().WithConfig(shiplog.DefaultConfig()).BuildGnet()
		assert.ErrorIs(t, err, shiplog.ErrMissingServerURL)
	})
}

func TestGnetAdapter(t *testing.T) {
	builder, p, up := createTestCompatBuilder(t)

	var fatalMsg string
	adapter, err := builder.BuildGnet(WithFatalHandler(func(msg string) {
		fatalMsg = msg
	}))
	require.NoError(t, err)

	adapter.Debugf("gnet debug id=%d", 1)
	adapter.Infof("gnet info id=%d", 2)
	adapter.Warnf("gnet warn id=%d", 3)
	adapter.Errorf("gnet error id=%d", 4)
	adapter.Fatalf("gnet fatal id=%d", 5)

	events := flushed(t, p, up)
	require.Len(t, events, 5)

	levels := []shiplog.Level{
		shiplog.LevelDebug, shiplog.LevelInformation, shiplog.LevelWarning,
		shiplog.LevelError, shiplog.LevelCritical,
	}
	for i, ev := range events {
		assert.Equal(t, levels[i], ev.Level)
		assert.Equal(t, messageTemplate, ev.MessageTemplate())
		assert.Equal(t, "gnet", prop(t, ev, "Source"))
		assert.Equal(t, "net", prop(t, ev, shiplog.PropertySourceContext))
	}
	assert.Equal(t, "gnet info id=2", prop(t, events[1], "Message"))
	assert.Equal(t, true, prop(t, events[4], "Fatal"))
	assert.Equal(t, "gnet fatal id=5", fatalMsg)
}

func TestStructuredGnetAdapter(t *testing.T) {
	builder, p, up := createTestCompatBuilder(t)
	adapter, err := builder.BuildStructuredGnet()
	require.NoError(t, err)

	adapter.Infof("client connected addr=%s fd=%d", "10.0.0.1:9000", 12)
	adapter.Warnf("load at %d%%", 90)
	adapter.Errorf("bad {frame} size: %d", 70000)

	events := flushed(t, p, up)
	require.Len(t, events, 3)

	assert.Equal(t, "client connected addr={addr} fd={fd}", events[0].MessageTemplate())
	assert.Equal(t, "10.0.0.1:9000", prop(t, events[0], "addr"))
	assert.Equal(t, 12, prop(t, events[0], "fd"))

	assert.Equal(t, messageTemplate, events[1].MessageTemplate(), "verbs outside pairs fall back")
	assert.Equal(t, "load at 90%", prop(t, events[1], "Message"))

	assert.Equal(t, "bad {{frame}} size: {size}", events[2].MessageTemplate(), "literal braces are escaped")
	assert.Equal(t, 70000, prop(t, events[2], "size"))
}

func TestParseFormat(t *testing.T) {
	tmpl, fields := parseFormat("a=%v b: %s", []any{1, "x"})
	assert.Equal(t, "a={a} b: {b}", tmpl)
	assert.Equal(t, []any{"a", 1, "b", "x"}, fields)

	tmpl, fields = parseFormat("plain %d", []any{3})
	assert.Equal(t, messageTemplate, tmpl)
	assert.Equal(t, []any{"Message", "plain 3"}, fields)

	tmpl, _ = parseFormat("a=%v", nil)
	assert.Equal(t, messageTemplate, tmpl, "argument mismatch falls back")
}

func TestFastHTTPAdapter(t *testing.T) {
	builder, p, up := createTestCompatBuilder(t)
	adapter, err := builder.BuildFastHTTP()
	require.NoError(t, err)

	adapter.Printf("served %d requests", 10)
	adapter.Printf("error when serving connection %q", "1.2.3.4")
	adapter.Printf("deprecated header %s", "X-Old")
	adapter.Printf("debug: pool size %d", 4)
	adapter.Printf("panic recovered")

	events := flushed(t, p, up)
	require.Len(t, events, 5)

	expected := []shiplog.Level{
		shiplog.LevelInformation, shiplog.LevelError, shiplog.LevelWarning,
		shiplog.LevelDebug, shiplog.LevelCritical,
	}
	for i, ev := range events {
		assert.Equal(t, expected[i], ev.Level, "event %d", i)
		assert.Equal(t, "fasthttp", prop(t, ev, "Source"))
	}
	assert.Equal(t, "served 10 requests", prop(t, events[0], "Message"))
}

func TestFastHTTPAdapterOptions(t *testing.T) {
	builder, p, up := createTestCompatBuilder(t)
	adapter, err := builder.BuildFastHTTP(
		WithDefaultLevel(shiplog.LevelWarning),
		WithLevelDetector(func(string) (shiplog.Level, bool) { return 0, false }),
	)
	require.NoError(t, err)

	adapter.Printf("error but detection disabled")

	events := flushed(t, p, up)
	require.Len(t, events, 1)
	assert.Equal(t, shiplog.LevelWarning, events[0].Level)
}

func TestAdaptersRespectLevel(t *testing.T) {
	builder, p, up := createTestCompatBuilder(t)
	p.LevelSwitch().Update(shiplog.LevelError, time.Now())

	g, _ := builder.BuildGnet()
	s, _ := builder.BuildStructuredGnet()
	f, _ := builder.BuildFastHTTP()

	g.Infof("skipped")
	s.Warnf("skipped id=%d", 1)
	f.Printf("skipped")
	g.Errorf("kept")

	events := flushed(t, p, up)
	require.Len(t, events, 1)
	assert.Equal(t, "kept", prop(t, events[0], "Message"))
}
