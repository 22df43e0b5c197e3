package shiplog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNewRequiresServerURL(t *testing.T) {
	cfg := DefaultConfig()
	p, err := New(cfg)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrMissingServerURL)

	_, err = New(nil)
	assert.Error(t, err)

	_, err = NewBuilder().Build()
	assert.ErrorIs(t, err, ErrMissingServerURL)
}

func TestShutdownDrainsBufferedEvents(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p, up, _ := createTestPipeline(t, nil)
	logger := p.Logger("shutdown")
	for i := 0; i < 3; i++ {
		logger.Info(context.Background(), "pending {N}", i)
	}

	require.NoError(t, p.Shutdown(2*time.Second))
	assert.Len(t, up.events(), 3, "buffered events are shipped on shutdown")
	assert.True(t, up.closed.Load(), "uploader is always released")
	assert.True(t, p.state.ProcessorExited.Load())
}

func TestShutdownIdempotent(t *testing.T) {
	p, _, _ := createTestPipeline(t, nil)

	require.NoError(t, p.Shutdown())
	assert.NoError(t, p.Shutdown(), "second shutdown is a no-op")
}

func TestLogAfterShutdownIsDropped(t *testing.T) {
	p, up, _ := createTestPipeline(t, nil)
	logger := p.Logger("late")

	require.NoError(t, p.Shutdown(time.Second))

	assert.NotPanics(t, func() {
		logger.Info(context.Background(), "too late")
	})
	assert.Empty(t, up.events())
	assert.Equal(t, uint64(1), p.Stats().Dropped)

	err := p.Flush(100 * time.Millisecond)
	assert.Error(t, err)
}

func TestShutdownReportsFinalFlushFailure(t *testing.T) {
	p, up, _ := createTestPipeline(t, nil)
	up.setResult(up.result, errors.New("collector gone"))

	p.Logger("final").Error(context.Background(), nil, "lost")
	err := p.Shutdown(2 * time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.True(t, up.closed.Load())
}

func TestShutdownTimeout(t *testing.T) {
	p, up, _ := createTestPipeline(t, nil)

	release := make(chan struct{})
	defer close(release)
	up.mu.Lock()
	up.block = release
	up.mu.Unlock()

	p.Logger("slow").Info(context.Background(), "stuck upload")
	go func() { _ = p.Flush(time.Second) }()
	require.Eventually(t, func() bool { return up.started.Load() == 1 }, waitFor, tick)

	err := p.Shutdown(50 * time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not exit within timeout")
	assert.True(t, up.closed.Load(), "uploader is released even on timeout")
}

func TestConcurrentLoggingAndShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig()
	cfg.BatchSizeLimit = 50
	p, up, _ := createTestPipeline(t, cfg)
	logger := p.Logger("race")

	done := make(chan struct{})
	for w := 0; w < 4; w++ {
		go func(w int) {
			ctx, scope := BeginScope(context.Background(), KV("Worker", w))
			defer scope.Close()
			for i := 0; ; i++ {
				select {
				case <-done:
					return
				default:
				}
				logger.Info(ctx, "tick {N}", i)
			}
		}(w)
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Shutdown(2*time.Second))
	close(done)

	stats := p.Stats()
	assert.Equal(t, stats.Processed, uint64(len(up.events())), "every accepted event was shipped")
}

func TestShutdownRefusesConcurrentSends(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p, up, _ := createTestPipeline(t, nil)
	logger := p.Logger("closing")

	var calls atomic.Uint64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ctx, scope := BeginScope(context.Background(), KV("Worker", w))
			defer scope.Close()
			<-start
			for i := 0; i < 500; i++ {
				logger.Info(ctx, "tick {N}", i)
				calls.Add(1)
			}
		}(w)
	}

	close(start)
	require.NoError(t, p.Shutdown(2*time.Second))
	assert.NotPanics(t, wg.Wait)

	var shipped uint64
	for _, ev := range up.events() {
		if v, ok := ev.Property(PropertySourceContext); ok && v.Any() == "closing" {
			shipped++
		}
	}
	assert.Equal(t, calls.Load(), shipped+p.Stats().Dropped, "every call is shipped or counted as dropped")
}
