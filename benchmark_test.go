package shiplog

import (
	"context"
	"errors"
	"testing"
	"time"
)

func createBenchPipeline(b *testing.B, level string) *Logger {
	b.Helper()
	cfg := testConfig()
	cfg.MinimumLevel = level
	cfg.BufferSize = 8192
	cfg.BatchSizeLimit = 1000

	p, err := New(cfg, WithUploader(&fakeUploader{}))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = p.Shutdown(5 * time.Second) })
	return p.Logger("bench")
}

// BenchmarkGatedCall measures a call below the minimum level
func BenchmarkGatedCall(b *testing.B) {
	logger := createBenchPipeline(b, "Warning")
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Debug(ctx, "gated {Index}", i)
	}
}

// BenchmarkInfo measures template extraction and intake
func BenchmarkInfo(b *testing.B) {
	logger := createBenchPipeline(b, "Information")
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info(ctx, "benchmark message {Index} for {User}", i, "bench")
	}
}

// BenchmarkInfoWithScopes adds two active scopes to every event
func BenchmarkInfoWithScopes(b *testing.B) {
	logger := createBenchPipeline(b, "Information")
	ctx, outer := BeginScope(context.Background(), KV("RequestId", "r-1"))
	defer outer.Close()
	ctx, inner := BeginScope(ctx, Msg("Step {Step}", 3))
	defer inner.Close()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info(ctx, "scoped message {Index}", i)
	}
}

// BenchmarkDestructure measures @-prefixed struct capture
func BenchmarkDestructure(b *testing.B) {
	logger := createBenchPipeline(b, "Information")
	ctx := context.Background()
	order := orderPlaced{OrderID: 7, Total: 12.5}
	err := errors.New("bench")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Log(ctx, LevelError, EventID{ID: 1}, KV("@Order", order, OriginalFormatKey, "Order {Order}"), err, nil)
	}
}
