package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/lixenwraith/shiplog"
	"github.com/lixenwraith/shiplog/compat"
)

var logger *shiplog.Logger

func main() {
	// Ships to a collector started with: go run ./cmd/collector
	pipeline, err := shiplog.NewBuilder().
		ServerURL("http://127.0.0.1:5341").
		LevelString("information").
		BufferSize(2048).
		EnableStdout(true).
		Build()
	if err != nil {
		panic(err)
	}
	defer pipeline.Shutdown()
	logger = pipeline.Logger("Example.FastHTTP")

	// Create fasthttp adapter with custom level detection
	fasthttpAdapter := compat.NewFastHTTPAdapter(
		pipeline.Logger("fasthttp"),
		compat.WithDefaultLevel(shiplog.LevelInformation),
		compat.WithLevelDetector(customLevelDetector),
	)

	// Configure fasthttp server
	server := &fasthttp.Server{
		Handler: requestHandler,
		Logger:  fasthttpAdapter,

		Name:         "ExampleServer",
		Concurrency:  fasthttp.DefaultConcurrency,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		TCPKeepalive: true,
	}

	fmt.Println("Starting server on :8080")
	if err := server.ListenAndServe(":8080"); err != nil {
		panic(err)
	}
}

func requestHandler(ctx *fasthttp.RequestCtx) {
	started := time.Now()
	ctx.SetContentType("text/plain")
	fmt.Fprintf(ctx, "Hello, world! Path: %s\n", ctx.Path())

	logger.Info(ctx, "{Method} {Path} answered {Status} in {Elapsed}",
		string(ctx.Method()), string(ctx.Path()), ctx.Response.StatusCode(), time.Since(started))
}

func customLevelDetector(msg string) (shiplog.Level, bool) {
	if strings.Contains(msg, "connection cannot be served") {
		return shiplog.LevelWarning, true
	}
	if strings.Contains(msg, "error when serving connection") {
		return shiplog.LevelError, true
	}

	// Use default detection
	return compat.DetectLogLevel(msg)
}
