package main

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/lixenwraith/shiplog"
	"github.com/lixenwraith/shiplog/internal/collector"
)

const (
	totalBursts    = 100
	logsPerBurst   = 500
	maxMessageSize = 2000
	numWorkers     = 50
)

const configFile = "stress_config.toml"

// Example TOML content for stress test; server_url is filled in at runtime
var tomlContent = `
[shiplog]
  server_url = "http://%s"
  minimum_level = "Debug"
  buffer_size = 2048
  batch_size_limit = 500
  flush_period_ms = 50
  compression = "zstd"
  internal_errors_to_stderr = true
  stats_heartbeat = true
  heartbeat_interval_s = 1
`

var levels = []shiplog.Level{
	shiplog.LevelDebug,
	shiplog.LevelInformation,
	shiplog.LevelWarning,
	shiplog.LevelError,
}

var logger *shiplog.Logger

func generateRandomMessage(size int) string {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 "
	var sb strings.Builder
	sb.Grow(size)
	for i := 0; i < size; i++ {
		sb.WriteByte(chars[rand.Intn(len(chars))])
	}
	return sb.String()
}

// logBurst simulates a burst of logging activity inside a per-burst scope
func logBurst(burstID int) {
	ctx, scope := logger.BeginScope(context.Background(), shiplog.KV("Worker", burstID%numWorkers, "Burst", burstID))
	defer scope.Close()

	for i := 0; i < logsPerBurst; i++ {
		level := levels[rand.Intn(len(levels))]
		msg := generateRandomMessage(rand.Intn(maxMessageSize) + 10)
		logger.Log(ctx, level, shiplog.EventID{ID: i}, shiplog.Msg("{Seq} {Random} {Payload}", i, rand.Int63(), msg), nil, nil)
	}
}

// worker goroutine function
func worker(burstChan chan int, wg *sync.WaitGroup, completedBursts *atomic.Int64) {
	defer wg.Done()
	for burstID := range burstChan {
		logBurst(burstID)
		completed := completedBursts.Add(1)
		if completed%10 == 0 || completed == totalBursts {
			fmt.Printf("\rProgress: %d/%d bursts completed", completed, totalBursts)
		}
	}
}

func main() {
	fmt.Println("--- Pipeline Stress Test ---")

	// --- Local collector ---
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to listen: %v\n", err)
		os.Exit(1)
	}
	col := collector.New()
	stopCollector := col.Serve(ln)
	defer stopCollector()

	// --- Setup Config ---
	err = os.WriteFile(configFile, []byte(fmt.Sprintf(tomlContent, ln.Addr())), 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		os.Exit(1)
	}
	defer os.Remove(configFile)

	// --- Initialize Pipeline ---
	pipeline, err := shiplog.NewFromFile(configFile, shiplog.WithDeliveryFailureHandler(func(err error, events int) {
		fmt.Fprintf(os.Stderr, "\nDelivery failed for %d events: %v\n", events, err)
	}))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize pipeline: %v\n", err)
		os.Exit(1)
	}
	logger = pipeline.Logger("Stress")
	fmt.Printf("Pipeline shipping to %s\n", pipeline.Config().ServerURL)

	fmt.Printf("Starting stress test: %d workers, %d bursts, %d logs/burst.\n",
		numWorkers, totalBursts, logsPerBurst)
	fmt.Println("Press Ctrl+C to stop early.")

	// --- Setup Workers and Signal Handling ---
	burstChan := make(chan int, numWorkers)
	var wg sync.WaitGroup
	completedBursts := atomic.Int64{}
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	stopChan := make(chan struct{})

	go func() {
		<-sigChan
		fmt.Println("\n[Signal Received] Stopping burst generation...")
		close(stopChan)
	}()

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go worker(burstChan, &wg, &completedBursts)
	}

	// --- Run Test ---
	startTime := time.Now()
	for i := 1; i <= totalBursts; i++ {
		select {
		case burstChan <- i:
		case <-stopChan:
			fmt.Println("[Signal Received] Halting burst submission.")
			goto endLoop
		}
	}
endLoop:
	close(burstChan)

	fmt.Println("\nWaiting for workers to finish...")
	wg.Wait()
	duration := time.Since(startTime)
	finalCompleted := completedBursts.Load()

	// --- Shutdown Pipeline ---
	fmt.Println("Shutting down pipeline (allowing up to 10s)...")
	if err := pipeline.Shutdown(10 * time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "Pipeline shutdown error: %v\n", err)
	}

	stats := pipeline.Stats()
	fmt.Printf("\n--- Test Finished ---")
	fmt.Printf("\nCompleted %d/%d bursts in %v\n", finalCompleted, totalBursts, duration.Round(time.Millisecond))
	if finalCompleted > 0 && duration.Seconds() > 0 {
		logsPerSec := float64(finalCompleted*logsPerBurst) / duration.Seconds()
		fmt.Printf("Approximate Logs/sec: %.2f\n", logsPerSec)
	}
	fmt.Printf("Processed: %d  Dropped: %d  Batches: %d  Failed: %d\n",
		stats.Processed, stats.Dropped, stats.Batches, stats.FailedBatches)
	fmt.Printf("Collector accepted %d events in %d requests\n", len(col.Events()), col.Requests())
}
