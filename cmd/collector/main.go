// Command collector runs a local bulk ingestion endpoint that prints every
// accepted event. Settings come from an optional collector.toml and
// --collector.<key>=<value> arguments.
package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/lixenwraith/config"

	"github.com/lixenwraith/shiplog/internal/collector"
)

const configFile = "collector.toml"

type settings struct {
	Listen    string `toml:"listen"`
	APIKey    string `toml:"api_key"`
	Directive string `toml:"directive"` // Response body, e.g. {"MinimumLevelAccepted":"Warning"}
}

func loadSettings() (settings, error) {
	s := settings{Listen: "127.0.0.1:5341"}

	loader := config.New()
	if err := loader.RegisterStruct("collector.", s); err != nil {
		return s, err
	}
	if err := loader.Load(configFile, os.Args[1:]); err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return s, err
	}

	get := func(key string, dst *string) {
		if v, ok := loader.Get("collector." + key); ok && v != nil {
			*dst = fmt.Sprint(v)
		}
	}
	get("listen", &s.Listen)
	get("api_key", &s.APIKey)
	get("directive", &s.Directive)
	return s, nil
}

func main() {
	s, err := loadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load settings: %v\n", err)
		os.Exit(1)
	}

	var opts []collector.Option
	if s.APIKey != "" {
		opts = append(opts, collector.WithAPIKey(s.APIKey))
	}
	if s.Directive != "" {
		opts = append(opts, collector.WithDirective(s.Directive))
	}
	opts = append(opts, collector.WithBatchHandler(func(b collector.Batch) {
		if len(b.Events) == 0 {
			fmt.Printf("[%s] level refresh\n", b.ID)
			return
		}
		for _, ev := range b.Events {
			fmt.Printf("[%s] %s %-11s %s %v\n", b.ID, ev.Timestamp, ev.Level, ev.MessageTemplate, ev.Properties)
			if ev.Exception != "" {
				fmt.Printf("    %s\n", ev.Exception)
			}
		}
	}))

	ln, err := net.Listen("tcp", s.Listen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to listen on %s: %v\n", s.Listen, err)
		os.Exit(1)
	}

	col := collector.New(opts...)
	stop := col.Serve(ln)
	fmt.Printf("Collector listening on http://%s/logging/bulk\n", ln.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	if err := stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Collector shutdown error: %v\n", err)
	}
	fmt.Printf("Accepted %d batches, %d events\n", len(col.Batches()), len(col.Events()))
}
