package shiplog

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/lixenwraith/config"

	"github.com/lixenwraith/shiplog/client"
	"github.com/lixenwraith/shiplog/event"
)

// ErrMissingServerURL is returned when no collector url is configured
var ErrMissingServerURL = errors.New("shiplog: server_url is required")

// configPrefix is the TOML table holding pipeline settings
const configPrefix = "shiplog."

// Config holds all pipeline configuration values
type Config struct {
	// Collector
	ServerURL string `toml:"server_url"`
	APIKey    string `toml:"api_key"`

	// Gating
	MinimumLevel string `toml:"minimum_level"` // Level name; invalid names fall back to Information

	// Batching
	BatchSizeLimit     int64 `toml:"batch_size_limit"`     // Events per upload
	FlushPeriodMs      int64 `toml:"flush_period_ms"`      // Max age of a buffered batch
	HeartbeatIntervalS int64 `toml:"heartbeat_interval_s"` // Override refresh interval
	BufferSize         int64 `toml:"buffer_size"`          // Intake channel capacity

	// Transport
	RequestTimeoutMs int64  `toml:"request_timeout_ms"`
	DrainTimeoutMs   int64  `toml:"drain_timeout_ms"` // Final flush bound on shutdown
	RetryAttempts    int64  `toml:"retry_attempts"`   // Total sends per batch
	RetryStatuses    string `toml:"retry_statuses"`   // Comma-separated status codes
	Compression      string `toml:"compression"`      // "", "gzip" or "zstd"

	// Stdout/console mirror
	EnableStdout    bool   `toml:"enable_stdout"`
	StdoutTarget    string `toml:"stdout_target"` // "stdout" or "stderr"
	StdoutFormat    string `toml:"stdout_format"` // "txt", "json" or "raw"
	TimestampFormat string `toml:"timestamp_format"`

	// Internal diagnostics
	InternalErrorsToStderr bool `toml:"internal_errors_to_stderr"`
	StatsHeartbeat         bool `toml:"stats_heartbeat"` // Periodic proc statistics line
}

// defaultConfig is the single source for all configurable default values
var defaultConfig = Config{
	ServerURL: "",
	APIKey:    "",

	MinimumLevel: "Information",

	BatchSizeLimit:     1000,
	FlushPeriodMs:      2000,
	HeartbeatIntervalS: 120,
	BufferSize:         4096,

	RequestTimeoutMs: 10000,
	DrainTimeoutMs:   5000,
	RetryAttempts:    2,
	RetryStatuses:    "404",
	Compression:      "",

	EnableStdout:    false,
	StdoutTarget:    "stdout",
	StdoutFormat:    "txt",
	TimestampFormat: time.RFC3339Nano,

	InternalErrorsToStderr: false,
	StatsHeartbeat:         false,
}

// DefaultConfig returns a copy of the default configuration
func DefaultConfig() *Config {
	copiedConfig := defaultConfig
	return &copiedConfig
}

// NewConfigFromFile loads the [shiplog] table of a TOML file over the
// defaults and validates the result. A missing file yields the defaults.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	loader := config.New()
	if err := loader.RegisterStruct(configPrefix, *cfg); err != nil {
		return nil, fmtErrorf("failed to register config struct: %w", err)
	}

	if err := loader.Load(path, nil); err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return nil, fmtErrorf("failed to load config from %s: %w", path, err)
	}

	if err := extractConfig(loader, configPrefix, cfg); err != nil {
		return nil, fmtErrorf("failed to extract config values: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewConfigFromDefaults creates a Config with default values and applies
// overrides keyed by TOML name
func NewConfigFromDefaults(overrides map[string]any) (*Config, error) {
	cfg := DefaultConfig()

	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, fmtErrorf("failed to apply overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// extractConfig copies loaded values into cfg by toml tag
func extractConfig(loader *config.Config, prefix string, cfg *Config) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tomlTag := field.Tag.Get("toml")
		if tomlTag == "" {
			continue
		}

		val, found := loader.Get(prefix + tomlTag)
		if !found {
			continue
		}

		if err := setFieldValue(v.Field(i), val); err != nil {
			return fmt.Errorf("failed to set field %s: %w", field.Name, err)
		}
	}
	return nil
}

// applyOverrides applies a map of overrides to the Config struct
func applyOverrides(cfg *Config, overrides map[string]any) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	fieldMap := make(map[string]reflect.Value, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if tomlTag := t.Field(i).Tag.Get("toml"); tomlTag != "" {
			fieldMap[tomlTag] = v.Field(i)
		}
	}

	for key, value := range overrides {
		fieldValue, exists := fieldMap[key]
		if !exists {
			return fmt.Errorf("unknown config key: %s", key)
		}
		if err := setFieldValue(fieldValue, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

// setFieldValue sets a reflect.Value with type conversion
func setFieldValue(field reflect.Value, value any) error {
	switch field.Kind() {
	case reflect.String:
		switch v := value.(type) {
		case string:
			field.SetString(v)
		case Level:
			field.SetString(v.String())
		default:
			return fmt.Errorf("expected string, got %T", value)
		}

	case reflect.Int64:
		switch v := value.(type) {
		case int64:
			field.SetInt(v)
		case int:
			field.SetInt(int64(v))
		case float64:
			if v != float64(int64(v)) {
				return fmt.Errorf("expected integer, got %v", v)
			}
			field.SetInt(int64(v))
		default:
			return fmt.Errorf("expected int64, got %T", value)
		}

	case reflect.Bool:
		boolVal, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		field.SetBool(boolVal)

	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}
	return nil
}

// Validate checks the configuration. An unknown minimum_level is not an
// error; it resolves to Information when the pipeline starts.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return ErrMissingServerURL
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmtErrorf("invalid server_url: '%s' (use http or https)", c.ServerURL)
	}

	if c.StdoutTarget != "stdout" && c.StdoutTarget != "stderr" {
		return fmtErrorf("invalid stdout_target: '%s' (use stdout or stderr)", c.StdoutTarget)
	}
	if c.StdoutFormat != "txt" && c.StdoutFormat != "json" && c.StdoutFormat != "raw" {
		return fmtErrorf("invalid stdout_format: '%s' (use txt, json, or raw)", c.StdoutFormat)
	}
	if strings.TrimSpace(c.TimestampFormat) == "" {
		return fmtErrorf("timestamp_format cannot be empty")
	}
	switch c.Compression {
	case client.CompressNone, client.CompressGzip, client.CompressZstd:
	default:
		return fmtErrorf("invalid compression: '%s' (use gzip, zstd, or empty)", c.Compression)
	}

	if c.BatchSizeLimit <= 0 {
		return fmtErrorf("batch_size_limit must be positive: %d", c.BatchSizeLimit)
	}
	if c.BufferSize <= 0 {
		return fmtErrorf("buffer_size must be positive: %d", c.BufferSize)
	}
	if c.FlushPeriodMs <= 0 || c.HeartbeatIntervalS <= 0 ||
		c.RequestTimeoutMs <= 0 || c.DrainTimeoutMs <= 0 {
		return fmtErrorf("interval settings must be positive")
	}
	if c.RetryAttempts < 1 || c.RetryAttempts > 10 {
		return fmtErrorf("retry_attempts must be between 1 and 10: %d", c.RetryAttempts)
	}
	if _, err := parseStatusList(c.RetryStatuses); err != nil {
		return err
	}
	return nil
}

// Clone creates a copy of the configuration
func (c *Config) Clone() *Config {
	copiedConfig := *c
	return &copiedConfig
}

// level resolves MinimumLevel, reporting whether the name was usable
func (c *Config) level() (Level, bool) {
	lvl, err := event.ParseLevel(c.MinimumLevel)
	if err != nil {
		return LevelInformation, false
	}
	return lvl, true
}

func (c *Config) flushPeriod() time.Duration {
	return time.Duration(c.FlushPeriodMs) * time.Millisecond
}

func (c *Config) heartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalS) * time.Second
}

func (c *Config) drainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutMs) * time.Millisecond
}

// clientOptions maps transport settings onto client options
func (c *Config) clientOptions() client.Options {
	statuses, _ := parseStatusList(c.RetryStatuses)
	return client.Options{
		ServerURL:   c.ServerURL,
		APIKey:      c.APIKey,
		Timeout:     time.Duration(c.RequestTimeoutMs) * time.Millisecond,
		Compression: c.Compression,
		Retry: client.RetryPolicy{
			Attempts: int(c.RetryAttempts),
			Statuses: statuses,
		},
	}
}
