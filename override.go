package shiplog

import (
	"fmt"
	"strconv"
	"strings"
)

// ApplyOverride applies "key=value" overrides to the configuration. Either
// all overrides apply or none do.
//
// Example:
//
//	cfg := shiplog.DefaultConfig()
//	err := cfg.ApplyOverride(
//	    "server_url=https://logs.example.com",
//	    "minimum_level=debug",
//	    "batch_size_limit=500",
//	)
func (c *Config) ApplyOverride(overrides ...string) error {
	next := c.Clone()

	var errors []error
	for _, override := range overrides {
		key, value, err := parseKeyValue(override)
		if err != nil {
			errors = append(errors, err)
			continue
		}
		if err := applyConfigField(next, key, value); err != nil {
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return combineConfigErrors(errors)
	}

	*c = *next
	return nil
}

// combineConfigErrors combines multiple configuration errors into a single error
func combineConfigErrors(errors []error) error {
	if len(errors) == 0 {
		return nil
	}
	if len(errors) == 1 {
		return errors[0]
	}

	var sb strings.Builder
	sb.WriteString(errPrefix + "multiple configuration errors:")
	for i, err := range errors {
		errMsg := strings.TrimPrefix(err.Error(), errPrefix)
		sb.WriteString(fmt.Sprintf("\n  %d. %s", i+1, errMsg))
	}
	return fmt.Errorf("%s", sb.String())
}

// applyConfigField applies a single key-value override to a Config
func applyConfigField(cfg *Config, key, value string) error {
	switch key {
	// Collector
	case "server_url":
		cfg.ServerURL = value
	case "api_key":
		cfg.APIKey = value

	// Gating
	case "minimum_level":
		// Numeric ordinals are accepted and stored by name
		if n, err := strconv.Atoi(value); err == nil {
			if !Level(n).Valid() {
				return fmtErrorf("invalid minimum_level ordinal '%s'", value)
			}
			value = Level(n).String()
		}
		cfg.MinimumLevel = value

	// Batching
	case "batch_size_limit":
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmtErrorf("invalid integer value for batch_size_limit '%s': %w", value, err)
		}
		cfg.BatchSizeLimit = intVal
	case "flush_period_ms":
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmtErrorf("invalid integer value for flush_period_ms '%s': %w", value, err)
		}
		cfg.FlushPeriodMs = intVal
	case "heartbeat_interval_s":
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmtErrorf("invalid integer value for heartbeat_interval_s '%s': %w", value, err)
		}
		cfg.HeartbeatIntervalS = intVal
	case "buffer_size":
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmtErrorf("invalid integer value for buffer_size '%s': %w", value, err)
		}
		cfg.BufferSize = intVal

	// Transport
	case "request_timeout_ms":
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmtErrorf("invalid integer value for request_timeout_ms '%s': %w", value, err)
		}
		cfg.RequestTimeoutMs = intVal
	case "drain_timeout_ms":
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmtErrorf("invalid integer value for drain_timeout_ms '%s': %w", value, err)
		}
		cfg.DrainTimeoutMs = intVal
	case "retry_attempts":
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmtErrorf("invalid integer value for retry_attempts '%s': %w", value, err)
		}
		cfg.RetryAttempts = intVal
	case "retry_statuses":
		if _, err := parseStatusList(value); err != nil {
			return err
		}
		cfg.RetryStatuses = value
	case "compression":
		cfg.Compression = value

	// Stdout/console mirror
	case "enable_stdout":
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return fmtErrorf("invalid boolean value for enable_stdout '%s': %w", value, err)
		}
		cfg.EnableStdout = boolVal
	case "stdout_target":
		cfg.StdoutTarget = value
	case "stdout_format":
		cfg.StdoutFormat = value
	case "timestamp_format":
		cfg.TimestampFormat = value

	// Internal diagnostics
	case "internal_errors_to_stderr":
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return fmtErrorf("invalid boolean value for internal_errors_to_stderr '%s': %w", value, err)
		}
		cfg.InternalErrorsToStderr = boolVal
	case "stats_heartbeat":
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return fmtErrorf("invalid boolean value for stats_heartbeat '%s': %w", value, err)
		}
		cfg.StatsHeartbeat = boolVal

	default:
		return fmtErrorf("unknown configuration key '%s'", key)
	}

	return nil
}
