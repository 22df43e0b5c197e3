package shiplog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lixenwraith/shiplog/event"
)

const errPrefix = "shiplog: "

// fmtErrorf wrapper
func fmtErrorf(format string, args ...any) error {
	if !strings.HasPrefix(format, errPrefix) {
		format = errPrefix + format
	}
	return fmt.Errorf(format, args...)
}

// combineErrors helper
func combineErrors(err1, err2 error) error {
	if err1 == nil {
		return err2
	}
	if err2 == nil {
		return err1
	}
	return fmt.Errorf("%v; %w", err1, err2)
}

// parseKeyValue splits a "key=value" string.
func parseKeyValue(arg string) (string, string, error) {
	parts := strings.SplitN(strings.TrimSpace(arg), "=", 2)
	if len(parts) != 2 {
		return "", "", fmtErrorf("invalid format in override string '%s', expected key=value", arg)
	}
	key := strings.TrimSpace(parts[0])
	value := strings.TrimSpace(parts[1])
	if key == "" {
		return "", "", fmtErrorf("key cannot be empty in override string '%s'", arg)
	}
	return key, value, nil
}

// ParseLevel converts a level name to a Level
func ParseLevel(s string) (Level, error) {
	lvl, err := event.ParseLevel(s)
	if err != nil {
		return LevelInformation, fmtErrorf("%w", err)
	}
	return lvl, nil
}

// parseStatusList parses a comma-separated list of HTTP status codes
func parseStatusList(s string) ([]int, error) {
	var codes []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil || code < 100 || code > 599 {
			return nil, fmtErrorf("invalid status code '%s' in retry_statuses", part)
		}
		codes = append(codes, code)
	}
	return codes, nil
}
