package event

import (
	"errors"
	"fmt"
	"strings"
)

// Level is the ordered severity of an event
type Level int32

// Severity levels, lowest first
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInformation
	LevelWarning
	LevelError
	LevelCritical
)

// ErrUnknownLevel is returned when a level name cannot be parsed
var ErrUnknownLevel = errors.New("unknown level")

var levelNames = [...]string{
	LevelTrace:       "Trace",
	LevelDebug:       "Debug",
	LevelInformation: "Information",
	LevelWarning:     "Warning",
	LevelError:       "Error",
	LevelCritical:    "Critical",
}

// String returns the canonical level name
func (l Level) String() string {
	if l.Valid() {
		return levelNames[l]
	}
	return fmt.Sprintf("Level(%d)", int32(l))
}

// Valid reports whether l is one of the defined levels
func (l Level) Valid() bool {
	return l >= LevelTrace && l <= LevelCritical
}

// MarshalText implements encoding.TextMarshaler
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLevel, int32(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel converts a level name to a Level. Matching is case-insensitive and
// accepts the common aliases (verbose, info, warn, fatal) and numeric ordinals.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "verbose", "0":
		return LevelTrace, nil
	case "debug", "1":
		return LevelDebug, nil
	case "information", "info", "2":
		return LevelInformation, nil
	case "warning", "warn", "3":
		return LevelWarning, nil
	case "error", "4":
		return LevelError, nil
	case "critical", "fatal", "5":
		return LevelCritical, nil
	default:
		return LevelInformation, fmt.Errorf("%w: '%s' (use trace, debug, information, warning, error, critical)", ErrUnknownLevel, s)
	}
}
