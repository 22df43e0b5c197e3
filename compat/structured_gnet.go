package compat

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/lixenwraith/shiplog"
)

var (
	// keyValuePattern matches "key=%v" or "key: %v" pairs
	keyValuePattern = regexp.MustCompile(`(\w+)(\s*[:=]\s*)%[vsdqxXeEfFgGpbcU]`)
	// verbPattern matches any printf verb, "%%" included
	verbPattern = regexp.MustCompile(`%[-+# 0-9.]*[a-zA-Z%]`)
)

// parseFormat turns a printf format into a message template with one named
// property per "key=%v" pair. Formats with verbs outside such pairs fall
// back to the rendered message.
func parseFormat(format string, args []any) (string, []any) {
	matches := keyValuePattern.FindAllStringSubmatchIndex(format, -1)
	verbs := 0
	for _, v := range verbPattern.FindAllString(format, -1) {
		if v != "%%" {
			verbs++
		}
	}
	if len(matches) == 0 || len(matches) != verbs || len(matches) != len(args) {
		return messageTemplate, []any{"Message", fmt.Sprintf(format, args...)}
	}

	var sb strings.Builder
	fields := make([]any, 0, len(matches)*2)
	lastEnd := 0
	for i, m := range matches {
		sb.WriteString(escapeBraces(strings.ReplaceAll(format[lastEnd:m[0]], "%%", "%")))
		key := format[m[2]:m[3]]
		sb.WriteString(key)
		sb.WriteString(format[m[4]:m[5]])
		sb.WriteString("{" + key + "}")
		fields = append(fields, key, args[i])
		lastEnd = m[1]
	}
	sb.WriteString(escapeBraces(strings.ReplaceAll(format[lastEnd:], "%%", "%")))

	return sb.String(), fields
}

func escapeBraces(s string) string {
	s = strings.ReplaceAll(s, "{", "{{")
	return strings.ReplaceAll(s, "}", "}}")
}

// StructuredGnetAdapter ships gnet logs with "key=%v" pairs captured as
// event properties
type StructuredGnetAdapter struct {
	*GnetAdapter
	extractFields bool
}

// NewStructuredGnetAdapter creates a gnet adapter with structured field extraction
func NewStructuredGnetAdapter(logger *shiplog.Logger, opts ...GnetOption) *StructuredGnetAdapter {
	return &StructuredGnetAdapter{
		GnetAdapter:   NewGnetAdapter(logger, opts...),
		extractFields: true,
	}
}

func (a *StructuredGnetAdapter) writeStructured(level shiplog.Level, format string, args []any) {
	if !a.extractFields {
		a.write(level, format, args)
		return
	}
	if !a.logger.IsEnabled(level) {
		return
	}
	tmpl, fields := parseFormat(format, args)
	kv := append([]any{shiplog.OriginalFormatKey, tmpl, "Source", "gnet"}, fields...)
	a.logger.Log(context.Background(), level, shiplog.EventID{}, shiplog.KV(kv...), nil, nil)
}

// Debugf logs with structured field extraction
func (a *StructuredGnetAdapter) Debugf(format string, args ...any) {
	a.writeStructured(shiplog.LevelDebug, format, args)
}

// Infof logs with structured field extraction
func (a *StructuredGnetAdapter) Infof(format string, args ...any) {
	a.writeStructured(shiplog.LevelInformation, format, args)
}

// Warnf logs with structured field extraction
func (a *StructuredGnetAdapter) Warnf(format string, args ...any) {
	a.writeStructured(shiplog.LevelWarning, format, args)
}

// Errorf logs with structured field extraction
func (a *StructuredGnetAdapter) Errorf(format string, args ...any) {
	a.writeStructured(shiplog.LevelError, format, args)
}
