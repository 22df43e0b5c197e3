package shiplog

import (
	"context"
	"fmt"
	"strings"

	"github.com/lixenwraith/shiplog/event"
	"github.com/lixenwraith/shiplog/template"
)

var (
	stateTemplate   = template.Parse("{" + PropertyState + ":l}")
	messageTemplate = template.Parse("{" + PropertyMessage + ":l}")
)

// Logger is a named logging front end over a Pipeline. It is safe for
// concurrent use; calls never block on the network.
type Logger struct {
	category string
	p        *Pipeline
}

// Category returns the logger name, attached to events as SourceContext
func (l *Logger) Category() string {
	return l.category
}

// Pipeline returns the pipeline this logger feeds
func (l *Logger) Pipeline() *Pipeline {
	return l.p
}

// IsEnabled reports whether an event at level would be recorded
func (l *Logger) IsEnabled(level Level) bool {
	if l == nil || l.p == nil || !level.Valid() {
		return false
	}
	return l.p.levels.IsEnabled(level)
}

// BeginScope pushes state onto the scope stack carried by ctx
func (l *Logger) BeginScope(ctx context.Context, state any) (context.Context, *Scope) {
	return BeginScope(ctx, state)
}

// Log records an event. state supplies the template and properties; format,
// when set, renders state and err as a message for states that carry no
// template of their own. Scopes active on ctx are merged into the event.
func (l *Logger) Log(ctx context.Context, level Level, id EventID, state any, err error, format Formatter) {
	if !l.IsEnabled(level) {
		return
	}

	tmpl, props := extract(state, err, format)
	if id.ID != 0 || id.Name != "" {
		props = append(props, eventIDProperty(id))
	}

	ev := event.New(l.p.clock.Now(), level, tmpl, err, props)
	if l.category != "" {
		ev.AddIfAbsent(PropertySourceContext, event.ScalarValue(l.category))
	}
	Enrich(ev, ScopeFromContext(ctx).Snapshot())

	l.p.sendRecord(logRecord{event: ev})
}

// Trace logs a templated message at Trace
func (l *Logger) Trace(ctx context.Context, format string, args ...any) {
	l.logf(ctx, LevelTrace, nil, format, args)
}

// Debug logs a templated message at Debug
func (l *Logger) Debug(ctx context.Context, format string, args ...any) {
	l.logf(ctx, LevelDebug, nil, format, args)
}

// Info logs a templated message at Information
func (l *Logger) Info(ctx context.Context, format string, args ...any) {
	l.logf(ctx, LevelInformation, nil, format, args)
}

// Warn logs a templated message at Warning
func (l *Logger) Warn(ctx context.Context, format string, args ...any) {
	l.logf(ctx, LevelWarning, nil, format, args)
}

// Error logs a templated message with an optional error at Error
func (l *Logger) Error(ctx context.Context, err error, format string, args ...any) {
	l.logf(ctx, LevelError, err, format, args)
}

// Critical logs a templated message with an optional error at Critical
func (l *Logger) Critical(ctx context.Context, err error, format string, args ...any) {
	l.logf(ctx, LevelCritical, err, format, args)
}

func (l *Logger) logf(ctx context.Context, level Level, err error, format string, args []any) {
	// Gate before building the message state
	if !l.IsEnabled(level) {
		return
	}
	l.Log(ctx, level, EventID{}, Msg(format, args...), err, nil)
}

// extract resolves the template and properties of a state. A panicking bag
// or formatter degrades to a {State:l} event describing the panic.
func extract(state any, err error, format Formatter) (tmpl *template.Template, props []event.Property) {
	defer func() {
		if r := recover(); r != nil {
			tmpl = stateTemplate
			props = []event.Property{{
				Name:  PropertyState,
				Value: event.ScalarValue(fmt.Sprintf("%%!(PANIC=extract: %v)", r)),
			}}
		}
	}()

	bag, isBag := asBag(state)
	if isBag {
		var text string
		found := false
		bag.Range(func(key string, value any) bool {
			switch {
			case key == OriginalFormatKey:
				if s, ok := value.(string); ok {
					text, found = s, true
				}
			case strings.HasPrefix(key, "@") && len(key) > 1:
				props = append(props, event.Property{Name: key[1:], Value: captureValue(value, true)})
			case strings.HasPrefix(key, "$") && len(key) > 1:
				props = append(props, event.Property{Name: key[1:], Value: event.ScalarValue(fmt.Sprint(value))})
			default:
				props = append(props, event.Property{Name: key, Value: captureValue(value, false)})
			}
			return true
		})
		if found {
			if ms, ok := state.(*MessageState); ok && ms.format == text {
				return ms.Template(), props
			}
			return template.Parse(text), props
		}
	}

	// Pairs is a plain collection; its type name describes nothing
	if _, plain := state.(Pairs); !plain {
		if name, ok := stateTypeName(state); ok {
			props = append(props, event.Property{Name: name, Value: captureValue(loggable(state, err, format), false)})
			return template.Parse("{" + name + ":l}"), props
		}
	}

	switch {
	case state != nil:
		props = append(props, event.Property{Name: PropertyState, Value: captureValue(loggable(state, err, format), false)})
		return stateTemplate, props
	case format != nil:
		props = append(props, event.Property{Name: PropertyMessage, Value: event.ScalarValue(format(nil, err))})
		return messageTemplate, props
	}
	return template.Empty, props
}

func loggable(state any, err error, format Formatter) any {
	if format != nil {
		return format(state, err)
	}
	return state
}

func eventIDProperty(id EventID) event.Property {
	props := make([]event.Property, 0, 2)
	if id.ID != 0 {
		props = append(props, event.Property{Name: "Id", Value: event.ScalarValue(id.ID)})
	}
	if id.Name != "" {
		props = append(props, event.Property{Name: "Name", Value: event.ScalarValue(id.Name)})
	}
	return event.Property{Name: PropertyEventID, Value: event.StructureValue("", props)}
}
