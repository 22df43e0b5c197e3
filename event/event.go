// Package event defines the canonical structured log event shipped by the pipeline.
package event

import (
	"time"

	"github.com/lixenwraith/shiplog/template"
)

// Event is a single structured log event. Property names are unique within an
// event; later writes of the same name replace earlier ones in place.
type Event struct {
	Timestamp time.Time
	Level     Level
	Template  *template.Template
	Exception error

	props []Property
	index map[string]int
}

// New creates an event. Duplicate property names resolve last-write-wins.
func New(ts time.Time, level Level, tmpl *template.Template, err error, props []Property) *Event {
	if tmpl == nil {
		tmpl = template.Empty
	}
	e := &Event{
		Timestamp: ts,
		Level:     level,
		Template:  tmpl,
		Exception: err,
		props:     make([]Property, 0, len(props)+2),
		index:     make(map[string]int, len(props)+2),
	}
	for _, p := range props {
		e.AddOrUpdate(p.Name, p.Value)
	}
	return e
}

// MessageTemplate returns the raw template text
func (e *Event) MessageTemplate() string {
	return e.Template.String()
}

// Properties returns properties in insertion order. The slice must not be modified.
func (e *Event) Properties() []Property {
	return e.props
}

// Property looks up a property by name
func (e *Event) Property(name string) (Value, bool) {
	if i, ok := e.index[name]; ok {
		return e.props[i].Value, true
	}
	return Value{}, false
}

// AddOrUpdate sets a property, replacing an existing value of the same name
func (e *Event) AddOrUpdate(name string, v Value) {
	if i, ok := e.index[name]; ok {
		e.props[i].Value = v
		return
	}
	e.index[name] = len(e.props)
	e.props = append(e.props, Property{Name: name, Value: v})
}

// AddIfAbsent sets a property only when the name is not yet present
func (e *Event) AddIfAbsent(name string, v Value) bool {
	if _, ok := e.index[name]; ok {
		return false
	}
	e.index[name] = len(e.props)
	e.props = append(e.props, Property{Name: name, Value: v})
	return true
}
