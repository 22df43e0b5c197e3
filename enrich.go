package shiplog

import (
	"fmt"
	"strings"

	"github.com/lixenwraith/shiplog/event"
)

// Enrich merges scope states, ordered outermost first, into ev. Bag scopes
// contribute their pairs as properties with inner scopes overriding outer
// ones; a bag's template and every non-bag state are collected, in push
// order, into the Scope sequence. Scope is only added when ev has none.
func Enrich(ev *event.Event, scopes []any) {
	if len(scopes) == 0 {
		return
	}

	var items []event.Value
	for _, state := range scopes {
		items = enrichScope(ev, state, items)
	}

	if len(items) > 0 {
		ev.AddIfAbsent(PropertyScope, event.SequenceValue(items))
	}
}

// enrichScope merges one scope state. A state that panics while being read
// leaves a marker in the Scope sequence; pairs merged before the panic stay.
func enrichScope(ev *event.Event, state any, items []event.Value) (out []event.Value) {
	out = items
	defer func() {
		if r := recover(); r != nil {
			out = append(out, event.ScalarValue(fmt.Sprintf("%%!(PANIC=scope: %v)", r)))
		}
	}()

	bag, ok := asBag(state)
	if !ok {
		return append(out, captureValue(state, false))
	}
	bag.Range(func(key string, value any) bool {
		switch {
		case key == OriginalFormatKey:
			out = append(out, event.ScalarValue(scopeText(state, value)))
		case strings.HasPrefix(key, "@") && len(key) > 1:
			ev.AddOrUpdate(key[1:], captureValue(value, true))
		case strings.HasPrefix(key, "$") && len(key) > 1:
			ev.AddOrUpdate(key[1:], event.ScalarValue(fmt.Sprint(value)))
		default:
			ev.AddOrUpdate(key, captureValue(value, false))
		}
		return true
	})
	return out
}

// scopeText renders a bag scope's own message: the state's String form when
// it has one, otherwise the raw template
func scopeText(state, format any) string {
	if s, ok := state.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(format)
}
