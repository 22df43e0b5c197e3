package shiplog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lixenwraith/shiplog/template"
)

// PropertyBag is a state or scope value that yields name/value pairs. A pair
// keyed OriginalFormatKey carries the message template; a name prefixed with
// '@' requests destructuring.
type PropertyBag interface {
	Range(fn func(key string, value any) bool)
}

// Pair is a single named value
type Pair struct {
	Key   string
	Value any
}

// Pairs is an ordered property bag
type Pairs []Pair

// Range implements PropertyBag
func (p Pairs) Range(fn func(key string, value any) bool) {
	for _, kv := range p {
		if !fn(kv.Key, kv.Value) {
			return
		}
	}
}

// KV builds Pairs from alternating keys and values. Non-string keys are
// formatted with fmt.Sprint; a trailing key without a value binds nil.
func KV(keyvals ...any) Pairs {
	pairs := make(Pairs, 0, (len(keyvals)+1)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		var val any
		if i+1 < len(keyvals) {
			val = keyvals[i+1]
		}
		pairs = append(pairs, Pair{Key: key, Value: val})
	}
	return pairs
}

// mapBag ranges a map in key order
type mapBag map[string]any

func (m mapBag) Range(fn func(key string, value any) bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn(k, m[k]) {
			return
		}
	}
}

// asBag reports whether state is a property bag
func asBag(state any) (PropertyBag, bool) {
	switch s := state.(type) {
	case PropertyBag:
		return s, true
	case []Pair:
		return Pairs(s), true
	case map[string]any:
		return mapBag(s), true
	}
	return nil, false
}

// MessageState is a template with positional arguments. It is the state
// built by the logger's convenience methods.
type MessageState struct {
	format string
	args   []any
	tmpl   *template.Template
}

// Msg binds args to the template's placeholders in order of appearance
func Msg(format string, args ...any) *MessageState {
	return &MessageState{format: format, args: args, tmpl: template.Parse(format)}
}

// Template returns the parsed message template
func (m *MessageState) Template() *template.Template {
	return m.tmpl
}

// Range yields each placeholder with its argument, then the template itself.
// A repeated placeholder name binds once. Surplus arguments are ignored and
// missing ones are not bound.
func (m *MessageState) Range(fn func(key string, value any) bool) {
	i := 0
	seen := make(map[string]struct{}, len(m.args))
	for _, tok := range m.tmpl.Tokens() {
		if tok.Kind != template.KindProperty {
			continue
		}
		if _, dup := seen[tok.Name]; dup {
			continue
		}
		seen[tok.Name] = struct{}{}
		if i >= len(m.args) {
			break
		}
		if !fn(tok.Key(), m.args[i]) {
			return
		}
		i++
	}
	fn(OriginalFormatKey, m.format)
}

// String renders the template with arguments substituted
func (m *MessageState) String() string {
	var sb strings.Builder
	bound := make(map[string]any, len(m.args))
	m.Range(func(key string, value any) bool {
		if key != OriginalFormatKey {
			bound[strings.TrimLeft(key, "@$")] = value
		}
		return true
	})
	for _, tok := range m.tmpl.Tokens() {
		if tok.Kind == template.KindText {
			sb.WriteString(tok.Text)
			continue
		}
		if v, ok := bound[tok.Name]; ok {
			fmt.Fprint(&sb, v)
		} else {
			sb.WriteString(tok.Raw)
		}
	}
	return sb.String()
}

// Formatter renders a state and error as a message
type Formatter func(state any, err error) string

// EventID identifies an event kind; the zero value means none
type EventID struct {
	ID   int
	Name string
}
