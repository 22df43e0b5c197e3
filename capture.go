package shiplog

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/lixenwraith/shiplog/event"
)

var (
	timeType     = reflect.TypeOf(time.Time{})
	stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
)

// captureValue converts a caller value to a property value. Destructuring
// captures struct and map shapes; otherwise values are scalars, with slices
// and maps captured as sequences and structures of scalars. Capture never
// panics: a failing String or Error method degrades to a marker scalar.
func captureValue(v any, destructure bool) (val event.Value) {
	defer func() {
		if r := recover(); r != nil {
			val = event.ScalarValue(fmt.Sprintf("%%!(PANIC=capture: %v)", r))
		}
	}()

	if destructure {
		return destructureValue(reflect.ValueOf(v), 0)
	}
	return captureScalar(v, 0)
}

func captureScalar(v any, depth int) event.Value {
	switch val := v.(type) {
	case nil:
		return event.ScalarValue(nil)
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64, time.Time:
		return event.ScalarValue(val)
	case []byte:
		return event.ScalarValue(string(val))
	case error:
		return event.ScalarValue(val.Error())
	case fmt.Stringer:
		return event.ScalarValue(val.String())
	}

	rv := reflect.ValueOf(v)
	if depth >= maxCaptureDepth {
		return event.ScalarValue(fmt.Sprint(v))
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return event.ScalarValue(nil)
		}
		return captureScalar(rv.Elem().Interface(), depth+1)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return event.ScalarValue(nil)
		}
		n := min(rv.Len(), maxCaptureItems)
		items := make([]event.Value, n)
		for i := 0; i < n; i++ {
			items[i] = captureScalar(rv.Index(i).Interface(), depth+1)
		}
		return event.SequenceValue(items)
	case reflect.Map:
		if rv.IsNil() {
			return event.ScalarValue(nil)
		}
		return event.StructureValue("", mapProperties(rv, func(e reflect.Value) event.Value {
			return captureScalar(e.Interface(), depth+1)
		}))
	}

	if s, ok := primitive(rv); ok {
		return event.ScalarValue(s)
	}
	return event.ScalarValue(fmt.Sprint(v))
}

func destructureValue(rv reflect.Value, depth int) event.Value {
	if !rv.IsValid() {
		return event.ScalarValue(nil)
	}
	if depth >= maxCaptureDepth {
		return event.ScalarValue(fmt.Sprint(rv.Interface()))
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return event.ScalarValue(nil)
		}
		return destructureValue(rv.Elem(), depth+1)

	case reflect.Struct:
		if rv.Type() == timeType {
			return event.ScalarValue(rv.Interface())
		}
		t := rv.Type()
		props := make([]event.Property, 0, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("log") == "-" {
				continue
			}
			props = append(props, event.Property{
				Name:  fieldName(f),
				Value: destructureValue(rv.Field(i), depth+1),
			})
		}
		return event.StructureValue(t.Name(), props)

	case reflect.Map:
		if rv.IsNil() {
			return event.ScalarValue(nil)
		}
		return event.StructureValue("", mapProperties(rv, func(e reflect.Value) event.Value {
			return destructureValue(e, depth+1)
		}))

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice {
			if rv.IsNil() {
				return event.ScalarValue(nil)
			}
			if rv.Type().Elem().Kind() == reflect.Uint8 {
				return event.ScalarValue(string(rv.Bytes()))
			}
		}
		n := min(rv.Len(), maxCaptureItems)
		items := make([]event.Value, n)
		for i := 0; i < n; i++ {
			items[i] = destructureValue(rv.Index(i), depth+1)
		}
		return event.SequenceValue(items)
	}

	if rv.CanInterface() {
		if rv.Type().Implements(errorType) || rv.Type().Implements(stringerType) {
			return captureScalar(rv.Interface(), depth)
		}
	}
	if s, ok := primitive(rv); ok {
		return event.ScalarValue(s)
	}
	if rv.CanInterface() {
		return event.ScalarValue(fmt.Sprint(rv.Interface()))
	}
	return event.ScalarValue(nil)
}

// primitive unwraps named basic kinds to their underlying Go type
func primitive(rv reflect.Value) (any, bool) {
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return rv.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return nil, false
}

func fieldName(f reflect.StructField) string {
	if tag := f.Tag.Get("log"); tag != "" {
		return tag
	}
	return f.Name
}

// mapProperties captures map entries sorted by formatted key
func mapProperties(rv reflect.Value, capture func(reflect.Value) event.Value) []event.Property {
	keys := rv.MapKeys()
	names := make([]string, len(keys))
	order := make([]int, len(keys))
	for i, k := range keys {
		names[i] = fmt.Sprint(k.Interface())
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return names[order[a]] < names[order[b]] })

	if len(order) > maxCaptureItems {
		order = order[:maxCaptureItems]
	}
	props := make([]event.Property, len(order))
	for i, idx := range order {
		props[i] = event.Property{Name: names[idx], Value: capture(rv.MapIndex(keys[idx]))}
	}
	return props
}

// stateTypeName returns the name of a named, non-generic, package-declared
// type. Pointers are dereferenced.
func stateTypeName(state any) (string, bool) {
	t := reflect.TypeOf(state)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" || t.PkgPath() == "" {
		return "", false
	}
	name := t.Name()
	for i := 0; i < len(name); i++ {
		if name[i] == '[' {
			return "", false
		}
	}
	return name, true
}
