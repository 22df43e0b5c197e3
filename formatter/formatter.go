// Package formatter encodes events into the bulk upload payload and into
// single-line text for the console mirror.
package formatter

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lixenwraith/shiplog/event"
	"github.com/lixenwraith/shiplog/sanitizer"
	"github.com/lixenwraith/shiplog/template"
)

// TypeTagKey is the member name carrying a structure's type tag on the wire
const TypeTagKey = "$type"

// Formatter manages buffered encoding of events. Not safe for concurrent use.
type Formatter struct {
	sanitizer       *sanitizer.Sanitizer
	format          string
	timestampFormat string
	buf             []byte
}

// New creates a json formatter with the provided sanitizer, or the json policy
// when none is given
func New(s ...*sanitizer.Sanitizer) *Formatter {
	var san *sanitizer.Sanitizer
	if len(s) > 0 && s[0] != nil {
		san = s[0]
	} else {
		san = sanitizer.New().Policy(sanitizer.PolicyJSON)
	}
	return &Formatter{
		sanitizer:       san,
		format:          "json",
		timestampFormat: time.RFC3339Nano,
		buf:             make([]byte, 0, 4096),
	}
}

// Type sets the output format ("json", "txt" or "raw")
func (f *Formatter) Type(format string) *Formatter {
	f.format = format
	return f
}

// TimestampFormat sets the layout used for timestamps and time values
func (f *Formatter) TimestampFormat(format string) *Formatter {
	if format != "" {
		f.timestampFormat = format
	}
	return f
}

// Reset clears the buffer for reuse
func (f *Formatter) Reset() {
	f.buf = f.buf[:0]
}

// EncodeBatch encodes events as a JSON array. An empty batch encodes as "[]".
// The returned slice is only valid until the next call.
func (f *Formatter) EncodeBatch(events []*event.Event) []byte {
	f.Reset()
	se := sanitizer.NewSerializer("json", f.sanitizer)

	f.buf = append(f.buf, '[')
	for i, ev := range events {
		if i > 0 {
			f.buf = append(f.buf, ',')
		}
		f.appendJSONEvent(ev, se)
	}
	f.buf = append(f.buf, ']')
	return f.buf
}

// FormatEvent encodes a single event in the configured format, newline terminated
func (f *Formatter) FormatEvent(ev *event.Event) []byte {
	f.Reset()
	switch f.format {
	case "json":
		f.appendJSONEvent(ev, sanitizer.NewSerializer("json", f.sanitizer))
		f.buf = append(f.buf, '\n')
	case "raw":
		se := sanitizer.NewSerializer("raw", f.sanitizer)
		f.appendMessage(ev)
		for _, p := range ev.Properties() {
			f.buf = append(f.buf, ' ')
			f.buf = append(f.buf, p.Name...)
			f.buf = append(f.buf, '=')
			f.writeValue(&f.buf, p.Value, se)
		}
	default:
		f.appendTxtEvent(ev, sanitizer.NewSerializer("txt", f.sanitizer))
	}
	return f.buf
}

// RenderMessage substitutes an event's properties into its template
func (f *Formatter) RenderMessage(ev *event.Event) string {
	f.Reset()
	f.appendMessage(ev)
	return string(f.buf)
}

func (f *Formatter) appendJSONEvent(ev *event.Event, se *sanitizer.Serializer) {
	f.buf = append(f.buf, `{"timestamp":"`...)
	f.buf = ev.Timestamp.AppendFormat(f.buf, f.timestampFormat)
	f.buf = append(f.buf, `","level":"`...)
	f.buf = append(f.buf, ev.Level.String()...)
	f.buf = append(f.buf, `","messageTemplate":`...)
	se.WriteString(&f.buf, ev.MessageTemplate())

	f.buf = append(f.buf, `,"properties":{`...)
	for i, p := range ev.Properties() {
		if i > 0 {
			f.buf = append(f.buf, ',')
		}
		se.WriteString(&f.buf, p.Name)
		f.buf = append(f.buf, ':')
		f.writeValue(&f.buf, p.Value, se)
	}
	f.buf = append(f.buf, '}')

	if ev.Exception != nil {
		f.buf = append(f.buf, `,"exception":`...)
		se.WriteString(&f.buf, ExceptionText(ev.Exception))
	}
	f.buf = append(f.buf, '}')
}

func (f *Formatter) appendTxtEvent(ev *event.Event, se *sanitizer.Serializer) {
	f.buf = ev.Timestamp.AppendFormat(f.buf, f.timestampFormat)
	f.buf = append(f.buf, ' ')
	f.buf = append(f.buf, ev.Level.String()...)
	f.buf = append(f.buf, ' ')

	// The rendered message is free text: sanitized, never quoted
	msgStart := len(f.buf)
	f.appendMessage(ev)
	rendered := string(f.buf[msgStart:])
	f.buf = f.buf[:msgStart]
	se.WriteLiteral(&f.buf, rendered)

	inTemplate := make(map[string]struct{})
	for _, name := range ev.Template.PropertyNames() {
		inTemplate[name] = struct{}{}
	}
	for _, p := range ev.Properties() {
		if _, ok := inTemplate[p.Name]; ok {
			continue
		}
		f.buf = append(f.buf, ' ')
		f.buf = append(f.buf, p.Name...)
		f.buf = append(f.buf, '=')
		f.writeValue(&f.buf, p.Value, se)
	}

	if ev.Exception != nil {
		f.buf = append(f.buf, ' ')
		se.WriteString(&f.buf, ExceptionText(ev.Exception))
	}
	f.buf = append(f.buf, '\n')
}

// appendMessage renders the template with bound properties; unbound
// placeholders are kept verbatim
func (f *Formatter) appendMessage(ev *event.Event) {
	raw := sanitizer.NewSerializer("raw", sanitizer.New())
	for _, tok := range ev.Template.Tokens() {
		if tok.Kind == template.KindText {
			f.buf = append(f.buf, tok.Text...)
			continue
		}
		v, ok := ev.Property(tok.Name)
		if !ok {
			f.buf = append(f.buf, tok.Raw...)
			continue
		}
		if s, isString := v.Any().(string); isString && v.Kind() == event.KindScalar {
			if tok.Literal() {
				f.buf = append(f.buf, s...)
			} else {
				f.buf = strconv.AppendQuote(f.buf, s)
			}
			continue
		}
		if tok.Format != "" && v.Kind() == event.KindScalar {
			if formatted, ok := formatScalar(v.Any(), tok.Format); ok {
				f.buf = append(f.buf, formatted...)
				continue
			}
		}
		f.writeValue(&f.buf, v, raw)
	}
}

// writeValue writes a property value; structures become objects, sequences arrays
func (f *Formatter) writeValue(buf *[]byte, v event.Value, se *sanitizer.Serializer) {
	switch v.Kind() {
	case event.KindStructure:
		json := se.Format() == "json"
		if json {
			*buf = append(*buf, '{')
		} else {
			if v.TypeTag() != "" {
				*buf = append(*buf, v.TypeTag()...)
				*buf = append(*buf, ' ')
			}
			*buf = append(*buf, '{')
		}
		n := 0
		if json && v.TypeTag() != "" {
			se.WriteString(buf, TypeTagKey)
			*buf = append(*buf, ':')
			se.WriteString(buf, v.TypeTag())
			n++
		}
		for _, p := range v.Properties() {
			if n > 0 {
				*buf = append(*buf, ',')
				if !json {
					*buf = append(*buf, ' ')
				}
			}
			if json {
				se.WriteString(buf, p.Name)
				*buf = append(*buf, ':')
			} else {
				*buf = append(*buf, p.Name...)
				*buf = append(*buf, '=')
			}
			f.writeValue(buf, p.Value, se)
			n++
		}
		*buf = append(*buf, '}')

	case event.KindSequence:
		*buf = append(*buf, '[')
		for i, item := range v.Items() {
			if i > 0 {
				*buf = append(*buf, ',')
				if se.Format() != "json" {
					*buf = append(*buf, ' ')
				}
			}
			f.writeValue(buf, item, se)
		}
		*buf = append(*buf, ']')

	default:
		f.convertValue(buf, v.Any(), se)
	}
}

// convertValue writes a scalar payload
func (f *Formatter) convertValue(buf *[]byte, v any, se *sanitizer.Serializer) {
	switch val := v.(type) {
	case string:
		se.WriteString(buf, val)

	case []byte:
		se.WriteString(buf, string(val))

	case int:
		se.WriteNumber(buf, strconv.FormatInt(int64(val), 10))
	case int8:
		se.WriteNumber(buf, strconv.FormatInt(int64(val), 10))
	case int16:
		se.WriteNumber(buf, strconv.FormatInt(int64(val), 10))
	case int32:
		se.WriteNumber(buf, strconv.FormatInt(int64(val), 10))
	case int64:
		se.WriteNumber(buf, strconv.FormatInt(val, 10))
	case uint:
		se.WriteNumber(buf, strconv.FormatUint(uint64(val), 10))
	case uint8:
		se.WriteNumber(buf, strconv.FormatUint(uint64(val), 10))
	case uint16:
		se.WriteNumber(buf, strconv.FormatUint(uint64(val), 10))
	case uint32:
		se.WriteNumber(buf, strconv.FormatUint(uint64(val), 10))
	case uint64:
		se.WriteNumber(buf, strconv.FormatUint(val, 10))

	case float32:
		f.writeFloat(buf, float64(val), 32, se)
	case float64:
		f.writeFloat(buf, val, 64, se)

	case bool:
		se.WriteBool(buf, val)

	case nil:
		se.WriteNil(buf)

	case time.Time:
		se.WriteString(buf, val.Format(f.timestampFormat))

	case error:
		se.WriteString(buf, val.Error())

	case fmt.Stringer:
		se.WriteString(buf, val.String())

	default:
		se.WriteComplex(buf, val)
	}
}

// writeFloat writes NaN and infinities as strings, which JSON cannot carry as numbers
func (f *Formatter) writeFloat(buf *[]byte, v float64, bits int, se *sanitizer.Serializer) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		se.WriteString(buf, strconv.FormatFloat(v, 'g', -1, bits))
		return
	}
	se.WriteNumber(buf, strconv.FormatFloat(v, 'f', -1, bits))
}

// formatScalar applies a numeric precision format such as "0.00"
func formatScalar(v any, format string) (string, bool) {
	prec := -1
	if dot := strings.IndexByte(format, '.'); dot >= 0 && strings.Trim(format, "0.#") == "" {
		prec = len(format) - dot - 1
	} else if strings.Trim(format, "0#") == "" {
		prec = 0
	} else {
		return "", false
	}

	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', prec, 64), true
	case float32:
		return strconv.FormatFloat(float64(n), 'f', prec, 32), true
	}
	return "", false
}

// ExceptionText renders an error with its %+v detail, followed by any wrapped
// causes whose messages the detail does not already include
func ExceptionText(err error) string {
	if err == nil {
		return ""
	}
	var sb strings.Builder
	detail := fmt.Sprintf("%+v", err)
	sb.WriteString(detail)

	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		msg := cause.Error()
		if strings.Contains(detail, msg) {
			continue
		}
		sb.WriteString(" ---> ")
		sb.WriteString(msg)
	}
	return sb.String()
}
