// Package sanitizer neutralizes untrusted text before it is embedded in a
// shipped payload or mirrored to a terminal, and provides per-format value
// serializers used by the formatter.
package sanitizer

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/davecgh/go-spew/spew"
)

// Filter flags select runes a rule applies to
const (
	FilterNonPrintable uint64 = 1 << iota // !strconv.IsPrint
	FilterControl                         // unicode.IsControl
	FilterInvalidUTF8                     // utf8.RuneError from a bad encoding
	FilterBidi                            // bidirectional overrides used to spoof terminal output
)

// Transform flags select what happens to a matched rune
const (
	TransformStrip     uint64 = 1 << iota // drop the rune
	TransformHexEncode                    // "<xx..>" of the UTF-8 bytes
	TransformReplace                      // U+FFFD
)

// PolicyPreset names a pre-built rule set
type PolicyPreset string

const (
	PolicyRaw  PolicyPreset = "raw"  // passthrough
	PolicyJSON PolicyPreset = "json" // wire payloads; escaping is done by the json serializer
	PolicyTxt  PolicyPreset = "txt"  // console mirror
)

type rule struct {
	filter    uint64
	transform uint64
}

var policyRules = map[PolicyPreset][]rule{
	PolicyRaw:  {},
	PolicyJSON: {{filter: FilterInvalidUTF8, transform: TransformReplace}},
	PolicyTxt: {
		{filter: FilterBidi, transform: TransformStrip},
		{filter: FilterNonPrintable | FilterInvalidUTF8, transform: TransformHexEncode},
	},
}

// Sanitizer applies an ordered list of rules to strings. Not safe for
// concurrent use; the buffer is reused between calls.
type Sanitizer struct {
	rules []rule
	buf   []byte
}

// New creates a passthrough sanitizer
func New() *Sanitizer {
	return &Sanitizer{buf: make([]byte, 0, 256)}
}

// Rule appends a custom rule; earlier rules take precedence
func (s *Sanitizer) Rule(filter, transform uint64) *Sanitizer {
	s.rules = append(s.rules, rule{filter: filter, transform: transform})
	return s
}

// Policy appends the rules of a preset
func (s *Sanitizer) Policy(preset PolicyPreset) *Sanitizer {
	s.rules = append(s.rules, policyRules[preset]...)
	return s
}

// Sanitize returns data with all rules applied
func (s *Sanitizer) Sanitize(data string) string {
	if len(s.rules) == 0 {
		return data
	}
	s.buf = s.buf[:0]

	for i := 0; i < len(data); {
		r, size := utf8.DecodeRuneInString(data[i:])
		raw := data[i : i+size]
		i += size

		applied := false
		for _, rl := range s.rules {
			if matches(r, size, rl.filter) {
				s.buf = transform(s.buf, r, raw, rl.transform)
				applied = true
				break
			}
		}
		if !applied {
			s.buf = append(s.buf, raw...)
		}
	}
	return string(s.buf)
}

func matches(r rune, size int, mask uint64) bool {
	invalid := r == utf8.RuneError && size == 1
	if mask&FilterInvalidUTF8 != 0 && invalid {
		return true
	}
	if invalid {
		return false
	}
	if mask&FilterNonPrintable != 0 && !strconv.IsPrint(r) {
		return true
	}
	if mask&FilterControl != 0 && unicode.IsControl(r) {
		return true
	}
	if mask&FilterBidi != 0 && isBidiControl(r) {
		return true
	}
	return false
}

func transform(buf []byte, r rune, raw string, mask uint64) []byte {
	switch {
	case mask&TransformStrip != 0:
		return buf
	case mask&TransformHexEncode != 0:
		buf = append(buf, '<')
		buf = append(buf, hex.EncodeToString([]byte(raw))...)
		return append(buf, '>')
	case mask&TransformReplace != 0:
		return utf8.AppendRune(buf, utf8.RuneError)
	default:
		return append(buf, raw...)
	}
}

func isBidiControl(r rune) bool {
	switch {
	case r >= 0x202A && r <= 0x202E, r >= 0x2066 && r <= 0x2069, r == 0x200E, r == 0x200F:
		return true
	}
	return false
}

// Serializer writes primitive values in one output format ("json", "txt" or "raw")
type Serializer struct {
	format    string
	sanitizer *Sanitizer
}

// NewSerializer binds a format to a sanitizer
func NewSerializer(format string, san *Sanitizer) *Serializer {
	if san == nil {
		san = New()
	}
	return &Serializer{format: format, sanitizer: san}
}

// Format returns the output format name
func (se *Serializer) Format() string {
	return se.format
}

// WriteString writes s quoted and escaped as the format requires
func (se *Serializer) WriteString(buf *[]byte, s string) {
	s = se.sanitizer.Sanitize(s)
	switch se.format {
	case "json":
		*buf = appendJSONString(*buf, s)
	case "txt":
		if !se.NeedsQuotes(s) {
			*buf = append(*buf, s...)
			return
		}
		*buf = append(*buf, '"')
		for i := 0; i < len(s); i++ {
			switch s[i] {
			case '"', '\\':
				*buf = append(*buf, '\\', s[i])
			case '\n':
				*buf = append(*buf, '\\', 'n')
			case '\r':
				*buf = append(*buf, '\\', 'r')
			case '\t':
				*buf = append(*buf, '\\', 't')
			default:
				*buf = append(*buf, s[i])
			}
		}
		*buf = append(*buf, '"')
	default:
		*buf = append(*buf, s...)
	}
}

// WriteLiteral writes s unquoted. JSON output still escapes it inside quotes.
func (se *Serializer) WriteLiteral(buf *[]byte, s string) {
	if se.format == "json" {
		se.WriteString(buf, s)
		return
	}
	*buf = append(*buf, se.sanitizer.Sanitize(s)...)
}

// WriteNumber writes a pre-formatted number
func (se *Serializer) WriteNumber(buf *[]byte, n string) {
	*buf = append(*buf, n...)
}

func (se *Serializer) WriteBool(buf *[]byte, b bool) {
	*buf = strconv.AppendBool(*buf, b)
}

func (se *Serializer) WriteNil(buf *[]byte) {
	if se.format == "raw" {
		*buf = append(*buf, "nil"...)
		return
	}
	*buf = append(*buf, "null"...)
}

// WriteComplex writes a value with no dedicated encoding. Raw output dumps the
// full structure for debugging; other formats use its %+v rendering.
func (se *Serializer) WriteComplex(buf *[]byte, v any) {
	if se.format == "raw" {
		var b bytes.Buffer
		dumper := &spew.ConfigState{
			Indent:                  " ",
			MaxDepth:                8,
			DisablePointerAddresses: true,
			DisableCapacities:       true,
			SortKeys:                true,
		}
		dumper.Fdump(&b, v)
		*buf = append(*buf, bytes.TrimSpace(b.Bytes())...)
		return
	}
	se.WriteString(buf, fmt.Sprintf("%+v", v))
}

// NeedsQuotes reports whether s must be quoted in this format
func (se *Serializer) NeedsQuotes(s string) bool {
	switch se.format {
	case "json":
		return true
	case "txt":
		if s == "" {
			return true
		}
		for _, r := range s {
			if unicode.IsSpace(r) || !unicode.IsPrint(r) {
				return true
			}
			switch r {
			case '"', '\'', '\\', '=', '{', '}', '[', ']':
				return true
			}
		}
		return false
	default:
		return false
	}
}

const hexDigits = "0123456789abcdef"

func appendJSONString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c != '"' && c != '\\' && c != 0x7f {
			continue
		}
		buf = append(buf, s[start:i]...)
		switch c {
		case '"', '\\':
			buf = append(buf, '\\', c)
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		case '\t':
			buf = append(buf, '\\', 't')
		case '\b':
			buf = append(buf, '\\', 'b')
		case '\f':
			buf = append(buf, '\\', 'f')
		default:
			buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		}
		start = i + 1
	}
	buf = append(buf, s[start:]...)
	return append(buf, '"')
}
