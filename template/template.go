// Package template parses message templates into text and property tokens.
//
// A message template is a string such as "Order {OrderId} shipped to {@Address}".
// Placeholders have the form {[@|$]Name[,alignment][:format]}; "{{" and "}}"
// escape literal braces. Parsing never fails: input that cannot be tokenized
// becomes a single text token equal to the input.
package template

import (
	"strings"
	"unicode"
)

// TokenKind identifies the kind of a template token
type TokenKind uint8

const (
	KindText TokenKind = iota
	KindProperty
)

// Hint is the capture hint carried by a property token prefix
type Hint uint8

const (
	HintNone        Hint = iota
	HintDestructure      // '@'
	HintStringify        // '$'
)

// LiteralFormat is the format specifier requesting unquoted rendering
const LiteralFormat = "l"

// Token is a single element of a parsed template
type Token struct {
	Kind TokenKind
	// Raw is the exact source text of the token, escapes included
	Raw string
	// Text is the unescaped literal text (text tokens only)
	Text string

	// Property token fields
	Name       string
	Format     string
	Alignment  string
	Hint       Hint
	Positional bool
}

// Literal reports whether the property requests literal rendering
func (t Token) Literal() bool {
	return t.Kind == KindProperty && t.Format == LiteralFormat
}

// Key returns the property name with its capture hint prefix restored
func (t Token) Key() string {
	switch t.Hint {
	case HintDestructure:
		return "@" + t.Name
	case HintStringify:
		return "$" + t.Name
	default:
		return t.Name
	}
}

// Template is an immutable parsed message template
type Template struct {
	text   string
	tokens []Token
}

// Empty is the parsed empty template
var Empty = &Template{}

// Parse tokenizes a message template
func Parse(text string) *Template {
	if text == "" {
		return Empty
	}

	tokens, ok := tokenize(text)
	if !ok {
		return &Template{
			text:   text,
			tokens: []Token{{Kind: KindText, Raw: text, Text: text}},
		}
	}
	return &Template{text: text, tokens: tokens}
}

// String returns the source text of the template
func (t *Template) String() string {
	return t.text
}

// Tokens returns the parsed tokens in source order
func (t *Template) Tokens() []Token {
	return t.tokens
}

// PropertyNames returns placeholder names in order of first appearance
func (t *Template) PropertyNames() []string {
	var names []string
	seen := make(map[string]struct{}, len(t.tokens))
	for _, tok := range t.tokens {
		if tok.Kind != KindProperty {
			continue
		}
		if _, dup := seen[tok.Name]; dup {
			continue
		}
		seen[tok.Name] = struct{}{}
		names = append(names, tok.Name)
	}
	return names
}

// tokenize splits text into tokens, returning false on malformed input
func tokenize(s string) ([]Token, bool) {
	var tokens []Token
	var text strings.Builder
	textStart := 0

	flushText := func(end int) {
		if end > textStart {
			tokens = append(tokens, Token{Kind: KindText, Raw: s[textStart:end], Text: text.String()})
		}
		text.Reset()
	}

	i := 0
	for i < len(s) {
		c := s[i]
		switch c {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				text.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				return nil, false
			}
			raw := s[i : i+end+2]
			tok, ok := parseProperty(s[i+1 : i+1+end])
			if !ok {
				return nil, false
			}
			flushText(i)
			tok.Raw = raw
			tokens = append(tokens, tok)
			i += end + 2
			textStart = i

		case '}':
			// A lone closing brace is kept as text
			text.WriteByte('}')
			if i+1 < len(s) && s[i+1] == '}' {
				i += 2
			} else {
				i++
			}

		default:
			text.WriteByte(c)
			i++
		}
	}
	flushText(len(s))

	return tokens, true
}

// parseProperty parses the inside of a {...} placeholder
func parseProperty(inner string) (Token, bool) {
	tok := Token{Kind: KindProperty}
	if inner == "" || strings.ContainsRune(inner, '{') {
		return tok, false
	}

	switch inner[0] {
	case '@':
		tok.Hint = HintDestructure
		inner = inner[1:]
	case '$':
		tok.Hint = HintStringify
		inner = inner[1:]
	}

	if idx := strings.IndexByte(inner, ':'); idx >= 0 {
		tok.Format = inner[idx+1:]
		inner = inner[:idx]
		if tok.Format == "" {
			return tok, false
		}
	}

	if idx := strings.IndexByte(inner, ','); idx >= 0 {
		tok.Alignment = inner[idx+1:]
		inner = inner[:idx]
		if !validAlignment(tok.Alignment) {
			return tok, false
		}
	}

	if !validName(inner) {
		return tok, false
	}
	tok.Name = inner
	tok.Positional = isDigits(inner)

	return tok, true
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r > 0x7f && (unicode.IsLetter(r) || unicode.IsDigit(r))) {
			return false
		}
	}
	return true
}

func validAlignment(a string) bool {
	a = strings.TrimPrefix(a, "-")
	return isDigits(a)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
