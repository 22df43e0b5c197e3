package client

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/valyala/fastjson"

	"github.com/lixenwraith/shiplog/event"
)

// directiveKeys are the object members that may carry the suggested level
var directiveKeys = []string{"MinimumLevelAccepted", "minimumLevelAccepted", "minimumLevel", "level"}

const maxDirectiveText = 64

// parseDirective extracts the collector's suggested minimum level from a
// response body. ok is false when the body carries no directive.
func parseDirective(p *fastjson.Parser, body []byte) (level event.Level, ok bool, err error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return 0, false, nil
	}

	v, perr := p.ParseBytes(body)
	if perr != nil {
		// Not JSON; the body may be the bare level name
		return parseLevelText(string(body))
	}
	return directiveFromValue(v, 0)
}

func directiveFromValue(v *fastjson.Value, depth int) (event.Level, bool, error) {
	switch v.Type() {
	case fastjson.TypeNull:
		return 0, false, nil

	case fastjson.TypeString:
		return parseLevelText(string(v.GetStringBytes()))

	case fastjson.TypeNumber:
		n, err := v.Int()
		if err != nil {
			return 0, true, &DirectiveError{Text: v.String(), Err: err}
		}
		lvl := event.Level(n)
		if !lvl.Valid() {
			return 0, true, &DirectiveError{Text: v.String(), Err: event.ErrUnknownLevel}
		}
		return lvl, true, nil

	case fastjson.TypeObject:
		if depth > 0 {
			return 0, true, &DirectiveError{Text: truncate(v.String()), Err: fmt.Errorf("nested object")}
		}
		for _, key := range directiveKeys {
			if member := v.Get(key); member != nil {
				return directiveFromValue(member, depth+1)
			}
		}
		return 0, false, nil

	default:
		return 0, true, &DirectiveError{Text: truncate(v.String()), Err: fmt.Errorf("unexpected %s", v.Type())}
	}
}

func parseLevelText(text string) (event.Level, bool, error) {
	lvl, err := event.ParseLevel(text)
	if err != nil {
		return 0, true, &DirectiveError{Text: truncate(text), Err: err}
	}
	return lvl, true, nil
}

func truncate(s string) string {
	if len(s) <= maxDirectiveText {
		return s
	}
	cut := maxDirectiveText
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
