package assistant

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/worktab/worktab-api/internal/domain"
)

var (
	directivePattern = regexp.MustCompile(`<action:([^:>]+):([^>]+)>`)
	markerPattern    = regexp.MustCompile(`<action:[^>]+>`)
)

// ParsedDirective is one <action:TYPE:PARAMS> marker. When Malformed is
// true, Raw did not parse as JSON and Params is nil.
type ParsedDirective struct {
	Type      string
	Params    any
	Raw       string
	Malformed bool
}

// Action converts the directive to its wire form. Malformed params are
// wrapped as {"value": raw}.
func (p ParsedDirective) Action() domain.ActionDirective {
	if p.Malformed {
		return domain.ActionDirective{Type: p.Type, Params: map[string]any{"value": p.Raw}}
	}
	return domain.ActionDirective{Type: p.Type, Params: p.Params}
}

// ParseDirectives extracts every marker in text, left to right.
func ParseDirectives(text string) []ParsedDirective {
	matches := directivePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	out := make([]ParsedDirective, 0, len(matches))
	for _, m := range matches {
		d := ParsedDirective{Type: m[1], Raw: m[2]}
		if params, ok := decodeParams(m[2]); ok {
			d.Params = params
		} else {
			d.Malformed = true
		}
		out = append(out, d)
	}
	return out
}

// decodeParams parses raw as a single JSON value, keeping numbers exact.
func decodeParams(raw string) (any, bool) {
	data := []byte(raw)
	if !json.Valid(data) {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// ParseActions returns the wire form of every marker in text.
func ParseActions(text string) []domain.ActionDirective {
	parsed := ParseDirectives(text)
	if len(parsed) == 0 {
		return nil
	}
	actions := make([]domain.ActionDirective, len(parsed))
	for i, p := range parsed {
		actions[i] = p.Action()
	}
	return actions
}

// StripActionMarkers removes every <action:...> marker and trims the
// result. It also removes markers ParseDirectives does not recognize, such
// as ones without a params section.
func StripActionMarkers(text string) string {
	return strings.TrimSpace(markerPattern.ReplaceAllString(text, ""))
}
