package htmlrewrite

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Selector matches start tags by name and, optionally, by one exact
// attribute value. Supported forms: `tag`, `tag[attr]`, `tag[attr=v]`,
// `tag[attr="v"]` and `tag[attr='v']`.
type Selector struct {
	Tag   string
	Attr  string
	Value string

	hasValue bool
}

func ParseSelector(raw string) (Selector, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Selector{}, fmt.Errorf("htmlrewrite: empty selector")
	}
	open := strings.IndexByte(s, '[')
	if open == -1 {
		if !validName(s) {
			return Selector{}, fmt.Errorf("htmlrewrite: invalid selector %q", raw)
		}
		return Selector{Tag: strings.ToLower(s)}, nil
	}
	if !strings.HasSuffix(s, "]") {
		return Selector{}, fmt.Errorf("htmlrewrite: unterminated attribute in %q", raw)
	}
	sel := Selector{Tag: strings.ToLower(s[:open])}
	if !validName(sel.Tag) {
		return Selector{}, fmt.Errorf("htmlrewrite: invalid tag in %q", raw)
	}
	body := s[open+1 : len(s)-1]
	attr, val, hasValue := strings.Cut(body, "=")
	sel.Attr = strings.ToLower(strings.TrimSpace(attr))
	if !validName(sel.Attr) {
		return Selector{}, fmt.Errorf("htmlrewrite: invalid attribute in %q", raw)
	}
	if hasValue {
		val = strings.TrimSpace(val)
		if n := len(val); n >= 2 && (val[0] == '"' || val[0] == '\'') {
			if val[n-1] != val[0] {
				return Selector{}, fmt.Errorf("htmlrewrite: unbalanced quotes in %q", raw)
			}
			val = val[1 : n-1]
		}
		sel.Value = val
		sel.hasValue = true
	}
	return sel, nil
}

// MustSelector is ParseSelector for literals; it panics on a bad selector.
func MustSelector(raw string) Selector {
	sel, err := ParseSelector(raw)
	if err != nil {
		panic(err)
	}
	return sel
}

// Matches reports whether a start tag named tag (lower case) with attrs is selected.
func (s Selector) Matches(tag string, attrs []html.Attribute) bool {
	if s.Tag != tag {
		return false
	}
	if s.Attr == "" {
		return true
	}
	for _, a := range attrs {
		if a.Namespace != "" || a.Key != s.Attr {
			continue
		}
		return !s.hasValue || a.Val == s.Value
	}
	return false
}

func (s Selector) String() string {
	switch {
	case s.Attr == "":
		return s.Tag
	case !s.hasValue:
		return s.Tag + "[" + s.Attr + "]"
	default:
		return s.Tag + "[" + s.Attr + "=\"" + s.Value + "\"]"
	}
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == ':':
		default:
			return false
		}
	}
	return true
}
