package htmlrewrite

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// ContentType says how inserted content is treated.
type ContentType int

const (
	// Text content is HTML-escaped before insertion.
	Text ContentType = iota
	// HTML content is inserted verbatim.
	HTML
)

// Element is the start tag of a matched element, handed to an ElementHandler.
// It is only valid for the duration of the handler call.
type Element struct {
	tag         string
	attrs       []html.Attribute
	selfClosing bool

	modified bool
	inner    *string
	appended []string
}

func (e *Element) TagName() string { return e.tag }

func (e *Element) GetAttribute(name string) (string, bool) {
	name = strings.ToLower(name)
	for _, a := range e.attrs {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttribute replaces the value of name, adding the attribute when missing.
func (e *Element) SetAttribute(name, value string) {
	name = strings.ToLower(name)
	e.modified = true
	for i := range e.attrs {
		if e.attrs[i].Namespace == "" && e.attrs[i].Key == name {
			e.attrs[i].Val = value
			return
		}
	}
	e.attrs = append(e.attrs, html.Attribute{Key: name, Val: value})
}

// SetInnerContent replaces everything between the start and end tag.
// It has no effect on void or self-closing elements.
func (e *Element) SetInnerContent(content string, ct ContentType) {
	if e.void() {
		return
	}
	c := render(content, ct)
	e.inner = &c
}

// Append inserts content as the last child, immediately before the end tag.
// It has no effect on void or self-closing elements.
func (e *Element) Append(content string, ct ContentType) {
	if e.void() {
		return
	}
	e.appended = append(e.appended, render(content, ct))
}

func (e *Element) void() bool {
	return e.selfClosing || voidElements[e.tag]
}

func (e *Element) writeStartTag(w io.Writer) error {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(e.tag)
	for _, a := range e.attrs {
		b.WriteByte(' ')
		if a.Namespace != "" {
			b.WriteString(a.Namespace)
			b.WriteByte(':')
		}
		b.WriteString(a.Key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(a.Val))
		b.WriteByte('"')
	}
	if e.selfClosing {
		b.WriteString("/>")
	} else {
		b.WriteByte('>')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func render(content string, ct ContentType) string {
	if ct == HTML {
		return content
	}
	return html.EscapeString(content)
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}
