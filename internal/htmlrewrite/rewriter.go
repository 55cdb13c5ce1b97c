// Package htmlrewrite rewrites selected elements of an HTML stream in a
// single pass. Tokens that no handler touches are copied byte for byte, and
// output is written as soon as each token is complete, so memory stays
// bounded by the largest single token rather than the document.
package htmlrewrite

import (
	"io"

	"golang.org/x/net/html"
)

// ElementHandler mutates an element whose start tag matched a selector.
type ElementHandler interface {
	Element(e *Element)
}

type ElementFunc func(e *Element)

func (f ElementFunc) Element(e *Element) { f(e) }

type rule struct {
	sel     Selector
	handler ElementHandler
}

// Rewriter holds an ordered set of selector rules. It is safe to share a
// Rewriter between goroutines once all rules are registered.
type Rewriter struct {
	rules []rule
	tags  map[string]bool
}

func New() *Rewriter {
	return &Rewriter{tags: make(map[string]bool)}
}

// On registers h for elements matching sel. Handlers run in registration order.
func (r *Rewriter) On(sel Selector, h ElementHandler) *Rewriter {
	r.rules = append(r.rules, rule{sel: sel, handler: h})
	r.tags[sel.Tag] = true
	return r
}

// OnFunc is On with a plain function.
func (r *Rewriter) OnFunc(sel Selector, fn func(e *Element)) *Rewriter {
	return r.On(sel, ElementFunc(fn))
}

// pendingEnd is content waiting for the end tag of an open element.
type pendingEnd struct {
	tag     string
	depth   int
	content []string
}

// skipState tracks an element whose children are being replaced.
type skipState struct {
	tag   string
	depth int
}

// Transform copies src to dst, applying the registered rules.
func (r *Rewriter) Transform(dst io.Writer, src io.Reader) error {
	z := html.NewTokenizer(src)
	var (
		pending []pendingEnd
		skip    *skipState
	)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return err
			}
			if skip == nil {
				if err := write(dst, z.Raw()); err != nil {
					return err
				}
			}
			// unclosed elements still receive their appended content
			for i := len(pending) - 1; i >= 0; i-- {
				if err := writeAll(dst, pending[i].content); err != nil {
					return err
				}
			}
			return nil

		case html.StartTagToken, html.SelfClosingTagToken:
			// TagName and TagAttr rewrite the tokenizer buffer in place.
			raw := append([]byte(nil), z.Raw()...)
			name, hasAttr := z.TagName()
			if skip != nil {
				if tt == html.StartTagToken && string(name) == skip.tag {
					skip.depth++
				}
				continue
			}
			if !r.tags[string(name)] {
				if tt == html.StartTagToken && len(pending) > 0 {
					nestPending(pending, string(name))
				}
				if err := write(dst, raw); err != nil {
					return err
				}
				continue
			}

			el := &Element{tag: string(name), selfClosing: tt == html.SelfClosingTagToken}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				el.attrs = append(el.attrs, html.Attribute{Key: string(key), Val: string(val)})
			}
			matched := false
			for _, rl := range r.rules {
				if rl.sel.Matches(el.tag, el.attrs) {
					rl.handler.Element(el)
					matched = true
				}
			}

			if tt == html.StartTagToken {
				nestPending(pending, el.tag)
			}
			if matched && el.modified {
				if err := el.writeStartTag(dst); err != nil {
					return err
				}
			} else if err := write(dst, raw); err != nil {
				return err
			}
			if el.void() {
				continue
			}
			if el.inner != nil {
				if err := write(dst, []byte(*el.inner)); err != nil {
					return err
				}
				skip = &skipState{tag: el.tag}
			}
			if len(el.appended) > 0 {
				pending = append(pending, pendingEnd{tag: el.tag, content: el.appended})
			}

		case html.EndTagToken:
			raw := append([]byte(nil), z.Raw()...)
			name, _ := z.TagName()
			tag := string(name)
			if skip != nil {
				if tag != skip.tag {
					continue
				}
				if skip.depth > 0 {
					skip.depth--
					continue
				}
				skip = nil
			}
			var closing []string
			pending, closing = closePending(pending, tag)
			if err := writeAll(dst, closing); err != nil {
				return err
			}
			if err := write(dst, raw); err != nil {
				return err
			}

		default:
			if skip != nil {
				continue
			}
			if err := write(dst, z.Raw()); err != nil {
				return err
			}
		}
	}
}

// nestPending records a nested start tag sharing a name with an element
// that still has content pending.
func nestPending(pending []pendingEnd, tag string) {
	if voidElements[tag] {
		return
	}
	for i := range pending {
		if pending[i].tag == tag {
			pending[i].depth++
		}
	}
}

// closePending handles an end tag: the innermost pending element of that
// name at depth zero is closed and its content returned.
func closePending(pending []pendingEnd, tag string) ([]pendingEnd, []string) {
	closeIdx := -1
	for i := len(pending) - 1; i >= 0; i-- {
		if pending[i].tag != tag {
			continue
		}
		if pending[i].depth > 0 {
			pending[i].depth--
			continue
		}
		if closeIdx == -1 {
			closeIdx = i
		}
	}
	if closeIdx == -1 {
		return pending, nil
	}
	content := pending[closeIdx].content
	return append(pending[:closeIdx], pending[closeIdx+1:]...), content
}

func write(w io.Writer, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	_, err := w.Write(b)
	return err
}

func writeAll(w io.Writer, parts []string) error {
	for _, p := range parts {
		if _, err := io.WriteString(w, p); err != nil {
			return err
		}
	}
	return nil
}
