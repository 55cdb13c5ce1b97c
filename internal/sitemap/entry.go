// Package sitemap builds /sitemap.xml from fixed routes plus optional
// dynamic sources that may fail independently.
package sitemap

import (
	"encoding/xml"
	"io"
	"strings"
)

const Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// Entry is one <url> element.
type Entry struct {
	Loc        string `xml:"loc"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

const (
	Daily  = "daily"
	Weekly = "weekly"
)

type urlset struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	URLs    []Entry  `xml:"url"`
}

var staticRoutes = []string{"/", "/search", "/collections", "/login", "/signup"}

// StaticEntries returns the fixed routes: home first at 1.0, then the
// secondary pages at 0.8.
func StaticEntries(siteURL string) []Entry {
	base := strings.TrimRight(siteURL, "/")
	out := make([]Entry, 0, len(staticRoutes))
	for _, route := range staticRoutes {
		priority := "0.8"
		if route == "/" {
			priority = "1.0"
		}
		out = append(out, Entry{Loc: base + route, ChangeFreq: Weekly, Priority: priority})
	}
	return out
}

// Slugify lowercases s and collapses every run of characters outside
// [a-z0-9] into one hyphen, trimming hyphens at both ends.
func Slugify(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// Render writes entries as a sitemap document. Text is XML-escaped.
func Render(w io.Writer, entries []Entry) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(urlset{Xmlns: Namespace, URLs: entries}); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
