package seo

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"vidplay/internal/htmlrewrite"
	"vidplay/internal/tmdb"
)

// Outcomes reported to Options.Observe.
const (
	OutcomeRewritten   = "rewritten"
	OutcomePassthrough = "passthrough"
	OutcomeSkipped     = "skipped"
	OutcomeAborted     = "aborted"
)

// Fetcher loads title metadata. *tmdb.Client satisfies it.
type Fetcher interface {
	Title(ctx context.Context, kind tmdb.Kind, id string) (tmdb.Title, error)
}

type Options struct {
	Kind    tmdb.Kind
	Fetcher Fetcher
	Page    PageOptions
	Logger  zerolog.Logger
	Observe func(kind, outcome string)
}

// Interceptor rewrites the head of detail pages served by a downstream
// handler. Every failure before the downstream response starts degrades to
// serving that response unmodified.
type Interceptor struct {
	kind    tmdb.Kind
	fetcher Fetcher
	page    PageOptions
	log     zerolog.Logger
	observe func(kind, outcome string)
}

func NewInterceptor(opts Options) *Interceptor {
	return &Interceptor{
		kind:    opts.Kind,
		fetcher: opts.Fetcher,
		page:    opts.Page,
		log:     opts.Logger.With().Str("component", "seo").Str("kind", string(opts.Kind)).Logger(),
		observe: opts.Observe,
	}
}

// Handler wraps next, the handler producing the base document.
func (i *Interceptor) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			i.record(OutcomeSkipped)
			next.ServeHTTP(w, r)
			return
		}
		segments := i.segments(r)
		if len(segments) == 0 {
			i.record(OutcomeSkipped)
			next.ServeHTTP(w, r)
			return
		}

		title, err := i.fetcher.Title(r.Context(), i.kind, segments[0])
		if err != nil {
			i.log.Warn().Err(err).Str("id", segments[0]).Msg("metadata unavailable, serving page unmodified")
			i.record(OutcomePassthrough)
			next.ServeHTTP(w, r)
			return
		}
		page, err := BuildPage(i.kind, title, i.page, RequestURL(r))
		if err != nil {
			i.log.Warn().Err(err).Str("id", segments[0]).Msg("build page")
			i.record(OutcomePassthrough)
			next.ServeHTTP(w, r)
			return
		}
		i.record(i.serveRewritten(w, r, next, page))
	})
}

// segments returns the non-empty path segments after the kind prefix.
func (i *Interceptor) segments(r *http.Request) []string {
	var rest string
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		rest = chi.URLParam(r, "*")
	} else {
		prefix := "/" + string(i.kind) + "/"
		if !strings.HasPrefix(r.URL.Path, prefix) {
			return nil
		}
		rest = strings.TrimPrefix(r.URL.Path, prefix)
	}
	var out []string
	for _, s := range strings.Split(rest, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (i *Interceptor) serveRewritten(w http.ResponseWriter, r *http.Request, next http.Handler, page Page) string {
	down := r.Clone(r.Context())
	// identity bodies only; the rewriter works on decoded html
	down.Header.Del("Accept-Encoding")
	// a partial body cannot be rewritten; ask for the whole document
	down.Header.Del("Range")
	down.Header.Del("If-Range")

	cw := newCaptureWriter()
	done := make(chan struct{})
	var panicVal any
	go func() {
		defer close(done)
		defer close(cw.chunks)
		defer func() {
			if p := recover(); p != nil {
				panicVal = p
				return
			}
			cw.WriteHeader(http.StatusOK)
		}()
		next.ServeHTTP(cw, down)
	}()
	defer func() {
		cw.abandon()
		<-done
	}()

	select {
	case <-cw.headerReady:
	case <-done:
	}
	select {
	case <-cw.headerReady:
	default:
		<-done
		i.log.Error().Interface("panic", panicVal).Msg("downstream failed before responding, retrying once")
		next.ServeHTTP(w, r)
		return OutcomePassthrough
	}

	for k, v := range cw.snapshot {
		w.Header()[k] = v
	}
	body := &chunkReader{chunks: cw.chunks, flush: func() { _ = http.NewResponseController(w).Flush() }}

	outcome := OutcomeSkipped
	if rewritable(cw.status, cw.snapshot) {
		w.Header().Del("Content-Length")
		w.WriteHeader(cw.status)
		if err := rewriterFor(page).Transform(w, body); err != nil {
			i.log.Debug().Err(err).Msg("rewrite aborted")
			return OutcomeAborted
		}
		outcome = OutcomeRewritten
	} else {
		w.WriteHeader(cw.status)
		if _, err := io.Copy(w, body); err != nil {
			return OutcomeAborted
		}
	}

	<-done
	if panicVal != nil {
		i.log.Error().Interface("panic", panicVal).Msg("downstream failed mid-response")
		i.record(OutcomeAborted)
		panic(http.ErrAbortHandler)
	}
	return outcome
}

func (i *Interceptor) record(outcome string) {
	if i.observe != nil {
		i.observe(string(i.kind), outcome)
	}
}

func rewriterFor(p Page) *htmlrewrite.Rewriter {
	content := func(v string) func(e *htmlrewrite.Element) {
		return func(e *htmlrewrite.Element) { e.SetAttribute("content", v) }
	}
	return htmlrewrite.New().
		OnFunc(htmlrewrite.MustSelector("title"), func(e *htmlrewrite.Element) {
			e.SetInnerContent(p.Title, htmlrewrite.Text)
		}).
		OnFunc(htmlrewrite.MustSelector(`meta[name="description"]`), content(p.Description)).
		OnFunc(htmlrewrite.MustSelector(`meta[property="og:title"]`), content(p.Title)).
		OnFunc(htmlrewrite.MustSelector(`meta[property="og:description"]`), content(p.Description)).
		OnFunc(htmlrewrite.MustSelector(`meta[property="og:image"]`), content(p.Image)).
		OnFunc(htmlrewrite.MustSelector(`meta[property="og:url"]`), content(p.URL)).
		OnFunc(htmlrewrite.MustSelector("head"), func(e *htmlrewrite.Element) {
			e.Append(`<script type="application/ld+json">`+string(p.JSONLD)+`</script>`, htmlrewrite.HTML)
		})
}

func rewritable(status int, h http.Header) bool {
	switch status {
	case http.StatusNoContent, http.StatusNotModified, http.StatusPartialContent:
		return false
	}
	if enc := strings.TrimSpace(h.Get("Content-Encoding")); enc != "" && !strings.EqualFold(enc, "identity") {
		return false
	}
	mt, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	return err == nil && mt == "text/html"
}

var errClientGone = errors.New("seo: response abandoned")

// captureWriter is handed to the downstream handler. Body bytes are copied
// into chunks and consumed by the rewriting goroutine as they arrive.
type captureWriter struct {
	header      http.Header
	snapshot    http.Header
	status      int
	wroteHeader bool
	headerReady chan struct{}
	chunks      chan []byte
	gone        chan struct{}
	goneClosed  bool
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{
		header:      make(http.Header),
		headerReady: make(chan struct{}),
		chunks:      make(chan []byte, 8),
		gone:        make(chan struct{}),
	}
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(code int) {
	if c.wroteHeader || (code >= 100 && code < 200) {
		return
	}
	c.wroteHeader = true
	c.status = code
	c.snapshot = c.header.Clone()
	close(c.headerReady)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	if len(p) == 0 {
		return 0, nil
	}
	buf := append([]byte(nil), p...)
	select {
	case c.chunks <- buf:
		return len(p), nil
	case <-c.gone:
		return 0, errClientGone
	}
}

// Flush is a no-op; output is flushed whenever the rewriter runs dry.
func (c *captureWriter) Flush() {}

// abandon is called once by the consuming side.
func (c *captureWriter) abandon() {
	if !c.goneClosed {
		c.goneClosed = true
		close(c.gone)
	}
}

// chunkReader feeds captured chunks to the rewriter, flushing the client
// response before it blocks waiting for more input.
type chunkReader struct {
	chunks <-chan []byte
	buf    []byte
	flush  func()
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		var (
			b  []byte
			ok bool
		)
		select {
		case b, ok = <-r.chunks:
		default:
			r.flush()
			b, ok = <-r.chunks
		}
		if !ok {
			return 0, io.EOF
		}
		r.buf = b
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
