package seo

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidplay/internal/tmdb"
)

const basePage = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>VidPlay - Free Movies</title>
  <meta name="description" content="Stream movies and shows.">
  <meta property="og:title" content="VidPlay">
  <meta property="og:description" content="Stream movies and shows.">
  <meta property="og:image" content="https://vidplay.watch/og-image.jpg">
  <meta property="og:url" content="https://vidplay.watch">
</head>
<body><div id="root"></div></body>
</html>`

type fakeFetcher struct {
	mu    sync.Mutex
	ids   []string
	title tmdb.Title
	err   error
}

func (f *fakeFetcher) Title(_ context.Context, _ tmdb.Kind, id string) (tmdb.Title, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return f.title, f.err
}

func (f *fakeFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

var matrix = tmdb.Title{
	ID:          603,
	Title:       "The Matrix",
	ReleaseDate: "1999-03-30",
	PosterPath:  "/path.jpg",
	VoteAverage: 8.2,
	VoteCount:   24000,
}

func serveBase(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(basePage)))
	w.Header().Set("X-Origin", "static")
	_, _ = io.WriteString(w, basePage)
}

type observed struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *observed) observe(kind, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, kind+":"+outcome)
}

func newTestInterceptor(kind tmdb.Kind, f Fetcher, obs *observed) *Interceptor {
	opts := Options{Kind: kind, Fetcher: f, Page: testPageOptions, Logger: zerolog.Nop()}
	if obs != nil {
		opts.Observe = obs.observe
	}
	return NewInterceptor(opts)
}

func newRouter(i *Interceptor, next http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Handle("/"+string(i.kind)+"/*", i.Handler(next))
	return r
}

func TestInterceptorRewritesMovie(t *testing.T) {
	f := &fakeFetcher{title: matrix}
	obs := &observed{}
	h := newRouter(newTestInterceptor(tmdb.KindMovie, f, obs), http.HandlerFunc(serveBase))

	req := httptest.NewRequest(http.MethodGet, "https://vidplay.watch/movie/603/the-matrix", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"603"}, f.calls())
	assert.Equal(t, []string{"movie:rewritten"}, obs.outcomes)
	assert.Empty(t, rec.Header().Get("Content-Length"))
	assert.Equal(t, "static", rec.Header().Get("X-Origin"))
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rec.Body.String()))
	require.NoError(t, err)
	attr := func(sel string) string {
		v, ok := doc.Find(sel).Attr("content")
		require.True(t, ok, sel)
		return v
	}
	assert.Equal(t, "The Matrix (1999) | VidPlay", doc.Find("title").Text())
	assert.Equal(t, "Watch this movie on VidPlay.", attr(`meta[name="description"]`))
	assert.Equal(t, "The Matrix (1999) | VidPlay", attr(`meta[property="og:title"]`))
	assert.Equal(t, "Watch this movie on VidPlay.", attr(`meta[property="og:description"]`))
	assert.Equal(t, "https://image.tmdb.org/t/p/w500/path.jpg", attr(`meta[property="og:image"]`))
	assert.Equal(t, "https://vidplay.watch/movie/603/the-matrix", attr(`meta[property="og:url"]`))

	script := doc.Find("head").Children().Last()
	typ, _ := script.Attr("type")
	require.Equal(t, "application/ld+json", typ)
	var ld struct {
		Type   string `json:"@type"`
		Rating struct {
			RatingValue float64 `json:"ratingValue"`
			BestRating  string  `json:"bestRating"`
			RatingCount int64   `json:"ratingCount"`
		} `json:"aggregateRating"`
	}
	require.NoError(t, json.Unmarshal([]byte(script.Text()), &ld))
	assert.Equal(t, "Movie", ld.Type)
	assert.Equal(t, 8.2, ld.Rating.RatingValue)
	assert.Equal(t, "10", ld.Rating.BestRating)
	assert.Equal(t, int64(24000), ld.Rating.RatingCount)

	// everything outside the head values is untouched
	assert.Contains(t, rec.Body.String(), `<body><div id="root"></div></body>`)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "<!doctype html>\n<html lang=\"en\">\n<head>\n  <meta charset=\"utf-8\">\n"))
}

func TestInterceptorDownstreamSeesIdentityEncoding(t *testing.T) {
	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Accept-Encoding")
		serveBase(w, r)
	})
	h := newRouter(newTestInterceptor(tmdb.KindTV, &fakeFetcher{title: tmdb.Title{Name: "Dark"}}, nil), next)
	req := httptest.NewRequest(http.MethodGet, "/tv/70523", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, got)
	assert.Contains(t, rec.Body.String(), "<title>Dark | VidPlay</title>")
}

func indexPage(title, desc, ogTitle, ogDesc, ogImage, ogURL, headEnd string) string {
	return `<!DOCTYPE html>
<HTML lang="en">
  <head>
    <meta charset="UTF-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1.0" />
    ` + title + `
    ` + desc + `
    <meta property="og:site_name" content="Tom &amp; Jerry&#39;s &quot;Cinema&quot;" />
    <meta property="og:type" content="website" />
    ` + ogTitle + `
    ` + ogDesc + `
    ` + ogImage + `
    ` + ogURL + `
    <meta name="twitter:card" content="summary_large_image" />
    <meta name="twitter:title" content="VidPlay &amp; Friends &lt;HD&gt;" />
    <LINK REL="icon" type="image/svg+xml" href="/favicon.svg" />
    <!-- build: a &amp; b -->
    <script type="module" crossorigin src="/assets/index-Bx1.js"></script>
  ` + headEnd + `</head>
  <BODY><DIV id="root" Class="App">&copy; VidPlay</DIV></BODY>
</HTML>`
}

func TestInterceptorPreservesBytesOutsideRewrittenTags(t *testing.T) {
	in := indexPage(
		`<title>VidPlay &amp; Co</title>`,
		`<meta name="description" content="Stream movies &amp; shows." />`,
		`<meta property="og:title" content="VidPlay" />`,
		`<meta property="og:description" content="Stream movies &amp; shows." />`,
		`<meta property="og:image" content="https://vidplay.watch/og-image.jpg" />`,
		`<meta property="og:url" content="https://vidplay.watch" />`,
		"",
	)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, in)
	})
	h := newRouter(newTestInterceptor(tmdb.KindMovie, &fakeFetcher{title: matrix}, nil), next)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "https://vidplay.watch/movie/603/the-matrix", nil))

	p, err := BuildPage(tmdb.KindMovie, matrix, testPageOptions, "https://vidplay.watch/movie/603/the-matrix")
	require.NoError(t, err)
	want := indexPage(
		`<title>`+p.Title+`</title>`,
		`<meta name="description" content="`+p.Description+`"/>`,
		`<meta property="og:title" content="`+p.Title+`"/>`,
		`<meta property="og:description" content="`+p.Description+`"/>`,
		`<meta property="og:image" content="`+p.Image+`"/>`,
		`<meta property="og:url" content="`+p.URL+`"/>`,
		`<script type="application/ld+json">`+string(p.JSONLD)+`</script>`,
	)
	assert.Equal(t, want, rec.Body.String())
}

func TestInterceptorRequestsWholeDocument(t *testing.T) {
	var gotRange, gotIfRange string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange, gotIfRange = r.Header.Get("Range"), r.Header.Get("If-Range")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		http.ServeContent(w, r, "index.html", time.Time{}, strings.NewReader(basePage))
	})
	h := newRouter(newTestInterceptor(tmdb.KindMovie, &fakeFetcher{title: matrix}, nil), next)
	req := httptest.NewRequest(http.MethodGet, "/movie/603", nil)
	req.Header.Set("Range", "bytes=0-99")
	req.Header.Set("If-Range", `"v1"`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, gotRange)
	assert.Empty(t, gotIfRange)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Range"))
	assert.Contains(t, rec.Body.String(), "<title>The Matrix (1999) | VidPlay</title>")
	assert.True(t, strings.HasSuffix(rec.Body.String(), "</html>"))
}

func TestInterceptorPassesPartialContentThrough(t *testing.T) {
	fragment := basePage[:100]
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Range", "bytes 0-99/"+strconv.Itoa(len(basePage)))
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = io.WriteString(w, fragment)
	})
	obs := &observed{}
	h := newRouter(newTestInterceptor(tmdb.KindMovie, &fakeFetcher{title: matrix}, obs), next)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/movie/603", nil))

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, fragment, rec.Body.String())
	assert.Equal(t, "100", rec.Header().Get("Content-Length"))
	assert.Equal(t, []string{"movie:skipped"}, obs.outcomes)
}

func TestInterceptorUpstreamFailureIsByteIdentical(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		baseURL string
	}{
		{name: "not found", handler: func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"status_code":34}`, http.StatusNotFound)
		}},
		{name: "server error", handler: func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{name: "timeout", handler: func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}},
		{name: "malformed", handler: func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "<html>not json")
		}},
		{name: "network error", baseURL: closedURL},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			base := tc.baseURL
			var calls atomic.Int32
			if tc.handler != nil {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					calls.Add(1)
					tc.handler(w, r)
				}))
				t.Cleanup(srv.Close)
				base = srv.URL
			}
			client := tmdb.NewClient(tmdb.Options{BaseURL: base, APIKey: "k", Timeout: 100 * time.Millisecond, Logger: zerolog.Nop()})
			obs := &observed{}
			downstream := 0
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				downstream++
				serveBase(w, r)
			})
			h := newRouter(newTestInterceptor(tmdb.KindMovie, client, obs), next)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/movie/603", nil))

			assert.Equal(t, basePage, rec.Body.String())
			assert.Equal(t, strconv.Itoa(len(basePage)), rec.Header().Get("Content-Length"))
			assert.Equal(t, 1, downstream)
			assert.Equal(t, []string{"movie:passthrough"}, obs.outcomes)
			if tc.handler != nil {
				assert.LessOrEqual(t, calls.Load(), int32(1), "no retries")
			}
		})
	}
}

func TestInterceptorWithoutIDSkipsFetch(t *testing.T) {
	f := &fakeFetcher{title: matrix}
	obs := &observed{}
	h := newRouter(newTestInterceptor(tmdb.KindMovie, f, obs), http.HandlerFunc(serveBase))

	for _, path := range []string{"/movie/", "/movie//"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, basePage, rec.Body.String(), path)
	}
	assert.Empty(t, f.calls())
	assert.Equal(t, []string{"movie:skipped", "movie:skipped"}, obs.outcomes)
}

func TestInterceptorSegmentsWithoutRouter(t *testing.T) {
	f := &fakeFetcher{title: matrix}
	h := newTestInterceptor(tmdb.KindMovie, f, nil).Handler(http.HandlerFunc(serveBase))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/movie//603/the-matrix", nil))
	assert.Equal(t, []string{"603"}, f.calls())
	assert.Contains(t, rec.Body.String(), "<title>The Matrix (1999) | VidPlay</title>")
}

func TestInterceptorSkipsNonGet(t *testing.T) {
	f := &fakeFetcher{title: matrix}
	h := newRouter(newTestInterceptor(tmdb.KindMovie, f, nil), http.HandlerFunc(serveBase))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/movie/603", nil))
	assert.Empty(t, f.calls())
}

func TestInterceptorLeavesNonHTMLAlone(t *testing.T) {
	body := `{"ok":true}`
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, body)
	})
	obs := &observed{}
	h := newRouter(newTestInterceptor(tmdb.KindMovie, &fakeFetcher{title: matrix}, obs), next)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/movie/603", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, body, rec.Body.String())
	assert.Equal(t, strconv.Itoa(len(body)), rec.Header().Get("Content-Length"))
	assert.Equal(t, []string{"movie:skipped"}, obs.outcomes)
}

func TestInterceptorMirrorsDownstreamStatus(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "<html><head><title>missing</title></head></html>")
	})
	h := newRouter(newTestInterceptor(tmdb.KindMovie, &fakeFetcher{title: matrix}, nil), next)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/movie/603", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>The Matrix (1999) | VidPlay</title>")
}

func TestInterceptorRetriesDownstreamPanicOnce(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			panic(errors.New("origin exploded"))
		}
		serveBase(w, r)
	})
	obs := &observed{}
	h := newRouter(newTestInterceptor(tmdb.KindMovie, &fakeFetcher{title: matrix}, obs), next)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/movie/603", nil))

	assert.Equal(t, 2, calls)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, basePage, rec.Body.String())
	assert.Equal(t, []string{"movie:passthrough"}, obs.outcomes)
}

func TestInterceptorAbortsOnPanicAfterHeaders(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html><head>")
		panic("half way")
	})
	obs := &observed{}
	h := newTestInterceptor(tmdb.KindMovie, &fakeFetcher{title: matrix}, obs).Handler(next)
	rec := httptest.NewRecorder()

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/movie/603", nil))
	})
	assert.Equal(t, []string{"movie:aborted"}, obs.outcomes)
}

func TestInterceptorStreamsBeforeDownstreamFinishes(t *testing.T) {
	release := make(chan struct{})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, "<html><head><title>VidPlay</title>")
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
		_, _ = io.WriteString(w, "</head><body></body></html>")
	})
	srv := httptest.NewServer(newRouter(newTestInterceptor(tmdb.KindMovie, &fakeFetcher{title: matrix}, nil), next))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/movie/603")
	require.NoError(t, err)
	defer resp.Body.Close()

	br := bufio.NewReader(resp.Body)
	head := make(chan string, 1)
	go func() {
		var sb strings.Builder
		for !strings.Contains(sb.String(), "</title>") {
			b, err := br.ReadByte()
			if err != nil {
				break
			}
			sb.WriteByte(b)
		}
		head <- sb.String()
	}()

	select {
	case got := <-head:
		assert.Equal(t, "<html><head><title>The Matrix (1999) | VidPlay</title>", got)
	case <-time.After(2 * time.Second):
		t.Fatal("rewritten title did not arrive before the downstream body finished")
	}
	close(release)

	rest, err := io.ReadAll(br)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(rest), `<script type="application/ld+json">`))
	assert.True(t, strings.HasSuffix(string(rest), "</script></head><body></body></html>"))
}
