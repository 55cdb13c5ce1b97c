package sitemap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// Result is the settled outcome of one source.
type Result struct {
	Source   string
	Entries  []Entry
	Err      error
	Duration time.Duration
}

type Options struct {
	SiteURL string
	Sources []Source
	// Timeout bounds each source independently.
	Timeout time.Duration
	Logger  zerolog.Logger
	Observe func(source, result string)
}

type Generator struct {
	static  []Entry
	sources []Source
	timeout time.Duration
	log     zerolog.Logger
	observe func(source, result string)
}

func NewGenerator(opts Options) *Generator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Generator{
		static:  StaticEntries(opts.SiteURL),
		sources: opts.Sources,
		timeout: timeout,
		log:     opts.Logger.With().Str("component", "sitemap").Logger(),
		observe: opts.Observe,
	}
}

// Gather runs every source concurrently, each under its own timeout, and
// waits for all of them to settle. Results keep source order.
func (g *Generator) Gather(ctx context.Context) []Result {
	results := make([]Result, len(g.sources))
	if len(g.sources) == 0 {
		return results
	}
	p := pool.New().WithMaxGoroutines(len(g.sources))
	for i, src := range g.sources {
		p.Go(func() {
			results[i] = g.run(ctx, src)
		})
	}
	p.Wait()
	return results
}

func (g *Generator) run(ctx context.Context, src Source) (res Result) {
	res.Source = src.Name()
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			res.Entries = nil
			res.Err = fmt.Errorf("source %s panicked: %v", res.Source, p)
		}
		res.Duration = time.Since(start)
		g.record(res)
	}()
	res.Entries, res.Err = src.Entries(ctx)
	if res.Err != nil {
		res.Entries = nil
	}
	return res
}

func (g *Generator) record(res Result) {
	outcome := "ok"
	if res.Err != nil {
		outcome = "error"
		if errors.Is(res.Err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		g.log.Warn().Err(res.Err).Str("source", res.Source).Dur("took", res.Duration).Msg("sitemap source skipped")
	} else {
		g.log.Debug().Str("source", res.Source).Int("entries", len(res.Entries)).Dur("took", res.Duration).Msg("sitemap source")
	}
	if g.observe != nil {
		g.observe(res.Source, outcome)
	}
}

// Flatten folds settled results onto the static entries, discarding failures.
func Flatten(static []Entry, results []Result) []Entry {
	out := append([]Entry(nil), static...)
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		out = append(out, r.Entries...)
	}
	return out
}

// Entries returns the full ordered entry list: static routes first, then
// each source in registration order.
func (g *Generator) Entries(ctx context.Context) []Entry {
	return Flatten(g.static, g.Gather(ctx))
}

// Handler serves the sitemap. Source failures never fail the response.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := Render(&buf, g.Entries(r.Context())); err != nil {
			g.log.Error().Err(err).Msg("render sitemap")
			http.Error(w, "sitemap unavailable", http.StatusInternalServerError)
			return
		}
		h := w.Header()
		h.Set("Content-Type", "application/xml; charset=utf-8")
		h.Set("Cache-Control", "public, max-age=3600")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(buf.Bytes())
	}
}