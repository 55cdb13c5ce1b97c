package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"vidplay/internal/auth"
	"vidplay/internal/config"
	"vidplay/internal/metrics"
	"vidplay/internal/seo"
	"vidplay/internal/sitemap"
	"vidplay/internal/tmdb"
	pkgauth "vidplay/pkg/auth"
)

type app struct {
	cfg      config.Config
	log      zerolog.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	tmdb     *tmdb.Client
	origin   http.Handler
	sitemap  *sitemap.Generator
	// nil when APP_SECRET is unset
	auth *auth.Service
}

func (a *app) pageOptions() seo.PageOptions {
	return seo.PageOptions{
		Brand:         a.cfg.Site.Name,
		ImageBase:     a.cfg.TMDB.ImageBase,
		FallbackImage: a.cfg.FallbackImage(),
	}
}

func newRouter(a *app) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, a.metrics.Middleware, middleware.Logger, middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/sitemap.xml", a.sitemap.Handler())
	r.Head("/sitemap.xml", a.sitemap.Handler())

	for _, kind := range []tmdb.Kind{tmdb.KindMovie, tmdb.KindTV} {
		ic := seo.NewInterceptor(seo.Options{
			Kind:    kind,
			Fetcher: a.tmdb,
			Page:    a.pageOptions(),
			Logger:  a.log,
			Observe: a.metrics.ObserveRewrite,
		})
		r.Handle("/"+string(kind)+"/*", ic.Handler(a.origin))
	}

	metricsHandler := promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})
	if a.cfg.MetricsToken != "" {
		r.With(pkgauth.TokenMiddleware(a.cfg.MetricsToken)).Handle("/metrics", metricsHandler)
	} else {
		r.Handle("/metrics", metricsHandler)
	}

	if a.auth != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(a.auth.RequireRole(auth.RoleAdmin))
			r.Get("/debug/seo/{kind}/{id}", handleDebugSEO(a))
			r.Get("/sitemap/sources", handleSitemapSources(a.sitemap))
		})
	}

	r.NotFound(a.origin.ServeHTTP)
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleDebugSEO shows the head values a detail page would receive, along
// with the redacted upstream URL they were derived from.
func handleDebugSEO(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := tmdb.ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			errorJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		id := chi.URLParam(r, "id")
		upstreamURL := a.tmdb.TitleURL(kind, id)
		title, err := a.tmdb.Title(r.Context(), kind, id)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"error":       err.Error(),
				"upstreamUrl": upstreamURL,
			})
			return
		}
		pageURL := a.cfg.Site.URL + "/" + string(kind) + "/" + id
		page, err := seo.BuildPage(kind, title, a.pageOptions(), pageURL)
		if err != nil {
			errorJSON(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"title":       page.Title,
			"description": page.Description,
			"image":       page.Image,
			"url":         page.URL,
			"jsonLd":      json.RawMessage(page.JSONLD),
			"upstreamUrl": upstreamURL,
		})
	}
}

type sourceReport struct {
	Source     string `json:"source"`
	Entries    int    `json:"entries"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"durationMs"`
}

func handleSitemapSources(gen *sitemap.Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := gen.Gather(r.Context())
		out := make([]sourceReport, 0, len(results))
		for _, res := range results {
			rep := sourceReport{
				Source:     res.Source,
				Entries:    len(res.Entries),
				DurationMS: res.Duration.Milliseconds(),
			}
			if res.Err != nil {
				rep.Error = res.Err.Error()
			}
			out = append(out, rep)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"sources": out})
	}
}
