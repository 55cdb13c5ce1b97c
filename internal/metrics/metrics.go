package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the edge's Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RewritesTotal       *prometheus.CounterVec
	UpstreamTotal       *prometheus.CounterVec
	SitemapSourcesTotal *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		RewritesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "seo_rewrite_total",
			Help: "Detail page requests by media kind and rewrite outcome.",
		}, []string{"kind", "outcome"}),
		UpstreamTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Catalog API calls by endpoint and result.",
		}, []string{"endpoint", "result"}),
		SitemapSourcesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sitemap_source_total",
			Help: "Sitemap source runs by source and result.",
		}, []string{"source", "result"}),
	}
}

func (m *Metrics) ObserveRewrite(kind, outcome string) {
	m.RewritesTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveUpstream(endpoint, result string) {
	m.UpstreamTotal.WithLabelValues(endpoint, result).Inc()
}

func (m *Metrics) ObserveSitemapSource(source, result string) {
	m.SitemapSourcesTotal.WithLabelValues(source, result).Inc()
}
