package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"vidplay/internal/auth"
	"vidplay/internal/collections"
	"vidplay/internal/config"
	"vidplay/internal/metrics"
	"vidplay/internal/origin"
	"vidplay/internal/sitemap"
	"vidplay/internal/tmdb"
	"vidplay/pkg/db"
	"vidplay/pkg/logger"
)

const collectionsCacheTTL = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New(logger.Options{})
		boot.Fatal().Err(err).Msg("invalid config")
	}
	log := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := newApp(ctx, cfg, log, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().
		Str("addr", srv.Addr).
		Str("site", cfg.Site.URL).
		Bool("admin", cfg.AdminEnabled()).
		Bool("collections", cfg.DBURL != "").
		Msg("edge listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("edge stopped")
}

// newApp wires the edge's collaborators. cleanup releases the database pool
// when one was opened.
func newApp(ctx context.Context, cfg config.Config, log zerolog.Logger, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*app, func(), error) {
	m := metrics.New(reg)
	client := tmdb.NewClient(tmdb.Options{
		BaseURL:  cfg.TMDB.BaseURL,
		APIKey:   cfg.TMDB.APIKey,
		Language: cfg.TMDB.Language,
		Timeout:  cfg.TMDB.Timeout,
		Logger:   log,
		Observe:  m.ObserveUpstream,
	})

	originHandler, err := origin.New(cfg.StaticDir, cfg.OriginURL, log)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	sources := []sitemap.Source{
		sitemap.NewTrendingSource(client, tmdb.KindMovie, cfg.Site.URL, cfg.Sitemap.SourceLimit),
		sitemap.NewTrendingSource(client, tmdb.KindTV, cfg.Site.URL, cfg.Sitemap.SourceLimit),
	}
	if cfg.DBURL != "" {
		pool, err := db.Connect(ctx, cfg.DBURL)
		if err != nil {
			return nil, nil, err
		}
		cleanup = pool.Close
		if err := prepareCollections(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		sources = append(sources, sitemap.NewCollectionSource(collections.NewStore(pool, collectionsCacheTTL), cfg.Site.URL))
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		gatherer: gatherer,
		tmdb:     client,
		origin:   originHandler,
		sitemap: sitemap.NewGenerator(sitemap.Options{
			SiteURL: cfg.Site.URL,
			Sources: sources,
			Timeout: cfg.Sitemap.FetchTimeout,
			Logger:  log,
			Observe: m.ObserveSitemapSource,
		}),
	}
	if cfg.AdminEnabled() {
		a.auth = auth.NewService(cfg.AppSecret, auth.DefaultIssuer)
	}
	return a, cleanup, nil
}

// prepareCollections creates the table and seeds it the first time.
func prepareCollections(ctx context.Context, pool collections.DB) error {
	if err := collections.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	ids, err := collections.NewStore(pool, 0).FeaturedIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		return nil
	}
	return collections.Seed(ctx, pool, collections.DefaultIDs)
}
