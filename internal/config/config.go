package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Example env config:
// PORT=8080
// TMDB_API_KEY=...
// TMDB_BASE_URL=https://api.themoviedb.org/3
// TMDB_IMAGE_BASE=https://image.tmdb.org/t/p/w500
// TMDB_LANGUAGE=en-US
// TMDB_TIMEOUT=10s
// SITE_URL=https://vidplay.watch
// SITE_NAME=VidPlay
// SITEMAP_FETCH_TIMEOUT=5s
// STATIC_DIR=./dist
// ORIGIN_URL=http://127.0.0.1:4173
// LOG_LEVEL=info
// LOG_FILE=/var/log/vidplay/edge.log
// APP_SECRET=...
// METRICS_TOKEN=...
// DB_URL=postgres://vidplay:vidplay@db:5432/vidplay
type Config struct {
	Port         string
	TMDB         TMDBConfig
	Site         SiteConfig
	Sitemap      SitemapConfig
	StaticDir    string
	OriginURL    string
	LogLevel     string
	LogFile      string
	AppSecret    string
	MetricsToken string
	DBURL        string
}

type TMDBConfig struct {
	APIKey    string
	BaseURL   string
	ImageBase string
	Language  string
	Timeout   time.Duration
}

type SiteConfig struct {
	URL  string
	Name string
}

type SitemapConfig struct {
	FetchTimeout time.Duration
	// SourceLimit caps the entries taken from each trending source.
	SourceLimit int
}

const (
	defaultPort          = "8080"
	defaultTMDBBaseURL   = "https://api.themoviedb.org/3"
	defaultTMDBImageBase = "https://image.tmdb.org/t/p/w500"
	defaultLanguage      = "en-US"
	defaultTMDBTimeout   = 10 * time.Second
	defaultSiteURL       = "https://vidplay.watch"
	defaultSiteName      = "VidPlay"
	defaultFetchTimeout  = 5 * time.Second
	defaultSourceLimit   = 50
	defaultStaticDir     = "./dist"
	defaultLogLevel      = "info"
)

func DefaultConfig() Config {
	return Config{
		Port: defaultPort,
		TMDB: TMDBConfig{
			BaseURL:   defaultTMDBBaseURL,
			ImageBase: defaultTMDBImageBase,
			Language:  defaultLanguage,
			Timeout:   defaultTMDBTimeout,
		},
		Site: SiteConfig{
			URL:  defaultSiteURL,
			Name: defaultSiteName,
		},
		Sitemap: SitemapConfig{
			FetchTimeout: defaultFetchTimeout,
			SourceLimit:  defaultSourceLimit,
		},
		StaticDir: defaultStaticDir,
		LogLevel:  defaultLogLevel,
	}
}

// Load reads the process environment. The upstream credential has no
// built-in value: an unset TMDB_API_KEY is an error.
func Load() (Config, error) {
	return loadFrom(os.Getenv)
}

func loadFrom(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(getenv("API_PORT")); v != "" {
		cfg.Port = v
	} else if v := strings.TrimSpace(getenv("PORT")); v != "" {
		cfg.Port = v
	}
	cfg.TMDB.APIKey = strings.TrimSpace(getenv("TMDB_API_KEY"))
	if v := strings.TrimSpace(getenv("TMDB_BASE_URL")); v != "" {
		cfg.TMDB.BaseURL = v
	}
	if v := strings.TrimSpace(getenv("TMDB_IMAGE_BASE")); v != "" {
		cfg.TMDB.ImageBase = v
	}
	if v := strings.TrimSpace(getenv("TMDB_LANGUAGE")); v != "" {
		cfg.TMDB.Language = v
	}
	cfg.TMDB.Timeout = parseDuration(getenv("TMDB_TIMEOUT"), cfg.TMDB.Timeout)
	if v := strings.TrimSpace(getenv("SITE_URL")); v != "" {
		cfg.Site.URL = v
	}
	if v := strings.TrimSpace(getenv("SITE_NAME")); v != "" {
		cfg.Site.Name = v
	}
	cfg.Sitemap.FetchTimeout = parseDuration(getenv("SITEMAP_FETCH_TIMEOUT"), cfg.Sitemap.FetchTimeout)
	if v := strings.TrimSpace(getenv("SITEMAP_SOURCE_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sitemap.SourceLimit = n
		}
	}
	if v := strings.TrimSpace(getenv("STATIC_DIR")); v != "" {
		cfg.StaticDir = v
	}
	cfg.OriginURL = strings.TrimSpace(getenv("ORIGIN_URL"))
	if v := strings.TrimSpace(getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	cfg.LogFile = strings.TrimSpace(getenv("LOG_FILE"))
	cfg.AppSecret = getenv("APP_SECRET")
	cfg.MetricsToken = getenv("METRICS_TOKEN")
	cfg.DBURL = strings.TrimSpace(getenv("DB_URL"))

	cfg = cfg.normalize()
	if cfg.TMDB.APIKey == "" {
		return cfg, fmt.Errorf("TMDB_API_KEY is required")
	}
	return cfg, nil
}

func (c Config) normalize() Config {
	if c.Port == "" {
		c.Port = defaultPort
	}
	c.TMDB.BaseURL = strings.TrimRight(c.TMDB.BaseURL, "/")
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = defaultTMDBBaseURL
	}
	if c.TMDB.Timeout <= 0 {
		c.TMDB.Timeout = defaultTMDBTimeout
	}
	c.Site.URL = strings.TrimRight(c.Site.URL, "/")
	if c.Site.URL == "" {
		c.Site.URL = defaultSiteURL
	}
	if c.Sitemap.FetchTimeout <= 0 {
		c.Sitemap.FetchTimeout = defaultFetchTimeout
	}
	if c.Sitemap.SourceLimit <= 0 {
		c.Sitemap.SourceLimit = defaultSourceLimit
	}
	return c
}

// FallbackImage is the absolute image URL used when a title has no poster.
func (c Config) FallbackImage() string {
	return c.Site.URL + "/og-image.jpg"
}

// AdminEnabled reports whether the JWT-protected admin routes are mounted.
func (c Config) AdminEnabled() bool {
	return c.AppSecret != ""
}

func parseDuration(raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	// bare integers are seconds
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
