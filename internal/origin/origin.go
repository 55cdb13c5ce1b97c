// Package origin produces the unmodified documents that the edge rewrites:
// either the built single-page app from disk or a proxied upstream.
package origin

import (
	"bytes"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Static serves a built SPA. Unknown extensionless paths get index.html so
// client-side routes resolve.
type Static struct {
	fsys       fs.FS
	fileServer http.Handler
	log        zerolog.Logger
}

func NewStatic(dir string, logger zerolog.Logger) (*Static, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("static dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("static dir %s is not a directory", dir)
	}
	fsys := os.DirFS(dir)
	if _, err := fs.Stat(fsys, "index.html"); err != nil {
		return nil, fmt.Errorf("static dir %s has no index.html: %w", dir, err)
	}
	return &Static{
		fsys:       fsys,
		fileServer: http.FileServer(http.FS(fsys)),
		log:        logger.With().Str("component", "origin").Logger(),
	}, nil
}

func (s *Static) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" || name == "index.html" {
		s.serveIndex(w, r)
		return
	}
	info, err := fs.Stat(s.fsys, name)
	switch {
	case err == nil && !info.IsDir():
		if strings.HasPrefix(name, "assets/") {
			// bundler output is content hashed
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		} else {
			w.Header().Set("Cache-Control", "public, max-age=3600")
		}
		s.fileServer.ServeHTTP(w, r)
	case path.Ext(name) != "":
		http.NotFound(w, r)
	default:
		s.serveIndex(w, r)
	}
}

func (s *Static) serveIndex(w http.ResponseWriter, r *http.Request) {
	body, err := fs.ReadFile(s.fsys, "index.html")
	if err != nil {
		s.log.Error().Err(err).Msg("read index.html")
		http.Error(w, "index unavailable", http.StatusInternalServerError)
		return
	}
	modTime := time.Time{}
	if info, err := fs.Stat(s.fsys, "index.html"); err == nil {
		modTime = info.ModTime()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "index.html", modTime, bytes.NewReader(body))
}

// NewProxy forwards every request to target, keeping the inbound path.
func NewProxy(target string, logger zerolog.Logger) (http.Handler, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("origin url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin url %q must be absolute", target)
	}
	log := logger.With().Str("component", "origin").Logger()
	proxy := httputil.NewSingleHostReverseProxy(u)
	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		director(r)
		r.Host = u.Host
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("origin unavailable")
		http.Error(w, "origin unavailable", http.StatusBadGateway)
	}
	return proxy, nil
}

// New picks the proxy when originURL is set and the static dir otherwise.
func New(staticDir, originURL string, logger zerolog.Logger) (http.Handler, error) {
	if strings.TrimSpace(originURL) != "" {
		return NewProxy(originURL, logger)
	}
	return NewStatic(staticDir, logger)
}
