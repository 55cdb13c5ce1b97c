package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultUserAgent = "VidPlay-Edge-Function/1.0"
	maxBodyBytes     = 4 << 20
)

type Options struct {
	BaseURL   string
	APIKey    string
	Language  string
	UserAgent string
	Timeout   time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
	Logger     zerolog.Logger
	// Observe, when set, is told the outcome of every upstream call.
	Observe func(endpoint, result string)
}

// Client talks to the catalog API. It never retries: every call is exactly
// one HTTP GET.
type Client struct {
	baseURL   string
	apiKey    string
	language  string
	userAgent string
	http      *http.Client
	log       zerolog.Logger
	observe   func(endpoint, result string)
}

func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	lang := opts.Language
	if lang == "" {
		lang = "en-US"
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		apiKey:    opts.APIKey,
		language:  lang,
		userAgent: ua,
		http:      hc,
		log:       opts.Logger,
		observe:   opts.Observe,
	}
}

// Title fetches GET /{kind}/{id} in the configured locale.
func (c *Client) Title(ctx context.Context, kind Kind, id string) (Title, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Title{}, fmt.Errorf("tmdb: empty %s id", kind)
	}
	params := url.Values{}
	params.Set("language", c.language)
	var out Title
	if err := c.getJSON(ctx, string(kind), "/"+string(kind)+"/"+url.PathEscape(id), params, &out); err != nil {
		return Title{}, err
	}
	return out, nil
}

// Trending fetches GET /trending/{kind}/{window}.
func (c *Client) Trending(ctx context.Context, kind Kind, window string) ([]TrendingItem, error) {
	if window == "" {
		window = "week"
	}
	var out trendingResponse
	endpoint := "trending_" + string(kind)
	if err := c.getJSON(ctx, endpoint, "/trending/"+string(kind)+"/"+url.PathEscape(window), nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// TitleURL is the redacted request URL for a title lookup, for diagnostics.
func (c *Client) TitleURL(kind Kind, id string) string {
	params := url.Values{}
	params.Set("language", c.language)
	return RedactAPIKey(c.requestURL("/"+string(kind)+"/"+url.PathEscape(id), params))
}

func (c *Client) requestURL(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	return c.baseURL + path + "?" + params.Encode()
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, params url.Values, v any) error {
	reqURL := c.requestURL(path, params)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	c.log.Debug().Str("url", RedactAPIKey(reqURL)).Msg("tmdb request")
	resp, err := c.http.Do(req)
	if err != nil {
		c.record(endpoint, "error")
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = RedactAPIKey(uerr.URL)
		}
		return fmt.Errorf("tmdb %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.record(endpoint, "status_"+statusClass(resp.StatusCode))
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		c.log.Debug().Int("status", resp.StatusCode).Str("url", RedactAPIKey(reqURL)).Msg("tmdb response status")
		return &StatusError{URL: RedactAPIKey(reqURL), StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(v); err != nil {
		c.record(endpoint, "decode_error")
		return fmt.Errorf("tmdb %s: decode: %w", endpoint, err)
	}
	c.record(endpoint, "ok")
	return nil
}

func (c *Client) record(endpoint, result string) {
	if c.observe != nil {
		c.observe(endpoint, result)
	}
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

// RedactAPIKey masks the api_key query parameter of raw.
func RedactAPIKey(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// PosterURL joins a poster path onto imageBase, or returns "" when path is empty.
func PosterURL(imageBase, path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	return strings.TrimRight(imageBase, "/") + path
}

// YearFromDate returns the leading four-digit year of an ISO date, or "".
func YearFromDate(date string) string {
	head, _, _ := strings.Cut(strings.TrimSpace(date), "-")
	if len(head) != 4 {
		return ""
	}
	for _, r := range head {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return head
}
