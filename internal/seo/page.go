package seo

import (
	"encoding/json"
	"net/http"
	"strings"

	"vidplay/internal/tmdb"
)

// PageOptions are the site-wide inputs to page derivation.
type PageOptions struct {
	Brand         string
	ImageBase     string
	FallbackImage string
}

// Page holds the values written into a detail page's head.
type Page struct {
	Title       string
	Description string
	Image       string
	URL         string
	JSONLD      []byte
}

type jsonLD struct {
	Context         string          `json:"@context"`
	Type            string          `json:"@type"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Image           string          `json:"image"`
	DatePublished   string          `json:"datePublished,omitempty"`
	StartDate       string          `json:"startDate,omitempty"`
	URL             string          `json:"url"`
	AggregateRating aggregateRating `json:"aggregateRating"`
}

type aggregateRating struct {
	Type        string  `json:"@type"`
	RatingValue float64 `json:"ratingValue"`
	BestRating  string  `json:"bestRating"`
	RatingCount int64   `json:"ratingCount"`
}

// BuildPage derives the head values for one title. Missing upstream fields
// fall back to the placeholder description, the fallback image and zero
// ratings.
func BuildPage(kind tmdb.Kind, t tmdb.Title, opts PageOptions, pageURL string) (Page, error) {
	name := strings.TrimSpace(t.DisplayName(kind))
	date := strings.TrimSpace(t.Date(kind))

	title := name
	if year := tmdb.YearFromDate(date); year != "" {
		title += " (" + year + ")"
	}
	title += " | " + opts.Brand

	desc := strings.TrimSpace(t.Overview)
	if desc == "" {
		desc = Placeholder(kind, opts.Brand)
	}

	image := tmdb.PosterURL(opts.ImageBase, t.PosterPath)
	if image == "" {
		image = opts.FallbackImage
	}

	ld := jsonLD{
		Context:     "https://schema.org",
		Type:        schemaType(kind),
		Name:        name,
		Description: desc,
		Image:       image,
		URL:         pageURL,
		AggregateRating: aggregateRating{
			Type:        "AggregateRating",
			RatingValue: t.VoteAverage,
			BestRating:  "10",
			RatingCount: t.VoteCount,
		},
	}
	if kind == tmdb.KindTV {
		ld.StartDate = date
	} else {
		ld.DatePublished = date
	}
	raw, err := json.Marshal(ld)
	if err != nil {
		return Page{}, err
	}

	return Page{
		Title:       title,
		Description: desc,
		Image:       image,
		URL:         pageURL,
		JSONLD:      raw,
	}, nil
}

// Placeholder is the description used when a title has no overview.
func Placeholder(kind tmdb.Kind, brand string) string {
	if kind == tmdb.KindTV {
		return "Watch this TV show on " + brand + "."
	}
	return "Watch this movie on " + brand + "."
}

func schemaType(kind tmdb.Kind) string {
	if kind == tmdb.KindTV {
		return "TVSeries"
	}
	return "Movie"
}

// RequestURL reconstructs the absolute URL the client asked for.
func RequestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(p, ",")[0]))
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
