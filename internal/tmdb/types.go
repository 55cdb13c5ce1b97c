package tmdb

import (
	"fmt"
	"strings"
)

// Kind is the upstream media namespace: "movie" or "tv".
type Kind string

const (
	KindMovie Kind = "movie"
	KindTV    Kind = "tv"
)

func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindMovie:
		return KindMovie, nil
	case KindTV:
		return KindTV, nil
	default:
		return "", fmt.Errorf("unknown media kind %q", raw)
	}
}

// Title is the subset of GET /movie/{id} and GET /tv/{id} consumed by the edge.
// Absent numeric fields decode as zero.
type Title struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	PosterPath   string  `json:"poster_path"`
	VoteAverage  float64 `json:"vote_average"`
	VoteCount    int64   `json:"vote_count"`
}

// DisplayName returns title for movies and name for tv.
func (t Title) DisplayName(kind Kind) string {
	if kind == KindTV {
		return t.Name
	}
	return t.Title
}

// Date returns release_date for movies and first_air_date for tv.
func (t Title) Date(kind Kind) string {
	if kind == KindTV {
		return t.FirstAirDate
	}
	return t.ReleaseDate
}

// TrendingItem is one entry of GET /trending/{kind}/{window}. ID is nil when
// the upstream sent null or omitted it.
type TrendingItem struct {
	ID    *int64 `json:"id"`
	Title string `json:"title"`
	Name  string `json:"name"`
}

func (t TrendingItem) DisplayName(kind Kind) string {
	if kind == KindTV {
		return t.Name
	}
	return t.Title
}

type trendingResponse struct {
	Page    int            `json:"page"`
	Results []TrendingItem `json:"results"`
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e == nil {
		return "tmdb status error"
	}
	return fmt.Sprintf("tmdb http %d", e.StatusCode)
}
