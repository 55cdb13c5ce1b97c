package sitemap

import (
	"context"
	"strconv"
	"strings"

	"vidplay/internal/tmdb"
)

// Source yields dynamic entries. A failing source is dropped from the
// sitemap without affecting the others.
type Source interface {
	Name() string
	Entries(ctx context.Context) ([]Entry, error)
}

// Trender lists trending titles. *tmdb.Client satisfies it.
type Trender interface {
	Trending(ctx context.Context, kind tmdb.Kind, window string) ([]tmdb.TrendingItem, error)
}

// TrendingSource maps this week's trending titles of one kind to detail
// page entries.
type TrendingSource struct {
	client  Trender
	kind    tmdb.Kind
	siteURL string
	limit   int
}

func NewTrendingSource(client Trender, kind tmdb.Kind, siteURL string, limit int) *TrendingSource {
	if limit <= 0 {
		limit = 50
	}
	return &TrendingSource{
		client:  client,
		kind:    kind,
		siteURL: strings.TrimRight(siteURL, "/"),
		limit:   limit,
	}
}

func (s *TrendingSource) Name() string { return "trending_" + string(s.kind) }

func (s *TrendingSource) Entries(ctx context.Context) ([]Entry, error) {
	items, err := s.client.Trending(ctx, s.kind, "week")
	if err != nil {
		return nil, err
	}
	if len(items) > s.limit {
		items = items[:s.limit]
	}
	out := make([]Entry, 0, len(items))
	for _, it := range items {
		if it.ID == nil {
			continue
		}
		loc := s.siteURL + "/" + string(s.kind) + "/" + strconv.FormatInt(*it.ID, 10)
		if slug := Slugify(it.DisplayName(s.kind)); slug != "" {
			loc += "/" + slug
		}
		out = append(out, Entry{Loc: loc, ChangeFreq: Daily, Priority: "0.7"})
	}
	return out, nil
}

// CollectionLister lists featured collection ids.
// *collections.Store satisfies it.
type CollectionLister interface {
	FeaturedIDs(ctx context.Context) ([]int64, error)
}

// CollectionSource emits /collection/{id} entries for featured collections.
type CollectionSource struct {
	lister  CollectionLister
	siteURL string
}

func NewCollectionSource(lister CollectionLister, siteURL string) *CollectionSource {
	return &CollectionSource{lister: lister, siteURL: strings.TrimRight(siteURL, "/")}
}

func (s *CollectionSource) Name() string { return "collections" }

func (s *CollectionSource) Entries(ctx context.Context) ([]Entry, error) {
	ids, err := s.lister.FeaturedIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, Entry{
			Loc:        s.siteURL + "/collection/" + strconv.FormatInt(id, 10),
			ChangeFreq: Weekly,
			Priority:   "0.6",
		})
	}
	return out, nil
}
