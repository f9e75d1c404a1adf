package service

import (
	"context"
	"log"
	"strings"
	"time"

	"coursecatalog/internal/models"
	"coursecatalog/internal/repository"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 200
)

// filterAliases maps accepted filter keys onto filter columns.
var filterAliases = map[string]string{
	"provider":    "provider",
	"platform":    "platform",
	"difficulty":  "difficulty",
	"skill_level": "skill_level",
	"skillLevel":  "skill_level",
	"hands_on":    "hands_on",
	"handsOn":     "hands_on",
	"track":       "track",
}

type QueryOptions struct {
	Search   string
	Filters  map[string][]string
	Page     int
	PageSize int
}

type QueryResult struct {
	Items            []models.Course     `json:"items"`
	Total            int64               `json:"total"`
	Page             int                 `json:"page"`
	PageSize         int                 `json:"page_size"`
	TotalPages       int                 `json:"total_pages"`
	AvailableFilters map[string][]string `json:"available_filters"`
}

// NormalizeQuery clamps paging into range and reduces the search term and
// filters to their lower-cased, trimmed form. Unknown filter keys and
// blank values are dropped.
func NormalizeQuery(opts QueryOptions) (QueryOptions, repository.CourseFilter) {
	if opts.PageSize < 1 {
		opts.PageSize = 1
	}
	if opts.PageSize > MaxPageSize {
		opts.PageSize = MaxPageSize
	}
	if opts.Page < 1 {
		opts.Page = 1
	}

	filter := repository.CourseFilter{
		Search:  strings.ToLower(strings.TrimSpace(opts.Search)),
		Filters: make(map[string][]string),
	}
	for key, values := range opts.Filters {
		column, ok := filterAliases[key]
		if !ok {
			continue
		}
		for _, v := range values {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				filter.Filters[column] = append(filter.Filters[column], v)
			}
		}
	}
	return opts, filter
}

type QueryEngine struct {
	repo      repository.CourseRepository
	cache     repository.CacheRepository
	facetsTTL time.Duration
}

func NewQueryEngine(repo repository.CourseRepository, cache repository.CacheRepository, facetsTTL time.Duration) *QueryEngine {
	return &QueryEngine{repo: repo, cache: cache, facetsTTL: facetsTTL}
}

// Query returns one page of matching courses plus the facets of the
// whole, unfiltered collection.
func (q *QueryEngine) Query(ctx context.Context, opts QueryOptions) (*QueryResult, error) {
	opts, filter := NormalizeQuery(opts)

	result := &QueryResult{PageSize: opts.PageSize}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		total, err := q.repo.Count(gctx, filter)
		if err != nil {
			return err
		}

		result.Total = total
		result.TotalPages = int((total + int64(opts.PageSize) - 1) / int64(opts.PageSize))
		result.Page = opts.Page
		if result.TotalPages == 0 {
			result.Page = 1
			result.Items = []models.Course{}
			return nil
		}
		if result.Page > result.TotalPages {
			result.Page = result.TotalPages
		}

		items, err := q.repo.Find(gctx, filter, (result.Page-1)*opts.PageSize, opts.PageSize)
		if err != nil {
			return err
		}
		result.Items = items
		return nil
	})

	g.Go(func() error {
		facets, err := q.Facets(gctx)
		if err != nil {
			return err
		}
		result.AvailableFilters = facets
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// Facets returns the distinct values of every filter column. The result
// is cached until the next course mutation.
func (q *QueryEngine) Facets(ctx context.Context) (map[string][]string, error) {
	var gen int64
	cacheable := q.cache != nil
	if cacheable {
		var cached map[string][]string
		found, err := q.cache.GetJSON(ctx, repository.FacetsCacheKey, &cached)
		if err != nil {
			log.Printf("Query engine: failed to read facets cache: %v", err)
		} else if found {
			return cached, nil
		}

		gen, err = q.cache.Generation(ctx, repository.FacetsGenerationKey)
		if err != nil {
			log.Printf("Query engine: failed to read facets generation: %v", err)
			cacheable = false
		}
	}

	facets := make(map[string][]string, len(repository.FilterColumns))
	for _, column := range repository.FilterColumns {
		values, err := q.repo.DistinctValues(ctx, column)
		if err != nil {
			return nil, err
		}
		facets[column] = values
	}

	if cacheable {
		_, err := q.cache.SetJSONAtGeneration(ctx, repository.FacetsCacheKey, repository.FacetsGenerationKey, gen, facets, q.facetsTTL)
		if err != nil {
			log.Printf("Query engine: failed to cache facets: %v", err)
		}
	}
	return facets, nil
}

// InvalidateFacets drops the cached facets and bumps their generation so
// an in-flight computation started before the mutation is not cached. It
// is registered as a course commit hook.
func (q *QueryEngine) InvalidateFacets(ctx context.Context, _ repository.CourseMutation) error {
	if q.cache == nil {
		return nil
	}
	return q.cache.Invalidate(ctx, repository.FacetsGenerationKey, repository.FacetsCacheKey)
}
