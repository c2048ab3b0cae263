// Package article provides the article model and catalog access for
// relevance scoring.
package article

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Industry labels used to tag articles and match persona industries.
const (
	IndustryBFSI       = "bfsi"
	IndustryRetail     = "retail"
	IndustryHealthcare = "healthcare"
	IndustryTechnology = "technology"
	IndustryOther      = "other"
)

// ValidIndustry reports whether the label is a known industry tag.
func ValidIndustry(label string) bool {
	switch label {
	case IndustryBFSI, IndustryRetail, IndustryHealthcare, IndustryTechnology, IndustryOther:
		return true
	}
	return false
}

// Article is a content item from the catalog. The catalog owns the
// record; the scoring engine treats it as read-only input apart from
// RelevanceScore, which holds the most recent combined score.
type Article struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Summary        string     `json:"summary"`
	Industry       string     `json:"industry"`
	RelevanceScore float64    `json:"relevance_score"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
}

// Catalog provides read access to article records.
type Catalog interface {
	// GetByIDs returns the articles for the given ids. Ids with no
	// matching record are omitted from the result, not reported as
	// errors; upstream id lists may reference deleted articles.
	GetByIDs(ctx context.Context, ids []string) ([]Article, error)

	// List returns articles, optionally filtered by industry, ordered
	// by the given column, newest or highest first.
	List(ctx context.Context, opts ListOptions) ([]Article, error)
}

// ListOptions controls Catalog.List filtering and ordering.
type ListOptions struct {
	Industry string // empty means all industries
	SortBy   string // "published_at" (default) or "relevance_score"
	Limit    int
	Offset   int
}

// InMemoryCatalog is an in-memory implementation of Catalog for
// testing and development.
type InMemoryCatalog struct {
	mu       sync.RWMutex
	articles map[string]Article
}

// NewInMemoryCatalog creates a new in-memory catalog.
func NewInMemoryCatalog() *InMemoryCatalog {
	return &InMemoryCatalog{
		articles: make(map[string]Article),
	}
}

// Add stores an article in the catalog.
func (c *InMemoryCatalog) Add(a Article) {
	c.mu.Lock()
	c.articles[a.ID] = a
	c.mu.Unlock()
}

// Remove deletes an article from the catalog.
func (c *InMemoryCatalog) Remove(id string) {
	c.mu.Lock()
	delete(c.articles, id)
	c.mu.Unlock()
}

// GetByIDs returns the articles for the given ids, skipping unknown ids.
func (c *InMemoryCatalog) GetByIDs(ctx context.Context, ids []string) ([]Article, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]Article, 0, len(ids))
	for _, id := range ids {
		if a, ok := c.articles[id]; ok {
			result = append(result, a)
		}
	}
	return result, nil
}

// List returns articles filtered and ordered per opts.
func (c *InMemoryCatalog) List(ctx context.Context, opts ListOptions) ([]Article, error) {
	c.mu.RLock()
	all := make([]Article, 0, len(c.articles))
	for _, a := range c.articles {
		if opts.Industry != "" && a.Industry != opts.Industry {
			continue
		}
		all = append(all, a)
	}
	c.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if opts.SortBy == "relevance_score" {
			return all[i].RelevanceScore > all[j].RelevanceScore
		}
		ti, tj := all[i].PublishedAt, all[j].PublishedAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(all) {
			return []Article{}, nil
		}
		all = all[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}
