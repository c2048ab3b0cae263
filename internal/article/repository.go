// Package article provides the article model and catalog access for
// relevance scoring.
package article

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
)

// PostgresCatalog implements Catalog backed by PostgreSQL.
type PostgresCatalog struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresCatalog creates a new PostgresCatalog.
func NewPostgresCatalog(db *sql.DB, logger *slog.Logger) *PostgresCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCatalog{
		db:     db,
		logger: logger,
	}
}

// GetByIDs returns the articles matching the given ids. Unknown ids are
// omitted from the result; the caller cannot distinguish a deleted
// article from one that never existed, and does not need to.
func (c *PostgresCatalog) GetByIDs(ctx context.Context, ids []string) ([]Article, error) {
	if len(ids) == 0 {
		return []Article{}, nil
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, title, COALESCE(summary, ''), COALESCE(industry, 'other'),
		       COALESCE(relevance_score, 0), published_at
		FROM articles
		WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("query articles by ids: %w", err)
	}
	defer rows.Close()

	found := make(map[string]Article, len(ids))
	for rows.Next() {
		var a Article
		var publishedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.Title, &a.Summary, &a.Industry, &a.RelevanceScore, &publishedAt); err != nil {
			return nil, fmt.Errorf("scan article row: %w", err)
		}
		if publishedAt.Valid {
			t := publishedAt.Time.UTC()
			a.PublishedAt = &t
		}
		found[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article rows: %w", err)
	}

	// Preserve request order for the ids that resolved.
	result := make([]Article, 0, len(found))
	for _, id := range ids {
		if a, ok := found[id]; ok {
			result = append(result, a)
		}
	}
	if len(result) < len(ids) {
		c.logger.Debug("skipped unresolved article ids",
			"requested", len(ids),
			"resolved", len(result))
	}
	return result, nil
}

// List returns articles filtered by industry and ordered by the given
// column. The sort column is restricted to a whitelist; anything else
// falls back to published_at.
func (c *PostgresCatalog) List(ctx context.Context, opts ListOptions) ([]Article, error) {
	sortBy := "published_at"
	if opts.SortBy == "relevance_score" {
		sortBy = "relevance_score"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	query := fmt.Sprintf(`
		SELECT id, title, COALESCE(summary, ''), COALESCE(industry, 'other'),
		       COALESCE(relevance_score, 0), published_at
		FROM articles
		WHERE ($1 = '' OR industry = $1)
		ORDER BY %s DESC NULLS LAST
		LIMIT $2 OFFSET $3`, sortBy)

	rows, err := c.db.QueryContext(ctx, query, opts.Industry, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	result := make([]Article, 0, limit)
	for rows.Next() {
		var a Article
		var publishedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.Title, &a.Summary, &a.Industry, &a.RelevanceScore, &publishedAt); err != nil {
			return nil, fmt.Errorf("scan article row: %w", err)
		}
		if publishedAt.Valid {
			t := publishedAt.Time.UTC()
			a.PublishedAt = &t
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article rows: %w", err)
	}
	return result, nil
}
