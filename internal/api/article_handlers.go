package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/briefcast/briefcast/internal/article"
	"github.com/briefcast/briefcast/internal/middleware"
	"github.com/briefcast/briefcast/internal/persona"
	"github.com/briefcast/briefcast/internal/scoring"
)

// DefaultListLimit is the page size when the request does not specify one.
const DefaultListLimit = 20

// MaxListLimit caps the page size for list and ranked endpoints.
const MaxListLimit = 100

// ArticleListResponse is the response body for article listing.
type ArticleListResponse struct {
	Articles []article.Article `json:"articles"`
}

// RankedArticlesResponse is the response body for the ranked feed.
type RankedArticlesResponse struct {
	Articles []scoring.ScoredArticle `json:"articles"`
}

// ArticleHandlers holds dependencies for article HTTP handlers.
type ArticleHandlers struct {
	catalog article.Catalog
	engine  *scoring.Engine
}

// NewArticleHandlers creates a new ArticleHandlers instance.
func NewArticleHandlers(catalog article.Catalog, engine *scoring.Engine) *ArticleHandlers {
	return &ArticleHandlers{
		catalog: catalog,
		engine:  engine,
	}
}

// ListArticles handles GET /api/articles - lists catalog articles with
// optional industry filter, ordering, and paging.
func (h *ArticleHandlers) ListArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	industry := q.Get("industry")
	if industry != "" && !article.ValidIndustry(industry) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidIndustry)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidIndustry, "Unknown industry: "+industry)
		return
	}

	sortBy := q.Get("sort_by")
	switch sortBy {
	case "", "published_at", "relevance_score":
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidSort)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidSort,
			"sort_by must be published_at or relevance_score")
		return
	}

	limit, err := parseIntParam(q.Get("limit"), DefaultListLimit)
	if err != nil || limit < 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be a non-negative integer")
		return
	}
	if limit == 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}

	offset, err := parseIntParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "offset must be a non-negative integer")
		return
	}

	articles, err := h.catalog.List(r.Context(), article.ListOptions{
		Industry: industry,
		SortBy:   sortBy,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list articles", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list articles")
		return
	}
	if articles == nil {
		articles = []article.Article{}
	}

	writeJSON(w, r, http.StatusOK, ArticleListResponse{Articles: articles})
}

// RankedArticles handles GET /api/articles/ranked - returns the newest
// articles reordered by persona relevance. The persona is read from
// query parameters; an absent persona degrades to a pure recency feed.
func (h *ArticleHandlers) RankedArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	industry := q.Get("industry")
	if industry != "" && !article.ValidIndustry(industry) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidIndustry)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidIndustry, "Unknown industry: "+industry)
		return
	}

	limit, err := parseIntParam(q.Get("limit"), DefaultScoreLimit)
	if err != nil || limit <= 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be a positive integer")
		return
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	p := persona.Persona{
		RecipientName:       q.Get("recipient_name"),
		JobTitle:            q.Get("job_title"),
		Company:             q.Get("company"),
		ConversationContext: q.Get("conversation_context"),
		PersonalityTraits:   q.Get("personality_traits"),
	}

	// Fetch twice the requested page so relevant but slightly older
	// articles can displace newer ones in the final ordering.
	candidates, err := h.catalog.List(r.Context(), article.ListOptions{
		Industry: industry,
		SortBy:   "published_at",
		Limit:    2 * limit,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to fetch ranking candidates", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to fetch articles")
		return
	}

	ranked := h.engine.Rank(r.Context(), candidates, p, scoring.ExpandedFetchOracleBudget(limit))
	if limit < len(ranked) {
		ranked = ranked[:limit]
	}

	writeJSON(w, r, http.StatusOK, RankedArticlesResponse{Articles: ranked})
}

// parseIntParam parses an optional integer query parameter.
func parseIntParam(raw string, defaultVal int) (int, error) {
	if raw == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(raw)
}
