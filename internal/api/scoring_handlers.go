package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/briefcast/briefcast/internal/article"
	"github.com/briefcast/briefcast/internal/batch"
	"github.com/briefcast/briefcast/internal/middleware"
	"github.com/briefcast/briefcast/internal/persona"
	"github.com/briefcast/briefcast/internal/scoring"
	"github.com/briefcast/briefcast/internal/validate"
)

// MaxSyncArticleIDs bounds synchronous scoring requests. Larger sets
// must go through the batch endpoint.
const MaxSyncArticleIDs = 50

// DefaultScoreLimit is the number of ranked articles returned when the
// request does not specify a limit.
const DefaultScoreLimit = 10

// ScoreRequest is the request body for synchronous scoring.
type ScoreRequest struct {
	ArticleIDs []string        `json:"article_ids"`
	Persona    persona.Persona `json:"persona"`
	Limit      int             `json:"limit,omitempty"`
}

// ScoreResponse is the response body for synchronous scoring: the
// requested articles ordered best first, truncated to the limit.
type ScoreResponse struct {
	Articles []scoring.ScoredArticle `json:"articles"`
}

// BatchScoreRequest is the request body for batch job submission.
type BatchScoreRequest struct {
	ArticleIDs []string        `json:"article_ids"`
	Persona    persona.Persona `json:"persona"`
}

// BatchSubmitResponse acknowledges an accepted batch scoring job.
type BatchSubmitResponse struct {
	JobID  string       `json:"job_id"`
	Status batch.Status `json:"status"`
	Total  int          `json:"total"`
}

// BatchStatusResponse is the full status document for a batch scoring
// job. Every field is always present; Results is never null.
type BatchStatusResponse struct {
	JobID              string         `json:"job_id"`
	Status             batch.Status   `json:"status"`
	Processed          int            `json:"processed"`
	Total              int            `json:"total"`
	ProgressPercentage int            `json:"progress_percentage"`
	Results            []batch.Result `json:"results"`
	Skipped            int            `json:"skipped"`
	Error              string         `json:"error,omitempty"`
}

// ScoringHandlers holds dependencies for scoring HTTP handlers.
type ScoringHandlers struct {
	engine       *scoring.Engine
	catalog      article.Catalog
	orchestrator *batch.Orchestrator
}

// NewScoringHandlers creates a new ScoringHandlers instance.
func NewScoringHandlers(engine *scoring.Engine, catalog article.Catalog, orchestrator *batch.Orchestrator) *ScoringHandlers {
	return &ScoringHandlers{
		engine:       engine,
		catalog:      catalog,
		orchestrator: orchestrator,
	}
}

// ScoreArticles handles POST /api/articles/score - synchronous scoring
// of a small article set for one persona.
func (h *ScoringHandlers) ScoreArticles(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON request body")
		return
	}

	if len(req.ArticleIDs) == 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "article_ids is required")
		return
	}
	if len(req.ArticleIDs) > MaxSyncArticleIDs {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeTooManyArticles)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeTooManyArticles,
			"Too many article ids for synchronous scoring; use the batch endpoint")
		return
	}

	if err := validateScoreInputs(req.ArticleIDs, &req.Persona); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultScoreLimit
	}

	articles, err := h.catalog.GetByIDs(r.Context(), req.ArticleIDs)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to fetch articles for scoring", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to fetch articles")
		return
	}

	// The oracle budget covers more candidates than the limit so the
	// final ordering is stable near the cutoff.
	ranked := h.engine.Rank(r.Context(), articles, req.Persona, scoring.TopNOracleBudget(limit))
	if limit < len(ranked) {
		ranked = ranked[:limit]
	}

	writeJSON(w, r, http.StatusOK, ScoreResponse{Articles: ranked})
}

// SubmitBatch handles POST /api/articles/score/batch - queues an
// asynchronous scoring job and returns its id immediately.
func (h *ScoringHandlers) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON request body")
		return
	}

	if len(req.ArticleIDs) > 0 {
		if err := validateScoreInputs(req.ArticleIDs, &req.Persona); err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
	}

	jobID, err := h.orchestrator.Submit(r.Context(), req.ArticleIDs, req.Persona)
	if err != nil {
		if errors.Is(err, batch.ErrNoArticleIDs) || errors.Is(err, batch.ErrEmptyPersona) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "failed to submit scoring job", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeJobSubmitFailed)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeJobSubmitFailed, "Failed to queue scoring job")
		return
	}

	writeJSON(w, r, http.StatusAccepted, BatchSubmitResponse{
		JobID:  jobID,
		Status: batch.StatusProcessing,
		Total:  len(req.ArticleIDs),
	})
}

// BatchStatus handles GET /api/articles/score/batch/{job_id} - returns
// the current status document for a job. An unknown or reclaimed job
// id reports status "expired" rather than 404: expiry is an ordinary
// lifecycle outcome for the caller to handle.
func (h *ScoringHandlers) BatchStatus(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/api/articles/score/batch/")
	if jobID == "" || strings.Contains(jobID, "/") {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Job ID is required")
		return
	}

	job, err := h.orchestrator.Status(r.Context(), jobID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to read job status", "error", err, "job_id", jobID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to read job status")
		return
	}

	results := job.Results
	if results == nil {
		results = []batch.Result{}
	}

	writeJSON(w, r, http.StatusOK, BatchStatusResponse{
		JobID:              job.ID,
		Status:             job.Status,
		Processed:          job.Processed,
		Total:              job.Total,
		ProgressPercentage: job.ProgressPercentage(),
		Results:            results,
		Skipped:            job.Skipped,
		Error:              job.Error,
	})
}

// validateScoreInputs bounds article ids and persona attributes before
// they reach the engine or an oracle prompt. Persona fields are
// trimmed in place.
func validateScoreInputs(ids []string, p *persona.Persona) error {
	for _, id := range ids {
		if _, err := validate.ArticleID(id); err != nil {
			return fmt.Errorf("article id %q: %w", id, err)
		}
	}

	for _, field := range []*string{
		&p.RecipientName,
		&p.JobTitle,
		&p.Company,
		&p.ConversationContext,
		&p.PersonalityTraits,
	} {
		trimmed, err := validate.PersonaField(*field)
		if err != nil {
			return fmt.Errorf("persona attribute: %w", err)
		}
		*field = trimmed
	}
	return nil
}

// writeJSON writes a JSON response body with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
