// Package scoring combines recency decay and persona relevance into a
// single relevance score per article.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/briefcast/briefcast/internal/article"
	"github.com/briefcast/briefcast/internal/persona"
)

// Oracle estimates how relevant an article is to a persona. The
// estimate is expensive (a network round trip) and the returned value
// is untrusted: implementations must attempt a numeric parse and
// return an error on anything that does not parse.
type Oracle interface {
	// Score returns a relevance estimate in [0, 1] for the prompt.
	Score(ctx context.Context, prompt string) (float64, error)
}

// DefaultOracleConcurrency bounds how many oracle calls are in flight
// at once within a single batch, to respect oracle rate limits.
const DefaultOracleConcurrency = 5

// EngineConfig configures a scoring Engine.
type EngineConfig struct {
	// Oracle is the external relevance oracle. May be nil, in which
	// case every score uses the local fallback heuristic.
	Oracle Oracle
	// OracleConcurrency bounds parallel oracle calls per batch.
	OracleConcurrency int
	// Logger for scoring activity.
	Logger *slog.Logger
	// Metrics for oracle call tracking.
	Metrics *Metrics
}

// Engine scores articles against personas. It holds its collaborators
// as injected dependencies so it can be exercised with fakes.
type Engine struct {
	oracle      Oracle
	concurrency int
	logger      *slog.Logger
	metrics     *Metrics
}

// NewEngine creates a scoring engine.
func NewEngine(config EngineConfig) *Engine {
	if config.OracleConcurrency <= 0 {
		config.OracleConcurrency = DefaultOracleConcurrency
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Engine{
		oracle:      config.Oracle,
		concurrency: config.OracleConcurrency,
		logger:      config.Logger,
		metrics:     config.Metrics,
	}
}

// OraclePersonaScore asks the oracle for a persona relevance estimate,
// clamped to [0, 1]. Oracle failures are absorbed: the method falls
// back to FallbackPersonaScore and logs a warning.
func (e *Engine) OraclePersonaScore(ctx context.Context, a article.Article, p persona.Persona) float64 {
	if e.oracle == nil {
		return FallbackPersonaScore(a, p)
	}

	start := time.Now()
	score, err := e.oracle.Score(ctx, RelevancePrompt(a, p))
	if e.metrics != nil {
		e.metrics.ObserveOracleCallDuration(time.Since(start).Seconds())
		e.metrics.IncOracleCalls()
	}
	if err != nil {
		e.logger.Warn("oracle scoring failed, using fallback",
			"article_id", a.ID,
			"error", err)
		if e.metrics != nil {
			e.metrics.IncOracleFallbacks()
		}
		return FallbackPersonaScore(a, p)
	}
	return clamp(score)
}

// TopNOracleBudget is the oracle budget for a bounded top-N request:
// ceil(1.5x) the requested result size.
func TopNOracleBudget(limit int) int {
	return int(math.Ceil(1.5 * float64(limit)))
}

// ExpandedFetchOracleBudget is the oracle budget for the expanded-fetch
// path: 2x the requested result size.
func ExpandedFetchOracleBudget(limit int) int {
	return 2 * limit
}

// ScoreBatch computes a combined relevance score for each article,
// returned in input order. It runs the two-pass optimization: pass one
// scores everything with the cheap fallback heuristic, pass two
// re-scores only the oracleBudget best fallback candidates against the
// oracle, so oracle spend scales with the requested result size rather
// than the candidate pool.
//
// With an empty persona the oracle and fallback are skipped entirely
// and each article scores pure recency.
func (e *Engine) ScoreBatch(ctx context.Context, articles []article.Article, p persona.Persona, oracleBudget int) []float64 {
	if len(articles) == 0 {
		return []float64{}
	}

	now := time.Now().UTC()
	recency := make([]float64, len(articles))
	for i, a := range articles {
		recency[i] = RecencyScore(a.PublishedAt, now)
	}

	if p.IsEmpty() {
		return recency
	}

	// Pass 1: cheap fallback estimate for every candidate.
	personaScores := make([]float64, len(articles))
	for i, a := range articles {
		personaScores[i] = FallbackPersonaScore(a, p)
	}

	// Pass 2: oracle re-scores only the most promising candidates.
	if e.oracle != nil && oracleBudget > 0 {
		k := oracleBudget
		if k > len(articles) {
			k = len(articles)
		}
		topK := topIndexesByScore(personaScores, k)
		e.rescoreWithOracle(ctx, articles, p, topK, personaScores)
	}

	combined := make([]float64, len(articles))
	for i := range articles {
		combined[i] = Combine(recency[i], personaScores[i])
	}
	return combined
}

// rescoreWithOracle replaces the fallback persona scores at the given
// indexes with oracle estimates, using a bounded worker pool. Results
// land at their deterministic index positions, so within-batch order
// is stable even though execution order is not.
func (e *Engine) rescoreWithOracle(ctx context.Context, articles []article.Article, p persona.Persona, indexes []int, scores []float64) {
	start := time.Now()
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup

	for _, idx := range indexes {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			scores[i] = e.OraclePersonaScore(ctx, articles[i], p)
		}(idx)
	}
	wg.Wait()

	e.logger.Debug("oracle rescoring pass completed",
		"candidates", len(articles),
		"rescored", len(indexes),
		"duration_ms", time.Since(start).Milliseconds())
}

// topIndexesByScore returns the indexes of the k highest scores,
// best first. Ties resolve to the earlier index for determinism.
func topIndexesByScore(scores []float64, k int) []int {
	indexes := make([]int, len(scores))
	for i := range indexes {
		indexes[i] = i
	}
	sort.SliceStable(indexes, func(a, b int) bool {
		return scores[indexes[a]] > scores[indexes[b]]
	})
	if k > len(indexes) {
		k = len(indexes)
	}
	return indexes[:k]
}

// ScoredArticle pairs an article with its combined relevance score.
type ScoredArticle struct {
	Article article.Article `json:"article"`
	Score   float64         `json:"relevance_score"`
}

// Rank scores the candidate set and returns it ordered best first,
// with each article's RelevanceScore updated to the combined score.
func (e *Engine) Rank(ctx context.Context, articles []article.Article, p persona.Persona, oracleBudget int) []ScoredArticle {
	scores := e.ScoreBatch(ctx, articles, p, oracleBudget)

	ranked := make([]ScoredArticle, len(articles))
	for i, a := range articles {
		a.RelevanceScore = scores[i]
		ranked[i] = ScoredArticle{Article: a, Score: scores[i]}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Score > ranked[b].Score
	})
	return ranked
}

// RelevancePrompt builds the oracle prompt for one article/persona
// pair. The oracle is instructed to output only a numeric score; the
// response is still treated as untrusted text by callers.
func RelevancePrompt(a article.Article, p persona.Persona) string {
	articleContent := fmt.Sprintf("Title: %s\nSummary: %s\nIndustry: %s", a.Title, a.Summary, a.Industry)

	return fmt.Sprintf(`I need to determine how relevant an article is to a specific person.

PERSONA INFORMATION:
%s
ARTICLE CONTENT:
%s

Consider the following aspects:
1. How relevant is this article to the person's job role and responsibilities?
2. How relevant is this article to the person's company or industry?
3. How well does this article connect to their previous conversation context?
4. Would this content be valuable to this specific person?

Return a relevance score between 0.0 and 1.0 where:
- 0.0 means completely irrelevant
- 1.0 means extremely relevant and perfectly aligned with their interests

Output only the numerical score (e.g., 0.87) without any explanation or additional text.`,
		p.Description(), articleContent)
}
