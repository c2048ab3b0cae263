package scoring

import (
	"math"
	"time"
)

// DecayFactor controls how quickly relevance decays with article age.
// A fresh article scores 1.0, one day old ~0.6, three days old ~0.22.
const DecayFactor = 0.5

// Weights for combining the recency and persona components. Persona
// fit dominates once a persona is supplied; with no persona the engine
// returns pure recency instead.
const (
	RecencyWeight = 0.3
	PersonaWeight = 0.7
)

// RecencyScore computes the exponential recency decay for an article
// published at publishedAt, evaluated at now. Both timestamps are
// normalized to UTC and age is counted in whole days. An unknown
// publish time scores 0.0.
func RecencyScore(publishedAt *time.Time, now time.Time) float64 {
	if publishedAt == nil || publishedAt.IsZero() {
		return 0.0
	}

	daysOld := int(now.UTC().Sub(publishedAt.UTC()).Hours() / 24)
	if daysOld < 0 {
		daysOld = 0
	}
	return math.Exp(-DecayFactor * float64(daysOld))
}

// Combine merges a recency score and a persona relevance score using
// the configured weights, clamped to [0, 1].
func Combine(recency, persona float64) float64 {
	return clamp(RecencyWeight*recency + PersonaWeight*persona)
}

// clamp bounds a score to [0, 1].
func clamp(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
