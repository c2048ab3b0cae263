// Package scoring combines recency decay and persona relevance into a
// single relevance score per article.
package scoring

import (
	"strings"

	"github.com/briefcast/briefcast/internal/article"
	"github.com/briefcast/briefcast/internal/persona"
)

// FallbackFloor is the minimum fallback relevance. An article is never
// scored as zero-relevance purely for lack of persona signal.
const FallbackFloor = 0.3

// maxFallbackMatches is the number of match checks the fallback scorer
// performs: job-title terms, company name, inferred industry in text,
// and industry tag equality.
const maxFallbackMatches = 4

// commonRoles are business-role words recognized inside job titles.
var commonRoles = []string{
	"manager", "director", "executive", "analyst", "specialist",
	"engineer", "developer", "architect", "consultant", "advisor",
	"officer", "lead", "head", "chief", "vp", "president", "ceo", "cto", "cio",
}

// commonDepartments are department words recognized inside job titles.
var commonDepartments = []string{
	"sales", "marketing", "product", "engineering", "development", "finance",
	"hr", "operations", "research", "strategy", "technology", "it", "security",
	"data", "analytics", "customer", "support", "service", "business", "legal",
}

// industryKeywords maps industry labels to the keywords that imply them.
var industryKeywords = map[string][]string{
	article.IndustryBFSI:       {"bank", "finance", "insurance", "wealth", "investment", "trading", "fintech"},
	article.IndustryRetail:     {"retail", "ecommerce", "shop", "store", "consumer", "merchandise"},
	article.IndustryTechnology: {"tech", "software", "hardware", "cloud", "saas", "digital", "computer", "it"},
	article.IndustryHealthcare: {"health", "medical", "pharma", "biotech", "hospital", "clinic", "patient"},
}

// FallbackPersonaScore estimates persona relevance with a local
// keyword-overlap heuristic. It is pure and deterministic: no network
// calls, same inputs always produce the same score in [FallbackFloor, 1.0].
func FallbackPersonaScore(a article.Article, p persona.Persona) float64 {
	content := strings.ToLower(a.Title + " " + a.Summary)
	personaIndustry := InferIndustry(p.JobTitle + " " + p.Company)

	matches := 0

	if p.JobTitle != "" {
		for _, term := range JobRoleTerms(p.JobTitle) {
			if len(term) > 3 && strings.Contains(content, term) {
				matches++
				break
			}
		}
	}

	if company := strings.ToLower(p.Company); company != "" && strings.Contains(content, company) {
		matches++
	}

	if personaIndustry != article.IndustryOther && strings.Contains(content, personaIndustry) {
		matches++
	}

	if a.Industry != "" && personaIndustry != article.IndustryOther && a.Industry == personaIndustry {
		matches++
	}

	score := float64(matches) / maxFallbackMatches
	if score < FallbackFloor {
		return FallbackFloor
	}
	return clamp(score)
}

// JobRoleTerms extracts matchable terms from a job title: the raw
// tokens plus any recognized role and department words contained in
// the title.
func JobRoleTerms(jobTitle string) []string {
	titleLower := strings.ToLower(jobTitle)

	var terms []string
	seen := make(map[string]bool)
	add := func(term string) {
		if !seen[term] {
			seen[term] = true
			terms = append(terms, term)
		}
	}

	for _, token := range strings.Fields(titleLower) {
		if len(token) > 2 {
			add(token)
		}
	}
	for _, role := range commonRoles {
		if strings.Contains(titleLower, role) {
			add(role)
		}
	}
	for _, dept := range commonDepartments {
		if strings.Contains(titleLower, dept) {
			add(dept)
		}
	}
	return terms
}

// InferIndustry guesses an industry label from free text such as a job
// title or company name. Returns IndustryOther when nothing matches.
func InferIndustry(text string) string {
	textLower := strings.ToLower(text)
	for _, label := range []string{article.IndustryBFSI, article.IndustryRetail, article.IndustryTechnology, article.IndustryHealthcare} {
		for _, keyword := range industryKeywords[label] {
			if strings.Contains(textLower, keyword) {
				return label
			}
		}
	}
	return article.IndustryOther
}
