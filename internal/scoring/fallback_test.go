package scoring

import (
	"testing"

	"github.com/briefcast/briefcast/internal/article"
	"github.com/briefcast/briefcast/internal/persona"
)

func TestFallbackPersonaScore_EmptyPersonaGetsFloor(t *testing.T) {
	a := article.Article{Title: "Cloud spending trends", Summary: "SaaS budgets keep growing"}
	got := FallbackPersonaScore(a, persona.Persona{})
	if got != FallbackFloor {
		t.Errorf("FallbackPersonaScore(empty persona) = %v, want %v", got, FallbackFloor)
	}
}

func TestFallbackPersonaScore_Bounds(t *testing.T) {
	articles := []article.Article{
		{},
		{Title: "Quarterly report", Summary: "numbers"},
		{Title: "Banking fintech engineering at Vertex", Summary: "bank software engineering", Industry: article.IndustryBFSI},
	}
	personas := []persona.Persona{
		{},
		{JobTitle: "Engineer"},
		{JobTitle: "VP of Engineering", Company: "Vertex"},
		{JobTitle: "Head of Banking Technology", Company: "Vertex", PersonalityTraits: "direct"},
	}

	for _, a := range articles {
		for _, p := range personas {
			got := FallbackPersonaScore(a, p)
			if got < FallbackFloor || got > 1.0 {
				t.Errorf("FallbackPersonaScore(%q, %+v) = %v out of [%v, 1.0]", a.Title, p, got, FallbackFloor)
			}
		}
	}
}

func TestFallbackPersonaScore_Deterministic(t *testing.T) {
	a := article.Article{Title: "Retail analytics", Summary: "consumer data platforms", Industry: article.IndustryRetail}
	p := persona.Persona{JobTitle: "Retail Analytics Manager", Company: "ShopCo"}

	first := FallbackPersonaScore(a, p)
	for i := 0; i < 10; i++ {
		if got := FallbackPersonaScore(a, p); got != first {
			t.Fatalf("FallbackPersonaScore not deterministic: %v then %v", first, got)
		}
	}
}

func TestFallbackPersonaScore_CountsMatches(t *testing.T) {
	tests := []struct {
		name    string
		article article.Article
		persona persona.Persona
		want    float64
	}{
		{
			name:    "no overlap keeps floor",
			article: article.Article{Title: "Gardening tips", Summary: "tomatoes"},
			persona: persona.Persona{JobTitle: "Underwriter"},
			want:    FallbackFloor,
		},
		{
			name:    "company mention and job term",
			article: article.Article{Title: "Globex ships new engineering platform", Summary: "internal tools"},
			persona: persona.Persona{JobTitle: "Engineering Manager", Company: "Globex"},
			want:    0.5, // job term + company = 2/4
		},
		{
			name: "all four signals",
			article: article.Article{
				Title:    "Acme Bank doubles down on BFSI engineering",
				Summary:  "Engineering teams at Acme Bank adopt new platforms",
				Industry: article.IndustryBFSI,
			},
			persona: persona.Persona{JobTitle: "VP of Engineering", Company: "Acme Bank"},
			want:    1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FallbackPersonaScore(tt.article, tt.persona)
			if got != tt.want {
				t.Errorf("FallbackPersonaScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJobRoleTerms(t *testing.T) {
	terms := JobRoleTerms("VP of Engineering")

	want := map[string]bool{"engineering": false, "vp": false}
	for _, term := range terms {
		if _, ok := want[term]; ok {
			want[term] = true
		}
		if term == "of" {
			t.Error("JobRoleTerms included short stopword token")
		}
	}
	for term, found := range want {
		if !found {
			t.Errorf("JobRoleTerms missing %q in %v", term, terms)
		}
	}
}

func TestJobRoleTerms_NoDuplicates(t *testing.T) {
	terms := JobRoleTerms("Sales Manager for sales")
	seen := make(map[string]bool)
	for _, term := range terms {
		if seen[term] {
			t.Errorf("JobRoleTerms returned duplicate %q", term)
		}
		seen[term] = true
	}
}

func TestInferIndustry(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Head of Investment Banking", article.IndustryBFSI},
		{"ecommerce growth lead", article.IndustryRetail},
		{"staff software engineer", article.IndustryTechnology},
		{"hospital administrator", article.IndustryHealthcare},
		{"circus performer", article.IndustryOther},
		{"", article.IndustryOther},
	}

	for _, tt := range tests {
		if got := InferIndustry(tt.text); got != tt.want {
			t.Errorf("InferIndustry(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
