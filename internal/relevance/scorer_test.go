package relevance

import (
	"testing"

	"go.uber.org/zap"

	"github.com/user/prodsearch-service/internal/domain"
)

func newTestScorer() *Scorer {
	return NewScorer(35, 15, 3, zap.NewNop())
}

func TestScoreExactMatches(t *testing.T) {
	t.Parallel()

	s := newTestScorer()
	identity := domain.ProductIdentity{
		ArticleNumber: "A123",
		ProductName:   "Acme Roller 500",
	}
	candidate := domain.CandidateSource{
		URL:     "https://shop.example.com/acme-roller-500",
		Title:   "Acme Roller 500 A123 | buy now",
		RawText: "The Acme Roller 500 (article A123) is a premium roller. Width 550 mm.",
	}

	score, passed := s.Score(candidate, identity)
	if !passed {
		t.Fatalf("expected candidate to pass, score=%v", score)
	}
	if score < 90 {
		t.Fatalf("expected score >= 90 for exact id+name match, got %v", score)
	}
}

func TestScoreTokenOverlapTiers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want float64
	}{
		// 4 of 5 tokens as whole words -> 80% -> +35
		{"high overlap", "acme roller 500 deluxe series", weightTokensHigh},
		// 3 of 5 tokens as whole words -> 60% -> +25
		{"mid overlap", "acme roller 500 product page", weightTokensMid},
		// 2 of 5 whole words -> 40%, no tier; 2/5 partial -> +10
		{"low overlap", "acme roller comparison chart", weightTokensLow},
		{"no overlap", "completely unrelated text", 0},
	}

	for _, tc := range cases {
		got := tokenOverlapScore("acme roller 500 deluxe edition", tc.text)
		if got != tc.want {
			t.Errorf("%s: tokenOverlapScore = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestScoreEscapesRegexMetacharacters(t *testing.T) {
	t.Parallel()

	s := newTestScorer()
	identity := domain.ProductIdentity{ProductName: "TurboMax X-500+ (v2.1)"}
	candidate := domain.CandidateSource{
		URL:     "https://example.com/turbomax",
		RawText: "specs for the turbomax x-500+ (v2.1) model",
	}

	// Must not panic and the literal "+" and "." must match as text.
	score, passed := s.Score(candidate, identity)
	if !passed {
		t.Fatalf("expected pass for exact name with metacharacters, score=%v", score)
	}
}

func TestSiblingConflictPenalty(t *testing.T) {
	t.Parallel()

	s := newTestScorer()
	identity := domain.ProductIdentity{ProductName: "Acme Roller 500 with rims"}

	sibling := domain.CandidateSource{
		URL:     "https://example.com/p/1",
		RawText: "acme roller base model, no accessories included",
	}
	siblingScore, _ := s.Score(sibling, identity)

	unrelated := domain.CandidateSource{
		URL:     "https://example.com/p/2",
		RawText: "roller accessories included for many models",
	}
	unrelatedScore, _ := s.Score(unrelated, identity)

	// Both have weak token overlap, but only the sibling page mentions
	// brand+model, so it must be penalized below the unrelated page.
	if siblingScore >= unrelatedScore {
		t.Fatalf("sibling page score %v not penalized below unrelated %v", siblingScore, unrelatedScore)
	}

	exact := domain.CandidateSource{
		URL:     "https://example.com/p/3",
		RawText: "the acme roller 500 with rims ships preassembled",
	}
	exactScore, _ := s.Score(exact, identity)
	if exactScore < weightExactName {
		t.Fatalf("exact match must not be penalized, got %v", exactScore)
	}
}

func TestFilterFallbackToTopN(t *testing.T) {
	t.Parallel()

	s := newTestScorer()
	identity := domain.ProductIdentity{ProductName: "Acme Roller 500"}

	candidates := []domain.CandidateSource{
		{URL: "https://a.example.com", RawText: "nothing relevant here"},
		{URL: "https://b.example.com", RawText: "acme roller catalogue"},
		{URL: "https://c.example.com", RawText: "another unrelated page"},
		{URL: "https://d.example.com", RawText: "also unrelated"},
	}

	got := s.Filter(candidates, identity)
	if len(got) == 0 {
		t.Fatal("fallback must accept top candidates instead of returning none")
	}
	if len(got) > 3 {
		t.Fatalf("fallback accepted %d candidates, max is 3", len(got))
	}
	if got[0].URL != "https://b.example.com" {
		t.Fatalf("fallback did not rank the best raw score first: %s", got[0].URL)
	}
	for _, c := range got {
		if !c.Passed {
			t.Fatalf("fallback candidates must be marked passed: %s", c.URL)
		}
	}
}

func TestFilterStableTieOrder(t *testing.T) {
	t.Parallel()

	s := newTestScorer()
	identity := domain.ProductIdentity{ProductName: "Acme Roller 500"}

	candidates := []domain.CandidateSource{
		{URL: "https://first.example.com", RawText: "acme roller 500 in stock"},
		{URL: "https://second.example.com", RawText: "acme roller 500 in stock"},
	}

	got := s.Filter(candidates, identity)
	if len(got) != 2 {
		t.Fatalf("expected both identical candidates to pass, got %d", len(got))
	}
	if got[0].URL != "https://first.example.com" {
		t.Fatalf("tie broke original order: %s first", got[0].URL)
	}
}
