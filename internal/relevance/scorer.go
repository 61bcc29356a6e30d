package relevance

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/user/prodsearch-service/internal/domain"
)

// Scoring weights. No single signal is authoritative; the decision comes
// from the sum.
const (
	weightIdentifier   = 50.0
	weightExactName    = 40.0
	weightTokensHigh   = 35.0 // >= 80% whole-word token overlap
	weightTokensMid    = 25.0 // >= 60% whole-word token overlap
	weightTokensLoose  = 15.0 // >= 60% including partial matches
	weightTokensLow    = 10.0 // >= 40% including partial matches
	weightURLOrTitleID = 10.0
	weightURLOrTitleNm = 10.0
)

// marketingSuffixes are stripped from page titles before matching, so a
// title like "Acme Roller 500 | buy now" still counts as a name hit.
var marketingSuffixes = regexp.MustCompile(`(?i)[|\-–—]?\s*(buy now|free shipping|online kaufen|jetzt kaufen|best price|g(ü|u)nstig|online shop|shop|sale)\s*$`)

// Scorer decides whether a candidate page genuinely describes the target
// product, as opposed to a near-identical sibling SKU.
type Scorer struct {
	threshold      float64
	siblingPenalty float64
	fallbackTopN   int
	log            *zap.Logger
}

func NewScorer(threshold, siblingPenalty float64, fallbackTopN int, log *zap.Logger) *Scorer {
	if fallbackTopN < 1 {
		fallbackTopN = 1
	}
	if fallbackTopN > 3 {
		fallbackTopN = 3
	}
	return &Scorer{
		threshold:      threshold,
		siblingPenalty: siblingPenalty,
		fallbackTopN:   fallbackTopN,
		log:            log,
	}
}

// Score computes the weighted relevance of one candidate against the
// target identity and whether it clears the pass threshold.
func (s *Scorer) Score(c domain.CandidateSource, id domain.ProductIdentity) (float64, bool) {
	text := strings.ToLower(c.RawText)
	name := strings.ToLower(strings.TrimSpace(id.ProductName))
	article := strings.ToLower(strings.TrimSpace(id.ArticleNumber))

	var score float64

	if article != "" && strings.Contains(text, article) {
		score += weightIdentifier
	}

	exactName := name != "" && strings.Contains(text, name)
	if exactName {
		score += weightExactName
	} else if name != "" {
		score += tokenOverlapScore(name, text)

		// A page mentioning the brand and base model without the full
		// qualified name is likely a sibling SKU ("with rims" vs. base
		// model). Penalize to avoid cross-contamination.
		if hasSiblingConflict(name, text) {
			score -= s.siblingPenalty
		}
	}

	score += urlTitleBonus(c, name, article)

	return score, score >= s.threshold
}

// Filter scores all candidates, sorts them by descending score (stable, so
// ties keep their original order) and returns the passing set. When nothing
// clears the threshold it degrades to the top candidates by raw score
// rather than failing the run.
func (s *Scorer) Filter(candidates []domain.CandidateSource, id domain.ProductIdentity) []domain.CandidateSource {
	scored := make([]domain.CandidateSource, len(candidates))
	for i, c := range candidates {
		c.RelevanceScore, c.Passed = s.Score(c, id)
		scored[i] = c
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RelevanceScore > scored[j].RelevanceScore
	})

	var passed []domain.CandidateSource
	for _, c := range scored {
		if c.Passed {
			passed = append(passed, c)
		}
	}
	if len(passed) > 0 {
		return passed
	}

	n := s.fallbackTopN
	if n > len(scored) {
		n = len(scored)
	}
	if n == 0 {
		return nil
	}
	s.log.Warn("no candidate cleared the relevance threshold, degrading to top results",
		zap.String("product", id.ProductName),
		zap.Int("accepted", n),
	)
	fallback := make([]domain.CandidateSource, n)
	for i := 0; i < n; i++ {
		c := scored[i]
		c.Passed = true
		fallback[i] = c
	}
	return fallback
}

// tokenOverlapScore rates how many of the target-name tokens appear in the
// page text, tiered. Whole-word matches count more than substring hits.
func tokenOverlapScore(name, text string) float64 {
	tokens := strings.Fields(name)
	if len(tokens) == 0 {
		return 0
	}

	var whole, partial int
	for _, tok := range tokens {
		// Model names contain regex metacharacters ("X-500+", "v2.1");
		// escape before building the word-boundary pattern.
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(tok) + `\b`)
		if err == nil && re.MatchString(text) {
			whole++
			partial++
			continue
		}
		if strings.Contains(text, tok) {
			partial++
		}
	}

	wholeRatio := float64(whole) / float64(len(tokens))
	partialRatio := float64(partial) / float64(len(tokens))

	switch {
	case wholeRatio >= 0.8:
		return weightTokensHigh
	case wholeRatio >= 0.6:
		return weightTokensMid
	case partialRatio >= 0.6:
		return weightTokensLoose
	case partialRatio >= 0.4:
		return weightTokensLow
	}
	return 0
}

// hasSiblingConflict reports whether the text mentions the brand and base
// model (the first two name tokens) even though the full product name is
// absent.
func hasSiblingConflict(name, text string) bool {
	tokens := strings.Fields(name)
	if len(tokens) < 2 {
		return false
	}
	pattern := fmt.Sprintf(`(?i)\b%s\s+%s\b`, regexp.QuoteMeta(tokens[0]), regexp.QuoteMeta(tokens[1]))
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}

func urlTitleBonus(c domain.CandidateSource, name, article string) float64 {
	urlLower := strings.ToLower(c.URL)
	title := strings.ToLower(strings.TrimSpace(marketingSuffixes.ReplaceAllString(c.Title, "")))

	var bonus float64
	if article != "" && (strings.Contains(urlLower, article) || strings.Contains(title, article)) {
		bonus += weightURLOrTitleID
	}
	if name != "" && (strings.Contains(title, name) || nameInURL(name, urlLower)) {
		bonus += weightURLOrTitleNm
	}
	return bonus
}

// nameInURL checks for the product name in slug form, where spaces usually
// become dashes or disappear.
func nameInURL(name, urlLower string) bool {
	dashed := strings.ReplaceAll(name, " ", "-")
	joined := strings.ReplaceAll(name, " ", "")
	return strings.Contains(urlLower, dashed) || strings.Contains(urlLower, joined)
}
