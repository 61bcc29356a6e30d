package resolve

import (
	"sort"
	"strings"

	"github.com/user/prodsearch-service/internal/domain"
)

// Confidence constants. The corroboration formula is preserved as-is for
// behavioral compatibility with earlier revisions; do not tune the
// constants independently of each other.
const (
	confidenceBase         = 60
	confidencePerSource    = 10
	confidenceCap          = 95
	confidenceSingleSource = 30
)

// Resolver reconciles per-source extractions into one PropertyResult per
// schema property.
type Resolver struct{}

func New() *Resolver { return &Resolver{} }

// Resolve tallies exact-match (trim-normalized) values across sources and
// picks the most corroborated one per property, ties broken by first-seen
// source order. The result map always covers every schema property, in a
// deterministic way, including properties found nowhere.
func (r *Resolver) Resolve(perSource []domain.PerSourceExtraction, sources []domain.AcquiredContent, schema []domain.PropertySpec) map[string]domain.PropertyResult {
	ordered := make([]domain.PropertySpec, len(schema))
	copy(ordered, schema)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OrderIndex < ordered[j].OrderIndex
	})

	results := make(map[string]domain.PropertyResult, len(ordered))
	for _, spec := range ordered {
		results[spec.Name] = r.resolveProperty(spec.Name, perSource, sources)
	}
	return results
}

func (r *Resolver) resolveProperty(name string, perSource []domain.PerSourceExtraction, sources []domain.AcquiredContent) domain.PropertyResult {
	counts := make(map[string]int)
	var order []string // distinct values in first-seen source order

	for _, ex := range perSource {
		value := strings.TrimSpace(ex.Values[name])
		if value == "" {
			continue
		}
		if counts[value] == 0 {
			order = append(order, value)
		}
		counts[value]++
	}

	result := domain.PropertyResult{
		Name:        name,
		SourceCount: len(perSource),
		Sources:     []domain.SourceRef{},
	}

	if len(order) == 0 {
		return result
	}

	winner := order[0]
	for _, v := range order[1:] {
		if counts[v] > counts[winner] {
			winner = v
		}
	}

	result.Value = winner
	result.ConsistencyCount = counts[winner]
	result.IsConsistent = result.ConsistencyCount >= 2
	result.Confidence = confidence(result.ConsistencyCount)

	for _, ex := range perSource {
		if strings.TrimSpace(ex.Values[name]) != winner {
			continue
		}
		if ex.SourceIndex < 0 || ex.SourceIndex >= len(sources) {
			continue
		}
		src := sources[ex.SourceIndex]
		result.Sources = append(result.Sources, domain.SourceRef{URL: src.SourceURL, Title: src.Title})
	}

	return result
}

func confidence(count int) int {
	if count >= 2 {
		c := confidenceBase + count*confidencePerSource
		if c > confidenceCap {
			c = confidenceCap
		}
		return c
	}
	return confidenceSingleSource
}
