package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/prodsearch-service/internal/domain"
	"github.com/user/prodsearch-service/internal/monitoring"
	"github.com/user/prodsearch-service/internal/relevance"
	"github.com/user/prodsearch-service/internal/search"
)

// ErrMissingProductName is the only fatal input error: without a product
// name there is nothing to research.
var ErrMissingProductName = errors.New("product name is required")

// Acquirer turns a candidate URL into usable text. A failed acquisition is
// reported inside the returned content, never as an error.
type Acquirer interface {
	Fetch(ctx context.Context, url, title string) *domain.AcquiredContent
}

// BatchExtractor runs structured extraction across all acquired sources.
type BatchExtractor interface {
	ExtractAll(ctx context.Context, sources []domain.AcquiredContent, schema []domain.PropertySpec) ([]domain.PerSourceExtraction, []domain.SourceFailure)
}

// Resolver reconciles per-source extractions into final property results.
type Resolver interface {
	Resolve(perSource []domain.PerSourceExtraction, sources []domain.AcquiredContent, schema []domain.PropertySpec) map[string]domain.PropertyResult
}

// ResultStore persists completed runs. Optional; persistence failures are
// logged and do not fail the run.
type ResultStore interface {
	Save(ctx context.Context, result *domain.RunResult) error
}

// Input is one research request. Candidates may be pre-supplied by the
// caller; when empty and a search client is configured, the pipeline
// searches for them itself.
type Input struct {
	Identity   domain.ProductIdentity
	Schema     []domain.PropertySpec
	Candidates []search.Result
}

// Pipeline wires the full research flow: candidate discovery, relevance
// filtering, content acquisition, extraction and consistency resolution.
type Pipeline struct {
	searcher   search.Client
	filter     *search.Filter
	scorer     *relevance.Scorer
	acquirer   Acquirer
	extractor  BatchExtractor
	resolver   Resolver
	store      ResultStore
	maxSources int
	metrics    *monitoring.Metrics
	log        *zap.Logger
}

func New(searcher search.Client, filter *search.Filter, scorer *relevance.Scorer, acquirer Acquirer, extractor BatchExtractor, resolver Resolver, store ResultStore, maxSources int, m *monitoring.Metrics, log *zap.Logger) *Pipeline {
	if maxSources < 1 {
		maxSources = 1
	}
	return &Pipeline{
		searcher:   searcher,
		filter:     filter,
		scorer:     scorer,
		acquirer:   acquirer,
		extractor:  extractor,
		resolver:   resolver,
		store:      store,
		maxSources: maxSources,
		metrics:    m,
		log:        log,
	}
}

// Run executes one research run end to end. It fails only on invalid input
// or when candidate discovery itself errors; individual source failures are
// tolerated and reported in the result's Failures list. The returned
// property map always covers every schema property.
func (p *Pipeline) Run(ctx context.Context, input Input) (*domain.RunResult, error) {
	if strings.TrimSpace(input.Identity.ProductName) == "" {
		return nil, ErrMissingProductName
	}

	candidates, err := p.gatherCandidates(ctx, input)
	if err != nil {
		return nil, err
	}

	passed := p.scorer.Filter(candidates, input.Identity)
	if len(passed) > p.maxSources {
		passed = passed[:p.maxSources]
	}
	if p.metrics != nil {
		p.metrics.SourcesScored.Add(float64(len(candidates)))
		p.metrics.SourcesPassed.Add(float64(len(passed)))
	}
	p.log.Info("candidates selected",
		zap.String("product", input.Identity.ProductName),
		zap.Int("candidates", len(candidates)),
		zap.Int("selected", len(passed)),
	)

	acquired, failures := p.acquireAll(ctx, passed)

	perSource, extractFailures := p.extractor.ExtractAll(ctx, acquired, input.Schema)
	failures = append(failures, extractFailures...)

	result := &domain.RunResult{
		ID:         uuid.NewString(),
		Identity:   input.Identity,
		Properties: p.resolver.Resolve(perSource, acquired, input.Schema),
		Failures:   failures,
		CreatedAt:  time.Now().UTC(),
	}

	if p.store != nil {
		if err := p.store.Save(ctx, result); err != nil {
			p.log.Warn("failed to persist run result", zap.String("run_id", result.ID), zap.Error(err))
		}
	}
	return result, nil
}

// gatherCandidates uses caller-supplied candidates when present, otherwise
// searches. Either way the domain filter runs before scoring, and scoring
// runs on title plus snippet only; no page content is fetched yet.
func (p *Pipeline) gatherCandidates(ctx context.Context, input Input) ([]domain.CandidateSource, error) {
	results := input.Candidates
	if len(results) == 0 {
		if p.searcher == nil {
			return nil, errors.New("no candidates supplied and no search client configured")
		}
		var err error
		results, err = p.searcher.Search(ctx, buildQuery(input.Identity), search.Options{MaxResults: p.maxSources * 4})
		if err != nil {
			return nil, fmt.Errorf("candidate search: %w", err)
		}
	}

	if p.filter != nil {
		results = p.filter.Apply(results)
	}

	candidates := make([]domain.CandidateSource, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, domain.CandidateSource{
			URL:     r.URL,
			Title:   r.Title,
			RawText: strings.TrimSpace(r.Title + "\n" + r.Snippet),
		})
	}
	return candidates, nil
}

// acquireAll fetches all selected sources concurrently. Every source yields
// exactly one AcquiredContent; failed ones additionally yield a diagnostic
// failure entry.
func (p *Pipeline) acquireAll(ctx context.Context, selected []domain.CandidateSource) ([]domain.AcquiredContent, []domain.SourceFailure) {
	acquired := make([]domain.AcquiredContent, len(selected))

	g := new(errgroup.Group)
	g.SetLimit(p.maxSources)
	for i, c := range selected {
		i, c := i, c
		g.Go(func() error {
			acquired[i] = *p.acquirer.Fetch(ctx, c.URL, c.Title)
			return nil
		})
	}
	_ = g.Wait()

	var failures []domain.SourceFailure
	for _, content := range acquired {
		if !content.Success {
			failures = append(failures, domain.SourceFailure{
				URL:    content.SourceURL,
				Stage:  "acquisition",
				Reason: content.Error,
			})
		}
	}
	return acquired, failures
}

func buildQuery(id domain.ProductIdentity) string {
	if id.ArticleNumber != "" {
		return id.ProductName + " " + id.ArticleNumber
	}
	return id.ProductName
}
