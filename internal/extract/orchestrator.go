package extract

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/prodsearch-service/internal/audit"
	"github.com/user/prodsearch-service/internal/domain"
	"github.com/user/prodsearch-service/internal/monitoring"
)

// Orchestrator fans structured-extraction calls out over the acquired
// sources under a concurrency cap, tolerating per-source failure.
type Orchestrator struct {
	extractor   Extractor
	concurrency int
	callTimeout time.Duration
	audit       audit.Sink
	metrics     *monitoring.Metrics
	log         *zap.Logger
}

func NewOrchestrator(extractor Extractor, concurrency int, callTimeout time.Duration, sink audit.Sink, m *monitoring.Metrics, log *zap.Logger) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		extractor:   extractor,
		concurrency: concurrency,
		callTimeout: callTimeout,
		audit:       sink,
		metrics:     m,
		log:         log,
	}
}

// ExtractAll runs one extraction per successfully-acquired source. A call
// that fails or times out contributes an empty value map and a diagnostic
// failure entry; it never fails the batch. The returned extraction slice
// holds exactly one entry per input source, each covering every schema
// property.
func (o *Orchestrator) ExtractAll(ctx context.Context, sources []domain.AcquiredContent, schema []domain.PropertySpec) ([]domain.PerSourceExtraction, []domain.SourceFailure) {
	results := make([]domain.PerSourceExtraction, len(sources))
	failed := make([]*domain.SourceFailure, len(sources))

	g := new(errgroup.Group)
	g.SetLimit(o.concurrency)

	for i, src := range sources {
		results[i] = domain.PerSourceExtraction{SourceIndex: i, Values: emptyValues(schema)}
		if !src.Success {
			continue
		}

		i, src := i, src
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
			defer cancel()

			values, usage, err := o.extractor.Extract(callCtx, src.Text, schema)
			o.audit.AIAPICall(ctx, usage.Model, usage.PromptTokens, usage.CompletionTokens)

			if err != nil {
				o.observe("failure")
				o.audit.ScrapingError(ctx, src.SourceURL, "extraction", err)
				o.log.Warn("extraction failed for source, contributing empty values",
					zap.String("url", src.SourceURL),
					zap.Error(err),
				)
				failed[i] = &domain.SourceFailure{URL: src.SourceURL, Stage: "extraction", Reason: err.Error()}
				return nil
			}

			o.observe("success")
			results[i].Values = completeValues(values, schema)
			return nil
		})
	}

	// Wait for all, tolerate partial failure: workers never return errors.
	_ = g.Wait()

	var failures []domain.SourceFailure
	for _, f := range failed {
		if f != nil {
			failures = append(failures, *f)
		}
	}
	return results, failures
}

func (o *Orchestrator) observe(status string) {
	if o.metrics != nil {
		o.metrics.ExtractionsTotal.WithLabelValues(status).Inc()
	}
}

func emptyValues(schema []domain.PropertySpec) map[string]string {
	values := make(map[string]string, len(schema))
	for _, spec := range schema {
		values[spec.Name] = ""
	}
	return values
}

// completeValues guarantees every requested property is present, trimmed,
// even when the extractor omitted or misnamed some.
func completeValues(raw map[string]string, schema []domain.PropertySpec) map[string]string {
	values := make(map[string]string, len(schema))
	for _, spec := range schema {
		values[spec.Name] = ""
		if v, ok := raw[spec.Name]; ok {
			values[spec.Name] = v
		}
	}
	return values
}
