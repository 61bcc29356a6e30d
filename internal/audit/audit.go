package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/user/prodsearch-service/internal/monitoring"
)

// Sink receives best-effort audit events. Implementations must never let a
// failure propagate back into the pipeline.
type Sink interface {
	ScrapingError(ctx context.Context, url, stage string, err error)
	AIAPICall(ctx context.Context, model string, promptTokens, completionTokens int)
	ContentSkipped(ctx context.Context, url, reason string)
}

// LogSink writes audit events to the logger and metrics registry.
type LogSink struct {
	log     *zap.Logger
	metrics *monitoring.Metrics
}

func NewLogSink(log *zap.Logger, m *monitoring.Metrics) *LogSink {
	return &LogSink{log: log, metrics: m}
}

func (s *LogSink) ScrapingError(_ context.Context, url, stage string, err error) {
	s.log.Warn("scraping error", zap.String("url", url), zap.String("stage", stage), zap.Error(err))
}

func (s *LogSink) AIAPICall(_ context.Context, model string, promptTokens, completionTokens int) {
	s.log.Debug("ai api call",
		zap.String("model", model),
		zap.Int("prompt_tokens", promptTokens),
		zap.Int("completion_tokens", completionTokens),
	)
	s.metrics.TokensUsedTotal.Add(float64(promptTokens + completionTokens))
}

func (s *LogSink) ContentSkipped(_ context.Context, url, reason string) {
	s.log.Info("content skipped", zap.String("url", url), zap.String("reason", reason))
	s.metrics.AcquisitionsTotal.WithLabelValues("pdf", "skipped").Inc()
}

// NopSink discards all events. Useful in tests.
type NopSink struct{}

func (NopSink) ScrapingError(context.Context, string, string, error) {}
func (NopSink) AIAPICall(context.Context, string, int, int)          {}
func (NopSink) ContentSkipped(context.Context, string, string)       {}
