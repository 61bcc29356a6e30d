package acquire

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/user/prodsearch-service/internal/domain"
	"github.com/user/prodsearch-service/internal/monitoring"
)

var (
	// ErrNotApplicable means the strategy does not handle this kind of URL.
	ErrNotApplicable = errors.New("strategy not applicable")
	// ErrInsufficient means the page was reachable but did not yield enough
	// usable text; the cascade should escalate to the next strategy.
	ErrInsufficient = errors.New("insufficient content")
	// ErrSkipped means the source was deliberately skipped (e.g. PDF handling
	// disabled) and no further strategy should run.
	ErrSkipped = errors.New("source skipped")
	// ErrBinaryContent marks binary bytes that slipped past content-type
	// detection into an HTML strategy.
	ErrBinaryContent = errors.New("binary content in html strategy")
)

// Strategy is one way of turning a URL into usable text. Strategies are
// ordered by increasing cost; each one is independently testable.
type Strategy interface {
	Name() string
	Try(ctx context.Context, url string) (*domain.AcquiredContent, error)
}

// ContentCache stores acquisition results so repeat runs within the TTL
// window skip re-fetching. Failures inside the cache are non-fatal.
type ContentCache interface {
	Get(ctx context.Context, url string) (*domain.AcquiredContent, bool)
	Put(ctx context.Context, url string, content *domain.AcquiredContent)
}

// Cascade tries strategies in order until one yields usable text.
type Cascade struct {
	strategies []Strategy
	cache      ContentCache
	metrics    *monitoring.Metrics
	log        *zap.Logger
}

func NewCascade(strategies []Strategy, cache ContentCache, m *monitoring.Metrics, log *zap.Logger) *Cascade {
	return &Cascade{strategies: strategies, cache: cache, metrics: m, log: log}
}

// Fetch acquires content for one URL. It never returns an error: a total
// failure is reported inside the AcquiredContent so a single bad source
// cannot abort the batch.
func (c *Cascade) Fetch(ctx context.Context, url, title string) *domain.AcquiredContent {
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, url); ok {
			c.log.Debug("content cache hit", zap.String("url", url))
			return cached
		}
	}

	var lastErr error
	for _, s := range c.strategies {
		start := time.Now()
		content, err := s.Try(ctx, url)
		if err == nil {
			content.SourceURL = url
			content.Title = title
			content.Success = true
			c.observe(s.Name(), "success", time.Since(start))
			if c.cache != nil {
				c.cache.Put(ctx, url, content)
			}
			return content
		}

		switch {
		case errors.Is(err, ErrNotApplicable):
			// Not an attempt; move on silently.
		case errors.Is(err, ErrSkipped):
			c.observe(s.Name(), "skipped", time.Since(start))
			return &domain.AcquiredContent{
				SourceURL: url,
				Title:     title,
				Method:    domain.AcquisitionMethod(s.Name()),
				Error:     err.Error(),
			}
		default:
			c.observe(s.Name(), "failure", time.Since(start))
			c.log.Debug("acquisition strategy failed, escalating",
				zap.String("url", url),
				zap.String("strategy", s.Name()),
				zap.Error(err),
			)
			lastErr = err
		}
	}

	msg := "no acquisition strategy yielded usable content"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	return &domain.AcquiredContent{SourceURL: url, Title: title, Error: msg}
}

func (c *Cascade) observe(method, status string, d time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.AcquisitionsTotal.WithLabelValues(method, status).Inc()
	if status == "success" || status == "failure" {
		c.metrics.AcquisitionDuration.WithLabelValues(method).Observe(d.Seconds())
	}
}
