package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/user/prodsearch-service/internal/domain"
	"github.com/user/prodsearch-service/internal/monitoring"
)

// recordIdleTTL is how long an untouched window record survives before the
// cleanup pass garbage-collects it.
const recordIdleTTL = 24 * time.Hour

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Store persists window records. Mutate must run the read-modify-write for
// one (identifier, endpoint) pair as a single atomic transaction so two
// concurrent requests cannot both slip under the limit.
type Store interface {
	Mutate(ctx context.Context, identifier, endpoint string, fn func(*domain.RateLimitRecord)) (*domain.RateLimitRecord, error)
	Cleanup(ctx context.Context, idleSince time.Time) (int64, error)
}

// Limiter implements sliding-window admission control keyed by
// (identifier, endpoint). On any storage error it fails open: availability
// wins over strict enforcement.
type Limiter struct {
	store   Store
	max     int
	window  time.Duration
	block   time.Duration
	metrics *monitoring.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewLimiter(store Store, max int, window, block time.Duration, m *monitoring.Metrics, log *zap.Logger) *Limiter {
	return &Limiter{
		store:   store,
		max:     max,
		window:  window,
		block:   block,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// Check admits or rejects one request for the given key.
func (l *Limiter) Check(ctx context.Context, identifier, endpoint string) Decision {
	now := l.now()

	rec, err := l.store.Mutate(ctx, identifier, endpoint, func(rec *domain.RateLimitRecord) {
		if rec.BlockedUntil != nil {
			if rec.BlockedUntil.After(now) {
				return // still blocked, leave the record alone
			}
			// Block expired: start a fresh window.
			rec.BlockedUntil = nil
			rec.WindowStart = now
			rec.RequestCount = 0
		}

		if now.Sub(rec.WindowStart) >= l.window {
			rec.WindowStart = now
			rec.RequestCount = 0
		}
		rec.RequestCount++
		if rec.RequestCount > l.max {
			blockedUntil := now.Add(l.block)
			rec.BlockedUntil = &blockedUntil
		}
	})
	if err != nil {
		l.log.Warn("rate limit storage failed, allowing request",
			zap.String("identifier", identifier),
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		l.observe("failopen")
		return Decision{Allowed: true, Remaining: l.max, ResetAt: now.Add(l.window)}
	}

	if rec.BlockedUntil != nil && rec.BlockedUntil.After(now) {
		l.observe("blocked")
		return Decision{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    *rec.BlockedUntil,
			RetryAfter: rec.BlockedUntil.Sub(now),
		}
	}

	remaining := l.max - rec.RequestCount
	if remaining < 0 {
		remaining = 0
	}
	l.observe("allowed")
	return Decision{
		Allowed:   true,
		Remaining: remaining,
		ResetAt:   rec.WindowStart.Add(l.window),
	}
}

// StartCleanup periodically garbage-collects records idle for 24h. It
// returns when ctx is cancelled.
func (l *Limiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := l.store.Cleanup(ctx, l.now().Add(-recordIdleTTL))
			if err != nil {
				l.log.Warn("rate limit cleanup failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				l.log.Debug("rate limit records cleaned up", zap.Int64("deleted", deleted))
			}
		}
	}
}

func (l *Limiter) observe(outcome string) {
	if l.metrics != nil {
		l.metrics.RateLimitTotal.WithLabelValues(outcome).Inc()
	}
}
