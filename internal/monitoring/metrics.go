package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SourcesScored       prometheus.Counter
	SourcesPassed       prometheus.Counter
	AcquisitionsTotal   *prometheus.CounterVec
	AcquisitionDuration *prometheus.HistogramVec
	ExtractionsTotal    *prometheus.CounterVec
	TokensUsedTotal     prometheus.Counter
	PoolWorkersInUse    prometheus.Gauge
	RateLimitTotal      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		SourcesScored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "research_sources_scored_total",
			Help: "Candidate sources run through the relevance scorer.",
		}),
		SourcesPassed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "research_sources_passed_total",
			Help: "Candidate sources that cleared the relevance threshold.",
		}),
		AcquisitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "research_acquisitions_total",
			Help: "Content acquisition attempts by method and outcome.",
		}, []string{"method", "status"}), // status: success, failure, skipped
		AcquisitionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "research_acquisition_duration_seconds",
			Help:    "Duration of content acquisition per source.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 15, 30, 60, 120},
		}, []string{"method"}),
		ExtractionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "research_extractions_total",
			Help: "Structured extraction calls by outcome.",
		}, []string{"status"}),
		TokensUsedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "research_llm_tokens_total",
			Help: "Total tokens reported by the structured extractor.",
		}),
		PoolWorkersInUse: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "browser_pool_workers_in_use",
			Help: "Render workers currently checked out of the pool.",
		}),
		RateLimitTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Rate limiter decisions by outcome.",
		}, []string{"outcome"}), // allowed, blocked, failopen
	}
}
