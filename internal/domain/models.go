package domain

import (
	"errors"
	"time"
)

// ErrRunNotFound is returned when a requested run id has no stored result.
var ErrRunNotFound = errors.New("run not found")

// ProductIdentity is the immutable input of a research run: an optional
// stable article number plus a free-text product name.
type ProductIdentity struct {
	ArticleNumber string `json:"article_number,omitempty"`
	ProductName   string `json:"product_name"`
}

// PropertySpec defines one technical property the pipeline must answer.
// The full spec list is the schema every result set covers completely.
type PropertySpec struct {
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	ExpectedFormat string `json:"expected_format,omitempty"`
	OrderIndex     int    `json:"order_index"`
	Required       bool   `json:"required"`
}

// CandidateSource is a proposed web page, scored for relevance before any
// content is fetched. Created by the scorer and never mutated downstream.
type CandidateSource struct {
	URL            string  `json:"url"`
	Title          string  `json:"title"`
	RawText        string  `json:"-"`
	RelevanceScore float64 `json:"relevance_score"`
	Passed         bool    `json:"passed"`
}

// AcquisitionMethod names the strategy that produced the page text.
type AcquisitionMethod string

const (
	MethodPlainFetch     AcquisitionMethod = "plain-fetch"
	MethodFrameworkFetch AcquisitionMethod = "framework-aware-fetch"
	MethodPooledRender   AcquisitionMethod = "pooled-render"
	MethodPDF            AcquisitionMethod = "pdf"
)

// AcquiredContent is the outcome of the acquisition cascade for one URL.
// Created once per source per run, immutable afterward.
type AcquiredContent struct {
	SourceURL string            `json:"source_url"`
	Title     string            `json:"title"`
	Method    AcquisitionMethod `json:"method"`
	Text      string            `json:"-"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
}

// PerSourceExtraction holds the property values one source contributed.
// SourceIndex refers back to the acquired-source slice passed to the
// orchestrator.
type PerSourceExtraction struct {
	SourceIndex int
	Values      map[string]string
}

// SourceRef identifies a page credited in a property's provenance.
type SourceRef struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// PropertyResult is the final answer for one property. Value is empty when
// no source produced anything; the entry still exists.
type PropertyResult struct {
	Name             string      `json:"name"`
	Value            string      `json:"value"`
	Confidence       int         `json:"confidence"`
	IsConsistent     bool        `json:"is_consistent"`
	ConsistencyCount int         `json:"consistency_count"`
	SourceCount      int         `json:"source_count"`
	Sources          []SourceRef `json:"sources"`
}

// SourceFailure records why a source dropped out of the run. Failed sources
// appear here and nowhere else; they never reach provenance.
type SourceFailure struct {
	URL    string `json:"url"`
	Stage  string `json:"stage"` // "acquisition" or "extraction"
	Reason string `json:"reason"`
}

// RunResult is the complete output of one pipeline run.
type RunResult struct {
	ID         string                    `json:"id"`
	Identity   ProductIdentity           `json:"identity"`
	Properties map[string]PropertyResult `json:"properties"`
	Failures   []SourceFailure           `json:"failures"`
	CreatedAt  time.Time                 `json:"created_at"`
}

// RateLimitRecord mirrors the `rate_limits` PostgreSQL table schema.
type RateLimitRecord struct {
	Identifier   string
	Endpoint     string
	RequestCount int
	WindowStart  time.Time
	BlockedUntil *time.Time
}
