package acquire

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/user/prodsearch-service/internal/audit"
	"github.com/user/prodsearch-service/internal/domain"
)

// PDFFetch special-cases datasheet PDFs: detected by URL pattern, verified
// by a content-type probe, and parsed as document text, bypassing the HTML
// strategies entirely.
type PDFFetch struct {
	client  *http.Client
	enabled bool
	audit   audit.Sink
}

func NewPDFFetch(timeout time.Duration, enabled bool, sink audit.Sink) *PDFFetch {
	return &PDFFetch{
		client:  &http.Client{Timeout: timeout},
		enabled: enabled,
		audit:   sink,
	}
}

func (s *PDFFetch) Name() string { return string(domain.MethodPDF) }

func (s *PDFFetch) Try(ctx context.Context, rawURL string) (*domain.AcquiredContent, error) {
	if !looksLikePDFURL(rawURL) {
		return nil, ErrNotApplicable
	}
	confirmed, err := s.probe(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("pdf probe %s: %w", rawURL, err)
	}
	if !confirmed {
		return nil, ErrNotApplicable
	}

	if !s.enabled {
		s.audit.ContentSkipped(ctx, rawURL, "pdf handling disabled")
		return nil, fmt.Errorf("%w: pdf handling disabled", ErrSkipped)
	}

	text, err := s.download(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("pdf fetch %s: %w", rawURL, err)
	}
	if len(text) < minContentLength {
		return nil, fmt.Errorf("pdf fetch %s: %w", rawURL, ErrInsufficient)
	}
	return &domain.AcquiredContent{Method: domain.MethodPDF, Text: text}, nil
}

func looksLikePDFURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	return strings.HasSuffix(path, ".pdf") ||
		strings.Contains(path, "/pdf/") ||
		strings.Contains(strings.ToLower(u.RawQuery), "format=pdf")
}

// probe verifies a suspected PDF via a HEAD request; if HEAD fails (some
// servers reject it) it falls back to a partial GET checking the file
// signature.
func (s *PDFFetch) probe(ctx context.Context, rawURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false, err
	}
	browserHeaders(req)

	resp, err := s.client.Do(req)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode < http.StatusBadRequest {
			ct := resp.Header.Get("Content-Type")
			return strings.Contains(ct, "application/pdf"), nil
		}
	}

	// HEAD failed or was rejected; read the first bytes instead.
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, err
	}
	browserHeaders(req)
	req.Header.Set("Range", "bytes=0-1023")

	resp, err = s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	head, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return false, err
	}
	return isPDFBytes(head), nil
}

func (s *PDFFetch) download(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	browserHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", err
	}
	if !isPDFBytes(data) {
		return "", ErrBinaryContent
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString("DOCUMENT\n")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}
