package acquire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/prodsearch-service/internal/domain"
)

// minContentLength is the floor below which page text is considered too
// small for meaningful extraction.
const minContentLength = 300

// maxBodyBytes caps how much of a response we are willing to read.
const maxBodyBytes = 4 << 20

// specSelectors name containers that usually carry technical data. They are
// extracted before falling back to full-body text.
const specSelectors = `table, dl, .specs, .spec-table, .product-specs, .technical-data, .tech-specs, [class*="specification"], [itemprop="additionalProperty"]`

var frameworkMarkers = []string{
	`id="__next"`,
	`__NEXT_DATA__`,
	`data-reactroot`,
	`window.__INITIAL_STATE__`,
	`window.__NUXT__`,
	`ng-version=`,
	`id="app" data-v-`,
}

var initialStateRe = regexp.MustCompile(`window\.__(?:INITIAL_STATE|NUXT)__\s*=\s*(\{.*?\});?\s*(?:</script>|\n)`)

func browserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.8")
}

func fetchHTML(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	browserHeaders(req)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if isPDFBytes(body) {
		// Content-type lied somewhere upstream; binary PDF bytes must not
		// flow into HTML extraction.
		return nil, ErrBinaryContent
	}
	return body, nil
}

func isPDFBytes(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// PlainFetch is the cheapest strategy: a direct GET with browser-like
// headers and goquery extraction of spec-bearing sections.
type PlainFetch struct {
	client *http.Client
}

func NewPlainFetch(timeout time.Duration) *PlainFetch {
	return &PlainFetch{client: &http.Client{Timeout: timeout}}
}

func (s *PlainFetch) Name() string { return string(domain.MethodPlainFetch) }

func (s *PlainFetch) Try(ctx context.Context, url string) (*domain.AcquiredContent, error) {
	body, err := fetchHTML(ctx, s.client, url)
	if err != nil {
		return nil, fmt.Errorf("plain fetch %s: %w", url, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}

	text := extractPrioritized(doc)
	if looksFrameworkHeavy(string(body), len(text)) {
		return nil, fmt.Errorf("%w: framework-heavy page", ErrInsufficient)
	}
	if len(text) < minContentLength {
		return nil, fmt.Errorf("%w: %d chars", ErrInsufficient, len(text))
	}

	return &domain.AcquiredContent{Method: domain.MethodPlainFetch, Text: text}, nil
}

// extractPrioritized collects structured data blocks, spec-like containers
// and tables first, then appends the cleaned body text.
func extractPrioritized(doc *goquery.Document) string {
	var b strings.Builder

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		if t := strings.TrimSpace(sel.Text()); t != "" {
			b.WriteString(t)
			b.WriteString("\n")
		}
	})

	doc.Find(specSelectors).Each(func(_ int, sel *goquery.Selection) {
		if t := normalizeWhitespace(sel.Text()); t != "" {
			b.WriteString(t)
			b.WriteString("\n")
		}
	})

	doc.Find("script, style, noscript, nav, header, footer, iframe, svg").Each(func(_ int, sel *goquery.Selection) {
		sel.Remove()
	})
	b.WriteString(normalizeWhitespace(doc.Find("body").Text()))

	return strings.TrimSpace(b.String())
}

var whitespaceRe = regexp.MustCompile(`[ \t]+`)
var blankLinesRe = regexp.MustCompile(`\n{3,}`)

func normalizeWhitespace(s string) string {
	s = whitespaceRe.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankLinesRe.ReplaceAllString(s, "\n\n"))
}

// looksFrameworkHeavy classifies client-rendered app shells: known
// framework markers, or a document that is nearly all script with a tiny
// static body.
func looksFrameworkHeavy(html string, textLen int) bool {
	for _, marker := range frameworkMarkers {
		if strings.Contains(html, marker) {
			return true
		}
	}
	if textLen < minContentLength && len(html) > 10*1024 {
		// Big document, almost no static text: the content arrives via JS.
		return true
	}
	return false
}

// FrameworkFetch targets client-rendered apps that embed their state in the
// document: __NEXT_DATA__, window.__INITIAL_STATE__, JSON-LD. It mines
// readable strings out of those blobs without a browser.
type FrameworkFetch struct {
	client *http.Client
}

func NewFrameworkFetch(timeout time.Duration) *FrameworkFetch {
	return &FrameworkFetch{client: &http.Client{Timeout: timeout}}
}

func (s *FrameworkFetch) Name() string { return string(domain.MethodFrameworkFetch) }

func (s *FrameworkFetch) Try(ctx context.Context, url string) (*domain.AcquiredContent, error) {
	body, err := fetchHTML(ctx, s.client, url)
	if err != nil {
		return nil, fmt.Errorf("framework fetch %s: %w", url, err)
	}
	html := string(body)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}

	var b strings.Builder
	doc.Find(`script[type="application/ld+json"], script#__NEXT_DATA__, script[type="application/json"]`).Each(func(_ int, sel *goquery.Selection) {
		if t := jsonStrings(sel.Text()); t != "" {
			b.WriteString(t)
			b.WriteString("\n")
		}
	})
	if m := initialStateRe.FindStringSubmatch(html); len(m) == 2 {
		if t := jsonStrings(m[1]); t != "" {
			b.WriteString(t)
			b.WriteString("\n")
		}
	}

	text := strings.TrimSpace(b.String())
	if len(text) < minContentLength {
		return nil, fmt.Errorf("%w: embedded app state too small", ErrInsufficient)
	}
	return &domain.AcquiredContent{Method: domain.MethodFrameworkFetch, Text: text}, nil
}

// jsonStrings walks an embedded JSON document and joins every string leaf,
// which is where product copy and spec values live in app-state blobs.
func jsonStrings(raw string) string {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return ""
	}
	var out []string
	collectStrings(v, &out)
	return strings.Join(out, " ")
}

func collectStrings(v any, out *[]string) {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); len(s) > 1 && !strings.HasPrefix(s, "http") {
			*out = append(*out, s)
		}
	case json.Number:
		*out = append(*out, t.String())
	case float64:
		*out = append(*out, strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", t), "0"), "."))
	case map[string]any:
		for k, val := range t {
			*out = append(*out, k)
			collectStrings(val, out)
		}
	case []any:
		for _, val := range t {
			collectStrings(val, out)
		}
	}
}
