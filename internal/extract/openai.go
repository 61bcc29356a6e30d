package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/user/prodsearch-service/internal/domain"
)

const systemPrompt = "You are a research analyst extracting technical product properties from a web page. " +
	"Return a valid JSON object mapping each requested property name to its value as a string. " +
	"Use an empty string for properties not found on the page. Never omit a requested property."

const maxPromptChars = 24000

// OpenAIExtractor implements Extractor against OpenAI-compatible
// chat-completions APIs.
type OpenAIExtractor struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ Extractor = (*OpenAIExtractor)(nil)

func NewOpenAIExtractor(endpoint, model, apiKey string, timeout time.Duration) *OpenAIExtractor {
	return &OpenAIExtractor{
		endpoint:   endpoint,
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *OpenAIExtractor) Extract(ctx context.Context, text string, schema []domain.PropertySpec) (map[string]string, Usage, error) {
	usage := Usage{Model: c.model}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return nil, usage, fmt.Errorf("extractor misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model":           c.model,
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": buildPrompt(text, schema)},
		},
	})
	if err != nil {
		return nil, usage, fmt.Errorf("marshal extractor payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, usage, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, usage, fmt.Errorf("extractor call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, usage, fmt.Errorf("extractor error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, usage, fmt.Errorf("decode extractor response: %w", err)
	}
	usage.PromptTokens = parsed.Usage.PromptTokens
	usage.CompletionTokens = parsed.Usage.CompletionTokens

	if len(parsed.Choices) == 0 {
		return nil, usage, fmt.Errorf("extractor returned no choices")
	}

	values, err := NormalizeValues(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, usage, err
	}
	return values, usage, nil
}

func buildPrompt(text string, schema []domain.PropertySpec) string {
	var b strings.Builder
	b.WriteString("Extract the following properties:\n")
	for _, spec := range schema {
		b.WriteString("- ")
		b.WriteString(spec.Name)
		if spec.Description != "" {
			b.WriteString(": ")
			b.WriteString(spec.Description)
		}
		if spec.ExpectedFormat != "" {
			b.WriteString(" (format: ")
			b.WriteString(spec.ExpectedFormat)
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	b.WriteString("\nPage content:\n")
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
	}
	b.WriteString(text)
	return b.String()
}

// NormalizeValues converts the dynamically-shaped extractor response into a
// flat property-to-string map. Values arrive sometimes as bare strings,
// sometimes as numbers, sometimes as objects with nested provenance; the
// variants are collapsed here so downstream logic never branches on shape.
func NormalizeValues(raw string) (map[string]string, error) {
	raw = stripCodeFence(raw)

	var shaped map[string]any
	if err := json.Unmarshal([]byte(raw), &shaped); err != nil {
		return nil, fmt.Errorf("malformed extractor response: %w", err)
	}

	values := make(map[string]string, len(shaped))
	for name, v := range shaped {
		values[name] = flattenValue(v)
	}
	return values, nil
}

func flattenValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		if inner, ok := t["value"]; ok {
			return flattenValue(inner)
		}
	}
	return ""
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
