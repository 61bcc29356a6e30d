package searchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/user/prodsearch-service/internal/search"
)

// Client queries a SearxNG-compatible JSON search endpoint for candidate
// pages.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func New(endpoint, apiKey string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

type searchResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"results"`
}

func (c *Client) Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search endpoint returned status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]search.Result, 0, len(body.Results))
	for _, r := range body.Results {
		results = append(results, search.Result{URL: r.URL, Title: r.Title, Snippet: r.Content})
		if opts.MaxResults > 0 && len(results) >= opts.MaxResults {
			break
		}
	}
	return results, nil
}
