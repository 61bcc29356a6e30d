package search

import (
	"context"
	"strings"

	"github.com/user/prodsearch-service/pkg/utils"
)

// Result is one raw candidate page returned by the search collaborator.
// Snippet is the result preview text; scoring runs on it before any page
// content is fetched.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

// Options tune a single search call.
type Options struct {
	MaxResults int
	Language   string
}

// Client is the external search-results collaborator. Implementations wrap
// whichever search API is configured; this core only filters and reorders
// what they return.
type Client interface {
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Filter applies the domain policy to raw search results before scoring:
// excluded domains are dropped, manufacturer domains are preferred to the
// front. Order within each group is preserved.
type Filter struct {
	excluded     map[string]bool
	manufacturer map[string]bool
}

func NewFilter(excludedDomains, manufacturerDomains []string) *Filter {
	f := &Filter{
		excluded:     make(map[string]bool, len(excludedDomains)),
		manufacturer: make(map[string]bool, len(manufacturerDomains)),
	}
	for _, d := range excludedDomains {
		f.excluded[normalizeDomain(d)] = true
	}
	for _, d := range manufacturerDomains {
		f.manufacturer[normalizeDomain(d)] = true
	}
	return f
}

func (f *Filter) Apply(results []Result) []Result {
	var preferred, rest []Result
	for _, r := range results {
		host := utils.Hostname(r.URL)
		if host == "" || f.matches(f.excluded, host) {
			continue
		}
		if f.matches(f.manufacturer, host) {
			preferred = append(preferred, r)
			continue
		}
		rest = append(rest, r)
	}
	return append(preferred, rest...)
}

// matches checks the host and its parent domains, so "shop.acme.com"
// matches an entry for "acme.com".
func (f *Filter) matches(set map[string]bool, host string) bool {
	if len(set) == 0 {
		return false
	}
	for {
		if set[host] {
			return true
		}
		idx := strings.Index(host, ".")
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
	}
}

func normalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	return strings.TrimPrefix(d, "www.")
}
