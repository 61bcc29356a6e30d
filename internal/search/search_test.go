package search

import "testing"

func TestFilterExcludesDomains(t *testing.T) {
	t.Parallel()

	f := NewFilter([]string{"spam.example.com"}, nil)
	results := []Result{
		{URL: "https://spam.example.com/p/1"},
		{URL: "https://shop.spam.example.com/p/2"},
		{URL: "https://good.example.com/p/3"},
	}

	got := f.Apply(results)
	if len(got) != 1 {
		t.Fatalf("expected 1 surviving result, got %d", len(got))
	}
	if got[0].URL != "https://good.example.com/p/3" {
		t.Fatalf("wrong survivor: %s", got[0].URL)
	}
}

func TestFilterPrefersManufacturerDomains(t *testing.T) {
	t.Parallel()

	f := NewFilter(nil, []string{"acme.com"})
	results := []Result{
		{URL: "https://reseller.example.com/acme-roller"},
		{URL: "https://www.acme.com/products/roller-500"},
		{URL: "https://another.example.com/roller"},
		{URL: "https://shop.acme.com/roller-500"},
	}

	got := f.Apply(results)
	if len(got) != 4 {
		t.Fatalf("expected all 4 results, got %d", len(got))
	}
	if got[0].URL != "https://www.acme.com/products/roller-500" {
		t.Fatalf("manufacturer page not first: %s", got[0].URL)
	}
	if got[1].URL != "https://shop.acme.com/roller-500" {
		t.Fatalf("manufacturer subdomain not second: %s", got[1].URL)
	}
	if got[2].URL != "https://reseller.example.com/acme-roller" {
		t.Fatal("non-manufacturer order not preserved")
	}
}

func TestFilterDropsUnparseableURLs(t *testing.T) {
	t.Parallel()

	f := NewFilter(nil, nil)
	got := f.Apply([]Result{{URL: "::not a url::"}, {URL: "https://ok.example.com"}})
	if len(got) != 1 {
		t.Fatalf("expected unparseable URL to be dropped, got %d results", len(got))
	}
}
