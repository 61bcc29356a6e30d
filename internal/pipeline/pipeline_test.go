package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/user/prodsearch-service/internal/domain"
	"github.com/user/prodsearch-service/internal/relevance"
	"github.com/user/prodsearch-service/internal/resolve"
	"github.com/user/prodsearch-service/internal/search"
)

var testIdentity = domain.ProductIdentity{
	ArticleNumber: "12345",
	ProductName:   "Acme Roller 500",
}

var testSchema = []domain.PropertySpec{
	{Name: "Breite (in mm)", OrderIndex: 0},
	{Name: "Gewicht (in kg)", OrderIndex: 1},
}

type fakeSearcher struct {
	results []search.Result
	err     error
}

func (f *fakeSearcher) Search(context.Context, string, search.Options) ([]search.Result, error) {
	return f.results, f.err
}

type fakeAcquirer struct {
	mu      sync.Mutex
	fetched []string
	failing map[string]bool
}

func (f *fakeAcquirer) Fetch(_ context.Context, url, title string) *domain.AcquiredContent {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()

	if f.failing[url] {
		return &domain.AcquiredContent{SourceURL: url, Title: title, Error: "connection refused"}
	}
	return &domain.AcquiredContent{
		SourceURL: url,
		Title:     title,
		Method:    domain.MethodPlainFetch,
		Text:      "Breite 550 mm, Gewicht 12 kg",
		Success:   true,
	}
}

type fakeBatchExtractor struct {
	values map[string]string
}

func (f *fakeBatchExtractor) ExtractAll(_ context.Context, sources []domain.AcquiredContent, schema []domain.PropertySpec) ([]domain.PerSourceExtraction, []domain.SourceFailure) {
	out := make([]domain.PerSourceExtraction, len(sources))
	for i, src := range sources {
		values := make(map[string]string, len(schema))
		for _, spec := range schema {
			if src.Success {
				values[spec.Name] = f.values[spec.Name]
			} else {
				values[spec.Name] = ""
			}
		}
		out[i] = domain.PerSourceExtraction{SourceIndex: i, Values: values}
	}
	return out, nil
}

type memoryStore struct {
	mu    sync.Mutex
	saved []*domain.RunResult
	err   error
}

func (m *memoryStore) Save(_ context.Context, r *domain.RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, r)
	return m.err
}

func relevantResult(url string) search.Result {
	return search.Result{
		URL:     url,
		Title:   "Acme Roller 500",
		Snippet: "Acme Roller 500, Artikel 12345, technische Daten",
	}
}

func newTestPipeline(searcher search.Client, acquirer Acquirer, store ResultStore, maxSources int) *Pipeline {
	log := zap.NewNop()
	return New(
		searcher,
		search.NewFilter(nil, nil),
		relevance.NewScorer(35, 15, 3, log),
		acquirer,
		&fakeBatchExtractor{values: map[string]string{"Breite (in mm)": "550", "Gewicht (in kg)": "12"}},
		resolve.New(),
		store,
		maxSources,
		nil,
		log,
	)
}

func TestRunRequiresProductName(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(&fakeSearcher{}, &fakeAcquirer{}, nil, 5)
	_, err := p.Run(context.Background(), Input{Schema: testSchema})
	if !errors.Is(err, ErrMissingProductName) {
		t.Fatalf("expected ErrMissingProductName, got %v", err)
	}
}

func TestRunCoversEverySchemaProperty(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{results: []search.Result{
		relevantResult("https://a.example.com/roller-500"),
		relevantResult("https://b.example.com/roller-500"),
	}}
	store := &memoryStore{}
	p := newTestPipeline(searcher, &fakeAcquirer{}, store, 5)

	result, err := p.Run(context.Background(), Input{Identity: testIdentity, Schema: testSchema})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Properties) != len(testSchema) {
		t.Fatalf("expected %d properties, got %d", len(testSchema), len(result.Properties))
	}
	for _, spec := range testSchema {
		pr, ok := result.Properties[spec.Name]
		if !ok {
			t.Fatalf("property %q missing from result", spec.Name)
		}
		if !pr.IsConsistent || pr.ConsistencyCount != 2 {
			t.Fatalf("property %q: expected 2 corroborating sources, got %+v", spec.Name, pr)
		}
	}
	if result.ID == "" {
		t.Fatal("run must carry an id")
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected 1 persisted run, got %d", len(store.saved))
	}
}

func TestRunToleratesPartialSourceFailure(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{results: []search.Result{
		relevantResult("https://a.example.com/roller-500"),
		relevantResult("https://down.example.com/roller-500"),
		relevantResult("https://c.example.com/roller-500"),
	}}
	acq := &fakeAcquirer{failing: map[string]bool{"https://down.example.com/roller-500": true}}
	p := newTestPipeline(searcher, acq, nil, 5)

	result, err := p.Run(context.Background(), Input{Identity: testIdentity, Schema: testSchema})
	if err != nil {
		t.Fatalf("one bad source must not fail the run: %v", err)
	}

	if len(result.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %+v", result.Failures)
	}
	f := result.Failures[0]
	if f.URL != "https://down.example.com/roller-500" || f.Stage != "acquisition" {
		t.Fatalf("unexpected failure entry: %+v", f)
	}

	pr := result.Properties["Breite (in mm)"]
	if pr.Value != "550" {
		t.Fatalf("surviving sources must still answer: %+v", pr)
	}
	for _, ref := range pr.Sources {
		if strings.Contains(ref.URL, "down.example.com") {
			t.Fatal("failed source must never appear in provenance")
		}
	}
}

func TestRunCapsSelectedSources(t *testing.T) {
	t.Parallel()

	var results []search.Result
	for _, host := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		results = append(results, relevantResult("https://"+host+".example.com/roller-500"))
	}
	acq := &fakeAcquirer{}
	p := newTestPipeline(&fakeSearcher{results: results}, acq, nil, 3)

	if _, err := p.Run(context.Background(), Input{Identity: testIdentity, Schema: testSchema}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(acq.fetched) != 3 {
		t.Fatalf("expected 3 acquisitions, got %d", len(acq.fetched))
	}
}

func TestRunUsesSuppliedCandidatesWithoutSearching(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{err: errors.New("search must not be called")}
	p := newTestPipeline(searcher, &fakeAcquirer{}, nil, 5)

	input := Input{
		Identity:   testIdentity,
		Schema:     testSchema,
		Candidates: []search.Result{relevantResult("https://supplied.example.com/roller-500")},
	}
	result, err := p.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	pr := result.Properties["Breite (in mm)"]
	if len(pr.Sources) != 1 || pr.Sources[0].URL != "https://supplied.example.com/roller-500" {
		t.Fatalf("expected the supplied candidate as provenance, got %+v", pr.Sources)
	}
}

func TestRunPropagatesSearchError(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(&fakeSearcher{err: errors.New("quota exceeded")}, &fakeAcquirer{}, nil, 5)
	if _, err := p.Run(context.Background(), Input{Identity: testIdentity, Schema: testSchema}); err == nil {
		t.Fatal("expected search error to be fatal")
	}
}

func TestRunSurvivesStoreFailure(t *testing.T) {
	t.Parallel()

	store := &memoryStore{err: errors.New("db down")}
	searcher := &fakeSearcher{results: []search.Result{relevantResult("https://a.example.com/roller-500")}}
	p := newTestPipeline(searcher, &fakeAcquirer{}, store, 5)

	if _, err := p.Run(context.Background(), Input{Identity: testIdentity, Schema: testSchema}); err != nil {
		t.Fatalf("persistence failure must not fail the run: %v", err)
	}
}
