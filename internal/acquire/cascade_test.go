package acquire

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/user/prodsearch-service/internal/domain"
)

type fakeStrategy struct {
	name  string
	text  string
	err   error
	calls int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Try(_ context.Context, _ string) (*domain.AcquiredContent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.AcquiredContent{Method: domain.AcquisitionMethod(f.name), Text: f.text}, nil
}

func TestCascadeStopsAtFirstSuccess(t *testing.T) {
	t.Parallel()

	cheap := &fakeStrategy{name: "plain-fetch", text: "usable text"}
	expensive := &fakeStrategy{name: "pooled-render", text: "should not run"}
	c := NewCascade([]Strategy{cheap, expensive}, nil, nil, zap.NewNop())

	got := c.Fetch(context.Background(), "https://example.com/p", "Product")
	if !got.Success {
		t.Fatalf("expected success, got error %q", got.Error)
	}
	if got.Method != "plain-fetch" {
		t.Fatalf("wrong method: %s", got.Method)
	}
	if got.Title != "Product" || got.SourceURL != "https://example.com/p" {
		t.Fatalf("source identity not attached: %+v", got)
	}
	if expensive.calls != 0 {
		t.Fatal("cascade escalated past a successful strategy")
	}
}

func TestCascadeEscalatesOnInsufficientContent(t *testing.T) {
	t.Parallel()

	cheap := &fakeStrategy{name: "plain-fetch", err: fmt.Errorf("%w: framework shell", ErrInsufficient)}
	render := &fakeStrategy{name: "pooled-render", text: "rendered text"}
	c := NewCascade([]Strategy{cheap, render}, nil, nil, zap.NewNop())

	got := c.Fetch(context.Background(), "https://example.com/p", "")
	if !got.Success || got.Method != "pooled-render" {
		t.Fatalf("expected escalation to render, got %+v", got)
	}
	if cheap.calls != 1 || render.calls != 1 {
		t.Fatalf("unexpected call counts: cheap=%d render=%d", cheap.calls, render.calls)
	}
}

func TestCascadeSkipsNotApplicableSilently(t *testing.T) {
	t.Parallel()

	pdf := &fakeStrategy{name: "pdf", err: ErrNotApplicable}
	plain := &fakeStrategy{name: "plain-fetch", text: "usable text"}
	c := NewCascade([]Strategy{pdf, plain}, nil, nil, zap.NewNop())

	got := c.Fetch(context.Background(), "https://example.com/p", "")
	if !got.Success || got.Method != "plain-fetch" {
		t.Fatalf("expected plain fetch to win, got %+v", got)
	}
}

func TestCascadeSkippedIsTerminal(t *testing.T) {
	t.Parallel()

	pdf := &fakeStrategy{name: "pdf", err: fmt.Errorf("%w: pdf disabled", ErrSkipped)}
	plain := &fakeStrategy{name: "plain-fetch", text: "must not run"}
	c := NewCascade([]Strategy{pdf, plain}, nil, nil, zap.NewNop())

	got := c.Fetch(context.Background(), "https://example.com/doc.pdf", "")
	if got.Success {
		t.Fatal("skipped source must not be reported successful")
	}
	if plain.calls != 0 {
		t.Fatal("skipped sources must bypass HTML strategies")
	}
}

func TestCascadeTotalFailureIsNotAnError(t *testing.T) {
	t.Parallel()

	a := &fakeStrategy{name: "plain-fetch", err: errors.New("connection refused")}
	b := &fakeStrategy{name: "pooled-render", err: errors.New("render timeout")}
	c := NewCascade([]Strategy{a, b}, nil, nil, zap.NewNop())

	got := c.Fetch(context.Background(), "https://down.example.com", "")
	if got.Success {
		t.Fatal("expected failure content")
	}
	if got.Error == "" {
		t.Fatal("failure must carry a diagnostic reason")
	}
}

type mapCache struct {
	store map[string]*domain.AcquiredContent
}

func (m *mapCache) Get(_ context.Context, url string) (*domain.AcquiredContent, bool) {
	c, ok := m.store[url]
	return c, ok
}

func (m *mapCache) Put(_ context.Context, url string, c *domain.AcquiredContent) {
	m.store[url] = c
}

func TestCascadeUsesCache(t *testing.T) {
	t.Parallel()

	cache := &mapCache{store: map[string]*domain.AcquiredContent{}}
	plain := &fakeStrategy{name: "plain-fetch", text: "usable text"}
	c := NewCascade([]Strategy{plain}, cache, nil, zap.NewNop())

	c.Fetch(context.Background(), "https://example.com/p", "")
	c.Fetch(context.Background(), "https://example.com/p", "")

	if plain.calls != 1 {
		t.Fatalf("second fetch should hit the cache, strategy ran %d times", plain.calls)
	}
}
