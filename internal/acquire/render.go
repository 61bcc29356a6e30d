package acquire

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/prodsearch-service/internal/browser"
	"github.com/user/prodsearch-service/internal/domain"
)

// specTableSelector is a generic "looks like a spec table" hint waited for
// after navigation. Missing it is not an error.
const specTableSelector = `table, dl, [class*="spec"]`

// settleWait gives deferred client-side content a moment to land after the
// page reports ready.
const settleWait = 1500 * time.Millisecond

// selectorWait bounds the optional spec-table wait.
const selectorWait = 3 * time.Second

// RenderFetch is the most expensive strategy: a full render on a pooled
// headless-browser worker.
type RenderFetch struct {
	pool           *browser.Pool
	acquireTimeout time.Duration
	renderTimeout  time.Duration
	log            *zap.Logger
}

func NewRenderFetch(pool *browser.Pool, acquireTimeout, renderTimeout time.Duration, log *zap.Logger) *RenderFetch {
	return &RenderFetch{
		pool:           pool,
		acquireTimeout: acquireTimeout,
		renderTimeout:  renderTimeout,
		log:            log,
	}
}

func (s *RenderFetch) Name() string { return string(domain.MethodPooledRender) }

func (s *RenderFetch) Try(ctx context.Context, url string) (*domain.AcquiredContent, error) {
	acquireCtx, cancelAcquire := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancelAcquire()

	worker, err := s.pool.Acquire(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("render %s: pool acquire: %w", url, err)
	}
	defer s.pool.Release(worker)

	tabCtx, cancelTab := chromedp.NewContext(worker.Context())
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, s.renderTimeout)
	defer cancelTimeout()

	err = chromedp.Run(tabCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": "de-DE,de;q=0.9,en;q=0.8",
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleWait),
	)
	if err != nil {
		return nil, fmt.Errorf("render %s: navigate: %w", url, err)
	}

	// Best effort: many product pages attach spec tables late. Bounded by
	// its own short timeout so a page without tables doesn't stall us.
	waitCtx, cancelWait := context.WithTimeout(tabCtx, selectorWait)
	if waitErr := chromedp.Run(waitCtx, chromedp.WaitVisible(specTableSelector, chromedp.ByQuery)); waitErr != nil {
		s.log.Debug("no spec table appeared before timeout", zap.String("url", url))
	}
	cancelWait()

	var bodyText, tableText string
	err = chromedp.Run(tabCtx,
		chromedp.Text("body", &bodyText, chromedp.ByQuery),
		chromedp.Evaluate(`Array.from(document.querySelectorAll("table, dl")).map(e => e.innerText).join("\n")`, &tableText),
	)
	if err != nil {
		return nil, fmt.Errorf("render %s: extract: %w", url, err)
	}

	text := normalizeWhitespace(strings.TrimSpace(tableText + "\n" + bodyText))
	if len(text) < minContentLength {
		return nil, fmt.Errorf("render %s: %w after full render", url, ErrInsufficient)
	}

	return &domain.AcquiredContent{Method: domain.MethodPooledRender, Text: text}, nil
}
