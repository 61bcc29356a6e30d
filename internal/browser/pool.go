package browser

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/prodsearch-service/internal/monitoring"
)

var ErrPoolClosed = errors.New("browser pool is closed")

// maxWorkerUses forces a worker to be recycled after this many renders, so
// a degraded Chrome process cannot poison the pool indefinitely.
const maxWorkerUses = 25

// Worker is one rendering-capable unit. It is exclusively owned by the
// caller between Acquire and Release.
type Worker struct {
	ID       int
	uses     int
	lastUsed time.Time

	allocCtx context.Context
	cancel   context.CancelFunc
}

// Context returns the chromedp allocator context to derive browser tabs from.
func (w *Worker) Context() context.Context {
	return w.allocCtx
}

// Factory creates the underlying allocator for one worker.
type Factory func() (context.Context, context.CancelFunc)

// ChromeFactory builds headless Chrome exec allocators.
func ChromeFactory() Factory {
	return func() (context.Context, context.CancelFunc) {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.UserAgent(`Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36`),
		)
		return chromedp.NewExecAllocator(context.Background(), opts...)
	}
}

// Pool manages a fixed number of render workers. Acquire blocks on a
// channel (no polling) until a worker is free or the context expires.
type Pool struct {
	workers  chan *Worker
	capacity int
	factory  Factory
	metrics  *monitoring.Metrics
	log      *zap.Logger

	done   chan struct{}
	nextID atomic.Int64
}

func NewPool(capacity int, factory Factory, m *monitoring.Metrics, log *zap.Logger) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	p := &Pool{
		workers:  make(chan *Worker, capacity),
		capacity: capacity,
		factory:  factory,
		metrics:  m,
		log:      log,
		done:     make(chan struct{}),
	}
	for i := 0; i < capacity; i++ {
		p.workers <- p.newWorker()
	}
	return p
}

func (p *Pool) newWorker() *Worker {
	id := int(p.nextID.Add(1))
	allocCtx, cancel := p.factory()
	return &Worker{ID: id, allocCtx: allocCtx, cancel: cancel}
}

// Acquire checks a worker out of the pool. Every successful Acquire must be
// matched by exactly one Release on all exit paths.
func (p *Pool) Acquire(ctx context.Context) (*Worker, error) {
	select {
	case <-p.done:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case w := <-p.workers:
		if p.metrics != nil {
			p.metrics.PoolWorkersInUse.Inc()
		}
		return w, nil
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a worker to the pool. Unhealthy or worn-out workers are
// torn down and replaced, keeping capacity constant.
func (p *Pool) Release(w *Worker) {
	if w == nil {
		return
	}
	if p.metrics != nil {
		p.metrics.PoolWorkersInUse.Dec()
	}

	w.uses++
	w.lastUsed = time.Now()

	if w.uses >= maxWorkerUses || w.allocCtx.Err() != nil {
		p.log.Debug("recycling render worker", zap.Int("worker_id", w.ID), zap.Int("uses", w.uses))
		w.cancel()
		w = p.newWorker()
	}

	select {
	case <-p.done:
		w.cancel()
	case p.workers <- w:
	}
}

// Close tears down all idle workers. Workers currently checked out are
// cancelled when released.
func (p *Pool) Close() {
	close(p.done)
	for {
		select {
		case w := <-p.workers:
			w.cancel()
		default:
			return
		}
	}
}
