package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/prodsearch-service/internal/acquire"
	postgres_adapter "github.com/user/prodsearch-service/internal/adapter/postgres"
	redis_adapter "github.com/user/prodsearch-service/internal/adapter/redis"
	"github.com/user/prodsearch-service/internal/adapter/searchapi"
	"github.com/user/prodsearch-service/internal/audit"
	"github.com/user/prodsearch-service/internal/browser"
	"github.com/user/prodsearch-service/internal/config"
	"github.com/user/prodsearch-service/internal/delivery/http/handler"
	"github.com/user/prodsearch-service/internal/delivery/http/router"
	"github.com/user/prodsearch-service/internal/extract"
	"github.com/user/prodsearch-service/internal/monitoring"
	"github.com/user/prodsearch-service/internal/pipeline"
	"github.com/user/prodsearch-service/internal/ratelimit"
	"github.com/user/prodsearch-service/internal/relevance"
	"github.com/user/prodsearch-service/internal/resolve"
	"github.com/user/prodsearch-service/internal/search"
	"github.com/user/prodsearch-service/pkg/logger"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// --- Logger ---
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck
	log.Info("logger initialized", zap.String("level", cfg.LogLevel))

	// --- Metrics ---
	metrics := monitoring.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Database Connections ---
	dbpool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal("unable to connect to database", zap.Error(err))
	}
	defer dbpool.Close()
	log.Info("PostgreSQL connection pool established")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("unable to connect to Redis", zap.Error(err))
	}
	log.Info("Redis connection established")

	// --- Audit + browser pool ---
	sink := audit.NewLogSink(log, metrics)

	pool := browser.NewPool(cfg.BrowserPoolSize, browser.ChromeFactory(), metrics, log)
	defer pool.Close()

	// --- Acquisition cascade ---
	contentCache := redis_adapter.NewContentCache(rdb, cfg.ContentCacheTTL(), log)
	cascade := acquire.NewCascade([]acquire.Strategy{
		acquire.NewPDFFetch(cfg.FetchTimeout(), cfg.PDFEnabled, sink),
		acquire.NewPlainFetch(cfg.FetchTimeout()),
		acquire.NewFrameworkFetch(cfg.FetchTimeout()),
		acquire.NewRenderFetch(pool, cfg.AcquireTimeout(), cfg.RenderTimeout(), log),
	}, contentCache, metrics, log)

	// --- Extraction + resolution ---
	extractor := extract.NewOpenAIExtractor(cfg.LLMEndpoint, cfg.LLMModel, cfg.LLMAPIKey, cfg.ExtractTimeout())
	orchestrator := extract.NewOrchestrator(extractor, cfg.ExtractConcurrency, cfg.ExtractTimeout(), sink, metrics, log)
	resolver := resolve.New()

	// --- Search + pipeline ---
	var searcher search.Client
	if cfg.SearchEndpoint != "" {
		searcher = searchapi.New(cfg.SearchEndpoint, cfg.SearchAPIKey, cfg.FetchTimeout())
	} else {
		log.Warn("no search endpoint configured, requests must supply candidate pages")
	}
	filter := search.NewFilter(cfg.ExcludedDomains, cfg.ManufacturerDomains)
	scorer := relevance.NewScorer(cfg.PassThreshold, cfg.SiblingPenalty, cfg.FallbackTopN, log)

	runRepo := postgres_adapter.NewRunResultRepo(dbpool)
	research := pipeline.New(searcher, filter, scorer, cascade, orchestrator, resolver, runRepo, cfg.MaxSources, metrics, log)

	// --- Rate limiting ---
	limiter := ratelimit.NewLimiter(
		ratelimit.NewPostgresStore(dbpool),
		cfg.RateLimitMax, cfg.RateLimitWindow(), cfg.RateLimitBlock(),
		metrics, log,
	)
	go limiter.StartCleanup(ctx, time.Hour)

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(research, runRepo, log)
	httpRouter := router.New(apiHandler, limiter, metrics, log)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httpRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Minute, // research runs are slow
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped unexpectedly", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server stopped")
}
