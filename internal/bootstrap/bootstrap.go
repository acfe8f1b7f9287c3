package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/admissions-rag/internal/config"
	"github.com/kirillkom/admissions-rag/internal/core/ports"
	"github.com/kirillkom/admissions-rag/internal/core/usecase"
	"github.com/kirillkom/admissions-rag/internal/infrastructure/cache/memory"
	"github.com/kirillkom/admissions-rag/internal/infrastructure/cache/redisfifo"
	"github.com/kirillkom/admissions-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/admissions-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/admissions-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/admissions-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/admissions-rag/internal/infrastructure/tracelog"
	"github.com/kirillkom/admissions-rag/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/admissions-rag/internal/observability/metrics"
)

const warmupTimeout = 30 * time.Second

type App struct {
	Config config.Config

	Chat    ports.ChatService
	Router  ports.QueryRouter
	Traces  ports.TraceReader
	Metrics *metrics.HTTPServerMetrics

	closeFns []func()
}

// New wires every adapter from cfg. service labels the exported metrics.
func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	app := &App{Config: cfg, Metrics: metrics.NewHTTPServerMetrics(service)}
	ready := false
	defer func() {
		if !ready {
			app.Close()
		}
	}()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(func() { _ = db.Close() })
	if cfg.PostgresAutoMigrate {
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	store := postgres.NewCatalogRepository(db)

	executor := resilience.NewExecutor(resilienceConfig(cfg)).
		WithStateObserver(app.Metrics.BreakerObserver(service))

	llmClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaRouterModel, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		Timeout:            cfg.OllamaTimeout,
		Temperature:        cfg.GenerationTemperature,
		MaxTokens:          cfg.GenerationMaxTokens,
		ResilienceExecutor: executor,
	})
	embedder, err := ollama.NewEmbedder(llmClient, cfg.EmbedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	web := ollama.NewWebSearcher(cfg.WebSearchURL, cfg.WebSearchAPIKey, executor)
	if !web.Enabled() {
		slog.Info("web_search_disabled", "reason", "no api key")
	}

	vectors := qdrant.NewWithOptions(cfg.QdrantURL, cfg.QdrantCollection, embedder, qdrant.Options{
		APIKey:             cfg.QdrantAPIKey,
		ResilienceExecutor: executor,
	})

	cache, err := newResponseCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closer, ok := cache.(interface{ Close() error }); ok {
		app.onClose(func() { _ = closer.Close() })
	}

	ring := tracelog.NewRing(cfg.RAGTraceLogSize)
	app.Traces = ring
	sinks := []ports.TraceSink{ring, app.Metrics.RetrievalSink(service)}
	if cfg.NATSURL != "" {
		publisher, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSTraceSubject, nats.Options{ResilienceExecutor: executor})
		if err != nil {
			return nil, fmt.Errorf("init trace publisher: %w", err)
		}
		app.onClose(publisher.Close)
		sinks = append(sinks, publisher)
	}

	router := usecase.NewQueryRouter(ollama.NewClassifier(llmClient), cfg.RAGRouterTimeout)
	retriever := usecase.NewReflectiveRetriever(
		vectors,
		ollama.NewRelevanceJudge(llmClient),
		ollama.NewRewriter(llmClient),
		tracelog.Fanout(sinks...),
		usecase.RetrievalConfig{
			Limit:            cfg.RAGTopK,
			AdequacyDistance: cfg.RAGAdequacyDistance,
			PortTimeout:      cfg.RAGPortTimeout,
		},
	)
	orchestrator := usecase.NewOrchestrator(router, retriever, store, vectors, ollama.NewGenerator(llmClient, web), cache, usecase.OrchestratorConfig{
		PortTimeout:        cfg.RAGPortTimeout,
		GenerationTimeout:  cfg.RAGGenerationTimeout,
		StreamBuffer:       cfg.RAGStreamBuffer,
		OutOfScopeRedirect: cfg.RAGOutOfScopeRedirect,
	})
	app.Chat = orchestrator
	app.Router = router

	app.Metrics.RegisterCacheSize(service, func() float64 {
		return float64(cache.Len(context.Background()))
	})

	warmCtx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()
	if err := vectors.Warmup(warmCtx); err != nil {
		slog.Warn("warmup_failed", "error", err)
	}

	ready = true
	return app, nil
}

func newResponseCache(ctx context.Context, cfg config.Config) (ports.ResponseCache, error) {
	if cfg.RedisURL == "" {
		return memory.NewFIFO(cfg.CacheCapacity), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("response_cache_shared", "addr", opts.Addr, "capacity", cfg.CacheCapacity)
	return &closingCache{Cache: redisfifo.New(client, redisfifo.Options{Capacity: cfg.CacheCapacity}), client: client}, nil
}

type closingCache struct {
	*redisfifo.Cache
	client *redis.Client
}

func (c *closingCache) Close() error {
	return c.client.Close()
}

func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.Retry.MaxAttempts = cfg.ResilienceRetryMaxAttempts
	rc.Retry.InitialBackoff = cfg.ResilienceRetryInitialBackoff
	rc.Retry.MaxBackoff = cfg.ResilienceRetryMaxBackoff
	rc.Retry.Jitter = cfg.ResilienceRetryJitter
	rc.Breaker.Enabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceBreakerMinRequests > 0 {
		rc.Breaker.MinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	}
	rc.Breaker.FailureRatio = cfg.ResilienceBreakerFailureRatio
	rc.Breaker.OpenTimeout = cfg.ResilienceBreakerOpenTimeout

	generation := resilience.RetryPolicy{MaxAttempts: cfg.ResilienceGenerationAttempts}
	rc.Operations = map[string]resilience.RetryPolicy{
		"ollama.generate":        generation,
		"ollama.generate_stream": generation,
		// Trace publishing sits on the retrieval path.
		nats.RecordOperation: {MaxAttempts: 1},
	}
	return rc
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
