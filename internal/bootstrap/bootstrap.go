package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kirillkom/medlit-rag/internal/config"
	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/core/ports"
	"github.com/kirillkom/medlit-rag/internal/core/usecase"
	"github.com/kirillkom/medlit-rag/internal/infrastructure/embcache"
	"github.com/kirillkom/medlit-rag/internal/infrastructure/llm"
	"github.com/kirillkom/medlit-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/medlit-rag/internal/infrastructure/llm/openai"
	"github.com/kirillkom/medlit-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/medlit-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/medlit-rag/internal/infrastructure/rerank/tei"
	"github.com/kirillkom/medlit-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/medlit-rag/internal/infrastructure/scraper/pubmed"
	"github.com/kirillkom/medlit-rag/internal/infrastructure/search/pgvector"
	"github.com/kirillkom/medlit-rag/internal/infrastructure/search/qdrant"
	"github.com/kirillkom/medlit-rag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/medlit-rag/internal/observability/metrics"
	"github.com/kirillkom/medlit-rag/internal/textnorm"
)

// Options carries process-specific hooks into the shared wiring.
type Options struct {
	// Service labels metrics; defaults to "medlit".
	Service string
	// Registerer receives pipeline and cache metrics; nil keeps them private.
	Registerer prometheus.Registerer
	// OnQueueLag observes publish-to-delivery delay of index events.
	OnQueueLag func(lag time.Duration)
}

type App struct {
	Config config.Config
	Logger *zap.Logger

	Queue    ports.MessageQueue
	Articles ports.ArticleRepository
	Chat     ports.ChatModel

	QueryUC   *usecase.QueryUseCase
	Monitor   *usecase.PipelineMonitor
	IndexUC   *usecase.IndexArticleUseCase
	IngestUC  *usecase.IngestArticlesUseCase
	Benchmark *localfs.BenchmarkStore
	Results   *localfs.ResultStore

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	service := opts.Service
	if service == "" {
		service = "medlit"
	}

	app := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	executor := resilience.NewExecutor(cfg.Resilience(), logger)
	executor.ObserveStates(metrics.NewBreakerMetrics(service, reg).ObserveBreaker)

	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(func() { _ = db.Close() })

	repo := postgres.NewArticleRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	app.Articles = repo

	index, err := newSearchIndex(cfg, db, executor)
	if err != nil {
		return nil, err
	}
	if err := index.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("ensure search index: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, executor)
	var hosted ports.ChatModel
	var openaiClient *openai.Client
	if cfg.OpenAIAPIKey != "" {
		openaiClient = openai.New(openai.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			EmbedModel: cfg.OpenAIEmbedModel,
			Dimensions: cfg.EmbeddingDimensions,
			Logger:     logger,
		}, executor)
		hosted = openai.NewChatModel(openaiClient)
	}
	app.Chat = llm.NewRouter(ollama.NewChatModel(ollamaClient), hosted)

	var embedder ports.Embedder = ollama.NewEmbedder(ollamaClient)
	if cfg.EmbeddingProvider == "openai" {
		embedder = openai.NewEmbedder(openaiClient)
	}
	if len(cfg.RedisAddrs) > 0 {
		client, err := embcache.NewClient(embcache.Config{
			Addrs:    cfg.RedisAddrs,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("init embedding cache: %w", err)
		}
		app.onClose(client.Close)
		embedder = embcache.New(client, embedder, cfg.EmbedModel(), cfg.EmbedCacheTTL, metrics.NewCacheMetrics(service, reg))
		logger.Info("embedding_cache_enabled", zap.Strings("addrs", cfg.RedisAddrs))
	}

	normalizer, err := textnorm.NewDefault(logger)
	if err != nil {
		return nil, fmt.Errorf("init text normalizer: %w", err)
	}

	searchType, err := domain.ParseSearchType(cfg.RAGSearchType)
	if err != nil {
		return nil, err
	}
	app.QueryUC = usecase.NewQueryUseCase(
		usecase.NewRetriever(index, embedder, normalizer),
		repo,
		usecase.NewReranker(tei.New(cfg.RerankerURL, executor)),
		usecase.NewAnswerGenerator(app.Chat, cfg.OllamaGenModel, cfg.GenerationSeed),
		usecase.QueryDefaults{
			SearchType:    searchType,
			ResultCount:   cfg.RAGResultCount,
			SearchDepth:   cfg.RAGSearchDepth,
			CandidatePool: cfg.RAGCandidatePool,
			Weights:       domain.FieldWeights{Title: cfg.RAGTitleWeight, Abstract: cfg.RAGAbstractWeight},
			RRFK:          cfg.RAGFusionRRFK,
			Model:         cfg.OllamaGenModel,
		},
	)
	app.Monitor = usecase.NewPipelineMonitor(app.QueryUC, metrics.NewPipelineMetrics(service, reg))
	app.IndexUC = usecase.NewIndexArticleUseCase(repo, normalizer, embedder, index, cfg.IndexBatchSize)

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
		OnLag:              opts.OnQueueLag,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	app.onClose(queue.Close)
	app.Queue = queue

	scraper := pubmed.New(pubmed.Config{
		RequestsPerSecond: cfg.ScraperRequestsPerSecond,
		Concurrency:       cfg.ScraperConcurrency,
		Logger:            logger,
	})
	app.IngestUC = usecase.NewIngestArticlesUseCase(scraper, repo, queue)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init local storage: %w", err)
	}
	app.Benchmark = localfs.NewBenchmarkStore(storage, localfs.DefaultBenchmarkKey)
	app.Results = localfs.NewResultStore(storage, "")

	return app, nil
}

func newSearchIndex(cfg config.Config, db *sql.DB, executor *resilience.Executor) (ports.SearchIndex, error) {
	switch cfg.SearchBackend {
	case config.BackendPGVector:
		return pgvector.New(db, cfg.PGVectorTable, cfg.EmbeddingDimensions), nil
	case config.BackendQdrant:
		return qdrant.New(qdrant.Config{
			BaseURL:    cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			VectorSize: cfg.EmbeddingDimensions,
		}, executor), nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "init search index", fmt.Errorf("unknown backend %q", cfg.SearchBackend))
	}
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

// Close releases resources in reverse acquisition order.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
