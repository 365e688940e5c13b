package ports

import (
	"context"
	"time"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
)

// ArticleRepository persists and reads scraped articles.
type ArticleRepository interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, article *domain.Article) error
	GetByID(ctx context.Context, id string) (*domain.Article, error)
	// GetByIDs returns the found articles in the order of ids; unknown ids are skipped.
	GetByIDs(ctx context.Context, ids []string) ([]domain.Article, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// SearchIndex is the read/write contract of a hybrid search backend.
type SearchIndex interface {
	EnsureIndex(ctx context.Context) error
	Upsert(ctx context.Context, docs []domain.Document) error
	VectorSearch(ctx context.Context, embedding []float32, k, candidatePool int) ([]domain.RankedHit, error)
	LexicalSearch(ctx context.Context, text string, weights domain.FieldWeights, topN int) ([]domain.RankedHit, error)
}

// Embedder builds dense vectors for documents and queries.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// CrossEncoder scores (query, text) pairs jointly. Scores are returned in input order.
type CrossEncoder interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// ChatModel is a single-turn chat completion endpoint; it returns the message content.
type ChatModel interface {
	Chat(ctx context.Context, req domain.ChatRequest) (string, error)
}

// TextNormalizer prepares text for embedding and lexical matching.
type TextNormalizer interface {
	Normalize(text string) string
}

// MessageQueue publishes/consumes article indexing events.
type MessageQueue interface {
	PublishArticleIndex(ctx context.Context, articleID string) error
	SubscribeArticleIndex(ctx context.Context, handler func(context.Context, string) error) error
}

// ArticleSource fetches articles matching a search term.
type ArticleSource interface {
	Fetch(ctx context.Context, term string, maxArticles int) ([]domain.Article, error)
}

// PipelineObservation describes one monitored end-to-end call.
type PipelineObservation struct {
	SearchType domain.SearchType
	Outcome    string
	Stage      domain.Stage
	Sources    int
	Duration   time.Duration
}

// PipelineMetrics is the sink for monitored pipeline calls.
type PipelineMetrics interface {
	ObservePipeline(obs PipelineObservation)
	SetSuccessRatio(ratio float64)
}

// BenchmarkStore holds the append-only benchmark set.
type BenchmarkStore interface {
	Load(ctx context.Context) ([]domain.EvaluationRecord, error)
	Append(ctx context.Context, record domain.EvaluationRecord) error
}

// ResultStore persists one artifact per evaluation configuration.
type ResultStore interface {
	Save(ctx context.Context, result domain.EvaluationResult) (string, error)
}
