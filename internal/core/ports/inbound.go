package ports

import (
	"context"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
)

// QueryService answers a question from retrieved literature.
type QueryService interface {
	Answer(ctx context.Context, question string, opts domain.QueryOptions) (*domain.Answer, error)
}

// MonitoredQueryService never fails; failures come back as degraded answers.
type MonitoredQueryService interface {
	Ask(ctx context.Context, question string, opts domain.QueryOptions) *domain.Answer
}

// ArticleReader is the read model for article details.
type ArticleReader interface {
	GetByID(ctx context.Context, id string) (*domain.Article, error)
}

// ArticleIndexer (re)builds search documents from stored articles.
type ArticleIndexer interface {
	IndexByID(ctx context.Context, articleID string) error
	IndexAll(ctx context.Context) (int, error)
}

// ArticleIngestor scrapes, stores and schedules articles for indexing.
type ArticleIngestor interface {
	Ingest(ctx context.Context, term string, maxArticles int) (int, error)
}
