package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/core/ports"
	"github.com/kirillkom/medlit-rag/internal/observability/logging"
)

// IngestArticlesUseCase stores scraped articles and schedules them for indexing.
type IngestArticlesUseCase struct {
	source ports.ArticleSource
	repo   ports.ArticleRepository
	queue  ports.MessageQueue
	now    func() time.Time
}

func NewIngestArticlesUseCase(
	source ports.ArticleSource,
	repo ports.ArticleRepository,
	queue ports.MessageQueue,
) *IngestArticlesUseCase {
	return &IngestArticlesUseCase{
		source: source,
		repo:   repo,
		queue:  queue,
		now:    time.Now,
	}
}

// Ingest returns the number of articles stored and published.
func (uc *IngestArticlesUseCase) Ingest(ctx context.Context, term string, maxArticles int) (int, error) {
	if strings.TrimSpace(term) == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "ingest", fmt.Errorf("search term is required"))
	}

	articles, err := uc.source.Fetch(ctx, term, maxArticles)
	if err != nil {
		return 0, fmt.Errorf("fetch articles: %w", err)
	}

	logger := logging.FromContext(ctx)
	stored := 0
	for i := range articles {
		article := articles[i]
		if article.ID == "" || strings.TrimSpace(article.Abstract) == "" {
			logger.Info("article_skipped", zap.String("id", article.ID), zap.String("reason", "missing id or abstract"))
			continue
		}

		now := uc.now().UTC()
		article.CreatedAt = now
		article.UpdatedAt = now
		if err := uc.repo.Upsert(ctx, &article); err != nil {
			return stored, fmt.Errorf("store article %s: %w", article.ID, err)
		}
		if err := uc.queue.PublishArticleIndex(ctx, article.ID); err != nil {
			return stored, fmt.Errorf("publish index event for %s: %w", article.ID, err)
		}
		stored++
	}
	return stored, nil
}
