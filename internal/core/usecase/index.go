package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/core/ports"
)

const defaultIndexBatchSize = 32

// IndexArticleUseCase turns stored articles into search documents. Documents are
// always rebuilt and upserted whole.
type IndexArticleUseCase struct {
	repo       ports.ArticleRepository
	normalizer ports.TextNormalizer
	embedder   ports.Embedder
	index      ports.SearchIndex
	batchSize  int
}

func NewIndexArticleUseCase(
	repo ports.ArticleRepository,
	normalizer ports.TextNormalizer,
	embedder ports.Embedder,
	index ports.SearchIndex,
	batchSize int,
) *IndexArticleUseCase {
	if batchSize <= 0 {
		batchSize = defaultIndexBatchSize
	}
	return &IndexArticleUseCase{
		repo:       repo,
		normalizer: normalizer,
		embedder:   embedder,
		index:      index,
		batchSize:  batchSize,
	}
}

func (uc *IndexArticleUseCase) IndexByID(ctx context.Context, articleID string) error {
	article, err := uc.repo.GetByID(ctx, articleID)
	if err != nil {
		return fmt.Errorf("fetch article by id: %w", err)
	}
	return uc.indexArticles(ctx, []domain.Article{*article})
}

// IndexAll rebuilds the index from every stored article and returns the number indexed.
func (uc *IndexArticleUseCase) IndexAll(ctx context.Context) (int, error) {
	ids, err := uc.repo.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list article ids: %w", err)
	}

	indexed := 0
	for start := 0; start < len(ids); start += uc.batchSize {
		end := start + uc.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		articles, err := uc.repo.GetByIDs(ctx, ids[start:end])
		if err != nil {
			return indexed, fmt.Errorf("fetch article batch: %w", err)
		}
		if err := uc.indexArticles(ctx, articles); err != nil {
			return indexed, err
		}
		indexed += len(articles)
	}
	return indexed, nil
}

func (uc *IndexArticleUseCase) indexArticles(ctx context.Context, articles []domain.Article) error {
	if len(articles) == 0 {
		return nil
	}

	docs := make([]domain.Document, 0, len(articles))
	texts := make([]string, 0, len(articles))
	for _, article := range articles {
		doc, err := uc.buildDocument(article)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		texts = append(texts, doc.Text())
	}

	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"embed documents",
			fmt.Errorf("vectors/documents mismatch: %d/%d", len(vectors), len(docs)),
		)
	}
	for i := range docs {
		docs[i].Embedding = vectors[i]
	}

	if err := uc.index.Upsert(ctx, docs); err != nil {
		return fmt.Errorf("upsert documents: %w", err)
	}
	return nil
}

func (uc *IndexArticleUseCase) buildDocument(article domain.Article) (domain.Document, error) {
	if article.ID == "" {
		return domain.Document{}, domain.WrapError(domain.ErrInvalidInput, "build document", errors.New("article id is empty"))
	}
	if article.Title == "" && article.Abstract == "" {
		return domain.Document{}, domain.WrapError(
			domain.ErrInvalidInput,
			"build document",
			fmt.Errorf("article %s has neither title nor abstract", article.ID),
		)
	}
	return domain.Document{
		ID:       article.ID,
		Title:    uc.normalizer.Normalize(article.Title),
		Abstract: uc.normalizer.Normalize(article.Abstract),
	}, nil
}
