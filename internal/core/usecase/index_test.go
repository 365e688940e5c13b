package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
)

func TestIndexByIDNormalizesAndEmbeds(t *testing.T) {
	repo := newArticleRepoFake(domain.Article{ID: "42", Title: "Autotaxin In MS", Abstract: "Elevated LEVELS"})
	embedder := &embedderFake{}
	index := &searchIndexFake{}
	uc := NewIndexArticleUseCase(repo, normalizerFake{}, embedder, index, 0)

	if err := uc.IndexByID(context.Background(), "42"); err != nil {
		t.Fatalf("IndexByID() error = %v", err)
	}
	if len(index.upserted) != 1 {
		t.Fatalf("expected 1 upserted document, got %d", len(index.upserted))
	}
	doc := index.upserted[0]
	if doc.ID != "42" || doc.Title != "autotaxin in ms" || doc.Abstract != "elevated levels" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if len(doc.Embedding) == 0 {
		t.Fatalf("expected embedding to be attached")
	}
	if embedder.texts[0] != "autotaxin in ms elevated levels" {
		t.Fatalf("expected normalized text to be embedded, got %q", embedder.texts[0])
	}
}

func TestIndexByIDNotFound(t *testing.T) {
	uc := NewIndexArticleUseCase(newArticleRepoFake(), normalizerFake{}, &embedderFake{}, &searchIndexFake{}, 0)
	err := uc.IndexByID(context.Background(), "missing")
	if !errors.Is(err, domain.ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}
}

func TestIndexAllBatches(t *testing.T) {
	articles := make([]domain.Article, 0, 7)
	for i := 0; i < 7; i++ {
		articles = append(articles, domain.Article{ID: fmt.Sprintf("%d", i), Title: "t", Abstract: "a"})
	}
	index := &searchIndexFake{}
	uc := NewIndexArticleUseCase(newArticleRepoFake(articles...), normalizerFake{}, &embedderFake{}, index, 3)

	n, err := uc.IndexAll(context.Background())
	if err != nil {
		t.Fatalf("IndexAll() error = %v", err)
	}
	if n != 7 || len(index.upserted) != 7 {
		t.Fatalf("expected 7 indexed, got n=%d upserted=%d", n, len(index.upserted))
	}
}

func TestIndexEmbeddingMismatch(t *testing.T) {
	repo := newArticleRepoFake(domain.Article{ID: "1", Title: "t", Abstract: "a"})
	uc := NewIndexArticleUseCase(repo, normalizerFake{}, &embedderFake{short: true}, &searchIndexFake{}, 0)
	if err := uc.IndexByID(context.Background(), "1"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIndexRejectsEmptyArticle(t *testing.T) {
	repo := newArticleRepoFake(domain.Article{ID: "1"})
	index := &searchIndexFake{}
	uc := NewIndexArticleUseCase(repo, normalizerFake{}, &embedderFake{}, index, 0)
	if err := uc.IndexByID(context.Background(), "1"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(index.upserted) != 0 {
		t.Fatalf("expected nothing upserted")
	}
}
