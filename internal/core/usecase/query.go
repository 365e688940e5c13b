package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/core/ports"
)

// QueryDefaults fill zero-valued QueryOptions fields.
type QueryDefaults struct {
	SearchType    domain.SearchType
	ResultCount   int
	SearchDepth   int
	CandidatePool int
	Weights       domain.FieldWeights
	RRFK          int
	Model         string
}

func (d QueryDefaults) apply(opts domain.QueryOptions) domain.QueryOptions {
	if opts.SearchType == "" {
		opts.SearchType = d.SearchType
	}
	if opts.SearchType == "" {
		opts.SearchType = domain.SearchHybrid
	}
	if opts.ResultCount <= 0 {
		opts.ResultCount = d.ResultCount
	}
	if opts.ResultCount <= 0 {
		opts.ResultCount = 5
	}
	if opts.SearchDepth <= 0 {
		opts.SearchDepth = d.SearchDepth
	}
	if opts.SearchDepth < opts.ResultCount {
		opts.SearchDepth = opts.ResultCount
	}
	if opts.CandidatePool <= 0 {
		opts.CandidatePool = d.CandidatePool
	}
	if opts.CandidatePool < opts.SearchDepth {
		opts.CandidatePool = opts.SearchDepth
	}
	if opts.Weights.Title <= 0 && opts.Weights.Abstract <= 0 {
		opts.Weights = d.Weights
	}
	if opts.Weights.Title <= 0 && opts.Weights.Abstract <= 0 {
		opts.Weights = domain.FieldWeights{Title: 1, Abstract: 1}
	}
	if opts.RRFK <= 0 {
		opts.RRFK = d.RRFK
	}
	if opts.Model == "" {
		opts.Model = d.Model
	}
	return opts
}

// QueryUseCase is the end-to-end retrieval and generation pipeline.
type QueryUseCase struct {
	retriever *Retriever
	articles  ports.ArticleRepository
	reranker  *Reranker
	generator *AnswerGenerator
	defaults  QueryDefaults
}

func NewQueryUseCase(
	retriever *Retriever,
	articles ports.ArticleRepository,
	reranker *Reranker,
	generator *AnswerGenerator,
	defaults QueryDefaults,
) *QueryUseCase {
	return &QueryUseCase{
		retriever: retriever,
		articles:  articles,
		reranker:  reranker,
		generator: generator,
		defaults:  defaults,
	}
}

func (uc *QueryUseCase) Answer(ctx context.Context, question string, opts domain.QueryOptions) (*domain.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("question is required"))
	}
	opts = uc.defaults.apply(opts)

	fused, err := uc.retriever.Retrieve(ctx, question, opts)
	if err != nil {
		return nil, err
	}

	candidates, err := uc.loadCandidates(ctx, fused)
	if err != nil {
		return nil, err
	}

	reranked, err := uc.reranker.Rerank(ctx, question, candidates, opts.ResultCount)
	if err != nil {
		return nil, err
	}
	if len(reranked) == 0 {
		return &domain.Answer{
			Text:    FallbackAnswer,
			Sources: reranked,
		}, nil
	}

	text, contextText, err := uc.generator.Generate(ctx, opts.Model, question, reranked)
	if err != nil {
		return nil, err
	}

	return &domain.Answer{
		Text:    text,
		Context: contextText,
		Sources: reranked,
	}, nil
}

// loadCandidates hydrates fused ids from the relational store, keeping fused order.
func (uc *QueryUseCase) loadCandidates(ctx context.Context, fused []domain.FusedResult) ([]domain.Document, error) {
	if len(fused) == 0 {
		return nil, nil
	}
	articles, err := uc.articles.GetByIDs(ctx, fusedIDs(fused))
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "load candidate articles", err)
	}

	byID := make(map[string]domain.Article, len(articles))
	for _, a := range articles {
		byID[a.ID] = a
	}
	docs := make([]domain.Document, 0, len(fused))
	for _, f := range fused {
		article, ok := byID[f.DocumentID]
		if !ok {
			continue
		}
		docs = append(docs, article.Document())
	}
	return docs, nil
}
