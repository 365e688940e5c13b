package usecase

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/core/ports"
)

// Retriever runs the vector and lexical searches and fuses their rankings.
type Retriever struct {
	index      ports.SearchIndex
	embedder   ports.Embedder
	normalizer ports.TextNormalizer
}

func NewRetriever(index ports.SearchIndex, embedder ports.Embedder, normalizer ports.TextNormalizer) *Retriever {
	return &Retriever{
		index:      index,
		embedder:   embedder,
		normalizer: normalizer,
	}
}

// Retrieve returns fused candidates for the question. Single-source search types
// are passed through the same fusion so every mode yields one ordered list.
func (r *Retriever) Retrieve(ctx context.Context, question string, opts domain.QueryOptions) ([]domain.FusedResult, error) {
	normalized := r.normalizer.Normalize(question)

	var vectorHits, lexicalHits []domain.RankedHit
	g, gctx := errgroup.WithContext(ctx)

	if opts.SearchType == domain.SearchVector || opts.SearchType == domain.SearchHybrid {
		g.Go(func() error {
			hits, err := r.vectorSearch(gctx, normalized, opts)
			if err != nil {
				return err
			}
			vectorHits = hits
			return nil
		})
	}
	if opts.SearchType == domain.SearchLexical || opts.SearchType == domain.SearchHybrid {
		g.Go(func() error {
			hits, err := r.index.LexicalSearch(gctx, normalized, opts.Weights, opts.SearchDepth)
			if err != nil {
				return domain.WrapError(domain.ErrRetrieval, "lexical search", err)
			}
			lexicalHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	switch opts.SearchType {
	case domain.SearchVector:
		return FuseRRF(opts.RRFK, vectorHits), nil
	case domain.SearchLexical:
		return FuseRRF(opts.RRFK, lexicalHits), nil
	case domain.SearchHybrid:
		return FuseRRF(opts.RRFK, vectorHits, lexicalHits), nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("unsupported search type %q", opts.SearchType))
	}
}

func (r *Retriever) vectorSearch(ctx context.Context, text string, opts domain.QueryOptions) ([]domain.RankedHit, error) {
	embedding, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "embed query", err)
	}
	if len(embedding) == 0 {
		return nil, domain.WrapError(domain.ErrRetrieval, "embed query", errors.New("empty query embedding"))
	}

	hits, err := r.index.VectorSearch(ctx, embedding, opts.SearchDepth, opts.CandidatePool)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "vector search", err)
	}
	return hits, nil
}
