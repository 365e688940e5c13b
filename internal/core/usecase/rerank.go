package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/core/ports"
)

// Reranker rescores fused candidates with a cross-encoder and keeps the best topN.
type Reranker struct {
	encoder ports.CrossEncoder
}

func NewReranker(encoder ports.CrossEncoder) *Reranker {
	return &Reranker{encoder: encoder}
}

// Rerank returns min(topN, len(candidates)) results ordered by descending
// cross-encoder score. Equal scores keep the candidate order.
func (r *Reranker) Rerank(
	ctx context.Context,
	query string,
	candidates []domain.Document,
	topN int,
) ([]domain.RerankedResult, error) {
	if len(candidates) == 0 || topN <= 0 {
		return []domain.RerankedResult{}, nil
	}
	if topN > len(candidates) {
		topN = len(candidates)
	}

	texts := make([]string, 0, len(candidates))
	for _, doc := range candidates {
		texts = append(texts, doc.Text())
	}

	scores, err := r.encoder.Score(ctx, query, texts)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "cross-encoder rerank", err)
	}
	if len(scores) != len(candidates) {
		return nil, domain.WrapError(
			domain.ErrRetrieval,
			"cross-encoder rerank",
			fmt.Errorf("scores/candidates mismatch: %d/%d", len(scores), len(candidates)),
		)
	}

	out := make([]domain.RerankedResult, len(candidates))
	for i, doc := range candidates {
		out[i] = domain.RerankedResult{
			DocumentID: doc.ID,
			Title:      doc.Title,
			Abstract:   doc.Abstract,
			Score:      scores[i],
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	return out[:topN], nil
}
