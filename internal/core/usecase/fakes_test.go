package usecase

import (
	"context"
	"strings"
	"sync"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/core/ports"
)

type normalizerFake struct{}

func (normalizerFake) Normalize(text string) string { return strings.ToLower(text) }

type embedderFake struct {
	mu      sync.Mutex
	queries []string
	texts   []string
	err     error
	short   bool
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.texts = append(f.texts, texts...)
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, []float32{float32(i), 1})
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type searchIndexFake struct {
	mu sync.Mutex

	vectorHits  []domain.RankedHit
	lexicalHits []domain.RankedHit
	vectorErr   error
	lexicalErr  error

	vectorCalls  int
	lexicalCalls int
	lastK        int
	lastPool     int
	lastLexical  string
	lastWeights  domain.FieldWeights
	lastLexicalN int
	upserted     []domain.Document
}

func (f *searchIndexFake) EnsureIndex(context.Context) error { return nil }

func (f *searchIndexFake) Upsert(_ context.Context, docs []domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, docs...)
	return nil
}

func (f *searchIndexFake) VectorSearch(_ context.Context, _ []float32, k, pool int) ([]domain.RankedHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectorCalls++
	f.lastK = k
	f.lastPool = pool
	return f.vectorHits, f.vectorErr
}

func (f *searchIndexFake) LexicalSearch(_ context.Context, text string, weights domain.FieldWeights, topN int) ([]domain.RankedHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lexicalCalls++
	f.lastLexical = text
	f.lastWeights = weights
	f.lastLexicalN = topN
	return f.lexicalHits, f.lexicalErr
}

type articleRepoFake struct {
	mu       sync.Mutex
	articles map[string]domain.Article
	order    []string
	err      error
	upserts  int
}

func newArticleRepoFake(articles ...domain.Article) *articleRepoFake {
	repo := &articleRepoFake{articles: map[string]domain.Article{}}
	for _, a := range articles {
		repo.articles[a.ID] = a
		repo.order = append(repo.order, a.ID)
	}
	return repo
}

func (f *articleRepoFake) Upsert(_ context.Context, article *domain.Article) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.articles[article.ID]; !ok {
		f.order = append(f.order, article.ID)
	}
	f.articles[article.ID] = *article
	f.upserts++
	return nil
}

func (f *articleRepoFake) GetByID(_ context.Context, id string) (*domain.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.articles[id]
	if !ok {
		return nil, domain.ErrArticleNotFound
	}
	return &a, nil
}

func (f *articleRepoFake) GetByIDs(_ context.Context, ids []string) ([]domain.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Article, 0, len(ids))
	for _, id := range ids {
		if a, ok := f.articles[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *articleRepoFake) EnsureSchema(context.Context) error { return nil }

func (f *articleRepoFake) ListIDs(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...), nil
}

// crossEncoderFake scores a text by the keyword it contains; keywords must not overlap.
type crossEncoderFake struct {
	scores map[string]float64
	err    error
	short  bool
	calls  int
}

func (f *crossEncoderFake) Score(_ context.Context, _ string, texts []string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, 0, len(texts))
	for _, text := range texts {
		score := 0.0
		for key, s := range f.scores {
			if strings.Contains(text, key) {
				score = s
				break
			}
		}
		out = append(out, score)
	}
	if f.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

type chatModelFake struct {
	reply    string
	err      error
	requests []domain.ChatRequest
}

func (f *chatModelFake) Chat(_ context.Context, req domain.ChatRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type queryServiceFake struct {
	answer *domain.Answer
	err    error
}

func (f *queryServiceFake) Answer(context.Context, string, domain.QueryOptions) (*domain.Answer, error) {
	return f.answer, f.err
}

type pipelineMetricsFake struct {
	observations []ports.PipelineObservation
	ratios       []float64
}

func (f *pipelineMetricsFake) ObservePipeline(obs ports.PipelineObservation) {
	f.observations = append(f.observations, obs)
}

func (f *pipelineMetricsFake) SetSuccessRatio(ratio float64) {
	f.ratios = append(f.ratios, ratio)
}

type sourceFake struct {
	articles []domain.Article
	err      error
	term     string
	max      int
}

func (f *sourceFake) Fetch(_ context.Context, term string, maxArticles int) ([]domain.Article, error) {
	f.term = term
	f.max = maxArticles
	return f.articles, f.err
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishArticleIndex(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, id)
	return nil
}

func (f *queueFake) SubscribeArticleIndex(context.Context, func(context.Context, string) error) error {
	return nil
}
