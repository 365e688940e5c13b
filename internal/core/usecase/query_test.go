package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
)

type queryFixture struct {
	index    *searchIndexFake
	embedder *embedderFake
	repo     *articleRepoFake
	encoder  *crossEncoderFake
	chat     *chatModelFake
	uc       *QueryUseCase
}

func newQueryFixture() *queryFixture {
	f := &queryFixture{
		index: &searchIndexFake{
			vectorHits:  hits("D1", "D2", "D3"),
			lexicalHits: hits("D2", "D4", "D1"),
		},
		embedder: &embedderFake{},
		repo: newArticleRepoFake(
			domain.Article{ID: "D1", Title: "Autotaxin and multiple sclerosis", Abstract: "one"},
			domain.Article{ID: "D2", Title: "Lysophosphatidic acid", Abstract: "two"},
			domain.Article{ID: "D3", Title: "Unrelated cardiology", Abstract: "three"},
			domain.Article{ID: "D4", Title: "Serum biomarkers", Abstract: "four"},
		),
		encoder: &crossEncoderFake{scores: map[string]float64{"Autotaxin": 3, "Lysophosphatidic": 2, "Serum": 1, "cardiology": -2}},
		chat:    &chatModelFake{reply: `{"answer":"Autotaxin is elevated in MS."}`},
	}
	f.uc = NewQueryUseCase(
		NewRetriever(f.index, f.embedder, normalizerFake{}),
		f.repo,
		NewReranker(f.encoder),
		NewAnswerGenerator(f.chat, "llama3", 0),
		QueryDefaults{RRFK: 5},
	)
	return f
}

func TestQueryUseCaseHybridPipeline(t *testing.T) {
	f := newQueryFixture()

	answer, err := f.uc.Answer(context.Background(), "Autotaxin MS", domain.QueryOptions{ResultCount: 2})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Text != "Autotaxin is elevated in MS." {
		t.Fatalf("unexpected answer %q", answer.Text)
	}
	if len(answer.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(answer.Sources))
	}
	if answer.Sources[0].DocumentID != "D1" || answer.Sources[1].DocumentID != "D2" {
		t.Fatalf("unexpected rerank order: %+v", answer.Sources)
	}
	if answer.Context != BuildContext(answer.Sources) {
		t.Fatalf("expected context to match sources")
	}

	if f.index.vectorCalls != 1 || f.index.lexicalCalls != 1 {
		t.Fatalf("expected both searches, got vector=%d lexical=%d", f.index.vectorCalls, f.index.lexicalCalls)
	}
	if f.index.lastLexical != "autotaxin ms" {
		t.Fatalf("expected normalized lexical query, got %q", f.index.lastLexical)
	}
	if len(f.embedder.queries) != 1 || f.embedder.queries[0] != "autotaxin ms" {
		t.Fatalf("expected normalized embedding query, got %v", f.embedder.queries)
	}
	if f.index.lastWeights != (domain.FieldWeights{Title: 1, Abstract: 1}) {
		t.Fatalf("expected default weights, got %+v", f.index.lastWeights)
	}
	if f.index.lastK < 2 || f.index.lastPool < f.index.lastK {
		t.Fatalf("expected depth >= result count and pool >= depth, got k=%d pool=%d", f.index.lastK, f.index.lastPool)
	}
}

func TestQueryUseCaseSingleSourceModes(t *testing.T) {
	f := newQueryFixture()
	if _, err := f.uc.Answer(context.Background(), "q", domain.QueryOptions{SearchType: domain.SearchVector}); err != nil {
		t.Fatalf("vector Answer() error = %v", err)
	}
	if f.index.vectorCalls != 1 || f.index.lexicalCalls != 0 {
		t.Fatalf("vector mode: vector=%d lexical=%d", f.index.vectorCalls, f.index.lexicalCalls)
	}

	f = newQueryFixture()
	answer, err := f.uc.Answer(context.Background(), "q", domain.QueryOptions{SearchType: domain.SearchLexical})
	if err != nil {
		t.Fatalf("lexical Answer() error = %v", err)
	}
	if f.index.vectorCalls != 0 || f.index.lexicalCalls != 1 || len(f.embedder.queries) != 0 {
		t.Fatalf("lexical mode should not embed or vector search")
	}
	if len(answer.Sources) != 3 {
		t.Fatalf("expected 3 lexical sources, got %d", len(answer.Sources))
	}
}

func TestQueryUseCaseCustomWeightsAndDepth(t *testing.T) {
	f := newQueryFixture()
	opts := domain.QueryOptions{
		ResultCount:   3,
		SearchDepth:   20,
		CandidatePool: 100,
		Weights:       domain.FieldWeights{Title: 3, Abstract: 1},
	}
	if _, err := f.uc.Answer(context.Background(), "q", opts); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if f.index.lastWeights.Title != 3 || f.index.lastLexicalN != 20 || f.index.lastK != 20 || f.index.lastPool != 100 {
		t.Fatalf("options not forwarded: %+v", f.index)
	}
}

func TestQueryUseCaseEmptyQuestion(t *testing.T) {
	f := newQueryFixture()
	_, err := f.uc.Answer(context.Background(), "   ", domain.QueryOptions{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestQueryUseCaseNoCandidatesSkipsGeneration(t *testing.T) {
	f := newQueryFixture()
	f.index.vectorHits = nil
	f.index.lexicalHits = nil

	answer, err := f.uc.Answer(context.Background(), "q", domain.QueryOptions{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Text != FallbackAnswer {
		t.Fatalf("expected fallback answer, got %q", answer.Text)
	}
	if len(f.chat.requests) != 0 {
		t.Fatalf("expected no chat call without context")
	}
}

func TestQueryUseCaseStageErrors(t *testing.T) {
	cases := []struct {
		name  string
		setup func(f *queryFixture)
		kind  error
		stage domain.Stage
	}{
		{"embedding", func(f *queryFixture) { f.embedder.err = errors.New("embed down") }, domain.ErrRetrieval, domain.StageRetrieval},
		{"vector", func(f *queryFixture) { f.index.vectorErr = errors.New("qdrant down") }, domain.ErrRetrieval, domain.StageRetrieval},
		{"lexical", func(f *queryFixture) { f.index.lexicalErr = errors.New("bad query") }, domain.ErrRetrieval, domain.StageRetrieval},
		{"articles", func(f *queryFixture) { f.repo.err = errors.New("pg down") }, domain.ErrRetrieval, domain.StageRetrieval},
		{"rerank", func(f *queryFixture) { f.encoder.err = errors.New("tei down") }, domain.ErrRetrieval, domain.StageRetrieval},
		{"chat", func(f *queryFixture) { f.chat.err = errors.New("ollama down") }, domain.ErrGenerationEndpoint, domain.StageGeneration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newQueryFixture()
			tc.setup(f)
			_, err := f.uc.Answer(context.Background(), "q", domain.QueryOptions{})
			if !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			if got := domain.StageOf(err); got != tc.stage {
				t.Fatalf("expected stage %s, got %s", tc.stage, got)
			}
		})
	}
}

func TestQueryDefaultsApply(t *testing.T) {
	opts := QueryDefaults{}.apply(domain.QueryOptions{})
	if opts.SearchType != domain.SearchHybrid || opts.ResultCount != 5 {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
	if opts.SearchDepth < opts.ResultCount || opts.CandidatePool < opts.SearchDepth {
		t.Fatalf("expected monotonic depth/pool, got %+v", opts)
	}

	opts = QueryDefaults{SearchType: domain.SearchLexical, ResultCount: 4, SearchDepth: 10, CandidatePool: 50, RRFK: 60, Model: "m"}.
		apply(domain.QueryOptions{ResultCount: 12})
	if opts.SearchType != domain.SearchLexical || opts.ResultCount != 12 || opts.SearchDepth != 12 || opts.CandidatePool != 50 {
		t.Fatalf("unexpected merged options: %+v", opts)
	}
	if opts.RRFK != 60 || opts.Model != "m" {
		t.Fatalf("expected defaults to fill rrf k and model, got %+v", opts)
	}
}
