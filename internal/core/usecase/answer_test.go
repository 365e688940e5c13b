package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
)

func answerDocs() []domain.RerankedResult {
	return []domain.RerankedResult{
		{DocumentID: "11", Title: "Autotaxin in MS", Abstract: "Levels were elevated."},
		{DocumentID: "22", Title: "LPA signalling", Abstract: "A second abstract."},
	}
}

func TestBuildContextFormat(t *testing.T) {
	got := BuildContext(answerDocs())
	want := "Abstract n°1: Autotaxin in MS. Levels were elevated.\n\nAbstract n°2: LPA signalling. A second abstract."
	if got != want {
		t.Fatalf("unexpected context:\n%q\nwant\n%q", got, want)
	}
	if BuildContext(nil) != "" {
		t.Fatalf("expected empty context for no documents")
	}
}

func TestGenerateParsesAnswer(t *testing.T) {
	chat := &chatModelFake{reply: "Sure! {\"answer\": \"  Autotaxin is elevated.  \"} hope this helps"}
	g := NewAnswerGenerator(chat, "llama3", 0)

	answer, contextText, err := g.Generate(context.Background(), "", "is autotaxin elevated?", answerDocs())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if answer != "Autotaxin is elevated." {
		t.Fatalf("unexpected answer %q", answer)
	}
	if contextText != BuildContext(answerDocs()) {
		t.Fatalf("expected the generator to return the rendered context")
	}

	if len(chat.requests) != 1 {
		t.Fatalf("expected one chat request, got %d", len(chat.requests))
	}
	req := chat.requests[0]
	if req.Model != "llama3" || req.Temperature != 0 || req.Seed != 42 || !req.JSON {
		t.Fatalf("unexpected request settings: %+v", req)
	}
	if !strings.Contains(req.Messages[0].Content, "Abstract n°2: LPA signalling.") {
		t.Fatalf("expected prompt to embed the context")
	}
	if !strings.Contains(req.Messages[0].Content, "is autotaxin elevated?") {
		t.Fatalf("expected prompt to embed the question")
	}
}

func TestGenerateModelOverride(t *testing.T) {
	chat := &chatModelFake{reply: `{"answer":"ok"}`}
	g := NewAnswerGenerator(chat, "llama3", 7)

	if _, _, err := g.Generate(context.Background(), "openai/gpt-4o-mini", "q", answerDocs()); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if chat.requests[0].Model != "openai/gpt-4o-mini" || chat.requests[0].Seed != 7 {
		t.Fatalf("unexpected request: %+v", chat.requests[0])
	}
}

func TestGenerateFallsBackOnUnparseableReplies(t *testing.T) {
	cases := map[string]string{
		"no json":        "I think the answer is yes.",
		"broken json":    `{"answer": "yes"`,
		"invalid object": `{answer: yes}`,
		"missing key":    `{"response": "yes"}`,
		"empty answer":   `{"answer": "   "}`,
		"reversed":       `} oops {`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			g := NewAnswerGenerator(&chatModelFake{reply: reply}, "m", 0)
			answer, _, err := g.Generate(context.Background(), "", "q", answerDocs())
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if answer != FallbackAnswer {
				t.Fatalf("expected fallback answer, got %q", answer)
			}
		})
	}
}

func TestGenerateEndpointFailure(t *testing.T) {
	g := NewAnswerGenerator(&chatModelFake{err: errors.New("connection refused")}, "m", 0)
	_, _, err := g.Generate(context.Background(), "", "q", answerDocs())
	if !errors.Is(err, domain.ErrGenerationEndpoint) {
		t.Fatalf("expected ErrGenerationEndpoint, got %v", err)
	}
	if domain.StageOf(err) != domain.StageGeneration {
		t.Fatalf("expected generation stage, got %s", domain.StageOf(err))
	}
}

func TestExtractJSONObjectIsGreedy(t *testing.T) {
	got, ok := ExtractJSONObject(`prefix {"a": {"b": 1}} middle {"c": 2} suffix`)
	if !ok {
		t.Fatalf("expected an object")
	}
	if got != `{"a": {"b": 1}} middle {"c": 2}` {
		t.Fatalf("unexpected span %q", got)
	}
}
