package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestStageOf(t *testing.T) {
	cases := []struct {
		err  error
		want Stage
	}{
		{nil, ""},
		{WrapError(ErrRetrieval, "search", errors.New("x")), StageRetrieval},
		{WrapError(ErrGenerationEndpoint, "chat", errors.New("x")), StageGeneration},
		{WrapError(ErrGenerationParse, "parse", errors.New("x")), StageGeneration},
		{WrapError(ErrNormalization, "lemma", errors.New("x")), StageNormalization},
		{WrapError(ErrEvaluationJudge, "judge", errors.New("x")), StageEvaluation},
		{fmt.Errorf("outer: %w", WrapError(ErrRetrieval, "search", errors.New("x"))), StageRetrieval},
		{errors.New("retrieval failure"), StageUnknown},
	}
	for _, tc := range cases {
		if got := StageOf(tc.err); got != tc.want {
			t.Fatalf("StageOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestWrapErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(ErrTemporary, "embed", cause)
	if !errors.Is(err, ErrTemporary) || !errors.Is(err, cause) {
		t.Fatalf("expected both kind and cause to match, got %v", err)
	}
	if WrapError(ErrTemporary, "embed", nil) != nil {
		t.Fatalf("expected nil for nil cause")
	}
}

func TestParseSearchType(t *testing.T) {
	if st, err := ParseSearchType(""); err != nil || st != SearchHybrid {
		t.Fatalf("expected hybrid default, got %q %v", st, err)
	}
	if st, err := ParseSearchType(" Lexical "); err != nil || st != SearchLexical {
		t.Fatalf("expected lexical, got %q %v", st, err)
	}
	if _, err := ParseSearchType("fulltext"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDocumentText(t *testing.T) {
	if got := (Document{Title: "T", Abstract: "A"}).Text(); got != "T A" {
		t.Fatalf("unexpected text %q", got)
	}
	if got := (Document{Abstract: "A"}).Text(); got != "A" {
		t.Fatalf("unexpected text %q", got)
	}
}
