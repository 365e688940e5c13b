package domain

import (
	"fmt"
	"strings"
)

type SearchType string

const (
	SearchVector  SearchType = "vector"
	SearchLexical SearchType = "lexical"
	SearchHybrid  SearchType = "hybrid"
)

func ParseSearchType(raw string) (SearchType, error) {
	switch st := SearchType(strings.ToLower(strings.TrimSpace(raw))); st {
	case "":
		return SearchHybrid, nil
	case SearchVector, SearchLexical, SearchHybrid:
		return st, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse search type", fmt.Errorf("unknown search type %q", raw))
	}
}

// FieldWeights are independent multipliers for lexical matches per field.
type FieldWeights struct {
	Title    float64 `json:"title" yaml:"title"`
	Abstract float64 `json:"abstract" yaml:"abstract"`
}

// RankedHit is one entry of a single-source result list. Rank is 1-based;
// Score is only meaningful inside the list that produced it.
type RankedHit struct {
	DocumentID string  `json:"document_id"`
	Rank       int     `json:"rank"`
	Score      float64 `json:"score"`
}

// FusedResult carries a run-scoped RRF score.
type FusedResult struct {
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"fused_score"`
}

// RerankedResult carries a run-scoped cross-encoder score.
type RerankedResult struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Abstract   string  `json:"abstract"`
	Score      float64 `json:"relevance_score"`
}

// QueryOptions tunes one pipeline call. Zero values fall back to service defaults.
type QueryOptions struct {
	SearchType SearchType
	// ResultCount is the number of documents kept after reranking.
	ResultCount int
	// SearchDepth is the number of hits requested from each source list.
	SearchDepth int
	// CandidatePool is the ANN exploration breadth of the vector search.
	CandidatePool int
	Weights       FieldWeights
	RRFK          int
	Model         string
}

type Answer struct {
	Text    string           `json:"text"`
	Context string           `json:"context"`
	Sources []RerankedResult `json:"sources"`

	Degraded     bool  `json:"degraded,omitempty"`
	FailureStage Stage `json:"failure_stage,omitempty"`
}
