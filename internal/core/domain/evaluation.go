package domain

import (
	"fmt"
	"strings"
)

// EvaluationRecord is one benchmark pair.
type EvaluationRecord struct {
	Query            string `json:"query"`
	ExpectedAbstract string `json:"expected_abstract"`
}

type ScoringPolicy string

const (
	PolicyHandcrafted ScoringPolicy = "handcrafted"
	PolicyMetric      ScoringPolicy = "metric"
)

func ParseScoringPolicy(raw string) (ScoringPolicy, error) {
	switch p := ScoringPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PolicyHandcrafted, nil
	case PolicyHandcrafted, PolicyMetric:
		return p, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse scoring policy", fmt.Errorf("unknown scoring policy %q", raw))
	}
}

// RunConfig is the full parameter tuple of one evaluation run.
type RunConfig struct {
	GenerationModel string        `json:"generation_model"`
	EvaluationModel string        `json:"evaluation_model"`
	SearchType      SearchType    `json:"search_type"`
	ResultCount     int           `json:"result_count"`
	TitleWeight     float64       `json:"title_weight"`
	AbstractWeight  float64       `json:"abstract_weight"`
	Policy          ScoringPolicy `json:"policy"`
	RRFK            int           `json:"rrf_k"`
}

type EvaluationItem struct {
	Query            string   `json:"query"`
	Answer           string   `json:"answer"`
	RetrievedIDs     []string `json:"retrieved_ids"`
	ScoreRetrieval   float64  `json:"score_retrieval"`
	ScoreGeneration  float64  `json:"score_generation"`
	RetrievalReason  string   `json:"retrieval_reason,omitempty"`
	GenerationReason string   `json:"generation_reason,omitempty"`
}

type EvaluationResult struct {
	Config          RunConfig        `json:"config"`
	ScoreRetrieval  float64          `json:"score_retrieval"`
	ScoreGeneration float64          `json:"score_generation"`
	ExecutionTime   float64          `json:"execution_time"`
	Items           []EvaluationItem `json:"items"`
}
