package domain

import (
	"errors"
	"fmt"
)

var (
	ErrArticleNotFound = errors.New("article not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrTemporary       = errors.New("temporary failure")
)

// Pipeline stage kinds. Each stage wraps its failures in exactly one of these.
var (
	ErrNormalization      = errors.New("normalization failure")
	ErrRetrieval          = errors.New("retrieval failure")
	ErrGenerationParse    = errors.New("generation parse failure")
	ErrGenerationEndpoint = errors.New("generation endpoint failure")
	ErrEvaluationJudge    = errors.New("evaluation judge failure")
)

type Stage string

const (
	StageNormalization Stage = "normalization"
	StageRetrieval     Stage = "retrieval"
	StageGeneration    Stage = "generation"
	StageEvaluation    Stage = "evaluation"
	StageUnknown       Stage = "unknown"
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// StageOf maps an error to the pipeline stage that raised it.
func StageOf(err error) Stage {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRetrieval):
		return StageRetrieval
	case errors.Is(err, ErrGenerationEndpoint), errors.Is(err, ErrGenerationParse):
		return StageGeneration
	case errors.Is(err, ErrNormalization):
		return StageNormalization
	case errors.Is(err, ErrEvaluationJudge):
		return StageEvaluation
	default:
		return StageUnknown
	}
}
