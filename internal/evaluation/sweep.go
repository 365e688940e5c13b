package evaluation

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
)

const defaultEvalRRFK = 5

// Sweep describes a grid of evaluation runs. Every list is one axis of the
// cartesian product.
type Sweep struct {
	GenerationModels []string  `yaml:"generation_models"`
	EvaluationModels []string  `yaml:"evaluation_models"`
	SearchTypes      []string  `yaml:"search_types"`
	ResultCounts     []int     `yaml:"result_counts"`
	TitleWeights     []float64 `yaml:"title_weights"`
	AbstractWeights  []float64 `yaml:"abstract_weights"`
	Policy           string    `yaml:"policy"`
	RRFK             int       `yaml:"rrf_k"`

	Concurrency int     `yaml:"concurrency"`
	RateLimit   float64 `yaml:"rate_limit"` // requests per second, 0 means unlimited
	Burst       int     `yaml:"burst"`
}

func LoadSweep(path string) (Sweep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sweep{}, fmt.Errorf("read sweep file: %w", err)
	}
	return ParseSweep(data)
}

func ParseSweep(data []byte) (Sweep, error) {
	var s Sweep
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Sweep{}, fmt.Errorf("parse sweep yaml: %w", err)
	}
	s.applyDefaults()
	if err := s.validate(); err != nil {
		return Sweep{}, err
	}
	return s, nil
}

func (s *Sweep) applyDefaults() {
	if len(s.SearchTypes) == 0 {
		s.SearchTypes = []string{string(domain.SearchHybrid)}
	}
	if len(s.ResultCounts) == 0 {
		s.ResultCounts = []int{5}
	}
	if len(s.TitleWeights) == 0 {
		s.TitleWeights = []float64{1}
	}
	if len(s.AbstractWeights) == 0 {
		s.AbstractWeights = []float64{1}
	}
	if s.RRFK <= 0 {
		s.RRFK = defaultEvalRRFK
	}
	if s.Concurrency <= 0 {
		s.Concurrency = 1
	}
	if s.Burst <= 0 {
		s.Burst = 1
	}
}

func (s Sweep) validate() error {
	invalid := func(msg string) error {
		return domain.WrapError(domain.ErrInvalidInput, "validate sweep", errors.New(msg))
	}
	if len(s.GenerationModels) == 0 {
		return invalid("generation_models is required")
	}
	if len(s.EvaluationModels) == 0 {
		return invalid("evaluation_models is required")
	}
	for _, n := range s.ResultCounts {
		if n <= 0 {
			return invalid("result_counts must be positive")
		}
	}
	for _, st := range s.SearchTypes {
		if _, err := domain.ParseSearchType(st); err != nil {
			return err
		}
	}
	if _, err := domain.ParseScoringPolicy(s.Policy); err != nil {
		return err
	}
	if slices.ContainsFunc(s.TitleWeights, isNegative) || slices.ContainsFunc(s.AbstractWeights, isNegative) {
		return invalid("field weights must not be negative")
	}
	// A zero pair would silently run with the service default weights.
	if slices.Contains(s.TitleWeights, 0) && slices.Contains(s.AbstractWeights, 0) {
		return invalid("title_weights and abstract_weights must not both contain 0")
	}
	if s.RateLimit < 0 {
		return invalid("rate_limit must not be negative")
	}
	return nil
}

func isNegative(v float64) bool { return v < 0 }

// Runs expands the sweep in a stable order: generation model is the outermost
// axis, abstract weight the innermost.
func (s Sweep) Runs() []domain.RunConfig {
	policy, _ := domain.ParseScoringPolicy(s.Policy)
	runs := make([]domain.RunConfig, 0,
		len(s.GenerationModels)*len(s.EvaluationModels)*len(s.SearchTypes)*
			len(s.ResultCounts)*len(s.TitleWeights)*len(s.AbstractWeights))
	for _, gen := range s.GenerationModels {
		for _, eval := range s.EvaluationModels {
			for _, rawType := range s.SearchTypes {
				searchType, _ := domain.ParseSearchType(rawType)
				for _, n := range s.ResultCounts {
					for _, tw := range s.TitleWeights {
						for _, aw := range s.AbstractWeights {
							runs = append(runs, domain.RunConfig{
								GenerationModel: gen,
								EvaluationModel: eval,
								SearchType:      searchType,
								ResultCount:     n,
								TitleWeight:     tw,
								AbstractWeight:  aw,
								Policy:          policy,
								RRFK:            s.RRFK,
							})
						}
					}
				}
			}
		}
	}
	return runs
}
