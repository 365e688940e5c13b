// Package evaluation scores the query pipeline over a benchmark set on two axes:
// retrieval quality and generation quality.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/core/ports"
	"github.com/kirillkom/medlit-rag/internal/observability/logging"
)

// RunReport is the outcome of one configuration of a sweep.
type RunReport struct {
	Result   domain.EvaluationResult
	Artifact string
}

type Harness struct {
	pipeline  ports.QueryService
	chat      ports.ChatModel
	benchmark ports.BenchmarkStore
	results   ports.ResultStore
	now       func() time.Time
}

func NewHarness(pipeline ports.QueryService, chat ports.ChatModel, benchmark ports.BenchmarkStore, results ports.ResultStore) *Harness {
	return &Harness{
		pipeline:  pipeline,
		chat:      chat,
		benchmark: benchmark,
		results:   results,
		now:       time.Now,
	}
}

// Run evaluates every configuration of the sweep in order and writes one
// artifact per configuration. The first failing configuration stops the sweep.
func (h *Harness) Run(ctx context.Context, sweep Sweep) ([]RunReport, error) {
	records, err := h.benchmark.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load benchmark: %w", err)
	}
	if len(records) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "run evaluation", errors.New("benchmark is empty"))
	}

	limit := rate.Inf
	if sweep.RateLimit > 0 {
		limit = rate.Limit(sweep.RateLimit)
	}
	limiter := rate.NewLimiter(limit, sweep.Burst)
	chat := &limitedChat{inner: h.chat, limiter: limiter}

	logger := logging.FromContext(ctx)
	runs := sweep.Runs()
	reports := make([]RunReport, 0, len(runs))
	for i, cfg := range runs {
		logger.Info("evaluation_run_started",
			zap.Int("run", i+1),
			zap.Int("runs", len(runs)),
			zap.Any("config", cfg),
		)
		result, err := h.runConfig(ctx, cfg, records, NewJudge(cfg.Policy, chat), limiter, sweep.Concurrency)
		if err != nil {
			return reports, fmt.Errorf("run %d/%d: %w", i+1, len(runs), err)
		}
		path, err := h.results.Save(ctx, result)
		if err != nil {
			return reports, fmt.Errorf("run %d/%d: %w", i+1, len(runs), err)
		}
		logger.Info("evaluation_run_finished",
			zap.String("artifact", path),
			zap.Float64("score_retrieval", result.ScoreRetrieval),
			zap.Float64("score_generation", result.ScoreGeneration),
			zap.Float64("execution_time", result.ExecutionTime),
		)
		reports = append(reports, RunReport{Result: result, Artifact: path})
	}
	return reports, nil
}

func (h *Harness) runConfig(
	ctx context.Context,
	cfg domain.RunConfig,
	records []domain.EvaluationRecord,
	judge Judge,
	limiter *rate.Limiter,
	concurrency int,
) (domain.EvaluationResult, error) {
	start := h.now()
	opts := domain.QueryOptions{
		SearchType:  cfg.SearchType,
		ResultCount: cfg.ResultCount,
		Weights:     domain.FieldWeights{Title: cfg.TitleWeight, Abstract: cfg.AbstractWeight},
		RRFK:        cfg.RRFK,
		Model:       cfg.GenerationModel,
	}

	items := make([]domain.EvaluationItem, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, rec := range records {
		g.Go(func() error {
			item, err := h.evaluateItem(gctx, rec, opts, cfg.EvaluationModel, judge, limiter)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.EvaluationResult{}, err
	}

	retrieval := make([]float64, len(items))
	generation := make([]float64, len(items))
	for i, item := range items {
		retrieval[i] = item.ScoreRetrieval
		generation[i] = item.ScoreGeneration
	}
	return domain.EvaluationResult{
		Config:          cfg,
		ScoreRetrieval:  MeanRounded(retrieval),
		ScoreGeneration: MeanRounded(generation),
		ExecutionTime:   h.now().Sub(start).Seconds(),
		Items:           items,
	}, nil
}

func (h *Harness) evaluateItem(
	ctx context.Context,
	rec domain.EvaluationRecord,
	opts domain.QueryOptions,
	judgeModel string,
	judge Judge,
	limiter *rate.Limiter,
) (domain.EvaluationItem, error) {
	if err := limiter.Wait(ctx); err != nil {
		return domain.EvaluationItem{}, err
	}
	answer, err := h.pipeline.Answer(ctx, rec.Query, opts)
	if err != nil {
		return domain.EvaluationItem{}, err
	}

	in := JudgeInput{
		Model:            judgeModel,
		Query:            rec.Query,
		ExpectedAbstract: rec.ExpectedAbstract,
		Answer:           answer.Text,
		Contexts:         make([]string, 0, len(answer.Sources)),
	}
	ids := make([]string, 0, len(answer.Sources))
	for _, src := range answer.Sources {
		ids = append(ids, src.DocumentID)
		in.Contexts = append(in.Contexts, src.Abstract)
	}

	retrieval, err := judge.ScoreRetrieval(ctx, in)
	if err != nil {
		return domain.EvaluationItem{}, err
	}
	generation, err := judge.ScoreGeneration(ctx, in)
	if err != nil {
		return domain.EvaluationItem{}, err
	}

	return domain.EvaluationItem{
		Query:            rec.Query,
		Answer:           answer.Text,
		RetrievedIDs:     ids,
		ScoreRetrieval:   retrieval.Score,
		ScoreGeneration:  generation.Score,
		RetrievalReason:  retrieval.Reason,
		GenerationReason: generation.Reason,
	}, nil
}

// MeanRounded is the arithmetic mean rounded to two decimals; 0 for no values.
func MeanRounded(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*100) / 100
}

// limitedChat makes every judge call wait on the shared limiter.
type limitedChat struct {
	inner   ports.ChatModel
	limiter *rate.Limiter
}

func (c *limitedChat) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return c.inner.Chat(ctx, req)
}
