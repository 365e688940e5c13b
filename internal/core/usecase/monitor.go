package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/core/ports"
	"github.com/kirillkom/medlit-rag/internal/observability/logging"
)

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// PipelineMonitor wraps the query pipeline, reports latency, failure stage and
// success ratio, and turns failures into degraded answers.
type PipelineMonitor struct {
	inner   ports.QueryService
	metrics ports.PipelineMetrics
	now     func() time.Time

	mu        sync.Mutex
	total     int64
	succeeded int64
}

func NewPipelineMonitor(inner ports.QueryService, metrics ports.PipelineMetrics) *PipelineMonitor {
	return &PipelineMonitor{
		inner:   inner,
		metrics: metrics,
		now:     time.Now,
	}
}

func (m *PipelineMonitor) Ask(ctx context.Context, question string, opts domain.QueryOptions) *domain.Answer {
	start := m.now()
	answer, err := m.inner.Answer(ctx, question, opts)
	duration := m.now().Sub(start)

	ratio := m.record(err == nil)

	obs := ports.PipelineObservation{
		SearchType: opts.SearchType,
		Outcome:    outcomeSuccess,
		Duration:   duration,
	}
	if err != nil {
		stage := domain.StageOf(err)
		obs.Outcome = outcomeError
		obs.Stage = stage
		logging.FromContext(ctx).Error("pipeline_degraded",
			zap.String("stage", string(stage)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		answer = &domain.Answer{
			Text:         DegradedAnswer(stage),
			Sources:      []domain.RerankedResult{},
			Degraded:     true,
			FailureStage: stage,
		}
	} else {
		obs.Sources = len(answer.Sources)
	}

	if m.metrics != nil {
		m.metrics.ObservePipeline(obs)
		m.metrics.SetSuccessRatio(ratio)
	}
	return answer
}

// record counts one call and returns the ratio from the same snapshot.
func (m *PipelineMonitor) record(ok bool) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	if ok {
		m.succeeded++
	}
	return float64(m.succeeded) / float64(m.total)
}

// SuccessRatio is the share of monitored calls that returned without error.
func (m *PipelineMonitor) SuccessRatio() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.total == 0 {
		return 1
	}
	return float64(m.succeeded) / float64(m.total)
}

func DegradedAnswer(stage domain.Stage) string {
	if stage == "" {
		stage = domain.StageUnknown
	}
	return fmt.Sprintf("error: %s failure", stage)
}
