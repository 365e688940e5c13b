package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/core/ports"
)

func TestPipelineMonitorPassesThroughSuccess(t *testing.T) {
	inner := &queryServiceFake{answer: &domain.Answer{
		Text:    "yes",
		Sources: []domain.RerankedResult{{DocumentID: "1"}, {DocumentID: "2"}},
	}}
	metrics := &pipelineMetricsFake{}
	m := NewPipelineMonitor(inner, metrics)

	answer := m.Ask(context.Background(), "q", domain.QueryOptions{SearchType: domain.SearchHybrid})
	if answer.Text != "yes" || answer.Degraded {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if len(metrics.observations) != 1 {
		t.Fatalf("expected one observation, got %d", len(metrics.observations))
	}
	obs := metrics.observations[0]
	if obs.Outcome != "success" || obs.Sources != 2 || obs.SearchType != domain.SearchHybrid {
		t.Fatalf("unexpected observation: %+v", obs)
	}
	if metrics.ratios[0] != 1 {
		t.Fatalf("expected ratio 1, got %f", metrics.ratios[0])
	}
}

func TestPipelineMonitorDegradesByStage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{domain.WrapError(domain.ErrRetrieval, "vector search", errors.New("down")), "error: retrieval failure"},
		{domain.WrapError(domain.ErrGenerationEndpoint, "chat", errors.New("timeout")), "error: generation failure"},
		{domain.WrapError(domain.ErrNormalization, "normalize", errors.New("bad")), "error: normalization failure"},
		{errors.New("something else"), "error: unknown failure"},
	}
	for _, tc := range cases {
		metrics := &pipelineMetricsFake{}
		m := NewPipelineMonitor(&queryServiceFake{err: tc.err}, metrics)

		answer := m.Ask(context.Background(), "q", domain.QueryOptions{})
		if answer == nil {
			t.Fatalf("expected a degraded answer, got nil")
		}
		if answer.Text != tc.want || !answer.Degraded {
			t.Fatalf("expected %q degraded answer, got %+v", tc.want, answer)
		}
		if len(answer.Sources) != 0 {
			t.Fatalf("expected no sources on degraded answer")
		}
		if metrics.observations[0].Outcome != "error" || metrics.observations[0].Stage != answer.FailureStage {
			t.Fatalf("unexpected observation: %+v", metrics.observations[0])
		}
	}
}

func TestPipelineMonitorSuccessRatio(t *testing.T) {
	inner := &queryServiceFake{answer: &domain.Answer{Text: "ok"}}
	metrics := &pipelineMetricsFake{}
	m := NewPipelineMonitor(inner, metrics)

	if m.SuccessRatio() != 1 {
		t.Fatalf("expected ratio 1 before any call")
	}
	m.Ask(context.Background(), "q", domain.QueryOptions{})
	m.Ask(context.Background(), "q", domain.QueryOptions{})
	inner.err = domain.WrapError(domain.ErrRetrieval, "search", errors.New("down"))
	m.Ask(context.Background(), "q", domain.QueryOptions{})

	if got := m.SuccessRatio(); math.Abs(got-2.0/3) > 1e-9 {
		t.Fatalf("expected ratio 2/3, got %f", got)
	}
	if last := metrics.ratios[len(metrics.ratios)-1]; math.Abs(last-2.0/3) > 1e-9 {
		t.Fatalf("expected reported ratio 2/3, got %f", last)
	}
}

func TestPipelineMonitorWithoutMetrics(t *testing.T) {
	m := NewPipelineMonitor(&queryServiceFake{err: errors.New("x")}, nil)
	if answer := m.Ask(context.Background(), "q", domain.QueryOptions{}); !answer.Degraded {
		t.Fatalf("expected degraded answer")
	}
}

// alternatingQuery fails every other call.
type alternatingQuery struct {
	calls atomic.Int64
}

func (q *alternatingQuery) Answer(context.Context, string, domain.QueryOptions) (*domain.Answer, error) {
	if q.calls.Add(1)%2 == 0 {
		return nil, domain.WrapError(domain.ErrRetrieval, "search", errors.New("down"))
	}
	return &domain.Answer{Text: "ok"}, nil
}

type maxRatioSink struct {
	mu  sync.Mutex
	max float64
}

func (s *maxRatioSink) ObservePipeline(ports.PipelineObservation) {}

func (s *maxRatioSink) SetSuccessRatio(ratio float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.max = math.Max(s.max, ratio)
}

func TestPipelineMonitorRatioStaysBoundedUnderConcurrency(t *testing.T) {
	sink := &maxRatioSink{}
	m := NewPipelineMonitor(&alternatingQuery{}, sink)

	const workers, perWorker = 32, 200
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Ask(context.Background(), "q", domain.QueryOptions{})
			}
		}()
	}
	wg.Wait()

	if sink.max > 1 {
		t.Fatalf("success ratio exceeded 1: %f", sink.max)
	}
	if got := m.SuccessRatio(); got != 0.5 {
		t.Fatalf("expected final ratio 0.5, got %f", got)
	}
}
