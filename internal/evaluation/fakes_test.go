package evaluation

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/infrastructure/storage/localfs"
)

// scriptedChat replies with queued responses in call order.
type scriptedChat struct {
	mu        sync.Mutex
	responses []string
	requests  []domain.ChatRequest
}

func (c *scriptedChat) Chat(_ context.Context, req domain.ChatRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.responses) == 0 {
		return "", errors.New("no scripted response left")
	}
	out := c.responses[0]
	c.responses = c.responses[1:]
	return out, nil
}

// promptChat answers by matching a fragment of the prompt.
type promptChat struct {
	mu      sync.Mutex
	replies map[string]string
	calls   int
}

func (c *promptChat) Chat(_ context.Context, req domain.ChatRequest) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	prompt := req.Messages[0].Content
	for fragment, reply := range c.replies {
		if strings.Contains(prompt, fragment) {
			return reply, nil
		}
	}
	return "", errors.New("unexpected prompt")
}

type pipelineFake struct {
	mu    sync.Mutex
	opts  []domain.QueryOptions
	err   error
	reply func(question string) *domain.Answer
}

func (p *pipelineFake) Answer(_ context.Context, question string, opts domain.QueryOptions) (*domain.Answer, error) {
	p.mu.Lock()
	p.opts = append(p.opts, opts)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.reply(question), nil
}

type benchmarkFake struct {
	records []domain.EvaluationRecord
}

func (b *benchmarkFake) Load(context.Context) ([]domain.EvaluationRecord, error) {
	return b.records, nil
}

func (b *benchmarkFake) Append(_ context.Context, r domain.EvaluationRecord) error {
	b.records = append(b.records, r)
	return nil
}

type resultStoreFake struct {
	saved map[string]domain.EvaluationResult
}

func (r *resultStoreFake) Save(_ context.Context, result domain.EvaluationResult) (string, error) {
	if r.saved == nil {
		r.saved = map[string]domain.EvaluationResult{}
	}
	name := localfs.ArtifactName(result.Config)
	r.saved[name] = result
	return name, nil
}
