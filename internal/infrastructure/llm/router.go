// Package llm routes chat requests to a provider chosen by model name.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/core/ports"
)

// OpenAIPrefix marks models served by the OpenAI-compatible provider.
const OpenAIPrefix = "openai/"

// Router sends "openai/<model>" to the hosted provider and everything else to
// the local one.
type Router struct {
	local  ports.ChatModel
	hosted ports.ChatModel
}

func NewRouter(local, hosted ports.ChatModel) *Router {
	return &Router{local: local, hosted: hosted}
}

func (r *Router) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	if name, ok := strings.CutPrefix(req.Model, OpenAIPrefix); ok {
		if r.hosted == nil {
			return "", domain.WrapError(domain.ErrInvalidInput, "route chat", fmt.Errorf("no hosted provider configured for %q", req.Model))
		}
		req.Model = name
		return r.hosted.Chat(ctx, req)
	}
	if r.local == nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "route chat", fmt.Errorf("no local provider configured for %q", req.Model))
	}
	return r.local.Chat(ctx, req)
}
