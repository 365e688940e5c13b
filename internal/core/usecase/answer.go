package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/core/ports"
	"github.com/kirillkom/medlit-rag/internal/observability/logging"
)

// FallbackAnswer is returned when the model output carries no usable answer.
const FallbackAnswer = "cannot answer from provided context"

const defaultGenerationSeed = 42

// AnswerGenerator prompts a chat model with the reranked abstracts and parses
// its JSON reply. Parsing is heuristic (first "{" to last "}"), so any malformed
// reply degrades to FallbackAnswer instead of failing the request.
type AnswerGenerator struct {
	chat         ports.ChatModel
	defaultModel string
	seed         int
}

func NewAnswerGenerator(chat ports.ChatModel, defaultModel string, seed int) *AnswerGenerator {
	if seed == 0 {
		seed = defaultGenerationSeed
	}
	return &AnswerGenerator{
		chat:         chat,
		defaultModel: defaultModel,
		seed:         seed,
	}
}

// Generate returns the answer and the exact context shown to the model.
func (g *AnswerGenerator) Generate(
	ctx context.Context,
	model string,
	question string,
	docs []domain.RerankedResult,
) (string, string, error) {
	if model == "" {
		model = g.defaultModel
	}
	contextText := BuildContext(docs)

	raw, err := g.chat.Chat(ctx, domain.ChatRequest{
		Model: model,
		Messages: []domain.ChatMessage{
			{Role: domain.RoleUser, Content: buildAnswerPrompt(question, contextText)},
		},
		Temperature: 0,
		Seed:        g.seed,
		JSON:        true,
	})
	if err != nil {
		return "", contextText, domain.WrapError(domain.ErrGenerationEndpoint, "generate answer", err)
	}

	answer, err := parseAnswer(raw)
	if err != nil {
		logging.FromContext(ctx).Warn("generation_parse_failed",
			zap.String("model", model),
			zap.Int("raw_len", len(raw)),
			zap.Error(err),
		)
		return FallbackAnswer, contextText, nil
	}
	return answer, contextText, nil
}

// BuildContext renders documents as numbered abstracts separated by blank lines.
// The order is the reranker's order.
func BuildContext(docs []domain.RerankedResult) string {
	parts := make([]string, 0, len(docs))
	for i, doc := range docs {
		parts = append(parts, fmt.Sprintf("Abstract n°%d: %s. %s", i+1, doc.Title, doc.Abstract))
	}
	return strings.Join(parts, "\n\n")
}

func buildAnswerPrompt(question, contextText string) string {
	return fmt.Sprintf(`You are an assistant answering questions about medical research.
Answer the question strictly from the abstracts in the context below.
If the context does not contain the answer, say that it cannot be answered from the provided context.
Return a strict JSON object with a single key "answer" holding your answer as a string.
No markdown, no extra keys.

Context:
%s

Question:
%s
`, contextText, question)
}

func parseAnswer(raw string) (string, error) {
	object, ok := ExtractJSONObject(raw)
	if !ok {
		return "", domain.WrapError(domain.ErrGenerationParse, "parse answer", errors.New("no json object in model output"))
	}

	var payload struct {
		Answer *string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(object), &payload); err != nil {
		return "", domain.WrapError(domain.ErrGenerationParse, "parse answer", err)
	}
	if payload.Answer == nil || strings.TrimSpace(*payload.Answer) == "" {
		return "", domain.WrapError(domain.ErrGenerationParse, "parse answer", errors.New("missing answer key"))
	}
	return strings.TrimSpace(*payload.Answer), nil
}

// ExtractJSONObject returns the greedy span from the first "{" to the last "}".
func ExtractJSONObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], true
	}
	return "", false
}
