package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/core/ports"
	"github.com/kirillkom/medlit-rag/internal/core/usecase"
)

const judgeSeed = 42

// JudgeInput is everything a judge may look at for one benchmark item.
type JudgeInput struct {
	Model            string
	Query            string
	ExpectedAbstract string
	Answer           string
	// Contexts are the retrieved passages in rank order.
	Contexts []string
}

type Verdict struct {
	Score  float64
	Reason string
}

// Judge scores one item on both axes. Unparseable judge output is an
// ErrEvaluationJudge error and never a zero score.
type Judge interface {
	ScoreRetrieval(ctx context.Context, in JudgeInput) (Verdict, error)
	ScoreGeneration(ctx context.Context, in JudgeInput) (Verdict, error)
}

func NewJudge(policy domain.ScoringPolicy, chat ports.ChatModel) Judge {
	if policy == domain.PolicyMetric {
		return &MetricJudge{chat: chat}
	}
	return &HandcraftedJudge{chat: chat}
}

// askJSON sends one deterministic JSON-mode prompt and decodes the greedy
// brace span of the reply into out.
func askJSON(ctx context.Context, chat ports.ChatModel, model, prompt, op string, out any) error {
	raw, err := chat.Chat(ctx, domain.ChatRequest{
		Model:       model,
		Messages:    []domain.ChatMessage{{Role: domain.RoleUser, Content: prompt}},
		Temperature: 0,
		Seed:        judgeSeed,
		JSON:        true,
	})
	if err != nil {
		return domain.WrapError(domain.ErrEvaluationJudge, op, err)
	}
	object, ok := usecase.ExtractJSONObject(raw)
	if !ok {
		return domain.WrapError(domain.ErrEvaluationJudge, op, fmt.Errorf("no json object in judge output %q", truncate(raw, 200)))
	}
	if err := json.Unmarshal([]byte(object), out); err != nil {
		return domain.WrapError(domain.ErrEvaluationJudge, op, err)
	}
	return nil
}

// wholeNumber accepts 3, 3.0 and "3".
func wholeNumber(raw json.RawMessage) (int, error) {
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if text == "" || text == "null" {
		return 0, errors.New("missing value")
	}
	var f float64
	if err := json.Unmarshal([]byte(text), &f); err != nil {
		return 0, fmt.Errorf("not a number: %s", text)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not a whole number: %s", text)
	}
	return int(f), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// HandcraftedJudge uses two single-shot prompts: a pairwise relevance choice for
// retrieval and a 1..5 rating for the answer.
type HandcraftedJudge struct {
	chat ports.ChatModel
}

func (j *HandcraftedJudge) ScoreRetrieval(ctx context.Context, in JudgeInput) (Verdict, error) {
	if len(in.Contexts) == 0 {
		return Verdict{Score: 0, Reason: "no documents retrieved"}, nil
	}

	var payload struct {
		Choice json.RawMessage `json:"choice"`
		Reason string          `json:"reason"`
	}
	if err := askJSON(ctx, j.chat, in.Model, buildChoicePrompt(in.Query, in.Contexts[0], in.ExpectedAbstract), "judge retrieval", &payload); err != nil {
		return Verdict{}, err
	}
	choice, err := wholeNumber(payload.Choice)
	if err != nil {
		return Verdict{}, domain.WrapError(domain.ErrEvaluationJudge, "judge retrieval", err)
	}
	switch choice {
	case 1:
		return Verdict{Score: 1, Reason: payload.Reason}, nil
	case 2:
		return Verdict{Score: 0, Reason: payload.Reason}, nil
	default:
		return Verdict{}, domain.WrapError(domain.ErrEvaluationJudge, "judge retrieval", fmt.Errorf("choice %d out of range", choice))
	}
}

func (j *HandcraftedJudge) ScoreGeneration(ctx context.Context, in JudgeInput) (Verdict, error) {
	var payload struct {
		Score  json.RawMessage `json:"score"`
		Reason string          `json:"reason"`
	}
	if err := askJSON(ctx, j.chat, in.Model, buildRatingPrompt(in.Query, in.Answer), "judge generation", &payload); err != nil {
		return Verdict{}, err
	}
	score, err := wholeNumber(payload.Score)
	if err != nil {
		return Verdict{}, domain.WrapError(domain.ErrEvaluationJudge, "judge generation", err)
	}
	rescaled, err := Rescale(score)
	if err != nil {
		return Verdict{}, domain.WrapError(domain.ErrEvaluationJudge, "judge generation", err)
	}
	return Verdict{Score: rescaled, Reason: payload.Reason}, nil
}

// Rescale maps a 1..5 rating onto [0,1] as (score-1)/4.
func Rescale(score int) (float64, error) {
	if score < 1 || score > 5 {
		return 0, fmt.Errorf("score %d out of range 1..5", score)
	}
	return float64(score-1) / 4, nil
}

func buildChoicePrompt(query, retrieved, expected string) string {
	return fmt.Sprintf(`You are judging search results for a medical literature question.
Which abstract is more relevant to the question?
If both are equally relevant, choose 1.
Return a strict JSON object {"choice": 1 or 2, "reason": "one sentence"}.

Question:
%s

Abstract n°1:
%s

Abstract n°2:
%s
`, query, retrieved, expected)
}

func buildRatingPrompt(query, answer string) string {
	return fmt.Sprintf(`You are grading an answer to a medical literature question.
Rate how well the answer addresses the question on a scale from 1 (useless) to 5 (complete and correct).
Return a strict JSON object {"score": integer from 1 to 5, "reason": "one sentence"}.

Question:
%s

Answer:
%s
`, query, answer)
}
