package evaluation

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/core/ports"
)

// MetricJudge implements contextual relevancy and faithfulness as multi-step
// LLM-judged metrics.
type MetricJudge struct {
	chat ports.ChatModel
}

type statementVerdict struct {
	Statement string `json:"statement"`
	Verdict   string `json:"verdict"`
	Reason    string `json:"reason"`
}

// ScoreRetrieval is contextual relevancy: the share of statements across all
// retrieved contexts that are relevant to the query.
func (j *MetricJudge) ScoreRetrieval(ctx context.Context, in JudgeInput) (Verdict, error) {
	const op = "judge contextual relevancy"

	relevant, total := 0, 0
	irrelevant := make([]string, 0)
	for _, c := range in.Contexts {
		var payload struct {
			Verdicts []statementVerdict `json:"verdicts"`
		}
		if err := askJSON(ctx, j.chat, in.Model, buildRelevancyPrompt(in.Query, c), op, &payload); err != nil {
			return Verdict{}, err
		}
		for _, v := range payload.Verdicts {
			switch normalizeVerdict(v.Verdict) {
			case "yes":
				relevant++
			case "no":
				if v.Reason != "" {
					irrelevant = append(irrelevant, v.Reason)
				}
			default:
				return Verdict{}, domain.WrapError(domain.ErrEvaluationJudge, op, fmt.Errorf("unknown verdict %q", v.Verdict))
			}
			total++
		}
	}

	score := 0.0
	if total > 0 {
		score = float64(relevant) / float64(total)
	}
	reason, err := j.reason(ctx, in.Model, op, fmt.Sprintf(
		"The contextual relevancy score is %.2f (%d of %d statements relevant).\nQuestion: %s\nReasons for irrelevant statements:\n%s",
		score, relevant, total, in.Query, bulletList(irrelevant)))
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{Score: score, Reason: reason}, nil
}

// ScoreGeneration is faithfulness: the share of answer claims not contradicted
// by truths extracted from the context.
func (j *MetricJudge) ScoreGeneration(ctx context.Context, in JudgeInput) (Verdict, error) {
	const op = "judge faithfulness"

	var claims struct {
		Claims []string `json:"claims"`
	}
	if err := askJSON(ctx, j.chat, in.Model, buildClaimsPrompt(in.Answer), op, &claims); err != nil {
		return Verdict{}, err
	}
	if len(claims.Claims) == 0 {
		return Verdict{Score: 1, Reason: "the answer makes no factual claims"}, nil
	}

	var truths struct {
		Truths []string `json:"truths"`
	}
	if err := askJSON(ctx, j.chat, in.Model, buildTruthsPrompt(strings.Join(in.Contexts, "\n\n")), op, &truths); err != nil {
		return Verdict{}, err
	}

	var verdicts struct {
		Verdicts []statementVerdict `json:"verdicts"`
	}
	if err := askJSON(ctx, j.chat, in.Model, buildFaithfulnessPrompt(truths.Truths, claims.Claims), op, &verdicts); err != nil {
		return Verdict{}, err
	}
	if len(verdicts.Verdicts) != len(claims.Claims) {
		return Verdict{}, domain.WrapError(domain.ErrEvaluationJudge, op,
			fmt.Errorf("got %d verdicts for %d claims", len(verdicts.Verdicts), len(claims.Claims)))
	}

	supported := 0
	contradictions := make([]string, 0)
	for _, v := range verdicts.Verdicts {
		switch normalizeVerdict(v.Verdict) {
		case "yes", "idk":
			supported++
		case "no":
			if v.Reason != "" {
				contradictions = append(contradictions, v.Reason)
			}
		default:
			return Verdict{}, domain.WrapError(domain.ErrEvaluationJudge, op, fmt.Errorf("unknown verdict %q", v.Verdict))
		}
	}

	score := float64(supported) / float64(len(claims.Claims))
	reason, err := j.reason(ctx, in.Model, op, fmt.Sprintf(
		"The faithfulness score is %.2f.\nContradictions:\n%s",
		score, bulletList(contradictions)))
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{Score: score, Reason: reason}, nil
}

func (j *MetricJudge) reason(ctx context.Context, model, op, facts string) (string, error) {
	var payload struct {
		Reason string `json:"reason"`
	}
	prompt := "Summarize in one or two sentences why the score below was given.\n" +
		`Return a strict JSON object {"reason": "..."}.` + "\n\n" + facts
	if err := askJSON(ctx, j.chat, model, prompt, op, &payload); err != nil {
		return "", err
	}
	return strings.TrimSpace(payload.Reason), nil
}

func normalizeVerdict(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return "- " + strings.Join(items, "\n- ")
}

func buildRelevancyPrompt(query, contextText string) string {
	return fmt.Sprintf(`Break the context into individual statements and decide for each whether it is relevant to the question.
Return a strict JSON object {"verdicts": [{"statement": "...", "verdict": "yes" or "no", "reason": "why, only when no"}]}.

Question:
%s

Context:
%s
`, query, contextText)
}

func buildClaimsPrompt(answer string) string {
	return fmt.Sprintf(`Extract every factual claim made in the text below.
Return a strict JSON object {"claims": ["..."]}.

Text:
%s
`, answer)
}

func buildTruthsPrompt(contextText string) string {
	return fmt.Sprintf(`Extract the factual statements that can be taken as true from the context below.
Return a strict JSON object {"truths": ["..."]}.

Context:
%s
`, contextText)
}

func buildFaithfulnessPrompt(truths, claims []string) string {
	return fmt.Sprintf(`For each claim, decide whether it agrees with the truths.
Answer "yes" if it agrees, "no" if it contradicts them, and "idk" if the truths say nothing about it.
Return a strict JSON object {"verdicts": [{"verdict": "yes", "no" or "idk", "reason": "why, only when no"}]} with exactly one verdict per claim, in order.

Truths:
%s

Claims:
%s
`, bulletList(truths), bulletList(claims))
}
