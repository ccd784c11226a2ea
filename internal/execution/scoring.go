package execution

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/agent"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/config"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/llm"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

// Ensemble weights for confidence scoring:
// heuristic 0.4, supervising LLM 0.6.
const (
	heuristicWeight = 0.4
	llmWeight       = 0.6
)

// qualityScore is the multi-stage quality check: correctness
// heuristics and rule compliance, producing [0, 1].
// Stages accumulate; each contributes a bounded share so no single
// heuristic dominates.
func qualityScore(task *types.WorkItem, resp *agent.Response) float64 {
	text := strings.TrimSpace(resp.Text)
	score := 0.0

	// Substance: a response below a trivial length cannot have done
	// real work; full credit by 400 characters.
	substance := float64(len(text)) / 400
	if substance > 1 {
		substance = 1
	}
	score += 0.35 * substance

	// Task alignment: code-shaped tasks should produce code or files.
	switch task.TaskType {
	case types.TaskCodeGeneration, types.TaskRefactoring, types.TaskDebugging, types.TaskTesting:
		if strings.Contains(text, "```") || len(resp.Files) > 0 {
			score += 0.35
		}
	default:
		score += 0.35
	}

	// Rule compliance: hedging and refusal markers cost the remainder.
	compliance := 0.3
	for _, marker := range []string{"i cannot", "unable to proceed", "as an ai"} {
		if strings.Contains(strings.ToLower(text), marker) {
			compliance = 0
			break
		}
	}
	score += compliance

	return clamp01(score)
}

// confidenceResult carries the ensemble score and whether the LLM leg
// was degraded to the heuristic-only fallback.
type confidenceResult struct {
	Score    float64
	Degraded bool
}

// confidenceScore combines a deterministic heuristic signal with a
// supervising-LLM signal at fixed weights (0.4 heuristic, 0.6 LLM),
// which are package constants; no configuration key changes them. When the LLM is
// unavailable or returns an unparseable verdict, the heuristic carries
// full weight and the degradation is recorded on the iteration row.
func confidenceScore(ctx context.Context, supervisor llm.LLM, task *types.WorkItem, resp *agent.Response, quality float64, validationPassed bool) confidenceResult {
	h := confidenceHeuristic(resp, quality, validationPassed)

	if supervisor == nil || !supervisor.Available() {
		return confidenceResult{Score: h, Degraded: true}
	}

	llmCtx, cancel := context.WithTimeout(ctx, config.GetLLMTimeout())
	defer cancel()
	prompt := fmt.Sprintf(
		"Rate from 0.0 to 1.0 how confident you are that the following response completes the task %q. Reply with only the number.\n\nResponse:\n%s",
		task.Title, truncate(resp.Text, 4000))
	reply, err := supervisor.Generate(llmCtx, prompt, llm.Options{MaxTokens: 8})
	if err != nil {
		return confidenceResult{Score: h, Degraded: true}
	}
	llmScore, ok := parseScore(reply)
	if !ok {
		return confidenceResult{Score: h, Degraded: true}
	}
	return confidenceResult{Score: clamp01(heuristicWeight*h + llmWeight*llmScore)}
}

// confidenceHeuristic is the deterministic leg of the ensemble.
func confidenceHeuristic(resp *agent.Response, quality float64, validationPassed bool) float64 {
	score := 0.5 * quality
	if validationPassed {
		score += 0.3
	}
	if len(resp.Files) > 0 {
		score += 0.2
	}
	return clamp01(score)
}

var scoreRe = regexp.MustCompile(`(?:0?\.\d+|[01](?:\.\d+)?)`)

// parseScore extracts a 0..1 float from an LLM reply, tolerating
// surrounding prose.
func parseScore(reply string) (float64, bool) {
	match := scoreRe.FindString(strings.TrimSpace(reply))
	if match == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(match, 64)
	if err != nil || f < 0 || f > 1 {
		return 0, false
	}
	return f, true
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
