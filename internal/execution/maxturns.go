package execution

import (
	"strings"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/config"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

// Calibrated structural budgets by work-item type. Plain tasks are
// deliberately absent: they fall through to the finer task_type
// budgets below, then to taskStructuralDefault, so a task labeled
// documentation gets 3 turns rather than a generic 30.
var builtinByWorkItemType = map[types.WorkItemType]int{
	types.TypeEpic:    100,
	types.TypeStory:   50,
	types.TypeSubtask: 20,
}

// taskStructuralDefault is the budget for a plain task carrying no
// task_type label.
const taskStructuralDefault = 30

var builtinByTaskType = map[types.TaskType]int{
	types.TaskValidation:     5,
	types.TaskCodeGeneration: 12,
	types.TaskRefactoring:    15,
	types.TaskDebugging:      20,
	types.TaskErrorAnalysis:  8,
	types.TaskPlanning:       5,
	types.TaskDocumentation:  3,
	types.TaskTesting:        8,
}

// complexityKeywords each add one signal to the adaptive estimate.
var complexityKeywords = []string{
	"refactor", "migrate", "rewrite", "architecture", "concurrent",
	"distributed", "protocol", "database", "integration", "end-to-end",
}

// MaxTurns determines the adaptive turn budget for one task execution,
// applying the overrides in priority order — first match wins — and
// clamping to the configured [min, max].
func MaxTurns(w *types.WorkItem) int {
	cfg := config.GetMaxTurnsConfig()

	if v, ok := cfg.ByWorkItemType[string(w.Type)]; ok && v > 0 {
		return clampTurns(v, cfg)
	}
	if w.TaskType != "" {
		if v, ok := cfg.ByTaskType[string(w.TaskType)]; ok && v > 0 {
			return clampTurns(v, cfg)
		}
	}
	if v, ok := builtinByWorkItemType[w.Type]; ok {
		return clampTurns(v, cfg)
	}
	if v, ok := builtinByTaskType[w.TaskType]; ok {
		return clampTurns(v, cfg)
	}
	if w.Type == types.TypeTask {
		return clampTurns(taskStructuralDefault, cfg)
	}
	if est, ok := adaptiveEstimate(w); ok {
		return clampTurns(est, cfg)
	}
	return clampTurns(cfg.Default, cfg)
}

// RetryMaxTurns is the enlarged budget applied when a task is retried
// after turn exhaustion: the prior limit times the configured
// multiplier, re-clamped.
func RetryMaxTurns(prior int) int {
	cfg := config.GetMaxTurnsConfig()
	return clampTurns(int(float64(prior)*cfg.RetryMultiplier), cfg)
}

// adaptiveEstimate derives a budget from heuristic complexity signals:
// complexity keywords, referenced file count, and description scope.
func adaptiveEstimate(w *types.WorkItem) (int, bool) {
	text := strings.ToLower(w.Title + " " + w.Description)
	signals := 0
	for _, kw := range complexityKeywords {
		if strings.Contains(text, kw) {
			signals++
		}
	}
	// Rough file-count signal: each path-looking token suggests scope.
	for _, token := range strings.Fields(text) {
		if strings.ContainsRune(token, '/') || strings.Contains(token, ".go") {
			signals++
		}
	}
	if len(w.Description) > 1000 {
		signals += 2
	}
	if signals == 0 {
		return 0, false
	}
	return 10 + 5*signals, true
}

func clampTurns(v int, cfg config.MaxTurnsConfig) int {
	if v < cfg.Min {
		return cfg.Min
	}
	if v > cfg.Max {
		return cfg.Max
	}
	return v
}
