package execution

import (
	"strings"
	"testing"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/config"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

func workItem(t types.WorkItemType, tt types.TaskType) *types.WorkItem {
	return &types.WorkItem{Type: t, TaskType: tt, Title: "t"}
}

func TestMaxTurnsStructuralBudgets(t *testing.T) {
	_ = config.Initialize("")
	tests := []struct {
		itemType types.WorkItemType
		taskType types.TaskType
		want     int
	}{
		// Structural budget beats the fine task_type budget for
		// epics, stories, and subtasks.
		{types.TypeStory, types.TaskCodeGeneration, 50},
		{types.TypeEpic, types.TaskPlanning, 100},
		{types.TypeSubtask, "", 20},
		// Plain tasks use the task_type budget.
		{types.TypeTask, types.TaskValidation, 5},
		{types.TypeTask, types.TaskCodeGeneration, 12},
		{types.TypeTask, types.TaskDebugging, 20},
		{types.TypeTask, types.TaskDocumentation, 3},
		// Plain task with no label gets the task structural default.
		{types.TypeTask, "", 30},
	}
	for _, tt := range tests {
		got := MaxTurns(workItem(tt.itemType, tt.taskType))
		if got != tt.want {
			t.Errorf("MaxTurns(%s/%s) = %d, want %d", tt.itemType, tt.taskType, got, tt.want)
		}
	}
}

func TestMaxTurnsConfigOverrideWins(t *testing.T) {
	_ = config.Initialize("")
	config.Set(config.KeyExecutionMaxTurnsByWorkItemType, map[string]int{"story": 7})
	defer func() { _ = config.Initialize("") }()

	if got := MaxTurns(workItem(types.TypeStory, types.TaskCodeGeneration)); got != 7 {
		t.Fatalf("expected configured override 7, got %d", got)
	}
}

func TestMaxTurnsClamps(t *testing.T) {
	_ = config.Initialize("")
	config.Set(config.KeyExecutionMaxTurnsByWorkItemType, map[string]int{"story": 1000, "epic": 1})
	defer func() { _ = config.Initialize("") }()

	if got := MaxTurns(workItem(types.TypeStory, "")); got != 150 {
		t.Fatalf("expected clamp to 150, got %d", got)
	}
	if got := MaxTurns(workItem(types.TypeEpic, "")); got != 3 {
		t.Fatalf("expected clamp to 3, got %d", got)
	}
}

func TestRetryMaxTurnsMultiplies(t *testing.T) {
	_ = config.Initialize("")
	if got := RetryMaxTurns(12); got != 36 {
		t.Fatalf("expected 36, got %d", got)
	}
	// Re-clamped at the ceiling.
	if got := RetryMaxTurns(100); got != 150 {
		t.Fatalf("expected 150, got %d", got)
	}
}

func TestAdaptiveEstimate(t *testing.T) {
	w := workItem(types.TypeTask, "")
	w.Description = "refactor the database layer across internal/store/store.go and internal/scheduler/scheduler.go"
	est, ok := adaptiveEstimate(w)
	if !ok || est <= 10 {
		t.Fatalf("expected complexity signals to produce an estimate, got %d %v", est, ok)
	}

	simple := workItem(types.TypeTask, "")
	simple.Description = "tweak a constant"
	if _, ok := adaptiveEstimate(simple); ok {
		t.Fatal("expected no estimate without signals")
	}
	if !strings.Contains(w.Description, "refactor") {
		t.Fatal("test fixture lost its keyword")
	}
}
