package execution

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/agent"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/breakpoint"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/config"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/errorkit"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/llm"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/logging"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/scheduler"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/session"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/store"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/store/sqlite"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

type harness struct {
	store store.Store
	sched *scheduler.Scheduler
	bps   *breakpoint.Manager
	exec  *Executor

	projectID int64
	workDir   string
}

func newHarness(t *testing.T, ag agent.Agent, supervisor llm.LLM) *harness {
	t.Helper()
	require.NoError(t, config.Initialize(""))

	s, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	workDir := t.TempDir()
	p := &types.Project{Name: "test", WorkingDir: workDir, Status: types.ProjectActive}
	require.NoError(t, s.CreateProject(context.Background(), p))

	log := logging.Discard()
	sched := scheduler.New(s, nil, log)
	t.Cleanup(sched.Stop)
	sessions := session.NewManager(s, supervisor, nil, log)
	bps := breakpoint.NewManager(s, sched, nil, log)
	exec := NewExecutor(s, sched, sessions, bps, ag, supervisor, nil, log)

	return &harness{store: s, sched: sched, bps: bps, exec: exec, projectID: p.ID, workDir: workDir}
}

// dispatchTask schedules a work item and pulls it into running.
func (h *harness) dispatchTask(t *testing.T, w *types.WorkItem) *types.WorkItem {
	t.Helper()
	ctx := context.Background()
	w.ProjectID = h.projectID
	if w.MaxAttempts == 0 {
		w.MaxAttempts = 3
	}
	scheduled, err := h.sched.Schedule(ctx, w)
	require.NoError(t, err)
	running, err := h.sched.Next(ctx, h.projectID)
	require.NoError(t, err)
	require.Equal(t, scheduled.ID, running.ID)
	return running
}

// parentEpic stores an epic directly (left pending, so Next never
// dispatches it) for stories to hang off.
func (h *harness) parentEpic(t *testing.T) *int64 {
	t.Helper()
	epic := &types.WorkItem{ProjectID: h.projectID, Type: types.TypeEpic, Title: "parent epic", Priority: 5, Status: types.StatusPending, MaxAttempts: 3}
	require.NoError(t, h.store.CreateWorkItem(context.Background(), epic))
	return &epic.ID
}

func goodResponse(t *testing.T, dir string) *agent.Response {
	t.Helper()
	files := []string{
		writeFile(t, dir, "service.go", "package svc\n\nfunc Serve() error { return nil }\n"),
		writeFile(t, dir, "service_test.go", "package svc\n\nimport \"testing\"\n\nfunc TestServe(t *testing.T) {}\n"),
	}
	return &agent.Response{
		Text: "Implemented the service entrypoint.\n\n```go\nfunc Serve() error { return nil }\n```\n\n" +
			strings.Repeat("The implementation wires the handler into the router and adds coverage. ", 6),
		Tokens: types.TokenBreakdown{Input: 500, Output: 400},
		Files:  files,
	}
}

func TestExecuteCompletesOnHighSignals(t *testing.T) {
	var h *harness
	dir := t.TempDir()
	ag := agent.NewScripted(200_000, agent.ScriptedStep{Response: goodResponse(t, dir)})
	supervisor := &llm.Static{Default: "0.95"}
	h = newHarness(t, ag, supervisor)

	task := h.dispatchTask(t, &types.WorkItem{Type: types.TypeTask, TaskType: types.TaskCodeGeneration, Title: "implement service", Priority: 5})
	// Deliverables live in the project working dir.
	for _, f := range []string{"service.go", "service_test.go"} {
		writeFile(t, h.workDir, f, "package svc\n")
	}

	result, err := h.exec.Execute(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeSuccess, result.Outcome)
	require.Equal(t, 1, result.Iterations)

	w, err := h.store.GetWorkItem(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, w.Status)
	require.NotEmpty(t, w.ChangesSummary)

	sess, err := h.store.GetSession(context.Background(), result.SessionID)
	require.NoError(t, err)
	require.Equal(t, types.SessionCompleted, sess.Status)
	require.Equal(t, int64(900), sess.CumulativeTokens.Total())

	iters, err := h.store.ListIterations(context.Background(), task.ID)
	require.NoError(t, err)
	require.Len(t, iters, 1)
	require.Equal(t, types.DecisionComplete, iters[0].Decision)
	require.Equal(t, types.ValidationPassed, iters[0].Validation)
	require.NotNil(t, iters[0].EndedAt)
}

func TestExecuteEscalatesOnLowConfidence(t *testing.T) {
	dir := t.TempDir()
	ag := agent.NewScripted(200_000, agent.ScriptedStep{Response: goodResponse(t, dir)})
	supervisor := &llm.Static{Default: "0.10"}
	h := newHarness(t, ag, supervisor)

	task := h.dispatchTask(t, &types.WorkItem{Type: types.TypeTask, TaskType: types.TaskCodeGeneration, Title: "risky change", Priority: 5})

	result, err := h.exec.Execute(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeBlocked, result.Outcome)
	require.NotNil(t, result.Breakpoint)

	ctx := context.Background()
	w, err := h.store.GetWorkItem(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusBlocked, w.Status)

	// The blocked task is never dispatched while unresolved.
	next, err := h.sched.Next(ctx, h.projectID)
	require.NoError(t, err)
	require.Nil(t, next)

	// Resolution with continue returns it to the queue.
	require.NoError(t, h.bps.Resolve(ctx, *result.Breakpoint, "looks fine", types.DispositionContinue))
	w, err = h.store.GetWorkItem(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusReady, w.Status)

	next, err = h.sched.Next(ctx, h.projectID)
	require.NoError(t, err)
	require.Equal(t, task.ID, next.ID)
}

func TestExecuteExhaustionAssessesDeliverables(t *testing.T) {
	var h *harness
	// Middling signals every turn: validation passes, confidence lands
	// between the medium and high thresholds, so the loop refines until
	// the budget is spent.
	resp := &agent.Response{
		Text:   strings.Repeat("Progress on the story, more modules remain. ", 7),
		Tokens: types.TokenBreakdown{Input: 100, Output: 100},
		Files:  []string{"gen/a.go", "gen/b.go"},
	}
	ag := agent.NewScripted(200_000, agent.ScriptedStep{Response: resp})
	supervisor := &llm.Static{Default: "0.60"}
	h = newHarness(t, ag, supervisor)
	config.Set(config.KeyExecutionMaxTurnsByWorkItemType, map[string]int{"story": 4})

	writeFile(t, h.workDir, "gen/a.go", "package gen\n\nfunc A() {}\n")
	writeFile(t, h.workDir, "gen/b.go", "package gen\n\nfunc B() {}\n")

	task := h.dispatchTask(t, &types.WorkItem{Type: types.TypeStory, ParentID: h.parentEpic(t), TaskType: types.TaskCodeGeneration, Title: "build feature", Priority: 5})
	result, err := h.exec.Execute(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeSuccessWithLimits, result.Outcome)
	require.Equal(t, 4, result.Iterations)
	require.NotNil(t, result.Assessment)
	require.GreaterOrEqual(t, result.Assessment.Quality, 0.7)

	// A turn-limit hit with acceptable deliverables completes the task.
	w, err := h.store.GetWorkItem(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, w.Status)
	require.Contains(t, w.ChangesSummary, "success_with_limits")

	require.Equal(t, 4, ag.Calls())
}

func TestExecuteExhaustionWithoutDeliverablesFails(t *testing.T) {
	resp := &agent.Response{
		Text:   strings.Repeat("Still thinking about the approach to take here. ", 7),
		Tokens: types.TokenBreakdown{Input: 100, Output: 100},
	}
	ag := agent.NewScripted(200_000, agent.ScriptedStep{Response: resp})
	supervisor := &llm.Static{Default: "0.70"}
	h := newHarness(t, ag, supervisor)
	config.Set(config.KeyExecutionMaxTurnsByWorkItemType, map[string]int{"story": 3})

	task := h.dispatchTask(t, &types.WorkItem{Type: types.TypeStory, ParentID: h.parentEpic(t), Title: "stalled work", Priority: 5})
	result, err := h.exec.Execute(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeFailed, result.Outcome)

	// BudgetExhausted is non-retryable: the task lands in failed.
	w, err := h.store.GetWorkItem(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, w.Status)
}

func TestExecuteAbsorbsTransientDispatchErrors(t *testing.T) {
	dir := t.TempDir()
	ag := agent.NewScripted(200_000,
		agent.ScriptedStep{Err: errorkit.New(errorkit.KindUnavailable, "agent warming up")},
		agent.ScriptedStep{Response: goodResponse(t, dir)},
	)
	supervisor := &llm.Static{Default: "0.95"}
	h := newHarness(t, ag, supervisor)

	task := h.dispatchTask(t, &types.WorkItem{Type: types.TypeTask, TaskType: types.TaskCodeGeneration, Title: "flaky agent", Priority: 5})
	result, err := h.exec.Execute(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeSuccess, result.Outcome)
	require.Equal(t, 2, ag.Calls())
}

func TestExecuteCancellationIsCooperative(t *testing.T) {
	dir := t.TempDir()
	ag := agent.NewScripted(200_000, agent.ScriptedStep{Response: goodResponse(t, dir)})
	h := newHarness(t, ag, llm.Unavailable{})

	task := h.dispatchTask(t, &types.WorkItem{Type: types.TypeTask, Title: "cancelled work", Priority: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.exec.Execute(ctx, task)
	require.True(t, errorkit.IsCancelled(err))

	w, err := h.store.GetWorkItem(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusCancelled, w.Status)
}

func TestExecuteUsesUniqueIdempotencyTokens(t *testing.T) {
	resp := &agent.Response{
		Text:   strings.Repeat("Progress continues across the remaining modules here. ", 7),
		Tokens: types.TokenBreakdown{Input: 50, Output: 50},
		Files:  []string{"gen/a.go"},
	}
	ag := agent.NewScripted(200_000, agent.ScriptedStep{Response: resp})
	supervisor := &llm.Static{Default: "0.70"}
	h := newHarness(t, ag, supervisor)
	config.Set(config.KeyExecutionMaxTurnsByWorkItemType, map[string]int{"story": 3})
	writeFile(t, h.workDir, "gen/a.go", "package gen\n")

	task := h.dispatchTask(t, &types.WorkItem{Type: types.TypeStory, ParentID: h.parentEpic(t), Title: "token check", Priority: 5})
	_, err := h.exec.Execute(context.Background(), task)
	require.NoError(t, err)

	reqs := ag.Requests()
	require.Len(t, reqs, 3)
	seen := map[string]bool{}
	for _, r := range reqs {
		require.NotEmpty(t, r.IdempotencyToken)
		require.False(t, seen[r.IdempotencyToken], "idempotency token reused")
		seen[r.IdempotencyToken] = true
	}
}

func TestExecuteRefusesConcurrentExecution(t *testing.T) {
	dir := t.TempDir()
	ag := agent.NewScripted(200_000, agent.ScriptedStep{Response: goodResponse(t, dir)})
	h := newHarness(t, ag, llm.Unavailable{})

	task := h.dispatchTask(t, &types.WorkItem{Type: types.TypeTask, Title: "already executing", Priority: 5})

	// An open iteration row means another execution is in flight.
	open := &types.Iteration{TaskID: task.ID, SessionID: "other-session", Index: 1}
	require.NoError(t, h.store.CreateIteration(context.Background(), open))

	_, err := h.exec.Execute(context.Background(), task)
	require.Equal(t, errorkit.KindStateError, errorkit.KindOf(err))
	require.Zero(t, ag.Calls())
}

func TestExecuteRequiresRunningTask(t *testing.T) {
	ag := agent.NewScripted(0)
	h := newHarness(t, ag, llm.Unavailable{})
	w := &types.WorkItem{ProjectID: h.projectID, Type: types.TypeTask, Title: "not running", Status: types.StatusPending}
	_, err := h.exec.Execute(context.Background(), w)
	require.Equal(t, errorkit.KindStateError, errorkit.KindOf(err))
}
