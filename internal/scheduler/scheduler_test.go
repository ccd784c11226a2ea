package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/config"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/errorkit"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/logging"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/store"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/store/sqlite"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

// fakeTimers captures scheduled wakeups so tests control when retry
// delays elapse.
type fakeTimers struct {
	delays []time.Duration
	funcs  []func()
}

func (f *fakeTimers) afterFunc(d time.Duration, fn func()) *time.Timer {
	f.delays = append(f.delays, d)
	f.funcs = append(f.funcs, fn)
	return time.NewTimer(time.Hour)
}

func (f *fakeTimers) fire(t *testing.T, i int) {
	t.Helper()
	require.Less(t, i, len(f.funcs), "no wakeup %d scheduled", i)
	f.funcs[i]()
}

func newTestScheduler(t *testing.T) (*Scheduler, store.Store, *fakeTimers, int64) {
	t.Helper()
	require.NoError(t, config.Initialize(""))
	config.Set(config.KeySchedulerRetryJitter, 0.0)

	s, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	p := &types.Project{Name: "test", Status: types.ProjectActive}
	require.NoError(t, s.CreateProject(context.Background(), p))

	sched := New(s, nil, logging.Discard())
	t.Cleanup(sched.Stop)
	ft := &fakeTimers{}
	sched.afterFunc = ft.afterFunc
	return sched, s, ft, p.ID
}

func newTask(projectID int64, title string) *types.WorkItem {
	return &types.WorkItem{
		ProjectID:   projectID,
		Type:        types.TypeTask,
		Title:       title,
		Priority:    5,
		Status:      types.StatusPending,
		MaxAttempts: 3,
	}
}

func mustStatus(t *testing.T, s store.Store, id int64, want types.WorkItemStatus) {
	t.Helper()
	w, err := s.GetWorkItem(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, want, w.Status)
}

func TestLinearChainCompletesInOrder(t *testing.T) {
	sched, s, _, projectID := newTestScheduler(t)
	ctx := context.Background()

	a, err := sched.Schedule(ctx, newTask(projectID, "A"))
	require.NoError(t, err)
	bSpec := newTask(projectID, "B")
	bSpec.Metadata = types.Metadata{"dependencies": []int64{a.ID}}
	b, err := sched.Schedule(ctx, bSpec)
	require.NoError(t, err)
	cSpec := newTask(projectID, "C")
	cSpec.Metadata = types.Metadata{"dependencies": []int64{b.ID}}
	c, err := sched.Schedule(ctx, cSpec)
	require.NoError(t, err)

	next, err := sched.Next(ctx, projectID)
	require.NoError(t, err)
	require.Equal(t, a.ID, next.ID)
	mustStatus(t, s, b.ID, types.StatusPending)
	require.NoError(t, sched.Complete(ctx, a.ID, ""))
	mustStatus(t, s, b.ID, types.StatusReady)

	next, err = sched.Next(ctx, projectID)
	require.NoError(t, err)
	require.Equal(t, b.ID, next.ID)
	mustStatus(t, s, c.ID, types.StatusPending)
	require.NoError(t, sched.Complete(ctx, b.ID, ""))

	next, err = sched.Next(ctx, projectID)
	require.NoError(t, err)
	require.Equal(t, c.ID, next.ID)
	require.NoError(t, sched.Complete(ctx, c.ID, ""))

	next, err = sched.Next(ctx, projectID)
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestCycleIsDiagnosed(t *testing.T) {
	sched, s, _, projectID := newTestScheduler(t)
	ctx := context.Background()

	a, _ := sched.Schedule(ctx, newTask(projectID, "A"))
	b, _ := sched.Schedule(ctx, newTask(projectID, "B"))
	c, _ := sched.Schedule(ctx, newTask(projectID, "C"))

	// Close the cycle through the store directly; AddDependency would
	// reject it.
	require.NoError(t, s.AddDependency(ctx, &types.DependencyEdge{ProjectID: projectID, DependentID: a.ID, DependsOnID: b.ID}))
	require.NoError(t, s.AddDependency(ctx, &types.DependencyEdge{ProjectID: projectID, DependentID: b.ID, DependsOnID: c.ID}))
	require.NoError(t, s.AddDependency(ctx, &types.DependencyEdge{ProjectID: projectID, DependentID: c.ID, DependsOnID: a.ID}))

	_, err := sched.Next(ctx, projectID)
	require.Error(t, err)
	require.True(t, errorkit.IsDeadlock(err))

	// No task transitioned to running.
	for _, id := range []int64{a.ID, b.ID, c.ID} {
		w, err := s.GetWorkItem(ctx, id)
		require.NoError(t, err)
		require.NotEqual(t, types.StatusRunning, w.Status)
	}

	cycle, err := sched.DetectDeadlock(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, cycle, 3)
}

func TestAddDependencyRejectsCycle(t *testing.T) {
	sched, _, _, projectID := newTestScheduler(t)
	ctx := context.Background()

	a, _ := sched.Schedule(ctx, newTask(projectID, "A"))
	b, _ := sched.Schedule(ctx, newTask(projectID, "B"))

	require.NoError(t, sched.AddDependency(ctx, projectID, b.ID, a.ID))
	err := sched.AddDependency(ctx, projectID, a.ID, b.ID)
	require.True(t, errorkit.IsDeadlock(err))
}

func TestRetryWithBackoff(t *testing.T) {
	sched, s, ft, projectID := newTestScheduler(t)
	ctx := context.Background()

	task, err := sched.Schedule(ctx, newTask(projectID, "flaky"))
	require.NoError(t, err)

	// Attempt 1: fail transiently.
	next, err := sched.Next(ctx, projectID)
	require.NoError(t, err)
	require.Equal(t, task.ID, next.ID)
	require.NoError(t, sched.Fail(ctx, task.ID, errorkit.KindUnavailable, "agent down"))
	mustStatus(t, s, task.ID, types.StatusRetrying)
	require.Equal(t, 60*time.Second, ft.delays[0])

	ft.fire(t, 0)
	mustStatus(t, s, task.ID, types.StatusReady)

	// Attempt 2: fail again, delay doubles.
	next, err = sched.Next(ctx, projectID)
	require.NoError(t, err)
	require.Equal(t, task.ID, next.ID)
	require.NoError(t, sched.Fail(ctx, task.ID, errorkit.KindUnavailable, "agent down"))
	require.Equal(t, 120*time.Second, ft.delays[1])
	ft.fire(t, 1)

	// Attempt 3 completes.
	next, err = sched.Next(ctx, projectID)
	require.NoError(t, err)
	require.Equal(t, task.ID, next.ID)
	require.NoError(t, sched.Complete(ctx, task.ID, "done"))
	mustStatus(t, s, task.ID, types.StatusCompleted)

	recs, err := s.ListRetryRecords(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	w, err := s.GetWorkItem(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, 2, w.Attempts)
}

func TestRetryBudgetExhaustionFails(t *testing.T) {
	sched, s, ft, projectID := newTestScheduler(t)
	ctx := context.Background()

	task, _ := sched.Schedule(ctx, newTask(projectID, "doomed"))
	for i := 0; i < 2; i++ {
		next, err := sched.Next(ctx, projectID)
		require.NoError(t, err)
		require.NotNil(t, next)
		require.NoError(t, sched.Fail(ctx, task.ID, errorkit.KindTimeout, "timeout"))
		ft.fire(t, i)
	}
	// Third failure spends the budget: max_attempts=3, two retries used.
	_, err := sched.Next(ctx, projectID)
	require.NoError(t, err)
	require.NoError(t, sched.Fail(ctx, task.ID, errorkit.KindTimeout, "timeout"))
	mustStatus(t, s, task.ID, types.StatusFailed)
}

func TestNonRetryableKindIsTerminal(t *testing.T) {
	sched, s, ft, projectID := newTestScheduler(t)
	ctx := context.Background()

	task, _ := sched.Schedule(ctx, newTask(projectID, "invalid"))
	_, err := sched.Next(ctx, projectID)
	require.NoError(t, err)
	require.NoError(t, sched.Fail(ctx, task.ID, errorkit.KindValidation, "bad input"))
	mustStatus(t, s, task.ID, types.StatusFailed)
	require.Empty(t, ft.funcs)
}

func TestScheduleIsIdempotent(t *testing.T) {
	sched, _, _, projectID := newTestScheduler(t)
	ctx := context.Background()

	first, err := sched.Schedule(ctx, newTask(projectID, "same"))
	require.NoError(t, err)
	second, err := sched.Schedule(ctx, newTask(projectID, "same"))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestCompleteIsIdempotent(t *testing.T) {
	sched, _, _, projectID := newTestScheduler(t)
	ctx := context.Background()

	task, _ := sched.Schedule(ctx, newTask(projectID, "once"))
	_, err := sched.Next(ctx, projectID)
	require.NoError(t, err)
	require.NoError(t, sched.Complete(ctx, task.ID, "done"))
	require.NoError(t, sched.Complete(ctx, task.ID, "done again"))
}

func TestIllegalTransitionsRejected(t *testing.T) {
	sched, s, _, projectID := newTestScheduler(t)
	ctx := context.Background()

	task, _ := sched.Schedule(ctx, newTask(projectID, "pending"))
	// ready -> completed skips running.
	err := sched.Complete(ctx, task.ID, "")
	require.Equal(t, errorkit.KindStateError, errorkit.KindOf(err))

	// Terminal stability: cancelled stays cancelled.
	require.NoError(t, sched.Cancel(ctx, task.ID, "user cancelled"))
	mustStatus(t, s, task.ID, types.StatusCancelled)
	err = sched.Cancel(ctx, task.ID, "again")
	require.Equal(t, errorkit.KindStateError, errorkit.KindOf(err))
}

func TestBlockedTaskIsNotDispatched(t *testing.T) {
	sched, s, _, projectID := newTestScheduler(t)
	ctx := context.Background()

	task, _ := sched.Schedule(ctx, newTask(projectID, "reviewed"))
	_, err := sched.Next(ctx, projectID)
	require.NoError(t, err)

	require.NoError(t, sched.Block(ctx, task.ID, "needs human review"))
	mustStatus(t, s, task.ID, types.StatusBlocked)

	next, err := sched.Next(ctx, projectID)
	require.NoError(t, err)
	require.Nil(t, next)

	require.NoError(t, sched.Unblock(ctx, task.ID, "approved"))
	next, err = sched.Next(ctx, projectID)
	require.NoError(t, err)
	require.Equal(t, task.ID, next.ID)
}

func TestNextPrefersEffectivePriority(t *testing.T) {
	sched, _, _, projectID := newTestScheduler(t)
	ctx := context.Background()

	low := newTask(projectID, "low")
	low.Priority = 3
	lowItem, err := sched.Schedule(ctx, low)
	require.NoError(t, err)

	urgent := newTask(projectID, "urgent")
	urgent.Priority = 3
	urgent.Metadata = types.Metadata{"deadline": time.Now().UTC().Add(2 * time.Hour).Format(time.RFC3339)}
	urgentItem, err := sched.Schedule(ctx, urgent)
	require.NoError(t, err)
	// Same base priority but the deadline boost (+2) wins despite the
	// later created_at.
	require.Greater(t, urgentItem.ID, lowItem.ID)

	next, err := sched.Next(ctx, projectID)
	require.NoError(t, err)
	require.Equal(t, urgentItem.ID, next.ID)
}

func TestEffectivePriorityClamps(t *testing.T) {
	now := time.Now().UTC()
	w := &types.WorkItem{Priority: 10, Attempts: 1, Metadata: types.Metadata{
		"deadline": now.Add(time.Hour).Format(time.RFC3339),
	}}
	require.Equal(t, 10, effectivePriority(w, 10, now, nil))

	w2 := &types.WorkItem{Priority: 1}
	require.Equal(t, 1, effectivePriority(w2, 0, now, nil))

	// Negative operator boosts clamp at the floor too.
	extras := []extraBoost{{condition: "task", amount: -5}}
	require.Equal(t, 1, effectivePriority(&types.WorkItem{Type: types.TypeTask, Priority: 3}, 0, now, extras))
}

func TestExtraBoostsFromConfig(t *testing.T) {
	_, s, _, projectID := newTestScheduler(t)
	ctx := context.Background()

	config.Set(config.KeySchedulerPriorityExtraBoosts, []map[string]interface{}{
		{"condition": "debugging", "amount": 3},
	})
	sched := New(s, nil, logging.Discard())
	t.Cleanup(sched.Stop)

	plain := newTask(projectID, "plain")
	plain.Priority = 5
	plainItem, err := sched.Schedule(ctx, plain)
	require.NoError(t, err)

	boosted := newTask(projectID, "boosted")
	boosted.Priority = 5
	boosted.TaskType = types.TaskDebugging
	boostedItem, err := sched.Schedule(ctx, boosted)
	require.NoError(t, err)
	require.Greater(t, boostedItem.ID, plainItem.ID)

	// Same base priority; the operator rule wins over FIFO order.
	next, err := sched.Next(ctx, projectID)
	require.NoError(t, err)
	require.Equal(t, boostedItem.ID, next.ID)
}

func TestParseExtraBoostsSkipsMalformed(t *testing.T) {
	parsed := parseExtraBoosts([]map[string]interface{}{
		{"condition": "epic", "amount": 2},
		{"condition": "", "amount": 4},
		{"condition": "story"},
		{"amount": float64(1), "condition": "subtask"},
	})
	require.Len(t, parsed, 2)
	require.Equal(t, extraBoost{condition: "epic", amount: 2}, parsed[0])
	require.Equal(t, extraBoost{condition: "subtask", amount: 1}, parsed[1])
}

func TestScheduleAppliesConfigMaxAttempts(t *testing.T) {
	_, s, _, projectID := newTestScheduler(t)
	ctx := context.Background()

	config.Set(config.KeySchedulerRetryMaxAttempts, 5)
	sched := New(s, nil, logging.Discard())
	t.Cleanup(sched.Stop)

	w := newTask(projectID, "defaulted")
	w.MaxAttempts = 0
	item, err := sched.Schedule(ctx, w)
	require.NoError(t, err)
	require.Equal(t, 5, item.MaxAttempts)

	// An explicit per-item budget wins over the config fallback.
	explicit := newTask(projectID, "explicit")
	explicit.MaxAttempts = 2
	item, err = sched.Schedule(ctx, explicit)
	require.NoError(t, err)
	require.Equal(t, 2, item.MaxAttempts)
}

func TestScheduleConsumesMetadataDependencies(t *testing.T) {
	sched, s, _, projectID := newTestScheduler(t)
	ctx := context.Background()

	a, err := sched.Schedule(ctx, newTask(projectID, "A"))
	require.NoError(t, err)

	b := newTask(projectID, "B")
	b.Metadata = types.Metadata{"dependencies": []int64{a.ID}, "note": "keep me"}
	bItem, err := sched.Schedule(ctx, b)
	require.NoError(t, err)

	// The key became an edge row and was stripped from metadata.
	require.Equal(t, types.StatusPending, bItem.Status)
	require.NotContains(t, bItem.Metadata, "dependencies")
	require.Equal(t, "keep me", bItem.Metadata["note"])
	deps, err := s.ListDependencies(ctx, bItem.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{a.ID}, deps)

	next, err := sched.Next(ctx, projectID)
	require.NoError(t, err)
	require.Equal(t, a.ID, next.ID)
	require.NoError(t, sched.Complete(ctx, a.ID, ""))
	mustStatus(t, s, bItem.ID, types.StatusReady)
}

func TestBackoffDelayNeverBelowBase(t *testing.T) {
	sched, _, _, _ := newTestScheduler(t)
	sched.policy.Jitter = 0.99
	for i := 0; i < 50; i++ {
		require.GreaterOrEqual(t, sched.backoffDelay(1), sched.policy.BaseDelay)
	}
}
