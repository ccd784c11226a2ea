package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/errorkit"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/logging"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/store"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestProject(t *testing.T, s *Store) *types.Project {
	t.Helper()
	p := &types.Project{Name: "proj", Status: types.ProjectActive}
	require.NoError(t, s.CreateProject(context.Background(), p))
	return p
}

func TestProjectRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &types.Project{Name: "orchestrator", Description: "d", WorkingDir: "/tmp/w", Status: types.ProjectActive}
	require.NoError(t, s.CreateProject(ctx, p))
	require.NotZero(t, p.ID)

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.Name, got.Name)
	require.Equal(t, p.WorkingDir, got.WorkingDir)
	require.Equal(t, types.ProjectActive, got.Status)
	require.False(t, got.CreatedAt.IsZero())
}

func TestWorkItemRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := newTestProject(t, s)

	w := &types.WorkItem{
		ProjectID:   p.ID,
		Type:        types.TypeTask,
		Title:       "build the parser",
		Priority:    7,
		Status:      types.StatusPending,
		TaskType:    types.TaskCodeGeneration,
		MaxAttempts: 3,
		Metadata:    types.Metadata{"deadline": "2026-09-01T00:00:00Z"},
		RequiresADR: true,
	}
	require.NoError(t, s.CreateWorkItem(ctx, w))

	got, err := s.GetWorkItem(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, w.Title, got.Title)
	require.Equal(t, types.TaskCodeGeneration, got.TaskType)
	require.Equal(t, 7, got.Priority)
	require.True(t, got.RequiresADR)
	require.NotEmpty(t, got.IdempotencyKey)
	deadline, ok := got.Metadata.Deadline()
	require.True(t, ok)
	require.Equal(t, 2026, deadline.Year())
}

func TestGetWorkItemNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetWorkItem(context.Background(), 9999)
	require.True(t, errorkit.IsNotFound(err))
}

func TestIdempotencyKeyConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := newTestProject(t, s)

	w1 := &types.WorkItem{ProjectID: p.ID, Type: types.TypeTask, Title: "same", Priority: 5, Status: types.StatusPending, MaxAttempts: 3}
	require.NoError(t, s.CreateWorkItem(ctx, w1))

	w2 := &types.WorkItem{ProjectID: p.ID, Type: types.TypeTask, Title: "same", Priority: 5, Status: types.StatusPending, MaxAttempts: 3}
	err := s.CreateWorkItem(ctx, w2)
	require.True(t, errorkit.IsConflict(err))

	found, err := s.FindByIdempotencyKey(ctx, w1.IdempotencyKey)
	require.NoError(t, err)
	require.Equal(t, w1.ID, found.ID)
}

func TestTransactionRollsBackEntirely(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := newTestProject(t, s)

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(tx store.Tx) error {
		w := &types.WorkItem{ProjectID: p.ID, Type: types.TypeTask, Title: "ghost", Priority: 5, Status: types.StatusPending, MaxAttempts: 3}
		if err := tx.CreateWorkItem(ctx, w); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	items, err := s.ListWorkItems(ctx, store.WorkItemFilter{ProjectID: &p.ID})
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestSoftDeleteExcludedByDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := newTestProject(t, s)

	w := &types.WorkItem{ProjectID: p.ID, Type: types.TypeTask, Title: "gone", Priority: 5, Status: types.StatusPending, MaxAttempts: 3}
	require.NoError(t, s.CreateWorkItem(ctx, w))
	require.NoError(t, s.SoftDeleteWorkItem(ctx, w.ID))

	_, err := s.GetWorkItem(ctx, w.ID)
	require.True(t, errorkit.IsNotFound(err))

	items, err := s.ListWorkItems(ctx, store.WorkItemFilter{ProjectID: &p.ID})
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestListOrphansAfterParentDeletion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := newTestProject(t, s)

	epic := &types.WorkItem{ProjectID: p.ID, Type: types.TypeEpic, Title: "epic", Priority: 5, Status: types.StatusPending, MaxAttempts: 3}
	require.NoError(t, s.CreateWorkItem(ctx, epic))
	story := &types.WorkItem{ProjectID: p.ID, Type: types.TypeStory, Title: "story", ParentID: &epic.ID, Priority: 5, Status: types.StatusPending, MaxAttempts: 3}
	require.NoError(t, s.CreateWorkItem(ctx, story))

	// Soft-delete is non-cascading: the story survives as an orphan.
	require.NoError(t, s.SoftDeleteWorkItem(ctx, epic.ID))
	orphans, err := s.ListOrphans(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	require.Equal(t, story.ID, orphans[0].ID)
}

func TestListWorkItemsPriorityOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := newTestProject(t, s)

	for i, pr := range []int{3, 9, 5} {
		w := &types.WorkItem{ProjectID: p.ID, Type: types.TypeTask, Title: string(rune('a' + i)), Priority: pr, Status: types.StatusReady, MaxAttempts: 3}
		require.NoError(t, s.CreateWorkItem(ctx, w))
	}

	statusReady := types.StatusReady
	items, err := s.ListWorkItems(ctx, store.WorkItemFilter{ProjectID: &p.ID, Status: &statusReady, OrderByPriority: true})
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, 9, items[0].Priority)
	require.Equal(t, 5, items[1].Priority)
	require.Equal(t, 3, items[2].Priority)
}

func TestDependencyEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := newTestProject(t, s)

	a := &types.WorkItem{ProjectID: p.ID, Type: types.TypeTask, Title: "a", Priority: 5, Status: types.StatusPending, MaxAttempts: 3}
	b := &types.WorkItem{ProjectID: p.ID, Type: types.TypeTask, Title: "b", Priority: 5, Status: types.StatusPending, MaxAttempts: 3}
	require.NoError(t, s.CreateWorkItem(ctx, a))
	require.NoError(t, s.CreateWorkItem(ctx, b))

	require.NoError(t, s.AddDependency(ctx, &types.DependencyEdge{ProjectID: p.ID, DependentID: b.ID, DependsOnID: a.ID}))

	deps, err := s.ListDependencies(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{a.ID}, deps)

	dependents, err := s.ListDependents(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{b.ID}, dependents)

	edges, err := s.ListProjectEdges(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)

	require.NoError(t, s.RemoveDependency(ctx, b.ID, a.ID))
	deps, err = s.ListDependencies(ctx, b.ID)
	require.NoError(t, err)
	require.Empty(t, deps)
}

func TestMilestoneRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := newTestProject(t, s)

	m := &types.Milestone{ProjectID: p.ID, Name: "v1", Version: "1.0.0", RequiredEpicIDs: []int64{1, 2}, Status: types.MilestonePending}
	require.NoError(t, s.CreateMilestone(ctx, m))

	got, err := s.GetMilestone(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, got.RequiredEpicIDs)
	require.Equal(t, "1.0.0", got.Version)
}

func TestSessionLedgerRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := newTestProject(t, s)

	sess := &types.Session{
		ID:                 "sess-1",
		ProjectID:          p.ID,
		Status:             types.SessionActive,
		StartedAt:          time.Now().UTC(),
		ContextWindowLimit: 200_000,
		CumulativeTokens:   types.TokenBreakdown{Input: 100, CacheRead: 50, CacheCreation: 25, Output: 75},
	}
	require.NoError(t, s.CreateSession(ctx, sess))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, int64(250), got.CumulativeTokens.Total())
	require.Equal(t, int64(200_000), got.ContextWindowLimit)

	require.NoError(t, s.UpdateSession(ctx, "sess-1", map[string]any{
		"status":  string(types.SessionRefreshed),
		"summary": "carried forward",
	}))
	got, err = s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, types.SessionRefreshed, got.Status)
	require.Equal(t, "carried forward", got.Summary)
}

func TestIterationAndCheckpointStreams(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	it := &types.Iteration{TaskID: 1, SessionID: "sess-1", Index: 1, PromptDigest: "p", StartedAt: time.Now().UTC()}
	require.NoError(t, s.CreateIteration(ctx, it))
	require.NotZero(t, it.ID)

	require.NoError(t, s.UpdateIteration(ctx, it.ID, map[string]any{"quality": 0.8, "decision": "complete"}))
	iters, err := s.ListIterations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, iters, 1)
	require.InDelta(t, 0.8, iters[0].Quality, 1e-9)

	last, err := s.LastIteration(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, it.ID, last.ID)

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.AppendCheckpoint(ctx, &types.Checkpoint{SessionID: "sess-1", Index: i, Snapshot: []byte{byte(i)}}))
	}
	cps, err := s.ListCheckpoints(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, cps, 3)
	for i, cp := range cps {
		require.Equal(t, i+1, cp.Index)
	}
}

func TestBreakpointLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bp := &types.Breakpoint{TaskID: 7, Reason: "low confidence"}
	require.NoError(t, s.CreateBreakpoint(ctx, bp))

	open, err := s.UnresolvedForTask(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, open)

	require.NoError(t, s.ResolveBreakpoint(ctx, bp.ID, "reviewed", types.DispositionContinue, time.Now().UTC()))
	open, err = s.UnresolvedForTask(ctx, 7)
	require.NoError(t, err)
	require.Nil(t, open)

	got, err := s.GetBreakpoint(ctx, bp.ID)
	require.NoError(t, err)
	require.True(t, got.Resolved())
	require.Equal(t, types.DispositionContinue, got.Disposition)
}

func TestConfigKV(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetConfig(ctx, "k", "v"))
	v, err := s.GetConfig(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)

	require.NoError(t, s.SetConfig(ctx, "k", "v2"))
	v, err = s.GetConfig(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v2", v)
}
