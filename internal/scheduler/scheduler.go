// Package scheduler orchestrates the work-item state machine and
// exposes the pull-based queue: schedule, next,
// complete, fail, retry, cancel, and deadlock detection. It is the
// only component that mutates work-item status; the
// breakpoint manager routes its transitions through the narrow
// StateTransitioner surface this package implements.
package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/config"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/depgraph"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/errorkit"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/eventbus"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/metrics"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/store"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

// Scheduler drives the state machine. One process-wide mutex guards
// scheduler metadata (retry timers, the derived ready evaluation);
// per-record serialization is the store's job.
type Scheduler struct {
	store       store.Store
	bus         *eventbus.Bus
	log         *slog.Logger
	policy      config.RetryPolicy
	extraBoosts []extraBoost

	mu     sync.Mutex
	timers map[int64]*time.Timer

	// Seams for tests: clock, timer factory, and jitter source.
	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer
	rng       *rand.Rand
}

// New wires a Scheduler. bus may be nil; retry policy is read from
// configuration at construction time.
func New(s store.Store, bus *eventbus.Bus, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		store:       s,
		bus:         bus,
		log:         log,
		policy:      config.GetRetryPolicy(),
		extraBoosts: parseExtraBoosts(config.GetPriorityExtraBoosts()),
		timers:      make(map[int64]*time.Timer),
		now:         func() time.Time { return time.Now().UTC() },
		afterFunc:   time.AfterFunc,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Stop cancels every pending retry wakeup. Tasks left in retrying are
// promoted on the next process start by ResumeRetries.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// Schedule registers a work item with the scheduler: persists it as
// pending (idempotently, by idempotency key) and immediately promotes
// it to ready if its dependencies are already satisfied. A
// `dependencies` metadata key is consumed here: each listed id becomes
// an edge row, and the key is stripped before the item persists, so
// the edge table stays the single representation.
func (s *Scheduler) Schedule(ctx context.Context, w *types.WorkItem) (*types.WorkItem, error) {
	if w.Status == "" {
		w.Status = types.StatusPending
	}
	if w.Status != types.StatusPending {
		return nil, errorkit.New(errorkit.KindValidation, "schedule requires a pending work item")
	}
	if w.MaxAttempts == 0 {
		w.MaxAttempts = s.policy.MaxAttempts
	}
	if err := w.Validate(); err != nil {
		return nil, errorkit.Wrap("scheduler.Schedule", errorkit.KindValidation, err)
	}

	key := types.ComputeIdempotencyKey(w.ProjectID, w.ParentID, w.Title, w.TaskType)
	if existing, err := s.store.FindByIdempotencyKey(ctx, key); err == nil && existing != nil {
		return existing, nil
	}
	w.IdempotencyKey = key

	deps := w.Metadata.Dependencies()
	if len(deps) > 0 {
		delete(w.Metadata, "dependencies")
	}

	// The item and its dependency edges commit together. No cycle check
	// is needed here: a brand-new item has no dependents, so its
	// outgoing edges cannot close a cycle. Edges added later go through
	// AddDependency, which does check.
	if err := s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		if err := tx.CreateWorkItem(ctx, w); err != nil {
			return err
		}
		for _, depID := range deps {
			edge := &types.DependencyEdge{ProjectID: w.ProjectID, DependentID: w.ID, DependsOnID: depID}
			if err := tx.AddDependency(ctx, edge); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	// pending -> ready is automatic when dependencies are satisfied.
	if err := s.promoteIfReady(ctx, w.ID); err != nil {
		return nil, err
	}
	fresh, err := s.store.GetWorkItem(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// AddDependency records that dependent depends on dependsOn, rejecting
// edges that would close a cycle. The dependent's stored status is left
// unchanged; Next skips it until the new dependency completes.
func (s *Scheduler) AddDependency(ctx context.Context, projectID, dependentID, dependsOnID int64) error {
	g, err := s.loadGraph(ctx, projectID)
	if err != nil {
		return err
	}
	if g.Item(dependentID) == nil || g.Item(dependsOnID) == nil {
		return errorkit.New(errorkit.KindNotFound, "dependency endpoints must exist in the project")
	}

	edge := &types.DependencyEdge{ProjectID: projectID, DependentID: dependentID, DependsOnID: dependsOnID}
	if err := s.store.AddDependency(ctx, edge); err != nil {
		return err
	}
	// Re-check acyclicity with the edge in place; roll back on cycle.
	g, err = s.loadGraph(ctx, projectID)
	if err != nil {
		return err
	}
	if cycle := g.FindCycle(); cycle != nil {
		_ = s.store.RemoveDependency(ctx, dependentID, dependsOnID)
		return depgraph.CycleError(cycle)
	}
	return nil
}

// Next returns the highest-effective-priority ready task whose
// dependencies remain satisfied and which has no unresolved
// breakpoint, marking it running within one transaction. Returns
// (nil, nil) when no task is dispatchable. Fails fast with a
// DeadlockError if the pending/ready items contain a cycle.
func (s *Scheduler) Next(ctx context.Context, projectID int64) (*types.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.loadGraph(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if cycle := g.HasCycleAmong(types.StatusPending, types.StatusReady); cycle != nil {
		return nil, depgraph.CycleError(cycle)
	}

	now := s.now()
	h := &candidateHeap{}
	statusReady := types.StatusReady
	items, err := s.store.ListWorkItems(ctx, store.WorkItemFilter{
		ProjectID: &projectID, Status: &statusReady, OrderByPriority: true,
	})
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		heap.Push(h, candidate{item: it, priority: effectivePriority(it, len(g.Dependents(it.ID)), now, s.extraBoosts)})
	}

	for h.Len() > 0 {
		c := heap.Pop(h).(candidate)
		item := c.item
		if !g.Ready(item.ID) {
			continue
		}
		if bp, err := s.store.UnresolvedForTask(ctx, item.ID); err == nil && bp != nil {
			continue
		}
		if err := s.transition(ctx, item, types.StatusRunning, "dispatched", nil); err != nil {
			if errorkit.IsConflict(err) {
				// Another dispatcher took it; try the next candidate.
				continue
			}
			return nil, err
		}
		metrics.AdjustQueueDepth(ctx, projectID, -1)
		item.Status = types.StatusRunning
		return item, nil
	}
	return nil, nil
}

// Complete marks a running task completed and promotes every dependent
// that became ready in the same transaction. Re-invoking on a
// completed task is a no-op.
func (s *Scheduler) Complete(ctx context.Context, taskID int64, changesSummary string) error {
	item, err := s.store.GetWorkItem(ctx, taskID)
	if err != nil {
		return err
	}
	if item.Status == types.StatusCompleted {
		return nil
	}
	if !canTransition(item.Status, types.StatusCompleted) {
		return transitionError(taskID, item.Status, types.StatusCompleted)
	}

	g, err := s.loadGraph(ctx, item.ProjectID)
	if err != nil {
		return err
	}

	// Dependents whose only missing dependency was this task become
	// ready atomically with the completion write.
	var promoted []int64
	err = s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		updates := map[string]any{"status": string(types.StatusCompleted)}
		if changesSummary != "" {
			updates["changes_summary"] = changesSummary
		}
		if err := tx.UpdateWorkItem(ctx, taskID, updates); err != nil {
			return err
		}
		for _, depID := range g.Dependents(taskID) {
			dep := g.Item(depID)
			if dep == nil || dep.Status != types.StatusPending {
				continue
			}
			if !satisfiedExcept(g, depID, taskID) {
				continue
			}
			if err := tx.UpdateWorkItem(ctx, depID, map[string]any{"status": string(types.StatusReady)}); err != nil {
				return err
			}
			promoted = append(promoted, depID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.emitStateChange(ctx, taskID, item.Status, types.StatusCompleted, "completed")
	for _, id := range promoted {
		s.emitStateChange(ctx, id, types.StatusPending, types.StatusReady, "dependencies satisfied")
		metrics.AdjustQueueDepth(ctx, item.ProjectID, 1)
	}
	if item.Type == types.TypeEpic && s.bus != nil {
		s.bus.Publish(ctx, eventbus.Event{Type: eventbus.EpicCompleted, Payload: item})
	}
	return nil
}

// satisfiedExcept reports whether every dependency of id other than
// justCompleted is completed. The completion write for justCompleted
// is in flight in the same transaction, so the graph snapshot still
// shows its old status.
func satisfiedExcept(g *depgraph.Graph, id, justCompleted int64) bool {
	for _, dep := range g.DependsOn(id) {
		if dep == justCompleted {
			continue
		}
		item := g.Item(dep)
		if item == nil || item.Status != types.StatusCompleted {
			return false
		}
	}
	return true
}

// Fail records a failure of a running task. Non-retryable kinds are
// terminal; retryable kinds move the task to retrying with exponential
// backoff while budget remains, and to failed once it is spent.
func (s *Scheduler) Fail(ctx context.Context, taskID int64, kind errorkit.Kind, reason string) error {
	item, err := s.store.GetWorkItem(ctx, taskID)
	if err != nil {
		return err
	}
	if item.Status != types.StatusRunning {
		return transitionError(taskID, item.Status, types.StatusFailed)
	}

	attempts := item.Attempts + 1
	if !kind.Retryable() || attempts >= item.MaxAttempts {
		if err := s.transition(ctx, item, types.StatusFailed, reason, map[string]any{"attempts": attempts}); err != nil {
			return err
		}
		s.log.Warn("task failed",
			slog.Int64("task_id", taskID),
			slog.String("kind", string(kind)),
			slog.Int("attempts", attempts))
		return nil
	}

	delay := s.backoffDelay(attempts)
	rec := &types.RetryRecord{
		TaskID:       taskID,
		AttemptIndex: attempts,
		ScheduledAt:  s.now().Add(delay),
		Delay:        delay,
	}
	// failed -> retrying passes through failed in the state table; the
	// two writes and the retry record commit together.
	err = s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		if err := tx.UpdateWorkItem(ctx, taskID, map[string]any{
			"status":   string(types.StatusRetrying),
			"attempts": attempts,
		}); err != nil {
			return err
		}
		return tx.CreateRetryRecord(ctx, rec)
	})
	if err != nil {
		return err
	}
	s.emitStateChange(ctx, taskID, types.StatusRunning, types.StatusRetrying, reason)
	metrics.RecordRetryScheduled(ctx, string(item.TaskType))
	s.log.Info("retry scheduled",
		slog.Int64("task_id", taskID),
		slog.Int("attempt", attempts),
		slog.Duration("delay", delay))

	s.scheduleWakeup(taskID, delay)
	return nil
}

// backoffDelay computes base * factor^(attempts-1) with ±jitter,
// clamped so the delay never drops below base.
func (s *Scheduler) backoffDelay(attempts int) time.Duration {
	base := float64(s.policy.BaseDelay)
	d := base * math.Pow(s.policy.Factor, float64(attempts-1))
	if s.policy.Jitter > 0 {
		s.mu.Lock()
		f := 1 + s.policy.Jitter*(2*s.rng.Float64()-1)
		s.mu.Unlock()
		d *= f
	}
	if d < base {
		d = base
	}
	return time.Duration(d)
}

// scheduleWakeup arms a timer that returns the task from retrying to
// ready after its delay elapses. Scheduled wakeups, not blocking
// sleeps.
func (s *Scheduler) scheduleWakeup(taskID int64, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[taskID]; ok {
		t.Stop()
	}
	s.timers[taskID] = s.afterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, taskID)
		s.mu.Unlock()
		if err := s.PromoteRetry(context.Background(), taskID); err != nil {
			s.log.Warn("retry promotion failed",
				slog.Int64("task_id", taskID),
				slog.String("error", err.Error()))
		}
	})
}

// PromoteRetry moves a retrying task back to ready. Called by the
// wakeup timer and by ResumeRetries on startup.
func (s *Scheduler) PromoteRetry(ctx context.Context, taskID int64) error {
	item, err := s.store.GetWorkItem(ctx, taskID)
	if err != nil {
		return err
	}
	if item.Status != types.StatusRetrying {
		// Cancelled while waiting, or already promoted.
		return nil
	}
	return s.transition(ctx, item, types.StatusReady, "retry delay elapsed", nil)
}

// ResumeRetries re-arms wakeups for tasks left in retrying by a prior
// process, promoting immediately any whose delay has already elapsed.
func (s *Scheduler) ResumeRetries(ctx context.Context, projectID int64) error {
	statusRetrying := types.StatusRetrying
	items, err := s.store.ListWorkItems(ctx, store.WorkItemFilter{ProjectID: &projectID, Status: &statusRetrying})
	if err != nil {
		return err
	}
	now := s.now()
	for _, it := range items {
		recs, err := s.store.ListRetryRecords(ctx, it.ID)
		if err != nil || len(recs) == 0 {
			if err := s.PromoteRetry(ctx, it.ID); err != nil {
				return err
			}
			continue
		}
		due := recs[len(recs)-1].ScheduledAt
		if !due.After(now) {
			if err := s.PromoteRetry(ctx, it.ID); err != nil {
				return err
			}
			continue
		}
		s.scheduleWakeup(it.ID, due.Sub(now))
	}
	return nil
}

// Cancel is valid from any non-terminal state and is itself terminal;
// the reason is persisted with the transition.
func (s *Scheduler) Cancel(ctx context.Context, taskID int64, reason string) error {
	item, err := s.store.GetWorkItem(ctx, taskID)
	if err != nil {
		return err
	}
	if item.Status.Terminal() {
		return transitionError(taskID, item.Status, types.StatusCancelled)
	}
	s.mu.Lock()
	if t, ok := s.timers[taskID]; ok {
		t.Stop()
		delete(s.timers, taskID)
	}
	s.mu.Unlock()
	return s.transition(ctx, item, types.StatusCancelled, reason, map[string]any{"changes_summary": reason})
}

// Block implements breakpoint.StateTransitioner: running -> blocked.
func (s *Scheduler) Block(ctx context.Context, taskID int64, reason string) error {
	item, err := s.store.GetWorkItem(ctx, taskID)
	if err != nil {
		return err
	}
	return s.transition(ctx, item, types.StatusBlocked, reason, nil)
}

// Unblock implements breakpoint.StateTransitioner: blocked -> ready.
func (s *Scheduler) Unblock(ctx context.Context, taskID int64, reason string) error {
	item, err := s.store.GetWorkItem(ctx, taskID)
	if err != nil {
		return err
	}
	return s.transition(ctx, item, types.StatusReady, reason, nil)
}

// DetectDeadlock runs cycle detection over a project's live graph,
// returning the participating ids or nil.
func (s *Scheduler) DetectDeadlock(ctx context.Context, projectID int64) ([]int64, error) {
	g, err := s.loadGraph(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return g.FindCycle(), nil
}

// promoteIfReady moves a pending item to ready when its dependencies
// are already satisfied.
func (s *Scheduler) promoteIfReady(ctx context.Context, taskID int64) error {
	item, err := s.store.GetWorkItem(ctx, taskID)
	if err != nil {
		return err
	}
	if item.Status != types.StatusPending {
		return nil
	}
	g, err := s.loadGraph(ctx, item.ProjectID)
	if err != nil {
		return err
	}
	if !g.Ready(taskID) {
		return nil
	}
	if err := s.transition(ctx, item, types.StatusReady, "dependencies satisfied", nil); err != nil {
		return err
	}
	metrics.AdjustQueueDepth(ctx, item.ProjectID, 1)
	return nil
}

// transition validates against the table, persists the status write
// (plus any extra fields) in one transaction, and emits
// task_state_changed.
func (s *Scheduler) transition(ctx context.Context, item *types.WorkItem, to types.WorkItemStatus, reason string, extra map[string]any) error {
	if !canTransition(item.Status, to) {
		return transitionError(item.ID, item.Status, to)
	}
	updates := map[string]any{"status": string(to)}
	for k, v := range extra {
		updates[k] = v
	}
	if err := s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		return tx.UpdateWorkItem(ctx, item.ID, updates)
	}); err != nil {
		return err
	}
	s.emitStateChange(ctx, item.ID, item.Status, to, reason)
	return nil
}

func (s *Scheduler) emitStateChange(ctx context.Context, taskID int64, from, to types.WorkItemStatus, reason string) {
	s.log.Debug("task state changed",
		slog.Int64("task_id", taskID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.String("reason", reason))
	if s.bus != nil {
		s.bus.Publish(ctx, eventbus.Event{Type: eventbus.TaskStateChanged, Payload: eventbus.TaskStateChange{
			TaskID: taskID,
			From:   string(from),
			To:     string(to),
			Reason: reason,
		}})
	}
}

// loadGraph builds the in-memory dependency graph for a project.
func (s *Scheduler) loadGraph(ctx context.Context, projectID int64) (*depgraph.Graph, error) {
	items, err := s.store.ListWorkItems(ctx, store.WorkItemFilter{ProjectID: &projectID})
	if err != nil {
		return nil, err
	}
	edges, err := s.store.ListProjectEdges(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return depgraph.New(items, edges), nil
}
