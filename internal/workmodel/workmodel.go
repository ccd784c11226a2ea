// Package workmodel enforces the hierarchy and type invariants on
// create/update of the typed work hierarchy. All mutations occur
// inside a store transaction.
package workmodel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/errorkit"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/eventbus"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/store"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

// Model is the work-model component. It depends on the Store
// capability and an optional event bus (nil is tolerated: components
// degrade gracefully rather than requiring every collaborator wired in
// tests).
type Model struct {
	store store.Store
	bus   *eventbus.Bus
	log   *slog.Logger
}

func New(s store.Store, bus *eventbus.Bus, log *slog.Logger) *Model {
	if log == nil {
		log = slog.Default()
	}
	return &Model{store: s, bus: bus, log: log}
}

// CreateEpic forces parent_id null and type=epic.
func (m *Model) CreateEpic(ctx context.Context, projectID int64, title, description string, opts ...Option) (*types.WorkItem, error) {
	w := &types.WorkItem{
		ProjectID:   projectID,
		Type:        types.TypeEpic,
		Title:       title,
		Description: description,
	}
	applyOptions(w, opts)
	w.ParentID = nil
	return m.create(ctx, w)
}

// CreateStory verifies the epic exists in the project, type=story.
func (m *Model) CreateStory(ctx context.Context, projectID, epicID int64, title, description string, opts ...Option) (*types.WorkItem, error) {
	epic, err := m.store.GetWorkItem(ctx, epicID)
	if err != nil {
		return nil, errorkit.Wrap("workmodel.CreateStory", errorkit.KindNotFound, err)
	}
	if epic.ProjectID != projectID || epic.Type != types.TypeEpic {
		return nil, errorkit.New(errorkit.KindValidation, "parent must be an epic in the same project")
	}
	w := &types.WorkItem{
		ProjectID:   projectID,
		Type:        types.TypeStory,
		Title:       title,
		Description: description,
		ParentID:    &epicID,
	}
	applyOptions(w, opts)
	return m.create(ctx, w)
}

// CreateTask verifies the parent type matches the task/subtask rules:
// a task's parent may be nil or a Story; a subtask's parent must be a
// Task.
func (m *Model) CreateTask(ctx context.Context, projectID int64, itemType types.WorkItemType, parentID *int64, title, description string, opts ...Option) (*types.WorkItem, error) {
	if itemType != types.TypeTask && itemType != types.TypeSubtask {
		return nil, errorkit.New(errorkit.KindValidation, "CreateTask requires type task or subtask")
	}
	if parentID != nil {
		parent, err := m.store.GetWorkItem(ctx, *parentID)
		if err != nil {
			return nil, errorkit.Wrap("workmodel.CreateTask", errorkit.KindNotFound, err)
		}
		if parent.ProjectID != projectID {
			return nil, errorkit.New(errorkit.KindValidation, "parent must be in the same project")
		}
		switch itemType {
		case types.TypeTask:
			if parent.Type != types.TypeStory {
				return nil, errorkit.New(errorkit.KindValidation, "task parent must be a story")
			}
		case types.TypeSubtask:
			if parent.Type != types.TypeTask {
				return nil, errorkit.New(errorkit.KindValidation, "subtask parent must be a task")
			}
		}
	} else if itemType == types.TypeSubtask {
		return nil, errorkit.New(errorkit.KindValidation, "subtask must have a parent task")
	}
	w := &types.WorkItem{
		ProjectID:   projectID,
		Type:        itemType,
		Title:       title,
		Description: description,
		ParentID:    parentID,
	}
	applyOptions(w, opts)
	return m.create(ctx, w)
}

func (m *Model) create(ctx context.Context, w *types.WorkItem) (*types.WorkItem, error) {
	if err := w.Validate(); err != nil {
		return nil, errorkit.Wrap("workmodel.create", errorkit.KindValidation, err)
	}
	w.IdempotencyKey = types.ComputeIdempotencyKey(w.ProjectID, w.ParentID, w.Title, w.TaskType)
	if existing, err := m.store.FindByIdempotencyKey(ctx, w.IdempotencyKey); err == nil && existing != nil {
		return existing, nil
	}
	if err := m.store.RunInTransaction(ctx, func(tx store.Tx) error {
		return tx.CreateWorkItem(ctx, w)
	}); err != nil {
		return nil, errorkit.Wrap("workmodel.create", errorkit.KindStateError, err)
	}
	return w, nil
}

// CreateMilestone requires each required epic to belong to the project.
func (m *Model) CreateMilestone(ctx context.Context, projectID int64, name string, requiredEpicIDs []int64, version string) (*types.Milestone, error) {
	for _, id := range requiredEpicIDs {
		epic, err := m.store.GetWorkItem(ctx, id)
		if err != nil {
			return nil, errorkit.Wrap("workmodel.CreateMilestone", errorkit.KindNotFound, err)
		}
		if epic.ProjectID != projectID || epic.Type != types.TypeEpic {
			return nil, errorkit.New(errorkit.KindValidation, fmt.Sprintf("epic %d does not belong to project %d", id, projectID))
		}
	}
	ms := &types.Milestone{
		ProjectID:       projectID,
		Name:            name,
		Version:         version,
		RequiredEpicIDs: requiredEpicIDs,
		Status:          types.MilestonePending,
	}
	if err := ms.Validate(); err != nil {
		return nil, errorkit.Wrap("workmodel.CreateMilestone", errorkit.KindValidation, err)
	}
	if err := m.store.RunInTransaction(ctx, func(tx store.Tx) error {
		return tx.CreateMilestone(ctx, ms)
	}); err != nil {
		return nil, errorkit.Wrap("workmodel.CreateMilestone", errorkit.KindStateError, err)
	}
	return ms, nil
}

// CompleteEpic sets status=completed and emits epic_completed, which
// the documentation collaborator (out of this core's scope) consumes.
func (m *Model) CompleteEpic(ctx context.Context, id int64) error {
	epic, err := m.store.GetWorkItem(ctx, id)
	if err != nil {
		return errorkit.Wrap("workmodel.CompleteEpic", errorkit.KindNotFound, err)
	}
	if epic.Type != types.TypeEpic {
		return errorkit.New(errorkit.KindValidation, "not an epic")
	}
	if err := m.store.RunInTransaction(ctx, func(tx store.Tx) error {
		return tx.UpdateWorkItem(ctx, id, map[string]any{"status": string(types.StatusCompleted)})
	}); err != nil {
		return errorkit.Wrap("workmodel.CompleteEpic", errorkit.KindStateError, err)
	}
	if m.bus != nil {
		m.bus.Publish(ctx, eventbus.Event{Type: eventbus.EpicCompleted, Payload: epic})
	}
	return nil
}

// AchieveMilestone is valid only when every required epic is completed.
func (m *Model) AchieveMilestone(ctx context.Context, id int64) error {
	ms, err := m.store.GetMilestone(ctx, id)
	if err != nil {
		return errorkit.Wrap("workmodel.AchieveMilestone", errorkit.KindNotFound, err)
	}
	for _, epicID := range ms.RequiredEpicIDs {
		epic, err := m.store.GetWorkItem(ctx, epicID)
		if err != nil {
			return errorkit.Wrap("workmodel.AchieveMilestone", errorkit.KindNotFound, err)
		}
		if epic.Status != types.StatusCompleted {
			return errorkit.New(errorkit.KindValidation, fmt.Sprintf("epic %d is not completed", epicID))
		}
	}
	if err := m.store.RunInTransaction(ctx, func(tx store.Tx) error {
		return tx.UpdateMilestone(ctx, id, map[string]any{"status": string(types.MilestoneAchieved)})
	}); err != nil {
		return errorkit.Wrap("workmodel.AchieveMilestone", errorkit.KindStateError, err)
	}
	if m.bus != nil {
		m.bus.Publish(ctx, eventbus.Event{Type: eventbus.MilestoneAchieved, Payload: ms})
	}
	return nil
}

// Option mutates a WorkItem before creation; used for optional fields
// (priority, task_type, dependencies, metadata) shared by every
// Create* constructor.
type Option func(*types.WorkItem)

func applyOptions(w *types.WorkItem, opts []Option) {
	for _, opt := range opts {
		opt(w)
	}
}

func WithPriority(p int) Option       { return func(w *types.WorkItem) { w.Priority = p } }
func WithTaskType(t types.TaskType) Option { return func(w *types.WorkItem) { w.TaskType = t } }
func WithMaxAttempts(n int) Option    { return func(w *types.WorkItem) { w.MaxAttempts = n } }
func WithMetadata(md types.Metadata) Option { return func(w *types.WorkItem) { w.Metadata = md } }
func WithADR(requires, hasArchChanges bool) Option {
	return func(w *types.WorkItem) {
		w.RequiresADR = requires
		w.HasArchitecturalChanges = hasArchChanges
	}
}
