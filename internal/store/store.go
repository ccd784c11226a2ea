// Package store defines the transactional persistence contract for
// the orchestration core: the single source of truth
// for projects, work items, dependency edges, milestones, sessions,
// iterations, checkpoints, breakpoints, and retry records. Every other
// component reads and writes only through this interface.
package store

import (
	"context"
	"time"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

// WorkItemFilter narrows ListWorkItems to the indexed queries: by
// project, by status, by (project, status, priority desc, created_at
// asc), by parent_id, by task_type.
type WorkItemFilter struct {
	ProjectID  *int64
	Status     *types.WorkItemStatus
	ParentID   *int64
	TaskType   *types.TaskType
	Type       *types.WorkItemType
	// OrderByPriority requests (priority desc, created_at asc)
	// ordering; otherwise results are returned in created_at asc order.
	OrderByPriority bool
}

// Store is the full transactional persistence contract. Concrete
// implementations (internal/store/sqlite) must honor: snapshot-
// consistent reads within a transaction, serialized writes to the
// same record (ConflictError on optimistic mismatch), default
// exclusion of soft-deleted rows, and the indexed queries below.
type Store interface {
	// RunInTransaction executes fn inside a single transaction that
	// commits entirely or leaves the store unchanged.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	Projects
	WorkItems
	Dependencies
	Milestones
	Sessions
	Iterations
	Checkpoints
	Breakpoints
	Retries
	Config

	Close() error
}

// Tx is the same capability surface as Store, scoped to one
// transaction. Implementations typically satisfy both interfaces with
// the same underlying methods operating against either the pooled
// connection or an open *sql.Tx.
type Tx interface {
	Projects
	WorkItems
	Dependencies
	Milestones
	Sessions
	Iterations
	Checkpoints
	Breakpoints
	Retries
	Config
}

type Projects interface {
	CreateProject(ctx context.Context, p *types.Project) error
	GetProject(ctx context.Context, id int64) (*types.Project, error)
	UpdateProject(ctx context.Context, id int64, updates map[string]any) error
	ListProjects(ctx context.Context) ([]*types.Project, error)
}

type WorkItems interface {
	CreateWorkItem(ctx context.Context, w *types.WorkItem) error
	GetWorkItem(ctx context.Context, id int64) (*types.WorkItem, error)
	UpdateWorkItem(ctx context.Context, id int64, updates map[string]any) error
	ListWorkItems(ctx context.Context, filter WorkItemFilter) ([]*types.WorkItem, error)
	SoftDeleteWorkItem(ctx context.Context, id int64) error

	// FindByIdempotencyKey backs idempotent scheduling.
	FindByIdempotencyKey(ctx context.Context, key string) (*types.WorkItem, error)

	// ListOrphans surfaces WorkItems whose parent_id references a
	// soft-deleted or missing parent.
	ListOrphans(ctx context.Context, projectID int64) ([]*types.WorkItem, error)
}

type Dependencies interface {
	AddDependency(ctx context.Context, e *types.DependencyEdge) error
	RemoveDependency(ctx context.Context, dependentID, dependsOnID int64) error
	// ListDependencies returns the ids a work item directly depends on.
	ListDependencies(ctx context.Context, workItemID int64) ([]int64, error)
	// ListDependents returns the ids that directly depend on a work item.
	ListDependents(ctx context.Context, workItemID int64) ([]int64, error)
	// ListProjectEdges returns every non-deleted dependency edge in a
	// project, for the dependency graph to build an in-memory view.
	ListProjectEdges(ctx context.Context, projectID int64) ([]*types.DependencyEdge, error)
}

type Milestones interface {
	CreateMilestone(ctx context.Context, m *types.Milestone) error
	GetMilestone(ctx context.Context, id int64) (*types.Milestone, error)
	UpdateMilestone(ctx context.Context, id int64, updates map[string]any) error
	ListMilestones(ctx context.Context, projectID int64) ([]*types.Milestone, error)
}

type Sessions interface {
	CreateSession(ctx context.Context, s *types.Session) error
	GetSession(ctx context.Context, id string) (*types.Session, error)
	UpdateSession(ctx context.Context, id string, updates map[string]any) error
}

type Iterations interface {
	CreateIteration(ctx context.Context, it *types.Iteration) error
	UpdateIteration(ctx context.Context, id int64, updates map[string]any) error
	ListIterations(ctx context.Context, taskID int64) ([]*types.Iteration, error)
	// LastIteration returns the most recent iteration for a task, or
	// nil if none exists. The execution loop checks it before starting:
	// an iteration left open means another execution is in flight.
	LastIteration(ctx context.Context, taskID int64) (*types.Iteration, error)
}

type Checkpoints interface {
	AppendCheckpoint(ctx context.Context, c *types.Checkpoint) error
	ListCheckpoints(ctx context.Context, sessionID string) ([]*types.Checkpoint, error)
}

type Breakpoints interface {
	CreateBreakpoint(ctx context.Context, b *types.Breakpoint) error
	GetBreakpoint(ctx context.Context, id int64) (*types.Breakpoint, error)
	ResolveBreakpoint(ctx context.Context, id int64, note string, disposition types.BreakpointDisposition, at time.Time) error
	UnresolvedForTask(ctx context.Context, taskID int64) (*types.Breakpoint, error)
}

type Retries interface {
	CreateRetryRecord(ctx context.Context, r *types.RetryRecord) error
	ListRetryRecords(ctx context.Context, taskID int64) ([]*types.RetryRecord, error)
}

// Config is a small persisted key/value surface for project-scoped
// runtime settings that outlive a process (distinct from the process
// config in internal/config).
type Config interface {
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)
}
