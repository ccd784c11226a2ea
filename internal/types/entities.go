package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Base carries the fields every store-assigned entity has: an integer
// id, created/updated timestamps, and a soft-delete flag. Session does
// not embed Base because its identifier is a UUID rather than a
// store-assigned integer; it carries its own timestamp fields instead.
type Base struct {
	ID        int64      `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the entity has been soft-deleted.
func (b Base) Deleted() bool { return b.DeletedAt != nil }

// Project is the top-level container for work items.
type Project struct {
	Base
	Name        string        `json:"name"`
	Description string        `json:"description"`
	WorkingDir  string        `json:"working_directory"`
	Status      ProjectStatus `json:"status"`
}

// WorkItem is the unifying entity for Epic, Story, Task, and Subtask.
type WorkItem struct {
	Base
	ProjectID               int64          `json:"project_id"`
	Type                    WorkItemType   `json:"type"`
	Title                   string         `json:"title"`
	Description             string         `json:"description"`
	ParentID                *int64         `json:"parent_id,omitempty"`
	Priority                int            `json:"priority"`
	Status                  WorkItemStatus `json:"status"`
	TaskType                TaskType       `json:"task_type,omitempty"`
	Attempts                int            `json:"attempts"`
	MaxAttempts             int            `json:"max_attempts"`
	Metadata                Metadata       `json:"metadata,omitempty"`
	RequiresADR             bool           `json:"requires_adr"`
	HasArchitecturalChanges bool           `json:"has_architectural_changes"`
	ChangesSummary          string         `json:"changes_summary,omitempty"`

	// IdempotencyKey is a deterministic hash of (project_id, parent_id,
	// title, task_type) enforced unique by the store, which makes
	// scheduling idempotent.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ComputeIdempotencyKey is the deterministic hash behind idempotent
// scheduling: a hash of
// (project_id, parent_id, title, task_type). The store enforces this
// unique; callers use it to detect "already scheduled" before create.
func ComputeIdempotencyKey(projectID int64, parentID *int64, title string, taskType TaskType) string {
	parent := "nil"
	if parentID != nil {
		parent = strconv.FormatInt(*parentID, 10)
	}
	h := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s|%s", projectID, parent, title, taskType)))
	return hex.EncodeToString(h[:])
}

// DependencyIDs returns the ids listed under the well-known
// `dependencies` metadata key. The key is an input convenience only:
// the scheduler consumes it at schedule time, converts each id to an
// edge row, and strips the key before the item persists, so the edge
// table remains the single stored representation and the two cannot
// drift.
func (w *WorkItem) DependencyIDs() []int64 {
	return w.Metadata.Dependencies()
}

// Milestone is a zero-duration, project-scoped checkpoint tied to a
// set of required Epics.
type Milestone struct {
	Base
	ProjectID       int64           `json:"project_id"`
	Name            string          `json:"name"`
	Version         string          `json:"version,omitempty"`
	RequiredEpicIDs []int64         `json:"required_epic_ids"`
	Status          MilestoneStatus `json:"status"`
}

// DependencyEdge is a directed edge (dependent_id depends_on
// depends_on_id) between two work items in the same project.
type DependencyEdge struct {
	ProjectID   int64     `json:"project_id"`
	DependentID int64     `json:"dependent_id"`
	DependsOnID int64     `json:"depends_on_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// TokenBreakdown is the four-way token accounting an Agent response
// carries.
type TokenBreakdown struct {
	Input         int64 `json:"input"`
	CacheRead     int64 `json:"cache_read"`
	CacheCreation int64 `json:"cache_creation"`
	Output        int64 `json:"output"`
}

// Total returns the sum of all four token categories.
func (t TokenBreakdown) Total() int64 {
	return t.Input + t.CacheRead + t.CacheCreation + t.Output
}

// Add returns the element-wise sum of two breakdowns.
func (t TokenBreakdown) Add(o TokenBreakdown) TokenBreakdown {
	return TokenBreakdown{
		Input:         t.Input + o.Input,
		CacheRead:     t.CacheRead + o.CacheRead,
		CacheCreation: t.CacheCreation + o.CacheCreation,
		Output:        t.Output + o.Output,
	}
}

// Session is the continuous context shared across iterations of a
// single task execution until it is refreshed or closed. Its id is a
// UUID, not a store-assigned integer.
type Session struct {
	ID                 string        `json:"id"`
	ProjectID           int64         `json:"project_id"`
	MilestoneID         *int64        `json:"milestone_id,omitempty"`
	Status              SessionStatus `json:"status"`
	StartedAt           time.Time     `json:"started_at"`
	EndedAt             *time.Time    `json:"ended_at,omitempty"`
	ContextWindowLimit  int64         `json:"context_window_limit"`
	CumulativeTokens    TokenBreakdown `json:"cumulative_tokens"`
	Summary             string        `json:"summary,omitempty"`
	PredecessorID       string        `json:"predecessor_id,omitempty"`
	SuccessorID         string        `json:"successor_id,omitempty"`
	Degraded            bool          `json:"degraded"`
	OptimizationProfile string        `json:"optimization_profile,omitempty"`
}

// Utilization returns cumulative tokens as a fraction of
// ContextWindowLimit, or 0 when no limit is set; internal/session
// derives the qualitative zone from it.
func (s Session) Utilization() float64 {
	if s.ContextWindowLimit <= 0 {
		return 0
	}
	return float64(s.CumulativeTokens.Total()) / float64(s.ContextWindowLimit)
}

// Iteration is a single prompt/response round inside a task execution.
type Iteration struct {
	Base
	TaskID         int64            `json:"task_id"`
	SessionID      string           `json:"session_id"`
	Index          int              `json:"index"`
	PromptDigest   string           `json:"prompt_digest"`
	ResponseDigest string           `json:"response_digest"`
	Tokens         TokenBreakdown   `json:"tokens"`
	Validation     ValidationResult `json:"validation"`
	Quality        float64          `json:"quality"`
	Confidence     float64          `json:"confidence"`
	Decision       Decision         `json:"decision,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	EndedAt        *time.Time       `json:"ended_at,omitempty"`
	Degraded       bool             `json:"degraded"`
}

// Checkpoint is an append-only, monotonically-indexed working-memory
// snapshot for a session.
type Checkpoint struct {
	Base
	SessionID string `json:"session_id"`
	Index     int    `json:"index"`
	Snapshot  []byte `json:"snapshot"`
}

// Breakpoint records a pause requiring human or collaborator review.
type Breakpoint struct {
	Base
	TaskID         int64                  `json:"task_id"`
	Reason         string                 `json:"reason"`
	ResolvedAt     *time.Time             `json:"resolved_at,omitempty"`
	ResolutionNote string                 `json:"resolution_note,omitempty"`
	Disposition    BreakpointDisposition  `json:"disposition,omitempty"`
}

// Resolved reports whether the breakpoint has been resolved.
func (b Breakpoint) Resolved() bool { return b.ResolvedAt != nil }

// RetryRecord is one scheduled retry attempt for a task.
type RetryRecord struct {
	Base
	TaskID       int64         `json:"task_id"`
	AttemptIndex int           `json:"attempt_index"`
	ScheduledAt  time.Time     `json:"scheduled_at"`
	Delay        time.Duration `json:"delay"`
	Outcome      string        `json:"outcome,omitempty"`
}

// Metadata is the opaque, schemaless map carried on a WorkItem.
type Metadata map[string]interface{}

// Dependencies returns the well-known `dependencies` metadata key as
// a list of work-item ids, tolerating the numeric shapes JSON decoding
// produces. Missing or malformed entries are skipped.
func (m Metadata) Dependencies() []int64 {
	raw, ok := m["dependencies"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []int64:
		return v
	case []interface{}:
		out := make([]int64, 0, len(v))
		for _, e := range v {
			switch n := e.(type) {
			case int64:
				out = append(out, n)
			case int:
				out = append(out, int64(n))
			case float64:
				out = append(out, int64(n))
			}
		}
		return out
	default:
		return nil
	}
}

// Deadline returns the well-known `deadline` metadata key, if present
// and parseable as RFC3339.
func (m Metadata) Deadline() (time.Time, bool) {
	raw, ok := m["deadline"]
	if !ok {
		return time.Time{}, false
	}
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}
