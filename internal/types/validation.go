package types

import "fmt"

const (
	maxTitleLength = 500
	minPriority    = 1
	maxPriority    = 10
)

// Validate checks a Project for structural correctness before it is
// persisted. It does not check cross-entity references (e.g. whether
// the project id already exists); that is the store's job.
func (p *Project) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(p.Name) > maxTitleLength {
		return fmt.Errorf("name must be %d characters or less", maxTitleLength)
	}
	if p.Status == "" {
		p.Status = ProjectActive
	}
	if !p.Status.Valid() {
		return invalidEnumError("status", string(p.Status))
	}
	return nil
}

// Validate checks a WorkItem for structural correctness and hierarchy
// invariants that do not require a store lookup.
func (w *WorkItem) Validate() error {
	if w.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(w.Title) > maxTitleLength {
		return fmt.Errorf("title must be %d characters or less", maxTitleLength)
	}
	if w.Priority == 0 {
		w.Priority = 5
	}
	if w.Priority < minPriority || w.Priority > maxPriority {
		return fmt.Errorf("priority must be between %d and %d", minPriority, maxPriority)
	}
	if !w.Type.Valid() {
		return invalidEnumError("type", string(w.Type))
	}
	if w.Status == "" {
		w.Status = StatusPending
	}
	if !w.Status.Valid() {
		return invalidEnumError("status", string(w.Status))
	}
	if !w.TaskType.Valid() {
		return invalidEnumError("task_type", string(w.TaskType))
	}
	if w.MaxAttempts == 0 {
		w.MaxAttempts = 3
	}
	if w.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if w.Attempts < 0 {
		return fmt.Errorf("attempts cannot be negative")
	}

	switch w.Type {
	case TypeEpic:
		if w.ParentID != nil {
			return fmt.Errorf("epic must not have a parent")
		}
	case TypeStory:
		if w.ParentID == nil {
			return fmt.Errorf("story must have a parent epic")
		}
	case TypeSubtask:
		if w.ParentID == nil {
			return fmt.Errorf("subtask must have a parent task")
		}
	case TypeTask:
		// parent_id may be null or a story; checked against the store
		// at creation time since it requires a lookup of the parent's type.
	}

	if w.Status.Terminal() && w.DeletedAt == nil {
		// Terminal items are allowed to be soft-deleted independently;
		// nothing further to check here beyond the enum validity above.
		_ = w.Status
	}

	return nil
}

// Validate checks a Milestone for structural correctness.
func (m *Milestone) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(m.RequiredEpicIDs) == 0 {
		return fmt.Errorf("milestone requires at least one epic")
	}
	if m.Status == "" {
		m.Status = MilestonePending
	}
	if !m.Status.Valid() {
		return invalidEnumError("status", string(m.Status))
	}
	return nil
}

// Validate checks a Session for structural correctness.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.ProjectID == 0 {
		return fmt.Errorf("project_id is required")
	}
	if s.ContextWindowLimit <= 0 {
		return fmt.Errorf("context_window_limit must be positive")
	}
	if s.Status == "" {
		s.Status = SessionActive
	}
	if !s.Status.Valid() {
		return invalidEnumError("status", string(s.Status))
	}
	if s.Status != SessionActive && s.EndedAt == nil {
		return fmt.Errorf("non-active sessions must have ended_at timestamp")
	}
	if s.Status == SessionActive && s.EndedAt != nil {
		return fmt.Errorf("active sessions cannot have ended_at timestamp")
	}
	return nil
}

// Validate checks an Iteration for structural correctness.
func (it *Iteration) Validate() error {
	if it.TaskID == 0 {
		return fmt.Errorf("task_id is required")
	}
	if it.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if it.Index < 1 {
		return fmt.Errorf("index must be 1-based")
	}
	if it.Quality < 0 || it.Quality > 1 {
		return fmt.Errorf("quality must be between 0 and 1")
	}
	if it.Confidence < 0 || it.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1")
	}
	return nil
}
