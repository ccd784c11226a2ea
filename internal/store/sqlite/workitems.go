package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/store"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

func createWorkItem(ctx context.Context, q querier, w *types.WorkItem) error {
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	if w.IdempotencyKey == "" {
		w.IdempotencyKey = types.ComputeIdempotencyKey(w.ProjectID, w.ParentID, w.Title, w.TaskType)
	}
	metaJSON, err := json.Marshal(w.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO work_items
		 (project_id, type, title, description, parent_id, priority, status, task_type,
		  attempts, max_attempts, metadata, requires_adr, has_architectural_changes,
		  changes_summary, idempotency_key, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		w.ProjectID, string(w.Type), w.Title, w.Description, w.ParentID, w.Priority, string(w.Status),
		string(w.TaskType), w.Attempts, w.MaxAttempts, string(metaJSON), boolToInt(w.RequiresADR),
		boolToInt(w.HasArchitecturalChanges), w.ChangesSummary, w.IdempotencyKey,
		formatTime(w.CreatedAt), formatTime(w.UpdatedAt))
	if err != nil {
		return classifyError("store.CreateWorkItem", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return classifyError("store.CreateWorkItem", err)
	}
	w.ID = id
	return nil
}

const workItemColumns = `id, project_id, type, title, description, parent_id, priority, status, task_type,
	attempts, max_attempts, metadata, requires_adr, has_architectural_changes, changes_summary,
	idempotency_key, created_at, updated_at, deleted_at`

func scanWorkItem(s interface{ Scan(dest ...any) error }) (*types.WorkItem, error) {
	var w types.WorkItem
	var parentID sql.NullInt64
	var taskType, metaJSON string
	var createdAt, updatedAt string
	var deletedAt sql.NullString
	var wType, status string
	var requiresADR, hasArch int

	if err := s.Scan(&w.ID, &w.ProjectID, &wType, &w.Title, &w.Description, &parentID, &w.Priority,
		&status, &taskType, &w.Attempts, &w.MaxAttempts, &metaJSON, &requiresADR, &hasArch,
		&w.ChangesSummary, &w.IdempotencyKey, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}
	w.Type = types.WorkItemType(wType)
	w.Status = types.WorkItemStatus(status)
	w.TaskType = types.TaskType(taskType)
	if parentID.Valid {
		w.ParentID = &parentID.Int64
	}
	w.RequiresADR = requiresADR != 0
	w.HasArchitecturalChanges = hasArch != 0
	w.CreatedAt = parseTime(createdAt)
	w.UpdatedAt = parseTime(updatedAt)
	w.DeletedAt = parseNullTime(deletedAt)
	if metaJSON != "" {
		_ = json.Unmarshal([]byte(metaJSON), &w.Metadata)
	}
	return &w, nil
}

func getWorkItem(ctx context.Context, q querier, id int64) (*types.WorkItem, error) {
	row := q.QueryRowContext(ctx, "SELECT "+workItemColumns+" FROM work_items WHERE id = ? AND deleted_at IS NULL", id)
	w, err := scanWorkItem(row)
	if err == sql.ErrNoRows {
		return nil, classifyError("store.GetWorkItem", sql.ErrNoRows)
	}
	if err != nil {
		return nil, classifyError("store.GetWorkItem", err)
	}
	return w, nil
}

func updateWorkItem(ctx context.Context, q querier, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	normalized := make(map[string]any, len(updates))
	for k, v := range updates {
		if k == "metadata" {
			b, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("marshal metadata update: %w", err)
			}
			normalized[k] = string(b)
			continue
		}
		normalized[k] = v
	}
	set, args := buildSetClause(normalized)
	args = append(args, formatTime(time.Now().UTC()), id)
	_, err := q.ExecContext(ctx, fmt.Sprintf("UPDATE work_items SET %s, updated_at = ? WHERE id = ?", set), args...)
	if err != nil {
		return classifyError("store.UpdateWorkItem", err)
	}
	return nil
}

func softDeleteWorkItem(ctx context.Context, q querier, id int64) error {
	now := formatTime(time.Now().UTC())
	_, err := q.ExecContext(ctx, "UPDATE work_items SET deleted_at = ?, updated_at = ? WHERE id = ?", now, now, id)
	if err != nil {
		return classifyError("store.SoftDeleteWorkItem", err)
	}
	return nil
}

func listWorkItems(ctx context.Context, q querier, filter store.WorkItemFilter) ([]*types.WorkItem, error) {
	clauses := []string{"deleted_at IS NULL"}
	var args []any
	if filter.ProjectID != nil {
		clauses = append(clauses, "project_id = ?")
		args = append(args, *filter.ProjectID)
	}
	if filter.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.ParentID != nil {
		clauses = append(clauses, "parent_id = ?")
		args = append(args, *filter.ParentID)
	}
	if filter.TaskType != nil {
		clauses = append(clauses, "task_type = ?")
		args = append(args, string(*filter.TaskType))
	}
	if filter.Type != nil {
		clauses = append(clauses, "type = ?")
		args = append(args, string(*filter.Type))
	}
	order := "created_at ASC"
	if filter.OrderByPriority {
		order = "priority DESC, created_at ASC"
	}
	query := "SELECT " + workItemColumns + " FROM work_items WHERE " + strings.Join(clauses, " AND ") + " ORDER BY " + order
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError("store.ListWorkItems", err)
	}
	defer rows.Close()
	var out []*types.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func findByIdempotencyKey(ctx context.Context, q querier, key string) (*types.WorkItem, error) {
	row := q.QueryRowContext(ctx, "SELECT "+workItemColumns+" FROM work_items WHERE idempotency_key = ? AND deleted_at IS NULL", key)
	w, err := scanWorkItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classifyError("store.FindByIdempotencyKey", err)
	}
	return w, nil
}

// listOrphans surfaces WorkItems whose parent_id references a
// soft-deleted or missing parent.
func listOrphans(ctx context.Context, q querier, projectID int64) ([]*types.WorkItem, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+workItemColumns+` FROM work_items w
		WHERE w.project_id = ? AND w.deleted_at IS NULL AND w.parent_id IS NOT NULL
		AND NOT EXISTS (SELECT 1 FROM work_items p WHERE p.id = w.parent_id AND p.deleted_at IS NULL)`, projectID)
	if err != nil {
		return nil, classifyError("store.ListOrphans", err)
	}
	defer rows.Close()
	var out []*types.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) CreateWorkItem(ctx context.Context, w *types.WorkItem) error { return createWorkItem(ctx, s.db, w) }
func (s *Store) GetWorkItem(ctx context.Context, id int64) (*types.WorkItem, error) {
	return getWorkItem(ctx, s.db, id)
}
func (s *Store) UpdateWorkItem(ctx context.Context, id int64, updates map[string]any) error {
	return updateWorkItem(ctx, s.db, id, updates)
}
func (s *Store) ListWorkItems(ctx context.Context, filter store.WorkItemFilter) ([]*types.WorkItem, error) {
	return listWorkItems(ctx, s.db, filter)
}
func (s *Store) SoftDeleteWorkItem(ctx context.Context, id int64) error {
	return softDeleteWorkItem(ctx, s.db, id)
}
func (s *Store) FindByIdempotencyKey(ctx context.Context, key string) (*types.WorkItem, error) {
	return findByIdempotencyKey(ctx, s.db, key)
}
func (s *Store) ListOrphans(ctx context.Context, projectID int64) ([]*types.WorkItem, error) {
	return listOrphans(ctx, s.db, projectID)
}

func (t *storeTx) CreateWorkItem(ctx context.Context, w *types.WorkItem) error { return createWorkItem(ctx, t.q, w) }
func (t *storeTx) GetWorkItem(ctx context.Context, id int64) (*types.WorkItem, error) {
	return getWorkItem(ctx, t.q, id)
}
func (t *storeTx) UpdateWorkItem(ctx context.Context, id int64, updates map[string]any) error {
	return updateWorkItem(ctx, t.q, id, updates)
}
func (t *storeTx) ListWorkItems(ctx context.Context, filter store.WorkItemFilter) ([]*types.WorkItem, error) {
	return listWorkItems(ctx, t.q, filter)
}
func (t *storeTx) SoftDeleteWorkItem(ctx context.Context, id int64) error {
	return softDeleteWorkItem(ctx, t.q, id)
}
func (t *storeTx) FindByIdempotencyKey(ctx context.Context, key string) (*types.WorkItem, error) {
	return findByIdempotencyKey(ctx, t.q, key)
}
func (t *storeTx) ListOrphans(ctx context.Context, projectID int64) ([]*types.WorkItem, error) {
	return listOrphans(ctx, t.q, projectID)
}
