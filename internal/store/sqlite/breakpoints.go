package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

func createBreakpoint(ctx context.Context, q querier, b *types.Breakpoint) error {
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	res, err := q.ExecContext(ctx,
		`INSERT INTO breakpoints (task_id, reason, resolved_at, resolution_note, disposition, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?)`,
		b.TaskID, b.Reason, nullableTime(b.ResolvedAt), b.ResolutionNote, string(b.Disposition),
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	if err != nil {
		return classifyError("store.CreateBreakpoint", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return classifyError("store.CreateBreakpoint", err)
	}
	b.ID = id
	return nil
}

const breakpointColumns = `id, task_id, reason, resolved_at, resolution_note, disposition, created_at, updated_at, deleted_at`

func scanBreakpoint(s interface{ Scan(dest ...any) error }) (*types.Breakpoint, error) {
	var b types.Breakpoint
	var disposition, createdAt, updatedAt string
	var resolvedAt, deletedAt sql.NullString
	if err := s.Scan(&b.ID, &b.TaskID, &b.Reason, &resolvedAt, &b.ResolutionNote, &disposition, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}
	b.Disposition = types.BreakpointDisposition(disposition)
	b.ResolvedAt = parseNullTime(resolvedAt)
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	b.DeletedAt = parseNullTime(deletedAt)
	return &b, nil
}

func getBreakpoint(ctx context.Context, q querier, id int64) (*types.Breakpoint, error) {
	row := q.QueryRowContext(ctx, "SELECT "+breakpointColumns+" FROM breakpoints WHERE id = ?", id)
	b, err := scanBreakpoint(row)
	if err == sql.ErrNoRows {
		return nil, classifyError("store.GetBreakpoint", sql.ErrNoRows)
	}
	if err != nil {
		return nil, classifyError("store.GetBreakpoint", err)
	}
	return b, nil
}

func resolveBreakpoint(ctx context.Context, q querier, id int64, note string, disposition types.BreakpointDisposition, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE breakpoints SET resolved_at = ?, resolution_note = ?, disposition = ?, updated_at = ? WHERE id = ?`,
		formatTime(at), note, string(disposition), formatTime(at), id)
	if err != nil {
		return classifyError("store.ResolveBreakpoint", err)
	}
	return nil
}

func unresolvedForTask(ctx context.Context, q querier, taskID int64) (*types.Breakpoint, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+breakpointColumns+" FROM breakpoints WHERE task_id = ? AND resolved_at IS NULL ORDER BY created_at DESC LIMIT 1", taskID)
	b, err := scanBreakpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classifyError("store.UnresolvedForTask", err)
	}
	return b, nil
}

func (s *Store) CreateBreakpoint(ctx context.Context, b *types.Breakpoint) error { return createBreakpoint(ctx, s.db, b) }
func (s *Store) GetBreakpoint(ctx context.Context, id int64) (*types.Breakpoint, error) {
	return getBreakpoint(ctx, s.db, id)
}
func (s *Store) ResolveBreakpoint(ctx context.Context, id int64, note string, disposition types.BreakpointDisposition, at time.Time) error {
	return resolveBreakpoint(ctx, s.db, id, note, disposition, at)
}
func (s *Store) UnresolvedForTask(ctx context.Context, taskID int64) (*types.Breakpoint, error) {
	return unresolvedForTask(ctx, s.db, taskID)
}

func (t *storeTx) CreateBreakpoint(ctx context.Context, b *types.Breakpoint) error { return createBreakpoint(ctx, t.q, b) }
func (t *storeTx) GetBreakpoint(ctx context.Context, id int64) (*types.Breakpoint, error) {
	return getBreakpoint(ctx, t.q, id)
}
func (t *storeTx) ResolveBreakpoint(ctx context.Context, id int64, note string, disposition types.BreakpointDisposition, at time.Time) error {
	return resolveBreakpoint(ctx, t.q, id, note, disposition, at)
}
func (t *storeTx) UnresolvedForTask(ctx context.Context, taskID int64) (*types.Breakpoint, error) {
	return unresolvedForTask(ctx, t.q, taskID)
}
