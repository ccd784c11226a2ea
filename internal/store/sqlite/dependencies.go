package sqlite

import (
	"context"
	"time"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

func addDependency(ctx context.Context, q querier, e *types.DependencyEdge) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx,
		`INSERT OR REPLACE INTO dependency_edges (project_id, dependent_id, depends_on_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		e.ProjectID, e.DependentID, e.DependsOnID, formatTime(e.CreatedAt))
	if err != nil {
		return classifyError("store.AddDependency", err)
	}
	return nil
}

func removeDependency(ctx context.Context, q querier, dependentID, dependsOnID int64) error {
	_, err := q.ExecContext(ctx,
		"DELETE FROM dependency_edges WHERE dependent_id = ? AND depends_on_id = ?", dependentID, dependsOnID)
	if err != nil {
		return classifyError("store.RemoveDependency", err)
	}
	return nil
}

func listDependencies(ctx context.Context, q querier, workItemID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, "SELECT depends_on_id FROM dependency_edges WHERE dependent_id = ?", workItemID)
	if err != nil {
		return nil, classifyError("store.ListDependencies", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func listDependents(ctx context.Context, q querier, workItemID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, "SELECT dependent_id FROM dependency_edges WHERE depends_on_id = ?", workItemID)
	if err != nil {
		return nil, classifyError("store.ListDependents", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func listProjectEdges(ctx context.Context, q querier, projectID int64) ([]*types.DependencyEdge, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT project_id, dependent_id, depends_on_id, created_at FROM dependency_edges
		 WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, classifyError("store.ListProjectEdges", err)
	}
	defer rows.Close()
	var out []*types.DependencyEdge
	for rows.Next() {
		var e types.DependencyEdge
		var createdAt string
		if err := rows.Scan(&e.ProjectID, &e.DependentID, &e.DependsOnID, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Store) AddDependency(ctx context.Context, e *types.DependencyEdge) error { return addDependency(ctx, s.db, e) }
func (s *Store) RemoveDependency(ctx context.Context, dependentID, dependsOnID int64) error {
	return removeDependency(ctx, s.db, dependentID, dependsOnID)
}
func (s *Store) ListDependencies(ctx context.Context, workItemID int64) ([]int64, error) {
	return listDependencies(ctx, s.db, workItemID)
}
func (s *Store) ListDependents(ctx context.Context, workItemID int64) ([]int64, error) {
	return listDependents(ctx, s.db, workItemID)
}
func (s *Store) ListProjectEdges(ctx context.Context, projectID int64) ([]*types.DependencyEdge, error) {
	return listProjectEdges(ctx, s.db, projectID)
}

func (t *storeTx) AddDependency(ctx context.Context, e *types.DependencyEdge) error { return addDependency(ctx, t.q, e) }
func (t *storeTx) RemoveDependency(ctx context.Context, dependentID, dependsOnID int64) error {
	return removeDependency(ctx, t.q, dependentID, dependsOnID)
}
func (t *storeTx) ListDependencies(ctx context.Context, workItemID int64) ([]int64, error) {
	return listDependencies(ctx, t.q, workItemID)
}
func (t *storeTx) ListDependents(ctx context.Context, workItemID int64) ([]int64, error) {
	return listDependents(ctx, t.q, workItemID)
}
func (t *storeTx) ListProjectEdges(ctx context.Context, projectID int64) ([]*types.DependencyEdge, error) {
	return listProjectEdges(ctx, t.q, projectID)
}
