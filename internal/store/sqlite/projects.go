package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

func createProject(ctx context.Context, q querier, p *types.Project) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = types.ProjectActive
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO projects (name, description, working_directory, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, p.WorkingDir, string(p.Status), formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return classifyError("store.CreateProject", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return classifyError("store.CreateProject", err)
	}
	p.ID = id
	return nil
}

const projectColumns = `id, name, description, working_directory, status, created_at, updated_at, deleted_at`

func scanProject(s interface{ Scan(dest ...any) error }) (*types.Project, error) {
	var p types.Project
	var createdAt, updatedAt string
	var deletedAt sql.NullString
	var status string
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &p.WorkingDir, &status, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}
	p.Status = types.ProjectStatus(status)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	p.DeletedAt = parseNullTime(deletedAt)
	return &p, nil
}

func getProject(ctx context.Context, q querier, id int64) (*types.Project, error) {
	row := q.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ? AND deleted_at IS NULL", id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, classifyError("store.GetProject", sql.ErrNoRows)
	}
	if err != nil {
		return nil, classifyError("store.GetProject", err)
	}
	return p, nil
}

func updateProject(ctx context.Context, q querier, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	set, args := buildSetClause(updates)
	args = append(args, formatTime(time.Now().UTC()), id)
	_, err := q.ExecContext(ctx, fmt.Sprintf("UPDATE projects SET %s, updated_at = ? WHERE id = ?", set), args...)
	if err != nil {
		return classifyError("store.UpdateProject", err)
	}
	return nil
}

func listProjects(ctx context.Context, q querier) ([]*types.Project, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE deleted_at IS NULL ORDER BY created_at ASC")
	if err != nil {
		return nil, classifyError("store.ListProjects", err)
	}
	defer rows.Close()
	var out []*types.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// buildSetClause builds a deterministic "col = ?, col2 = ?" fragment
// and matching args from a field-name-keyed updates map. Field names
// are expected to already be snake_case column names.
func buildSetClause(updates map[string]any) (string, []any) {
	cols := make([]string, 0, len(updates))
	for k := range updates {
		cols = append(cols, k)
	}
	// Deterministic ordering keeps generated SQL stable across calls,
	// which matters for tests asserting on query shape.
	sortStrings(cols)
	args := make([]any, 0, len(updates))
	clauses := make([]string, 0, len(updates))
	for _, c := range cols {
		clauses = append(clauses, c+" = ?")
		args = append(args, normalizeValue(updates[c]))
	}
	out := ""
	for i, c := range clauses {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out, args
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case bool:
		return boolToInt(t)
	case time.Time:
		return formatTime(t)
	default:
		return v
	}
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}

func (s *Store) CreateProject(ctx context.Context, p *types.Project) error { return createProject(ctx, s.db, p) }
func (s *Store) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	return getProject(ctx, s.db, id)
}
func (s *Store) UpdateProject(ctx context.Context, id int64, updates map[string]any) error {
	return updateProject(ctx, s.db, id, updates)
}
func (s *Store) ListProjects(ctx context.Context) ([]*types.Project, error) { return listProjects(ctx, s.db) }

func (t *storeTx) CreateProject(ctx context.Context, p *types.Project) error { return createProject(ctx, t.q, p) }
func (t *storeTx) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	return getProject(ctx, t.q, id)
}
func (t *storeTx) UpdateProject(ctx context.Context, id int64, updates map[string]any) error {
	return updateProject(ctx, t.q, id, updates)
}
func (t *storeTx) ListProjects(ctx context.Context) ([]*types.Project, error) { return listProjects(ctx, t.q) }
