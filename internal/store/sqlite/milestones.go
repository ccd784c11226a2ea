package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

func createMilestone(ctx context.Context, q querier, m *types.Milestone) error {
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.Status == "" {
		m.Status = types.MilestonePending
	}
	epics, err := json.Marshal(m.RequiredEpicIDs)
	if err != nil {
		return fmt.Errorf("marshal required_epic_ids: %w", err)
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO milestones (project_id, name, version, required_epic_ids, status, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?)`,
		m.ProjectID, m.Name, m.Version, string(epics), string(m.Status), formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	if err != nil {
		return classifyError("store.CreateMilestone", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return classifyError("store.CreateMilestone", err)
	}
	m.ID = id
	return nil
}

const milestoneColumns = `id, project_id, name, version, required_epic_ids, status, created_at, updated_at, deleted_at`

func scanMilestone(s interface{ Scan(dest ...any) error }) (*types.Milestone, error) {
	var m types.Milestone
	var epicsJSON, status, createdAt, updatedAt string
	var deletedAt sql.NullString
	if err := s.Scan(&m.ID, &m.ProjectID, &m.Name, &m.Version, &epicsJSON, &status, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}
	m.Status = types.MilestoneStatus(status)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	m.DeletedAt = parseNullTime(deletedAt)
	_ = json.Unmarshal([]byte(epicsJSON), &m.RequiredEpicIDs)
	return &m, nil
}

func getMilestone(ctx context.Context, q querier, id int64) (*types.Milestone, error) {
	row := q.QueryRowContext(ctx, "SELECT "+milestoneColumns+" FROM milestones WHERE id = ? AND deleted_at IS NULL", id)
	m, err := scanMilestone(row)
	if err == sql.ErrNoRows {
		return nil, classifyError("store.GetMilestone", sql.ErrNoRows)
	}
	if err != nil {
		return nil, classifyError("store.GetMilestone", err)
	}
	return m, nil
}

func updateMilestone(ctx context.Context, q querier, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	normalized := make(map[string]any, len(updates))
	for k, v := range updates {
		if k == "required_epic_ids" {
			b, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("marshal required_epic_ids update: %w", err)
			}
			normalized[k] = string(b)
			continue
		}
		normalized[k] = v
	}
	set, args := buildSetClause(normalized)
	args = append(args, formatTime(time.Now().UTC()), id)
	_, err := q.ExecContext(ctx, fmt.Sprintf("UPDATE milestones SET %s, updated_at = ? WHERE id = ?", set), args...)
	if err != nil {
		return classifyError("store.UpdateMilestone", err)
	}
	return nil
}

func listMilestones(ctx context.Context, q querier, projectID int64) ([]*types.Milestone, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+milestoneColumns+" FROM milestones WHERE project_id = ? AND deleted_at IS NULL ORDER BY created_at ASC", projectID)
	if err != nil {
		return nil, classifyError("store.ListMilestones", err)
	}
	defer rows.Close()
	var out []*types.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) CreateMilestone(ctx context.Context, m *types.Milestone) error { return createMilestone(ctx, s.db, m) }
func (s *Store) GetMilestone(ctx context.Context, id int64) (*types.Milestone, error) {
	return getMilestone(ctx, s.db, id)
}
func (s *Store) UpdateMilestone(ctx context.Context, id int64, updates map[string]any) error {
	return updateMilestone(ctx, s.db, id, updates)
}
func (s *Store) ListMilestones(ctx context.Context, projectID int64) ([]*types.Milestone, error) {
	return listMilestones(ctx, s.db, projectID)
}

func (t *storeTx) CreateMilestone(ctx context.Context, m *types.Milestone) error { return createMilestone(ctx, t.q, m) }
func (t *storeTx) GetMilestone(ctx context.Context, id int64) (*types.Milestone, error) {
	return getMilestone(ctx, t.q, id)
}
func (t *storeTx) UpdateMilestone(ctx context.Context, id int64, updates map[string]any) error {
	return updateMilestone(ctx, t.q, id, updates)
}
func (t *storeTx) ListMilestones(ctx context.Context, projectID int64) ([]*types.Milestone, error) {
	return listMilestones(ctx, t.q, projectID)
}
