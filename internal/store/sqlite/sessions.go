package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

func createSession(ctx context.Context, q querier, s *types.Session) error {
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	if s.Status == "" {
		s.Status = types.SessionActive
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO sessions (id, project_id, milestone_id, status, started_at, ended_at,
		 context_window_limit, cumulative_input, cumulative_cache_read, cumulative_cache_creation,
		 cumulative_output, summary, predecessor_id, successor_id, degraded, optimization_profile)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.ProjectID, s.MilestoneID, string(s.Status), formatTime(s.StartedAt), nullableTime(s.EndedAt),
		s.ContextWindowLimit, s.CumulativeTokens.Input, s.CumulativeTokens.CacheRead,
		s.CumulativeTokens.CacheCreation, s.CumulativeTokens.Output, s.Summary,
		s.PredecessorID, s.SuccessorID, boolToInt(s.Degraded), s.OptimizationProfile)
	if err != nil {
		return classifyError("store.CreateSession", err)
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

const sessionColumns = `id, project_id, milestone_id, status, started_at, ended_at, context_window_limit,
	cumulative_input, cumulative_cache_read, cumulative_cache_creation, cumulative_output,
	summary, predecessor_id, successor_id, degraded, optimization_profile`

func scanSession(s interface{ Scan(dest ...any) error }) (*types.Session, error) {
	var sess types.Session
	var milestoneID sql.NullInt64
	var status string
	var startedAt string
	var endedAt sql.NullString
	var degraded int
	if err := s.Scan(&sess.ID, &sess.ProjectID, &milestoneID, &status, &startedAt, &endedAt,
		&sess.ContextWindowLimit, &sess.CumulativeTokens.Input, &sess.CumulativeTokens.CacheRead,
		&sess.CumulativeTokens.CacheCreation, &sess.CumulativeTokens.Output, &sess.Summary,
		&sess.PredecessorID, &sess.SuccessorID, &degraded, &sess.OptimizationProfile); err != nil {
		return nil, err
	}
	sess.Status = types.SessionStatus(status)
	sess.StartedAt = parseTime(startedAt)
	sess.EndedAt = parseNullTime(endedAt)
	sess.Degraded = degraded != 0
	if milestoneID.Valid {
		sess.MilestoneID = &milestoneID.Int64
	}
	return &sess, nil
}

func getSession(ctx context.Context, q querier, id string) (*types.Session, error) {
	row := q.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, classifyError("store.GetSession", sql.ErrNoRows)
	}
	if err != nil {
		return nil, classifyError("store.GetSession", err)
	}
	return s, nil
}

func updateSession(ctx context.Context, q querier, id string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	set, args := buildSetClause(updates)
	args = append(args, id)
	_, err := q.ExecContext(ctx, fmt.Sprintf("UPDATE sessions SET %s WHERE id = ?", set), args...)
	if err != nil {
		return classifyError("store.UpdateSession", err)
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess *types.Session) error { return createSession(ctx, s.db, sess) }
func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	return getSession(ctx, s.db, id)
}
func (s *Store) UpdateSession(ctx context.Context, id string, updates map[string]any) error {
	return updateSession(ctx, s.db, id, updates)
}

func (t *storeTx) CreateSession(ctx context.Context, sess *types.Session) error { return createSession(ctx, t.q, sess) }
func (t *storeTx) GetSession(ctx context.Context, id string) (*types.Session, error) {
	return getSession(ctx, t.q, id)
}
func (t *storeTx) UpdateSession(ctx context.Context, id string, updates map[string]any) error {
	return updateSession(ctx, t.q, id, updates)
}
