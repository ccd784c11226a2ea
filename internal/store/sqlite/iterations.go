package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

func createIteration(ctx context.Context, q querier, it *types.Iteration) error {
	now := time.Now().UTC()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	it.UpdatedAt = now
	if it.StartedAt.IsZero() {
		it.StartedAt = now
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO iterations (task_id, session_id, idx, prompt_digest, response_digest,
		 tok_input, tok_cache_read, tok_cache_creation, tok_output, validation, quality,
		 confidence, decision, started_at, ended_at, degraded, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		it.TaskID, it.SessionID, it.Index, it.PromptDigest, it.ResponseDigest,
		it.Tokens.Input, it.Tokens.CacheRead, it.Tokens.CacheCreation, it.Tokens.Output,
		string(it.Validation), it.Quality, it.Confidence, string(it.Decision),
		formatTime(it.StartedAt), nullableTime(it.EndedAt), boolToInt(it.Degraded),
		formatTime(it.CreatedAt), formatTime(it.UpdatedAt))
	if err != nil {
		return classifyError("store.CreateIteration", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return classifyError("store.CreateIteration", err)
	}
	it.ID = id
	return nil
}

const iterationColumns = `id, task_id, session_id, idx, prompt_digest, response_digest, tok_input,
	tok_cache_read, tok_cache_creation, tok_output, validation, quality, confidence, decision,
	started_at, ended_at, degraded, created_at, updated_at, deleted_at`

func scanIteration(s interface{ Scan(dest ...any) error }) (*types.Iteration, error) {
	var it types.Iteration
	var validation, decision string
	var startedAt, createdAt, updatedAt string
	var endedAt, deletedAt sql.NullString
	var degraded int
	if err := s.Scan(&it.ID, &it.TaskID, &it.SessionID, &it.Index, &it.PromptDigest, &it.ResponseDigest,
		&it.Tokens.Input, &it.Tokens.CacheRead, &it.Tokens.CacheCreation, &it.Tokens.Output,
		&validation, &it.Quality, &it.Confidence, &decision, &startedAt, &endedAt, &degraded,
		&createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}
	it.Validation = types.ValidationResult(validation)
	it.Decision = types.Decision(decision)
	it.StartedAt = parseTime(startedAt)
	it.EndedAt = parseNullTime(endedAt)
	it.CreatedAt = parseTime(createdAt)
	it.UpdatedAt = parseTime(updatedAt)
	it.DeletedAt = parseNullTime(deletedAt)
	it.Degraded = degraded != 0
	return &it, nil
}

func updateIteration(ctx context.Context, q querier, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	set, args := buildSetClause(updates)
	args = append(args, formatTime(time.Now().UTC()), id)
	_, err := q.ExecContext(ctx, fmt.Sprintf("UPDATE iterations SET %s, updated_at = ? WHERE id = ?", set), args...)
	if err != nil {
		return classifyError("store.UpdateIteration", err)
	}
	return nil
}

func listIterations(ctx context.Context, q querier, taskID int64) ([]*types.Iteration, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+iterationColumns+" FROM iterations WHERE task_id = ? AND deleted_at IS NULL ORDER BY idx ASC", taskID)
	if err != nil {
		return nil, classifyError("store.ListIterations", err)
	}
	defer rows.Close()
	var out []*types.Iteration
	for rows.Next() {
		it, err := scanIteration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func lastIteration(ctx context.Context, q querier, taskID int64) (*types.Iteration, error) {
	row := q.QueryRowContext(ctx, "SELECT "+iterationColumns+" FROM iterations WHERE task_id = ? AND deleted_at IS NULL ORDER BY idx DESC LIMIT 1", taskID)
	it, err := scanIteration(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classifyError("store.LastIteration", err)
	}
	return it, nil
}

func (s *Store) CreateIteration(ctx context.Context, it *types.Iteration) error { return createIteration(ctx, s.db, it) }
func (s *Store) UpdateIteration(ctx context.Context, id int64, updates map[string]any) error {
	return updateIteration(ctx, s.db, id, updates)
}
func (s *Store) ListIterations(ctx context.Context, taskID int64) ([]*types.Iteration, error) {
	return listIterations(ctx, s.db, taskID)
}
func (s *Store) LastIteration(ctx context.Context, taskID int64) (*types.Iteration, error) {
	return lastIteration(ctx, s.db, taskID)
}

func (t *storeTx) CreateIteration(ctx context.Context, it *types.Iteration) error { return createIteration(ctx, t.q, it) }
func (t *storeTx) UpdateIteration(ctx context.Context, id int64, updates map[string]any) error {
	return updateIteration(ctx, t.q, id, updates)
}
func (t *storeTx) ListIterations(ctx context.Context, taskID int64) ([]*types.Iteration, error) {
	return listIterations(ctx, t.q, taskID)
}
func (t *storeTx) LastIteration(ctx context.Context, taskID int64) (*types.Iteration, error) {
	return lastIteration(ctx, t.q, taskID)
}
