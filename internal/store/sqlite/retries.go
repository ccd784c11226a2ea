package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

func createRetryRecord(ctx context.Context, q querier, r *types.RetryRecord) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	res, err := q.ExecContext(ctx,
		`INSERT INTO retry_records (task_id, attempt_index, scheduled_at, delay_ns, outcome, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?)`,
		r.TaskID, r.AttemptIndex, formatTime(r.ScheduledAt), int64(r.Delay), r.Outcome,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return classifyError("store.CreateRetryRecord", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return classifyError("store.CreateRetryRecord", err)
	}
	r.ID = id
	return nil
}

func listRetryRecords(ctx context.Context, q querier, taskID int64) ([]*types.RetryRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, task_id, attempt_index, scheduled_at, delay_ns, outcome, created_at, updated_at, deleted_at
		 FROM retry_records WHERE task_id = ? AND deleted_at IS NULL ORDER BY attempt_index ASC`, taskID)
	if err != nil {
		return nil, classifyError("store.ListRetryRecords", err)
	}
	defer rows.Close()
	var out []*types.RetryRecord
	for rows.Next() {
		var r types.RetryRecord
		var scheduledAt, createdAt, updatedAt string
		var deletedAt sql.NullString
		var delayNs int64
		if err := rows.Scan(&r.ID, &r.TaskID, &r.AttemptIndex, &scheduledAt, &delayNs, &r.Outcome, &createdAt, &updatedAt, &deletedAt); err != nil {
			return nil, err
		}
		r.ScheduledAt = parseTime(scheduledAt)
		r.Delay = time.Duration(delayNs)
		r.CreatedAt = parseTime(createdAt)
		r.UpdatedAt = parseTime(updatedAt)
		r.DeletedAt = parseNullTime(deletedAt)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *Store) CreateRetryRecord(ctx context.Context, r *types.RetryRecord) error { return createRetryRecord(ctx, s.db, r) }
func (s *Store) ListRetryRecords(ctx context.Context, taskID int64) ([]*types.RetryRecord, error) {
	return listRetryRecords(ctx, s.db, taskID)
}

func (t *storeTx) CreateRetryRecord(ctx context.Context, r *types.RetryRecord) error { return createRetryRecord(ctx, t.q, r) }
func (t *storeTx) ListRetryRecords(ctx context.Context, taskID int64) ([]*types.RetryRecord, error) {
	return listRetryRecords(ctx, t.q, taskID)
}
