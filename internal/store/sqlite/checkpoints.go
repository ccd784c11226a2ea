package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

// appendCheckpoint appends a checkpoint row. When the caller leaves
// Index at zero, the next index is computed from the current max within
// the same call; a non-zero Index from the caller is stored as given.
func appendCheckpoint(ctx context.Context, q querier, c *types.Checkpoint) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Index == 0 {
		var maxIdx sql.NullInt64
		if err := q.QueryRowContext(ctx, "SELECT MAX(idx) FROM checkpoints WHERE session_id = ?", c.SessionID).Scan(&maxIdx); err != nil {
			return classifyError("store.AppendCheckpoint", err)
		}
		c.Index = int(maxIdx.Int64) + 1
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO checkpoints (session_id, idx, snapshot, created_at, updated_at) VALUES (?,?,?,?,?)`,
		c.SessionID, c.Index, c.Snapshot, formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return classifyError("store.AppendCheckpoint", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return classifyError("store.AppendCheckpoint", err)
	}
	c.ID = id
	return nil
}

func listCheckpoints(ctx context.Context, q querier, sessionID string) ([]*types.Checkpoint, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, session_id, idx, snapshot, created_at, updated_at, deleted_at FROM checkpoints
		 WHERE session_id = ? AND deleted_at IS NULL ORDER BY idx ASC`, sessionID)
	if err != nil {
		return nil, classifyError("store.ListCheckpoints", err)
	}
	defer rows.Close()
	var out []*types.Checkpoint
	for rows.Next() {
		var c types.Checkpoint
		var createdAt, updatedAt string
		var deletedAt sql.NullString
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Index, &c.Snapshot, &createdAt, &updatedAt, &deletedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(createdAt)
		c.UpdatedAt = parseTime(updatedAt)
		c.DeletedAt = parseNullTime(deletedAt)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) AppendCheckpoint(ctx context.Context, c *types.Checkpoint) error { return appendCheckpoint(ctx, s.db, c) }
func (s *Store) ListCheckpoints(ctx context.Context, sessionID string) ([]*types.Checkpoint, error) {
	return listCheckpoints(ctx, s.db, sessionID)
}

func (t *storeTx) AppendCheckpoint(ctx context.Context, c *types.Checkpoint) error { return appendCheckpoint(ctx, t.q, c) }
func (t *storeTx) ListCheckpoints(ctx context.Context, sessionID string) ([]*types.Checkpoint, error) {
	return listCheckpoints(ctx, t.q, sessionID)
}
