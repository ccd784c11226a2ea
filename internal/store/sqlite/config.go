package sqlite

import (
	"context"
	"database/sql"
)

func setConfig(ctx context.Context, q querier, key, value string) error {
	_, err := q.ExecContext(ctx, `INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return classifyError("store.SetConfig", err)
	}
	return nil
}

func getConfig(ctx context.Context, q querier, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", classifyError("store.GetConfig", err)
	}
	return value, nil
}

func (s *Store) SetConfig(ctx context.Context, key, value string) error { return setConfig(ctx, s.db, key, value) }
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) { return getConfig(ctx, s.db, key) }

func (t *storeTx) SetConfig(ctx context.Context, key, value string) error { return setConfig(ctx, t.q, key, value) }
func (t *storeTx) GetConfig(ctx context.Context, key string) (string, error) { return getConfig(ctx, t.q, key) }
