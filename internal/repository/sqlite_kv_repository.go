package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteKVRepository is the default device-local store.
type SQLiteKVRepository struct {
	db *sql.DB
}

// NewSQLiteKVRepository creates a new SQLiteKVRepository over an opened handle
// (see database.NewSQLiteDB).
func NewSQLiteKVRepository(db *sql.DB) *SQLiteKVRepository {
	return &SQLiteKVRepository{db: db}
}

// GetItem reads a value by key.
func (r *SQLiteKVRepository) GetItem(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("select kv: %w", err)
	}
	return value, nil
}

// SetItem UPSERTs the value.
func (r *SQLiteKVRepository) SetItem(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO kv_store (key, value, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert kv: %w", err)
	}
	return nil
}

// RemoveItem deletes the key.
func (r *SQLiteKVRepository) RemoveItem(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete kv: %w", err)
	}
	return nil
}
