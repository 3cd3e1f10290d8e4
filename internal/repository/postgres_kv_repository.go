package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresKVRepository stores snapshots in the kv_store table.
type PostgresKVRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresKVRepository creates a new PostgresKVRepository.
func NewPostgresKVRepository(pool *pgxpool.Pool) *PostgresKVRepository {
	return &PostgresKVRepository{pool: pool}
}

// GetItem reads a value by key.
func (r *PostgresKVRepository) GetItem(ctx context.Context, key string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx,
		`SELECT value FROM kv_store WHERE key = $1`, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("select kv: %w", err)
	}
	return value, nil
}

// SetItem UPSERTs the value, replacing any previous snapshot in full.
func (r *PostgresKVRepository) SetItem(ctx context.Context, key, value string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO kv_store (key, value)
		 VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE
		 SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("upsert kv: %w", err)
	}
	return nil
}

// RemoveItem deletes the key.
func (r *PostgresKVRepository) RemoveItem(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM kv_store WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete kv: %w", err)
	}
	return nil
}
