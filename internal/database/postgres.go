package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizdesk/internal/config"
)

// ErrSchemaMissing means the kv_store table has not been migrated yet.
var ErrSchemaMissing = errors.New("kv_store table missing, run: go run ./cmd/migrate up")

const connectTimeout = 5 * time.Second

// NewPostgresPool opens the snapshot store pool and checks that the kv_store
// table exists. The table is created by cmd/migrate.
func NewPostgresPool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxDBConns > 0 {
		poolCfg.MaxConns = cfg.MaxDBConns
	}
	poolCfg.ConnConfig.ConnectTimeout = connectTimeout
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "quizdesk"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	var table *string
	if err := pool.QueryRow(checkCtx, `SELECT to_regclass('kv_store')::text`).Scan(&table); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if table == nil {
		pool.Close()
		return nil, ErrSchemaMissing
	}

	log.Info().
		Str("host", poolCfg.ConnConfig.Host).
		Str("database", poolCfg.ConnConfig.Database).
		Int32("max_conns", poolCfg.MaxConns).
		Msg("PostgreSQL snapshot store connected")

	return pool, nil
}
