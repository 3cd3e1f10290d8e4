package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv_store (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// NewSQLiteDB opens the device-local SQLite file and ensures the kv_store table exists.
func NewSQLiteDB(ctx context.Context, path string, log zerolog.Logger) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		path = "quizdesk.db"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single writer keeps SQLite from returning SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA synchronous = NORMAL;`,
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite snapshot store opened")
	return db, nil
}
