package repository

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizdesk/internal/config"
	"github.com/stemsi/quizdesk/internal/database"
)

// RedisKeyPrefix namespaces quizdesk keys in a shared Redis.
const RedisKeyPrefix = "quizdesk:"

// OpenStore connects the key-value store selected by cfg.StoreDriver. The
// returned func releases the underlying connection.
func OpenStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (KeyValueStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		db, err := database.NewSQLiteDB(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, nil, err
		}
		return NewSQLiteKVRepository(db), func() { _ = db.Close() }, nil

	case config.StoreDriverRedis:
		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisKVRepository(rdb, RedisKeyPrefix), func() { _ = rdb.Close() }, nil

	case config.StoreDriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return NewPostgresKVRepository(pool), pool.Close, nil

	case config.StoreDriverMemory:
		log.Warn().Msg("Using in-memory store; progress is lost on exit")
		return NewMemoryKVRepository(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
