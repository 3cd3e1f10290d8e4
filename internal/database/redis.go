package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizdesk/internal/config"
)

// NewRedisClient connects the snapshot store. Snapshots must outlive a Redis
// restart, so a server without AOF or RDB persistence is logged as a warning.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	// A save must never block a selection for long.
	opt.DialTimeout = 3 * time.Second
	opt.ReadTimeout = 2 * time.Second
	opt.WriteTimeout = 2 * time.Second

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if !persistent(ctx, rdb) {
		log.Warn().Str("addr", opt.Addr).Msg("Redis has no AOF or RDB persistence; saved progress is lost on restart")
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Msg("Redis snapshot store connected")

	return rdb, nil
}

// persistent reports whether AOF or RDB snapshots are enabled. Managed
// servers that forbid CONFIG are assumed persistent.
func persistent(ctx context.Context, rdb *redis.Client) bool {
	aof, err := rdb.ConfigGet(ctx, "appendonly").Result()
	if err != nil {
		return true
	}
	if aof["appendonly"] == "yes" {
		return true
	}
	save, err := rdb.ConfigGet(ctx, "save").Result()
	if err != nil {
		return true
	}
	return save["save"] != ""
}
