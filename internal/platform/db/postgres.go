package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolSettings tunes the connection pool beyond what the DSN carries. Zero
// values keep the pgxpool defaults.
type PoolSettings struct {
	MaxConns        int32
	ConnMaxLifetime time.Duration
}

// New creates a new PostgreSQL connection pool.
func New(ctx context.Context, dsn string, settings PoolSettings) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}
	if settings.MaxConns > 0 {
		config.MaxConns = settings.MaxConns
	}
	if settings.ConnMaxLifetime > 0 {
		config.MaxConnLifetime = settings.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}

	return pool, nil
}
