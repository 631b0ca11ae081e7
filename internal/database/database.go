package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/config"
)

// DB wraps the database connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection
func New(cfg config.DatabaseConfig) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d pool_min_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
		cfg.MaxConns, cfg.MinConns,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Health checks if the database is healthy
func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS channels (
	id                 TEXT PRIMARY KEY,
	tenant_id          TEXT NOT NULL,
	name               TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL,
	instance_id        TEXT NOT NULL DEFAULT '',
	instance_type      TEXT NOT NULL DEFAULT '',
	endpoints          JSONB NOT NULL DEFAULT '{}',
	hls_settings       JSONB NOT NULL DEFAULT '{}',
	is_mock            BOOLEAN NOT NULL DEFAULT FALSE,
	transcoding_status TEXT NOT NULL DEFAULT 'unknown',
	last_checked_at    TIMESTAMPTZ,
	terminated_at      TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

ALTER TABLE channels ADD COLUMN IF NOT EXISTS instance_type TEXT NOT NULL DEFAULT '';
ALTER TABLE channels ADD COLUMN IF NOT EXISTS terminated_at TIMESTAMPTZ;

CREATE INDEX IF NOT EXISTS idx_channels_tenant_id ON channels (tenant_id);
CREATE INDEX IF NOT EXISTS idx_channels_status ON channels (status);

CREATE TABLE IF NOT EXISTS usage_records (
	channel_id           TEXT PRIMARY KEY,
	viewer_count         INTEGER NOT NULL DEFAULT 0,
	peak_viewers         INTEGER NOT NULL DEFAULT 0,
	total_views          BIGINT NOT NULL DEFAULT 0,
	uptime               BIGINT NOT NULL DEFAULT 0,
	geo_distribution     JSONB NOT NULL DEFAULT '{}',
	device_distribution  JSONB NOT NULL DEFAULT '{}',
	quality_distribution JSONB NOT NULL DEFAULT '{}',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate creates the channel tables when they do not exist. There is no
// foreign key from usage_records to channels: the two are deleted independently.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
