package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// Schema holds host records and the four fields every attachment keeps on
// its record, one row per attachment.
const Schema = `
CREATE TABLE IF NOT EXISTS host_records (
	record_type TEXT NOT NULL,
	record_id TEXT NOT NULL,
	attributes JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (record_type, record_id)
);
CREATE TABLE IF NOT EXISTS attachment_fields (
	record_type TEXT NOT NULL,
	record_id TEXT NOT NULL,
	attachment TEXT NOT NULL,
	status INTEGER,
	content_type TEXT,
	file_size BIGINT,
	updated_at TIMESTAMPTZ,
	PRIMARY KEY (record_type, record_id, attachment),
	FOREIGN KEY (record_type, record_id) REFERENCES host_records(record_type, record_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_attachment_fields_status ON attachment_fields(status);`

// EnsureSchema creates the tables if needed so a fresh database can be used
// without a separate migration step.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
