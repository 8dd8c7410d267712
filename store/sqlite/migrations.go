package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the capacity store (SQLite).
//
// capacity_quotas carries no CHECK on quota_limit: a transfer is a single
// upsert whose candidate row for the source holds the negative delta, and
// SQLite evaluates CHECK constraints before resolving the conflict.
var Migrations = migrate.NewGroup("capacity")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_capacity_resources",
			Version: "20260301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS capacity_resources (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    unit        TEXT NOT NULL,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS capacity_resources`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_capacity_quotas",
			Version: "20260301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS capacity_quotas (
    id          TEXT PRIMARY KEY,
    product_id  TEXT NOT NULL,
    resource_id TEXT NOT NULL,
    quota_limit INTEGER NOT NULL DEFAULT 0,
    quota_usage INTEGER NOT NULL DEFAULT 0,
    revision    INTEGER NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_capacity_quotas_product_resource ON capacity_quotas (product_id, resource_id);
CREATE INDEX IF NOT EXISTS idx_capacity_quotas_resource ON capacity_quotas (resource_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS capacity_quotas`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_capacity_usage_samples",
			Version: "20260301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS capacity_usage_samples (
    id           TEXT PRIMARY KEY,
    product_id   TEXT NOT NULL,
    resource_id  TEXT NOT NULL,
    sampled_at   DATETIME NOT NULL,
    sample_usage INTEGER NOT NULL DEFAULT 0,
    sample_limit INTEGER NOT NULL DEFAULT 0,
    sample_free  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_capacity_usage_samples_product_time ON capacity_usage_samples (product_id, sampled_at, resource_id, id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS capacity_usage_samples`)
				return err
			},
		},
	)
}
