package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the PostgreSQL store.
var Migrations = migrate.NewGroup("hookline")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_hl_events",
			Version: "20250601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS hl_events (
    id              TEXT PRIMARY KEY,
    idempotency_key TEXT NOT NULL UNIQUE,
    event_type      TEXT NOT NULL,
    payload         JSONB NOT NULL,
    received_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_hl_events_type ON hl_events (event_type);
CREATE INDEX IF NOT EXISTS idx_hl_events_received ON hl_events (received_at DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS hl_events`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_hl_subscriptions",
			Version: "20250601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS hl_subscriptions (
    id          TEXT PRIMARY KEY,
    event_type  TEXT NOT NULL,
    target_url  TEXT NOT NULL,
    secret      TEXT NOT NULL,
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_hl_subscriptions_type ON hl_subscriptions (event_type) WHERE is_active;
CREATE UNIQUE INDEX IF NOT EXISTS idx_hl_subscriptions_pair ON hl_subscriptions (event_type, target_url) WHERE is_active;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS hl_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_hl_delivery_logs",
			Version: "20250601000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS hl_delivery_logs (
    id                   TEXT PRIMARY KEY,
    event_id             TEXT NOT NULL,
    subscription_id      TEXT NOT NULL,
    status               TEXT NOT NULL DEFAULT 'pending',
    attempt_count        INT NOT NULL DEFAULT 1,
    attempted_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    response_status_code INT,
    response_body        TEXT NOT NULL DEFAULT '',
    error_message        TEXT NOT NULL DEFAULT '',
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_hl_delivery_logs_event_sub ON hl_delivery_logs (event_id, subscription_id);
CREATE INDEX IF NOT EXISTS idx_hl_delivery_logs_subscription ON hl_delivery_logs (subscription_id);
CREATE INDEX IF NOT EXISTS idx_hl_delivery_logs_status ON hl_delivery_logs (status);
CREATE INDEX IF NOT EXISTS idx_hl_delivery_logs_attempted ON hl_delivery_logs (attempted_at DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS hl_delivery_logs`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_hl_event_schemas",
			Version: "20250601000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS hl_event_schemas (
    event_type  TEXT PRIMARY KEY,
    schema      JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS hl_event_schemas`)
				return err
			},
		},
	)
}
