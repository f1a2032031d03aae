package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Bastion store (PostgreSQL).
var Migrations = migrate.NewGroup("bastion")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_principals",
			Version: "20260301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_principals (
    id              TEXT PRIMARY KEY,
    display_name    TEXT NOT NULL DEFAULT '',
    email           TEXT NOT NULL DEFAULT '',
    role            TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'active',
    department      TEXT NOT NULL DEFAULT '',
    metadata        JSONB NOT NULL DEFAULT '{}',
    version         BIGINT NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT bastion_principals_status_check CHECK (status IN ('active', 'suspended'))
);

CREATE INDEX IF NOT EXISTS idx_bastion_principals_role ON bastion_principals (role);
CREATE INDEX IF NOT EXISTS idx_bastion_principals_status ON bastion_principals (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_principals`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_audit_entries",
			Version: "20260301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_audit_entries (
    id              TEXT PRIMARY KEY,
    seq             BIGINT NOT NULL UNIQUE,
    actor_id        TEXT NOT NULL,
    target_id       TEXT NOT NULL DEFAULT '',
    action          TEXT NOT NULL,
    permission      TEXT NOT NULL DEFAULT '',
    outcome         TEXT NOT NULL,
    reason          TEXT NOT NULL DEFAULT '',
    old_role        TEXT NOT NULL DEFAULT '',
    new_role        TEXT NOT NULL DEFAULT '',
    old_status      TEXT NOT NULL DEFAULT '',
    new_status      TEXT NOT NULL DEFAULT '',
    source          TEXT NOT NULL DEFAULT '',
    metadata        JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL,
    prev_hash       TEXT NOT NULL,
    hash            TEXT NOT NULL,

    CONSTRAINT bastion_audit_outcome_check CHECK (outcome IN ('allowed', 'denied'))
);

CREATE INDEX IF NOT EXISTS idx_bastion_audit_created ON bastion_audit_entries (created_at, seq);
CREATE INDEX IF NOT EXISTS idx_bastion_audit_actor ON bastion_audit_entries (actor_id, created_at);
CREATE INDEX IF NOT EXISTS idx_bastion_audit_target ON bastion_audit_entries (target_id, created_at);

-- Entries are append-only; UPDATE is rejected at the database level.
CREATE OR REPLACE FUNCTION bastion_audit_reject_update() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION 'bastion_audit_entries is append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS bastion_audit_no_update ON bastion_audit_entries;
CREATE TRIGGER bastion_audit_no_update BEFORE UPDATE ON bastion_audit_entries
    FOR EACH ROW EXECUTE FUNCTION bastion_audit_reject_update();
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS bastion_audit_entries;
DROP FUNCTION IF EXISTS bastion_audit_reject_update();
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_audit_head",
			Version: "20260301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_audit_head (
    id              SMALLINT PRIMARY KEY CHECK (id = 1),
    seq             BIGINT NOT NULL,
    hash            TEXT NOT NULL,
    at              TIMESTAMPTZ
);

INSERT INTO bastion_audit_head (id, seq, hash, at) VALUES (1, 0, '', NULL)
ON CONFLICT (id) DO NOTHING;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_audit_head`)
				return err
			},
		},
	)
}
