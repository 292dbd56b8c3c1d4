package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL the store expects. Deployments with a migration
// pipeline should fold it into their own migrations; EnsureSchema applies
// it directly for simpler setups.
const Schema = `
CREATE TABLE IF NOT EXISTS rbac_roles (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    display_name    TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    permissions     JSONB NOT NULL DEFAULT '[]',
    parent_roles    TEXT[] NOT NULL DEFAULT '{}',
    is_system       BOOLEAN NOT NULL DEFAULT FALSE,
    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
    organization_id TEXT NOT NULL DEFAULT '',
    metadata        JSONB,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (name, organization_id)
);

CREATE INDEX IF NOT EXISTS rbac_roles_parent_roles_idx
    ON rbac_roles USING GIN (parent_roles);

CREATE TABLE IF NOT EXISTS rbac_user_roles (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    role_id         TEXT NOT NULL REFERENCES rbac_roles (id) ON DELETE CASCADE,
    organization_id TEXT NOT NULL DEFAULT '',
    assigned_by     TEXT NOT NULL DEFAULT '',
    assigned_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at      TIMESTAMPTZ,
    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
    metadata        JSONB,
    UNIQUE (user_id, role_id, organization_id)
);

CREATE INDEX IF NOT EXISTS rbac_user_roles_user_idx
    ON rbac_user_roles (user_id, organization_id);
`

// EnsureSchema applies the store's DDL. Safe to call on every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("pgstore: ensure schema: %w", err)
	}
	return nil
}
