// Package pgstore persists roles and user-role assignments in PostgreSQL,
// implementing the rbac.Store contract.
//
// Each role is one row: permissions live in a JSONB column and parent
// edges in a TEXT[] column backed by a GIN index, so hierarchy traversal
// costs one indexed read per role and "which roles inherit from X" is a
// containment query. Assignments have a unique
// (user_id, role_id, organization_id) constraint; re-assigning upserts the
// existing row. Deleting a role removes its assignments through ON DELETE
// CASCADE.
//
//	cfg, err := pgstore.LoadConfig()
//	pool, err := pgstore.Connect(ctx, cfg)
//	if err := pgstore.EnsureSchema(ctx, pool); err != nil { ... }
//
//	store := pgstore.NewStore(pool)
//	engine := rbac.NewEngine(store, store, c)
//
// Configuration is environment-driven (RBAC_PG_* variables). The Schema
// constant carries the expected DDL for deployments that manage
// migrations themselves.
package pgstore
