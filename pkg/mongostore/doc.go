// Package mongostore persists roles and user-role assignments in MongoDB,
// implementing the rbac.Store contract.
//
// Roles embed their permissions as subdocuments with the role id as the
// document id, so hierarchy traversal resolves each role in a single
// lookup and parent-edge queries ("which roles inherit from X") hit the
// parent_roles index. Assignments live in their own collection with a
// unique (user_id, role_id, organization_id) index; re-assigning refreshes
// the existing row instead of duplicating it.
//
//	cfg, err := mongostore.LoadConfig()
//	db, err := mongostore.ConnectDatabase(ctx, cfg)
//	store := mongostore.NewStore(db)
//	if err := store.EnsureIndexes(ctx); err != nil { ... }
//
//	engine := rbac.NewEngine(store, store, c)
//
// Configuration is environment-driven (RBAC_MONGODB_* variables) with
// retrying connection establishment, so transient startup failures of a
// managed cluster do not take the service down.
package mongostore
