// Package rbac implements role-based access control with hierarchical role
// inheritance, wildcard permission matching, and cache-accelerated checks.
//
// # Model
//
// A Permission is a resource/action pair with an optional ownership scope
// ("own" or "all") and optional attribute conditions. A Role carries a set
// of direct permissions and may inherit from multiple parent roles; the
// parent graph must stay acyclic and is bounded in depth. Users receive
// roles through UserRoleAssignment rows, optionally scoped to an
// organization and optionally expiring.
//
// # Engine
//
// Engine is the main entry point. It composes a RoleStore, a UserRoleStore,
// and a cache.Cache:
//
//	store := rbac.NewMemoryStore()
//	c := cache.NewMemory()
//	engine := rbac.NewEngine(store, store, c)
//
//	if engine.Can(ctx, userID, "posts:update:own", permission.Context{
//		UserID:          userID,
//		ResourceOwnerID: post.AuthorID,
//	}) {
//		// allowed
//	}
//
// Can never returns an error: resolution failures are logged and denied, so
// an infrastructure outage fails closed. Authorize returns
// ErrPermissionDenied for callers that need an error value, and
// CheckDetailed explains which grant matched and which role contributed it.
//
// # Caching and invalidation
//
// Resolved hierarchies and per-user grant sets are cached with independent
// TTLs. Every cache entry is tagged with the roles it was derived from, so
// mutating a role invalidates the role's own entries, every descendant
// role's entries, and every user-grant entry built on top of them in one
// cascade. Assignment changes drop the affected user's entries only.
//
// Assignment expiry is enforced at read time on every resolution; a cached
// grant set never outlives its TTL, and an expired assignment stops
// granting as soon as the cached entry ages out or is invalidated.
//
// # Declarative roles
//
// ParseRoles and Engine.SeedRoles load role definitions from YAML, letting
// deployments keep their role model in configuration and upsert it on every
// startup.
package rbac
