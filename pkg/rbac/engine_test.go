package rbac_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authzkit/authzkit/pkg/audit"
	"github.com/authzkit/authzkit/pkg/cache"
	"github.com/authzkit/authzkit/pkg/permission"
	"github.com/authzkit/authzkit/pkg/rbac"
)

// recordingAuditor captures events synchronously so tests need no draining.
type recordingAuditor struct {
	mu     sync.Mutex
	checks []audit.CheckEvent
	events []audit.Kind
}

func (r *recordingAuditor) LogPermissionCheck(_ context.Context, e audit.CheckEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, e)
	r.events = append(r.events, audit.KindPermissionCheck)
}

func (r *recordingAuditor) record(kind audit.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind)
}

func (r *recordingAuditor) LogRoleCreation(context.Context, audit.RoleEvent) {
	r.record(audit.KindRoleCreated)
}
func (r *recordingAuditor) LogRoleUpdate(context.Context, audit.RoleEvent) {
	r.record(audit.KindRoleUpdated)
}
func (r *recordingAuditor) LogRoleDeletion(context.Context, audit.RoleEvent) {
	r.record(audit.KindRoleDeleted)
}
func (r *recordingAuditor) LogRoleAssignment(context.Context, audit.AssignmentEvent) {
	r.record(audit.KindRoleAssigned)
}
func (r *recordingAuditor) LogRoleRemoval(context.Context, audit.AssignmentEvent) {
	r.record(audit.KindRoleRemoved)
}

func (r *recordingAuditor) kinds() []audit.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Kind, len(r.events))
	copy(out, r.events)
	return out
}

type testEnv struct {
	engine  *rbac.Engine
	store   *rbac.MemoryStore
	cache   *cache.Memory
	auditor *recordingAuditor
}

func newTestEnv(t *testing.T, opts ...rbac.EngineOption) *testEnv {
	t.Helper()
	store := rbac.NewMemoryStore()
	c := cache.NewMemory()
	t.Cleanup(func() { _ = c.Close() })

	auditor := &recordingAuditor{}
	opts = append([]rbac.EngineOption{rbac.WithAuditLogger(auditor)}, opts...)

	return &testEnv{
		engine:  rbac.NewEngine(store, store, c, opts...),
		store:   store,
		cache:   c,
		auditor: auditor,
	}
}

// seedEditorStack installs viewer <- editor and assigns editor to the user.
func (env *testEnv) seedEditorStack(t *testing.T, userID string) {
	t.Helper()
	seedRole(t, env.store, rbac.Role{
		ID: "viewer", Name: "viewer",
		Permissions: []rbac.Permission{perm("p-read", "posts", "read", "")},
	})
	seedRole(t, env.store, rbac.Role{
		ID: "editor", Name: "editor", ParentRoles: []string{"viewer"},
		Permissions: []rbac.Permission{perm("p-update", "posts", "update", "own")},
	})
	_, err := env.store.AssignRoleToUser(context.Background(), rbac.UserRoleAssignment{
		ID: "a1", UserID: userID, RoleID: "editor", IsActive: true,
	})
	require.NoError(t, err)
}

func TestEngine_EffectivePermissions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedEditorStack(t, "u1")

	grants, err := env.engine.EffectivePermissions(ctx, "u1", "", false)
	require.NoError(t, err)

	permIDs := make([]string, len(grants.Permissions))
	for i, p := range grants.Permissions {
		permIDs[i] = p.ID
	}
	assert.ElementsMatch(t, []string{"p-update", "p-read"}, permIDs,
		"direct and inherited permissions are merged")

	roleIDs := make([]string, len(grants.Roles))
	for i, r := range grants.Roles {
		roleIDs[i] = r.ID
	}
	assert.ElementsMatch(t, []string{"editor", "viewer"}, roleIDs,
		"ancestor roles are part of the resolution")
}

func TestEngine_EffectivePermissions_CacheHit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedEditorStack(t, "u1")

	_, err := env.engine.EffectivePermissions(ctx, "u1", "", false)
	require.NoError(t, err)

	res, err := env.engine.CheckDetailed(ctx, "u1", "posts:read", permission.Context{UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.True(t, res.FromCache, "second resolution is served from cache")

	// skipCache forces a store round trip and refreshes the entry.
	_, err = env.engine.EffectivePermissions(ctx, "u1", "", true)
	require.NoError(t, err)
}

func TestEngine_ExpiredAssignmentGrantsNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	seedRole(t, env.store, rbac.Role{
		ID: "temp", Name: "temp",
		Permissions: []rbac.Permission{perm("p1", "reports", "read", "")},
	})
	past := time.Now().Add(-time.Hour)
	_, err := env.store.AssignRoleToUser(ctx, rbac.UserRoleAssignment{
		ID: "a1", UserID: "u1", RoleID: "temp", IsActive: true, ExpiresAt: &past,
	})
	require.NoError(t, err)

	grants, err := env.engine.EffectivePermissions(ctx, "u1", "", false)
	require.NoError(t, err)
	assert.Empty(t, grants.Permissions)
	assert.False(t, env.engine.Can(ctx, "u1", "reports:read", permission.Context{UserID: "u1"}))
}

func TestEngine_InactiveRoleGrantsNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	role := rbac.Role{
		ID: "dormant", Name: "dormant",
		Permissions: []rbac.Permission{perm("p1", "reports", "read", "")},
	}
	_, err := env.store.CreateRole(ctx, role) // IsActive stays false
	require.NoError(t, err)
	_, err = env.store.AssignRoleToUser(ctx, rbac.UserRoleAssignment{
		ID: "a1", UserID: "u1", RoleID: "dormant", IsActive: true,
	})
	require.NoError(t, err)

	assert.False(t, env.engine.Can(ctx, "u1", "reports:read", permission.Context{UserID: "u1"}))
}

func TestEngine_CheckDetailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedEditorStack(t, "u1")

	res, err := env.engine.CheckDetailed(ctx, "u1", "posts:read", permission.Context{UserID: "u1"})
	require.NoError(t, err)

	assert.True(t, res.Allowed)
	require.NotNil(t, res.MatchedPermission)
	assert.Equal(t, "p-read", res.MatchedPermission.ID)
	require.NotNil(t, res.GrantedByRole)
	assert.Equal(t, "viewer", res.GrantedByRole.ID, "the inherited grant is attributed to its ancestor")
	assert.ElementsMatch(t, []string{"editor", "viewer"}, res.CheckedRoles)
	assert.Positive(t, res.Duration)

	res, err = env.engine.CheckDetailed(ctx, "u1", "posts:delete", permission.Context{UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Nil(t, res.MatchedPermission)
	assert.Contains(t, res.DeniedReason, "posts:delete")
}

func TestEngine_OwnScopeRequiresOwnership(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedEditorStack(t, "u1")

	own := permission.Context{UserID: "u1", ResourceOwnerID: "u1"}
	foreign := permission.Context{UserID: "u1", ResourceOwnerID: "someone-else"}

	assert.True(t, env.engine.Can(ctx, "u1", "posts:update:own", own))
	assert.False(t, env.engine.Can(ctx, "u1", "posts:update:own", foreign))
}

func TestEngine_Authorize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedEditorStack(t, "u1")

	pctx := permission.Context{UserID: "u1"}
	require.NoError(t, env.engine.Authorize(ctx, "u1", "posts:read", pctx))

	err := env.engine.Authorize(ctx, "u1", "billing:manage", pctx)
	require.ErrorIs(t, err, rbac.ErrPermissionDenied)
	assert.Contains(t, err.Error(), "billing:manage")
}

func TestEngine_CanAnyCanAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedEditorStack(t, "u1")
	pctx := permission.Context{UserID: "u1"}

	assert.True(t, env.engine.CanAny(ctx, "u1", pctx, "billing:manage", "posts:read"))
	assert.False(t, env.engine.CanAny(ctx, "u1", pctx, "billing:manage", "billing:read"))

	assert.True(t, env.engine.CanAll(ctx, "u1", pctx, "posts:read"))
	assert.False(t, env.engine.CanAll(ctx, "u1", pctx, "posts:read", "billing:manage"))
	assert.False(t, env.engine.CanAll(ctx, "u1", pctx), "empty requirement list grants nothing")
}

func TestEngine_CanFromContext(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seedEditorStack(t, "u1")

	ctx := rbac.WithUser(context.Background(), "u1")
	assert.True(t, env.engine.CanFromContext(ctx, "posts:read"))

	assert.False(t, env.engine.CanFromContext(context.Background(), "posts:read"),
		"no user in context denies")
}

type erroringAssignments struct{}

func (erroringAssignments) FindUserRoleAssignments(context.Context, string, string) ([]rbac.UserRoleAssignment, error) {
	return nil, errors.New("connection refused")
}
func (erroringAssignments) AssignRoleToUser(_ context.Context, a rbac.UserRoleAssignment) (rbac.UserRoleAssignment, error) {
	return a, errors.New("connection refused")
}
func (erroringAssignments) RemoveRoleFromUser(context.Context, string, string, string) error {
	return errors.New("connection refused")
}
func (erroringAssignments) UserHasRole(context.Context, string, string, string) (bool, error) {
	return false, errors.New("connection refused")
}

func TestEngine_CanFailsClosed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := rbac.NewMemoryStore()
	c := cache.NewMemory()
	t.Cleanup(func() { _ = c.Close() })

	engine := rbac.NewEngine(store, erroringAssignments{}, c)

	assert.False(t, engine.Can(ctx, "u1", "posts:read", permission.Context{UserID: "u1"}))

	err := engine.Authorize(ctx, "u1", "posts:read", permission.Context{UserID: "u1"})
	require.Error(t, err)
	require.ErrorIs(t, err, rbac.ErrStore)
	assert.NotErrorIs(t, err, rbac.ErrPermissionDenied,
		"an outage is distinguishable from a denial")
}

func TestEngine_OrganizationScopedResolution(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	seedRole(t, env.store, rbac.Role{
		ID: "org-admin", Name: "org-admin", OrganizationID: "org-1",
		Permissions: []rbac.Permission{perm("p1", "members", "manage", "")},
	})
	_, err := env.store.AssignRoleToUser(ctx, rbac.UserRoleAssignment{
		ID: "a1", UserID: "u1", RoleID: "org-admin", OrganizationID: "org-1", IsActive: true,
	})
	require.NoError(t, err)

	inOrg := permission.Context{UserID: "u1", OrganizationID: "org-1"}
	otherOrg := permission.Context{UserID: "u1", OrganizationID: "org-2"}

	assert.True(t, env.engine.Can(ctx, "u1", "members:manage", inOrg))
	assert.False(t, env.engine.Can(ctx, "u1", "members:manage", otherOrg),
		"assignment scoped to another organization does not apply")
}

func TestEngine_AuditsChecks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedEditorStack(t, "u1")

	env.engine.Can(ctx, "u1", "posts:read", permission.Context{UserID: "u1"})
	env.engine.Can(ctx, "u1", "billing:manage", permission.Context{UserID: "u1"})

	env.auditor.mu.Lock()
	defer env.auditor.mu.Unlock()
	require.Len(t, env.auditor.checks, 2)
	assert.True(t, env.auditor.checks[0].Granted)
	assert.Equal(t, "posts:read", env.auditor.checks[0].Permission)
	assert.False(t, env.auditor.checks[1].Granted)
}

func TestEngine_HealthCheck(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	require.NoError(t, env.engine.HealthCheck(ctx))

	closed := cache.NewMemory()
	require.NoError(t, closed.Close())
	broken := rbac.NewEngine(env.store, env.store, closed)
	err := broken.HealthCheck(ctx)
	require.ErrorIs(t, err, rbac.ErrCache)
	assert.NotErrorIs(t, err, rbac.ErrStore,
		"a cache outage must not read as a storage failure")
}

func TestEngine_ConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := rbac.DefaultConfig()
	assert.Equal(t, 5*time.Minute, cfg.UserCacheTTL)
	assert.Equal(t, 30*time.Minute, cfg.HierarchyCacheTTL)
	assert.Equal(t, 10, cfg.MaxHierarchyDepth)
	assert.Equal(t, "rbac", cfg.CachePrefix)
	assert.True(t, cfg.CycleDetection)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("RBAC_USER_CACHE_TTL", "90s")
	t.Setenv("RBAC_MAX_HIERARCHY_DEPTH", "4")
	t.Setenv("RBAC_CACHE_PREFIX", "authz")

	cfg, err := rbac.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.UserCacheTTL)
	assert.Equal(t, 4, cfg.MaxHierarchyDepth)
	assert.Equal(t, "authz", cfg.CachePrefix)
	assert.Equal(t, 30*time.Minute, cfg.HierarchyCacheTTL, "unset vars keep defaults")
}
