package rbac_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authzkit/authzkit/pkg/permission"
	"github.com/authzkit/authzkit/pkg/rbac"
)

const rolesYAML = `
roles:
  - name: viewer
    display_name: Viewer
    permissions:
      - posts:read
      - comments:read
  - name: editor
    parents: [viewer]
    permissions:
      - posts:update:own
      - resource: posts
        action: publish
        conditions:
          department: editorial
  - name: admin
    parents: [editor]
    system: true
    permissions:
      - "posts:*:all"
`

func TestParseRoles(t *testing.T) {
	t.Parallel()

	roles, err := rbac.ParseRoles([]byte(rolesYAML))
	require.NoError(t, err)
	require.Len(t, roles, 3)

	viewer := roles[0]
	assert.Equal(t, "viewer", viewer.ID, "id defaults to the name")
	assert.Equal(t, "Viewer", viewer.DisplayName)
	assert.True(t, viewer.IsActive)
	require.Len(t, viewer.Permissions, 2)
	assert.Equal(t, "posts:read", viewer.Permissions[0].ID, "permission id defaults to wire form")

	editor := roles[1]
	assert.Equal(t, []string{"viewer"}, editor.ParentRoles)
	require.Len(t, editor.Permissions, 2)
	assert.Equal(t, "own", editor.Permissions[0].Scope)
	assert.Equal(t, "publish", editor.Permissions[1].Action)
	assert.Equal(t, map[string]any{"department": "editorial"}, editor.Permissions[1].Conditions)

	admin := roles[2]
	assert.True(t, admin.IsSystem)
	assert.Equal(t, "*", admin.Permissions[0].Action)
	assert.Equal(t, "all", admin.Permissions[0].Scope)
}

func TestParseRoles_Errors(t *testing.T) {
	t.Parallel()

	_, err := rbac.ParseRoles([]byte("roles:\n  - name: ''\n"))
	require.ErrorIs(t, err, rbac.ErrInvalidRoleName)

	_, err = rbac.ParseRoles([]byte("roles:\n  - name: a\n  - name: a\n"))
	require.ErrorContains(t, err, "duplicate role")

	_, err = rbac.ParseRoles([]byte("roles:\n  - name: a\n    permissions:\n      - 'bad permission!'\n"))
	require.Error(t, err)

	_, err = rbac.ParseRoles([]byte("roles: ["))
	require.ErrorContains(t, err, "parse roles")
}

func TestEngine_SeedRoles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	roles, err := rbac.ParseRoles([]byte(rolesYAML))
	require.NoError(t, err)
	require.NoError(t, env.engine.SeedRoles(ctx, roles))

	_, err = env.store.AssignRoleToUser(ctx, rbac.UserRoleAssignment{
		ID: "a1", UserID: "u1", RoleID: "admin", IsActive: true,
	})
	require.NoError(t, err)

	pctx := permission.Context{UserID: "u1"}
	assert.True(t, env.engine.Can(ctx, "u1", "posts:read", pctx),
		"admin inherits viewer through editor")
	assert.True(t, env.engine.Can(ctx, "u1", "posts:delete:all", pctx))
	assert.False(t, env.engine.Can(ctx, "u1", "billing:manage", pctx))

	// Seeding again is an upsert, not a duplicate.
	require.NoError(t, env.engine.SeedRoles(ctx, roles))
	admin, err := env.engine.GetRole(ctx, "admin")
	require.NoError(t, err)
	assert.True(t, admin.IsSystem)
}

func TestEngine_SeedRoles_PicksUpChanges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	v1, err := rbac.ParseRoles([]byte("roles:\n  - name: support\n    permissions: [tickets:read]\n"))
	require.NoError(t, err)
	require.NoError(t, env.engine.SeedRoles(ctx, v1))

	_, err = env.store.AssignRoleToUser(ctx, rbac.UserRoleAssignment{
		ID: "a1", UserID: "u1", RoleID: "support", IsActive: true,
	})
	require.NoError(t, err)

	pctx := permission.Context{UserID: "u1"}
	require.True(t, env.engine.Can(ctx, "u1", "tickets:read", pctx))
	require.False(t, env.engine.Can(ctx, "u1", "tickets:close", pctx))

	v2, err := rbac.ParseRoles([]byte("roles:\n  - name: support\n    permissions: [tickets:read, tickets:close]\n"))
	require.NoError(t, err)
	require.NoError(t, env.engine.SeedRoles(ctx, v2))

	assert.True(t, env.engine.Can(ctx, "u1", "tickets:close", pctx),
		"reseeding invalidates stale cached grants")
}

func TestEngine_SeedRoles_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	err := env.engine.SeedRoles(ctx, []rbac.Role{
		{ID: "a", Name: "a", ParentRoles: []string{"b"}, IsActive: true},
		{ID: "b", Name: "b", ParentRoles: []string{"a"}, IsActive: true},
	})
	require.ErrorIs(t, err, rbac.ErrCircularHierarchy)

	err = env.engine.SeedRoles(ctx, []rbac.Role{
		{ID: "a", Name: "a", ParentRoles: []string{"ghost"}, IsActive: true},
	})
	require.ErrorIs(t, err, rbac.ErrRoleNotFound)

	err = env.engine.SeedRoles(ctx, []rbac.Role{
		{ID: "a", Name: "a", ParentRoles: []string{"a"}, IsActive: true},
	})
	require.ErrorIs(t, err, rbac.ErrSelfParent)
}

func TestEngine_SeedRoles_CycleThroughStoredRole(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	seedRole(t, env.store, rbac.Role{ID: "base", Name: "base"})
	seedRole(t, env.store, rbac.Role{ID: "lead", Name: "lead", ParentRoles: []string{"base"}})

	// base -> lead would close a cycle through the stored lead -> base edge.
	err := env.engine.SeedRoles(ctx, []rbac.Role{
		{ID: "base", Name: "base", ParentRoles: []string{"lead"}, IsActive: true},
	})
	require.ErrorIs(t, err, rbac.ErrCircularHierarchy)

	stored, err := env.store.FindRoleByID(ctx, "base")
	require.NoError(t, err)
	assert.Empty(t, stored.ParentRoles, "rejected seed must not rewire the stored role")
}
