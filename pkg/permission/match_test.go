package permission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authzkit/authzkit/pkg/permission"
)

func TestFindBestMatch_Specificity(t *testing.T) {
	t.Parallel()

	grants := []permission.Grant{
		{ID: "wild", Resource: "*", Action: "*"},
		{ID: "action-wild", Resource: "posts", Action: "*"},
		{ID: "exact", Resource: "posts", Action: "read"},
	}

	g, ok := permission.FindBestMatch("posts:read", grants, permission.Context{})
	require.True(t, ok)
	assert.Equal(t, "exact", g.ID)
}

func TestFindBestMatch_FirstSeenWinsOnTie(t *testing.T) {
	t.Parallel()

	grants := []permission.Grant{
		{ID: "first", Resource: "posts", Action: "read"},
		{ID: "second", Resource: "posts", Action: "read"},
	}

	g, ok := permission.FindBestMatch("posts:read", grants, permission.Context{})
	require.True(t, ok)
	assert.Equal(t, "first", g.ID)
}

func TestFindBestMatch_NoMatch(t *testing.T) {
	t.Parallel()

	grants := []permission.Grant{
		{ID: "p1", Resource: "posts", Action: "read"},
	}

	_, ok := permission.FindBestMatch("posts:delete", grants, permission.Context{})
	assert.False(t, ok)
}

func TestFindBestMatch_OwnScope(t *testing.T) {
	t.Parallel()

	ownGrant := []permission.Grant{
		{ID: "own", Resource: "posts", Action: "update", Scope: "own"},
	}
	allGrant := []permission.Grant{
		{ID: "all", Resource: "posts", Action: "update", Scope: "all"},
	}

	tests := []struct {
		name   string
		grants []permission.Grant
		ctx    permission.Context
		want   bool
	}{
		{
			name:   "own grant and user owns resource",
			grants: ownGrant,
			ctx:    permission.Context{UserID: "u1", ResourceOwnerID: "u1"},
			want:   true,
		},
		{
			name:   "own grant and user does not own resource",
			grants: ownGrant,
			ctx:    permission.Context{UserID: "u1", ResourceOwnerID: "u2"},
			want:   false,
		},
		{
			name:   "own grant without owner in context",
			grants: ownGrant,
			ctx:    permission.Context{UserID: "u1"},
			want:   false,
		},
		{
			name:   "all grant satisfies own requirement regardless of owner",
			grants: allGrant,
			ctx:    permission.Context{UserID: "u1", ResourceOwnerID: "u2"},
			want:   true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, ok := permission.FindBestMatch("posts:update:own", tt.grants, tt.ctx)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestFindBestMatch_ScopeWildcardGrant(t *testing.T) {
	t.Parallel()

	grants := []permission.Grant{
		{ID: "p1", Resource: "posts", Action: "update", Scope: "*"},
	}

	_, ok := permission.FindBestMatch("posts:update:own", grants, permission.Context{UserID: "u1", ResourceOwnerID: "u2"})
	assert.True(t, ok)
}

func TestFindBestMatch_UnscopedGrantDeniesScopedRequirement(t *testing.T) {
	t.Parallel()

	grants := []permission.Grant{
		{ID: "p1", Resource: "posts", Action: "update"},
	}

	_, ok := permission.FindBestMatch("posts:update:own", grants, permission.Context{UserID: "u1", ResourceOwnerID: "u1"})
	assert.False(t, ok)
}

func TestFindBestMatch_Conditions(t *testing.T) {
	t.Parallel()

	grants := []permission.Grant{
		{
			ID:         "cond",
			Resource:   "reports",
			Action:     "export",
			Conditions: map[string]any{"department": "finance"},
		},
	}

	tests := []struct {
		name       string
		attributes map[string]any
		want       bool
	}{
		{"attribute matches", map[string]any{"department": "finance"}, true},
		{"attribute differs", map[string]any{"department": "sales"}, false},
		{"attribute absent", nil, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, ok := permission.FindBestMatch("reports:export", grants, permission.Context{Attributes: tt.attributes})
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestFindBestMatch_ConditionedGrantOutranksUnconditioned(t *testing.T) {
	t.Parallel()

	grants := []permission.Grant{
		{ID: "plain", Resource: "reports", Action: "export"},
		{ID: "cond", Resource: "reports", Action: "export", Conditions: map[string]any{"department": "finance"}},
	}

	g, ok := permission.FindBestMatch("reports:export", grants, permission.Context{
		Attributes: map[string]any{"department": "finance"},
	})
	require.True(t, ok)
	assert.Equal(t, "cond", g.ID)
}

func TestFindBestMatch_GlobstarGrant(t *testing.T) {
	t.Parallel()

	grants := []permission.Grant{
		{ID: "root", Resource: "**"},
	}

	_, ok := permission.FindBestMatch("anything:whatsoever", grants, permission.Context{})
	assert.True(t, ok)
}

func TestSpecificity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		grant permission.Grant
		want  int
	}{
		{"full wildcard", permission.Grant{Resource: "*", Action: "*"}, 0},
		{"concrete resource only", permission.Grant{Resource: "posts", Action: "*"}, 10},
		{"concrete resource and action", permission.Grant{Resource: "posts", Action: "read"}, 20},
		{"with scope", permission.Grant{Resource: "posts", Action: "read", Scope: "own"}, 25},
		{"with conditions", permission.Grant{Resource: "posts", Action: "read", Scope: "own", Conditions: map[string]any{"a": 1}}, 28},
		{"wildcard scope does not count", permission.Grant{Resource: "posts", Action: "read", Scope: "*"}, 20},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, permission.Specificity(tt.grant))
		})
	}
}
