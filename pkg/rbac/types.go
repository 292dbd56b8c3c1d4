package rbac

import (
	"time"

	"github.com/authzkit/authzkit/pkg/permission"
)

// DefaultMaxDepth is the maximum allowed depth of role inheritance to
// prevent excessive nesting and runaway traversals.
const DefaultMaxDepth = 10

// Permission is an atomic capability: a resource/action pair with an
// optional ownership scope and optional ABAC conditions. Permissions are
// immutable once matched against; the engine only reads them.
type Permission struct {
	ID          string         `json:"id"`
	Resource    string         `json:"resource"`
	Action      string         `json:"action"`
	Scope       string         `json:"scope,omitempty"`
	Conditions  map[string]any `json:"conditions,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at,omitzero"`
}

// String returns the permission in wire form: "resource:action[:scope]".
func (p Permission) String() string {
	s := p.Resource + ":" + p.Action
	if p.Scope != "" {
		s += ":" + p.Scope
	}
	return s
}

// Grant converts the permission into the matcher's candidate form.
func (p Permission) Grant() permission.Grant {
	return permission.Grant{
		ID:         p.ID,
		Resource:   p.Resource,
		Action:     p.Action,
		Scope:      p.Scope,
		Conditions: p.Conditions,
	}
}

// Role is a named set of direct permissions with multiple inheritance via
// ParentRoles. The parent graph must stay acyclic; ValidateHierarchy guards
// every new edge.
type Role struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	DisplayName string         `json:"display_name,omitempty"`
	Description string         `json:"description,omitempty"`
	Permissions []Permission   `json:"permissions,omitempty"`
	ParentRoles []string       `json:"parent_roles,omitempty"`
	IsSystem    bool           `json:"is_system"`
	IsActive    bool           `json:"is_active"`
	// OrganizationID scopes the role to a tenant; empty means global.
	OrganizationID string         `json:"organization_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at,omitzero"`
	UpdatedAt      time.Time      `json:"updated_at,omitzero"`
}

// IsGlobal reports whether the role is not scoped to an organization.
func (r Role) IsGlobal() bool { return r.OrganizationID == "" }

// HasDirectPermission reports whether the role directly carries the
// permission with the given id, ignoring inheritance.
func (r Role) HasDirectPermission(permissionID string) bool {
	for _, p := range r.Permissions {
		if p.ID == permissionID {
			return true
		}
	}
	return false
}

// UserRoleAssignment ties a user to a role, optionally within an
// organization and with an expiry.
type UserRoleAssignment struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	RoleID         string         `json:"role_id"`
	OrganizationID string         `json:"organization_id,omitempty"`
	AssignedBy     string         `json:"assigned_by,omitempty"`
	AssignedAt     time.Time      `json:"assigned_at,omitzero"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	IsActive       bool           `json:"is_active"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// EffectiveAt reports whether the assignment grants anything at the given
// instant. Expiry is always re-evaluated at read time; the engine never
// trusts a background sweeper to have flipped IsActive.
func (a UserRoleAssignment) EffectiveAt(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// UserGrants is the cached resolution result for one (user, organization)
// pair: the deduplicated effective permissions and every role, direct or
// inherited, that contributed to them.
type UserGrants struct {
	Permissions []Permission `json:"permissions"`
	Roles       []Role       `json:"roles"`
}

// Grants converts the effective permissions into matcher candidates.
func (g UserGrants) Grants() []permission.Grant {
	grants := make([]permission.Grant, len(g.Permissions))
	for i, p := range g.Permissions {
		grants[i] = p.Grant()
	}
	return grants
}
