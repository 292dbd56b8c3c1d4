package mongostore

import (
	"time"

	"github.com/authzkit/authzkit/pkg/rbac"
)

// roleDoc is the persisted shape of a role. The role id is the document id,
// so lookups and parent-edge queries stay index-only.
type roleDoc struct {
	ID             string          `bson:"_id"`
	Name           string          `bson:"name"`
	DisplayName    string          `bson:"display_name,omitempty"`
	Description    string          `bson:"description,omitempty"`
	Permissions    []permissionDoc `bson:"permissions,omitempty"`
	ParentRoles    []string        `bson:"parent_roles,omitempty"`
	IsSystem       bool            `bson:"is_system"`
	IsActive       bool            `bson:"is_active"`
	OrganizationID string          `bson:"organization_id,omitempty"`
	Metadata       map[string]any  `bson:"metadata,omitempty"`
	CreatedAt      time.Time       `bson:"created_at,omitempty"`
	UpdatedAt      time.Time       `bson:"updated_at,omitempty"`
}

type permissionDoc struct {
	ID          string         `bson:"id"`
	Resource    string         `bson:"resource"`
	Action      string         `bson:"action"`
	Scope       string         `bson:"scope,omitempty"`
	Conditions  map[string]any `bson:"conditions,omitempty"`
	Description string         `bson:"description,omitempty"`
	Metadata    map[string]any `bson:"metadata,omitempty"`
	CreatedAt   time.Time      `bson:"created_at,omitempty"`
}

type assignmentDoc struct {
	ID             string         `bson:"_id"`
	UserID         string         `bson:"user_id"`
	RoleID         string         `bson:"role_id"`
	OrganizationID string         `bson:"organization_id,omitempty"`
	AssignedBy     string         `bson:"assigned_by,omitempty"`
	AssignedAt     time.Time      `bson:"assigned_at,omitempty"`
	ExpiresAt      *time.Time     `bson:"expires_at,omitempty"`
	IsActive       bool           `bson:"is_active"`
	Metadata       map[string]any `bson:"metadata,omitempty"`
}

func toRoleDoc(r rbac.Role) roleDoc {
	perms := make([]permissionDoc, len(r.Permissions))
	for i, p := range r.Permissions {
		perms[i] = permissionDoc{
			ID:          p.ID,
			Resource:    p.Resource,
			Action:      p.Action,
			Scope:       p.Scope,
			Conditions:  p.Conditions,
			Description: p.Description,
			Metadata:    p.Metadata,
			CreatedAt:   p.CreatedAt,
		}
	}
	return roleDoc{
		ID:             r.ID,
		Name:           r.Name,
		DisplayName:    r.DisplayName,
		Description:    r.Description,
		Permissions:    perms,
		ParentRoles:    r.ParentRoles,
		IsSystem:       r.IsSystem,
		IsActive:       r.IsActive,
		OrganizationID: r.OrganizationID,
		Metadata:       r.Metadata,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (d roleDoc) toDomain() rbac.Role {
	perms := make([]rbac.Permission, len(d.Permissions))
	for i, p := range d.Permissions {
		perms[i] = rbac.Permission{
			ID:          p.ID,
			Resource:    p.Resource,
			Action:      p.Action,
			Scope:       p.Scope,
			Conditions:  p.Conditions,
			Description: p.Description,
			Metadata:    p.Metadata,
			CreatedAt:   p.CreatedAt,
		}
	}
	return rbac.Role{
		ID:             d.ID,
		Name:           d.Name,
		DisplayName:    d.DisplayName,
		Description:    d.Description,
		Permissions:    perms,
		ParentRoles:    d.ParentRoles,
		IsSystem:       d.IsSystem,
		IsActive:       d.IsActive,
		OrganizationID: d.OrganizationID,
		Metadata:       d.Metadata,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func toAssignmentDoc(a rbac.UserRoleAssignment) assignmentDoc {
	return assignmentDoc{
		ID:             a.ID,
		UserID:         a.UserID,
		RoleID:         a.RoleID,
		OrganizationID: a.OrganizationID,
		AssignedBy:     a.AssignedBy,
		AssignedAt:     a.AssignedAt,
		ExpiresAt:      a.ExpiresAt,
		IsActive:       a.IsActive,
		Metadata:       a.Metadata,
	}
}

func (d assignmentDoc) toDomain() rbac.UserRoleAssignment {
	return rbac.UserRoleAssignment{
		ID:             d.ID,
		UserID:         d.UserID,
		RoleID:         d.RoleID,
		OrganizationID: d.OrganizationID,
		AssignedBy:     d.AssignedBy,
		AssignedAt:     d.AssignedAt,
		ExpiresAt:      d.ExpiresAt,
		IsActive:       d.IsActive,
		Metadata:       d.Metadata,
	}
}
