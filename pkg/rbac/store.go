package rbac

import "context"

// RoleStore is the role persistence collaborator. Implementations must
// return ErrRoleNotFound (possibly wrapped) for missing roles; any other
// failure is treated as an adapter error by the engine.
//
// Organization scoping is the caller's responsibility: global roles have an
// empty OrganizationID and name lookups take the organization filter
// explicitly.
type RoleStore interface {
	FindRoleByID(ctx context.Context, id string) (Role, error)
	FindRoleByName(ctx context.Context, name, organizationID string) (Role, error)
	FindRolesByIDs(ctx context.Context, ids []string) ([]Role, error)

	// FindChildRoles returns every role listing parentID among its parents.
	// This is the inverse relation the cascade invalidation walks.
	FindChildRoles(ctx context.Context, parentID string) ([]Role, error)

	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, id string) error

	AddPermissionsToRole(ctx context.Context, roleID string, permissions []Permission) (Role, error)
	RemovePermissionsFromRole(ctx context.Context, roleID string, permissionIDs []string) (Role, error)
}

// UserRoleStore is the assignment persistence collaborator. An empty
// organizationID matches global assignments only in writes but acts as "no
// filter" in reads, mirroring how callers scope permission checks. Reads
// (FindUserRoleAssignments, UserHasRole) also honor global assignments when
// an organization is given, since a global grant applies everywhere.
type UserRoleStore interface {
	FindUserRoleAssignments(ctx context.Context, userID, organizationID string) ([]UserRoleAssignment, error)
	AssignRoleToUser(ctx context.Context, assignment UserRoleAssignment) (UserRoleAssignment, error)
	RemoveRoleFromUser(ctx context.Context, userID, roleID, organizationID string) error
	UserHasRole(ctx context.Context, userID, roleID, organizationID string) (bool, error)
}

// Store combines both collaborators for adapters that implement them in one
// backend.
type Store interface {
	RoleStore
	UserRoleStore
}
