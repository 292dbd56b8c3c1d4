package rbac

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/authzkit/authzkit/pkg/audit"
	"github.com/authzkit/authzkit/pkg/permission"
)

// GetRole fetches a role by id.
func (e *Engine) GetRole(ctx context.Context, roleID string) (Role, error) {
	role, err := e.roles.FindRoleByID(ctx, roleID)
	if err != nil {
		return Role{}, storeErr(err)
	}
	return role, nil
}

// GetRoleByName fetches a role by name within an organization; an empty
// organizationID targets global roles.
func (e *Engine) GetRoleByName(ctx context.Context, name, organizationID string) (Role, error) {
	role, err := e.roles.FindRoleByName(ctx, name, organizationID)
	if err != nil {
		return Role{}, storeErr(err)
	}
	return role, nil
}

// CreateRole validates and persists a new role. The id, timestamps and
// permission ids are filled in when absent; roles are always created active.
// Parent edges are checked for existence and self-reference before the role
// is written.
func (e *Engine) CreateRole(ctx context.Context, role Role) (Role, error) {
	if strings.TrimSpace(role.Name) == "" {
		return Role{}, ErrInvalidRoleName
	}
	if err := validatePermissions(role.Permissions); err != nil {
		return Role{}, err
	}

	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	if err := e.checkParents(ctx, role.ID, role.ParentRoles); err != nil {
		return Role{}, err
	}

	now := time.Now().UTC()
	if role.CreatedAt.IsZero() {
		role.CreatedAt = now
	}
	role.UpdatedAt = now
	role.IsActive = true
	fillPermissionIDs(role.Permissions, now)

	created, err := e.roles.CreateRole(ctx, role)
	if err != nil {
		return Role{}, storeErr(err)
	}

	e.auditor.LogRoleCreation(ctx, audit.RoleEvent{
		RoleID:         created.ID,
		RoleName:       created.Name,
		OrganizationID: created.OrganizationID,
	})
	return created, nil
}

// UpdateRole persists changes to an existing role. Structural changes to
// system roles are rejected; every newly added parent edge is validated
// against the live graph before the write.
func (e *Engine) UpdateRole(ctx context.Context, role Role) (Role, error) {
	existing, err := e.roles.FindRoleByID(ctx, role.ID)
	if err != nil {
		return Role{}, storeErr(err)
	}

	if strings.TrimSpace(role.Name) == "" {
		return Role{}, ErrInvalidRoleName
	}
	if existing.IsSystem && structuralChange(existing, role) {
		return Role{}, ErrSystemRole
	}
	if err := validatePermissions(role.Permissions); err != nil {
		return Role{}, err
	}

	for _, parentID := range role.ParentRoles {
		if parentID == role.ID {
			return Role{}, &HierarchyError{Sentinel: ErrSelfParent, Chain: []string{role.ID, parentID}}
		}
		if slices.Contains(existing.ParentRoles, parentID) {
			continue
		}
		if err := e.resolver.ValidateHierarchy(ctx, role.ID, parentID); err != nil {
			return Role{}, err
		}
	}

	role.CreatedAt = existing.CreatedAt
	role.IsSystem = existing.IsSystem
	role.UpdatedAt = time.Now().UTC()
	fillPermissionIDs(role.Permissions, role.UpdatedAt)

	updated, err := e.roles.UpdateRole(ctx, role)
	if err != nil {
		return Role{}, storeErr(err)
	}
	if err := e.resolver.Invalidate(ctx, updated.ID); err != nil {
		return Role{}, err
	}

	e.auditor.LogRoleUpdate(ctx, audit.RoleEvent{
		RoleID:         updated.ID,
		RoleName:       updated.Name,
		OrganizationID: updated.OrganizationID,
	})
	return updated, nil
}

// DeleteRole removes a role and cascades cache invalidation to descendants
// and affected users. System roles cannot be deleted.
func (e *Engine) DeleteRole(ctx context.Context, roleID string) error {
	existing, err := e.roles.FindRoleByID(ctx, roleID)
	if err != nil {
		return storeErr(err)
	}
	if existing.IsSystem {
		return ErrSystemRole
	}

	// Invalidate before the row disappears: the cascade needs FindChildRoles
	// to still see the graph around the role.
	if err := e.resolver.Invalidate(ctx, roleID); err != nil {
		return err
	}
	if err := e.roles.DeleteRole(ctx, roleID); err != nil {
		return storeErr(err)
	}

	e.auditor.LogRoleDeletion(ctx, audit.RoleEvent{
		RoleID:         existing.ID,
		RoleName:       existing.Name,
		OrganizationID: existing.OrganizationID,
	})
	return nil
}

// AddPermissionsToRole appends permissions to a role's direct set and
// invalidates every cache entry derived from it.
func (e *Engine) AddPermissionsToRole(ctx context.Context, roleID string, permissions []Permission) (Role, error) {
	if err := validatePermissions(permissions); err != nil {
		return Role{}, err
	}
	fillPermissionIDs(permissions, time.Now().UTC())

	updated, err := e.roles.AddPermissionsToRole(ctx, roleID, permissions)
	if err != nil {
		return Role{}, storeErr(err)
	}
	if err := e.resolver.Invalidate(ctx, roleID); err != nil {
		return Role{}, err
	}

	e.auditor.LogRoleUpdate(ctx, audit.RoleEvent{
		RoleID:         updated.ID,
		RoleName:       updated.Name,
		OrganizationID: updated.OrganizationID,
	})
	return updated, nil
}

// RemovePermissionsFromRole removes permissions from a role's direct set by
// id and invalidates every cache entry derived from it.
func (e *Engine) RemovePermissionsFromRole(ctx context.Context, roleID string, permissionIDs []string) (Role, error) {
	updated, err := e.roles.RemovePermissionsFromRole(ctx, roleID, permissionIDs)
	if err != nil {
		return Role{}, storeErr(err)
	}
	if err := e.resolver.Invalidate(ctx, roleID); err != nil {
		return Role{}, err
	}

	e.auditor.LogRoleUpdate(ctx, audit.RoleEvent{
		RoleID:         updated.ID,
		RoleName:       updated.Name,
		OrganizationID: updated.OrganizationID,
	})
	return updated, nil
}

// AssignRole grants a role to a user. The assignment id and timestamp are
// filled in when absent and the assignment is created active. The user's
// cached grants are dropped so the new role takes effect immediately.
func (e *Engine) AssignRole(ctx context.Context, assignment UserRoleAssignment) (UserRoleAssignment, error) {
	if _, err := e.roles.FindRoleByID(ctx, assignment.RoleID); err != nil {
		return UserRoleAssignment{}, storeErr(err)
	}

	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.AssignedAt.IsZero() {
		assignment.AssignedAt = time.Now().UTC()
	}
	assignment.IsActive = true

	created, err := e.assignments.AssignRoleToUser(ctx, assignment)
	if err != nil {
		return UserRoleAssignment{}, storeErr(err)
	}
	if err := e.InvalidateUserCache(ctx, created.UserID); err != nil {
		return UserRoleAssignment{}, err
	}

	e.auditor.LogRoleAssignment(ctx, audit.AssignmentEvent{
		UserID:         created.UserID,
		RoleID:         created.RoleID,
		ActorID:        created.AssignedBy,
		OrganizationID: created.OrganizationID,
	})
	return created, nil
}

// RemoveRole revokes a role from a user and drops the user's cached grants.
func (e *Engine) RemoveRole(ctx context.Context, userID, roleID, organizationID string) error {
	if err := e.assignments.RemoveRoleFromUser(ctx, userID, roleID, organizationID); err != nil {
		return storeErr(err)
	}
	if err := e.InvalidateUserCache(ctx, userID); err != nil {
		return err
	}

	e.auditor.LogRoleRemoval(ctx, audit.AssignmentEvent{
		UserID:         userID,
		RoleID:         roleID,
		OrganizationID: organizationID,
	})
	return nil
}

// checkParents verifies that every parent exists and none is the role itself.
func (e *Engine) checkParents(ctx context.Context, roleID string, parentIDs []string) error {
	if len(parentIDs) == 0 {
		return nil
	}
	for _, parentID := range parentIDs {
		if parentID == roleID {
			return &HierarchyError{Sentinel: ErrSelfParent, Chain: []string{roleID, parentID}}
		}
	}

	parents, err := e.roles.FindRolesByIDs(ctx, parentIDs)
	if err != nil {
		return storeErr(err)
	}
	found := make(map[string]bool, len(parents))
	for _, p := range parents {
		found[p.ID] = true
	}
	for _, parentID := range parentIDs {
		if !found[parentID] {
			return errors.Join(ErrRoleNotFound, fmt.Errorf("parent role %q", parentID))
		}
	}
	return nil
}

// structuralChange reports whether the update touches fields protected on
// system roles.
func structuralChange(existing, updated Role) bool {
	if existing.Name != updated.Name {
		return true
	}
	a := slices.Clone(existing.ParentRoles)
	b := slices.Clone(updated.ParentRoles)
	slices.Sort(a)
	slices.Sort(b)
	return !slices.Equal(a, b)
}

func validatePermissions(perms []Permission) error {
	for _, p := range perms {
		if err := permission.Validate(p.String()); err != nil {
			return errors.Join(ErrInvalidPermission, fmt.Errorf("%q: %w", p.String(), err))
		}
	}
	return nil
}

func fillPermissionIDs(perms []Permission, now time.Time) {
	for i := range perms {
		if perms[i].ID == "" {
			perms[i].ID = uuid.NewString()
		}
		if perms[i].CreatedAt.IsZero() {
			perms[i].CreatedAt = now
		}
	}
}
