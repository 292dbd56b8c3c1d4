package rbac

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation. It is safe for
// concurrent use and intended for tests, examples, and single-process
// deployments with configuration-defined roles.
type MemoryStore struct {
	mu          sync.RWMutex
	roles       map[string]Role
	assignments map[string]UserRoleAssignment
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles:       make(map[string]Role),
		assignments: make(map[string]UserRoleAssignment),
	}
}

func (s *MemoryStore) FindRoleByID(_ context.Context, id string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[id]
	if !ok {
		return Role{}, errors.Join(ErrRoleNotFound, fmt.Errorf("role id %q", id))
	}
	return copyRole(role), nil
}

func (s *MemoryStore) FindRoleByName(_ context.Context, name, organizationID string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, role := range s.roles {
		if role.Name == name && role.OrganizationID == organizationID {
			return copyRole(role), nil
		}
	}
	return Role{}, errors.Join(ErrRoleNotFound, fmt.Errorf("role name %q", name))
}

func (s *MemoryStore) FindRolesByIDs(_ context.Context, ids []string) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roles := make([]Role, 0, len(ids))
	for _, id := range ids {
		if role, ok := s.roles[id]; ok {
			roles = append(roles, copyRole(role))
		}
	}
	return roles, nil
}

func (s *MemoryStore) FindChildRoles(_ context.Context, parentID string) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var children []Role
	for _, role := range s.roles {
		if slices.Contains(role.ParentRoles, parentID) {
			children = append(children, copyRole(role))
		}
	}
	return children, nil
}

func (s *MemoryStore) CreateRole(_ context.Context, role Role) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.roles[role.ID]; exists {
		return Role{}, errors.Join(ErrStore, fmt.Errorf("role id %q already exists", role.ID))
	}
	s.roles[role.ID] = copyRole(role)
	return role, nil
}

func (s *MemoryStore) UpdateRole(_ context.Context, role Role) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.ID]; !ok {
		return Role{}, errors.Join(ErrRoleNotFound, fmt.Errorf("role id %q", role.ID))
	}
	s.roles[role.ID] = copyRole(role)
	return role, nil
}

func (s *MemoryStore) DeleteRole(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return errors.Join(ErrRoleNotFound, fmt.Errorf("role id %q", id))
	}
	delete(s.roles, id)
	for key, a := range s.assignments {
		if a.RoleID == id {
			delete(s.assignments, key)
		}
	}
	return nil
}

func (s *MemoryStore) AddPermissionsToRole(_ context.Context, roleID string, permissions []Permission) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return Role{}, errors.Join(ErrRoleNotFound, fmt.Errorf("role id %q", roleID))
	}

	existing := make(map[string]bool, len(role.Permissions))
	for _, p := range role.Permissions {
		existing[p.ID] = true
	}
	for _, p := range permissions {
		if !existing[p.ID] {
			existing[p.ID] = true
			role.Permissions = append(role.Permissions, p)
		}
	}

	s.roles[roleID] = role
	return copyRole(role), nil
}

func (s *MemoryStore) RemovePermissionsFromRole(_ context.Context, roleID string, permissionIDs []string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return Role{}, errors.Join(ErrRoleNotFound, fmt.Errorf("role id %q", roleID))
	}

	role.Permissions = slices.DeleteFunc(slices.Clone(role.Permissions), func(p Permission) bool {
		return slices.Contains(permissionIDs, p.ID)
	})

	s.roles[roleID] = role
	return copyRole(role), nil
}

func (s *MemoryStore) FindUserRoleAssignments(_ context.Context, userID, organizationID string) ([]UserRoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []UserRoleAssignment
	for _, a := range s.assignments {
		if a.UserID != userID {
			continue
		}
		// An empty filter means "all organizations", matching how checks
		// without a tenant see global assignments too.
		if organizationID != "" && a.OrganizationID != "" && a.OrganizationID != organizationID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *MemoryStore) AssignRoleToUser(_ context.Context, assignment UserRoleAssignment) (UserRoleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assignments {
		if a.UserID == assignment.UserID && a.RoleID == assignment.RoleID && a.OrganizationID == assignment.OrganizationID {
			// Re-assigning reactivates and refreshes the existing row.
			assignment.ID = a.ID
			break
		}
	}
	s.assignments[assignment.ID] = assignment
	return assignment, nil
}

func (s *MemoryStore) RemoveRoleFromUser(_ context.Context, userID, roleID, organizationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, a := range s.assignments {
		if a.UserID == userID && a.RoleID == roleID && a.OrganizationID == organizationID {
			delete(s.assignments, key)
			return nil
		}
	}
	return errors.Join(ErrAssignmentNotFound,
		fmt.Errorf("user %q role %q organization %q", userID, roleID, organizationID))
}

func (s *MemoryStore) UserHasRole(_ context.Context, userID, roleID, organizationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	for _, a := range s.assignments {
		if a.UserID != userID || a.RoleID != roleID {
			continue
		}
		// Global assignments apply in every organization.
		if organizationID != "" && a.OrganizationID != "" && a.OrganizationID != organizationID {
			continue
		}
		if a.EffectiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

// copyRole clones the slices so callers cannot mutate stored state.
func copyRole(r Role) Role {
	r.Permissions = slices.Clone(r.Permissions)
	r.ParentRoles = slices.Clone(r.ParentRoles)
	return r
}
