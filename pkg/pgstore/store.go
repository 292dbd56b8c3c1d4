package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authzkit/authzkit/pkg/rbac"
)

// Store implements rbac.Store on PostgreSQL. Permissions are stored as a
// JSONB column on the role row and parent edges as a TEXT[] column with a
// GIN index, so hierarchy traversal needs one row per role and child
// lookups stay indexed.
type Store struct {
	pool *pgxpool.Pool
}

var _ rbac.Store = (*Store)(nil)

// NewStore creates a Store over the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const roleColumns = `id, name, display_name, description, permissions, parent_roles,
	is_system, is_active, organization_id, metadata, created_at, updated_at`

func scanRole(row pgx.Row) (rbac.Role, error) {
	var r rbac.Role
	err := row.Scan(&r.ID, &r.Name, &r.DisplayName, &r.Description, &r.Permissions,
		&r.ParentRoles, &r.IsSystem, &r.IsActive, &r.OrganizationID, &r.Metadata,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return rbac.Role{}, err
	}
	return r, nil
}

func (s *Store) FindRoleByID(ctx context.Context, id string) (rbac.Role, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM rbac_roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Role{}, errors.Join(rbac.ErrRoleNotFound, fmt.Errorf("role id %q", id))
		}
		return rbac.Role{}, fmt.Errorf("pgstore: find role: %w", err)
	}
	return role, nil
}

func (s *Store) FindRoleByName(ctx context.Context, name, organizationID string) (rbac.Role, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM rbac_roles WHERE name = $1 AND organization_id = $2`,
		name, organizationID)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Role{}, errors.Join(rbac.ErrRoleNotFound, fmt.Errorf("role name %q", name))
		}
		return rbac.Role{}, fmt.Errorf("pgstore: find role by name: %w", err)
	}
	return role, nil
}

func (s *Store) FindRolesByIDs(ctx context.Context, ids []string) ([]rbac.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+roleColumns+` FROM rbac_roles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("pgstore: find roles: %w", err)
	}
	return collectRoles(rows)
}

func (s *Store) FindChildRoles(ctx context.Context, parentID string) ([]rbac.Role, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+roleColumns+` FROM rbac_roles WHERE parent_roles @> ARRAY[$1]`, parentID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: find child roles: %w", err)
	}
	return collectRoles(rows)
}

func (s *Store) CreateRole(ctx context.Context, role rbac.Role) (rbac.Role, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rbac_roles (`+roleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		role.ID, role.Name, role.DisplayName, role.Description, permissions(role),
		parentRoles(role), role.IsSystem, role.IsActive, role.OrganizationID,
		role.Metadata, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		return rbac.Role{}, fmt.Errorf("pgstore: create role: %w", err)
	}
	return role, nil
}

func (s *Store) UpdateRole(ctx context.Context, role rbac.Role) (rbac.Role, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rbac_roles SET
			name = $2, display_name = $3, description = $4, permissions = $5,
			parent_roles = $6, is_system = $7, is_active = $8,
			organization_id = $9, metadata = $10, updated_at = $11
		WHERE id = $1`,
		role.ID, role.Name, role.DisplayName, role.Description, permissions(role),
		parentRoles(role), role.IsSystem, role.IsActive, role.OrganizationID,
		role.Metadata, role.UpdatedAt)
	if err != nil {
		return rbac.Role{}, fmt.Errorf("pgstore: update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.Role{}, errors.Join(rbac.ErrRoleNotFound, fmt.Errorf("role id %q", role.ID))
	}
	return role, nil
}

func (s *Store) DeleteRole(ctx context.Context, id string) error {
	// Assignments go with the role through the ON DELETE CASCADE constraint.
	tag, err := s.pool.Exec(ctx, `DELETE FROM rbac_roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgstore: delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Join(rbac.ErrRoleNotFound, fmt.Errorf("role id %q", id))
	}
	return nil
}

func (s *Store) AddPermissionsToRole(ctx context.Context, roleID string, permissions []rbac.Permission) (rbac.Role, error) {
	role, err := s.FindRoleByID(ctx, roleID)
	if err != nil {
		return rbac.Role{}, err
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
	role.UpdatedAt = time.Now().UTC()

	return s.UpdateRole(ctx, role)
}

func (s *Store) RemovePermissionsFromRole(ctx context.Context, roleID string, permissionIDs []string) (rbac.Role, error) {
	role, err := s.FindRoleByID(ctx, roleID)
	if err != nil {
		return rbac.Role{}, err
	}

	drop := make(map[string]bool, len(permissionIDs))
	for _, id := range permissionIDs {
		drop[id] = true
	}
	kept := role.Permissions[:0]
	for _, p := range role.Permissions {
		if !drop[p.ID] {
			kept = append(kept, p)
		}
	}
	role.Permissions = kept
	role.UpdatedAt = time.Now().UTC()

	return s.UpdateRole(ctx, role)
}

func (s *Store) FindUserRoleAssignments(ctx context.Context, userID, organizationID string) ([]rbac.UserRoleAssignment, error) {
	// Global assignments (empty organization_id) apply in every organization.
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, role_id, organization_id, assigned_by, assigned_at,
			expires_at, is_active, metadata
		FROM rbac_user_roles
		WHERE user_id = $1 AND ($2 = '' OR organization_id IN ('', $2))`,
		userID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: find assignments: %w", err)
	}
	defer rows.Close()

	var out []rbac.UserRoleAssignment
	for rows.Next() {
		var a rbac.UserRoleAssignment
		if err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &a.OrganizationID,
			&a.AssignedBy, &a.AssignedAt, &a.ExpiresAt, &a.IsActive, &a.Metadata); err != nil {
			return nil, fmt.Errorf("pgstore: scan assignment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: iterate assignments: %w", err)
	}
	return out, nil
}

func (s *Store) AssignRoleToUser(ctx context.Context, assignment rbac.UserRoleAssignment) (rbac.UserRoleAssignment, error) {
	// Re-assigning the same (user, role, org) refreshes the existing row and
	// keeps its id.
	row := s.pool.QueryRow(ctx, `
		INSERT INTO rbac_user_roles
			(id, user_id, role_id, organization_id, assigned_by, assigned_at,
			 expires_at, is_active, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, role_id, organization_id) DO UPDATE SET
			assigned_by = EXCLUDED.assigned_by,
			assigned_at = EXCLUDED.assigned_at,
			expires_at  = EXCLUDED.expires_at,
			is_active   = EXCLUDED.is_active,
			metadata    = EXCLUDED.metadata
		RETURNING id`,
		assignment.ID, assignment.UserID, assignment.RoleID, assignment.OrganizationID,
		assignment.AssignedBy, assignment.AssignedAt, assignment.ExpiresAt,
		assignment.IsActive, assignment.Metadata)

	if err := row.Scan(&assignment.ID); err != nil {
		return rbac.UserRoleAssignment{}, fmt.Errorf("pgstore: assign role: %w", err)
	}
	return assignment, nil
}

func (s *Store) RemoveRoleFromUser(ctx context.Context, userID, roleID, organizationID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM rbac_user_roles
		WHERE user_id = $1 AND role_id = $2 AND organization_id = $3`,
		userID, roleID, organizationID)
	if err != nil {
		return fmt.Errorf("pgstore: remove assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Join(rbac.ErrAssignmentNotFound,
			fmt.Errorf("user %q role %q organization %q", userID, roleID, organizationID))
	}
	return nil
}

func (s *Store) UserHasRole(ctx context.Context, userID, roleID, organizationID string) (bool, error) {
	// Global assignments apply in every organization, so both the global and
	// the org-scoped row can answer.
	rows, err := s.pool.Query(ctx, `
		SELECT is_active, expires_at FROM rbac_user_roles
		WHERE user_id = $1 AND role_id = $2
		  AND ($3 = '' OR organization_id IN ('', $3))`,
		userID, roleID, organizationID)
	if err != nil {
		return false, fmt.Errorf("pgstore: find assignment: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	for rows.Next() {
		var (
			isActive  bool
			expiresAt *time.Time
		)
		if err := rows.Scan(&isActive, &expiresAt); err != nil {
			return false, fmt.Errorf("pgstore: scan assignment: %w", err)
		}
		a := rbac.UserRoleAssignment{IsActive: isActive, ExpiresAt: expiresAt}
		if a.EffectiveAt(now) {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("pgstore: iterate assignments: %w", err)
	}
	return false, nil
}

// parentRoles never returns nil so the TEXT[] column stays NOT NULL.
func parentRoles(role rbac.Role) []string {
	if role.ParentRoles == nil {
		return []string{}
	}
	return role.ParentRoles
}

// permissions never returns nil so the JSONB column stays NOT NULL.
func permissions(role rbac.Role) []rbac.Permission {
	if role.Permissions == nil {
		return []rbac.Permission{}
	}
	return role.Permissions
}

func collectRoles(rows pgx.Rows) ([]rbac.Role, error) {
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: iterate roles: %w", err)
	}
	return roles, nil
}
