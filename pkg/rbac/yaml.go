package rbac

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/authzkit/authzkit/pkg/permission"
)

// roleFile is the YAML document shape for declarative role definitions.
//
//	roles:
//	  - name: editor
//	    display_name: Editor
//	    permissions:
//	      - posts:read
//	      - posts:update:own
//	  - name: admin
//	    parents: [editor]
//	    system: true
//	    permissions:
//	      - resource: posts
//	        action: delete
//	        scope: all
//	        conditions:
//	          department: engineering
type roleFile struct {
	Roles []roleSpec `yaml:"roles"`
}

type roleSpec struct {
	ID             string           `yaml:"id"`
	Name           string           `yaml:"name"`
	DisplayName    string           `yaml:"display_name"`
	Description    string           `yaml:"description"`
	OrganizationID string           `yaml:"organization_id"`
	System         bool             `yaml:"system"`
	Parents        []string         `yaml:"parents"`
	Permissions    []permissionSpec `yaml:"permissions"`
}

// permissionSpec accepts either a wire-form string ("resource:action[:scope]")
// or a mapping with explicit fields and optional conditions.
type permissionSpec struct {
	Resource    string         `yaml:"resource"`
	Action      string         `yaml:"action"`
	Scope       string         `yaml:"scope"`
	Conditions  map[string]any `yaml:"conditions"`
	Description string         `yaml:"description"`
}

func (p *permissionSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		if err := permission.Validate(s); err != nil {
			return errors.Join(ErrInvalidPermission, err)
		}
		parsed := permission.Parse(s)
		p.Resource = parsed.Resource
		p.Action = parsed.Action
		p.Scope = parsed.Scope
		return nil
	}

	type plain permissionSpec
	return node.Decode((*plain)(p))
}

// ParseRoles decodes declarative role definitions from YAML. Role ids
// default to the role name, so parents can reference roles by name.
// Permission ids default to the wire form, keeping them stable across
// repeated loads.
func ParseRoles(data []byte) ([]Role, error) {
	var file roleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("rbac: parse roles: %w", err)
	}

	seen := make(map[string]bool, len(file.Roles))
	roles := make([]Role, 0, len(file.Roles))
	for _, spec := range file.Roles {
		if strings.TrimSpace(spec.Name) == "" {
			return nil, ErrInvalidRoleName
		}
		id := spec.ID
		if id == "" {
			id = spec.Name
		}
		if seen[id] {
			return nil, fmt.Errorf("rbac: duplicate role %q in definition", id)
		}
		seen[id] = true

		perms := make([]Permission, 0, len(spec.Permissions))
		for _, ps := range spec.Permissions {
			perm := Permission{
				Resource:    ps.Resource,
				Action:      ps.Action,
				Scope:       ps.Scope,
				Conditions:  ps.Conditions,
				Description: ps.Description,
			}
			if err := permission.Validate(perm.String()); err != nil {
				return nil, errors.Join(ErrInvalidPermission,
					fmt.Errorf("role %q: %q: %w", id, perm.String(), err))
			}
			perm.ID = perm.String()
			perms = append(perms, perm)
		}

		roles = append(roles, Role{
			ID:             id,
			Name:           spec.Name,
			DisplayName:    spec.DisplayName,
			Description:    spec.Description,
			OrganizationID: spec.OrganizationID,
			IsSystem:       spec.System,
			IsActive:       true,
			ParentRoles:    spec.Parents,
			Permissions:    perms,
		})
	}

	return roles, nil
}

// LoadRolesFile reads and parses a YAML role definition file.
func LoadRolesFile(path string) ([]Role, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rbac: read roles file: %w", err)
	}
	return ParseRoles(data)
}

// SeedRoles upserts a batch of declarative roles into the store. The batch
// is validated as a whole first: every parent must resolve inside the batch
// or the store, and the combined graph must stay acyclic. Existing rows are
// updated in place (timestamps preserved) and every touched role's caches
// are invalidated, so seeding is safe to run on every startup.
func (e *Engine) SeedRoles(ctx context.Context, roles []Role) error {
	if err := e.validateSeedBatch(ctx, roles); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, role := range roles {
		existing, err := e.roles.FindRoleByID(ctx, role.ID)
		switch {
		case err == nil:
			role.CreatedAt = existing.CreatedAt
			role.UpdatedAt = now
			fillPermissionIDs(role.Permissions, now)
			if _, err := e.roles.UpdateRole(ctx, role); err != nil {
				return storeErr(err)
			}
		case errors.Is(err, ErrRoleNotFound):
			role.CreatedAt = now
			role.UpdatedAt = now
			fillPermissionIDs(role.Permissions, now)
			if _, err := e.roles.CreateRole(ctx, role); err != nil {
				return storeErr(err)
			}
		default:
			return storeErr(err)
		}

		if err := e.resolver.Invalidate(ctx, role.ID); err != nil {
			return err
		}
	}

	return nil
}

// validateSeedBatch checks parent resolvability and acyclicity over the
// union of the batch and the store.
func (e *Engine) validateSeedBatch(ctx context.Context, roles []Role) error {
	inBatch := make(map[string][]string, len(roles))
	for _, role := range roles {
		if strings.TrimSpace(role.Name) == "" {
			return ErrInvalidRoleName
		}
		if err := validatePermissions(role.Permissions); err != nil {
			return err
		}
		inBatch[role.ID] = role.ParentRoles
	}

	for _, role := range roles {
		for _, parentID := range role.ParentRoles {
			if parentID == role.ID {
				return &HierarchyError{Sentinel: ErrSelfParent, Chain: []string{role.ID, parentID}}
			}
			if _, ok := inBatch[parentID]; ok {
				continue
			}
			if _, err := e.roles.FindRoleByID(ctx, parentID); err != nil {
				if errors.Is(err, ErrRoleNotFound) {
					return errors.Join(ErrRoleNotFound,
						fmt.Errorf("role %q: parent %q not in definition or store", role.ID, parentID))
				}
				return storeErr(err)
			}
		}
	}

	// DFS over the post-seed graph: batch definitions override store rows,
	// and edges leaving the batch are followed through the store, because a
	// store-resident role can already point back into the batch. Dangling
	// store edges are skipped, as on the read path.
	stored := make(map[string][]string)
	parentsOf := func(id string) ([]string, error) {
		if parents, ok := inBatch[id]; ok {
			return parents, nil
		}
		if parents, ok := stored[id]; ok {
			return parents, nil
		}
		role, err := e.roles.FindRoleByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrRoleNotFound) {
				stored[id] = nil
				return nil, nil
			}
			return nil, storeErr(err)
		}
		stored[id] = role.ParentRoles
		return role.ParentRoles, nil
	}

	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(inBatch))
	var visit func(id string, chain []string) error
	visit = func(id string, chain []string) error {
		color[id] = grey
		parents, err := parentsOf(id)
		if err != nil {
			return err
		}
		for _, parentID := range parents {
			switch color[parentID] {
			case grey:
				return &HierarchyError{Sentinel: ErrCircularHierarchy, Chain: append(chain, parentID)}
			case white:
				if err := visit(parentID, append(chain, parentID)); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	for id := range inBatch {
		if color[id] == white {
			if err := visit(id, []string{id}); err != nil {
				return err
			}
		}
	}

	return nil
}
