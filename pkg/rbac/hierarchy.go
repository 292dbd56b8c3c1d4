package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/authzkit/authzkit/pkg/cache"
)

// DefaultHierarchyTTL bounds how long resolved hierarchies and inherited
// permission sets stay cached. The role graph churns less than assignments,
// so this is deliberately longer than the user-grants TTL.
const DefaultHierarchyTTL = 30 * time.Minute

// Resolver walks the role inheritance graph: it aggregates inherited
// permissions, guards against cycles and excessive depth, and owns the
// hierarchy-shaped cache entries together with their cascade invalidation.
type Resolver struct {
	store        RoleStore
	cache        cache.Cache
	keys         cache.KeyBuilder
	maxDepth     int
	ttl          time.Duration
	detectCycles bool
	log          *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithMaxDepth bounds hierarchy traversal (default 10).
func WithMaxDepth(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// WithHierarchyTTL sets the cache lifetime of resolved hierarchies.
func WithHierarchyTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if ttl != 0 {
			r.ttl = ttl
		}
	}
}

// WithoutCycleDetection skips the cycle branch during traversal: an already
// visited parent is silently ignored instead of failing the resolution.
// Self-parenting is still rejected. Intended for callers that validate the
// graph on write and prefer availability on read.
func WithoutCycleDetection() ResolverOption {
	return func(r *Resolver) { r.detectCycles = false }
}

// WithResolverKeyBuilder overrides the cache key namespace.
func WithResolverKeyBuilder(kb cache.KeyBuilder) ResolverOption {
	return func(r *Resolver) { r.keys = kb }
}

// WithResolverLogger sets the logger used for degraded-cache warnings.
func WithResolverLogger(log *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if log != nil {
			r.log = log
		}
	}
}

// NewResolver creates a Resolver on top of a role store and a cache.
func NewResolver(store RoleStore, c cache.Cache, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:        store,
		cache:        c,
		keys:         cache.NewKeyBuilder("", ""),
		maxDepth:     DefaultMaxDepth,
		ttl:          DefaultHierarchyTTL,
		detectCycles: true,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RoleTag is the cache tag shared by every entry derived from a role, used
// to drop user-grant entries alongside hierarchy entries on invalidation.
func RoleTag(roleID string) string { return "role:" + roleID }

func (r *Resolver) hierarchyKey(roleID string) string { return r.keys.Build("hierarchy", roleID) }
func (r *Resolver) permsKey(roleID string) string     { return r.keys.Build("roleperms", roleID) }

// ParentRoles resolves every ancestor of the role, nearest first, visiting
// each ancestor once. Results are cached under the role's hierarchy key.
func (r *Resolver) ParentRoles(ctx context.Context, roleID string) ([]Role, error) {
	if raw, err := r.cache.Get(ctx, r.hierarchyKey(roleID)); err == nil {
		var parents []Role
		if err := json.Unmarshal(raw, &parents); err == nil {
			return parents, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		r.log.WarnContext(ctx, "hierarchy cache read failed, resolving from store",
			slog.String("role_id", roleID), slog.Any("error", err))
	}

	role, err := r.store.FindRoleByID(ctx, roleID)
	if err != nil {
		return nil, storeErr(err)
	}

	visited := map[string]bool{roleID: true}
	parents, err := r.collectParents(ctx, role, visited, []string{roleID}, 0)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(parents); err == nil {
		if err := r.cache.Set(ctx, r.hierarchyKey(roleID), raw,
			cache.WithTTL(r.ttl), cache.WithTags(RoleTag(roleID))); err != nil {
			r.log.WarnContext(ctx, "hierarchy cache write failed",
				slog.String("role_id", roleID), slog.Any("error", err))
		}
	}

	return parents, nil
}

// collectParents walks the parent edges of role depth-first. The visited set
// is threaded through the whole traversal; recursion alone is never trusted
// for cycle safety.
func (r *Resolver) collectParents(ctx context.Context, role Role, visited map[string]bool, chain []string, depth int) ([]Role, error) {
	var parents []Role

	for _, parentID := range role.ParentRoles {
		if parentID == role.ID {
			return nil, &HierarchyError{Sentinel: ErrSelfParent, Chain: append(chain, parentID)}
		}
		if visited[parentID] {
			if r.detectCycles {
				return nil, &HierarchyError{Sentinel: ErrCircularHierarchy, Chain: append(chain, parentID)}
			}
			continue
		}
		if depth+1 > r.maxDepth {
			return nil, &HierarchyError{Sentinel: ErrMaxDepthExceeded, Chain: append(chain, parentID)}
		}
		visited[parentID] = true

		parent, err := r.store.FindRoleByID(ctx, parentID)
		if err != nil {
			if errors.Is(err, ErrRoleNotFound) {
				continue // dangling edge left behind by a deleted parent
			}
			return nil, storeErr(err)
		}
		parents = append(parents, parent)

		grand, err := r.collectParents(ctx, parent, visited, append(chain, parentID), depth+1)
		if err != nil {
			return nil, err
		}
		parents = append(parents, grand...)
	}

	return parents, nil
}

// InheritedPermissions returns the role's direct permissions plus every
// ancestor's direct permissions, deduplicated by permission id. The role's
// own permissions win on id collision; ancestors only fill gaps.
func (r *Resolver) InheritedPermissions(ctx context.Context, roleID string) ([]Permission, error) {
	if raw, err := r.cache.Get(ctx, r.permsKey(roleID)); err == nil {
		var perms []Permission
		if err := json.Unmarshal(raw, &perms); err == nil {
			return perms, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		r.log.WarnContext(ctx, "permission cache read failed, resolving from store",
			slog.String("role_id", roleID), slog.Any("error", err))
	}

	role, err := r.store.FindRoleByID(ctx, roleID)
	if err != nil {
		return nil, storeErr(err)
	}
	parents, err := r.ParentRoles(ctx, roleID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(role.Permissions))
	perms := make([]Permission, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		if !seen[p.ID] {
			seen[p.ID] = true
			perms = append(perms, p)
		}
	}
	for _, parent := range parents {
		for _, p := range parent.Permissions {
			if !seen[p.ID] {
				seen[p.ID] = true
				perms = append(perms, p)
			}
		}
	}

	if raw, err := json.Marshal(perms); err == nil {
		if err := r.cache.Set(ctx, r.permsKey(roleID), raw,
			cache.WithTTL(r.ttl), cache.WithTags(RoleTag(roleID))); err != nil {
			r.log.WarnContext(ctx, "permission cache write failed",
				slog.String("role_id", roleID), slog.Any("error", err))
		}
	}

	return perms, nil
}

// ValidateHierarchy checks whether adding parentID as a parent of childID
// would keep the graph acyclic. It must be called before persisting any new
// parent edge. The check always reads fresh store data, never the cache.
func (r *Resolver) ValidateHierarchy(ctx context.Context, childID, parentID string) error {
	if childID == parentID {
		return &HierarchyError{Sentinel: ErrSelfParent, Chain: []string{childID, parentID}}
	}

	parent, err := r.store.FindRoleByID(ctx, parentID)
	if err != nil {
		return storeErr(err)
	}

	path, err := r.findPath(ctx, parent, childID, map[string]bool{parentID: true}, 0)
	if err != nil {
		return err
	}
	if path != nil {
		return &HierarchyError{
			Sentinel: ErrCircularHierarchy,
			Chain:    append([]string{childID}, path...),
		}
	}
	return nil
}

// findPath returns the ancestor chain from role up to targetID if the
// target is reachable, nil otherwise.
func (r *Resolver) findPath(ctx context.Context, role Role, targetID string, visited map[string]bool, depth int) ([]string, error) {
	for _, parentID := range role.ParentRoles {
		if parentID == targetID {
			return []string{role.ID, parentID}, nil
		}
		if visited[parentID] || depth+1 > r.maxDepth {
			continue
		}
		visited[parentID] = true

		parent, err := r.store.FindRoleByID(ctx, parentID)
		if err != nil {
			if errors.Is(err, ErrRoleNotFound) {
				continue // dangling edge, nothing to reach through it
			}
			return nil, storeErr(err)
		}
		path, err := r.findPath(ctx, parent, targetID, visited, depth+1)
		if err != nil {
			return nil, err
		}
		if path != nil {
			return append([]string{role.ID}, path...), nil
		}
	}
	return nil, nil
}

// HasCircularDependency reports whether the graph reachable from roleID
// already contains a cycle. Useful as an after-the-fact integrity probe.
func (r *Resolver) HasCircularDependency(ctx context.Context, roleID string) (bool, error) {
	role, err := r.store.FindRoleByID(ctx, roleID)
	if err != nil {
		return false, storeErr(err)
	}
	probe := *r
	probe.detectCycles = true
	_, err = probe.collectParents(ctx, role, map[string]bool{roleID: true}, []string{roleID}, 0)
	if errors.Is(err, ErrCircularHierarchy) || errors.Is(err, ErrSelfParent) {
		return true, nil
	}
	return false, err
}

// TreeNode is one node of the downward hierarchy view.
type TreeNode struct {
	Role     Role        `json:"role"`
	Children []*TreeNode `json:"children,omitempty"`
	Depth    int         `json:"depth"`
}

// HierarchyTree expands the inverse relation from rootID downwards. A child
// already present on the current root-to-node path is pruned, so a
// malformed graph cannot recurse forever.
func (r *Resolver) HierarchyTree(ctx context.Context, rootID string) (*TreeNode, error) {
	root, err := r.store.FindRoleByID(ctx, rootID)
	if err != nil {
		return nil, storeErr(err)
	}
	return r.buildTree(ctx, root, map[string]bool{rootID: true}, 0)
}

func (r *Resolver) buildTree(ctx context.Context, role Role, path map[string]bool, depth int) (*TreeNode, error) {
	node := &TreeNode{Role: role, Depth: depth}

	children, err := r.store.FindChildRoles(ctx, role.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	for _, child := range children {
		if path[child.ID] {
			continue
		}
		path[child.ID] = true
		childNode, err := r.buildTree(ctx, child, path, depth+1)
		if err != nil {
			return nil, err
		}
		delete(path, child.ID)
		node.Children = append(node.Children, childNode)
	}

	return node, nil
}

// Invalidate drops the role's hierarchy-shaped cache entries and every
// tagged entry derived from it, then cascades to all descendant roles. The
// cascade is required for correctness: a parent's permission change must
// reach every descendant's cached inherited set. Invalidating an absent
// entry is a no-op, so repeated calls are harmless.
func (r *Resolver) Invalidate(ctx context.Context, roleID string) error {
	visited := map[string]bool{roleID: true}
	queue := []string{roleID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if err := r.cache.Delete(ctx, r.hierarchyKey(id)); err != nil {
			return err
		}
		if err := r.cache.Delete(ctx, r.permsKey(id)); err != nil {
			return err
		}
		if _, err := r.cache.DeleteByTags(ctx, RoleTag(id)); err != nil {
			return err
		}

		children, err := r.store.FindChildRoles(ctx, id)
		if err != nil {
			return storeErr(err)
		}
		for _, child := range children {
			if !visited[child.ID] {
				visited[child.ID] = true
				queue = append(queue, child.ID)
			}
		}
	}

	return nil
}
