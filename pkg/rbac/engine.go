package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"

	"github.com/authzkit/authzkit/pkg/audit"
	"github.com/authzkit/authzkit/pkg/cache"
	"github.com/authzkit/authzkit/pkg/permission"
)

// DefaultUserCacheTTL bounds how long a user's resolved grants stay cached.
// Shorter than the hierarchy TTL because assignments churn more often than
// the role graph.
const DefaultUserCacheTTL = 5 * time.Minute

// Config holds engine tuning knobs, loadable from the environment.
type Config struct {
	CachePrefix       string        `env:"RBAC_CACHE_PREFIX" envDefault:"rbac"`
	CacheSeparator    string        `env:"RBAC_CACHE_SEPARATOR" envDefault:":"`
	UserCacheTTL      time.Duration `env:"RBAC_USER_CACHE_TTL" envDefault:"5m"`
	HierarchyCacheTTL time.Duration `env:"RBAC_HIERARCHY_CACHE_TTL" envDefault:"30m"`
	MaxHierarchyDepth int           `env:"RBAC_MAX_HIERARCHY_DEPTH" envDefault:"10"`
	CycleDetection    bool          `env:"RBAC_CYCLE_DETECTION" envDefault:"true"`
}

// LoadConfig populates Config from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig returns the built-in defaults without touching the
// environment.
func DefaultConfig() Config {
	return Config{
		CachePrefix:       cache.DefaultPrefix,
		CacheSeparator:    cache.DefaultKeySeparator,
		UserCacheTTL:      DefaultUserCacheTTL,
		HierarchyCacheTTL: DefaultHierarchyTTL,
		MaxHierarchyDepth: DefaultMaxDepth,
		CycleDetection:    true,
	}
}

// Engine orchestrates permission checks: it resolves a user's effective
// permissions through the hierarchy resolver, caches the result per
// (user, organization), and matches requested permissions against it.
type Engine struct {
	roles       RoleStore
	assignments UserRoleStore
	cache       cache.Cache
	resolver    *Resolver
	matcher     *permission.Matcher
	auditor     audit.Logger
	keys        cache.KeyBuilder
	cfg         Config
	log         *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) EngineOption {
	return func(e *Engine) { e.cfg = cfg }
}

// WithAuditLogger attaches a fire-and-forget audit logger.
func WithAuditLogger(l audit.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.auditor = l
		}
	}
}

// WithLogger sets the structured logger for degraded-path warnings.
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMatcher overrides the permission matcher, e.g. for case-sensitive or
// custom-separator deployments.
func WithMatcher(m *permission.Matcher) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.matcher = m
		}
	}
}

// NewEngine creates an Engine over the given collaborators.
func NewEngine(roles RoleStore, assignments UserRoleStore, c cache.Cache, opts ...EngineOption) *Engine {
	e := &Engine{
		roles:       roles,
		assignments: assignments,
		cache:       c,
		matcher:     permission.New(),
		auditor:     audit.NopLogger{},
		cfg:         DefaultConfig(),
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.cfg.UserCacheTTL == 0 {
		e.cfg.UserCacheTTL = DefaultUserCacheTTL
	}
	if e.cfg.HierarchyCacheTTL == 0 {
		e.cfg.HierarchyCacheTTL = DefaultHierarchyTTL
	}
	if e.cfg.MaxHierarchyDepth == 0 {
		e.cfg.MaxHierarchyDepth = DefaultMaxDepth
	}

	e.keys = cache.NewKeyBuilder(e.cfg.CachePrefix, e.cfg.CacheSeparator)

	resolverOpts := []ResolverOption{
		WithMaxDepth(e.cfg.MaxHierarchyDepth),
		WithHierarchyTTL(e.cfg.HierarchyCacheTTL),
		WithResolverKeyBuilder(e.keys),
		WithResolverLogger(e.log),
	}
	if !e.cfg.CycleDetection {
		resolverOpts = append(resolverOpts, WithoutCycleDetection())
	}
	e.resolver = NewResolver(roles, c, resolverOpts...)

	return e
}

// Resolver exposes the hierarchy resolver for callers that need direct
// access to inheritance queries.
func (e *Engine) Resolver() *Resolver { return e.resolver }

// UserTag is the cache tag grouping every grant entry of one user.
func UserTag(userID string) string { return "user:" + userID }

func (e *Engine) userKey(userID, organizationID string) string {
	org := organizationID
	if org == "" {
		org = "global"
	}
	return e.keys.Build("user", userID, org)
}

// EffectivePermissions resolves the deduplicated permission set and
// contributing roles for a (user, organization) pair, consulting the cache
// unless skipCache is set.
func (e *Engine) EffectivePermissions(ctx context.Context, userID, organizationID string, skipCache bool) (UserGrants, error) {
	grants, _, err := e.effective(ctx, userID, organizationID, skipCache)
	return grants, err
}

// effective additionally reports whether the result came from cache.
func (e *Engine) effective(ctx context.Context, userID, organizationID string, skipCache bool) (UserGrants, bool, error) {
	key := e.userKey(userID, organizationID)

	if !skipCache {
		raw, err := e.cache.Get(ctx, key)
		switch {
		case err == nil:
			var grants UserGrants
			if err := json.Unmarshal(raw, &grants); err == nil {
				return grants, true, nil
			}
		case !errors.Is(err, cache.ErrCacheMiss):
			// A broken cache degrades to a miss; the store remains the
			// source of truth and the failure is never hidden.
			e.log.WarnContext(ctx, "user grants cache read failed, resolving from store",
				slog.String("user_id", userID), slog.Any("error", err))
		}
	}

	assignments, err := e.assignments.FindUserRoleAssignments(ctx, userID, organizationID)
	if err != nil {
		return UserGrants{}, false, storeErr(err)
	}

	now := time.Now()
	roleIDs := make([]string, 0, len(assignments))
	seenRole := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		if !a.EffectiveAt(now) {
			continue
		}
		if !seenRole[a.RoleID] {
			seenRole[a.RoleID] = true
			roleIDs = append(roleIDs, a.RoleID)
		}
	}

	grants := UserGrants{Permissions: []Permission{}, Roles: []Role{}}

	if len(roleIDs) > 0 {
		roles, err := e.roles.FindRolesByIDs(ctx, roleIDs)
		if err != nil {
			return UserGrants{}, false, storeErr(err)
		}

		seenPerm := make(map[string]bool)
		collected := make(map[string]bool)
		for _, role := range roles {
			if !role.IsActive {
				continue
			}

			perms, err := e.resolver.InheritedPermissions(ctx, role.ID)
			if err != nil {
				return UserGrants{}, false, err
			}
			for _, p := range perms {
				if !seenPerm[p.ID] {
					seenPerm[p.ID] = true
					grants.Permissions = append(grants.Permissions, p)
				}
			}

			if !collected[role.ID] {
				collected[role.ID] = true
				grants.Roles = append(grants.Roles, role)
			}
			parents, err := e.resolver.ParentRoles(ctx, role.ID)
			if err != nil {
				return UserGrants{}, false, err
			}
			for _, parent := range parents {
				if !collected[parent.ID] {
					collected[parent.ID] = true
					grants.Roles = append(grants.Roles, parent)
				}
			}
		}
	}

	tags := make([]string, 0, len(grants.Roles)+1)
	tags = append(tags, UserTag(userID))
	for _, role := range grants.Roles {
		tags = append(tags, RoleTag(role.ID))
	}

	if raw, err := json.Marshal(grants); err == nil {
		if err := e.cache.Set(ctx, key, raw,
			cache.WithTTL(e.cfg.UserCacheTTL), cache.WithTags(tags...)); err != nil {
			e.log.WarnContext(ctx, "user grants cache write failed",
				slog.String("user_id", userID), slog.Any("error", err))
		}
	}

	return grants, false, nil
}

// InvalidateUserCache drops the cached grants of one user across all
// organizations.
func (e *Engine) InvalidateUserCache(ctx context.Context, userID string) error {
	_, err := e.cache.DeleteByTags(ctx, UserTag(userID))
	return err
}

// InvalidateRoleCache drops the role's hierarchy caches and cascades to
// every descendant role and every user-grant entry derived from it.
func (e *Engine) InvalidateRoleCache(ctx context.Context, roleID string) error {
	return e.resolver.Invalidate(ctx, roleID)
}

// ClearAllCaches drops every cache entry the engine owns.
func (e *Engine) ClearAllCaches(ctx context.Context) error {
	return e.cache.Clear(ctx)
}

// healthProbeID is a role id no store should ever contain; a clean
// not-found answer proves the store is reachable.
var healthProbeID = "healthcheck-" + uuid.NewString()

// HealthCheck verifies that both collaborators respond: the cache with a
// write/read round trip and the role store with a lookup.
func (e *Engine) HealthCheck(ctx context.Context) error {
	probeKey := e.keys.Build("health", uuid.NewString())
	if err := e.cache.Set(ctx, probeKey, []byte("ok"), cache.WithTTL(time.Minute)); err != nil {
		return errors.Join(ErrCache, err)
	}
	if _, err := e.cache.Get(ctx, probeKey); err != nil {
		return errors.Join(ErrCache, err)
	}
	_ = e.cache.Delete(ctx, probeKey)

	if _, err := e.roles.FindRoleByID(ctx, healthProbeID); err != nil && !errors.Is(err, ErrRoleNotFound) {
		return storeErr(err)
	}
	return nil
}
