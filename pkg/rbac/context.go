package rbac

import "context"

type ctxKey struct{ name string }

var (
	userCtxKey = ctxKey{"user"}
	orgCtxKey  = ctxKey{"organization"}
)

// WithUser returns a context carrying the authenticated user id.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userCtxKey, userID)
}

// UserFromContext extracts the user id stored by WithUser.
func UserFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userCtxKey).(string)
	return userID, ok && userID != ""
}

// WithOrganization returns a context carrying the active organization id.
func WithOrganization(ctx context.Context, organizationID string) context.Context {
	return context.WithValue(ctx, orgCtxKey, organizationID)
}

// OrganizationFromContext extracts the organization id stored by
// WithOrganization.
func OrganizationFromContext(ctx context.Context) (string, bool) {
	organizationID, ok := ctx.Value(orgCtxKey).(string)
	return organizationID, ok && organizationID != ""
}
