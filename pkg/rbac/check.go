package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/authzkit/authzkit/pkg/audit"
	"github.com/authzkit/authzkit/pkg/permission"
)

// CheckResult explains the outcome of a single permission check.
type CheckResult struct {
	Allowed           bool
	MatchedPermission *Permission
	GrantedByRole     *Role
	CheckedRoles      []string
	DeniedReason      string
	FromCache         bool
	Duration          time.Duration
}

// Can reports whether the user holds the required permission. It never
// returns an error: any resolution failure is logged and treated as a
// denial, so a cache or store outage fails closed.
func (e *Engine) Can(ctx context.Context, userID, required string, pctx permission.Context) bool {
	result, err := e.CheckDetailed(ctx, userID, required, pctx)
	if err != nil {
		e.log.ErrorContext(ctx, "permission check failed, denying",
			slog.String("user_id", userID),
			slog.String("permission", required),
			slog.Any("error", err))
		return false
	}
	return result.Allowed
}

// Authorize checks the permission and returns ErrPermissionDenied when the
// user does not hold it. Resolution failures are returned as-is so callers
// can distinguish a denial from an outage.
func (e *Engine) Authorize(ctx context.Context, userID, required string, pctx permission.Context) error {
	result, err := e.CheckDetailed(ctx, userID, required, pctx)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return errors.Join(ErrPermissionDenied,
			fmt.Errorf("user %q lacks %q: %s", userID, required, result.DeniedReason))
	}
	return nil
}

// CanAny reports whether the user holds at least one of the permissions.
func (e *Engine) CanAny(ctx context.Context, userID string, pctx permission.Context, required ...string) bool {
	for _, p := range required {
		if e.Can(ctx, userID, p, pctx) {
			return true
		}
	}
	return false
}

// CanAll reports whether the user holds every one of the permissions.
func (e *Engine) CanAll(ctx context.Context, userID string, pctx permission.Context, required ...string) bool {
	if len(required) == 0 {
		return false
	}
	for _, p := range required {
		if !e.Can(ctx, userID, p, pctx) {
			return false
		}
	}
	return true
}

// CanFromContext checks a permission for the user and organization carried
// in the context. Returns false when no user is present.
func (e *Engine) CanFromContext(ctx context.Context, required string) bool {
	userID, ok := UserFromContext(ctx)
	if !ok {
		return false
	}
	pctx := permission.Context{UserID: userID}
	if org, ok := OrganizationFromContext(ctx); ok {
		pctx.OrganizationID = org
	}
	return e.Can(ctx, userID, required, pctx)
}

// CheckDetailed performs a full permission check and reports which grant
// matched, which role contributed it, and whether cached grants were used.
func (e *Engine) CheckDetailed(ctx context.Context, userID, required string, pctx permission.Context) (CheckResult, error) {
	start := time.Now()

	grants, fromCache, err := e.effective(ctx, userID, pctx.OrganizationID, false)
	if err != nil {
		return CheckResult{Duration: time.Since(start)}, err
	}

	result := CheckResult{
		FromCache:    fromCache,
		CheckedRoles: make([]string, 0, len(grants.Roles)),
	}
	for _, role := range grants.Roles {
		result.CheckedRoles = append(result.CheckedRoles, role.Name)
	}

	if pctx.UserID == "" {
		pctx.UserID = userID
	}

	grant, ok := e.matcher.FindBestMatch(required, grants.Grants(), pctx)
	if ok {
		result.Allowed = true
		for i := range grants.Permissions {
			if grants.Permissions[i].ID == grant.ID {
				result.MatchedPermission = &grants.Permissions[i]
				break
			}
		}
		// Every effective permission is carried directly by one of the
		// resolved roles, ancestors included, so a direct scan finds the
		// contributor.
		for i := range grants.Roles {
			if grants.Roles[i].HasDirectPermission(grant.ID) {
				result.GrantedByRole = &grants.Roles[i]
				break
			}
		}
	} else {
		result.DeniedReason = "no effective permission grants " + required
	}
	result.Duration = time.Since(start)

	e.auditor.LogPermissionCheck(ctx, audit.CheckEvent{
		UserID:         userID,
		Permission:     required,
		Granted:        result.Allowed,
		OrganizationID: pctx.OrganizationID,
	})

	return result, nil
}

// HasRole reports whether the user currently holds the role directly,
// honoring assignment expiry.
func (e *Engine) HasRole(ctx context.Context, userID, roleID, organizationID string) (bool, error) {
	ok, err := e.assignments.UserHasRole(ctx, userID, roleID, organizationID)
	if err != nil {
		return false, storeErr(err)
	}
	return ok, nil
}
