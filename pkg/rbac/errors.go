package rbac

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors. All are matchable with errors.Is; detail types below carry
// structured context and unwrap to these sentinels.
var (
	// ErrPermissionDenied is returned by Authorize when the check fails.
	ErrPermissionDenied = errors.New("rbac: permission denied")

	// ErrRoleNotFound is returned when a role cannot be located by id or name.
	ErrRoleNotFound = errors.New("rbac: role not found")

	// ErrAssignmentNotFound is returned when a user-role assignment is missing.
	ErrAssignmentNotFound = errors.New("rbac: role assignment not found")

	// ErrCircularHierarchy is returned when role inheritance forms a cycle.
	ErrCircularHierarchy = errors.New("rbac: circular role hierarchy")

	// ErrSelfParent is returned when a role lists itself as a parent.
	// Rejected unconditionally, even with cycle detection disabled.
	ErrSelfParent = errors.New("rbac: role cannot be its own parent")

	// ErrMaxDepthExceeded is returned when hierarchy traversal exceeds the
	// configured depth limit.
	ErrMaxDepthExceeded = errors.New("rbac: role hierarchy exceeds maximum depth")

	// ErrInvalidRoleName is returned when creating or renaming a role with
	// an empty or blank name.
	ErrInvalidRoleName = errors.New("rbac: invalid role name")

	// ErrInvalidPermission is returned when a role carries a permission that
	// fails wire-form validation.
	ErrInvalidPermission = errors.New("rbac: invalid permission")

	// ErrSystemRole is returned on attempts to delete or structurally change
	// a protected system role.
	ErrSystemRole = errors.New("rbac: system role cannot be modified")

	// ErrStore wraps unexpected failures surfaced by storage collaborators.
	ErrStore = errors.New("rbac: store operation failed")

	// ErrCache wraps failures surfaced by the cache collaborator, so health
	// checks can tell a cache outage from a storage one.
	ErrCache = errors.New("rbac: cache operation failed")
)

// HierarchyError carries the role-id chain that triggered a cycle or depth
// failure. It unwraps to ErrCircularHierarchy or ErrMaxDepthExceeded.
type HierarchyError struct {
	// Sentinel is the class of failure.
	Sentinel error
	// Chain is the visited role-id path, root first.
	Chain []string
}

func (e *HierarchyError) Error() string {
	return fmt.Sprintf("%v: %s", e.Sentinel, strings.Join(e.Chain, " -> "))
}

func (e *HierarchyError) Unwrap() error { return e.Sentinel }

// storeErr wraps a collaborator failure unless it already is a domain error.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRoleNotFound) || errors.Is(err, ErrAssignmentNotFound) {
		return err
	}
	return errors.Join(ErrStore, err)
}
