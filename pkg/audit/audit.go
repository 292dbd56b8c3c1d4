package audit

import (
	"context"
	"time"
)

// Kind classifies audit events.
type Kind string

const (
	KindPermissionCheck Kind = "permission.check"
	KindRoleCreated     Kind = "role.created"
	KindRoleUpdated     Kind = "role.updated"
	KindRoleDeleted     Kind = "role.deleted"
	KindRoleAssigned    Kind = "role.assigned"
	KindRoleRemoved     Kind = "role.removed"
)

// Event is a single audit record.
type Event struct {
	ID             string         `json:"id"`
	Kind           Kind           `json:"kind"`
	At             time.Time      `json:"at"`
	UserID         string         `json:"user_id,omitempty"`
	ActorID        string         `json:"actor_id,omitempty"`
	RoleID         string         `json:"role_id,omitempty"`
	RoleName       string         `json:"role_name,omitempty"`
	Permission     string         `json:"permission,omitempty"`
	Granted        bool           `json:"granted,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// CheckEvent describes a permission check outcome.
type CheckEvent struct {
	UserID         string
	Permission     string
	Granted        bool
	OrganizationID string
	Metadata       map[string]any
}

// RoleEvent describes a role lifecycle change.
type RoleEvent struct {
	RoleID         string
	RoleName       string
	ActorID        string
	OrganizationID string
	Metadata       map[string]any
}

// AssignmentEvent describes a user-role assignment change.
type AssignmentEvent struct {
	UserID         string
	RoleID         string
	ActorID        string
	OrganizationID string
	Metadata       map[string]any
}

// Logger receives authorization audit events. All methods are
// fire-and-forget by contract: they return nothing, must not block the
// caller meaningfully, and their failures must never influence
// authorization outcomes.
type Logger interface {
	LogPermissionCheck(ctx context.Context, event CheckEvent)
	LogRoleCreation(ctx context.Context, event RoleEvent)
	LogRoleUpdate(ctx context.Context, event RoleEvent)
	LogRoleDeletion(ctx context.Context, event RoleEvent)
	LogRoleAssignment(ctx context.Context, event AssignmentEvent)
	LogRoleRemoval(ctx context.Context, event AssignmentEvent)
}

// Sink persists audit events. Implementations are external collaborators
// (database tables, log pipelines, SIEM exporters).
type Sink interface {
	Store(ctx context.Context, event Event) error
}

// NopLogger discards every event.
type NopLogger struct{}

func (NopLogger) LogPermissionCheck(context.Context, CheckEvent)     {}
func (NopLogger) LogRoleCreation(context.Context, RoleEvent)         {}
func (NopLogger) LogRoleUpdate(context.Context, RoleEvent)           {}
func (NopLogger) LogRoleDeletion(context.Context, RoleEvent)         {}
func (NopLogger) LogRoleAssignment(context.Context, AssignmentEvent) {}
func (NopLogger) LogRoleRemoval(context.Context, AssignmentEvent)    {}
