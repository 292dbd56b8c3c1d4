package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authzkit/authzkit/pkg/audit"
)

func drain(t *testing.T, l *audit.AsyncLogger) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Close(ctx))
}

func TestAsyncLogger_DeliversEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := audit.NewMemorySink()
	l := audit.NewAsyncLogger(sink)

	l.LogPermissionCheck(ctx, audit.CheckEvent{
		UserID:     "u1",
		Permission: "posts:read",
		Granted:    true,
	})
	l.LogRoleCreation(ctx, audit.RoleEvent{RoleID: "r1", RoleName: "editor"})
	l.LogRoleAssignment(ctx, audit.AssignmentEvent{UserID: "u1", RoleID: "r1"})

	drain(t, l)

	events := sink.Events()
	require.Len(t, events, 3)

	assert.Equal(t, audit.KindPermissionCheck, events[0].Kind)
	assert.Equal(t, "u1", events[0].UserID)
	assert.Equal(t, "posts:read", events[0].Permission)
	assert.True(t, events[0].Granted)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].At.IsZero())

	assert.Equal(t, audit.KindRoleCreated, events[1].Kind)
	assert.Equal(t, audit.KindRoleAssigned, events[2].Kind)
}

func TestAsyncLogger_CloseIdempotent(t *testing.T) {
	t.Parallel()
	l := audit.NewAsyncLogger(audit.NewMemorySink())

	drain(t, l)
	require.NoError(t, l.Close(context.Background()))
}

func TestAsyncLogger_EnqueueAfterCloseIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := audit.NewMemorySink()
	l := audit.NewAsyncLogger(sink)
	drain(t, l)

	l.LogPermissionCheck(ctx, audit.CheckEvent{UserID: "u1", Permission: "posts:read"})
	assert.Empty(t, sink.Events())
}

type failingSink struct{}

func (failingSink) Store(context.Context, audit.Event) error {
	return errors.New("sink unavailable")
}

func TestAsyncLogger_SinkFailureDoesNotPropagate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := audit.NewAsyncLogger(failingSink{})

	// Must neither block nor panic.
	l.LogRoleDeletion(ctx, audit.RoleEvent{RoleID: "r1"})
	drain(t, l)
}

func TestNopLogger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var l audit.Logger = audit.NopLogger{}
	l.LogPermissionCheck(ctx, audit.CheckEvent{})
	l.LogRoleUpdate(ctx, audit.RoleEvent{})
	l.LogRoleRemoval(ctx, audit.AssignmentEvent{})
}
