package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultBufferSize = 1024

// AsyncLogger dispatches events to a Sink through a bounded queue. Enqueue
// never blocks: when the queue is full the event is dropped and a warning
// is logged, so an audit-sink outage can never become an authorization
// outage.
type AsyncLogger struct {
	sink Sink
	ch   chan Event
	log  *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// AsyncOption configures an AsyncLogger.
type AsyncOption func(*AsyncLogger)

// WithBufferSize sets the queue capacity (default 1024).
func WithBufferSize(n int) AsyncOption {
	return func(l *AsyncLogger) {
		if n > 0 {
			l.ch = make(chan Event, n)
		}
	}
}

// WithAsyncLogger sets the logger used to report drops and sink failures.
func WithAsyncLogger(log *slog.Logger) AsyncOption {
	return func(l *AsyncLogger) {
		if log != nil {
			l.log = log
		}
	}
}

// NewAsyncLogger creates a started AsyncLogger. Call Close to drain the
// queue on shutdown.
func NewAsyncLogger(sink Sink, opts ...AsyncOption) *AsyncLogger {
	l := &AsyncLogger{
		sink: sink,
		ch:   make(chan Event, defaultBufferSize),
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.wg.Add(1)
	go l.worker()

	return l
}

func (l *AsyncLogger) worker() {
	defer l.wg.Done()
	for event := range l.ch {
		// The caller's request context is long gone by the time the event
		// is persisted; storage runs under its own background context.
		if err := l.sink.Store(context.Background(), event); err != nil {
			l.log.Warn("audit sink store failed",
				slog.String("event_id", event.ID),
				slog.String("kind", string(event.Kind)),
				slog.Any("error", err))
		}
	}
}

func (l *AsyncLogger) enqueue(event Event) {
	event.ID = uuid.NewString()
	event.At = time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	select {
	case l.ch <- event:
	default:
		l.log.Warn("audit queue full, event dropped",
			slog.String("kind", string(event.Kind)))
	}
}

func (l *AsyncLogger) LogPermissionCheck(_ context.Context, e CheckEvent) {
	l.enqueue(Event{
		Kind:           KindPermissionCheck,
		UserID:         e.UserID,
		Permission:     e.Permission,
		Granted:        e.Granted,
		OrganizationID: e.OrganizationID,
		Metadata:       e.Metadata,
	})
}

func (l *AsyncLogger) LogRoleCreation(_ context.Context, e RoleEvent) {
	l.enqueue(roleEvent(KindRoleCreated, e))
}

func (l *AsyncLogger) LogRoleUpdate(_ context.Context, e RoleEvent) {
	l.enqueue(roleEvent(KindRoleUpdated, e))
}

func (l *AsyncLogger) LogRoleDeletion(_ context.Context, e RoleEvent) {
	l.enqueue(roleEvent(KindRoleDeleted, e))
}

func (l *AsyncLogger) LogRoleAssignment(_ context.Context, e AssignmentEvent) {
	l.enqueue(assignmentEvent(KindRoleAssigned, e))
}

func (l *AsyncLogger) LogRoleRemoval(_ context.Context, e AssignmentEvent) {
	l.enqueue(assignmentEvent(KindRoleRemoved, e))
}

func roleEvent(kind Kind, e RoleEvent) Event {
	return Event{
		Kind:           kind,
		RoleID:         e.RoleID,
		RoleName:       e.RoleName,
		ActorID:        e.ActorID,
		OrganizationID: e.OrganizationID,
		Metadata:       e.Metadata,
	}
}

func assignmentEvent(kind Kind, e AssignmentEvent) Event {
	return Event{
		Kind:           kind,
		UserID:         e.UserID,
		RoleID:         e.RoleID,
		ActorID:        e.ActorID,
		OrganizationID: e.OrganizationID,
		Metadata:       e.Metadata,
	}
}

// Close stops accepting events and waits for the queue to drain, or until
// the context expires.
func (l *AsyncLogger) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.ch)
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
