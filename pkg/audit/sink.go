package audit

import (
	"context"
	"log/slog"
	"sync"
)

// SlogSink writes events to a structured logger. A reasonable default for
// deployments that ship logs to a central pipeline anyway.
type SlogSink struct {
	log *slog.Logger
}

// NewSlogSink creates a SlogSink. A nil logger falls back to slog.Default.
func NewSlogSink(log *slog.Logger) *SlogSink {
	if log == nil {
		log = slog.Default()
	}
	return &SlogSink{log: log}
}

func (s *SlogSink) Store(ctx context.Context, event Event) error {
	s.log.InfoContext(ctx, "audit",
		slog.String("event_id", event.ID),
		slog.String("kind", string(event.Kind)),
		slog.String("user_id", event.UserID),
		slog.String("actor_id", event.ActorID),
		slog.String("role_id", event.RoleID),
		slog.String("permission", event.Permission),
		slog.Bool("granted", event.Granted),
		slog.String("organization_id", event.OrganizationID),
	)
	return nil
}

// MemorySink collects events in memory. Intended for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Store(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
