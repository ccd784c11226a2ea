// Package eventbus dispatches the orchestration core's events
// to registered in-process handlers: documentation
// automation, telemetry sinks, and tests all subscribe here. Dispatch
// is in-process only; distributed consumption is outside this core's
// scope.
package eventbus

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// EventType is the closed set of events the core emits.
type EventType string

const (
	TaskStateChanged  EventType = "task_state_changed"
	EpicCompleted     EventType = "epic_completed"
	MilestoneAchieved EventType = "milestone_achieved"
	SessionRefreshed  EventType = "session_refreshed"
	BreakpointRaised  EventType = "breakpoint_raised"
	IterationRecorded EventType = "iteration_recorded"
)

// Event is a single event flowing through the bus. Payload carries the
// entity (or a typed payload struct below) the event concerns.
type Event struct {
	Type    EventType
	Payload interface{}
}

// TaskStateChange is the payload for TaskStateChanged events.
type TaskStateChange struct {
	TaskID int64
	From   string
	To     string
	Reason string
}

// SessionRefresh is the payload for SessionRefreshed events.
type SessionRefresh struct {
	OldSessionID  string
	NewSessionID  string
	SummaryDigest string
}

// BreakpointRaise is the payload for BreakpointRaised events.
type BreakpointRaise struct {
	TaskID int64
	Reason string
}

// Handler consumes events. Handlers are called sequentially in
// priority order (lowest first); a handler error is logged and the
// chain continues — the bus is resilient.
type Handler interface {
	// ID uniquely identifies the handler for Unregister.
	ID() string
	// Priority orders handlers on dispatch; lower runs first.
	Priority() int
	// Handles reports whether the handler wants events of this type.
	Handles(t EventType) bool
	Handle(ctx context.Context, e Event) error
}

// Bus dispatches events to registered handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	log      *slog.Logger
}

// New creates an event bus. log may be nil.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log}
}

// Register adds a handler. Handlers are sorted by priority on each
// Publish, so registration order does not matter.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Unregister removes a handler by ID. Returns true if one was removed.
func (b *Bus) Unregister(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.ID() == id {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Publish sends an event to every handler that handles its type,
// sequentially in priority order. Handler errors are logged, never
// propagated; Publish stops early only if ctx is cancelled.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	matching := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		if h.Handles(e.Type) {
			matching = append(matching, h)
		}
	}
	b.mu.RUnlock()

	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].Priority() < matching[j].Priority()
	})

	for _, h := range matching {
		if ctx.Err() != nil {
			return
		}
		if err := h.Handle(ctx, e); err != nil {
			b.log.Warn("eventbus handler error",
				slog.String("handler", h.ID()),
				slog.String("event", string(e.Type)),
				slog.String("error", err.Error()))
		}
	}
}

// HandlerFunc adapts a function into a Handler subscribed to a fixed
// set of event types.
type HandlerFunc struct {
	Name  string
	Order int
	Types []EventType
	Fn    func(ctx context.Context, e Event) error
}

func (h HandlerFunc) ID() string    { return h.Name }
func (h HandlerFunc) Priority() int { return h.Order }

func (h HandlerFunc) Handles(t EventType) bool {
	if len(h.Types) == 0 {
		return true
	}
	for _, et := range h.Types {
		if et == t {
			return true
		}
	}
	return false
}

func (h HandlerFunc) Handle(ctx context.Context, e Event) error { return h.Fn(ctx, e) }
