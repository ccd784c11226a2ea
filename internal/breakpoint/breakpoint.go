// Package breakpoint records and resolves pauses requiring human or
// collaborator review.
// Work-item status stays owned by the scheduler: the manager routes
// every transition through the StateTransitioner it is constructed
// with rather than writing status itself.
package breakpoint

import (
	"context"
	"log/slog"
	"time"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/errorkit"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/eventbus"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/metrics"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/store"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

// StateTransitioner is the narrow slice of the scheduler the manager
// needs: moving a task into and out of blocked, or cancelling it.
// Implemented by internal/scheduler, which remains the only component
// that mutates work-item status.
type StateTransitioner interface {
	Block(ctx context.Context, taskID int64, reason string) error
	Unblock(ctx context.Context, taskID int64, reason string) error
	Cancel(ctx context.Context, taskID int64, reason string) error
}

// Handle identifies a raised breakpoint for later resolution.
type Handle struct {
	ID     int64
	TaskID int64
}

// Manager raises and resolves breakpoints.
type Manager struct {
	store store.Store
	trans StateTransitioner
	bus   *eventbus.Bus
	log   *slog.Logger
}

func NewManager(s store.Store, trans StateTransitioner, bus *eventbus.Bus, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: s, trans: trans, bus: bus, log: log}
}

// Raise transitions the task running -> blocked, persists the
// breakpoint record, and returns a handle for resolution.
func (m *Manager) Raise(ctx context.Context, taskID int64, reason string) (Handle, error) {
	if err := m.trans.Block(ctx, taskID, reason); err != nil {
		return Handle{}, err
	}
	bp := &types.Breakpoint{TaskID: taskID, Reason: reason}
	if err := m.store.CreateBreakpoint(ctx, bp); err != nil {
		return Handle{}, errorkit.WithContext(err, "breakpoint", "")
	}
	metrics.RecordBreakpointRaised(ctx, reason)
	if m.bus != nil {
		m.bus.Publish(ctx, eventbus.Event{Type: eventbus.BreakpointRaised, Payload: eventbus.BreakpointRaise{
			TaskID: taskID,
			Reason: reason,
		}})
	}
	m.log.Info("breakpoint raised",
		slog.Int64("task_id", taskID),
		slog.String("reason", reason))
	return Handle{ID: bp.ID, TaskID: taskID}, nil
}

// Resolve unblocks the task back to ready (disposition continue) or
// cancels it (disposition cancel), recording the resolution note.
func (m *Manager) Resolve(ctx context.Context, h Handle, note string, disposition types.BreakpointDisposition) error {
	bp, err := m.store.GetBreakpoint(ctx, h.ID)
	if err != nil {
		return err
	}
	if bp.Resolved() {
		return errorkit.New(errorkit.KindStateError, "breakpoint already resolved")
	}

	switch disposition {
	case types.DispositionContinue:
		if err := m.trans.Unblock(ctx, h.TaskID, "breakpoint resolved: "+note); err != nil {
			return err
		}
	case types.DispositionCancel:
		if err := m.trans.Cancel(ctx, h.TaskID, "breakpoint cancelled: "+note); err != nil {
			return err
		}
	default:
		return errorkit.New(errorkit.KindValidation, "disposition must be continue or cancel")
	}

	if err := m.store.ResolveBreakpoint(ctx, h.ID, note, disposition, time.Now().UTC()); err != nil {
		return err
	}
	m.log.Info("breakpoint resolved",
		slog.Int64("task_id", h.TaskID),
		slog.String("disposition", string(disposition)))
	return nil
}

// Unresolved returns the open breakpoint for a task, or nil. The
// scheduler makes the same store lookup (UnresolvedForTask) before
// dispatching: an unresolved breakpoint keeps the owning task out of
// Next.
func (m *Manager) Unresolved(ctx context.Context, taskID int64) (*types.Breakpoint, error) {
	return m.store.UnresolvedForTask(ctx, taskID)
}
