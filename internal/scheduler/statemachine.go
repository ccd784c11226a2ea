package scheduler

import (
	"fmt"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/errorkit"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

// legalTransitions is the complete transition table for work-item
// status. Any pair absent here fails with StateError; terminal states have no
// outgoing entries at all.
var legalTransitions = map[types.WorkItemStatus][]types.WorkItemStatus{
	types.StatusPending:  {types.StatusReady, types.StatusCancelled},
	types.StatusReady:    {types.StatusRunning, types.StatusCancelled},
	types.StatusRunning:  {types.StatusCompleted, types.StatusFailed, types.StatusBlocked, types.StatusCancelled},
	types.StatusFailed:   {types.StatusRetrying},
	types.StatusRetrying: {types.StatusReady, types.StatusCancelled},
	types.StatusBlocked:  {types.StatusReady, types.StatusCancelled},
}

// canTransition reports whether from -> to appears in the table.
func canTransition(from, to types.WorkItemStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transitionError is the StateError every illegal transition fails with.
func transitionError(taskID int64, from, to types.WorkItemStatus) error {
	return errorkit.New(errorkit.KindStateError,
		fmt.Sprintf("task %d: illegal transition %s -> %s", taskID, from, to))
}
