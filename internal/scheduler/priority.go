package scheduler

import (
	"container/heap"
	"time"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

// deadlineBoostWindow is how close a metadata deadline must be to earn
// the +2 boost.
const deadlineBoostWindow = 24 * time.Hour

// dependentsBoostThreshold is the waiting-dependent count above which
// an item earns +1.
const dependentsBoostThreshold = 3

// extraBoost is one operator-supplied rule from
// scheduler.priority.extra_boosts: amount is added when condition
// matches the item's work-item type or task_type.
type extraBoost struct {
	condition string
	amount    int
}

func (b extraBoost) matches(w *types.WorkItem) bool {
	return b.condition != "" &&
		(b.condition == string(w.Type) || b.condition == string(w.TaskType))
}

// parseExtraBoosts interprets the raw config entries, dropping
// malformed ones.
func parseExtraBoosts(raw []map[string]interface{}) []extraBoost {
	out := make([]extraBoost, 0, len(raw))
	for _, entry := range raw {
		condition, _ := entry["condition"].(string)
		amount := 0
		switch n := entry["amount"].(type) {
		case int:
			amount = n
		case int64:
			amount = int(n)
		case float64:
			amount = int(n)
		}
		if condition == "" || amount == 0 {
			continue
		}
		out = append(out, extraBoost{condition: condition, amount: amount})
	}
	return out
}

// effectivePriority computes the boosted priority for one candidate,
// clamped to [1, 10]. Boosts are computed on read, never stored: the
// three fixed rules below plus any operator-supplied extras.
func effectivePriority(w *types.WorkItem, waitingDependents int, now time.Time, extras []extraBoost) int {
	p := w.Priority
	if deadline, ok := w.Metadata.Deadline(); ok {
		if deadline.Sub(now) <= deadlineBoostWindow {
			p += 2
		}
	}
	if waitingDependents > dependentsBoostThreshold {
		p++
	}
	// A task back in the queue after a retry gets +1 for the current
	// attempt so transient failures do not sink it behind fresh work.
	if w.Attempts > 0 {
		p++
	}
	for _, b := range extras {
		if b.matches(w) {
			p += b.amount
		}
	}
	if p < 1 {
		p = 1
	}
	if p > 10 {
		p = 10
	}
	return p
}

// candidate pairs a ready work item with its effective priority for
// heap ordering.
type candidate struct {
	item     *types.WorkItem
	priority int
}

// candidateHeap is the per-project max-heap keyed by effective
// priority, ties broken by (created_at asc, id asc).
type candidateHeap []candidate

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	if !h[i].item.CreatedAt.Equal(h[j].item.CreatedAt) {
		return h[i].item.CreatedAt.Before(h[j].item.CreatedAt)
	}
	return h[i].item.ID < h[j].item.ID
}

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) { *h = append(*h, x.(candidate)) }

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

var _ heap.Interface = (*candidateHeap)(nil)
