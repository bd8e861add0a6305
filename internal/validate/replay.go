// Package validate reconstructs a task's lifecycle from the event journal
// alone (replay) and cross-checks the replayed result against the task's
// record in the queue file (consistency).
package validate

import (
	"github.com/NicolasGomez1117/regime-admission-control/internal/journal"
	"github.com/NicolasGomez1117/regime-admission-control/internal/lifecycle"
	"github.com/NicolasGomez1117/regime-admission-control/internal/queue"
)

// ReplayResult is the outcome of walking one task's STATUS_CHANGED events.
type ReplayResult struct {
	Valid            bool
	Reason           string
	From             string
	To               string
	Index            int
	FinalStatus      queue.Status
	TransitionCount  int
}

var terminalStatuses = map[queue.Status]bool{
	queue.StatusDeadLetter: true,
	queue.StatusCompleted:  true,
	queue.StatusRefused:    true,
}

type transition struct {
	from, to string
}

// ReplayTaskLifecycle rebuilds task_id's lifecycle from the journal at
// path, starting from QUEUED and walking lifecycle.AllowedTransitions —
// the same table the live guard enforces, so replay and enforcement can
// never silently diverge.
func ReplayTaskLifecycle(path, taskID string) ReplayResult {
	events := journal.GetEventsForTask(path, taskID)

	var transitions []transition
	for _, e := range events {
		if e.EventType != journal.EventStatusChanged {
			continue
		}
		from, okFrom := e.Payload["old_status"].(string)
		to, okTo := e.Payload["new_status"].(string)
		if !okFrom || !okTo {
			continue
		}
		transitions = append(transitions, transition{from: from, to: to})
	}

	if len(transitions) == 0 {
		return ReplayResult{Valid: false, Reason: "NO_STATUS_EVENTS"}
	}

	firstFrom := transitions[0].from
	if queue.Status(firstFrom) != queue.StatusQueued {
		return ReplayResult{Valid: false, Reason: "INVALID_BOOTSTRAP", From: firstFrom}
	}

	current := queue.Status(firstFrom)
	for index, tr := range transitions {
		if terminalStatuses[current] {
			return ReplayResult{Valid: false, Reason: "INVALID_TRANSITION", From: string(current), To: tr.to, Index: index}
		}
		if tr.from != string(current) {
			return ReplayResult{Valid: false, Reason: "INVALID_TRANSITION", From: string(current), To: tr.to, Index: index}
		}
		if !lifecycle.Allowed(current, queue.Status(tr.to)) {
			return ReplayResult{Valid: false, Reason: "INVALID_TRANSITION", From: tr.from, To: tr.to, Index: index}
		}
		current = queue.Status(tr.to)
	}

	return ReplayResult{Valid: true, FinalStatus: current, TransitionCount: len(transitions)}
}
