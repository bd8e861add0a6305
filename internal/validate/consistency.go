package validate

import (
	"github.com/NicolasGomez1117/regime-admission-control/internal/queue"
)

// ConsistencyResult is the outcome of cross-checking a task's journal-replayed
// final status against its persisted queue record.
type ConsistencyResult struct {
	Valid        bool
	Reason       string
	QueueStatus  queue.Status
	ReplayStatus queue.Status
	Replay       ReplayResult
	Status       queue.Status
}

// CheckTaskConsistency loads queuePath tolerantly, finds task_id, replays its
// lifecycle from journalPath, and confirms the two agree. It never touches
// the authoritative (strict) loader: a malformed line elsewhere in the queue
// file must not prevent checking one task's consistency.
func CheckTaskConsistency(queuePath, journalPath, taskID string) ConsistencyResult {
	tasks := queue.LoadTolerant(queuePath)

	var found *queue.Task
	for _, t := range tasks {
		if t.TaskID == taskID {
			found = t
			break
		}
	}
	if found == nil {
		return ConsistencyResult{Valid: false, Reason: "TASK_NOT_FOUND"}
	}

	replay := ReplayTaskLifecycle(journalPath, taskID)
	if !replay.Valid {
		return ConsistencyResult{Valid: false, Reason: "REPLAY_INVALID", Replay: replay}
	}

	if found.Status != replay.FinalStatus {
		return ConsistencyResult{
			Valid:        false,
			Reason:       "STATE_MISMATCH",
			QueueStatus:  found.Status,
			ReplayStatus: replay.FinalStatus,
		}
	}

	return ConsistencyResult{Valid: true, Status: found.Status}
}
