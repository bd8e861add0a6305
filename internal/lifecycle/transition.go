// Package lifecycle implements the transition guard: the single place that
// enforces the task state machine (spec §3 "Allowed transitions", §4.2).
package lifecycle

import "github.com/NicolasGomez1117/regime-admission-control/internal/queue"

// AllowedTransitions is the closed transition graph from spec §3. It is
// exported so the replay validator (internal/validate) can walk the exact
// same table the guard enforces live — the two must never drift apart.
var AllowedTransitions = map[queue.Status][]queue.Status{
	queue.StatusQueued:     {queue.StatusEvaluating, queue.StatusDeadLetter, queue.StatusFailed, queue.StatusRefused},
	queue.StatusEvaluating: {queue.StatusCompleted, queue.StatusFailed, queue.StatusDeadLetter, queue.StatusRefused},
	queue.StatusFailed:     {queue.StatusQueued, queue.StatusDeadLetter},
	queue.StatusCompleted:  {},
	queue.StatusRefused:    {},
	queue.StatusDeadLetter: {},
}

// Allowed reports whether the move from -> to is permitted by the table above.
func Allowed(from, to queue.Status) bool {
	for _, candidate := range AllowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Emitter is the minimal journal dependency the guard needs. journal.Writer
// satisfies it structurally; the guard never imports the journal package
// directly, so any type with these two methods (such as a test recorder) can
// stand in for it.
type Emitter interface {
	EmitStatusChanged(taskID string, oldStatus, newStatus queue.Status)
	EmitDeadLettered(taskID string, reason string)
}

// Outcome renders the coerce-on-violation pattern as a return value rather
// than an in-place mutation the caller has to guess at. Transition still
// mutates task in place (matching dag.Transition's style of atomic,
// validated state mutation), but every caller gets an explicit outcome back
// instead of having to re-read task.Status to find out whether the guard
// diverted.
type Outcome struct {
	// Applied is the status Transition actually set on the task.
	Applied queue.Status
	// Diverted is true iff the guard coerced the move into DEAD_LETTER
	// because the caller asked for something the table disallows.
	Diverted bool
}

// Transition performs exactly one state change on task: either the
// requested move, or — if the current status is unrecognized or the move
// isn't in AllowedTransitions — a coercion into DEAD_LETTER with
// invariant_violation set and dead_letter_reason = INVARIANT_VIOLATION.
// Exactly one STATUS_CHANGED event is emitted (plus one DEAD_LETTERED event
// on divergence); no other fields are touched.
func Transition(e Emitter, task *queue.Task, newStatus queue.Status) Outcome {
	current := task.Status

	if !current.Known() || !Allowed(current, newStatus) {
		task.Status = queue.StatusDeadLetter
		task.InvariantViolation = &queue.InvariantViolation{}
		task.DeadLetterReason = queue.DeadLetterInvariantViolation
		if e != nil {
			e.EmitStatusChanged(task.TaskID, current, queue.StatusDeadLetter)
			e.EmitDeadLettered(task.TaskID, queue.DeadLetterInvariantViolation)
		}
		return Outcome{Applied: queue.StatusDeadLetter, Diverted: true}
	}

	task.Status = newStatus
	if e != nil {
		e.EmitStatusChanged(task.TaskID, current, newStatus)
	}
	return Outcome{Applied: newStatus, Diverted: false}
}
