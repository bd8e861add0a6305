package lifecycle

import (
	"testing"

	"github.com/NicolasGomez1117/regime-admission-control/internal/queue"
)

type recordingEmitter struct {
	statusChanged []string
	deadLettered  []string
}

func (r *recordingEmitter) EmitStatusChanged(taskID string, old, new queue.Status) {
	r.statusChanged = append(r.statusChanged, taskID+":"+string(old)+"->"+string(new))
}

func (r *recordingEmitter) EmitDeadLettered(taskID string, reason string) {
	r.deadLettered = append(r.deadLettered, taskID+":"+reason)
}

func TestTransition_ValidMove(t *testing.T) {
	task := &queue.Task{TaskID: "t1", Status: queue.StatusQueued}
	e := &recordingEmitter{}

	out := Transition(e, task, queue.StatusEvaluating)
	if out.Diverted {
		t.Fatalf("expected non-diverted outcome, got %+v", out)
	}
	if task.Status != queue.StatusEvaluating {
		t.Fatalf("expected EVALUATING, got %s", task.Status)
	}
	if len(e.statusChanged) != 1 || e.statusChanged[0] != "t1:QUEUED->EVALUATING" {
		t.Fatalf("unexpected events: %+v", e.statusChanged)
	}
	if len(e.deadLettered) != 0 {
		t.Fatalf("expected no dead-letter event, got %+v", e.deadLettered)
	}
}

func TestTransition_DisallowedMoveCoercesToDeadLetter(t *testing.T) {
	task := &queue.Task{TaskID: "t1", Status: queue.StatusQueued}
	e := &recordingEmitter{}

	out := Transition(e, task, queue.StatusCompleted)
	if !out.Diverted || out.Applied != queue.StatusDeadLetter {
		t.Fatalf("expected diverted DEAD_LETTER outcome, got %+v", out)
	}
	if task.Status != queue.StatusDeadLetter {
		t.Fatalf("expected DEAD_LETTER, got %s", task.Status)
	}
	if task.DeadLetterReason != queue.DeadLetterInvariantViolation {
		t.Fatalf("expected INVARIANT_VIOLATION reason, got %s", task.DeadLetterReason)
	}
	if task.InvariantViolation == nil || !task.InvariantViolation.IsSimple() {
		t.Fatalf("expected simple invariant_violation marker, got %+v", task.InvariantViolation)
	}
	if len(e.statusChanged) != 1 || len(e.deadLettered) != 1 {
		t.Fatalf("expected one of each event, got %+v / %+v", e.statusChanged, e.deadLettered)
	}
}

func TestTransition_UnrecognizedCurrentStatusCoerces(t *testing.T) {
	task := &queue.Task{TaskID: "t1", Status: queue.Status("BOGUS")}
	e := &recordingEmitter{}

	out := Transition(e, task, queue.StatusEvaluating)
	if !out.Diverted {
		t.Fatalf("expected diverted outcome for unrecognized current status")
	}
	if task.Status != queue.StatusDeadLetter {
		t.Fatalf("expected DEAD_LETTER, got %s", task.Status)
	}
}

func TestTransition_TerminalStatusesHaveNoOutgoingMoves(t *testing.T) {
	for _, terminal := range []queue.Status{queue.StatusCompleted, queue.StatusRefused, queue.StatusDeadLetter} {
		if len(AllowedTransitions[terminal]) != 0 {
			t.Fatalf("expected %s to be terminal (no allowed moves), got %v", terminal, AllowedTransitions[terminal])
		}
	}
}

func TestTransition_NilEmitterDoesNotPanic(t *testing.T) {
	task := &queue.Task{TaskID: "t1", Status: queue.StatusQueued}
	_ = Transition(nil, task, queue.StatusEvaluating)
}
