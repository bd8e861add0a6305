// Package runner orchestrates one pass over the task queue: precheck,
// transition, harness invocation, retry, and terminal validation (spec
// §4.1, §6).
package runner

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/rs/zerolog"

	"github.com/NicolasGomez1117/regime-admission-control/internal/config"
	"github.com/NicolasGomez1117/regime-admission-control/internal/harness"
	"github.com/NicolasGomez1117/regime-admission-control/internal/journal"
	"github.com/NicolasGomez1117/regime-admission-control/internal/lifecycle"
	"github.com/NicolasGomez1117/regime-admission-control/internal/queue"
	"github.com/NicolasGomez1117/regime-admission-control/internal/taskfile"
	"github.com/NicolasGomez1117/regime-admission-control/internal/validate"
)

// Runner holds everything one RunOnce pass needs: where the queue and
// runtime-root files live, the journal to emit to, and a logger for
// observational output.
type Runner struct {
	RuntimeRoot string
	QueuePath   string
	ConfigPath  string
	JournalPath string
	Journal     *journal.Writer
	Log         zerolog.Logger

	// now lets tests freeze time; defaults to the current Unix time in
	// fractional seconds.
	now func() float64
	// runHarness lets tests stub out the subprocess call.
	runHarness func(ctx context.Context, runtimeRoot, taskID string, payload *taskfile.Payload) (int, string, error)
}

// New builds a Runner wired to the real clock and the real harness.
func New(runtimeRoot, queuePath, configPath, journalPath string, j *journal.Writer, log zerolog.Logger) *Runner {
	return &Runner{
		RuntimeRoot: runtimeRoot,
		QueuePath:   queuePath,
		ConfigPath:  configPath,
		JournalPath: journalPath,
		Journal:     j,
		Log:         log,
		now:         func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
		runHarness:  defaultRunHarness,
	}
}

// RunOnce processes up to config's max_tasks_per_run eligible QUEUED tasks,
// in file order, and returns the number of tasks it advanced.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	tasks, err := queue.Load(r.QueuePath)
	if err != nil {
		return 0, err
	}

	maxTasks := config.Load(r.ConfigPath).MaxTasksPerRun
	currentTime := r.now()
	processed := 0

	for _, task := range tasks {
		if processed >= maxTasks {
			break
		}
		if task.Status != queue.StatusQueued {
			continue
		}
		if task.NextAttemptAt != nil && currentTime < *task.NextAttemptAt {
			continue
		}

		r.processTask(ctx, task, currentTime)
		if err := queue.WriteAtomic(r.QueuePath, tasks); err != nil {
			return processed, err
		}
		r.runTerminalValidations(task)
		if err := queue.WriteAtomic(r.QueuePath, tasks); err != nil {
			return processed, err
		}
		r.Journal.EmitRunFinished(task.TaskID, task.Status)
		processed++
	}

	return processed, nil
}

// processTask runs the per-task pipeline for one eligible QUEUED task,
// mutating it in place. It never returns an error: every failure mode is
// represented as a task state (spec §4.1/§7's closed failure-reason set).
func (r *Runner) processTask(ctx context.Context, task *queue.Task, currentTime float64) {
	// A present-but-unrecognized status (e.g. a hand-edited value) is not a
	// precheck failure: it falls through to the transition below, where the
	// guard itself dead-letters it with INVARIANT_VIOLATION. The precheck
	// only screens for fields missing or of the wrong type entirely.
	if task.TaskID == "" || task.TaskFile == "" {
		r.markFailed(task, queue.FailurePrecheckInvalid)
		r.applyRetryIfEligible(task, currentTime)
		return
	}

	taskFile := task.TaskFile
	if outcome := lifecycle.Transition(r.Journal, task, queue.StatusEvaluating); outcome.Diverted {
		// The guard already coerced this into DEAD_LETTER (unrecognized
		// status or a disallowed move) and emitted its own events; nothing
		// downstream should run for a task that never entered EVALUATING.
		return
	}
	r.Journal.EmitRunStarted(task.TaskID, "")

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.markFailed(task, queue.FailureRunnerException)
			}
		}()

		raw, err := taskfile.LoadJSONObject(taskFile)
		if err != nil {
			reason := queue.FailureTaskFileInvalid
			if errors.Is(err, fs.ErrNotExist) {
				reason = queue.FailureTaskFileMissing
			}
			r.markFailed(task, reason)
			return
		}

		payload, ok, reason := taskfile.Validate(raw)
		if !ok {
			r.markFailed(task, reason)
			return
		}

		exitCode, logPath, err := r.runHarness(ctx, r.RuntimeRoot, task.TaskID, payload)
		if err != nil {
			r.markFailed(task, queue.FailureRunnerException)
			return
		}
		task.LastExitCode = &exitCode
		task.HarnessLogPath = logPath

		if exitCode == 0 {
			lifecycle.Transition(r.Journal, task, queue.StatusCompleted)
			task.FailureReason = ""
		} else {
			r.markFailed(task, queue.FailureUnknown)
		}
	}()

	r.applyRetryIfEligible(task, currentTime)
}

func (r *Runner) markFailed(task *queue.Task, reason string) {
	lifecycle.Transition(r.Journal, task, queue.StatusFailed)
	if task.Status == queue.StatusFailed {
		task.FailureReason = reason
	}
}

// applyRetryIfEligible re-queues a FAILED task if it has retries left,
// otherwise dead-letters it with RETRIES_EXHAUSTED (spec §4.1g).
func (r *Runner) applyRetryIfEligible(task *queue.Task, currentTime float64) {
	if task.Status != queue.StatusFailed {
		return
	}

	if task.Retries < task.MaxRetries {
		task.Retries++
		nextAttempt := currentTime + task.RetryDelaySeconds
		task.NextAttemptAt = &nextAttempt
		r.Journal.EmitRetryScheduled(task.TaskID, task.Retries, nextAttempt)
		lifecycle.Transition(r.Journal, task, queue.StatusQueued)
		if task.Status == queue.StatusQueued {
			task.FailureReason = ""
		}
		return
	}

	lifecycle.Transition(r.Journal, task, queue.StatusDeadLetter)
	if task.Status == queue.StatusDeadLetter {
		task.DeadLetterReason = queue.DeadLetterRetriesExhausted
		r.Journal.EmitDeadLettered(task.TaskID, queue.DeadLetterRetriesExhausted)
	}
}

// runTerminalValidations cross-checks a task that just reached a terminal
// status against the journal, dead-lettering it if replay or consistency
// disagrees with what the queue record now says (spec §5, §4.1h-i).
func (r *Runner) runTerminalValidations(task *queue.Task) {
	if task.TaskID == "" || !task.Status.Terminal() {
		return
	}

	replay := validate.ReplayTaskLifecycle(r.JournalPath, task.TaskID)
	if !replay.Valid {
		r.markDeadLetterForValidatorFailure(task, "REPLAY_INVALID", validatorErrorMessage(replay.Reason, replay.From, replay.To, replay.Index))
		return
	}

	consistency := validate.CheckTaskConsistency(r.QueuePath, r.JournalPath, task.TaskID)
	if !consistency.Valid {
		r.markDeadLetterForValidatorFailure(task, "CONSISTENCY_INVALID", consistency.Reason)
	}
}

func (r *Runner) markDeadLetterForValidatorFailure(task *queue.Task, code, message string) {
	oldStatus := task.Status
	if oldStatus != queue.StatusDeadLetter {
		task.Status = queue.StatusDeadLetter
		r.Journal.EmitStatusChanged(task.TaskID, oldStatus, queue.StatusDeadLetter)
	}
	task.DeadLetterReason = queue.DeadLetterInvariantViolation
	task.InvariantViolation = &queue.InvariantViolation{Code: code, Message: message}
	r.Journal.EmitDeadLettered(task.TaskID, queue.DeadLetterInvariantViolation)
}

func validatorErrorMessage(reason, from, to string, index int) string {
	if reason == "" {
		return "VALIDATOR_FAILURE"
	}
	return reason
}

func defaultRunHarness(ctx context.Context, runtimeRoot, taskID string, payload *taskfile.Payload) (int, string, error) {
	result, err := harness.Run(ctx, runtimeRoot, taskID, payload)
	if err != nil {
		return 0, "", err
	}
	return result.ExitCode, result.LogPath, nil
}
