package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/NicolasGomez1117/regime-admission-control/internal/queue"
)

// WarnEnvVar, when set to "1", makes Writer print a one-line diagnostic to
// its logger on every failed append, in addition to counting it. Left unset,
// failures are silent but still counted — matching the original runtime's
// "never let telemetry take down a run" stance (acp_events.py).
const WarnEnvVar = "AAH_EVENTS_WARN"

// NewRunID mints a new process-lifetime run identifier. ULIDs are
// lexicographically sortable by creation time, which makes "which run wrote
// this event" orderable without parsing the timestamp field separately
// (SPEC_FULL.md §4B).
func NewRunID() string {
	return ulid.Make().String()
}

// Writer appends events to a single journal file. It is safe for concurrent
// use and, per spec, must never cause the caller's operation to fail:
// opening, serialization, or I/O errors are counted and optionally logged,
// never returned. The file (and its directory) is opened fresh on every
// append rather than held open for the writer's lifetime, matching
// acp_events.py: a journal path that is momentarily a directory, or whose
// directory can't be created, only costs that one event.
type Writer struct {
	path   string
	runID  string
	log    zerolog.Logger
	warn   bool
	mu     sync.Mutex
	errors atomic.Uint64
}

// NewWriter prepares a Writer that will append to path, tagging every event
// it writes with runID. Construction never touches the filesystem, so a bad
// journal path only ever fails individual appends (see append), never
// startup.
func NewWriter(path, runID string, log zerolog.Logger) (*Writer, error) {
	return &Writer{
		path:  path,
		runID: runID,
		log:   log,
		warn:  os.Getenv(WarnEnvVar) == "1",
	}, nil
}

// Close is a no-op: Writer holds no open file handle between appends.
func (w *Writer) Close() error {
	return nil
}

// ErrorCount returns the number of appends that have failed so far.
func (w *Writer) ErrorCount() uint64 {
	if w == nil {
		return 0
	}
	return w.errors.Load()
}

func (w *Writer) append(eventType, taskID string, payload map[string]any) {
	if w == nil {
		return
	}
	event := newEvent(w.runID, eventType, taskID, payload)
	b, err := json.Marshal(event)
	if err != nil {
		w.fail("encode", eventType, taskID, err)
		return
	}
	b = append(b, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		w.fail("mkdir", eventType, taskID, err)
		return
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		w.fail("open", eventType, taskID, err)
		return
	}
	defer f.Close()

	if _, err := f.Write(b); err != nil {
		w.fail("write", eventType, taskID, err)
		return
	}
	if err := f.Sync(); err != nil {
		w.fail("sync", eventType, taskID, err)
	}
}

func (w *Writer) fail(stage, eventType, taskID string, err error) {
	w.errors.Add(1)
	if w.warn {
		w.log.Warn().
			Str("stage", stage).
			Str("event_type", eventType).
			Str("task_id", taskID).
			Err(err).
			Msg("journal append failed")
	}
}

// EmitStatusChanged satisfies lifecycle.Emitter.
func (w *Writer) EmitStatusChanged(taskID string, oldStatus, newStatus queue.Status) {
	w.append(EventStatusChanged, taskID, map[string]any{
		"old_status": string(oldStatus),
		"new_status": string(newStatus),
	})
}

// EmitDeadLettered satisfies lifecycle.Emitter.
func (w *Writer) EmitDeadLettered(taskID string, reason string) {
	w.append(EventDeadLettered, taskID, map[string]any{
		"reason": reason,
	})
}

// EmitRunStarted records the start of harness execution for a task.
func (w *Writer) EmitRunStarted(taskID string, label string) {
	w.append(EventRunStarted, taskID, map[string]any{
		"label": label,
	})
}

// EmitRunFinished records the status a task ended this pass in (terminal, or
// QUEUED when a retry was scheduled).
func (w *Writer) EmitRunFinished(taskID string, finalStatus queue.Status) {
	w.append(EventRunFinished, taskID, map[string]any{
		"final_status": string(finalStatus),
	})
}

// EmitRetryScheduled records that a failed task was re-queued for another attempt.
func (w *Writer) EmitRetryScheduled(taskID string, attempt int, nextAttemptAt float64) {
	w.append(EventRetryScheduled, taskID, map[string]any{
		"attempt":         attempt,
		"next_attempt_at": nextAttemptAt,
	})
}
