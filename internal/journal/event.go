// Package journal implements the append-only event trail: every status
// change, retry decision, and harness invocation the runner makes is
// recorded here so that the lifecycle of a task can be reconstructed without
// consulting the queue file (spec §4, §5's consistency/replay validators).
package journal

import "time"

// Event types recorded in the journal (spec §4).
const (
	EventStatusChanged  = "STATUS_CHANGED"
	EventDeadLettered   = "DEAD_LETTERED"
	EventRunStarted     = "RUN_STARTED"
	EventRunFinished    = "RUN_FINISHED"
	EventRetryScheduled = "RETRY_SCHEDULED"
)

// Event is one line of the journal file. EventVersion is fixed at "v0" for
// every event this package emits, so a future format change can be detected
// by readers instead of silently misparsed.
type Event struct {
	EventVersion string         `json:"event_version"`
	Timestamp    string         `json:"timestamp"`
	RunID        string         `json:"run_id"`
	EventType    string         `json:"event_type"`
	TaskID       string         `json:"task_id"`
	Payload      map[string]any `json:"payload"`
}

const currentEventVersion = "v0"

func newEvent(runID, eventType, taskID string, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		EventVersion: currentEventVersion,
		Timestamp:    nowISO8601(),
		RunID:        runID,
		EventType:    eventType,
		TaskID:       taskID,
		Payload:      payload,
	}
}

func nowISO8601() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
}
