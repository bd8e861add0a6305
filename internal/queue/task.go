// Package queue defines the persisted task record and the line-delimited
// queue file it lives in.
package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Status is one of the six states in the task lifecycle (spec §3).
type Status string

const (
	StatusQueued      Status = "QUEUED"
	StatusEvaluating  Status = "EVALUATING"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
	StatusRefused     Status = "REFUSED"
	StatusDeadLetter  Status = "DEAD_LETTER"
)

// Known is true iff s is one of the six enumerated statuses (invariant I1).
func (s Status) Known() bool {
	switch s {
	case StatusQueued, StatusEvaluating, StatusCompleted, StatusFailed, StatusRefused, StatusDeadLetter:
		return true
	default:
		return false
	}
}

// Terminal is true iff no transition ever leaves s (COMPLETED, REFUSED, DEAD_LETTER).
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRefused, StatusDeadLetter:
		return true
	default:
		return false
	}
}

// Failure reason tokens (spec §7).
const (
	FailurePrecheckInvalid  = "PRECHECK_INVALID"
	FailureTaskFileMissing  = "TASK_FILE_MISSING"
	FailureTaskFileInvalid  = "TASK_FILE_INVALID"
	FailureRepoPathInvalid  = "REPO_PATH_INVALID"
	FailureUnknown          = "UNKNOWN_FAILURE"
	FailureRunnerException  = "RUNNER_EXCEPTION"
)

// Dead-letter reason tokens (spec §7).
const (
	DeadLetterInvariantViolation = "INVARIANT_VIOLATION"
	DeadLetterRetriesExhausted  = "RETRIES_EXHAUSTED"
)

// InvariantViolation carries either a bare boolean marker (guard-level
// violation) or a structured {code, message} cause (validator-level
// violation), per spec §3's "optional boolean or structured cause".
type InvariantViolation struct {
	Code    string
	Message string
}

// IsSimple reports whether this marks a bare `true` rather than a structured cause.
func (v *InvariantViolation) IsSimple() bool {
	return v != nil && v.Code == "" && v.Message == ""
}

func (v InvariantViolation) MarshalJSON() ([]byte, error) {
	if v.Code == "" && v.Message == "" {
		return []byte("true"), nil
	}
	return json.Marshal(struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}{v.Code, v.Message})
}

func (v *InvariantViolation) UnmarshalJSON(b []byte) error {
	var asBool bool
	if err := json.Unmarshal(b, &asBool); err == nil {
		*v = InvariantViolation{}
		return nil
	}
	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*v = InvariantViolation(obj)
	return nil
}

// Task is one record of the queue file (spec §3). It is intentionally
// lenient on read: fields of the wrong JSON kind decode to their zero
// value instead of failing the whole line, and unknown keys are ignored,
// so a hand-edited or future-versioned line never takes down a run. Write
// emits only the canonical fields, keys in sorted order (spec §4.1.1).
type Task struct {
	TaskID              string
	Status              Status
	TaskFile            string
	Retries             int
	MaxRetries          int
	RetryDelaySeconds   float64
	NextAttemptAt       *float64
	LastExitCode        *int
	HarnessLogPath      string
	FailureReason       string
	DeadLetterReason    string
	InvariantViolation  *InvariantViolation
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asFloat64(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func asInt(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// UnmarshalJSON implements the tolerant decode described on Task.
func (t *Task) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*t = Task{}
	if v, ok := raw["task_id"]; ok {
		if s, ok := asString(v); ok {
			t.TaskID = s
		}
	}
	if v, ok := raw["status"]; ok {
		if s, ok := asString(v); ok {
			t.Status = Status(s)
		}
	}
	if v, ok := raw["task_file"]; ok {
		if s, ok := asString(v); ok {
			t.TaskFile = s
		}
	}
	if v, ok := raw["retries"]; ok {
		if i, ok := asInt(v); ok {
			t.Retries = i
		}
	}
	if v, ok := raw["max_retries"]; ok {
		if i, ok := asInt(v); ok {
			t.MaxRetries = i
		}
	}
	if v, ok := raw["retry_delay_seconds"]; ok {
		if f, ok := asFloat64(v); ok {
			t.RetryDelaySeconds = f
		}
	}
	if v, ok := raw["next_attempt_at"]; ok && v != nil {
		if f, ok := asFloat64(v); ok {
			t.NextAttemptAt = &f
		}
	}
	if v, ok := raw["last_exit_code"]; ok && v != nil {
		if i, ok := asInt(v); ok {
			t.LastExitCode = &i
		}
	}
	if v, ok := raw["harness_log_path"]; ok {
		if s, ok := asString(v); ok {
			t.HarnessLogPath = s
		}
	}
	if v, ok := raw["failure_reason"]; ok {
		if s, ok := asString(v); ok {
			t.FailureReason = s
		}
	}
	if v, ok := raw["dead_letter_reason"]; ok {
		if s, ok := asString(v); ok {
			t.DeadLetterReason = s
		}
	}
	if v, ok := raw["invariant_violation"]; ok && v != nil {
		b2, err := json.Marshal(v)
		if err == nil {
			var iv InvariantViolation
			if err := iv.UnmarshalJSON(b2); err == nil {
				t.InvariantViolation = &iv
			}
		}
	}
	return nil
}

// MarshalJSON emits the canonical subset of fields with keys in sorted order.
func (t Task) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	field := func(key string, present bool, encode func() ([]byte, error)) error {
		if !present {
			return nil
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, _ := json.Marshal(key)
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := encode()
		if err != nil {
			return err
		}
		buf.Write(vb)
		return nil
	}

	if err := field("dead_letter_reason", t.DeadLetterReason != "", func() ([]byte, error) { return json.Marshal(t.DeadLetterReason) }); err != nil {
		return nil, err
	}
	if err := field("failure_reason", t.FailureReason != "", func() ([]byte, error) { return json.Marshal(t.FailureReason) }); err != nil {
		return nil, err
	}
	if err := field("harness_log_path", t.HarnessLogPath != "", func() ([]byte, error) { return json.Marshal(t.HarnessLogPath) }); err != nil {
		return nil, err
	}
	if err := field("invariant_violation", t.InvariantViolation != nil, func() ([]byte, error) { return t.InvariantViolation.MarshalJSON() }); err != nil {
		return nil, err
	}
	if err := field("last_exit_code", t.LastExitCode != nil, func() ([]byte, error) { return json.Marshal(*t.LastExitCode) }); err != nil {
		return nil, err
	}
	if err := field("max_retries", true, func() ([]byte, error) { return json.Marshal(t.MaxRetries) }); err != nil {
		return nil, err
	}
	if err := field("next_attempt_at", t.NextAttemptAt != nil, func() ([]byte, error) { return json.Marshal(*t.NextAttemptAt) }); err != nil {
		return nil, err
	}
	if err := field("retries", true, func() ([]byte, error) { return json.Marshal(t.Retries) }); err != nil {
		return nil, err
	}
	if err := field("retry_delay_seconds", true, func() ([]byte, error) { return json.Marshal(t.RetryDelaySeconds) }); err != nil {
		return nil, err
	}
	if err := field("status", true, func() ([]byte, error) { return json.Marshal(t.Status) }); err != nil {
		return nil, err
	}
	if err := field("task_file", true, func() ([]byte, error) { return json.Marshal(t.TaskFile) }); err != nil {
		return nil, err
	}
	if err := field("task_id", true, func() ([]byte, error) { return json.Marshal(t.TaskID) }); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Clone returns a deep-enough copy for callers that need to snapshot a task
// before a possibly-diverting transition.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.NextAttemptAt != nil {
		v := *t.NextAttemptAt
		c.NextAttemptAt = &v
	}
	if t.LastExitCode != nil {
		v := *t.LastExitCode
		c.LastExitCode = &v
	}
	if t.InvariantViolation != nil {
		v := *t.InvariantViolation
		c.InvariantViolation = &v
	}
	return &c
}

// String implements fmt.Stringer for debug logging.
func (t *Task) String() string {
	if t == nil {
		return "<nil task>"
	}
	return fmt.Sprintf("Task{id=%s status=%s retries=%d/%d}", t.TaskID, t.Status, t.Retries, t.MaxRetries)
}
