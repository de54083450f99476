package core

import "fmt"

// Status is the per-record session status. The lifecycle is
// idle -> running -> {completed, interrupted, error}; interrupted may
// re-enter running exactly once per resume. Completed and error are
// terminal: continuing the conversation requires a fresh task id, not a
// transition.
type Status string

const (
	// StatusIdle is the only legal initial status, set at record creation.
	StatusIdle Status = "idle"
	// StatusRunning is set by the execution wrapper immediately before the
	// agent turn. It is also what a caller observes while another execution
	// is in flight, or after a prior execution crashed without updating the
	// record; the two cases are indistinguishable on purpose.
	StatusRunning Status = "running"
	// StatusCompleted marks a finished turn carrying a final result.
	StatusCompleted Status = "completed"
	// StatusInterrupted marks a turn paused awaiting a human decision.
	StatusInterrupted Status = "interrupted"
	// StatusError marks a turn that failed.
	StatusError Status = "error"
	// StatusNotFound is reported as data (never as an error) by boundary
	// helpers when the triple does not exist.
	StatusNotFound Status = "not_found"
)

// Valid reports whether s is one of the storable session statuses.
// StatusNotFound is a reporting value, not a storable one.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusCompleted, StatusInterrupted, StatusError:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanResume reports whether a resume may legally be applied to a record in
// status s. Only interrupted records accept a resume.
func (s Status) CanResume() bool {
	return s == StatusInterrupted
}

// ParseStatus converts a stored string into a Status, rejecting unknown values.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown session status %q", v)
	}
	return s, nil
}

// TaskState is the coarse job-queue level outcome channel, keyed by task id
// alone and decoupled from the richer session Status. It is terminal once
// completed or failed.
type TaskState string

const (
	// TaskPending is set when a unit of work is enqueued.
	TaskPending TaskState = "pending"
	// TaskCompleted is set by the execution wrapper after a successful turn,
	// including turns that ended in an interrupt.
	TaskCompleted TaskState = "completed"
	// TaskFailed is set when the agent turn raised an error.
	TaskFailed TaskState = "failed"
)

// Valid reports whether t is a known task state.
func (t TaskState) Valid() bool {
	switch t {
	case TaskPending, TaskCompleted, TaskFailed:
		return true
	}
	return false
}
