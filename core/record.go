package core

import (
	"fmt"
	"time"
)

// NeverUpdated is the sentinel LastUpdated value for a record that has not
// been touched since creation without an explicit timestamp. Aggregate
// queries must never select a record carrying it.
const NeverUpdated float64 = 0

// Now returns the current wall clock as seconds since the epoch, the
// timestamp unit used throughout record bookkeeping.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// Record is the canonical state for one (user, session, task) triple. A
// record exists in the store if and only if it has not expired; expiry is
// silent deletion by the underlying store, there is no tombstone.
type Record struct {
	UserID       string         `json:"user_id"`
	SessionID    string         `json:"session_id"`
	TaskID       string         `json:"task_id"`
	Status       Status         `json:"status"`
	LastQuery    string         `json:"last_query,omitempty"`
	LastResponse *AgentResponse `json:"last_response,omitempty"`
	LastUpdated  float64        `json:"last_updated"`
}

// Touched reports whether the record carries a real timestamp rather than
// the NeverUpdated sentinel.
func (r *Record) Touched() bool {
	return r.LastUpdated != NeverUpdated
}

// ResponseKind identifies which arm of the AgentResponse union is populated.
type ResponseKind string

const (
	// ResponseCompleted carries a final result payload.
	ResponseCompleted ResponseKind = "completed"
	// ResponseInterrupted carries an interrupt awaiting a human decision.
	ResponseInterrupted ResponseKind = "interrupted"
	// ResponseErrored carries an error message.
	ResponseErrored ResponseKind = "error"
)

// AgentResponse is the structured payload persisted in Record.LastResponse.
// Exactly one of Result, InterruptData or Message is populated; the populated
// arm determines Status. The registry persists it opaquely and never
// interprets the internals beyond arm selection.
type AgentResponse struct {
	SessionID     string            `json:"session_id"`
	TaskID        string            `json:"task_id"`
	Status        Status            `json:"status"`
	Timestamp     float64           `json:"timestamp"`
	Message       string            `json:"message,omitempty"`
	Result        map[string]any    `json:"result,omitempty"`
	InterruptData *InterruptPayload `json:"interrupt_data,omitempty"`
}

// NewCompletedResponse builds the completed arm of the union.
func NewCompletedResponse(sessionID, taskID string, result map[string]any) *AgentResponse {
	return &AgentResponse{
		SessionID: sessionID,
		TaskID:    taskID,
		Status:    StatusCompleted,
		Timestamp: Now(),
		Result:    result,
	}
}

// NewInterruptedResponse builds the interrupted arm of the union.
func NewInterruptedResponse(sessionID, taskID string, interrupt *InterruptPayload) *AgentResponse {
	return &AgentResponse{
		SessionID:     sessionID,
		TaskID:        taskID,
		Status:        StatusInterrupted,
		Timestamp:     Now(),
		InterruptData: interrupt,
	}
}

// NewErroredResponse builds the error arm of the union.
func NewErroredResponse(sessionID, taskID, message string) *AgentResponse {
	return &AgentResponse{
		SessionID: sessionID,
		TaskID:    taskID,
		Status:    StatusError,
		Timestamp: Now(),
		Message:   message,
	}
}

// Kind derives the populated arm. The stored Status field is authoritative
// when consistent; Kind falls back to the populated field so a response with
// a corrupt status remains classifiable.
func (r *AgentResponse) Kind() ResponseKind {
	switch r.Status {
	case StatusCompleted:
		return ResponseCompleted
	case StatusInterrupted:
		return ResponseInterrupted
	case StatusError:
		return ResponseErrored
	}
	switch {
	case r.InterruptData != nil:
		return ResponseInterrupted
	case r.Result != nil:
		return ResponseCompleted
	default:
		return ResponseErrored
	}
}

// Validate rejects responses populating more than one union arm.
func (r *AgentResponse) Validate() error {
	n := 0
	if r.Result != nil {
		n++
	}
	if r.InterruptData != nil {
		n++
	}
	if r.Message != "" {
		n++
	}
	if n > 1 {
		return fmt.Errorf("agent response populates %d union arms, want at most 1", n)
	}
	return nil
}

// InterruptPayload is the interrupt shape consumed from the agent execution
// collaborator: a pause requesting human approval, edit or rejection of a
// pending action.
type InterruptPayload struct {
	InterruptType string         `json:"interrupt_type"`
	Description   string         `json:"description,omitempty"`
	ActionRequest *ActionRequest `json:"action_request,omitempty"`
}

// ActionRequest names the action awaiting approval together with its
// proposed arguments.
type ActionRequest struct {
	Action string         `json:"action"`
	Args   map[string]any `json:"args,omitempty"`
}

// ResumeType enumerates the human decisions a resume can carry.
type ResumeType string

const (
	// ResumeAccept approves the pending action as proposed.
	ResumeAccept ResumeType = "accept"
	// ResumeEdit approves the pending action with modified arguments.
	ResumeEdit ResumeType = "edit"
	// ResumeReject refuses the pending action.
	ResumeReject ResumeType = "reject"
	// ResumeResponse answers the agent directly instead of running the action.
	ResumeResponse ResumeType = "response"
)

// ResumeCommand is the decision shape produced toward the agent execution
// collaborator when an interrupted turn is resumed.
type ResumeCommand struct {
	Type ResumeType  `json:"type"`
	Args *ResumeArgs `json:"args,omitempty"`
}

// Validate checks the decision shape: the type must be a known one and an
// edit must carry the modified arguments it approves.
func (c ResumeCommand) Validate() error {
	switch c.Type {
	case ResumeAccept, ResumeReject, ResumeResponse:
	case ResumeEdit:
		if c.Args == nil {
			return fmt.Errorf("resume command: edit requires args")
		}
	default:
		return fmt.Errorf("resume command: invalid type %q", c.Type)
	}
	return nil
}

// ResumeArgs wraps the optional payload of an edit or response decision.
type ResumeArgs struct {
	Args any `json:"args"`
}

// TaskStatus is the job-queue level record for one task id. Its lifecycle is
// independent of the session Record: created at enqueue, terminal once
// completed or failed, expired on its own TTL.
type TaskStatus struct {
	TaskID    string         `json:"task_id"`
	State     TaskState      `json:"status"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}
