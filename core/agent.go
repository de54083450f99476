package core

import "context"

// Invocation carries the inputs for a fresh agent turn.
type Invocation struct {
	UserID       string
	SessionID    string
	TaskID       string
	Query        string
	SystemPrompt string
}

// Resumption carries a human decision back into a previously interrupted
// turn identified by its triple.
type Resumption struct {
	UserID    string
	SessionID string
	TaskID    string
	Command   ResumeCommand
}

// Outcome is the result of one agent turn: either a final result or an
// interrupt requesting a human decision. Exactly one field is populated.
type Outcome struct {
	Result    map[string]any
	Interrupt *InterruptPayload
}

// Interrupted reports whether the turn paused on an interrupt.
func (o Outcome) Interrupted() bool {
	return o.Interrupt != nil
}

// Agent is the execution collaborator: a black box that runs one reasoning
// turn and returns either a final result or an interrupt payload. The
// registry never looks inside an outcome; the execution wrapper only derives
// status transitions from it.
type Agent interface {
	// Invoke runs a fresh turn for the given query.
	Invoke(ctx context.Context, inv Invocation) (Outcome, error)

	// Resume continues an interrupted turn with the supplied human decision.
	Resume(ctx context.Context, res Resumption) (Outcome, error)
}
