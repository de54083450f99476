// Package tool defines the callable-function abstraction agents expose to
// models. A tool declares its name, description and JSON-Schema parameters
// for the model, and whether invoking it requires a human decision first.
package tool

import (
	"context"
	"fmt"
)

// Tool is a callable capability exposed to a model.
//
// Implementations must be safe for concurrent use; Execute may be called
// from multiple runs at once.
type Tool interface {
	// Name returns the unique tool name used in function call declarations
	// and routing.
	Name() string

	// Description returns the human-readable description shown to models.
	Description() string

	// Parameters returns the JSON-Schema-like map describing accepted
	// arguments.
	Parameters() map[string]any

	// RequiresApproval reports whether an invocation must pause for a human
	// decision before executing.
	RequiresApproval() bool

	// Execute runs the tool with model-supplied arguments.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// ErrorCode classifies tool failures for callers that branch on cause.
type ErrorCode string

const (
	// ValidationError marks a schema / argument mismatch.
	ValidationError ErrorCode = "VALIDATION_ERROR"
	// ExecutionError marks a failure inside the wrapped implementation.
	ExecutionError ErrorCode = "EXECUTION_ERROR"
)

// Error is the normalized failure type returned by tool execution.
type Error struct {
	Code    ErrorCode
	Tool    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tool %s: %s: %s", e.Tool, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }
