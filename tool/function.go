package tool

import (
	"context"
	"errors"

	"github.com/hupe1980/taskmesh/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a
// tool.
//
// Responsibilities:
//   - Holds a lightweight JSON-Schema-like parameter specification
//   - Validates required arguments before execution
//   - Normalizes error handling so callers receive *Error with consistent
//     codes (custom *Error values from the function are preserved)
//
// Concurrency: a FunctionTool has no internal mutable state after
// construction and is safe for concurrent use by multiple goroutines.
type FunctionTool struct {
	// Tool identifier (snake_case recommended)
	name string
	// Human-readable description shown to models
	description string
	// JSON schema describing accepted arguments
	parameters map[string]any
	// Pause for a human decision before executing
	requiresApproval bool
	// User supplied implementation
	fn func(ctx context.Context, args map[string]any) (any, error)
}

// FunctionToolOptions holds configuration overrides passed to
// NewFunctionTool().
type FunctionToolOptions struct {
	// RequiresApproval gates every invocation behind a human decision.
	RequiresApproval bool
}

// NewFunctionTool constructs a FunctionTool from explicit schema and
// function.
//
// Arguments:
//
//	name        - unique tool name (avoid collisions; snake_case suggested)
//	description - concise, imperative description ("Calculate the ...")
//	parameters  - minimal JSON-Schema-like map describing the accepted arguments
//	fn          - implementation receiving already-validated args
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    a := args["a"].(float64)
//	    b := args["b"].(float64)
//	    return a + b, nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	var opts FunctionToolOptions
	for _, optFn := range optFns {
		optFn(&opts)
	}

	return &FunctionTool{
		name:             name,
		description:      description,
		parameters:       parameters,
		requiresApproval: opts.RequiresApproval,
		fn:               fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct
// using reflection. It is a convenience for simple argument containers.
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sumTool := NewFunctionToolFromStruct(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  SumArgs{},
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(ctx context.Context, args map[string]any) (any, error),
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	schema := util.CreateSchema(structType)
	return NewFunctionTool(name, description, schema, fn, optFns...)
}

// Name returns the unique tool name used in function call declarations and
// routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the human-readable description shown to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing accepted arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// RequiresApproval reports whether invocations pause for a human decision.
func (t *FunctionTool) RequiresApproval() bool { return t.requiresApproval }

// Execute validates arguments against the schema and invokes the wrapped
// function.
func (t *FunctionTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	if err := util.ValidateParameters(args, t.parameters); err != nil {
		return nil, &Error{
			Code:    ValidationError,
			Tool:    t.name,
			Message: err.Error(),
			Err:     err,
		}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		var toolErr *Error
		if errors.As(err, &toolErr) {
			return nil, toolErr
		}
		return nil, &Error{
			Code:    ExecutionError,
			Tool:    t.name,
			Message: err.Error(),
			Err:     err,
		}
	}

	return result, nil
}
