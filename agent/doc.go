// Package agent implements the core.Agent contract on top of a model and a
// set of tools. The ModelAgent drives a bounded reason-act loop: the model
// either answers directly or requests tool calls, which are executed and
// fed back until a final answer lands. A tool marked as requiring approval
// pauses the loop with an interrupt; the paused transcript is kept in
// memory keyed by task id until a human decision resumes it.
package agent
