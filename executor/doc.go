// Package executor dispatches agent turns asynchronously and translates
// their outcomes into registry state. It owns the two execution paths of a
// conversational task: a fresh invocation and the resumption of an
// interrupted one. The session record tracks the conversational status
// (running, interrupted, completed, error) while the coarser task status
// tracks the dispatched job (pending, completed, failed); the two channels
// are updated independently and converge without coordination.
package executor
