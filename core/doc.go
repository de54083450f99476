// Package core provides the foundational domain types and interfaces used by
// taskmesh. It defines the core abstractions for:
//
//   - Records (canonical per user/session/task state with status lifecycle)
//   - Agent responses (completed / interrupted / errored tagged union)
//   - Interrupt and resume payloads exchanged with the execution collaborator
//   - Task statuses (coarse job-queue outcome channel)
//   - Pluggable stores: the key-value capability the registry is built on and
//     long-term memory recall
//
// The package intentionally keeps implementation concerns (persistence,
// dispatch, concrete agents) out of scope, exposing small interfaces to
// enable custom backends and extensions.
package core
