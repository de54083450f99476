// Package memory contains concrete MemoryStore implementations. The store
// interface resides in the core package. Import
// github.com/hupe1980/taskmesh/core and depend on core.MemoryStore in your
// code; select an implementation (like the in-memory store below) at wiring
// time.
//
// Rationale: keeps domain contracts centralized while allowing pluggable
// backends (key-value stores, document stores, etc.) to be added without
// introducing dependency cycles.
package memory
