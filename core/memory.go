package core

import "context"

// MemoryStore persists free-form long-term notes per user. It is consulted
// only for reading and writing content (typically folded into a system
// prompt), never for session bookkeeping. Short method names align with the
// other *Store interfaces.
type MemoryStore interface {
	// Store appends a note for the user and returns its generated id.
	Store(ctx context.Context, userID, content string) (string, error)

	// Load returns the user's notes joined into a single string, empty when
	// none exist.
	Load(ctx context.Context, userID string) (string, error)

	// Delete removes a single note by id.
	Delete(ctx context.Context, userID, memoryID string) error
}
