package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// InMemoryStore is a process-local core.MemoryStore holding each user's
// long-term notes in insertion order. Concurrency: protected by RWMutex.
// Suitable for tests and single-process prototypes; swap for a shared
// backend when runs span processes.
type InMemoryStore struct {
	mu    sync.RWMutex
	notes map[string][]note // userID -> ordered notes
}

type note struct {
	id      string
	content string
}

// NewInMemoryStore creates a new in-memory memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		notes: make(map[string][]note),
	}
}

// Store appends a note for the user and returns its generated id.
func (m *InMemoryStore) Store(_ context.Context, userID, content string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.notes[userID] = append(m.notes[userID], note{id: id, content: content})

	return id, nil
}

// Load joins the user's notes into a single space-separated string, oldest
// first. A user without notes yields the empty string.
func (m *InMemoryStore) Load(_ context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	notes := m.notes[userID]
	contents := make([]string, 0, len(notes))
	for _, n := range notes {
		contents = append(contents, n.content)
	}

	return strings.Join(contents, " "), nil
}

// Delete removes a single note by id.
func (m *InMemoryStore) Delete(_ context.Context, userID, memoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	notes := m.notes[userID]
	for i, n := range notes {
		if n.id == memoryID {
			m.notes[userID] = append(notes[:i], notes[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("memory not found")
}
