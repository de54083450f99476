package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/taskmesh/core"
)

const (
	noteIDsPrefix = "memory_ids:"
	notePrefix    = "memory:"
)

// KVStoreOptions holds configuration overrides passed to NewKVStore().
type KVStoreOptions struct {
	// NoteTTL is the expiry applied to every note write. The id index is
	// refreshed to the same horizon on each write and repaired lazily when
	// notes outlive it.
	NoteTTL time.Duration
}

// KVStore persists user notes in a core.KVStore: one value key per note
// plus a per-user id set, the same index-beside-record layout the session
// registry uses. Note ids that outlive their note are pruned on read.
type KVStore struct {
	store   core.KVStore
	noteTTL time.Duration
}

// NewKVStore constructs a key-value backed memory store with optional
// overrides.
func NewKVStore(store core.KVStore, optFns ...func(o *KVStoreOptions)) *KVStore {
	opts := KVStoreOptions{
		NoteTTL: 30 * 24 * time.Hour,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &KVStore{
		store:   store,
		noteTTL: opts.NoteTTL,
	}
}

// Store writes a note under a generated id and indexes it for the user.
func (m *KVStore) Store(ctx context.Context, userID, content string) (string, error) {
	id := uuid.NewString()

	if err := m.store.Set(ctx, noteKey(userID, id), content, m.noteTTL); err != nil {
		return "", err
	}
	if err := m.store.SetAdd(ctx, noteIDsKey(userID), id); err != nil {
		return "", err
	}
	if _, err := m.store.Expire(ctx, noteIDsKey(userID), m.noteTTL); err != nil {
		return "", err
	}

	return id, nil
}

// Load joins the user's live notes into a single space-separated string.
// The id set is unordered, so notes are joined in sorted id order for
// deterministic output; ids whose note has expired are removed from the
// index on the way.
func (m *KVStore) Load(ctx context.Context, userID string) (string, error) {
	ids, err := m.store.SetMembers(ctx, noteIDsKey(userID))
	if err != nil {
		return "", err
	}
	sort.Strings(ids)

	contents := make([]string, 0, len(ids))
	for _, id := range ids {
		content, ok, err := m.store.Get(ctx, noteKey(userID, id))
		if err != nil {
			return "", err
		}
		if !ok {
			if err := m.store.SetRemove(ctx, noteIDsKey(userID), id); err != nil {
				return "", err
			}
			continue
		}
		contents = append(contents, content)
	}

	return strings.Join(contents, " "), nil
}

// Delete removes a single note by id.
func (m *KVStore) Delete(ctx context.Context, userID, memoryID string) error {
	if err := m.store.SetRemove(ctx, noteIDsKey(userID), memoryID); err != nil {
		return err
	}
	deleted, err := m.store.Delete(ctx, noteKey(userID, memoryID))
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("memory not found")
	}
	return nil
}

func noteIDsKey(userID string) string {
	return noteIDsPrefix + userID
}

func noteKey(userID, memoryID string) string {
	return fmt.Sprintf("%s%s:%s", notePrefix, userID, memoryID)
}
