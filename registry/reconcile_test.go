package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/kvstore"
)

// countingStore tracks set removals so tests can assert that a repeated
// reconciliation finds nothing left to repair.
type countingStore struct {
	core.KVStore

	mu      sync.Mutex
	removes int
	deletes int
}

func (c *countingStore) SetRemove(ctx context.Context, key, member string) error {
	c.mu.Lock()
	c.removes++
	c.mu.Unlock()
	return c.KVStore.SetRemove(ctx, key, member)
}

func (c *countingStore) Delete(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	c.deletes++
	c.mu.Unlock()
	return c.KVStore.Delete(ctx, key)
}

func (c *countingStore) counts() (removes, deletes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removes, c.deletes
}

func TestReconcileUser_PrunesExpiredRecords(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry()

	// One live record and one stored already expired.
	_, err := reg.CreateRecord(ctx, "alice", "s1", "live")
	require.NoError(t, err)
	_, err = reg.CreateRecord(ctx, "alice", "s1", "stale", WithTTL(0))
	require.NoError(t, err)

	// The expired record's index entries linger until a reconciled read.
	members, err := store.SetMembers(ctx, userSessionsKey("alice"))
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, reg.ReconcileUser(ctx, "alice"))

	members, err = store.SetMembers(ctx, userSessionsKey("alice"))
	require.NoError(t, err)
	assert.Equal(t, []string{sessionTaskMember("s1", "live")}, members)

	taskIDs, err := store.SetMembers(ctx, taskMappingKey("alice", "s1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, taskIDs)
}

func TestReconcileUser_DeletesOrphanedTaskStatus(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry()

	_, err := reg.CreateRecord(ctx, "alice", "s1", "t1", WithTTL(0))
	require.NoError(t, err)
	require.NoError(t, reg.SetTaskStatus(ctx, "t1", core.TaskPending, WithTaskBinding("alice", "s1")))

	require.NoError(t, reg.ReconcileUser(ctx, "alice"))

	exists, err := store.Exists(ctx, taskKey("t1"))
	require.NoError(t, err)
	assert.False(t, exists, "task status of a pruned record must be deleted")
}

func TestReconcileUser_DropsEmptyIndexSets(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry()

	_, err := reg.CreateRecord(ctx, "alice", "s1", "t1", WithTTL(0))
	require.NoError(t, err)
	require.NoError(t, reg.ReconcileUser(ctx, "alice"))

	for _, key := range []string{userSessionsKey("alice"), taskMappingKey("alice", "s1")} {
		exists, err := store.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, exists, "emptied index set %s must be deleted", key)
	}
}

func TestReconcileUser_SecondRunIsNoOp(t *testing.T) {
	ctx := context.Background()
	inner := kvstore.NewInMemoryStore()
	store := &countingStore{KVStore: inner}
	reg := New(store)

	_, err := reg.CreateRecord(ctx, "alice", "s1", "live")
	require.NoError(t, err)
	_, err = reg.CreateRecord(ctx, "alice", "s1", "stale", WithTTL(0))
	require.NoError(t, err)

	require.NoError(t, reg.ReconcileUser(ctx, "alice"))
	removesAfterFirst, deletesAfterFirst := store.counts()
	assert.Positive(t, removesAfterFirst)

	require.NoError(t, reg.ReconcileUser(ctx, "alice"))
	removes, deletes := store.counts()
	assert.Equal(t, removesAfterFirst, removes, "second reconciliation must not remove anything")
	assert.Equal(t, deletesAfterFirst, deletes, "second reconciliation must not delete anything")
}

func TestReconcileUser_PreservesLiveRecords(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()

	_, err := reg.CreateRecord(ctx, "alice", "s1", "t1", WithLastQuery("hello"))
	require.NoError(t, err)

	require.NoError(t, reg.ReconcileUser(ctx, "alice"))

	rec, err := reg.GetRecord(ctx, "alice", "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "hello", rec.LastQuery)
}

func TestReconcileAll_CoversAllUsers(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry()

	_, err := reg.CreateRecord(ctx, "alice", "s1", "t1", WithTTL(0))
	require.NoError(t, err)
	_, err = reg.CreateRecord(ctx, "bob", "s1", "t1", WithTTL(0))
	require.NoError(t, err)
	_, err = reg.CreateRecord(ctx, "carol", "s1", "t1")
	require.NoError(t, err)

	require.NoError(t, reg.ReconcileAll(ctx))

	for _, user := range []string{"alice", "bob"} {
		exists, err := store.Exists(ctx, userSessionsKey(user))
		require.NoError(t, err)
		assert.False(t, exists, "user %s held only expired records", user)
	}

	exists, err := store.Exists(ctx, userSessionsKey("carol"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestReconcileUser_StalenessConvergesThroughReads(t *testing.T) {
	// Every read-side operation reconciles first, so a mixed population of
	// live and expired records converges to the live subset without any
	// explicit repair call.
	ctx := context.Background()
	reg, _ := newTestRegistry()

	_, err := reg.CreateRecord(ctx, "alice", "s1", "live", WithTTL(time.Minute))
	require.NoError(t, err)
	for _, task := range []string{"e1", "e2", "e3"} {
		_, err := reg.CreateRecord(ctx, "alice", "s2", task, WithTTL(0))
		require.NoError(t, err)
	}

	sessions, err := reg.ListSessions(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, sessions)

	ok, err := reg.SessionExists(ctx, "alice", "s2")
	require.NoError(t, err)
	assert.False(t, ok)
}
