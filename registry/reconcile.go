package registry

import "context"

// ReconcileUser repairs the user's derived indexes against the canonical
// records: every index member whose record has expired or been deleted is
// removed from both indexes, its orphaned task status is deleted, and index
// set keys that end up empty are deleted so they stop answering exists().
//
// The repair is advisory cleanup, not a barrier: a concurrently arriving
// write may legitimately race it. Calling it twice in a row with no
// intervening writes is a no-op the second time.
func (r *Registry) ReconcileUser(ctx context.Context, userID string) error {
	members, err := r.store.SetMembers(ctx, userSessionsKey(userID))
	if err != nil {
		return err
	}
	for _, member := range members {
		sessionID, taskID, ok := splitSessionTask(member)
		if !ok {
			continue
		}
		if err := r.pruneIfStale(ctx, userID, sessionID, taskID); err != nil {
			return err
		}
	}

	mappingKeys, err := r.store.ScanPrefix(ctx, taskMappingPrefix+userID+":")
	if err != nil {
		return err
	}
	for _, key := range mappingKeys {
		_, sessionID, ok := idsFromMappingKey(key)
		if !ok {
			continue
		}
		taskIDs, err := r.store.SetMembers(ctx, key)
		if err != nil {
			return err
		}
		for _, taskID := range taskIDs {
			if err := r.pruneIfStale(ctx, userID, sessionID, taskID); err != nil {
				return err
			}
		}
		if err := r.dropIfEmpty(ctx, key); err != nil {
			return err
		}
	}

	return r.dropIfEmpty(ctx, userSessionsKey(userID))
}

// ReconcileAll repairs the indexes of every known user. Used before global
// aggregate queries; per-user reads should prefer the bounded ReconcileUser.
func (r *Registry) ReconcileAll(ctx context.Context) error {
	users := map[string]struct{}{}

	sessionKeys, err := r.store.ScanPrefix(ctx, userSessionPrefix)
	if err != nil {
		return err
	}
	for _, key := range sessionKeys {
		if userID, ok := userFromSessionsKey(key); ok {
			users[userID] = struct{}{}
		}
	}

	// Task indexes can exist for users whose session set is already gone.
	mappingKeys, err := r.store.ScanPrefix(ctx, taskMappingPrefix)
	if err != nil {
		return err
	}
	for _, key := range mappingKeys {
		if userID, _, ok := idsFromMappingKey(key); ok {
			users[userID] = struct{}{}
		}
	}

	for userID := range users {
		if err := r.ReconcileUser(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

// pruneIfStale removes the triple from both indexes and deletes its task
// status when the canonical record no longer exists.
func (r *Registry) pruneIfStale(ctx context.Context, userID, sessionID, taskID string) error {
	exists, err := r.store.Exists(ctx, recordKey(userID, sessionID, taskID))
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := r.store.SetRemove(ctx, userSessionsKey(userID), sessionTaskMember(sessionID, taskID)); err != nil {
		return err
	}
	if err := r.store.SetRemove(ctx, taskMappingKey(userID, sessionID), taskID); err != nil {
		return err
	}
	if _, err := r.store.Delete(ctx, taskKey(taskID)); err != nil {
		return err
	}

	r.logger.Info("pruned expired task", "user_id", userID, "session_id", sessionID, "task_id", taskID)

	return nil
}

// dropIfEmpty deletes a set key once its cardinality reaches zero, so empty
// containers stop answering existence checks truthfully for users or
// sessions that hold no data.
func (r *Registry) dropIfEmpty(ctx context.Context, key string) error {
	n, err := r.store.SetLen(ctx, key)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	deleted, err := r.store.Delete(ctx, key)
	if err != nil {
		return err
	}
	if deleted {
		r.logger.Info("dropped empty index set", "key", key)
	}
	return nil
}
