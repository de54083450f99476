package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/hupe1980/taskmesh/core"
)

// ListSessions reconciles the user and returns their distinct session ids.
// Multiple tasks under the same session yield a single entry. The slice is
// sorted for deterministic output.
func (r *Registry) ListSessions(ctx context.Context, userID string) ([]string, error) {
	if err := r.ReconcileUser(ctx, userID); err != nil {
		return nil, err
	}
	return r.distinctSessions(ctx, userID)
}

// ListUsers reconciles all users and returns every user with their distinct
// session ids. Users left without sessions after reconciliation are omitted.
func (r *Registry) ListUsers(ctx context.Context) (map[string][]string, error) {
	if err := r.ReconcileAll(ctx); err != nil {
		return nil, err
	}

	keys, err := r.store.ScanPrefix(ctx, userSessionPrefix)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]string, len(keys))
	for _, key := range keys {
		userID, ok := userFromSessionsKey(key)
		if !ok {
			continue
		}
		sessions, err := r.distinctSessions(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(sessions) > 0 {
			result[userID] = sessions
		}
	}
	return result, nil
}

// CountSessions reconciles all users and returns the number of distinct
// (user, session) pairs across the whole system.
func (r *Registry) CountSessions(ctx context.Context) (int, error) {
	users, err := r.ListUsers(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, sessions := range users {
		count += len(sessions)
	}
	return count, nil
}

// ActiveSession reconciles the user and returns the session id whose record
// carries the numerically greatest valid LastUpdated timestamp. Records
// still holding the never-updated sentinel are excluded from comparison even
// if created later. ErrNotFound is returned when no record has a valid
// timestamp.
func (r *Registry) ActiveSession(ctx context.Context, userID string) (string, error) {
	if err := r.ReconcileUser(ctx, userID); err != nil {
		return "", err
	}

	members, err := r.store.SetMembers(ctx, userSessionsKey(userID))
	if err != nil {
		return "", err
	}

	var (
		latestSession string
		latest        = -1.0
	)
	for _, member := range members {
		sessionID, taskID, ok := splitSessionTask(member)
		if !ok {
			continue
		}
		rec, err := r.readRecord(ctx, userID, sessionID, taskID)
		if err != nil {
			return "", err
		}
		if rec == nil || !rec.Touched() {
			continue
		}
		if rec.LastUpdated > latest {
			latest = rec.LastUpdated
			latestSession = sessionID
		}
	}

	if latestSession == "" {
		return "", fmt.Errorf("%w: no active session for user %s", ErrNotFound, userID)
	}
	return latestSession, nil
}

// GetSessionRecords reconciles the user and returns the records of every
// live task in the session.
func (r *Registry) GetSessionRecords(ctx context.Context, userID, sessionID string) ([]*core.Record, error) {
	if err := r.ReconcileUser(ctx, userID); err != nil {
		return nil, err
	}

	taskIDs, err := r.store.SetMembers(ctx, taskMappingKey(userID, sessionID))
	if err != nil {
		return nil, err
	}

	records := make([]*core.Record, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		rec, err := r.readRecord(ctx, userID, sessionID, taskID)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

// distinctSessions collapses the user's session:task index members into
// sorted unique session ids.
func (r *Registry) distinctSessions(ctx context.Context, userID string) ([]string, error) {
	members, err := r.store.SetMembers(ctx, userSessionsKey(userID))
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	sessions := []string{}
	for _, member := range members {
		sessionID, _, ok := splitSessionTask(member)
		if !ok {
			continue
		}
		if _, dup := seen[sessionID]; dup {
			continue
		}
		seen[sessionID] = struct{}{}
		sessions = append(sessions, sessionID)
	}
	sort.Strings(sessions)
	return sessions, nil
}
