package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// Options holds configuration overrides passed to New().
type Options struct {
	// DefaultTTL is applied to record writes that supply no explicit TTL.
	DefaultTTL time.Duration
	// TaskTTL is the fixed expiry of task statuses and the refresh applied to
	// the session task index when a status is bound to it.
	TaskTTL time.Duration
	// Logger receives reconciliation and lifecycle logs.
	Logger logging.Logger
}

// Registry is the public facade over the record store, the index
// reconciler and the task status tracker. It is the sole writer of all four
// key families and is safe for concurrent use; it holds no state beyond the
// injected store.
type Registry struct {
	store      core.KVStore
	defaultTTL time.Duration
	taskTTL    time.Duration
	logger     logging.Logger
}

// New constructs a Registry over the given store with optional overrides.
func New(store core.KVStore, optFns ...func(o *Options)) *Registry {
	opts := Options{
		DefaultTTL: 300 * time.Second,
		TaskTTL:    3600 * time.Second,
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		store:      store,
		defaultTTL: opts.DefaultTTL,
		taskTTL:    opts.TaskTTL,
		logger:     opts.Logger,
	}
}

// TaskTTL returns the execution-horizon expiry: the TTL of task statuses and
// of every record write made along the execution path. The shorter default
// TTL applies only to writes that do not carry an explicit override.
func (r *Registry) TaskTTL() time.Duration { return r.taskTTL }

// Fields carries the optional record fields of a create or update. A nil
// pointer means "not supplied": updates leave the stored value untouched and
// creates fall back to their documented defaults.
type Fields struct {
	Status       *core.Status
	LastQuery    *string
	LastResponse *core.AgentResponse
	LastUpdated  *float64
	TTL          *time.Duration
}

// WithStatus supplies the status field.
func WithStatus(s core.Status) func(*Fields) {
	return func(f *Fields) { f.Status = &s }
}

// WithLastQuery supplies the last query field.
func WithLastQuery(q string) func(*Fields) {
	return func(f *Fields) { f.LastQuery = &q }
}

// WithLastResponse supplies the last response payload.
func WithLastResponse(r *core.AgentResponse) func(*Fields) {
	return func(f *Fields) { f.LastResponse = r }
}

// WithLastUpdated supplies the last-updated timestamp (seconds).
func WithLastUpdated(ts float64) func(*Fields) {
	return func(f *Fields) { f.LastUpdated = &ts }
}

// WithTTL overrides the registry's default TTL for this write. An explicit
// zero stores the record already expired.
func WithTTL(ttl time.Duration) func(*Fields) {
	return func(f *Fields) { f.TTL = &ttl }
}

// CreateRecord creates (or fully overwrites) the record for the triple and
// returns the session id, generating one when sessionID is empty. The
// record starts idle with the never-updated sentinel unless fields say
// otherwise, and both derived indexes gain the new member. The task index
// TTL is refreshed to match the record.
func (r *Registry) CreateRecord(ctx context.Context, userID, sessionID, taskID string, optFns ...func(*Fields)) (string, error) {
	var f Fields
	for _, fn := range optFns {
		fn(&f)
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	rec := &core.Record{
		UserID:      userID,
		SessionID:   sessionID,
		TaskID:      taskID,
		Status:      core.StatusIdle,
		LastUpdated: core.NeverUpdated,
	}
	if f.Status != nil {
		if !f.Status.Valid() {
			return "", fmt.Errorf("create record: invalid status %q", *f.Status)
		}
		rec.Status = *f.Status
	}
	if f.LastQuery != nil {
		rec.LastQuery = *f.LastQuery
	}
	if f.LastResponse != nil {
		rec.LastResponse = f.LastResponse
	}
	if f.LastUpdated != nil {
		rec.LastUpdated = *f.LastUpdated
	}

	ttl := r.defaultTTL
	if f.TTL != nil {
		ttl = *f.TTL
	}

	if err := r.writeRecord(ctx, rec, ttl); err != nil {
		return "", err
	}
	if err := r.store.SetAdd(ctx, userSessionsKey(userID), sessionTaskMember(sessionID, taskID)); err != nil {
		return "", err
	}
	if err := r.store.SetAdd(ctx, taskMappingKey(userID, sessionID), taskID); err != nil {
		return "", err
	}
	if _, err := r.store.Expire(ctx, taskMappingKey(userID, sessionID), ttl); err != nil {
		return "", err
	}

	r.logger.Info("created session record", "user_id", userID, "session_id", sessionID, "task_id", taskID)

	return sessionID, nil
}

// UpdateRecord applies the supplied field groups to an existing record and
// rewrites it with a fresh TTL. It reports false when the triple is absent.
//
// The update is a read-modify-write without a concurrency token: two
// concurrent updates of the same triple can interleave and the last writer
// wins per field group. This window is part of the contract, not resolved
// by locking.
func (r *Registry) UpdateRecord(ctx context.Context, userID, sessionID, taskID string, optFns ...func(*Fields)) (bool, error) {
	var f Fields
	for _, fn := range optFns {
		fn(&f)
	}

	rec, err := r.readRecord(ctx, userID, sessionID, taskID)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	if f.Status != nil {
		if !f.Status.Valid() {
			return false, fmt.Errorf("update record: invalid status %q", *f.Status)
		}
		rec.Status = *f.Status
	}
	if f.LastQuery != nil {
		rec.LastQuery = *f.LastQuery
	}
	if f.LastResponse != nil {
		rec.LastResponse = f.LastResponse
	}
	if f.LastUpdated != nil {
		rec.LastUpdated = *f.LastUpdated
	}

	ttl := r.defaultTTL
	if f.TTL != nil {
		ttl = *f.TTL
	}

	if err := r.writeRecord(ctx, rec, ttl); err != nil {
		return false, err
	}
	if _, err := r.store.Expire(ctx, taskMappingKey(userID, sessionID), ttl); err != nil {
		return false, err
	}

	r.logger.Info("updated session record", "user_id", userID, "session_id", sessionID, "task_id", taskID, "status", string(rec.Status))

	return true, nil
}

// GetRecord reconciles the user's indexes and returns the record for the
// triple, or ErrNotFound when it is absent or expired.
func (r *Registry) GetRecord(ctx context.Context, userID, sessionID, taskID string) (*core.Record, error) {
	if err := r.ReconcileUser(ctx, userID); err != nil {
		return nil, err
	}
	rec, err := r.readRecord(ctx, userID, sessionID, taskID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s:%s:%s", ErrNotFound, userID, sessionID, taskID)
	}
	return rec, nil
}

// Resume transitions an interrupted record back to running, stamping the
// time and refreshing the TTL. Any other status yields ErrIllegalTransition;
// an absent triple yields ErrNotFound. The caller dispatches the actual
// agent continuation separately.
func (r *Registry) Resume(ctx context.Context, userID, sessionID, taskID string, optFns ...func(*Fields)) error {
	rec, err := r.GetRecord(ctx, userID, sessionID, taskID)
	if err != nil {
		return err
	}
	if !rec.Status.CanResume() {
		return fmt.Errorf("%w: cannot resume %s:%s:%s from status %q", ErrIllegalTransition, userID, sessionID, taskID, rec.Status)
	}

	// The resumed run may outlive the default session TTL, so the rewrite
	// extends expiry to the task horizon.
	fns := append([]func(*Fields){
		WithStatus(core.StatusRunning),
		WithLastUpdated(core.Now()),
		WithTTL(r.taskTTL),
	}, optFns...)

	ok, err := r.UpdateRecord(ctx, userID, sessionID, taskID, fns...)
	if err != nil {
		return err
	}
	if !ok {
		// The record expired between the legality check and the rewrite.
		return fmt.Errorf("%w: %s:%s:%s", ErrNotFound, userID, sessionID, taskID)
	}
	return nil
}

// UserExists reconciles and reports whether the user has any live sessions.
func (r *Registry) UserExists(ctx context.Context, userID string) (bool, error) {
	if err := r.ReconcileUser(ctx, userID); err != nil {
		return false, err
	}
	return r.store.Exists(ctx, userSessionsKey(userID))
}

// SessionExists reconciles and reports whether the session has any live tasks.
func (r *Registry) SessionExists(ctx context.Context, userID, sessionID string) (bool, error) {
	if err := r.ReconcileUser(ctx, userID); err != nil {
		return false, err
	}
	return r.store.Exists(ctx, taskMappingKey(userID, sessionID))
}

// TaskExists reconciles and reports whether the triple's record is live.
func (r *Registry) TaskExists(ctx context.Context, userID, sessionID, taskID string) (bool, error) {
	if err := r.ReconcileUser(ctx, userID); err != nil {
		return false, err
	}
	return r.store.Exists(ctx, recordKey(userID, sessionID, taskID))
}

// DeleteSession removes records and their index entries. With a task id it
// deletes exactly that record; with an empty task id it deletes every task
// under the session and the whole task index. It reports whether at least
// one record was actually deleted; deleting an absent session is not an
// error.
func (r *Registry) DeleteSession(ctx context.Context, userID, sessionID, taskID string) (bool, error) {
	if taskID != "" {
		return r.deleteTask(ctx, userID, sessionID, taskID, true)
	}

	taskIDs, err := r.store.SetMembers(ctx, taskMappingKey(userID, sessionID))
	if err != nil {
		return false, err
	}

	deleted := false
	for _, id := range taskIDs {
		ok, err := r.deleteTask(ctx, userID, sessionID, id, false)
		if err != nil {
			return deleted, err
		}
		deleted = deleted || ok
	}
	if _, err := r.store.Delete(ctx, taskMappingKey(userID, sessionID)); err != nil {
		return deleted, err
	}

	r.logger.Info("deleted session", "user_id", userID, "session_id", sessionID, "deleted", deleted)

	return deleted, nil
}

// deleteTask removes one record plus its index entries. When pruneEmpty is
// set, an emptied task index key is deleted so it stops answering exists().
func (r *Registry) deleteTask(ctx context.Context, userID, sessionID, taskID string, pruneEmpty bool) (bool, error) {
	if err := r.store.SetRemove(ctx, userSessionsKey(userID), sessionTaskMember(sessionID, taskID)); err != nil {
		return false, err
	}
	if err := r.store.SetRemove(ctx, taskMappingKey(userID, sessionID), taskID); err != nil {
		return false, err
	}
	deleted, err := r.store.Delete(ctx, recordKey(userID, sessionID, taskID))
	if err != nil {
		return false, err
	}

	if pruneEmpty {
		n, err := r.store.SetLen(ctx, taskMappingKey(userID, sessionID))
		if err != nil {
			return deleted, err
		}
		if n == 0 {
			if _, err := r.store.Delete(ctx, taskMappingKey(userID, sessionID)); err != nil {
				return deleted, err
			}
		}
	}

	return deleted, nil
}

// writeRecord marshals and stores the full record with the given TTL.
func (r *Registry) writeRecord(ctx context.Context, rec *core.Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	return r.store.Set(ctx, recordKey(rec.UserID, rec.SessionID, rec.TaskID), string(data), ttl)
}

// storedRecord mirrors core.Record with a raw response payload so one
// corrupt field never hides an otherwise valid record.
type storedRecord struct {
	UserID       string          `json:"user_id"`
	SessionID    string          `json:"session_id"`
	TaskID       string          `json:"task_id"`
	Status       core.Status     `json:"status"`
	LastQuery    string          `json:"last_query,omitempty"`
	LastResponse json.RawMessage `json:"last_response,omitempty"`
	LastUpdated  float64         `json:"last_updated"`
}

// readRecord loads and decodes the record for the triple, returning nil
// (without error) when it is absent. A last_response that fails to decode is
// logged and treated as absent.
func (r *Registry) readRecord(ctx context.Context, userID, sessionID, taskID string) (*core.Record, error) {
	raw, ok, err := r.store.Get(ctx, recordKey(userID, sessionID, taskID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var stored storedRecord
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("decode session record %s:%s:%s: %w", userID, sessionID, taskID, err)
	}

	rec := &core.Record{
		UserID:      stored.UserID,
		SessionID:   stored.SessionID,
		TaskID:      stored.TaskID,
		Status:      stored.Status,
		LastQuery:   stored.LastQuery,
		LastUpdated: stored.LastUpdated,
	}
	if len(stored.LastResponse) > 0 && string(stored.LastResponse) != "null" {
		var resp core.AgentResponse
		if err := json.Unmarshal(stored.LastResponse, &resp); err != nil {
			r.logger.Error("dropping undecodable last_response", "user_id", userID, "session_id", sessionID, "task_id", taskID, "error", err.Error())
		} else {
			rec.LastResponse = &resp
		}
	}
	return rec, nil
}
