package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/hupe1980/taskmesh/core"
)

// TaskStatusOptions carries the optional payload of a task status write.
type TaskStatusOptions struct {
	Result map[string]any
	Error  string
	// UserID and SessionID bind the task into the session's task index; both
	// must be supplied for the binding to happen.
	UserID    string
	SessionID string
}

// WithTaskResult attaches the result payload of a completed task.
func WithTaskResult(result map[string]any) func(*TaskStatusOptions) {
	return func(o *TaskStatusOptions) { o.Result = result }
}

// WithTaskError attaches the failure message of a failed task.
func WithTaskError(msg string) func(*TaskStatusOptions) {
	return func(o *TaskStatusOptions) { o.Error = msg }
}

// WithTaskBinding links the task status back to its session, adding the task
// id to the session's task index and refreshing that index's TTL.
func WithTaskBinding(userID, sessionID string) func(*TaskStatusOptions) {
	return func(o *TaskStatusOptions) { o.UserID = userID; o.SessionID = sessionID }
}

// SetTaskStatus writes or overwrites the task status with the fixed task
// TTL. This is the only place where the job-queue status channel touches the
// session indexes: a supplied binding adds the task id to the session's task
// index and refreshes its expiry.
func (r *Registry) SetTaskStatus(ctx context.Context, taskID string, state core.TaskState, optFns ...func(*TaskStatusOptions)) error {
	if !state.Valid() {
		return fmt.Errorf("set task status: invalid state %q", state)
	}

	var opts TaskStatusOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	status := core.TaskStatus{
		TaskID:    taskID,
		State:     state,
		Result:    opts.Result,
		Error:     opts.Error,
		UserID:    opts.UserID,
		SessionID: opts.SessionID,
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode task status: %w", err)
	}
	if err := r.store.Set(ctx, taskKey(taskID), string(data), r.taskTTL); err != nil {
		return err
	}

	if opts.UserID != "" && opts.SessionID != "" {
		mapping := taskMappingKey(opts.UserID, opts.SessionID)
		if err := r.store.SetAdd(ctx, mapping, taskID); err != nil {
			return err
		}
		if _, err := r.store.Expire(ctx, mapping, r.taskTTL); err != nil {
			return err
		}
		r.logger.Info("bound task to session", "task_id", taskID, "user_id", opts.UserID, "session_id", opts.SessionID, "state", string(state))
	}

	return nil
}

// GetTaskStatus returns the task status or ErrNotFound when it is absent or
// expired. An undecodable stored status is logged and reported as absent.
func (r *Registry) GetTaskStatus(ctx context.Context, taskID string) (*core.TaskStatus, error) {
	raw, ok, err := r.store.Get(ctx, taskKey(taskID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}

	var status core.TaskStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		r.logger.Error("dropping undecodable task status", "task_id", taskID, "error", err.Error())
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	return &status, nil
}

// ListTaskStatuses reconciles the session's index and resolves every live
// task id into a "task_id:status" pair. Tasks whose status has expired are
// skipped.
func (r *Registry) ListTaskStatuses(ctx context.Context, userID, sessionID string) ([]string, error) {
	if err := r.ReconcileUser(ctx, userID); err != nil {
		return nil, err
	}

	taskIDs, err := r.store.SetMembers(ctx, taskMappingKey(userID, sessionID))
	if err != nil {
		return nil, err
	}

	statuses := make([]string, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		status, err := r.GetTaskStatus(ctx, taskID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		statuses = append(statuses, fmt.Sprintf("%s:%s", taskID, status.State))
	}
	sort.Strings(statuses)
	return statuses, nil
}
