package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/registry"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// SystemPrompt is the base system prompt of every invocation.
	SystemPrompt string
	// MemoryStore supplies long-term user notes folded into the system
	// prompt. Nil disables enrichment.
	MemoryStore core.MemoryStore
	// Logging services.
	Logger logging.Logger
}

// Executor coordinates asynchronous agent execution against the registry:
// it stamps the session record through its status transitions, records the
// job-level task status, and hands the actual reasoning to the injected
// agent. Public methods are safe for concurrent use.
type Executor struct {
	registry *registry.Registry
	agent    core.Agent

	systemPrompt string
	memoryStore  core.MemoryStore
	logger       logging.Logger

	activeRuns map[string]context.CancelFunc
	mu         sync.Mutex
}

// New constructs an Executor with optional overrides.
func New(reg *registry.Registry, agent core.Agent, optFns ...func(o *Options)) *Executor {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Executor{
		registry:     reg,
		agent:        agent,
		systemPrompt: opts.SystemPrompt,
		memoryStore:  opts.MemoryStore,
		logger:       opts.Logger,
		activeRuns:   make(map[string]context.CancelFunc),
	}
}

// Invoke registers the triple and dispatches a fresh agent turn in the
// background. Empty session or task ids are generated. It returns the
// resolved ids plus a channel that yields the run's terminal error (or nil)
// exactly once.
//
// The record moves idle -> running immediately and reaches a terminal
// status when the turn finishes; callers observe progress by polling the
// record, not by blocking on the returned channel.
func (e *Executor) Invoke(ctx context.Context, userID, sessionID, taskID, query string) (string, string, <-chan error, error) {
	if taskID == "" {
		taskID = uuid.NewString()
	}

	// Records touched by an execution live as long as the task status, not
	// the shorter idle-session default: an interrupt must stay resumable
	// for the full task horizon.
	horizon := e.registry.TaskTTL()

	sessionID, err := e.registry.CreateRecord(ctx, userID, sessionID, taskID, registry.WithTTL(horizon))
	if err != nil {
		return "", "", nil, fmt.Errorf("register invocation: %w", err)
	}
	if err := e.registry.SetTaskStatus(ctx, taskID, core.TaskPending, registry.WithTaskBinding(userID, sessionID)); err != nil {
		return "", "", nil, err
	}

	log := logging.WithTriple(e.logger, userID, sessionID, taskID)

	errCh := e.dispatch(ctx, taskID, func(runCtx context.Context) error {
		if _, err := e.registry.UpdateRecord(runCtx, userID, sessionID, taskID,
			registry.WithStatus(core.StatusRunning),
			registry.WithLastQuery(query),
			registry.WithLastUpdated(core.Now()),
			registry.WithTTL(horizon),
		); err != nil {
			return err
		}

		outcome, err := e.agent.Invoke(runCtx, core.Invocation{
			UserID:       userID,
			SessionID:    sessionID,
			TaskID:       taskID,
			Query:        query,
			SystemPrompt: e.buildSystemPrompt(runCtx, userID),
		})
		return e.recordOutcome(runCtx, userID, sessionID, taskID, outcome, err)
	})

	log.Info("dispatched invocation")

	return sessionID, taskID, errCh, nil
}

// Resume validates the interrupt gate through the registry and dispatches
// the continuation of the turn. Only an interrupted record passes the gate;
// everything else fails synchronously before any work starts.
func (e *Executor) Resume(ctx context.Context, userID, sessionID, taskID string, cmd core.ResumeCommand) (<-chan error, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if err := e.registry.Resume(ctx, userID, sessionID, taskID); err != nil {
		return nil, err
	}
	if err := e.registry.SetTaskStatus(ctx, taskID, core.TaskPending, registry.WithTaskBinding(userID, sessionID)); err != nil {
		return nil, err
	}

	log := logging.WithTriple(e.logger, userID, sessionID, taskID)

	errCh := e.dispatch(ctx, taskID, func(runCtx context.Context) error {
		outcome, err := e.agent.Resume(runCtx, core.Resumption{
			UserID:    userID,
			SessionID: sessionID,
			TaskID:    taskID,
			Command:   cmd,
		})
		return e.recordOutcome(runCtx, userID, sessionID, taskID, outcome, err)
	})

	log.Info("dispatched resumption", "command", string(cmd.Type))

	return errCh, nil
}

// Cancel aborts a running dispatch by task id.
func (e *Executor) Cancel(taskID string) error {
	e.mu.Lock()
	cancel, exists := e.activeRuns[taskID]
	e.mu.Unlock()

	if !exists {
		return fmt.Errorf("task %s not found", taskID)
	}

	cancel()

	return nil
}

// dispatch runs fn in the background, tracks its cancel func under the task
// id, and delivers the terminal error on the returned channel.
//
// The run keeps the caller's context values but not its cancellation: once
// dispatched, a turn outlives the request that started it and stops only
// through Cancel.
func (e *Executor) dispatch(ctx context.Context, taskID string, fn func(runCtx context.Context) error) <-chan error {
	errCh := make(chan error, 1)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.mu.Lock()
	e.activeRuns[taskID] = cancel
	e.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			e.mu.Lock()
			delete(e.activeRuns, taskID)
			e.mu.Unlock()
			close(errCh)
		}()

		if err := fn(runCtx); err != nil {
			e.logger.Error("run failed", "task_id", taskID, "error", err.Error())
			errCh <- err
		}
	}()

	return errCh
}

// recordOutcome maps an agent outcome onto the two status channels: the
// session record gets the conversational status plus the response payload,
// the task status gets the coarse job state. An interrupt is a successful
// job whose conversation is paused, so the task still completes.
func (e *Executor) recordOutcome(ctx context.Context, userID, sessionID, taskID string, outcome core.Outcome, runErr error) error {
	if runErr != nil {
		resp := core.NewErroredResponse(sessionID, taskID, fmt.Sprintf("agent execution failed: %s", runErr))
		if _, err := e.registry.UpdateRecord(ctx, userID, sessionID, taskID,
			registry.WithStatus(core.StatusError),
			registry.WithLastResponse(resp),
			registry.WithLastUpdated(core.Now()),
			registry.WithTTL(e.registry.TaskTTL()),
		); err != nil {
			return err
		}
		if err := e.registry.SetTaskStatus(ctx, taskID, core.TaskFailed,
			registry.WithTaskError(runErr.Error()),
			registry.WithTaskBinding(userID, sessionID),
		); err != nil {
			return err
		}
		return runErr
	}

	var resp *core.AgentResponse
	status := core.StatusCompleted
	if outcome.Interrupted() {
		status = core.StatusInterrupted
		resp = core.NewInterruptedResponse(sessionID, taskID, outcome.Interrupt)
	} else {
		resp = core.NewCompletedResponse(sessionID, taskID, outcome.Result)
	}

	if _, err := e.registry.UpdateRecord(ctx, userID, sessionID, taskID,
		registry.WithStatus(status),
		registry.WithLastResponse(resp),
		registry.WithLastUpdated(core.Now()),
		registry.WithTTL(e.registry.TaskTTL()),
	); err != nil {
		return err
	}

	return e.registry.SetTaskStatus(ctx, taskID, core.TaskCompleted,
		registry.WithTaskResult(outcome.Result),
		registry.WithTaskBinding(userID, sessionID),
	)
}

// buildSystemPrompt folds the user's long-term notes into the base prompt.
// A memory load failure degrades to the bare prompt; it never fails the run.
func (e *Executor) buildSystemPrompt(ctx context.Context, userID string) string {
	if e.memoryStore == nil {
		return e.systemPrompt
	}

	notes, err := e.memoryStore.Load(ctx, userID)
	if err != nil {
		e.logger.Warn("loading long-term memory failed", "user_id", userID, "error", err.Error())
		return e.systemPrompt
	}
	if notes == "" {
		return e.systemPrompt
	}
	return fmt.Sprintf("%s\nAdditional user context: %s", e.systemPrompt, notes)
}
