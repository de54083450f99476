// Package taskmesh provides a high-level façade over the session registry
// and the execution services (agent dispatch, task polling, memory &
// logging) enabling rapid construction of multi-user, multi-session
// conversational task systems. Most applications interact with this package
// by:
//  1. Creating a TaskMesh via New() (optionally overriding the default in-memory stores)
//  2. Dispatching queries asynchronously (Invoke) or synchronously (InvokeSync)
//  3. Resolving interrupted turns with a human decision (Resume / ResumeSync)
//
// The façade delegates state keeping to registry.Registry and execution to
// executor.Executor while keeping setup and usage ergonomics concise. All
// defaults are safe for local development and testing; production
// deployments typically supply a Redis-backed store and a structured
// logger.
package taskmesh

import (
	"context"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/executor"
	"github.com/hupe1980/taskmesh/kvstore"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/memory"
	"github.com/hupe1980/taskmesh/registry"
)

// Options configures the TaskMesh instance.
type Options struct {
	// Store is the key-value backend holding records and indexes (defaults
	// to an in-memory implementation if not provided).
	Store core.KVStore

	// MemoryStore supplies long-term user notes folded into the system
	// prompt (defaults to an in-memory implementation if not provided).
	MemoryStore core.MemoryStore

	// SessionTTL is the expiry applied to session records.
	SessionTTL time.Duration

	// TaskTTL is the expiry applied to task statuses.
	TaskTTL time.Duration

	// SystemPrompt is the base system prompt of every invocation.
	SystemPrompt string

	// PollInterval and PollMaxAttempts bound the synchronous wait for a
	// dispatched turn to leave the running status.
	PollInterval    time.Duration
	PollMaxAttempts int

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// TaskMesh is the high-level façade aggregating the registry and the
// execution services.
type TaskMesh struct {
	registry *registry.Registry
	executor *executor.Executor
	poller   *executor.Poller
	memory   core.MemoryStore
}

// New creates a new TaskMesh instance around the given agent with optional
// overrides. Any unset store is initialized with an in-memory
// implementation.
func New(agent core.Agent, optFns ...func(o *Options)) *TaskMesh {
	opts := Options{
		Store:           kvstore.NewInMemoryStore(),
		MemoryStore:     memory.NewInMemoryStore(),
		SessionTTL:      300 * time.Second,
		TaskTTL:         3600 * time.Second,
		PollInterval:    time.Second,
		PollMaxAttempts: 30,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	reg := registry.New(opts.Store, func(o *registry.Options) {
		o.DefaultTTL = opts.SessionTTL
		o.TaskTTL = opts.TaskTTL
		o.Logger = opts.Logger
	})

	exec := executor.New(reg, agent, func(o *executor.Options) {
		o.SystemPrompt = opts.SystemPrompt
		o.MemoryStore = opts.MemoryStore
		o.Logger = opts.Logger
	})

	poller := executor.NewPoller(reg, func(o *executor.PollerOptions) {
		o.Interval = opts.PollInterval
		o.MaxAttempts = opts.PollMaxAttempts
	})

	return &TaskMesh{
		registry: reg,
		executor: exec,
		poller:   poller,
		memory:   opts.MemoryStore,
	}
}

// Registry exposes the underlying session registry for direct queries.
func (m *TaskMesh) Registry() *registry.Registry { return m.registry }

// Memory exposes the long-term memory store.
func (m *TaskMesh) Memory() core.MemoryStore { return m.memory }

// Invoke dispatches a query asynchronously. Empty session or task ids are
// generated; the resolved ids are returned together with the run's terminal
// error channel.
func (m *TaskMesh) Invoke(ctx context.Context, userID, sessionID, taskID, query string) (string, string, <-chan error, error) {
	return m.executor.Invoke(ctx, userID, sessionID, taskID, query)
}

// InvokeSync dispatches a query and blocks until the turn lands, returning
// the final record. The record is completed, interrupted or errored; the
// caller inspects Status rather than an error for agent-level failures.
func (m *TaskMesh) InvokeSync(ctx context.Context, userID, sessionID, taskID, query string) (*core.Record, error) {
	sessionID, taskID, errCh, err := m.executor.Invoke(ctx, userID, sessionID, taskID, query)
	if err != nil {
		return nil, err
	}
	return m.await(ctx, userID, sessionID, taskID, errCh)
}

// Resume feeds a human decision into an interrupted turn asynchronously.
func (m *TaskMesh) Resume(ctx context.Context, userID, sessionID, taskID string, cmd core.ResumeCommand) (<-chan error, error) {
	return m.executor.Resume(ctx, userID, sessionID, taskID, cmd)
}

// ResumeSync feeds a human decision into an interrupted turn and blocks
// until the record lands again.
func (m *TaskMesh) ResumeSync(ctx context.Context, userID, sessionID, taskID string, cmd core.ResumeCommand) (*core.Record, error) {
	errCh, err := m.executor.Resume(ctx, userID, sessionID, taskID, cmd)
	if err != nil {
		return nil, err
	}
	return m.await(ctx, userID, sessionID, taskID, errCh)
}

// Wait polls the triple's record until it leaves the running status. It is
// the recovery path for callers who dispatched asynchronously and lost the
// error channel, e.g. across process boundaries.
func (m *TaskMesh) Wait(ctx context.Context, userID, sessionID, taskID string) (*core.Record, error) {
	return m.poller.Wait(ctx, userID, sessionID, taskID)
}

// Status reconciles and returns the current record for the triple.
func (m *TaskMesh) Status(ctx context.Context, userID, sessionID, taskID string) (*core.Record, error) {
	return m.registry.GetRecord(ctx, userID, sessionID, taskID)
}

// await drains the run's terminal channel, then reads back the record the
// run wrote. Run failures surface through the errored record, not through
// the returned error.
func (m *TaskMesh) await(ctx context.Context, userID, sessionID, taskID string, errCh <-chan error) (*core.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-errCh:
	}
	return m.registry.GetRecord(ctx, userID, sessionID, taskID)
}
