package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/testutil"
	"github.com/hupe1980/taskmesh/kvstore"
	"github.com/hupe1980/taskmesh/registry"
)

// stubAgent scripts the two turn entry points and records what it was
// handed so tests can assert on the wiring.
type stubAgent struct {
	mu             sync.Mutex
	invokeFn       func(inv core.Invocation) (core.Outcome, error)
	resumeFn       func(res core.Resumption) (core.Outcome, error)
	lastInvocation core.Invocation
	lastResumption core.Resumption
}

var _ core.Agent = (*stubAgent)(nil)

func (s *stubAgent) Invoke(_ context.Context, inv core.Invocation) (core.Outcome, error) {
	s.mu.Lock()
	s.lastInvocation = inv
	s.mu.Unlock()
	if s.invokeFn != nil {
		return s.invokeFn(inv)
	}
	return core.Outcome{Result: map[string]any{"answer": "ok"}}, nil
}

func (s *stubAgent) Resume(_ context.Context, res core.Resumption) (core.Outcome, error) {
	s.mu.Lock()
	s.lastResumption = res
	s.mu.Unlock()
	if s.resumeFn != nil {
		return s.resumeFn(res)
	}
	return core.Outcome{Result: map[string]any{"answer": "resumed"}}, nil
}

func (s *stubAgent) seenInvocation() core.Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastInvocation
}

func (s *stubAgent) seenResumption() core.Resumption {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResumption
}

type stubMemory struct {
	notes string
	err   error
}

var _ core.MemoryStore = (*stubMemory)(nil)

func (s *stubMemory) Store(context.Context, string, string) (string, error) { return "", nil }
func (s *stubMemory) Load(context.Context, string) (string, error)          { return s.notes, s.err }
func (s *stubMemory) Delete(context.Context, string, string) error          { return nil }

func newTestExecutor(agent core.Agent, optFns ...func(o *Options)) (*Executor, *registry.Registry) {
	reg := registry.New(kvstore.NewInMemoryStore())
	return New(reg, agent, optFns...), reg
}

func drain(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
		return nil
	}
}

func TestExecutor_InvokeCompletes(t *testing.T) {
	ctx := context.Background()
	agent := &stubAgent{}
	exec, reg := newTestExecutor(agent)

	sessionID, taskID, errCh, err := exec.Invoke(ctx, "alice", "s1", "t1", "what is the weather")
	require.NoError(t, err)
	assert.Equal(t, "s1", sessionID)
	assert.Equal(t, "t1", taskID)
	require.NoError(t, drain(t, errCh))

	rec, err := reg.GetRecord(ctx, "alice", "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, rec.Status)
	assert.Equal(t, "what is the weather", rec.LastQuery)
	require.NotNil(t, rec.LastResponse)
	assert.Equal(t, core.ResponseCompleted, rec.LastResponse.Kind())
	assert.Equal(t, map[string]any{"answer": "ok"}, rec.LastResponse.Result)

	status, err := reg.GetTaskStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, status.State)
}

func TestExecutor_InvokeGeneratesIDs(t *testing.T) {
	ctx := context.Background()
	exec, reg := newTestExecutor(&stubAgent{})

	sessionID, taskID, errCh, err := exec.Invoke(ctx, "alice", "", "", "hello")
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)
	require.NotEmpty(t, taskID)
	require.NoError(t, drain(t, errCh))

	_, err = reg.GetRecord(ctx, "alice", sessionID, taskID)
	require.NoError(t, err)
}

func TestExecutor_InvokeAgentError(t *testing.T) {
	ctx := context.Background()
	agent := &stubAgent{
		invokeFn: func(core.Invocation) (core.Outcome, error) {
			return core.Outcome{}, errors.New("model unavailable")
		},
	}
	exec, reg := newTestExecutor(agent)

	_, _, errCh, err := exec.Invoke(ctx, "alice", "s1", "t1", "hello")
	require.NoError(t, err)
	assert.Error(t, drain(t, errCh))

	rec, err := reg.GetRecord(ctx, "alice", "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, rec.Status)
	require.NotNil(t, rec.LastResponse)
	assert.Equal(t, core.ResponseErrored, rec.LastResponse.Kind())
	assert.Contains(t, rec.LastResponse.Message, "model unavailable")

	status, err := reg.GetTaskStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskFailed, status.State)
	assert.Equal(t, "model unavailable", status.Error)
}

func TestExecutor_InterruptAndResume(t *testing.T) {
	ctx := context.Background()
	interrupt := testutil.NewInterruptBuilder("tool_approval").
		Description("approve sending the email").
		Action("send_email", map[string]any{"to": "bob@example.com"}).
		Build()
	agent := &stubAgent{
		invokeFn: func(core.Invocation) (core.Outcome, error) {
			return core.Outcome{Interrupt: interrupt}, nil
		},
	}
	exec, reg := newTestExecutor(agent)

	_, _, errCh, err := exec.Invoke(ctx, "alice", "s1", "t1", "send bob an email")
	require.NoError(t, err)
	require.NoError(t, drain(t, errCh))

	rec, err := reg.GetRecord(ctx, "alice", "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusInterrupted, rec.Status)
	require.NotNil(t, rec.LastResponse)
	assert.Equal(t, core.ResponseInterrupted, rec.LastResponse.Kind())
	assert.Equal(t, "tool_approval", rec.LastResponse.InterruptData.InterruptType)

	// The dispatched job itself completed; only the conversation is paused.
	status, err := reg.GetTaskStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, status.State)

	errCh, err = exec.Resume(ctx, "alice", "s1", "t1", core.ResumeCommand{Type: core.ResumeAccept})
	require.NoError(t, err)
	require.NoError(t, drain(t, errCh))

	assert.Equal(t, core.ResumeAccept, agent.seenResumption().Command.Type)

	rec, err = reg.GetRecord(ctx, "alice", "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, rec.Status)

	statuses, err := reg.ListTaskStatuses(ctx, "alice", "s1")
	require.NoError(t, err)
	assert.Contains(t, statuses, "t1:completed")
}

func TestExecutor_ResumeRejectedWhenNotInterrupted(t *testing.T) {
	ctx := context.Background()
	exec, reg := newTestExecutor(&stubAgent{})

	_, err := reg.CreateRecord(ctx, "alice", "s1", "t1", registry.WithStatus(core.StatusCompleted))
	require.NoError(t, err)

	_, err = exec.Resume(ctx, "alice", "s1", "t1", core.ResumeCommand{Type: core.ResumeAccept})
	assert.ErrorIs(t, err, registry.ErrIllegalTransition)
}

func TestExecutor_ResumeValidatesCommand(t *testing.T) {
	ctx := context.Background()
	exec, reg := newTestExecutor(&stubAgent{})

	_, err := reg.CreateRecord(ctx, "alice", "s1", "t1", registry.WithStatus(core.StatusInterrupted))
	require.NoError(t, err)

	_, err = exec.Resume(ctx, "alice", "s1", "t1", core.ResumeCommand{Type: core.ResumeType("approve")})
	assert.Error(t, err)

	// Edit without replacement args is malformed.
	_, err = exec.Resume(ctx, "alice", "s1", "t1", core.ResumeCommand{Type: core.ResumeEdit})
	assert.Error(t, err)

	// The record must still be resumable after the rejected commands.
	rec, err := reg.GetRecord(ctx, "alice", "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusInterrupted, rec.Status)
}

func TestExecutor_SystemPromptEnrichedFromMemory(t *testing.T) {
	ctx := context.Background()
	agent := &stubAgent{}
	exec, _ := newTestExecutor(agent, func(o *Options) {
		o.SystemPrompt = "You are a helpful assistant."
		o.MemoryStore = &stubMemory{notes: "alice prefers Celsius"}
	})

	_, _, errCh, err := exec.Invoke(ctx, "alice", "s1", "t1", "weather?")
	require.NoError(t, err)
	require.NoError(t, drain(t, errCh))

	prompt := agent.seenInvocation().SystemPrompt
	assert.Contains(t, prompt, "You are a helpful assistant.")
	assert.Contains(t, prompt, "alice prefers Celsius")
}

func TestExecutor_MemoryFailureDegradesToBasePrompt(t *testing.T) {
	ctx := context.Background()
	agent := &stubAgent{}
	exec, _ := newTestExecutor(agent, func(o *Options) {
		o.SystemPrompt = "base prompt"
		o.MemoryStore = &stubMemory{err: errors.New("store down")}
	})

	_, _, errCh, err := exec.Invoke(ctx, "alice", "s1", "t1", "hello")
	require.NoError(t, err)
	require.NoError(t, drain(t, errCh))

	assert.Equal(t, "base prompt", agent.seenInvocation().SystemPrompt)
}

// ttlCaptureStore records the TTL handed to every Set while delegating to a
// real in-memory store.
type ttlCaptureStore struct {
	core.KVStore
	mu   sync.Mutex
	ttls map[string][]time.Duration
}

func newTTLCaptureStore() *ttlCaptureStore {
	return &ttlCaptureStore{
		KVStore: kvstore.NewInMemoryStore(),
		ttls:    make(map[string][]time.Duration),
	}
}

func (s *ttlCaptureStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	s.ttls[key] = append(s.ttls[key], ttl)
	s.mu.Unlock()
	return s.KVStore.Set(ctx, key, value, ttl)
}

func (s *ttlCaptureStore) setTTLs(key string) []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.ttls[key]...)
}

func TestExecutor_RecordWritesUseTaskHorizon(t *testing.T) {
	ctx := context.Background()
	store := newTTLCaptureStore()
	reg := registry.New(store)
	exec := New(reg, &stubAgent{})

	_, _, errCh, err := exec.Invoke(ctx, "alice", "s1", "t1", "hello")
	require.NoError(t, err)
	require.NoError(t, drain(t, errCh))

	horizon := reg.TaskTTL()

	// Create, running and outcome all rewrite the record; each rewrite must
	// keep the task horizon, not fall back to the idle-session default.
	writes := store.setTTLs("session:alice:s1:t1")
	require.Len(t, writes, 3)
	for _, ttl := range writes {
		assert.Equal(t, horizon, ttl)
	}

	for _, ttl := range store.setTTLs("task:t1") {
		assert.Equal(t, horizon, ttl)
	}
}

func TestExecutor_InterruptedRecordKeepsTaskHorizon(t *testing.T) {
	ctx := context.Background()
	store := newTTLCaptureStore()
	reg := registry.New(store)
	exec := New(reg, &stubAgent{
		invokeFn: func(core.Invocation) (core.Outcome, error) {
			return core.Outcome{Interrupt: testutil.NewInterruptBuilder("tool_approval").
				Action("send_email", map[string]any{"to": "bob@example.com"}).
				Build()}, nil
		},
	})

	_, _, errCh, err := exec.Invoke(ctx, "alice", "s1", "t1", "send the report")
	require.NoError(t, err)
	require.NoError(t, drain(t, errCh))

	rec, err := reg.GetRecord(ctx, "alice", "s1", "t1")
	require.NoError(t, err)
	require.Equal(t, core.StatusInterrupted, rec.Status)

	writes := store.setTTLs("session:alice:s1:t1")
	require.NotEmpty(t, writes)
	assert.Equal(t, reg.TaskTTL(), writes[len(writes)-1])
}

// gateAgent blocks inside Invoke until released and reports whether its run
// context was cancelled in the meantime.
type gateAgent struct {
	started chan struct{}
	proceed chan struct{}
}

var _ core.Agent = (*gateAgent)(nil)

func (g *gateAgent) Invoke(ctx context.Context, _ core.Invocation) (core.Outcome, error) {
	close(g.started)
	<-g.proceed
	if err := ctx.Err(); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Result: map[string]any{"answer": "ok"}}, nil
}

func (g *gateAgent) Resume(context.Context, core.Resumption) (core.Outcome, error) {
	return core.Outcome{}, errors.New("not scripted")
}

func TestExecutor_RunSurvivesCallerCancellation(t *testing.T) {
	agent := &gateAgent{started: make(chan struct{}), proceed: make(chan struct{})}
	exec, reg := newTestExecutor(agent)

	callCtx, cancel := context.WithCancel(context.Background())
	_, _, errCh, err := exec.Invoke(callCtx, "alice", "s1", "t1", "hello")
	require.NoError(t, err)

	<-agent.started
	cancel()
	close(agent.proceed)

	require.NoError(t, drain(t, errCh))

	rec, err := reg.GetRecord(context.Background(), "alice", "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, rec.Status)
}

func TestExecutor_CancelAbortsDetachedRun(t *testing.T) {
	agent := &gateAgent{started: make(chan struct{}), proceed: make(chan struct{})}
	exec, reg := newTestExecutor(agent)

	_, _, errCh, err := exec.Invoke(context.Background(), "alice", "s1", "t1", "hello")
	require.NoError(t, err)

	<-agent.started
	require.NoError(t, exec.Cancel("t1"))
	close(agent.proceed)

	require.Error(t, drain(t, errCh))

	rec, err := reg.GetRecord(context.Background(), "alice", "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, rec.Status)
}
