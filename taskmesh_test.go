package taskmesh

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/agent"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/registry"
	"github.com/hupe1980/taskmesh/tool"
)

func newTestMesh(t *testing.T, m model.Model, tools ...tool.Tool) *TaskMesh {
	t.Helper()

	a := agent.New(m, func(o *agent.Options) {
		o.Tools = tools
	})

	return New(a, func(o *Options) {
		o.PollInterval = time.Millisecond
		o.PollMaxAttempts = 500
	})
}

func TestTaskMesh_InvokeSyncCompletes(t *testing.T) {
	ctx := context.Background()
	m := model.NewMockModel("test-model")
	m.AddResponse("hello", "hi there")

	mesh := newTestMesh(t, m)

	rec, err := mesh.InvokeSync(ctx, "alice", "s1", "t1", "hello")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, rec.Status)
	require.NotNil(t, rec.LastResponse)
	assert.Equal(t, core.ResponseCompleted, rec.LastResponse.Kind())
	assert.Equal(t, "hello", rec.LastQuery)

	status, err := mesh.Registry().GetTaskStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, status.State)
}

func TestTaskMesh_InterruptAndResumeSync(t *testing.T) {
	ctx := context.Background()
	m := model.NewMockModel("test-model")
	m.Enqueue(model.Response{
		ToolCalls: []model.ToolCall{{
			ID:        "call_1",
			Name:      "send_email",
			Arguments: json.RawMessage(`{"to":"bob@example.com"}`),
		}},
		FinishReason: "tool_calls",
	})
	m.Enqueue(model.Response{Content: "Email sent.", FinishReason: "stop"})

	var sent []map[string]any

	emailTool := tool.NewFunctionTool(
		"send_email",
		"Send an email on behalf of the user",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"to": map[string]any{"type": "string"},
			},
			"required": []string{"to"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			sent = append(sent, args)
			return "delivered", nil
		},
		func(o *tool.FunctionToolOptions) { o.RequiresApproval = true },
	)

	mesh := newTestMesh(t, m, emailTool)

	rec, err := mesh.InvokeSync(ctx, "alice", "s1", "t1", "email bob")
	require.NoError(t, err)
	assert.Equal(t, core.StatusInterrupted, rec.Status)
	require.NotNil(t, rec.LastResponse)
	require.NotNil(t, rec.LastResponse.InterruptData)
	assert.Equal(t, agent.InterruptTypeToolApproval, rec.LastResponse.InterruptData.InterruptType)
	require.NotNil(t, rec.LastResponse.InterruptData.ActionRequest)
	assert.Equal(t, "send_email", rec.LastResponse.InterruptData.ActionRequest.Action)
	assert.Empty(t, sent)

	// The job finished; only the conversation is paused.
	status, err := mesh.Registry().GetTaskStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, status.State)

	rec, err = mesh.ResumeSync(ctx, "alice", "s1", "t1", core.ResumeCommand{Type: core.ResumeAccept})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, rec.Status)
	require.NotNil(t, rec.LastResponse)
	assert.Equal(t, core.ResponseCompleted, rec.LastResponse.Kind())

	require.Len(t, sent, 1)
	assert.Equal(t, "bob@example.com", sent[0]["to"])
}

func TestTaskMesh_ResumeSyncRejectsNonInterrupted(t *testing.T) {
	ctx := context.Background()
	m := model.NewMockModel("test-model")
	m.AddResponse("hello", "hi there")

	mesh := newTestMesh(t, m)

	_, err := mesh.InvokeSync(ctx, "alice", "s1", "t1", "hello")
	require.NoError(t, err)

	_, err = mesh.ResumeSync(ctx, "alice", "s1", "t1", core.ResumeCommand{Type: core.ResumeAccept})
	require.ErrorIs(t, err, registry.ErrIllegalTransition)
}

func TestTaskMesh_InvokeGeneratesIDs(t *testing.T) {
	ctx := context.Background()
	m := model.NewMockModel("test-model")

	mesh := newTestMesh(t, m)

	sessionID, taskID, errCh, err := mesh.Invoke(ctx, "alice", "", "", "ping")
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)
	assert.NotEmpty(t, taskID)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}

	rec, err := mesh.Status(ctx, "alice", sessionID, taskID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, rec.Status)
}

func TestTaskMesh_MemoryEnrichesSystemPrompt(t *testing.T) {
	ctx := context.Background()

	var prompts []string

	m := model.NewMockModel("test-model")
	a := agent.New(promptCapture{inner: m, prompts: &prompts})

	mesh := New(a, func(o *Options) {
		o.SystemPrompt = "You are a helpful assistant."
		o.PollInterval = time.Millisecond
		o.PollMaxAttempts = 500
	})

	_, err := mesh.Memory().Store(ctx, "alice", "prefers short answers")
	require.NoError(t, err)

	_, err = mesh.InvokeSync(ctx, "alice", "s1", "t1", "hello")
	require.NoError(t, err)

	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts[0], "You are a helpful assistant.")
	assert.Contains(t, prompts[0], "prefers short answers")
}

// promptCapture records the system message handed to the underlying model.
type promptCapture struct {
	inner   model.Model
	prompts *[]string
}

func (p promptCapture) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			*p.prompts = append(*p.prompts, msg.Content)
		}
	}
	return p.inner.Complete(ctx, req)
}

func (p promptCapture) Info() model.Info { return p.inner.Info() }

func ExampleTaskMesh() {
	ctx := context.Background()

	m := model.NewMockModel("example-model")
	m.AddResponse("hello", "hi there")

	mesh := New(agent.New(m), func(o *Options) {
		o.PollInterval = time.Millisecond
	})

	rec, err := mesh.InvokeSync(ctx, "alice", "s1", "t1", "hello")
	if err != nil {
		panic(err)
	}

	fmt.Println(rec.Status)
	// Output: completed
}
