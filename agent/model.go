package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/tool"
)

// InterruptTypeToolApproval names the interrupt raised when an
// approval-gated tool is about to run.
const InterruptTypeToolApproval = "tool_approval"

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// Tools exposed to the model.
	Tools []tool.Tool
	// MaxModelCalls limits the number of model calls per run.
	MaxModelCalls int
	// Logging services.
	Logger logging.Logger
}

// ModelAgent is a core.Agent driving a model through a bounded tool loop.
// Paused runs are process-local: an interrupted turn must be resumed by the
// same process that raised the interrupt.
type ModelAgent struct {
	model         model.Model
	tools         map[string]tool.Tool
	toolDefs      []model.ToolDefinition
	maxModelCalls int
	logger        logging.Logger

	mu     sync.Mutex
	paused map[string]*pausedRun // taskID -> transcript awaiting a decision
}

// pausedRun captures where the loop stopped: the transcript so far plus the
// tool call awaiting the human decision.
type pausedRun struct {
	messages []model.Message
	call     model.ToolCall
}

var _ core.Agent = (*ModelAgent)(nil)

// New constructs a ModelAgent with optional overrides.
func New(m model.Model, optFns ...func(o *Options)) *ModelAgent {
	opts := Options{
		MaxModelCalls: 10,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	tools := make(map[string]tool.Tool, len(opts.Tools))
	toolDefs := make([]model.ToolDefinition, 0, len(opts.Tools))
	for _, t := range opts.Tools {
		tools[t.Name()] = t
		toolDefs = append(toolDefs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}

	return &ModelAgent{
		model:         m,
		tools:         tools,
		toolDefs:      toolDefs,
		maxModelCalls: opts.MaxModelCalls,
		logger:        opts.Logger,
		paused:        make(map[string]*pausedRun),
	}
}

// Invoke runs a fresh turn for the query.
func (a *ModelAgent) Invoke(ctx context.Context, inv core.Invocation) (core.Outcome, error) {
	var messages []model.Message
	if inv.SystemPrompt != "" {
		messages = append(messages, model.SystemMessage(inv.SystemPrompt))
	}
	messages = append(messages, model.UserMessage(inv.Query))

	return a.loop(ctx, inv.TaskID, messages)
}

// Resume continues an interrupted turn with the supplied human decision.
func (a *ModelAgent) Resume(ctx context.Context, res core.Resumption) (core.Outcome, error) {
	a.mu.Lock()
	run, ok := a.paused[res.TaskID]
	delete(a.paused, res.TaskID)
	a.mu.Unlock()

	if !ok {
		return core.Outcome{}, fmt.Errorf("no interrupted run for task %s", res.TaskID)
	}

	messages := run.messages

	switch res.Command.Type {
	case core.ResumeAccept:
		messages = append(messages, a.executeCall(ctx, run.call, nil))
	case core.ResumeEdit:
		edited, err := editedArgs(res.Command)
		if err != nil {
			return core.Outcome{}, err
		}
		messages = append(messages, a.executeCall(ctx, run.call, edited))
	case core.ResumeReject:
		messages = append(messages, model.ToolMessage("Tool call rejected by the user.", run.call.ID))
	case core.ResumeResponse:
		messages = append(messages, model.ToolMessage(responseText(res.Command), run.call.ID))
	default:
		return core.Outcome{}, fmt.Errorf("resume command: invalid type %q", res.Command.Type)
	}

	return a.loop(ctx, res.TaskID, messages)
}

// loop alternates model calls and tool executions until the model answers
// without tool calls, an approval gate pauses the run, or the call budget
// runs out.
func (a *ModelAgent) loop(ctx context.Context, taskID string, messages []model.Message) (core.Outcome, error) {
	for i := 0; i < a.maxModelCalls; i++ {
		resp, err := a.model.Complete(ctx, model.Request{Messages: messages, Tools: a.toolDefs})
		if err != nil {
			return core.Outcome{}, fmt.Errorf("model call failed: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			return core.Outcome{Result: map[string]any{"answer": resp.Content}}, nil
		}

		messages = append(messages, model.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			t, registered := a.tools[call.Name]
			if !registered {
				messages = append(messages, model.ToolMessage(fmt.Sprintf("unknown tool %q", call.Name), call.ID))
				continue
			}

			if t.RequiresApproval() {
				a.mu.Lock()
				a.paused[taskID] = &pausedRun{messages: messages, call: call}
				a.mu.Unlock()

				a.logger.Info("pausing for tool approval", "task_id", taskID, "tool", call.Name)

				return core.Outcome{Interrupt: &core.InterruptPayload{
					InterruptType: InterruptTypeToolApproval,
					Description:   fmt.Sprintf("Tool %q requires approval before running.", call.Name),
					ActionRequest: &core.ActionRequest{
						Action: call.Name,
						Args:   parseArgs(call.Arguments),
					},
				}}, nil
			}

			messages = append(messages, a.executeCall(ctx, call, nil))
		}
	}

	return core.Outcome{}, fmt.Errorf("model call budget of %d exhausted for task %s", a.maxModelCalls, taskID)
}

// executeCall runs one tool call and folds its result (or failure text)
// into a tool message. Override replaces the model-supplied arguments when
// the human edited them.
func (a *ModelAgent) executeCall(ctx context.Context, call model.ToolCall, override map[string]any) model.Message {
	t, registered := a.tools[call.Name]
	if !registered {
		return model.ToolMessage(fmt.Sprintf("unknown tool %q", call.Name), call.ID)
	}

	args := override
	if args == nil {
		args = parseArgs(call.Arguments)
	}

	result, err := t.Execute(ctx, args)
	if err != nil {
		a.logger.Warn("tool execution failed", "tool", call.Name, "error", err.Error())
		return model.ToolMessage(fmt.Sprintf("tool execution failed: %s", err), call.ID)
	}

	return model.ToolMessage(renderResult(result), call.ID)
}

// parseArgs decodes the model-supplied argument JSON, degrading to an empty
// map when it does not parse.
func parseArgs(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &args)
	}
	return args
}

// renderResult serializes a tool result for the transcript.
func renderResult(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}

// editedArgs extracts the replacement arguments of an edit decision.
func editedArgs(cmd core.ResumeCommand) (map[string]any, error) {
	if cmd.Args == nil {
		return nil, fmt.Errorf("resume command: edit requires args")
	}
	if m, ok := cmd.Args.Args.(map[string]any); ok {
		return m, nil
	}

	// Decisions arriving over the wire decode into arbitrary JSON; remarshal
	// to normalize.
	data, err := json.Marshal(cmd.Args.Args)
	if err != nil {
		return nil, fmt.Errorf("resume command: invalid edit args: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("resume command: invalid edit args: %w", err)
	}
	return m, nil
}

// responseText extracts the direct answer of a response decision.
func responseText(cmd core.ResumeCommand) string {
	if cmd.Args == nil {
		return ""
	}
	if s, ok := cmd.Args.Args.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", cmd.Args.Args)
}
