package model

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider
// branching.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"` // JSON string of arguments
}

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset
// expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Message is one turn of a provider-agnostic conversation transcript.
type Message struct {
	Role      string     `json:"role"` // "system", "user", "assistant", "tool"
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"` // assistant messages only
	// ToolCallID correlates a tool result back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// SystemMessage builds a system turn.
func SystemMessage(text string) Message {
	return Message{Role: "system", Content: text}
}

// UserMessage builds a user turn.
func UserMessage(text string) Message {
	return Message{Role: "user", Content: text}
}

// AssistantMessage builds an assistant text turn.
func AssistantMessage(text string) Message {
	return Message{Role: "assistant", Content: text}
}

// AssistantToolCallMessage builds an assistant turn requesting tool calls.
func AssistantToolCallMessage(calls ...ToolCall) Message {
	return Message{Role: "assistant", ToolCalls: calls}
}

// ToolMessage builds a tool result turn answering the given call id.
func ToolMessage(content, toolCallID string) Message {
	return Message{Role: "tool", Content: content, ToolCallID: toolCallID}
}

// Request captures the normalized model input produced by agents.
type Request struct {
	Messages []Message        `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the completed output of one model turn: assistant text,
// requested tool calls, or both.
type Response struct {
	Content      string      `json:"content,omitempty"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by agents to drive generation.
type Model interface {
	// Complete runs one turn over the transcript and returns the full
	// assistant output.
	Complete(ctx context.Context, req Request) (Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Scripted responses are consumed in order; when the script is exhausted,
// canned completions keyed by the last user message apply, then a generic
// fallback.
type MockModel struct {
	info      Info
	responses map[string]string
	script    []Response
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      "mock",
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) { m.responses[prompt] = response }

// Enqueue appends a scripted response consumed before any canned completion.
func (m *MockModel) Enqueue(resp Response) { m.script = append(m.script, resp) }

// Complete implements Model.
func (m *MockModel) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if len(req.Messages) == 0 {
		return Response{}, fmt.Errorf("no messages provided")
	}

	if len(m.script) > 0 {
		resp := m.script[0]
		m.script = m.script[1:]
		return resp, nil
	}

	var lastUser string
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			lastUser = msg.Content
		}
	}
	if canned, ok := m.responses[lastUser]; ok {
		return Response{Content: canned, FinishReason: "stop"}, nil
	}
	return Response{Content: fmt.Sprintf("Mock response to: %s", lastUser), FinishReason: "stop"}, nil
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
