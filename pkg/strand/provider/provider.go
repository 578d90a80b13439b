// Package provider defines the collaborator contracts the engine calls
// out through: prompt resolution, text generation, and tool invocation.
//
// The engine never talks to a model or executes a tool itself. Hosts
// supply implementations through engine options; this package ships
// scripted fakes for tests and local runs.
package provider

import (
	"context"
	"encoding/json"
)

// PromptResolver maps a prompt name from a workflow file to its
// template text. Placeholders in the template are expanded against
// state before generation.
type PromptResolver interface {
	// Resolve returns the template for a named prompt.
	Resolve(name string) (string, error)
}

// GenerateRequest carries one generation call.
type GenerateRequest struct {
	// Prompt is the fully rendered prompt text.
	Prompt string `json:"prompt"`

	// Node is the workflow node making the call.
	Node string `json:"node"`

	// Schema optionally constrains the output shape (JSON Schema).
	Schema json.RawMessage `json:"schema,omitempty"`

	// Tools lists tool definitions offered to the model, for agent
	// nodes that interleave generation with tool use.
	Tools []ToolDefinition `json:"tools,omitempty"`
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// GenerateResponse is the model's reply.
type GenerateResponse struct {
	// Content is the text output.
	Content string `json:"content"`

	// Structured holds parsed output when a schema was supplied.
	Structured map[string]any `json:"structured,omitempty"`

	// ToolCalls are tool invocations the model requested instead of,
	// or alongside, text output.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Generator produces model output for a rendered prompt.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// ToolRequest carries one tool invocation.
type ToolRequest struct {
	// Name is the tool identifier, a declared tool or a built-in.
	Name string `json:"name"`

	// Args are the rendered invocation arguments.
	Args map[string]any `json:"args,omitempty"`

	// Node is the workflow node making the call.
	Node string `json:"node"`
}

// ToolResult is a tool's output.
type ToolResult struct {
	Output any `json:"output"`
}

// ToolInvoker executes tool calls on behalf of the engine.
type ToolInvoker interface {
	Invoke(ctx context.Context, req ToolRequest) (*ToolResult, error)
}
