package provider

import (
	"context"
	"fmt"
	"sync"
)

// StaticPrompts is a PromptResolver backed by a map.
type StaticPrompts map[string]string

// Resolve implements PromptResolver.
func (p StaticPrompts) Resolve(name string) (string, error) {
	tmpl, ok := p[name]
	if !ok {
		return "", fmt.Errorf("prompt %q not found", name)
	}
	return tmpl, nil
}

// ScriptedGenerator replays canned responses in order, cycling when the
// script runs out. It records every request for assertions.
type ScriptedGenerator struct {
	mu        sync.Mutex
	responses []GenerateResponse
	err       error
	next      int

	// Calls holds every request received, in order.
	Calls []GenerateRequest
}

// NewScriptedGenerator creates a generator that replays the given
// contents as successive responses.
func NewScriptedGenerator(contents ...string) *ScriptedGenerator {
	g := &ScriptedGenerator{}
	for _, c := range contents {
		g.responses = append(g.responses, GenerateResponse{Content: c})
	}
	return g
}

// WithResponses replaces the script with full responses.
func (g *ScriptedGenerator) WithResponses(responses ...GenerateResponse) *ScriptedGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responses = responses
	g.next = 0
	return g
}

// WithError makes every Generate call fail with err.
func (g *ScriptedGenerator) WithError(err error) *ScriptedGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
	return g
}

// Generate implements Generator.
func (g *ScriptedGenerator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.Calls = append(g.Calls, req)

	if g.err != nil {
		return nil, g.err
	}
	if len(g.responses) == 0 {
		return &GenerateResponse{}, nil
	}

	resp := g.responses[g.next%len(g.responses)]
	g.next++
	return &resp, nil
}

// CallCount returns how many Generate calls were made.
func (g *ScriptedGenerator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Calls)
}

// LastCall returns the most recent request, or nil if none were made.
func (g *ScriptedGenerator) LastCall() *GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.Calls) == 0 {
		return nil
	}
	req := g.Calls[len(g.Calls)-1]
	return &req
}

// RecordingInvoker dispatches tool calls to registered functions and
// records every request. Unregistered tools fail.
type RecordingInvoker struct {
	mu    sync.Mutex
	funcs map[string]func(ctx context.Context, args map[string]any) (any, error)

	// Calls holds every request received, in order.
	Calls []ToolRequest
}

// NewRecordingInvoker creates an invoker with no tools registered.
func NewRecordingInvoker() *RecordingInvoker {
	return &RecordingInvoker{
		funcs: make(map[string]func(ctx context.Context, args map[string]any) (any, error)),
	}
}

// Handle registers a function for a tool name.
func (r *RecordingInvoker) Handle(name string, fn func(ctx context.Context, args map[string]any) (any, error)) *RecordingInvoker {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
	return r
}

// Return registers a fixed result for a tool name.
func (r *RecordingInvoker) Return(name string, output any) *RecordingInvoker {
	return r.Handle(name, func(context.Context, map[string]any) (any, error) {
		return output, nil
	})
}

// Invoke implements ToolInvoker.
func (r *RecordingInvoker) Invoke(ctx context.Context, req ToolRequest) (*ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.Calls = append(r.Calls, req)
	fn, ok := r.funcs[req.Name]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("tool %q not registered", req.Name)
	}

	output, err := fn(ctx, req.Args)
	if err != nil {
		return nil, err
	}
	return &ToolResult{Output: output}, nil
}

// CallCount returns how many Invoke calls were made.
func (r *RecordingInvoker) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}
