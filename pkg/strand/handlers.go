package strand

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/strandworks/strand/pkg/strand/provider"
	"github.com/strandworks/strand/pkg/strand/spec"
	"github.com/strandworks/strand/pkg/strand/template"
	"github.com/strandworks/strand/pkg/strand/tool"
)

// defaultAgentIterations bounds agent nodes that omit max_iterations.
const defaultAgentIterations = 5

// dispatch executes one node by type and returns the updated state.
// Interrupt nodes return an interruptOutcome instead of advancing.
func (r *Runtime) dispatch(ctx context.Context, rc *runCtx, node *compiledNode, state State) (State, *interruptOutcome, error) {
	switch node.spec.Type {
	case spec.TypePassthrough:
		return state, nil, nil

	case spec.TypeLLM:
		newState, err := r.execLLM(ctx, node, state)
		return newState, nil, err

	case spec.TypeRouter:
		newState, err := r.execRouterOutput(ctx, node, state)
		return newState, nil, err

	case spec.TypeMap:
		newState, err := r.execMap(ctx, rc, node, state)
		return newState, nil, err

	case spec.TypeInterrupt:
		return r.execInterrupt(node, state)

	case spec.TypeAgent:
		newState, err := r.execAgent(ctx, node, state)
		return newState, nil, err

	case spec.TypeToolCall, spec.TypeTool, spec.TypePython:
		newState, err := r.execTool(ctx, node, state)
		return newState, nil, err

	case spec.TypeSubgraph:
		return r.execSubgraph(ctx, rc, node, state)

	default:
		return state, nil, &NodeExecutionError{
			Node: node.id,
			Op:   "dispatch",
			Err:  fmt.Errorf("unknown node type %q", node.spec.Type),
		}
	}
}

// promptTemplate resolves a node's prompt to its template text. With a
// resolver configured the prompt field is a name; without one it is
// treated as inline template text.
func (r *Runtime) promptTemplate(node *compiledNode) (string, error) {
	if r.opts.prompts != nil {
		tmpl, err := r.opts.prompts.Resolve(node.spec.Prompt)
		if err != nil {
			return "", &NodeExecutionError{Node: node.id, Op: "resolve prompt", Err: err}
		}
		return tmpl, nil
	}
	return node.spec.Prompt, nil
}

// execLLM renders the node's prompt, calls the generator, and writes
// the response into state.
func (r *Runtime) execLLM(ctx context.Context, node *compiledNode, state State) (State, error) {
	if r.opts.generator == nil {
		return state, &NodeExecutionError{Node: node.id, Op: "generate", Err: errors.New("no generator configured")}
	}

	tmpl, err := r.promptTemplate(node)
	if err != nil {
		return state, err
	}
	rendered := template.Render(tmpl, state)

	resp, err := r.opts.generator.Generate(ctx, provider.GenerateRequest{
		Prompt: rendered,
		Node:   node.id,
	})
	if err != nil {
		return state, &NodeExecutionError{Node: node.id, Op: "generate", Err: err}
	}

	r.writeResponse(node, state, resp)
	return state, nil
}

// writeResponse commits a generation result to state: structured output
// merges field by field, plain text lands in the node's output key.
// Assistant turns accumulate in declared message history fields.
func (r *Runtime) writeResponse(node *compiledNode, state State, resp *provider.GenerateResponse) {
	if len(resp.Structured) > 0 {
		for k, v := range resp.Structured {
			state[k] = v
		}
	} else {
		state[outputKey(node.spec)] = resp.Content
	}

	if resp.Content == "" {
		return
	}
	for _, key := range r.graph.AppendKeys() {
		if _, ok := state.GetList(key); ok {
			state.Append(key, map[string]any{
				"role":    "assistant",
				"node":    node.id,
				"content": resp.Content,
			})
		}
	}
}

// execRouterOutput computes a router node's routing value when the node
// declares a prompt. Routers without a prompt route on a value some
// earlier node already wrote; executing them is a no-op.
func (r *Runtime) execRouterOutput(ctx context.Context, node *compiledNode, state State) (State, error) {
	if node.spec.Prompt == "" {
		return state, nil
	}
	return r.execLLM(ctx, node, state)
}

// execInterrupt suspends the run. The rendered prompt and the surfaced
// state value travel out with the signal; the resolver fills in the
// resume target afterwards.
func (r *Runtime) execInterrupt(node *compiledNode, state State) (State, *interruptOutcome, error) {
	prompt := node.spec.Message
	if node.spec.Prompt != "" {
		tmpl, err := r.promptTemplate(node)
		if err != nil {
			return state, nil, err
		}
		prompt = tmpl
	}
	prompt = template.Render(prompt, state)

	intr := &interruptOutcome{
		node:      node.id,
		resumeKey: node.spec.ResumeKey,
		prompt:    prompt,
	}
	if node.spec.StateKey != "" {
		intr.value = state[node.spec.StateKey]
	}
	return state, intr, nil
}

// execAgent runs the generate/invoke loop: the model either answers or
// requests tool calls, whose results feed the next iteration, bounded
// by max_iterations.
func (r *Runtime) execAgent(ctx context.Context, node *compiledNode, state State) (State, error) {
	if r.opts.generator == nil {
		return state, &NodeExecutionError{Node: node.id, Op: "generate", Err: errors.New("no generator configured")}
	}
	if len(node.spec.Tools) > 0 && r.opts.invoker == nil {
		return state, &NodeExecutionError{Node: node.id, Op: "invoke", Err: errors.New("no tool invoker configured")}
	}

	tmpl, err := r.promptTemplate(node)
	if err != nil {
		return state, err
	}

	defs := r.toolDefinitions(node.spec.Tools)
	maxIter := node.spec.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultAgentIterations
	}

	var resp *provider.GenerateResponse
	for i := 0; i < maxIter; i++ {
		rendered := template.Render(tmpl, state)
		resp, err = r.opts.generator.Generate(ctx, provider.GenerateRequest{
			Prompt: rendered,
			Node:   node.id,
			Tools:  defs,
		})
		if err != nil {
			return state, &NodeExecutionError{Node: node.id, Op: "generate", Err: err}
		}

		if len(resp.ToolCalls) == 0 {
			break
		}
		for _, call := range resp.ToolCalls {
			result, err := r.opts.invoker.Invoke(ctx, provider.ToolRequest{
				Name: call.Name,
				Args: call.Args,
				Node: node.id,
			})
			if err != nil {
				return state, &NodeExecutionError{Node: node.id, Op: "invoke " + call.Name, Err: err}
			}
			for _, key := range r.graph.AppendKeys() {
				if _, ok := state.GetList(key); ok {
					state.Append(key, map[string]any{
						"role":    "tool",
						"tool":    call.Name,
						"content": fmt.Sprintf("%v", result.Output),
					})
				}
			}
		}
	}

	r.writeResponse(node, state, resp)
	return state, nil
}

// toolDefinitions maps declared tool names to provider definitions.
func (r *Runtime) toolDefinitions(names []string) []provider.ToolDefinition {
	byName := make(map[string]spec.ToolSpec, len(r.graph.Tools))
	for _, t := range r.graph.Tools {
		byName[t.Name] = t
	}

	defs := make([]provider.ToolDefinition, 0, len(names))
	for _, name := range names {
		def := provider.ToolDefinition{Name: name}
		if t, ok := byName[name]; ok {
			def.Description = t.Description
			if len(t.Parameters) > 0 {
				if params, err := json.Marshal(t.Parameters); err == nil {
					def.Parameters = params
				}
			}
		}
		defs = append(defs, def)
	}
	return defs
}

// execTool invokes a single tool and writes its output into state.
// Shell and python nodes desugar to the built-in tool names.
func (r *Runtime) execTool(ctx context.Context, node *compiledNode, state State) (State, error) {
	if r.opts.invoker == nil {
		return state, &NodeExecutionError{Node: node.id, Op: "invoke", Err: errors.New("no tool invoker configured")}
	}

	name := node.spec.Tool
	args, err := template.NewExpander().RenderMap(node.spec.Args, state)
	if err != nil {
		return state, &NodeExecutionError{Node: node.id, Op: "render args", Err: err}
	}
	if args == nil {
		args = map[string]any{}
	}

	switch {
	case node.spec.Type == spec.TypePython:
		name = tool.BuiltinPython
		args["code"] = node.spec.Code
	case node.spec.Command != "":
		name = tool.BuiltinShell
		args["command"] = template.Render(node.spec.Command, state)
	}

	result, err := r.opts.invoker.Invoke(ctx, provider.ToolRequest{
		Name: name,
		Args: args,
		Node: node.id,
	})
	if err != nil {
		return state, &NodeExecutionError{Node: node.id, Op: "invoke " + name, Err: err}
	}

	state[outputKey(node.spec)] = result.Output
	return state, nil
}

// execSubgraph runs the nested graph inline: same thread, same
// counters, same checkpointer. Interrupts propagate out with the
// subgraph node prefixed onto their path.
func (r *Runtime) execSubgraph(ctx context.Context, rc *runCtx, node *compiledNode, state State) (State, *interruptOutcome, error) {
	sub := node.sub

	targets := sub.entry
	var subPath []string
	if len(rc.resumePath) > 0 {
		targets = []string{rc.resumePath[0]}
		subPath = rc.resumePath[1:]
		rc.resumePath = nil
	}

	crc := rc.child(node.id, subPath)
	newState, intr, err := sub.runFrom(ctx, crc, state, targets)
	if err != nil {
		return state, nil, &NodeExecutionError{Node: node.id, Op: "subgraph", Err: err}
	}
	if intr != nil {
		intr.node = node.id + "/" + intr.node
		intr.next = node.id + "/" + intr.next
	}
	return newState, intr, nil
}
