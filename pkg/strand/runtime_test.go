package strand

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandworks/strand/pkg/strand/event"
	"github.com/strandworks/strand/pkg/strand/provider"
)

// TestRun_LinearLLM drives a single llm node to completion.
func TestRun_LinearLLM(t *testing.T) {
	gen := provider.NewScriptedGenerator("refund")
	rt := mustCompile(t, `
name: triage
state:
  request: string
  verdict: string
  messages: list
nodes:
  classify:
    type: llm
    prompt: "Classify: {request}"
    output: verdict
edges:
  - from: START
    to: classify
  - from: classify
    to: END
`, WithGenerator(gen))

	result, err := rt.Run(context.Background(), "t1", State{"request": "refund my order"})
	require.NoError(t, err)
	require.Nil(t, result.Interrupt)

	assert.Equal(t, "refund", result.State["verdict"])
	assert.Equal(t, "Classify: refund my order", gen.LastCall().Prompt)
	assert.Equal(t, "classify", gen.LastCall().Node)

	// Assistant turn lands in the declared message history.
	messages, ok := result.State.GetList("messages")
	require.True(t, ok)
	require.Len(t, messages, 1)
	turn := messages[0].(map[string]any)
	assert.Equal(t, "assistant", turn["role"])
	assert.Equal(t, "refund", turn["content"])
}

// TestRun_PromptResolver treats the prompt field as a name when a
// resolver is configured.
func TestRun_PromptResolver(t *testing.T) {
	gen := provider.NewScriptedGenerator("ok")
	prompts := provider.StaticPrompts{"classify_request": "Decide on {request}"}
	rt := mustCompile(t, `
name: named
state:
  request: string
nodes:
  classify:
    type: llm
    prompt: classify_request
edges:
  - from: START
    to: classify
  - from: classify
    to: END
`, WithGenerator(gen), WithPromptResolver(prompts))

	_, err := rt.Run(context.Background(), "t1", State{"request": "refund"})
	require.NoError(t, err)
	assert.Equal(t, "Decide on refund", gen.LastCall().Prompt)
}

// TestRun_PromptResolver_Unknown fails the node when the name does not
// resolve.
func TestRun_PromptResolver_Unknown(t *testing.T) {
	rt := mustCompile(t, `
name: named
nodes:
  classify:
    type: llm
    prompt: nonexistent_prompt
edges:
  - from: START
    to: classify
  - from: classify
    to: END
`, WithGenerator(provider.NewScriptedGenerator("x")), WithPromptResolver(provider.StaticPrompts{}))

	_, err := rt.Run(context.Background(), "t1", nil)
	require.Error(t, err)
	var nerr *NodeExecutionError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "classify", nerr.Node)
}

// TestRun_ConditionalEdges picks the first declared matching edge.
func TestRun_ConditionalEdges(t *testing.T) {
	makeRuntime := func(inv *provider.RecordingInvoker) *Runtime {
		return mustCompile(t, `
name: branching
state:
  score: integer
tools:
  - name: mark
nodes:
  gate: {type: passthrough}
  high:
    type: tool_call
    tool: mark
    output: path
    args: {label: high}
  low:
    type: tool_call
    tool: mark
    output: path
    args: {label: low}
  other:
    type: tool_call
    tool: mark
    output: path
    args: {label: other}
edges:
  - from: START
    to: gate
  - from: gate
    to: high
    condition: "score > 7"
  - from: gate
    to: low
    condition: "score > 3"
  - from: gate
    to: other
  - from: high
    to: END
  - from: low
    to: END
  - from: other
    to: END
`, WithToolInvoker(inv))
	}

	echoLabel := func() *provider.RecordingInvoker {
		return provider.NewRecordingInvoker().Handle("mark",
			func(_ context.Context, args map[string]any) (any, error) {
				return args["label"], nil
			})
	}

	testCases := []struct {
		name  string
		score int
		want  string
	}{
		{"both match, first wins", 9, "high"},
		{"second matches", 5, "low"},
		{"unconditional fallthrough", 1, "other"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			inv := echoLabel()
			result, err := makeRuntime(inv).Run(context.Background(), "t1", State{"score": tc.score})
			require.NoError(t, err)
			assert.Equal(t, tc.want, result.State["path"])
			assert.Equal(t, 1, inv.CallCount())
		})
	}
}

// TestRun_NoEdgeMatches fails with a routing error when every condition
// is false and no unconditional edge exists.
func TestRun_NoEdgeMatches(t *testing.T) {
	rt := mustCompile(t, `
name: stuck
state:
  score: integer
nodes:
  gate: {type: passthrough}
  high: {type: passthrough}
edges:
  - from: START
    to: gate
  - from: gate
    to: high
    condition: "score > 7"
  - from: high
    to: END
`)

	_, err := rt.Run(context.Background(), "t1", State{"score": 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRouteNotMatched)
	var rerr *RoutingError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "gate", rerr.Node)
}

// TestRun_RouterRoutes dispatches on the router's output value.
func TestRun_RouterRoutes(t *testing.T) {
	yaml := `
name: routed
state:
  verdict: string
tools:
  - name: mark
nodes:
  decide:
    type: router
    output: verdict
    routes:
      approve: publish
      reject: rework
    default_route: triage
  publish:
    type: tool_call
    tool: mark
    output: path
    args: {label: publish}
  rework:
    type: tool_call
    tool: mark
    output: path
    args: {label: rework}
  triage:
    type: tool_call
    tool: mark
    output: path
    args: {label: triage}
edges:
  - from: START
    to: decide
  - from: publish
    to: END
  - from: rework
    to: END
  - from: triage
    to: END
`

	testCases := []struct {
		verdict string
		want    string
	}{
		{"approve", "publish"},
		{"reject", "rework"},
		{"whatever", "triage"}, // default_route absorbs unmatched values
	}

	for _, tc := range testCases {
		t.Run(tc.verdict, func(t *testing.T) {
			inv := provider.NewRecordingInvoker().Handle("mark",
				func(_ context.Context, args map[string]any) (any, error) {
					return args["label"], nil
				})
			rt := mustCompile(t, yaml, WithToolInvoker(inv))
			result, err := rt.Run(context.Background(), "t1", State{"verdict": tc.verdict})
			require.NoError(t, err)
			assert.Equal(t, tc.want, result.State["path"])
		})
	}
}

// TestRun_RouterNoDefault fails the run on an unmatched value.
func TestRun_RouterNoDefault(t *testing.T) {
	rt := mustCompile(t, `
name: routed
state:
  verdict: string
nodes:
  decide:
    type: router
    output: verdict
    routes:
      approve: publish
  publish: {type: passthrough}
edges:
  - from: START
    to: decide
  - from: publish
    to: END
`)

	_, err := rt.Run(context.Background(), "t1", State{"verdict": "maybe"})
	require.Error(t, err)
	var rerr *RoutingError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "decide", rerr.Node)
	assert.Equal(t, "maybe", rerr.Value)
	assert.ErrorIs(t, err, ErrRouteNotMatched)
}

// TestRun_RouterFallbackOnNoMatch redirects an unmatched value to the
// router's fallback target instead of failing the run.
func TestRun_RouterFallbackOnNoMatch(t *testing.T) {
	inv := provider.NewRecordingInvoker().Return("mark", "rescued")
	rt := mustCompile(t, `
name: routed
state:
  verdict: string
tools:
  - name: mark
nodes:
  decide:
    type: router
    output: verdict
    routes:
      approve: publish
      reject: rework
    on_error: fallback
    fallback_to: rescue
  publish: {type: passthrough}
  rework: {type: passthrough}
  rescue:
    type: tool_call
    tool: mark
    output: handled
edges:
  - from: START
    to: decide
  - from: publish
    to: END
  - from: rework
    to: END
  - from: rescue
    to: END
`, WithToolInvoker(inv))

	result, err := rt.Run(context.Background(), "t1", State{"verdict": "maybe"})
	require.NoError(t, err)
	assert.Equal(t, "rescued", result.State["handled"])
	assert.Equal(t, 1, inv.CallCount())
}

// TestRun_ConditionalFallbackOnNoMatch applies the same policy to a node
// whose conditional edges all miss.
func TestRun_ConditionalFallbackOnNoMatch(t *testing.T) {
	rt := mustCompile(t, `
name: gated
state:
  score: integer
nodes:
  gate:
    type: passthrough
    on_error: fallback
    fallback_to: rescue
  high: {type: passthrough}
  rescue: {type: passthrough}
edges:
  - from: START
    to: gate
  - from: gate
    to: high
    condition: score > 5
  - from: high
    to: END
  - from: rescue
    to: END
`)

	result, err := rt.Run(context.Background(), "t1", State{"score": 1})
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.State["score"])
}

// TestRun_LoopLimit executes a self-cycling node exactly limit times,
// then skips the cyclic edge and finishes with the marker set.
func TestRun_LoopLimit(t *testing.T) {
	inv := provider.NewRecordingInvoker().Return("tick", "ok")
	rt := mustCompile(t, `
name: looper
tools:
  - name: tick
nodes:
  work:
    type: tool_call
    tool: tick
edges:
  - from: START
    to: work
  - from: work
    to: work
loop_limits:
  work: 3
`, WithToolInvoker(inv))

	result, err := rt.Run(context.Background(), "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, inv.CallCount())
	assert.Equal(t, true, result.State["_loop_limit_reached"])
}

// TestRun_LoopLimit_FallsThroughToLaterEdge continues on the next edge
// once the cyclic target is exhausted.
func TestRun_LoopLimit_FallsThroughToLaterEdge(t *testing.T) {
	inv := provider.NewRecordingInvoker().Return("tick", "ok").Return("wrap", "done")
	rt := mustCompile(t, `
name: looper
tools:
  - name: tick
  - name: wrap
nodes:
  work:
    type: tool_call
    tool: tick
  finish:
    type: tool_call
    tool: wrap
    output: finished
edges:
  - from: START
    to: work
  - from: work
    to: work
  - from: work
    to: finish
  - from: finish
    to: END
loop_limits:
  work: 2
`, WithToolInvoker(inv))

	result, err := rt.Run(context.Background(), "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, "done", result.State["finished"])
	assert.Equal(t, true, result.State["_loop_limit_reached"])

	// work twice, finish once.
	assert.Equal(t, 3, inv.CallCount())
}

// TestRun_RecursionLimit aborts a runaway cycle with a fatal error.
func TestRun_RecursionLimit(t *testing.T) {
	rt := mustCompile(t, `
name: runaway
config:
  recursion_limit: 5
nodes:
  ping: {type: passthrough}
  pong: {type: passthrough}
edges:
  - from: START
    to: ping
  - from: ping
    to: pong
  - from: pong
    to: ping
`)

	_, err := rt.Run(context.Background(), "t1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecursionExceeded)
	var rerr *RecursionExceededError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 5, rerr.Limit)
}

// TestRun_RecursionLimitOverride prefers the compile option over the
// graph's configured ceiling.
func TestRun_RecursionLimitOverride(t *testing.T) {
	rt := mustCompile(t, `
name: runaway
config:
  recursion_limit: 40
nodes:
  ping: {type: passthrough}
edges:
  - from: START
    to: ping
  - from: ping
    to: ping
`, WithRecursionLimit(3))

	_, err := rt.Run(context.Background(), "t1", nil)
	var rerr *RecursionExceededError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 3, rerr.Limit)
}

// TestRun_OnErrorSkip continues past a failing node with state intact.
func TestRun_OnErrorSkip(t *testing.T) {
	inv := provider.NewRecordingInvoker().
		Handle("flaky", func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("transient failure")
		}).
		Return("stamp", "sealed")

	rt := mustCompile(t, `
name: tolerant
tools:
  - name: flaky
  - name: stamp
nodes:
  risky:
    type: tool_call
    tool: flaky
    output: risky_out
    on_error: skip
  finish:
    type: tool_call
    tool: stamp
    output: stamped
edges:
  - from: START
    to: risky
  - from: risky
    to: finish
  - from: finish
    to: END
`, WithToolInvoker(inv))

	result, err := rt.Run(context.Background(), "t1", nil)
	require.NoError(t, err)
	assert.NotContains(t, result.State, "risky_out")
	assert.Equal(t, "sealed", result.State["stamped"])
}

// TestRun_OnErrorSkipDiscardsPartialState drops mutations a failing node
// made before its error when the policy is skip.
func TestRun_OnErrorSkipDiscardsPartialState(t *testing.T) {
	gen := &toolThenFailGenerator{tool: "fetch"}
	inv := provider.NewRecordingInvoker().Return("fetch", "data")

	rt := mustCompile(t, `
name: tolerant
state:
  question: string
  messages: list
tools:
  - name: fetch
nodes:
  research:
    type: agent
    prompt: "Answer {question}"
    tools: [fetch]
    max_iterations: 3
    on_error: skip
  finish: {type: passthrough}
edges:
  - from: START
    to: research
  - from: research
    to: finish
  - from: finish
    to: END
`, WithGenerator(gen), WithToolInvoker(inv))

	result, err := rt.Run(context.Background(), "t1", State{"question": "why"})
	require.NoError(t, err)

	// The agent appended a tool turn before the second Generate failed;
	// the skipped node leaves no trace of it.
	messages, ok := result.State.GetList("messages")
	require.True(t, ok)
	assert.Empty(t, messages)
	assert.Equal(t, 1, inv.CallCount())
}

// TestRun_OnErrorFallback reroutes to the fallback target on failure.
func TestRun_OnErrorFallback(t *testing.T) {
	inv := provider.NewRecordingInvoker().
		Handle("flaky", func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("boom")
		}).
		Return("recover", "recovered")

	rt := mustCompile(t, `
name: fallback
tools:
  - name: flaky
  - name: recover
nodes:
  risky:
    type: tool_call
    tool: flaky
    on_error: fallback
    fallback_to: rescue
  normal: {type: passthrough}
  rescue:
    type: tool_call
    tool: recover
    output: rescued
edges:
  - from: START
    to: risky
  - from: risky
    to: normal
  - from: normal
    to: END
  - from: rescue
    to: END
`, WithToolInvoker(inv))

	result, err := rt.Run(context.Background(), "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.State["rescued"])
}

// TestRun_ThreadBusy rejects a second invocation for a running thread.
func TestRun_ThreadBusy(t *testing.T) {
	gen := newGateGenerator()
	rt := mustCompile(t, `
name: busy
nodes:
  slow:
    type: llm
    prompt: "think"
edges:
  - from: START
    to: slow
  - from: slow
    to: END
`, WithGenerator(gen))

	done := make(chan error, 1)
	go func() {
		_, err := rt.Run(context.Background(), "shared", nil)
		done <- err
	}()

	<-gen.entered
	_, err := rt.Run(context.Background(), "shared", nil)
	assert.ErrorIs(t, err, ErrThreadBusy)

	close(gen.release)
	require.NoError(t, <-done)

	// The thread is free again after completion.
	_, err = rt.Run(context.Background(), "shared", nil)
	require.NoError(t, err)
}

// TestRun_Cancelled stops before executing the next node.
func TestRun_Cancelled(t *testing.T) {
	rt := mustCompile(t, `
name: cancellable
nodes:
  a: {type: passthrough}
edges:
  - from: START
    to: a
  - from: a
    to: END
`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rt.Run(ctx, "t1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var cerr *CancellationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "a", cerr.Node)
}

// TestRun_PythonAndShellNodes desugar to the built-in tool names.
func TestRun_PythonAndShellNodes(t *testing.T) {
	inv := provider.NewRecordingInvoker().
		Handle("python", func(_ context.Context, args map[string]any) (any, error) {
			return "ran: " + args["code"].(string), nil
		}).
		Handle("shell", func(_ context.Context, args map[string]any) (any, error) {
			return "exec: " + args["command"].(string), nil
		})

	rt := mustCompile(t, `
name: builtins
state:
  topic: string
nodes:
  calc:
    type: python
    code: "print(2 + 2)"
    output: calc_out
  list_dir:
    type: tool
    tool: shell
    command: "grep {topic} notes.txt"
    output: shell_out
edges:
  - from: START
    to: calc
  - from: calc
    to: list_dir
  - from: list_dir
    to: END
`, WithToolInvoker(inv))

	result, err := rt.Run(context.Background(), "t1", State{"topic": "tea"})
	require.NoError(t, err)
	assert.Equal(t, "ran: print(2 + 2)", result.State["calc_out"])
	assert.Equal(t, "exec: grep tea notes.txt", result.State["shell_out"])

	assert.Equal(t, "python", inv.Calls[0].Name)
	assert.Equal(t, "shell", inv.Calls[1].Name)
}

// TestRun_AgentLoop feeds tool results back until the model answers.
func TestRun_AgentLoop(t *testing.T) {
	gen := provider.NewScriptedGenerator().WithResponses(
		provider.GenerateResponse{ToolCalls: []provider.ToolCall{
			{Name: "search", Args: map[string]any{"q": "population of Oslo"}},
		}},
		provider.GenerateResponse{Content: "about 700k"},
	)
	inv := provider.NewRecordingInvoker().Return("search", "historical figures...")

	rt := mustCompile(t, `
name: agentic
state:
  question: string
  messages: list
tools:
  - name: search
    description: look facts up
    parameters:
      type: object
nodes:
  answer:
    type: agent
    prompt: "Answer {question}"
    tools: [search]
    max_iterations: 4
    output: answer_out
edges:
  - from: START
    to: answer
  - from: answer
    to: END
`, WithGenerator(gen), WithToolInvoker(inv))

	result, err := rt.Run(context.Background(), "t1", State{"question": "how big is Oslo?"})
	require.NoError(t, err)

	assert.Equal(t, "about 700k", result.State["answer_out"])
	assert.Equal(t, 2, gen.CallCount())
	assert.Equal(t, 1, inv.CallCount())
	assert.Equal(t, "population of Oslo", inv.Calls[0].Args["q"])

	// Declared tools travel with the request.
	require.Len(t, gen.Calls[0].Tools, 1)
	assert.Equal(t, "search", gen.Calls[0].Tools[0].Name)

	// Tool turn then assistant turn in the message history.
	messages, ok := result.State.GetList("messages")
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "tool", messages[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", messages[1].(map[string]any)["role"])
}

// TestRun_AgentIterationCeiling stops calling the model at max_iterations
// even while it keeps requesting tools.
func TestRun_AgentIterationCeiling(t *testing.T) {
	gen := provider.NewScriptedGenerator().WithResponses(
		provider.GenerateResponse{ToolCalls: []provider.ToolCall{{Name: "search", Args: map[string]any{}}}},
	)
	inv := provider.NewRecordingInvoker().Return("search", "more data")

	rt := mustCompile(t, `
name: agentic
tools:
  - name: search
nodes:
  answer:
    type: agent
    prompt: "dig"
    tools: [search]
    max_iterations: 3
edges:
  - from: START
    to: answer
  - from: answer
    to: END
`, WithGenerator(gen), WithToolInvoker(inv))

	_, err := rt.Run(context.Background(), "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, gen.CallCount())
	assert.Equal(t, 3, inv.CallCount())
}

// TestCompile_RejectsInvalidGraph surfaces lint errors in the compile
// error.
func TestCompile_RejectsInvalidGraph(t *testing.T) {
	_, err := Compile(mustLoad(t, `
name: broken
nodes:
  a: {type: passthrough}
edges:
  - from: START
    to: a
  - from: a
    to: ghost
`))
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "broken", cerr.Graph)
	require.Len(t, cerr.Issues, 1)
	assert.Contains(t, cerr.Issues[0], "E006")
}

// TestCompile_NoEntry rejects graphs without a START edge.
func TestCompile_NoEntry(t *testing.T) {
	_, err := Compile(mustLoad(t, `
name: entryless
nodes:
  a: {type: passthrough}
`))
	assert.ErrorIs(t, err, ErrNoEntry)
}

// TestRun_PublishesEvents verifies the lifecycle event stream of a run.
func TestRun_PublishesEvents(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()

	rt := mustCompile(t, `
name: observed
nodes:
  a: {type: passthrough}
edges:
  - from: START
    to: a
  - from: a
    to: END
`, WithEvents(bus))

	_, err := rt.Run(context.Background(), "t1", nil)
	require.NoError(t, err)

	var types []event.Type
	deadline := time.After(time.Second)
	for len(types) < 4 {
		select {
		case evt := <-sub.Events():
			types = append(types, evt.Type)
			assert.Equal(t, "t1", evt.ThreadID)
			assert.Equal(t, "observed", evt.Graph)
		case <-deadline:
			t.Fatalf("only received %v", types)
		}
	}

	assert.Equal(t, []event.Type{
		event.RunStarted,
		event.NodeStarted,
		event.NodeCompleted,
		event.RunCompleted,
	}, types)
}

// TestRun_FailureEvent carries the failing node and error message.
func TestRun_FailureEvent(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()
	sub := bus.Subscribe(event.RunFailed)

	inv := provider.NewRecordingInvoker().
		Handle("bad", func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("kaput")
		})

	rt := mustCompile(t, `
name: failing
tools:
  - name: bad
nodes:
  doomed:
    type: tool_call
    tool: bad
edges:
  - from: START
    to: doomed
  - from: doomed
    to: END
`, WithToolInvoker(inv), WithEvents(bus))

	_, err := rt.Run(context.Background(), "t1", nil)
	require.Error(t, err)

	select {
	case evt := <-sub.Events():
		assert.Equal(t, "doomed", evt.Node)
		assert.Contains(t, evt.Error, "kaput")
	case <-time.After(time.Second):
		t.Fatal("no run.failed event")
	}
}
