package strand

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandworks/strand/pkg/strand/provider"
)

// TestFanOut_ListTargets runs both branches and continues at the join.
func TestFanOut_ListTargets(t *testing.T) {
	inv := provider.NewRecordingInvoker().
		Return("facts_tool", "three facts").
		Return("quotes_tool", "two quotes").
		Return("merge_tool", "combined")

	rt := mustCompile(t, `
name: research
state:
  topic: string
tools:
  - name: facts_tool
  - name: quotes_tool
  - name: merge_tool
nodes:
  plan: {type: passthrough}
  facts:
    type: tool_call
    tool: facts_tool
    output: facts_out
  quotes:
    type: tool_call
    tool: quotes_tool
    output: quotes_out
  combine:
    type: tool_call
    tool: merge_tool
    output: combined_out
edges:
  - from: START
    to: plan
  - from: plan
    to: [facts, quotes]
  - from: facts
    to: combine
  - from: quotes
    to: combine
  - from: combine
    to: END
`, WithToolInvoker(inv))

	result, err := rt.Run(context.Background(), "t1", State{"topic": "tea"})
	require.NoError(t, err)

	// Both branch outputs survive the merge and the join node ran once.
	assert.Equal(t, "three facts", result.State["facts_out"])
	assert.Equal(t, "two quotes", result.State["quotes_out"])
	assert.Equal(t, "combined", result.State["combined_out"])
	assert.Equal(t, 3, inv.CallCount())
}

// TestFanOut_MessagesAppend accumulates assistant turns from every
// branch instead of overwriting.
func TestFanOut_MessagesAppend(t *testing.T) {
	gen := provider.NewScriptedGenerator("first note", "second note")

	rt := mustCompile(t, `
name: notes
state:
  messages: list
nodes:
  seed: {type: passthrough}
  left:
    type: llm
    prompt: "left"
    output: left_out
  right:
    type: llm
    prompt: "right"
    output: right_out
  gather: {type: passthrough}
edges:
  - from: START
    to: seed
  - from: seed
    to: [left, right]
  - from: left
    to: gather
  - from: right
    to: gather
  - from: gather
    to: END
`, WithGenerator(gen))

	result, err := rt.Run(context.Background(), "t1", nil)
	require.NoError(t, err)

	messages, ok := result.State.GetList("messages")
	require.True(t, ok)
	require.Len(t, messages, 2)

	var contents []string
	for _, m := range messages {
		contents = append(contents, m.(map[string]any)["content"].(string))
	}
	assert.ElementsMatch(t, []string{"first note", "second note"}, contents)
}

// TestFanOut_BranchesRunToEnd merges branches that never converge and
// finishes the run.
func TestFanOut_BranchesRunToEnd(t *testing.T) {
	inv := provider.NewRecordingInvoker().
		Return("a_tool", "A").
		Return("b_tool", "B")

	rt := mustCompile(t, `
name: diverge
tools:
  - name: a_tool
  - name: b_tool
nodes:
  fork: {type: passthrough}
  a:
    type: tool_call
    tool: a_tool
    output: a_out
  b:
    type: tool_call
    tool: b_tool
    output: b_out
edges:
  - from: START
    to: fork
  - from: fork
    to: [a, b]
  - from: a
    to: END
  - from: b
    to: END
`, WithToolInvoker(inv))

	result, err := rt.Run(context.Background(), "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, "A", result.State["a_out"])
	assert.Equal(t, "B", result.State["b_out"])
}

// TestFanOut_LoopLimitInBranch caps a cycle inside a parallel branch at
// its loop limit and finishes the run cleanly.
func TestFanOut_LoopLimitInBranch(t *testing.T) {
	inv := provider.NewRecordingInvoker().Return("tick", "ok")

	rt := mustCompile(t, `
name: forked
tools:
  - name: tick
nodes:
  a: {type: passthrough}
  b: {type: passthrough}
  spin:
    type: tool_call
    tool: tick
    output: ticked
edges:
  - from: START
    to: [a, b]
  - from: a
    to: spin
  - from: spin
    to: spin
  - from: b
    to: END
loop_limits:
  spin: 3
`, WithToolInvoker(inv))

	result, err := rt.Run(context.Background(), "t1", nil)
	require.NoError(t, err)

	// Exactly limit executions, then the cyclic edge is skipped and the
	// marker survives the branch merge.
	assert.Equal(t, 3, inv.CallCount())
	assert.Equal(t, true, result.State["_loop_limit_reached"])
}

// TestFanOut_BranchFailureFailsRun propagates the first branch error.
func TestFanOut_BranchFailureFailsRun(t *testing.T) {
	inv := provider.NewRecordingInvoker().
		Return("ok_tool", "fine").
		Handle("bad_tool", func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("branch failed")
		})

	rt := mustCompile(t, `
name: fragile
tools:
  - name: ok_tool
  - name: bad_tool
nodes:
  fork: {type: passthrough}
  good:
    type: tool_call
    tool: ok_tool
  bad:
    type: tool_call
    tool: bad_tool
edges:
  - from: START
    to: fork
  - from: fork
    to: [good, bad]
  - from: good
    to: END
  - from: bad
    to: END
`, WithToolInvoker(inv))

	_, err := rt.Run(context.Background(), "t1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "branch failed")
}

// TestFanOut_InterruptInBranchRejected refuses to suspend inside a
// parallel branch.
func TestFanOut_InterruptInBranchRejected(t *testing.T) {
	rt := mustCompile(t, `
name: badpause
nodes:
  fork: {type: passthrough}
  ask:
    type: interrupt
    message: "?"
    resume_key: answer
  other: {type: passthrough}
edges:
  - from: START
    to: fork
  - from: fork
    to: [ask, other]
  - from: ask
    to: END
  - from: other
    to: END
`)

	_, err := rt.Run(context.Background(), "t1", nil)
	require.Error(t, err)
	var nerr *NodeExecutionError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "ask", nerr.Node)
}

// TestMergeBranches covers the reducer rules directly.
func TestMergeBranches(t *testing.T) {
	base := State{
		"messages": []any{"m0"},
		"title":    "orig",
		"fixed":    "same",
	}

	left := State{
		"messages": []any{"m0", "from-left"},
		"title":    "left-title",
		"fixed":    "same",
	}
	right := State{
		"messages": []any{"m0", "from-right"},
		"fixed":    "same",
		"extra":    "right-only",
	}

	merged := mergeBranches(base, []State{left, right}, []string{"messages"})

	// Append keys accumulate every branch's delta in branch order.
	assert.Equal(t, []any{"m0", "from-left", "from-right"}, merged["messages"])

	// Changed scalars are last-write-wins; untouched ones keep base.
	assert.Equal(t, "left-title", merged["title"])
	assert.Equal(t, "same", merged["fixed"])
	assert.Equal(t, "right-only", merged["extra"])
}

// TestMergeBranches_LaterBranchWins applies branches in declaration
// order when both change one key.
func TestMergeBranches_LaterBranchWins(t *testing.T) {
	base := State{"winner": "none"}
	merged := mergeBranches(base,
		[]State{{"winner": "first"}, {"winner": "second"}},
		nil)
	assert.Equal(t, "second", merged["winner"])
}

// TestMergeBranches_AppendKeyFromEmpty appends onto a missing base list.
func TestMergeBranches_AppendKeyFromEmpty(t *testing.T) {
	merged := mergeBranches(State{},
		[]State{{"log": []any{"a"}}, {"log": []any{"b"}}},
		[]string{"log"})
	assert.Equal(t, []any{"a", "b"}, merged["log"])
}

// TestState_Clone is a deep copy: mutating the clone leaves the
// original alone.
func TestState_Clone(t *testing.T) {
	orig := State{
		"nested": map[string]any{"k": "v"},
		"list":   []any{1, 2},
	}
	clone, err := orig.Clone()
	require.NoError(t, err)

	clone["nested"].(map[string]any)["k"] = "changed"
	clone.Append("list", 3)

	assert.Equal(t, "v", orig["nested"].(map[string]any)["k"])
	list, _ := orig.GetList("list")
	assert.Len(t, list, 2)
}

// TestState_Accessors covers the typed helpers.
func TestState_Accessors(t *testing.T) {
	s := State{"name": "x", "n": 1}

	assert.Equal(t, "x", s.GetString("name"))
	assert.Equal(t, "", s.GetString("n"))
	assert.Equal(t, "", s.GetString("absent"))

	_, ok := s.GetList("name")
	assert.False(t, ok)

	s.Append("log", "first")
	s.Append("log", "second")
	log, ok := s.GetList("log")
	require.True(t, ok)
	assert.Equal(t, []any{"first", "second"}, log)
}
