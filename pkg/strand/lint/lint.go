// Package lint statically analyzes workflow graphs before execution.
//
// Lint is pure: it never executes nodes, never logs, and always produces
// the same ordered issue list for the same graph. Issues are sorted by
// source node then code. Any error-severity issue makes the report
// invalid; callers (the CLI among them) refuse to run invalid graphs.
// Warnings are advisory only.
package lint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/strandworks/strand/pkg/strand/expr"
	"github.com/strandworks/strand/pkg/strand/spec"
	"github.com/strandworks/strand/pkg/strand/tool"
)

// Option configures a lint run.
type Option func(*linter)

// WithTools supplies the tool registry references are resolved against.
// Defaults to a registry holding only the built-ins.
func WithTools(reg *tool.Registry) Option {
	return func(l *linter) { l.tools = reg }
}

// WithPrompts supplies the prompt names known to the prompt resolver.
// When set, prompt references are validated against it and unused names
// are flagged; when absent, prompt existence is left to runtime.
func WithPrompts(names []string) Option {
	return func(l *linter) {
		l.prompts = make(map[string]bool, len(names))
		for _, name := range names {
			if _, seen := l.prompts[name]; seen {
				continue
			}
			l.prompts[name] = false
			l.promptNames = append(l.promptNames, name)
		}
	}
}

// Lint analyzes a graph and returns the ordered issue report.
func Lint(g *spec.GraphSpec, opts ...Option) *Report {
	l := &linter{tools: tool.NewRegistry()}
	for _, opt := range opts {
		opt(l)
	}
	for _, def := range g.Tools {
		l.tools.Register(tool.Definition{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}

	l.lintGraph(g, "")
	l.reportUnused(g)
	sortIssues(l.issues)
	return &Report{Issues: l.issues}
}

// File loads a graph description and lints it. Load failures surface as
// the returned error; lint findings land in the report.
func File(path string, opts ...Option) (*Report, error) {
	g, err := spec.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Lint(g, opts...), nil
}

type linter struct {
	tools       *tool.Registry
	prompts     map[string]bool // name -> referenced; nil when unknown
	promptNames []string        // declaration order, for stable reporting
	issues      []Issue

	usedTools map[string]bool
}

func (l *linter) add(code string, severity Severity, node, message, fix string) {
	l.issues = append(l.issues, Issue{
		Code:     code,
		Severity: severity,
		Message:  message,
		Fix:      fix,
		Node:     node,
	})
}

// lintGraph runs both passes over one graph. prefix qualifies node names
// for subgraphs ("parent.child").
func (l *linter) lintGraph(g *spec.GraphSpec, prefix string) {
	l.structuralPass(g, prefix)
	l.patternPass(g, prefix)
}

// structuralPass validates edge endpoints, reachability, dead ends, and
// cycle coverage.
func (l *linter) structuralPass(g *spec.GraphSpec, prefix string) {
	for _, edge := range g.Edges {
		l.checkEndpoints(g, edge, prefix)
		if edge.Conditional() && edge.Condition != "" {
			if _, err := expr.Parse(edge.Condition); err != nil {
				l.add(CodeConditionInvalid, SeverityError, prefix+edge.From,
					fmt.Sprintf("condition %q does not parse: %v", edge.Condition, err),
					"use the restricted condition grammar: comparisons, and/or/not, dotted field access, literals")
			}
		}
	}

	adj := buildAdjacency(g)

	fromStart := adj.reachableFrom(adj.start, adj.forward)
	for i, name := range adj.names {
		if !fromStart[i] {
			l.add(CodeUnreachableNode, SeverityWarning, prefix+name,
				fmt.Sprintf("node %q is not reachable from START", name),
				fmt.Sprintf("add an edge path from START to %q or remove the node", name))
		}
	}

	toEnd := adj.reachableFrom(adj.end, adj.reverse)
	for i, name := range adj.names {
		if fromStart[i] && !toEnd[i] {
			l.add(CodeNoPathToEnd, SeverityWarning, prefix+name,
				fmt.Sprintf("node %q has no path to END", name),
				fmt.Sprintf("add an edge path from %q to END", name))
		}
	}

	for _, idx := range adj.cycleNodes() {
		if idx >= len(adj.names) {
			continue // START/END cannot cycle
		}
		name := adj.names[idx]
		if _, ok := g.LoopLimits[name]; !ok {
			l.add(CodeLoopLimitMissing, SeverityWarning, prefix+name,
				fmt.Sprintf("node %q lies on a cycle but has no loop_limits entry", name),
				fmt.Sprintf("add `loop_limits: {%s: <n>}` to bound the cycle", name))
		}
	}
}

// checkEndpoints validates a single edge's from/to against declared nodes.
func (l *linter) checkEndpoints(g *spec.GraphSpec, edge spec.EdgeSpec, prefix string) {
	switch {
	case edge.From == spec.Start:
	case edge.From == spec.End:
		l.add(CodeEdgeSourceUnknown, SeverityError, prefix+edge.From,
			"END cannot be an edge source",
			"remove the edge or change its source")
	case !g.HasNode(edge.From):
		l.add(CodeEdgeSourceUnknown, SeverityError, prefix+edge.From,
			fmt.Sprintf("edge source %q is not a declared node", edge.From),
			fmt.Sprintf("declare node %q or fix the edge source", edge.From))
	}

	for _, target := range edge.To.Names {
		switch {
		case target == spec.End:
		case target == spec.Start:
			l.add(CodeEdgeTargetUnknown, SeverityError, prefix+edge.From,
				"START cannot be an edge target",
				"remove the edge or change its target")
		case !g.HasNode(target):
			l.add(CodeEdgeTargetUnknown, SeverityError, prefix+edge.From,
				fmt.Sprintf("edge target %q is not a declared node", target),
				fmt.Sprintf("declare node %q or fix the edge target", target))
		}
	}
}

// patternPass applies per-node-type predicate checks.
func (l *linter) patternPass(g *spec.GraphSpec, prefix string) {
	for _, name := range sortedNodeNames(g) {
		node := g.Nodes[name]
		qualified := prefix + name

		switch node.Type {
		case spec.TypeRouter:
			l.checkRouter(g, qualified, node)
		case spec.TypeMap:
			l.checkMap(g, qualified, node)
		case spec.TypeInterrupt:
			l.checkInterrupt(g, qualified, node)
		case spec.TypeLLM:
			l.markPrompt(qualified, node.Prompt)
			for _, t := range node.Tools {
				l.checkToolRef(qualified, t)
			}
		case spec.TypeAgent:
			l.markPrompt(qualified, node.Prompt)
			for _, t := range node.Tools {
				l.checkToolRef(qualified, t)
			}
		case spec.TypeToolCall:
			l.checkToolRef(qualified, node.Tool)
		case spec.TypeTool:
			// An inline command desugars to the shell built-in.
			if node.Command == "" {
				l.checkToolRef(qualified, node.Tool)
			}
		case spec.TypePython:
			if node.Code == "" {
				l.add(CodeToolUnknown, SeverityError, qualified,
					"python node has no code",
					"add a code block with the snippet to run")
			}
		case spec.TypeSubgraph:
			l.checkSubgraph(qualified, node)
		}

		if node.OnError == "fallback" {
			if node.FallbackTo == "" {
				l.add(CodeEdgeTargetUnknown, SeverityError, qualified,
					"on_error: fallback requires a fallback_to target",
					"set fallback_to to a declared node")
			} else if node.FallbackTo != spec.End && !g.HasNode(node.FallbackTo) {
				l.add(CodeEdgeTargetUnknown, SeverityError, qualified,
					fmt.Sprintf("fallback target %q is not a declared node", node.FallbackTo),
					fmt.Sprintf("declare node %q or fix fallback_to", node.FallbackTo))
			}
		}
	}
}

func (l *linter) checkRouter(g *spec.GraphSpec, qualified string, node *spec.NodeSpec) {
	for _, key := range sortedKeys(node.Routes) {
		target := node.Routes[key]
		if target != spec.End && !g.HasNode(target) {
			l.add(CodeRouteTargetUnknown, SeverityError, qualified,
				fmt.Sprintf("route %q points to undeclared node %q", key, target),
				fmt.Sprintf("declare node %q or fix the route", target))
		}
	}
	if node.DefaultRoute == "" {
		l.add(CodeRouterNoDefault, SeverityWarning, qualified,
			"router has no default_route; an unmatched output value fails the run",
			"add a default_route to absorb unexpected values")
	} else if node.DefaultRoute != spec.End && !g.HasNode(node.DefaultRoute) {
		l.add(CodeRouteTargetUnknown, SeverityError, qualified,
			fmt.Sprintf("default_route %q is not a declared node", node.DefaultRoute),
			fmt.Sprintf("declare node %q or fix default_route", node.DefaultRoute))
	}
}

func (l *linter) checkMap(g *spec.GraphSpec, qualified string, node *spec.NodeSpec) {
	required := []struct {
		field string
		ok    bool
	}{
		{"over", node.Over != ""},
		{"as", node.As != ""},
		{"node", node.Node != nil},
		{"collect", node.Collect != ""},
	}
	for _, req := range required {
		if !req.ok {
			l.add(CodeMapFieldMissing, SeverityError, qualified,
				fmt.Sprintf("map node is missing required field %q", req.field),
				fmt.Sprintf("add %q to the map node", req.field))
		}
	}
	if node.Prompt != "" {
		l.add(CodeMapPromptForbidden, SeverityError, qualified,
			"map node must not declare a top-level prompt",
			"move the prompt onto the nested node")
	}

	// The nested node gets the same pattern checks under a qualified name.
	if node.Node != nil {
		sub := qualified + ".node"
		switch node.Node.Type {
		case spec.TypeToolCall:
			l.checkToolRef(sub, node.Node.Tool)
		case spec.TypeTool:
			if node.Node.Command == "" {
				l.checkToolRef(sub, node.Node.Tool)
			}
		case spec.TypePython:
			if node.Node.Code == "" {
				l.add(CodeToolUnknown, SeverityError, sub,
					"python node has no code",
					"add a code block with the snippet to run")
			}
		case spec.TypeLLM:
			l.markPrompt(sub, node.Node.Prompt)
		case spec.TypeInterrupt:
			// Suspension inside a fan-out item is not resumable.
			l.add(CodeInterruptFieldMissing, SeverityError, sub,
				"interrupt nodes cannot run inside a map fan-out",
				"move the interrupt before or after the map node")
		}
	}
}

func (l *linter) checkInterrupt(g *spec.GraphSpec, qualified string, node *spec.NodeSpec) {
	if node.ResumeKey == "" {
		l.add(CodeInterruptFieldMissing, SeverityError, qualified,
			"interrupt node is missing required field \"resume_key\"",
			"add resume_key naming the state field the resume value binds to")
	}
	if node.Prompt == "" && node.Message == "" {
		l.add(CodeInterruptFieldMissing, SeverityError, qualified,
			"interrupt node needs a prompt or a message",
			"add prompt (rendered) or message (static) to show the caller")
	}
	l.markPrompt(qualified, node.Prompt)

	if node.StateKey != "" {
		if _, declared := g.State[node.StateKey]; !declared {
			l.add(CodeStateKeyUndeclared, SeverityWarning, qualified,
				fmt.Sprintf("state_key %q is not declared in the state schema; it must be produced at runtime", node.StateKey),
				fmt.Sprintf("declare %q under state, or confirm an earlier node writes it", node.StateKey))
		}
	}
}

func (l *linter) checkSubgraph(qualified string, node *spec.NodeSpec) {
	if node.Graph == nil {
		l.add(CodeMapFieldMissing, SeverityError, qualified,
			"subgraph node is missing its nested graph",
			"add a graph block with nodes and edges")
		return
	}

	// Tools declared by the nested graph resolve inside it.
	for _, def := range node.Graph.Tools {
		l.tools.Register(tool.Definition{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}

	// A subgraph with interrupts must piggyback on the parent's
	// checkpointer; owning persistence would fork the thread's state.
	if node.Graph.Checkpointer != nil && hasInterrupts(node.Graph) {
		l.add(CodeSubgraphCheckpointer, SeverityError, qualified,
			"subgraph containing interrupt nodes must not declare its own checkpointer",
			"remove the subgraph's checkpointer block; the parent graph's checkpointer is used")
	}

	l.lintGraph(node.Graph, qualified+".")
}

func (l *linter) checkToolRef(qualified, name string) {
	if name == "" {
		l.add(CodeToolUnknown, SeverityError, qualified,
			"node does not name a tool",
			"set the tool field to a declared tool or a built-in (shell, python)")
		return
	}
	if !l.tools.Resolves(name) {
		l.add(CodeToolUnknown, SeverityError, qualified,
			fmt.Sprintf("tool %q is not declared and is not a built-in", name),
			fmt.Sprintf("declare %q under tools or use one of: %s", name, strings.Join(l.tools.Names(), ", ")))
		return
	}
	if l.usedTools == nil {
		l.usedTools = make(map[string]bool)
	}
	l.usedTools[name] = true
}

func (l *linter) markPrompt(qualified, name string) {
	if name == "" {
		return
	}
	if l.prompts == nil {
		return // prompt universe unknown; runtime resolves
	}
	if _, known := l.prompts[name]; !known {
		l.add(CodePromptUnknown, SeverityError, qualified,
			fmt.Sprintf("prompt %q is not known to the prompt resolver", name),
			fmt.Sprintf("register prompt %q or fix the reference", name))
		return
	}
	l.prompts[name] = true
}

// reportUnused flags declared-but-unreferenced tools and prompts.
func (l *linter) reportUnused(g *spec.GraphSpec) {
	for _, def := range g.Tools {
		if tool.IsBuiltin(def.Name) {
			continue
		}
		if !l.usedTools[def.Name] {
			l.add(CodeToolUnused, SeverityWarning, "",
				fmt.Sprintf("tool %q is declared but never referenced", def.Name),
				fmt.Sprintf("remove the %q declaration or reference it from a node", def.Name))
		}
	}
	for _, name := range l.promptNames {
		if !l.prompts[name] {
			l.add(CodePromptUnused, SeverityWarning, "",
				fmt.Sprintf("prompt %q is known but never referenced", name),
				"")
		}
	}
}

func hasInterrupts(g *spec.GraphSpec) bool {
	for _, node := range g.Nodes {
		if node.Type == spec.TypeInterrupt {
			return true
		}
		if node.Type == spec.TypeSubgraph && node.Graph != nil && hasInterrupts(node.Graph) {
			return true
		}
	}
	return false
}

func sortedNodeNames(g *spec.GraphSpec) []string {
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
