package strand

import (
	"fmt"

	"github.com/strandworks/strand/pkg/strand/expr"
	"github.com/strandworks/strand/pkg/strand/lint"
	"github.com/strandworks/strand/pkg/strand/spec"
)

// compiledNode pairs a node description with whatever was precompiled
// for it: a nested runtime for subgraphs, an item node for maps.
type compiledNode struct {
	id   string
	spec *spec.NodeSpec
	sub  *Runtime      // subgraph nodes
	item *compiledNode // map nodes
}

// compiledEdge is one outgoing transition with its condition parsed.
// Edges keep declaration order; the first matching condition wins.
type compiledEdge struct {
	targets []string
	cond    *expr.Expr
}

// Compile validates a graph description and builds an executable
// Runtime. Validation runs the full linter; any error-severity issue
// rejects the graph. Warnings are logged but do not block compilation.
func Compile(g *spec.GraphSpec, opts ...Option) (*Runtime, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	report := lint.Lint(g)
	if !report.Valid() {
		ce := &CompileError{Graph: g.Name}
		for _, issue := range report.Errors() {
			ce.Issues = append(ce.Issues, issue.String())
		}
		return nil, ce
	}
	if o.logger != nil {
		for _, issue := range report.Issues {
			if issue.Severity == lint.SeverityWarning {
				o.logger.Warn("lint warning", "issue", issue.String())
			}
		}
	}

	return compileRuntime(g, o)
}

// compileRuntime builds a Runtime without re-linting. Nested graphs are
// covered by the parent's lint pass.
func compileRuntime(g *spec.GraphSpec, o options) (*Runtime, error) {
	entry := g.EntryTargets()
	if len(entry) == 0 {
		return nil, ErrNoEntry
	}

	r := &Runtime{
		graph:   g,
		entry:   entry,
		nodes:   make(map[string]*compiledNode, len(g.Nodes)),
		edges:   make(map[string][]compiledEdge),
		opts:    o,
		running: make(map[string]bool),
	}

	for name, node := range g.Nodes {
		cn, err := compileNode(name, node, o)
		if err != nil {
			return nil, err
		}
		r.nodes[name] = cn
	}

	for _, e := range g.Edges {
		if e.From == spec.Start {
			continue
		}
		ce := compiledEdge{targets: e.To.Names}
		if e.Condition != "" {
			parsed, err := expr.Parse(e.Condition)
			if err != nil {
				return nil, fmt.Errorf("edge from %s: condition: %w", e.From, err)
			}
			ce.cond = parsed
		}
		r.edges[e.From] = append(r.edges[e.From], ce)
	}

	return r, nil
}

// compileNode precompiles one node, recursing into map items and
// subgraphs.
func compileNode(id string, node *spec.NodeSpec, o options) (*compiledNode, error) {
	cn := &compiledNode{id: id, spec: node}

	switch node.Type {
	case spec.TypeMap:
		item, err := compileNode(id+".item", node.Node, o)
		if err != nil {
			return nil, err
		}
		cn.item = item

	case spec.TypeSubgraph:
		// Nested graphs never own persistence; the parent's store is
		// passed down through the shared options.
		sub, err := compileRuntime(node.Graph, o)
		if err != nil {
			return nil, fmt.Errorf("subgraph %s: %w", id, err)
		}
		cn.sub = sub
	}

	return cn, nil
}
