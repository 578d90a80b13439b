package lint

import (
	"fmt"
	"sort"
)

// Severity classifies an issue. Errors make the graph invalid; warnings
// are advisory and never block execution.
type Severity string

// Severity levels.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Stable issue codes. Codes are part of the tool's contract: scripts and
// CI filters match on them, so existing codes never change meaning.
const (
	// Errors.
	CodeRouteTargetUnknown    = "E004" // router route value is not a declared node
	CodeEdgeSourceUnknown     = "E005" // edge `from` is not a declared node or START
	CodeEdgeTargetUnknown     = "E006" // edge `to` is not a declared node or END
	CodeConditionInvalid      = "E007" // condition expression fails to parse
	CodeMapFieldMissing       = "E008" // map node missing over/as/node/collect
	CodeMapPromptForbidden    = "E009" // map node declares a top-level prompt
	CodeInterruptFieldMissing = "E010" // interrupt missing resume_key or prompt/message
	CodeToolUnknown           = "E011" // tool/agent reference does not resolve
	CodeSubgraphCheckpointer  = "E012" // subgraph with interrupts owns a checkpointer
	CodePromptUnknown         = "E013" // prompt reference not known to the resolver

	// Warnings.
	CodeUnreachableNode   = "W001" // node not reachable from START
	CodeNoPathToEnd       = "W002" // node has no path to END
	CodeRouterNoDefault   = "W003" // router without default_route
	CodeLoopLimitMissing  = "W004" // node on a cycle without a loop_limits entry
	CodeToolUnused        = "W005" // declared tool never referenced
	CodePromptUnused      = "W006" // declared prompt never referenced
	CodeStateKeyUndeclared = "W007" // interrupt state_key not in the state schema
)

// Issue is a single defect found by the linter.
type Issue struct {
	// Code is the stable identifier (e.g. E006).
	Code string `json:"code"`
	// Severity is error or warning.
	Severity Severity `json:"severity"`
	// Message describes the defect.
	Message string `json:"message"`
	// Fix is a human-readable remediation hint, when one exists.
	Fix string `json:"fix,omitempty"`
	// Node is the source location: the node (or edge source) the issue
	// concerns. Empty for graph-level issues.
	Node string `json:"node,omitempty"`
}

// String renders the issue in the CLI's one-line format.
func (i Issue) String() string {
	loc := i.Node
	if loc == "" {
		loc = "graph"
	}
	return fmt.Sprintf("%s %s %s: %s", i.Code, i.Severity, loc, i.Message)
}

// Report is the ordered result of linting one graph.
type Report struct {
	Issues []Issue `json:"issues"`
}

// Valid reports whether the graph is free of error-severity issues.
// Warnings never invalidate a graph.
func (r *Report) Valid() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Errors returns only the error-severity issues.
func (r *Report) Errors() []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			out = append(out, issue)
		}
	}
	return out
}

// sortIssues orders issues by source location then code, making lint
// output deterministic for identical inputs.
func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(a, b int) bool {
		if issues[a].Node != issues[b].Node {
			return issues[a].Node < issues[b].Node
		}
		return issues[a].Code < issues[b].Code
	})
}
