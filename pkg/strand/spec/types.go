package spec

// Reserved endpoint names usable in edge declarations.
const (
	// Start is the virtual entry endpoint. Edges from Start define where
	// execution begins.
	Start = "START"

	// End is the virtual terminal endpoint. Routing to End finishes the run.
	End = "END"
)

// Node type tags. NodeSpec is a tagged variant: exactly one of these,
// and each tag makes a different subset of NodeSpec fields meaningful.
const (
	TypeLLM         = "llm"
	TypeRouter      = "router"
	TypeMap         = "map"
	TypeInterrupt   = "interrupt"
	TypeAgent       = "agent"
	TypeToolCall    = "tool_call"
	TypeSubgraph    = "subgraph"
	TypeTool        = "tool"
	TypePython      = "python"
	TypePassthrough = "passthrough"
)

// NodeTypes lists every recognized node type tag.
var NodeTypes = []string{
	TypeLLM, TypeRouter, TypeMap, TypeInterrupt, TypeAgent,
	TypeToolCall, TypeSubgraph, TypeTool, TypePython, TypePassthrough,
}

// StateTypes is the closed set of declarable state field types.
var StateTypes = []string{"string", "integer", "float", "boolean", "list", "map", "any"}

// GraphSpec is the load-time description of a workflow graph.
// It is created once by Load and never mutated afterwards; the engine and
// the linter both consume the same value.
type GraphSpec struct {
	Version int               `yaml:"version"`
	Name    string            `yaml:"name"`
	State   map[string]string `yaml:"state"`
	Nodes   map[string]*NodeSpec `yaml:"nodes"`
	Edges   []EdgeSpec        `yaml:"edges"`
	Tools   []ToolSpec        `yaml:"tools"`

	Checkpointer *CheckpointerSpec `yaml:"checkpointer"`
	Config       ConfigSpec        `yaml:"config"`
	DataFiles    []string          `yaml:"data_files"`
	LoopLimits   map[string]int    `yaml:"loop_limits"`

	// initial holds the merged data-file snapshot, resolved at load time.
	initial map[string]any
}

// NodeSpec describes a single node. The Type tag decides which fields apply;
// Load checks shape, the linter checks per-type presence rules.
type NodeSpec struct {
	Type string `yaml:"type"`

	// llm / interrupt prompt surface
	Prompt  string `yaml:"prompt,omitempty"`
	Message string `yaml:"message,omitempty"`
	Output  string `yaml:"output,omitempty"`

	// router
	Routes       map[string]string `yaml:"routes,omitempty"`
	DefaultRoute string            `yaml:"default_route,omitempty"`

	// map fan-out
	Over     string    `yaml:"over,omitempty"`
	As       string    `yaml:"as,omitempty"`
	Collect  string    `yaml:"collect,omitempty"`
	MaxItems *int      `yaml:"max_items,omitempty"`
	Node     *NodeSpec `yaml:"node,omitempty"`

	// interrupt
	ResumeKey string `yaml:"resume_key,omitempty"`
	StateKey  string `yaml:"state_key,omitempty"`

	// tool_call / tool / python
	Tool    string         `yaml:"tool,omitempty"`
	Args    map[string]any `yaml:"args,omitempty"`
	Command string         `yaml:"command,omitempty"`
	Code    string         `yaml:"code,omitempty"`

	// agent
	Agent         string   `yaml:"agent,omitempty"`
	Tools         []string `yaml:"tools,omitempty"`
	MaxIterations int      `yaml:"max_iterations,omitempty"`

	// subgraph
	Graph *GraphSpec `yaml:"graph,omitempty"`

	// error policy: "fail" (default), "skip", or "fallback"
	OnError    string `yaml:"on_error,omitempty"`
	FallbackTo string `yaml:"fallback_to,omitempty"`
}

// EdgeSpec is a declared transition. To accepts either a single node name
// or an ordered list of names (simultaneous fan-out).
type EdgeSpec struct {
	From      string     `yaml:"from"`
	To        EdgeTarget `yaml:"to"`
	Condition string     `yaml:"condition,omitempty"`
	Type      string     `yaml:"type,omitempty"`
}

// Conditional reports whether the edge carries a condition expression,
// either via an explicit `type: conditional` marker or a condition field.
func (e EdgeSpec) Conditional() bool {
	return e.Condition != "" || e.Type == "conditional"
}

// EdgeTarget holds one or more target node names. Declaration order is
// preserved for fan-out targets.
type EdgeTarget struct {
	Names []string
}

// Single returns the sole target name and true when the edge is not a
// fan-out list.
func (t EdgeTarget) Single() (string, bool) {
	if len(t.Names) == 1 {
		return t.Names[0], true
	}
	return "", false
}

// ToolSpec declares a tool a graph may reference.
type ToolSpec struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Parameters  map[string]any `yaml:"parameters,omitempty"`
}

// CheckpointerSpec names the persistence backend a graph asks for.
// The engine treats this as configuration for an external collaborator;
// it never implements storage itself.
type CheckpointerSpec struct {
	Type string `yaml:"type"`
	Path string `yaml:"path,omitempty"`
}

// ConfigSpec carries the graph-level safety ceilings and state merge
// behavior.
type ConfigSpec struct {
	RecursionLimit int `yaml:"recursion_limit,omitempty"`
	MaxMapItems    int `yaml:"max_map_items,omitempty"`
	MapWorkers     int `yaml:"map_workers,omitempty"`

	// AppendStateKeys names list fields that merge append-only when
	// parallel branches rejoin. Defaults to ["messages"].
	AppendStateKeys []string `yaml:"append_state_keys,omitempty"`
}

// Safety defaults applied when the description omits them.
const (
	DefaultRecursionLimit = 50
	DefaultMaxMapItems    = 100
	DefaultMapWorkers     = 4
)

// RecursionLimit returns the configured ceiling or the default.
func (g *GraphSpec) RecursionLimit() int {
	if g.Config.RecursionLimit > 0 {
		return g.Config.RecursionLimit
	}
	return DefaultRecursionLimit
}

// MaxMapItems returns the configured fan-out cap or the default.
func (g *GraphSpec) MaxMapItems() int {
	if g.Config.MaxMapItems > 0 {
		return g.Config.MaxMapItems
	}
	return DefaultMaxMapItems
}

// MapWorkers returns the configured fan-out parallelism or the default.
func (g *GraphSpec) MapWorkers() int {
	if g.Config.MapWorkers > 0 {
		return g.Config.MapWorkers
	}
	return DefaultMapWorkers
}

// AppendKeys returns the state fields that merge append-only.
func (g *GraphSpec) AppendKeys() []string {
	if len(g.Config.AppendStateKeys) > 0 {
		return g.Config.AppendStateKeys
	}
	return []string{"messages"}
}

// HasNode reports whether name is a declared node.
func (g *GraphSpec) HasNode(name string) bool {
	_, ok := g.Nodes[name]
	return ok
}

// EntryTargets returns the targets of the first edge declared from Start.
func (g *GraphSpec) EntryTargets() []string {
	for _, e := range g.Edges {
		if e.From == Start {
			return e.To.Names
		}
	}
	return nil
}

// InitialState returns a fresh copy of the initial state snapshot:
// zero values for every declared field, overlaid with merged data files.
func (g *GraphSpec) InitialState() map[string]any {
	out := make(map[string]any, len(g.State)+len(g.initial))
	for field, typ := range g.State {
		out[field] = zeroValue(typ)
	}
	for k, v := range g.initial {
		out[k] = v
	}
	return out
}

// zeroValue maps a declared state type to its zero value.
func zeroValue(typ string) any {
	switch typ {
	case "string":
		return ""
	case "integer":
		return int64(0)
	case "float":
		return float64(0)
	case "boolean":
		return false
	case "list":
		return []any{}
	case "map":
		return map[string]any{}
	default: // "any"
		return nil
	}
}
