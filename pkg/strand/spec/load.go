package spec

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts either a single node name or a list of names:
//
//	to: publish
//	to: [branch_a, branch_b]
func (t *EdgeTarget) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var name string
		if err := value.Decode(&name); err != nil {
			return err
		}
		t.Names = []string{name}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		t.Names = names
		return nil
	default:
		return fmt.Errorf("edge target must be a node name or a list of node names")
	}
}

// MarshalYAML renders single targets as scalars and fan-outs as lists.
func (t EdgeTarget) MarshalYAML() (any, error) {
	if name, ok := t.Single(); ok {
		return name, nil
	}
	return t.Names, nil
}

// Load parses a graph description from r and validates its shape.
// Unknown keys, state types outside the closed set, and unknown node types
// are SchemaErrors. Semantic checks (dangling edges, per-type presence
// rules) are the linter's job, not Load's.
//
// Data files listed under data_files are resolved relative to baseDir and
// merged into the initial state snapshot, later files winning.
func Load(r io.Reader, baseDir string) (*GraphSpec, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &SchemaError{Msg: "read description", Err: err}
	}
	return parse(data, baseDir)
}

// LoadFile reads and parses a graph description file. Data files are
// resolved relative to the description's directory.
func LoadFile(path string) (*GraphSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SchemaError{Msg: fmt.Sprintf("read %s", path), Err: err}
	}
	return parse(data, filepath.Dir(path))
}

func parse(data []byte, baseDir string) (*GraphSpec, error) {
	var g GraphSpec
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&g); err != nil {
		return nil, &SchemaError{Msg: "malformed description", Err: err}
	}

	if err := validateShape(&g); err != nil {
		return nil, err
	}

	initial, err := mergeDataFiles(g.DataFiles, baseDir)
	if err != nil {
		return nil, err
	}
	g.initial = initial

	return &g, nil
}

// validateShape checks the top-level structure: name present, state field
// types inside the closed set, node types recognized (recursively through
// map sub-nodes and subgraphs).
func validateShape(g *GraphSpec) error {
	if g.Name == "" {
		return schemaErrorf("name", "required field is missing")
	}
	if len(g.Nodes) == 0 {
		return schemaErrorf("nodes", "graph declares no nodes")
	}

	for field, typ := range g.State {
		if !validStateType(typ) {
			return schemaErrorf("state."+field,
				"type %q is not one of %s", typ, strings.Join(StateTypes, ", "))
		}
	}

	for name, node := range g.Nodes {
		if node == nil {
			return schemaErrorf("nodes."+name, "node body is empty")
		}
		if err := validateNodeShape("nodes."+name, node); err != nil {
			return err
		}
	}

	for i, edge := range g.Edges {
		if edge.From == "" {
			return schemaErrorf(fmt.Sprintf("edges[%d].from", i), "required field is missing")
		}
		if len(edge.To.Names) == 0 {
			return schemaErrorf(fmt.Sprintf("edges[%d].to", i), "required field is missing")
		}
		if edge.Type != "" && edge.Type != "conditional" {
			return schemaErrorf(fmt.Sprintf("edges[%d].type", i),
				"unknown edge type %q (only \"conditional\" is recognized)", edge.Type)
		}
	}

	for i, tool := range g.Tools {
		if tool.Name == "" {
			return schemaErrorf(fmt.Sprintf("tools[%d].name", i), "required field is missing")
		}
	}

	for node, limit := range g.LoopLimits {
		if limit <= 0 {
			return schemaErrorf("loop_limits."+node, "limit must be positive, got %d", limit)
		}
	}

	return nil
}

func validateNodeShape(path string, node *NodeSpec) error {
	if node.Type == "" {
		return schemaErrorf(path+".type", "required field is missing")
	}
	if !validNodeType(node.Type) {
		return schemaErrorf(path+".type",
			"unknown node type %q (known: %s)", node.Type, strings.Join(NodeTypes, ", "))
	}
	switch node.OnError {
	case "", "fail", "skip", "fallback":
	default:
		return schemaErrorf(path+".on_error",
			"unknown policy %q (known: fail, skip, fallback)", node.OnError)
	}

	if node.Node != nil {
		if err := validateNodeShape(path+".node", node.Node); err != nil {
			return err
		}
	}
	if node.Graph != nil {
		if node.Graph.Name == "" {
			node.Graph.Name = path // inline subgraphs may omit a name
		}
		if err := validateShape(node.Graph); err != nil {
			return err
		}
	}
	return nil
}

func validStateType(typ string) bool {
	for _, t := range StateTypes {
		if t == typ {
			return true
		}
	}
	return false
}

func validNodeType(typ string) bool {
	for _, t := range NodeTypes {
		if t == typ {
			return true
		}
	}
	return false
}

// mergeDataFiles loads each listed file (YAML or JSON by extension) and
// merges its top-level mapping into one snapshot, later files winning.
func mergeDataFiles(files []string, baseDir string) (map[string]any, error) {
	if len(files) == 0 {
		return nil, nil
	}

	merged := make(map[string]any)
	for _, name := range files {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, name)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &SchemaError{Field: "data_files", Msg: fmt.Sprintf("read %s", name), Err: err}
		}

		var doc map[string]any
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return nil, &SchemaError{Field: "data_files", Msg: fmt.Sprintf("parse %s", name), Err: err}
			}
		case ".json":
			if err := json.Unmarshal(data, &doc); err != nil {
				return nil, &SchemaError{Field: "data_files", Msg: fmt.Sprintf("parse %s", name), Err: err}
			}
		default:
			return nil, schemaErrorf("data_files", "unsupported extension on %s", name)
		}

		for k, v := range doc {
			merged[k] = v
		}
	}
	return merged, nil
}
