// Package tool tracks the tools a workflow graph may reference.
//
// A Registry is seeded with the shell and python built-ins and extended
// with a graph's declared tools. The linter resolves tool and agent
// references against it; the engine hands resolved names to the external
// invoker collaborator and never executes tools itself.
package tool

import (
	"sort"
	"sync"
)

// Built-in tool names the runtime recognizes without a declaration.
// Their invocation mechanics live entirely in the invoker collaborator.
const (
	BuiltinShell  = "shell"
	BuiltinPython = "python"
)

// IsBuiltin reports whether name is a recognized built-in tool.
func IsBuiltin(name string) bool {
	return name == BuiltinShell || name == BuiltinPython
}

// Definition describes a declared tool.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Registry is a thread-safe set of tool definitions.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Definition
}

// NewRegistry creates a registry seeded with the built-in tools.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]Definition)}
	r.Register(Definition{Name: BuiltinShell, Description: "run a shell command"})
	r.Register(Definition{Name: BuiltinPython, Description: "run a python snippet"})
	return r
}

// Register adds or replaces a tool definition.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[def.Name] = def
}

// Get returns the definition for name and whether it exists.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.entries[name]
	return def, ok
}

// Resolves reports whether name refers to a registered tool or built-in.
func (r *Registry) Resolves(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
