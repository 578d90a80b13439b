// Package template renders the placeholder syntax allowed in workflow
// prompts, messages, and tool arguments: {key} and {key.nested.path},
// resolved against the run's state.
//
// Rendering is intentionally dumb. No conditionals, no loops, no
// function calls. A placeholder either resolves to a state value,
// formatted with %v, or follows the expander's MissingAction.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderPattern matches {key} and {key.nested.path}.
var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)\}`)

// MissingAction specifies how to handle placeholders with no matching
// state value.
type MissingAction int

const (
	// MissingKeep keeps the placeholder as-is. This is the default.
	MissingKeep MissingAction = iota

	// MissingEmpty replaces the placeholder with an empty string.
	MissingEmpty

	// MissingError makes Render return an error.
	MissingError
)

// Option configures an Expander.
type Option func(*Expander)

// WithMissingAction sets how unresolved placeholders are handled.
func WithMissingAction(action MissingAction) Option {
	return func(e *Expander) {
		e.missingAction = action
	}
}

// Expander renders placeholders in strings.
// Safe for concurrent use after construction.
type Expander struct {
	missingAction MissingAction
}

// NewExpander creates an Expander with the given options.
func NewExpander(opts ...Option) *Expander {
	e := &Expander{missingAction: MissingKeep}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render expands placeholders in s against vars.
//
// Errors are only returned with MissingError when a placeholder does
// not resolve.
func (e *Expander) Render(s string, vars map[string]any) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	result := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		path := match[1 : len(match)-1]
		if val, ok := lookup(vars, path); ok {
			return fmt.Sprintf("%v", val)
		}
		switch e.missingAction {
		case MissingEmpty:
			return ""
		case MissingError:
			missing = append(missing, path)
			return match
		default:
			return match
		}
	})

	if len(missing) > 0 {
		return result, &UnresolvedError{Paths: missing}
	}
	return result, nil
}

// RenderMap renders all string values of m recursively.
// Non-string values are copied as-is.
func (e *Expander) RenderMap(m map[string]any, vars map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}

	result := make(map[string]any, len(m))
	for k, v := range m {
		rendered, err := e.renderValue(v, vars)
		if err != nil {
			return nil, err
		}
		result[k] = rendered
	}
	return result, nil
}

func (e *Expander) renderValue(v any, vars map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		return e.Render(val, vars)
	case map[string]any:
		return e.RenderMap(val, vars)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			rendered, err := e.renderValue(item, vars)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return v, nil
	}
}

// lookup resolves a dotted path into nested maps.
func lookup(vars map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var current any = vars
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// UnresolvedError is returned with MissingError when one or more
// placeholders do not resolve.
type UnresolvedError struct {
	Paths []string
}

// Error implements the error interface.
func (e *UnresolvedError) Error() string {
	if len(e.Paths) == 1 {
		return fmt.Sprintf("unresolved placeholder: %s", e.Paths[0])
	}
	return fmt.Sprintf("unresolved placeholders: %s", strings.Join(e.Paths, ", "))
}

// defaultExpander keeps unresolved placeholders as-is.
var defaultExpander = NewExpander()

// Render expands placeholders in s using the default expander.
func Render(s string, vars map[string]any) string {
	result, _ := defaultExpander.Render(s, vars)
	return result
}

// RenderMap renders all string values of m using the default expander.
func RenderMap(m map[string]any, vars map[string]any) map[string]any {
	result, _ := defaultExpander.RenderMap(m, vars)
	return result
}
