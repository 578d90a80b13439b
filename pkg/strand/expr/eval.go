package expr

import (
	"fmt"
	"strings"
)

// Eval evaluates the expression against a state mapping. Missing fields
// resolve to nil rather than erroring, so conditions can probe
// runtime-produced keys that may not exist yet.
func (e *Expr) Eval(state map[string]any) (bool, error) {
	result, err := e.root.eval(state)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", e.source, err)
	}
	return result, nil
}

type andNode struct{ left, right boolNode }

func (n *andNode) eval(state map[string]any) (bool, error) {
	l, err := n.left.eval(state)
	if err != nil {
		return false, err
	}
	if !l {
		return false, nil
	}
	return n.right.eval(state)
}

type orNode struct{ left, right boolNode }

func (n *orNode) eval(state map[string]any) (bool, error) {
	l, err := n.left.eval(state)
	if err != nil {
		return false, err
	}
	if l {
		return true, nil
	}
	return n.right.eval(state)
}

type notNode struct{ inner boolNode }

func (n *notNode) eval(state map[string]any) (bool, error) {
	v, err := n.inner.eval(state)
	if err != nil {
		return false, err
	}
	return !v, nil
}

type truthyNode struct{ value valueNode }

func (n *truthyNode) eval(state map[string]any) (bool, error) {
	v, err := n.value.resolve(state)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

type cmpNode struct {
	op     tokenType
	opText string
	left   valueNode
	right  valueNode
}

func (n *cmpNode) eval(state map[string]any) (bool, error) {
	left, err := n.left.resolve(state)
	if err != nil {
		return false, err
	}
	right, err := n.right.resolve(state)
	if err != nil {
		return false, err
	}

	switch n.op {
	case tokenEQ:
		return equals(left, right), nil
	case tokenNE:
		return !equals(left, right), nil
	case tokenLT, tokenLE, tokenGT, tokenGE:
		return compareOrdered(left, right, n.op)
	case tokenIn:
		return membership(left, right)
	case tokenContains:
		return containment(left, right)
	default:
		return false, fmt.Errorf("unknown operator %q", n.opText)
	}
}

type literalNode struct{ value any }

func (n *literalNode) resolve(map[string]any) (any, error) { return n.value, nil }

type listNode struct{ elems []valueNode }

func (n *listNode) resolve(state map[string]any) (any, error) {
	out := make([]any, 0, len(n.elems))
	for _, elem := range n.elems {
		v, err := elem.resolve(state)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

type pathSegment struct {
	field   string
	index   int
	isIndex bool
}

type pathNode struct{ segments []pathSegment }

func (n *pathNode) resolve(state map[string]any) (any, error) {
	var current any = state
	for _, seg := range n.segments {
		if current == nil {
			return nil, nil
		}
		if seg.isIndex {
			list, ok := current.([]any)
			if !ok {
				return nil, fmt.Errorf("cannot index %T with [%d]", current, seg.index)
			}
			if seg.index >= len(list) {
				return nil, nil
			}
			current = list[seg.index]
			continue
		}
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot access field %q on %T", seg.field, current)
		}
		current = m[seg.field]
	}
	return current, nil
}

// Truthy reports whether a value counts as true in bare-value position.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

func equals(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	// Numbers compare numerically across int/float representations.
	if ln, lok := toNumber(left); lok {
		if rn, rok := toNumber(right); rok {
			return ln == rn
		}
		return false
	}
	switch l := left.(type) {
	case bool:
		r, ok := right.(bool)
		return ok && l == r
	case string:
		r, ok := right.(string)
		return ok && l == r
	default:
		return false
	}
}

func compareOrdered(left, right any, op tokenType) (bool, error) {
	ln, lok := toNumber(left)
	rn, rok := toNumber(right)
	if lok && rok {
		switch op {
		case tokenLT:
			return ln < rn, nil
		case tokenLE:
			return ln <= rn, nil
		case tokenGT:
			return ln > rn, nil
		case tokenGE:
			return ln >= rn, nil
		}
	}

	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		switch op {
		case tokenLT:
			return ls < rs, nil
		case tokenLE:
			return ls <= rs, nil
		case tokenGT:
			return ls > rs, nil
		case tokenGE:
			return ls >= rs, nil
		}
	}

	return false, fmt.Errorf("cannot order %T and %T", left, right)
}

// membership implements `x in list`.
func membership(needle, haystack any) (bool, error) {
	list, ok := haystack.([]any)
	if !ok {
		return false, fmt.Errorf("right side of 'in' must be a list, got %T", haystack)
	}
	for _, elem := range list {
		if equals(needle, elem) {
			return true, nil
		}
	}
	return false, nil
}

// containment implements `container contains x` for strings and lists.
func containment(container, needle any) (bool, error) {
	switch c := container.(type) {
	case string:
		n, ok := needle.(string)
		if !ok {
			return false, fmt.Errorf("string containment needs a string operand, got %T", needle)
		}
		return strings.Contains(c, n), nil
	case []any:
		for _, elem := range c {
			if equals(elem, needle) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("left side of 'contains' must be a string or list, got %T", container)
	}
}

func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case float32:
		return float64(val), true
	}
	return 0, false
}
