package strand

import (
	"errors"
	"fmt"

	"github.com/strandworks/strand/pkg/strand/spec"
)

// nextTargets picks the next frontier after a node finishes.
//
// Router nodes route by value lookup: routes first, then default_route.
// Every other node follows its declared edges in order; conditions are
// evaluated against the current state and the first match wins, with no
// fallthrough past a matching edge.
//
// Targets whose loop limit has been reached are skipped in favor of a
// later edge; when every candidate is exhausted the run ends.
func (r *Runtime) nextTargets(rc *runCtx, node *compiledNode, state State) ([]string, error) {
	if node.spec.Type == spec.TypeRouter {
		return r.routeByValue(rc, node, state)
	}

	edges := r.edges[node.id]
	if len(edges) == 0 {
		return nil, nil
	}

	matchedAny := false
	for _, edge := range edges {
		if edge.cond != nil {
			ok, err := edge.cond.Eval(state)
			if err != nil {
				return nil, &RoutingError{Node: node.id, Err: err}
			}
			if !ok {
				continue
			}
		}
		matchedAny = true

		targets := rc.filterLimited(edge.targets)
		if len(targets) == 0 {
			// Cyclic edge suppressed by a loop limit; try a later edge.
			continue
		}
		return targets, nil
	}

	if matchedAny {
		// Only loop-limited edges matched; finish the run.
		return nil, nil
	}
	return nil, &RoutingError{Node: node.id, Err: ErrRouteNotMatched}
}

// nextOrFallback resolves the next frontier, redirecting a routing
// failure to the node's fallback target when its on_error policy asks
// for one. Other errors propagate unchanged.
func (r *Runtime) nextOrFallback(rc *runCtx, node *compiledNode, state State) ([]string, error) {
	next, err := r.nextTargets(rc, node, state)
	if err == nil {
		return next, nil
	}
	var routeErr *RoutingError
	if errors.As(err, &routeErr) && node.spec.OnError == "fallback" && node.spec.FallbackTo != "" {
		return []string{node.spec.FallbackTo}, nil
	}
	return nil, err
}

// routeByValue resolves a router node's output against its route table.
func (r *Runtime) routeByValue(rc *runCtx, node *compiledNode, state State) ([]string, error) {
	field := outputKey(node.spec)
	value := fmt.Sprintf("%v", state[field])
	if state[field] == nil {
		value = ""
	}

	target, ok := node.spec.Routes[value]
	if !ok {
		target = node.spec.DefaultRoute
	}
	if target == "" {
		return nil, &RoutingError{Node: node.id, Value: value, Err: ErrRouteNotMatched}
	}

	if target != spec.End && rc.limitReached(rc.qualified(target)) {
		return nil, nil
	}
	return []string{target}, nil
}

// filterLimited drops targets whose loop limit was reached. END always
// survives.
func (rc *runCtx) filterLimited(targets []string) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		if t != spec.End && rc.limitReached(rc.qualified(t)) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// outputKey returns the state field a node writes its result to.
func outputKey(n *spec.NodeSpec) string {
	if n.Output != "" {
		return n.Output
	}
	return "output"
}
