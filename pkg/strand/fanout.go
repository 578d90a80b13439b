package strand

import (
	"context"
	"fmt"
	"sync"

	"github.com/strandworks/strand/pkg/strand/event"
	"github.com/strandworks/strand/pkg/strand/observability"
	"github.com/strandworks/strand/pkg/strand/spec"
)

// fanOut executes a multi-target frontier as simultaneous branches.
// Each branch runs on an isolated state clone from its entry node until
// the join point, the closest node every branch reaches. Branch states
// merge by the reducer rules and execution continues at the join.
func (r *Runtime) fanOut(ctx context.Context, rc *runCtx, state State, branches []string) (State, []string, error) {
	join := r.findJoin(branches)

	branchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type branchResult struct {
		index int
		state State
		err   error
	}

	results := make(chan branchResult, len(branches))
	var wg sync.WaitGroup

	for i, entry := range branches {
		clone, err := state.Clone()
		if err != nil {
			return state, nil, fmt.Errorf("fan-out at %s: %w", entry, err)
		}

		wg.Add(1)
		go func(index int, entry string, branchState State) {
			defer wg.Done()
			final, err := r.runBranch(branchCtx, rc, branchState, entry, join)
			results <- branchResult{index: index, state: final, err: err}
			if err != nil {
				cancel()
			}
		}(i, entry, clone)
	}

	wg.Wait()
	close(results)

	branchStates := make([]State, len(branches))
	var firstErr error
	for res := range results {
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
		branchStates[res.index] = res.state
	}
	if firstErr != nil {
		return state, nil, firstErr
	}

	merged := mergeBranches(state, branchStates, r.graph.AppendKeys())
	if join == "" || join == spec.End {
		return merged, nil, nil
	}
	return merged, []string{join}, nil
}

// runBranch executes one branch sequentially until the stop node.
func (r *Runtime) runBranch(ctx context.Context, rc *runCtx, state State, entry, stop string) (State, error) {
	current := entry
	for current != stop && current != spec.End && current != "" {
		node, ok := r.nodes[current]
		if !ok {
			return state, &RoutingError{Node: current, Err: fmt.Errorf("node %q not found", current)}
		}

		limit := r.limitFor(rc, current)
		if steps := rc.countStep(); steps > limit.recursion {
			return state, &RecursionExceededError{Limit: limit.recursion, Node: current}
		}

		select {
		case <-ctx.Done():
			return state, &CancellationError{Node: current, Cause: ctx.Err()}
		default:
		}

		newState, intr, nextOverride, err := r.executeNode(ctx, rc, node, state)
		if err != nil {
			return state, err
		}
		if intr != nil {
			return state, &NodeExecutionError{
				Node: current,
				Op:   "fan-out branch",
				Err:  fmt.Errorf("interrupt inside a parallel branch is not supported"),
			}
		}
		state = newState

		// Loop guard bookkeeping, same as the sequential path. Counters
		// live on the shared run context, so cycles inside a branch hit
		// the limit instead of the recursion ceiling.
		qname := rc.qualified(current)
		visits := rc.countVisit(qname)
		if limit.loop > 0 && visits >= limit.loop {
			if !rc.limitReached(qname) {
				rc.markLimit(qname)
				state[loopLimitKey] = true
				observability.LogLoopLimit(r.opts.logger, current, limit.loop)
				r.publish(event.New(event.LoopLimitReached, rc.threadID, r.graph.Name, current).
					WithDetail("limit", limit.loop))
			}
		}

		if nextOverride != "" {
			current = nextOverride
			continue
		}

		next, err := r.nextOrFallback(rc, node, state)
		if err != nil {
			return state, err
		}
		if len(next) == 0 {
			return state, nil
		}
		if len(next) > 1 {
			merged, frontier, err := r.fanOut(ctx, rc, state, next)
			if err != nil {
				return state, err
			}
			state = merged
			if len(frontier) == 0 {
				return state, nil
			}
			current = frontier[0]
			continue
		}
		current = next[0]
	}
	return state, nil
}

// findJoin locates where parallel branches converge: the closest node
// reachable from every branch entry. Returns "" when the branches only
// meet at END.
func (r *Runtime) findJoin(branches []string) string {
	if len(branches) == 0 {
		return ""
	}

	reachable := make([]map[string]bool, len(branches))
	for i, entry := range branches {
		reachable[i] = r.reachableFrom(entry)
	}

	common := make(map[string]bool)
	for node := range reachable[0] {
		common[node] = true
	}
	for i := 1; i < len(branches); i++ {
		for node := range common {
			if !reachable[i][node] {
				delete(common, node)
			}
		}
	}
	// The branch entries themselves are not join candidates.
	for _, entry := range branches {
		delete(common, entry)
	}
	if len(common) == 0 {
		return ""
	}

	return r.closestNode(branches[0], common)
}

// reachableFrom returns every node reachable from start through the
// declared edges, router routes included.
func (r *Runtime) reachableFrom(start string) map[string]bool {
	reachable := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range r.staticTargets(current) {
			if next != spec.End && !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}
	return reachable
}

// staticTargets lists every statically declared target of a node.
func (r *Runtime) staticTargets(nodeID string) []string {
	var out []string
	for _, edge := range r.edges[nodeID] {
		out = append(out, edge.targets...)
	}
	if node, ok := r.nodes[nodeID]; ok && node.spec.Type == spec.TypeRouter {
		for _, target := range node.spec.Routes {
			out = append(out, target)
		}
		if node.spec.DefaultRoute != "" {
			out = append(out, node.spec.DefaultRoute)
		}
	}
	return out
}

// closestNode finds the nearest member of targets from start by BFS.
func (r *Runtime) closestNode(start string, targets map[string]bool) string {
	visited := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range r.staticTargets(current) {
			if next == spec.End {
				continue
			}
			if targets[next] {
				return next
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return ""
}
