package strand

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/strandworks/strand/pkg/strand/checkpoint"
	"github.com/strandworks/strand/pkg/strand/event"
	"github.com/strandworks/strand/pkg/strand/observability"
	"github.com/strandworks/strand/pkg/strand/spec"
)

// Runtime is an immutable, executable workflow. It is created by
// Compile and is safe for concurrent use across threads; concurrent
// invocations for the same thread id are rejected with ErrThreadBusy.
type Runtime struct {
	graph *spec.GraphSpec
	entry []string
	nodes map[string]*compiledNode
	edges map[string][]compiledEdge
	opts  options

	mu      sync.Mutex
	running map[string]bool
}

// Graph returns the description this runtime was compiled from.
func (r *Runtime) Graph() *spec.GraphSpec {
	return r.graph
}

// Result is the outcome of a Run or Resume invocation.
type Result struct {
	// State is the state at completion or suspension.
	State State

	// Interrupt is set when the run suspended awaiting input.
	Interrupt *InterruptSignal

	// NextNode is where execution continues on resume. Only set on
	// interrupt.
	NextNode string
}

// InterruptSignal marks a run suspended on an interrupt node.
type InterruptSignal struct {
	// Node is the interrupting node, qualified with subgraph path
	// segments separated by "/".
	Node string

	// ResumeKey is the state field the resume value is written to.
	ResumeKey string

	// Prompt is the rendered text presented to whoever supplies input.
	Prompt string

	// Value surfaces the state field named by the node's state_key.
	Value any
}

// interruptOutcome propagates a suspension up through nested run loops.
type interruptOutcome struct {
	node      string
	next      string
	resumeKey string
	prompt    string
	value     any
}

// runCtx carries per-invocation bookkeeping shared across nested graph
// levels: the transition counter, visit counts, and loop-limit marks.
type runCtx struct {
	threadID string
	prefix   string

	// parent is nil on the top-level context; children delegate all
	// counter access to the root so nested levels share one budget.
	parent *runCtx

	mu       sync.Mutex
	steps    int
	visits   map[string]int
	limitHit map[string]bool

	// resumePath holds the remaining qualified segments when re-entering
	// nested graphs after a resume. Consumed by the first subgraph node.
	resumePath []string
}

func newRunCtx(threadID string) *runCtx {
	return &runCtx{
		threadID: threadID,
		visits:   make(map[string]int),
		limitHit: make(map[string]bool),
	}
}

// child derives a context for a nested graph level. Counters are shared.
func (rc *runCtx) child(nodeID string, resumePath []string) *runCtx {
	return &runCtx{
		threadID:   rc.threadID,
		prefix:     rc.prefix + nodeID + "/",
		parent:     rc.root(),
		resumePath: resumePath,
	}
}

// qualified returns the visit-count key for a node at this level.
func (rc *runCtx) qualified(nodeID string) string {
	return rc.prefix + nodeID
}

func (rc *runCtx) root() *runCtx {
	if rc.parent != nil {
		return rc.parent
	}
	return rc
}

// countStep increments the shared transition counter and returns it.
func (rc *runCtx) countStep() int {
	root := rc.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	root.steps++
	return root.steps
}

func (rc *runCtx) countVisit(key string) int {
	root := rc.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	root.visits[key]++
	return root.visits[key]
}

func (rc *runCtx) markLimit(key string) {
	root := rc.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	root.limitHit[key] = true
}

func (rc *runCtx) limitReached(key string) bool {
	root := rc.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	return root.limitHit[key]
}

// acquireThread claims exclusive execution for a thread id.
func (r *Runtime) acquireThread(threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[threadID] {
		return fmt.Errorf("%w: %s", ErrThreadBusy, threadID)
	}
	r.running[threadID] = true
	return nil
}

func (r *Runtime) releaseThread(threadID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, threadID)
}

// Run executes the workflow for a thread, starting from the entry edge.
// The initial argument overlays the graph's declared initial state.
//
// On normal completion the Result carries the final state. When an
// interrupt node suspends the run, the Result instead carries an
// InterruptSignal and the state is checkpointed for Resume.
func (r *Runtime) Run(ctx context.Context, threadID string, initial State) (result *Result, runErr error) {
	if err := r.acquireThread(threadID); err != nil {
		return nil, err
	}
	defer r.releaseThread(threadID)

	state := State(r.graph.InitialState())
	for k, v := range initial {
		state[k] = v
	}

	return r.invoke(ctx, threadID, state, r.entry, nil)
}

// Resume continues a suspended thread, binding value to the interrupt's
// resume key. The checkpoint is loaded from the configured store;
// resuming a thread with no checkpoint returns checkpoint.ErrNotFound.
func (r *Runtime) Resume(ctx context.Context, threadID string, value any) (*Result, error) {
	if r.opts.store == nil {
		return nil, ErrNoCheckpointer
	}
	if err := r.acquireThread(threadID); err != nil {
		return nil, err
	}
	defer r.releaseThread(threadID)

	data, err := r.opts.store.Load(threadID)
	if err != nil {
		return nil, &CheckpointError{ThreadID: threadID, Op: "load", Err: err}
	}
	cp, err := checkpoint.Unmarshal(data)
	if err != nil {
		return nil, &CheckpointError{ThreadID: threadID, Op: "decode", Err: err}
	}

	var state State
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return nil, &CheckpointError{ThreadID: threadID, Op: "decode", Err: err}
	}
	if cp.ResumeKey != "" {
		state[cp.ResumeKey] = value
	}

	segments := splitPath(cp.NextNode)
	r.publish(event.New(event.Resumed, threadID, r.graph.Name, cp.NodeID))
	observability.LogResume(r.opts.logger, threadID, cp.NextNode)

	if len(segments) == 0 || segments[0] == spec.End {
		// The interrupt was the last node; nothing left to execute.
		if err := r.opts.store.Delete(threadID); err != nil {
			observability.LogCheckpointError(r.opts.logger, threadID, "delete", err)
		}
		return &Result{State: state}, nil
	}

	return r.invoke(ctx, threadID, state, []string{segments[0]}, segments[1:])
}

// invoke drives one Run or Resume to completion, suspension, or error,
// with run-level observability around the loop.
func (r *Runtime) invoke(ctx context.Context, threadID string, state State, targets, resumePath []string) (result *Result, runErr error) {
	start := time.Now()
	observability.LogRunStart(r.opts.logger, r.graph.Name, threadID)
	r.publish(event.New(event.RunStarted, threadID, r.graph.Name, ""))

	spanCtx, runSpan := r.opts.spans.StartRunSpan(ctx, r.graph.Name, threadID)
	defer func() {
		r.opts.spans.EndSpanWithError(runSpan, runErr)
	}()

	rc := newRunCtx(threadID)
	rc.resumePath = resumePath

	finalState, intr, err := r.runFrom(spanCtx, rc, state, targets)
	duration := time.Since(start)
	r.opts.metrics.RecordRun(ctx, err == nil, duration)

	if err != nil {
		lastNode := lastErrorNode(err)
		observability.LogRunError(r.opts.logger, threadID, err, float64(duration.Milliseconds()), lastNode)
		r.publish(event.New(event.RunFailed, threadID, r.graph.Name, lastNode).WithError(err))
		return nil, err
	}

	if intr != nil {
		if err := r.saveInterrupt(ctx, threadID, finalState, intr); err != nil {
			return nil, err
		}
		r.opts.metrics.RecordInterrupt(ctx, intr.node)
		observability.LogInterrupt(r.opts.logger, threadID, intr.node, intr.resumeKey)
		r.publish(event.New(event.Interrupted, threadID, r.graph.Name, intr.node))
		r.opts.spans.AddSpanEvent(spanCtx, "interrupted",
			attribute.String("node.id", intr.node))
		return &Result{
			State: finalState,
			Interrupt: &InterruptSignal{
				Node:      intr.node,
				ResumeKey: intr.resumeKey,
				Prompt:    intr.prompt,
				Value:     intr.value,
			},
			NextNode: intr.next,
		}, nil
	}

	if r.opts.store != nil {
		if err := r.opts.store.Delete(threadID); err != nil {
			observability.LogCheckpointError(r.opts.logger, threadID, "delete", err)
		}
	}

	observability.LogRunComplete(r.opts.logger, threadID, float64(duration.Milliseconds()), rc.steps)
	r.publish(event.New(event.RunCompleted, threadID, r.graph.Name, ""))
	return &Result{State: finalState}, nil
}

// saveInterrupt checkpoints a suspended run.
func (r *Runtime) saveInterrupt(ctx context.Context, threadID string, state State, intr *interruptOutcome) error {
	if r.opts.store == nil {
		return &NodeExecutionError{Node: intr.node, Op: "interrupt", Err: ErrNoCheckpointer}
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return &CheckpointError{ThreadID: threadID, Op: "serialize", Err: err}
	}

	cp := checkpoint.New(threadID, intr.node, stateJSON)
	cp.NextNode = intr.next
	cp.ResumeKey = intr.resumeKey

	data, err := cp.Marshal()
	if err != nil {
		return &CheckpointError{ThreadID: threadID, Op: "serialize", Err: err}
	}
	if err := r.opts.store.Save(threadID, data); err != nil {
		return &CheckpointError{ThreadID: threadID, Op: "save", Err: err}
	}

	observability.LogCheckpoint(r.opts.logger, threadID, len(data))
	r.opts.metrics.RecordCheckpoint(ctx, threadID, int64(len(data)))
	return nil
}

// runFrom executes nodes until END, an interrupt, or an error. The
// targets slice is the current frontier: one node for sequential flow,
// several for a simultaneous fan-out.
func (r *Runtime) runFrom(ctx context.Context, rc *runCtx, state State, targets []string) (State, *interruptOutcome, error) {
	for len(targets) > 0 {
		if len(targets) > 1 {
			merged, next, err := r.fanOut(ctx, rc, state, targets)
			if err != nil {
				return state, nil, err
			}
			state = merged
			targets = next
			continue
		}

		current := targets[0]
		if current == spec.End {
			return state, nil, nil
		}

		node, ok := r.nodes[current]
		if !ok {
			return state, nil, &RoutingError{Node: current, Err: fmt.Errorf("node %q not found", current)}
		}

		limit := r.limitFor(rc, current)
		if steps := rc.countStep(); steps > limit.recursion {
			return state, nil, &RecursionExceededError{Limit: limit.recursion, Node: current}
		}

		select {
		case <-ctx.Done():
			return state, nil, &CancellationError{Node: current, Cause: ctx.Err()}
		default:
		}

		newState, intr, nextOverride, err := r.executeNode(ctx, rc, node, state)
		if err != nil {
			return state, nil, err
		}
		state = newState

		// Loop guard bookkeeping after a successful execution.
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

		if intr != nil {
			if intr.next == "" {
				next, err := r.nextOrFallback(rc, node, state)
				if err != nil {
					return state, nil, err
				}
				intr.next = joinTargets(next)
			}
			return state, intr, nil
		}

		if nextOverride != "" {
			targets = []string{nextOverride}
			continue
		}

		next, err := r.nextOrFallback(rc, node, state)
		if err != nil {
			return state, nil, err
		}
		targets = next
	}

	return state, nil, nil
}

// limits bundles the two ceilings consulted per node.
type limits struct {
	recursion int
	loop      int
}

func (r *Runtime) limitFor(rc *runCtx, nodeID string) limits {
	rl := r.graph.RecursionLimit()
	if r.opts.recursionLimit > 0 {
		rl = r.opts.recursionLimit
	}
	return limits{
		recursion: rl,
		loop:      r.graph.LoopLimits[nodeID],
	}
}

// executeNode runs one node with observability and the node's on_error
// policy. A non-empty nextOverride redirects routing (fallback policy).
func (r *Runtime) executeNode(ctx context.Context, rc *runCtx, node *compiledNode, state State) (result State, intr *interruptOutcome, nextOverride string, err error) {
	logger := observability.EnrichLogger(r.opts.logger, rc.threadID, node.id)
	observability.LogNodeStart(logger, node.id, node.spec.Type)
	r.publish(event.New(event.NodeStarted, rc.threadID, r.graph.Name, node.id))

	nodeCtx, span := r.opts.spans.StartNodeSpan(ctx, node.id, node.spec.Type)
	start := time.Now()

	// Handlers mutate the state map they receive. When the node may
	// swallow a failure, run on a clone so a partial mutation does not
	// leak into the state the policy path hands back.
	work := state
	if node.spec.OnError == "skip" || node.spec.OnError == "fallback" {
		work, err = state.Clone()
		if err != nil {
			r.opts.spans.EndSpanWithError(span, err)
			return state, nil, "", &NodeExecutionError{Node: node.id, Op: "clone state", Err: err}
		}
	}

	result, intr, err = r.dispatchSafe(nodeCtx, rc, node, work)

	duration := time.Since(start)
	r.opts.metrics.RecordNodeExecution(nodeCtx, node.id, node.spec.Type, duration, err)
	r.opts.spans.EndSpanWithError(span, err)

	if err != nil {
		observability.LogNodeError(logger, node.id, err)
		r.publish(event.New(event.NodeFailed, rc.threadID, r.graph.Name, node.id).WithError(err))

		switch node.spec.OnError {
		case "skip":
			return state, nil, "", nil
		case "fallback":
			if node.spec.FallbackTo != "" {
				return state, nil, node.spec.FallbackTo, nil
			}
		}
		return state, nil, "", err
	}

	observability.LogNodeComplete(logger, node.id, float64(duration.Milliseconds()))
	r.publish(event.New(event.NodeCompleted, rc.threadID, r.graph.Name, node.id))
	return result, intr, "", nil
}

// dispatchSafe invokes the node handler with panic recovery.
func (r *Runtime) dispatchSafe(ctx context.Context, rc *runCtx, node *compiledNode, state State) (result State, intr *interruptOutcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = state
			intr = nil
			err = &PanicError{Node: node.id, Value: rec, Stack: string(debug.Stack())}
		}
	}()
	return r.dispatch(ctx, rc, node, state)
}

func (r *Runtime) publish(evt event.Event) {
	if r.opts.bus != nil {
		r.opts.bus.Publish(evt)
	}
}

// joinTargets encodes a frontier as a qualified path segment string.
// Interrupt resume only ever needs the single-target form.
func joinTargets(targets []string) string {
	if len(targets) == 0 {
		return spec.End
	}
	return targets[0]
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// lastErrorNode extracts the failing node from a typed execution error.
func lastErrorNode(err error) string {
	switch e := err.(type) {
	case *NodeExecutionError:
		return e.Node
	case *RoutingError:
		return e.Node
	case *RecursionExceededError:
		return e.Node
	case *CancellationError:
		return e.Node
	case *PanicError:
		return e.Node
	}
	return ""
}
