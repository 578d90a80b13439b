package strand

import (
	"errors"
	"fmt"
)

// Sentinel errors for compilation and execution.
var (
	// ErrNoEntry indicates the graph declares no edge from START.
	ErrNoEntry = errors.New("no entry edge from START")

	// ErrThreadBusy indicates a Run or Resume is already in flight for
	// the thread id.
	ErrThreadBusy = errors.New("thread already running")

	// ErrNoCheckpointer indicates an operation that needs persistence
	// was attempted without a configured checkpoint store.
	ErrNoCheckpointer = errors.New("no checkpointer configured")

	// ErrRecursionExceeded indicates the transition ceiling was hit.
	ErrRecursionExceeded = errors.New("recursion limit exceeded")

	// ErrRouteNotMatched indicates no outgoing edge or route applied.
	ErrRouteNotMatched = errors.New("no route matched")
)

// CompileError reports a graph description rejected at compile time.
// Issues holds the linter findings that caused the rejection.
type CompileError struct {
	Graph  string
	Issues []string
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	return fmt.Sprintf("graph %s failed validation with %d error(s)", e.Graph, len(e.Issues))
}

// RoutingError reports a failure to pick the next node.
type RoutingError struct {
	// Node is the node whose outgoing transition failed.
	Node string
	// Value is the routing value that matched nothing, if any.
	Value string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *RoutingError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("routing from %s: value %q: %v", e.Node, e.Value, e.Err)
	}
	return fmt.Sprintf("routing from %s: %v", e.Node, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RoutingError) Unwrap() error {
	return e.Err
}

// NodeExecutionError wraps a node handler failure with node context.
type NodeExecutionError struct {
	// Node is the identifier of the node that failed.
	Node string
	// Op is the operation that failed (e.g. "generate", "invoke").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.Node, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// RecursionExceededError reports that a run performed more transitions
// than the configured ceiling allows.
type RecursionExceededError struct {
	// Limit is the configured transition ceiling.
	Limit int
	// Node is the node that would have executed next.
	Node string
}

// Error implements the error interface.
func (e *RecursionExceededError) Error() string {
	return fmt.Sprintf("exceeded recursion limit (%d) at node %s", e.Limit, e.Node)
}

// Unwrap returns ErrRecursionExceeded for errors.Is support.
func (e *RecursionExceededError) Unwrap() error {
	return ErrRecursionExceeded
}

// MapSourceTypeError reports a fan-out whose source state field did not
// hold a list.
type MapSourceTypeError struct {
	// Node is the map node.
	Node string
	// Field is the state field named by `over`.
	Field string
	// Actual describes the value actually found.
	Actual string
}

// Error implements the error interface.
func (e *MapSourceTypeError) Error() string {
	return fmt.Sprintf("map node %s: state field %q is %s, not a list", e.Node, e.Field, e.Actual)
}

// CheckpointError wraps errors from checkpoint operations during a run.
type CheckpointError struct {
	// ThreadID is the thread whose checkpoint operation failed.
	ThreadID string
	// Op is the operation that failed ("save", "load", "serialize").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s for thread %s: %v", e.Op, e.ThreadID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// CancellationError captures where execution was cancelled.
type CancellationError struct {
	// Node is the node that was about to execute or was executing.
	Node string
	// Cause is context.Canceled or context.DeadlineExceeded.
	Cause error
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancelled at node %s: %v", e.Node, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// PanicError captures panic information from node execution.
type PanicError struct {
	// Node is the identifier of the node that panicked.
	Node string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.Node, e.Value)
}
