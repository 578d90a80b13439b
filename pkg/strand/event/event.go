// Package event carries the execution event stream a running workflow
// emits: run lifecycle, per-node progress, guard activations, and
// interrupt transitions. Observers subscribe through a Bus; publishing
// never blocks node execution.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies what happened.
type Type string

// Event types emitted by the runtime.
const (
	RunStarted       Type = "run.started"
	RunCompleted     Type = "run.completed"
	RunFailed        Type = "run.failed"
	NodeStarted      Type = "node.started"
	NodeCompleted    Type = "node.completed"
	NodeFailed       Type = "node.failed"
	MapTruncated     Type = "map.truncated"
	LoopLimitReached Type = "loop.limit_reached"
	Interrupted      Type = "run.interrupted"
	Resumed          Type = "run.resumed"
)

// Event is one occurrence in a workflow run. Events are immutable once
// published.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	ThreadID  string         `json:"thread_id"`
	Graph     string         `json:"graph"`
	Node      string         `json:"node,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// New builds an event with a generated ID and the current time.
func New(typ Type, threadID, graph, node string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      typ,
		ThreadID:  threadID,
		Graph:     graph,
		Node:      node,
		Timestamp: time.Now().UTC(),
	}
}

// WithError returns a copy of the event carrying err's message.
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDetail returns a copy of the event with a detail key set.
func (e Event) WithDetail(key string, value any) Event {
	detail := make(map[string]any, len(e.Detail)+1)
	for k, v := range e.Detail {
		detail[k] = v
	}
	detail[key] = value
	e.Detail = detail
	return e
}
