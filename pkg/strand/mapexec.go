package strand

import (
	"context"
	"fmt"
	"sync"

	"github.com/strandworks/strand/pkg/strand/event"
	"github.com/strandworks/strand/pkg/strand/observability"
)

// execMap fans the nested node out over a list-valued state field.
//
// Items execute on isolated state clones through a bounded worker pool.
// Results land in the collect field ordered by source index, never by
// completion order. A source longer than the item cap is truncated to
// the first N items with a warning, not an error. Failure or
// cancellation of any item commits nothing.
func (r *Runtime) execMap(ctx context.Context, rc *runCtx, node *compiledNode, state State) (State, error) {
	source, ok := state.GetList(node.spec.Over)
	if !ok {
		if node.spec.OnError == "skip" {
			return state, nil
		}
		return state, &MapSourceTypeError{
			Node:   node.id,
			Field:  node.spec.Over,
			Actual: fmt.Sprintf("%T", state[node.spec.Over]),
		}
	}

	limit := r.graph.MaxMapItems()
	if node.spec.MaxItems != nil && *node.spec.MaxItems > 0 {
		limit = *node.spec.MaxItems
	}
	truncated := len(source) > limit
	if truncated {
		observability.LogMapTruncated(r.opts.logger, node.id, len(source), limit)
		r.publish(event.New(event.MapTruncated, rc.threadID, r.graph.Name, node.id).
			WithDetail("source_len", len(source)).
			WithDetail("max_items", limit))
		source = source[:limit]
	}
	r.opts.metrics.RecordMapFanOut(ctx, node.id, len(source), truncated)

	if len(source) == 0 {
		state[node.spec.Collect] = []any{}
		return state, nil
	}

	workers := r.graph.MapWorkers()
	if r.opts.mapWorkers > 0 {
		workers = r.opts.mapWorkers
	}
	if workers > len(source) {
		workers = len(source)
	}

	results := make([]any, len(source))
	itemCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	indexes := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				result, err := r.execMapItem(itemCtx, rc, node, state, source[i], i)
				if err != nil {
					fail(err)
					return
				}
				results[i] = result
			}
		}()
	}

dispatch:
	for i := range source {
		select {
		case indexes <- i:
		case <-itemCtx.Done():
			break dispatch
		}
	}
	close(indexes)
	wg.Wait()

	if firstErr != nil {
		return state, firstErr
	}
	if err := ctx.Err(); err != nil {
		return state, &CancellationError{Node: node.id, Cause: err}
	}

	state[node.spec.Collect] = results
	return state, nil
}

// execMapItem runs the nested node for one source element on a state
// clone with the element bound to the `as` field.
func (r *Runtime) execMapItem(ctx context.Context, rc *runCtx, node *compiledNode, state State, item any, index int) (any, error) {
	select {
	case <-ctx.Done():
		return nil, &CancellationError{Node: node.id, Cause: ctx.Err()}
	default:
	}

	clone, err := state.Clone()
	if err != nil {
		return nil, &NodeExecutionError{Node: node.id, Op: "clone state", Err: err}
	}
	clone[node.spec.As] = item

	itemCtx, span := r.opts.spans.StartMapItemSpan(ctx, node.id, index)
	result, intr, err := r.dispatchSafe(itemCtx, rc, node.item, clone)
	r.opts.spans.EndSpanWithError(span, err)
	if err != nil {
		return nil, err
	}
	if intr != nil {
		return nil, &NodeExecutionError{
			Node: node.id,
			Op:   "map item",
			Err:  fmt.Errorf("interrupt inside a fan-out item is not supported"),
		}
	}

	out := outputKey(node.item.spec)
	if v, ok := result[out]; ok {
		return v, nil
	}
	return result[node.spec.As], nil
}
