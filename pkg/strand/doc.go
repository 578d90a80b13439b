// Package strand compiles declarative workflow descriptions into
// executable runtimes.
//
// A workflow is written as YAML: typed state fields, named nodes, and
// edges between them. Load (pkg/strand/spec) parses the description,
// Lint (pkg/strand/lint) validates it, and Compile turns it into an
// immutable Runtime:
//
//	g, err := spec.LoadFile("review.yaml")
//	rt, err := strand.Compile(g,
//	    strand.WithGenerator(gen),
//	    strand.WithCheckpointer(store),
//	)
//	result, err := rt.Run(ctx, "thread-1", strand.State{"topic": "go"})
//
// Execution walks the graph from the entry edge: conditional edges are
// evaluated in declaration order with the first match winning, router
// nodes route by value lookup, map nodes fan a nested node out over a
// list through a bounded worker pool, and list-valued edge targets run
// as simultaneous branches that rejoin by reducer merge rules.
//
// Interrupt nodes suspend the run: state is checkpointed under the
// thread id and Run returns an InterruptSignal instead of a final
// state. Resume binds the supplied value to the interrupt's resume key
// and continues where the run left off.
//
// Three ceilings guard against runaway workflows: recursion_limit
// bounds total transitions per invocation (fatal), loop_limits bounds
// per-node visits (the cyclic edge is skipped, not an error), and
// max_map_items caps fan-out width (the source is truncated with a
// warning).
package strand
