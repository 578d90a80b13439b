// Package spec defines the declarative workflow description model.
//
// A graph description is a YAML document with a closed set of top-level
// keys (version, name, state, nodes, edges, tools, checkpointer, config,
// data_files, loop_limits). Load parses it into an immutable GraphSpec,
// failing fast with a SchemaError on malformed structure: unknown keys,
// state field types outside the closed set, unrecognized node types.
//
// Load checks shape only. Semantic rules (dangling edge targets, per
// node-type field requirements, cycle coverage) belong to the lint
// package, which consumes the same GraphSpec.
package spec
