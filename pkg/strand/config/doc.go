// Package config provides typed access to workflow configuration values.
//
// A workflow's config block is an open map: authors can attach arbitrary
// keys alongside the engine-recognized ones. Config wraps that map with
// accessors that coerce loosely typed YAML/JSON scalars into the Go types
// callers want, falling back to a default on any mismatch.
//
// Settings extracts the engine-recognized keys into a fixed struct with
// defaults applied, so the runtime never consults the raw map directly.
package config
