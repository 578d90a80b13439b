package config

import "time"

// Checkpoint backend names recognized in runner configuration.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Settings holds the runner-level keys the engine and CLI recognize,
// extracted from a Config with defaults applied. Graph-level safety
// ceilings (recursion_limit, max_map_items) live in the workflow file
// itself; Settings covers everything that belongs to the environment a
// workflow runs in rather than to the workflow.
type Settings struct {
	// CheckpointBackend selects the store used for interrupt/resume.
	// One of BackendMemory or BackendSQLite.
	CheckpointBackend string

	// CheckpointPath is the sqlite database path. Ignored for memory.
	CheckpointPath string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// LogFormat is text or json.
	LogFormat string

	// NodeTimeout bounds a single node execution. Zero means no bound.
	NodeTimeout time.Duration

	// MapWorkers overrides the workflow's fan-out parallelism when
	// positive.
	MapWorkers int
}

// SettingsFrom extracts recognized keys from cfg with defaults applied.
func SettingsFrom(cfg Config) Settings {
	return Settings{
		CheckpointBackend: cfg.String("checkpoint_backend", BackendMemory),
		CheckpointPath:    cfg.String("checkpoint_path", "strand.db"),
		LogLevel:          cfg.String("log_level", "info"),
		LogFormat:         cfg.String("log_format", "text"),
		NodeTimeout:       cfg.Duration("node_timeout", 0),
		MapWorkers:        cfg.Int("map_workers", 0),
	}
}
