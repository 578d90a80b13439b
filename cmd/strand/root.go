package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/strandworks/strand/pkg/strand/checkpoint"
	"github.com/strandworks/strand/pkg/strand/config"
	"github.com/strandworks/strand/pkg/strand/spec"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "strand",
	Short: "Compile, lint, and run declarative workflow graphs",
	Long: `strand works with YAML workflow descriptions: typed state,
named nodes, and edges between them.

  strand lint review.yaml
  strand run review.yaml --thread t1 --set topic=go
  strand resume review.yaml --thread t1 --input approved`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "runner configuration file (yaml or json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log run progress")

	rootCmd.AddCommand(lintCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
}

// loadSettings reads the runner configuration file, if any.
func loadSettings() (config.Settings, error) {
	if configPath == "" {
		return config.SettingsFrom(config.New(nil)), nil
	}
	cfg, err := config.FromFile(configPath)
	if err != nil {
		return config.Settings{}, err
	}
	return config.SettingsFrom(cfg), nil
}

// newLogger builds the slog logger the runner threads into the engine.
func newLogger(settings config.Settings) *slog.Logger {
	if !verbose {
		return nil
	}

	level := slog.LevelInfo
	switch settings.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if settings.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openStore builds the checkpoint store for a run. A checkpointer block
// declared in the workflow wins over the runner configuration.
func openStore(settings config.Settings, decl *spec.CheckpointerSpec) (checkpoint.Store, error) {
	backend, path := settings.CheckpointBackend, settings.CheckpointPath
	if decl != nil && decl.Type != "" {
		backend = decl.Type
		if decl.Path != "" {
			path = decl.Path
		}
	}

	switch backend {
	case config.BackendMemory:
		return checkpoint.NewMemoryStore(), nil
	case config.BackendSQLite:
		return checkpoint.NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", backend)
	}
}
