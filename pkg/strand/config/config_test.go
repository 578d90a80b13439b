package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfig_Accessors checks typed extraction with defaults.
func TestConfig_Accessors(t *testing.T) {
	cfg := New(map[string]any{
		"name":      "strand",
		"enabled":   true,
		"workers":   4,
		"big":       int64(7),
		"whole":     float64(3),
		"frac":      2.5,
		"timeout":   "30s",
		"grace":     5,
		"tags":      []any{"a", "b"},
		"mixed":     []any{"a", 1},
		"typed":     []string{"x"},
		"wrongtype": 42,
	})

	assert.Equal(t, "strand", cfg.String("name", "fallback"))
	assert.Equal(t, "fallback", cfg.String("absent", "fallback"))
	assert.Equal(t, "fallback", cfg.String("wrongtype", "fallback"))

	assert.True(t, cfg.Bool("enabled", false))
	assert.True(t, cfg.Bool("absent", true))
	assert.False(t, cfg.Bool("wrongtype", false))

	assert.Equal(t, 4, cfg.Int("workers", 0))
	assert.Equal(t, 7, cfg.Int("big", 0))
	assert.Equal(t, 3, cfg.Int("whole", 0))
	assert.Equal(t, 9, cfg.Int("frac", 9)) // fractional float rejected
	assert.Equal(t, 9, cfg.Int("absent", 9))

	assert.Equal(t, 2.5, cfg.Float("frac", 0))
	assert.Equal(t, 4.0, cfg.Float("workers", 0))
	assert.Equal(t, 1.5, cfg.Float("absent", 1.5))

	assert.Equal(t, 30*time.Second, cfg.Duration("timeout", 0))
	assert.Equal(t, 5*time.Second, cfg.Duration("grace", 0)) // bare numbers are seconds
	assert.Equal(t, time.Minute, cfg.Duration("absent", time.Minute))

	assert.Equal(t, []string{"a", "b"}, cfg.StringSlice("tags", nil))
	assert.Equal(t, []string{"x"}, cfg.StringSlice("typed", nil))
	assert.Equal(t, []string{"d"}, cfg.StringSlice("mixed", []string{"d"}))

	assert.Equal(t, 42, cfg.Any("wrongtype", nil))
	assert.Nil(t, cfg.Any("absent", nil))

	assert.True(t, cfg.Has("name"))
	assert.False(t, cfg.Has("absent"))
}

// TestConfig_NilData returns a usable empty config.
func TestConfig_NilData(t *testing.T) {
	cfg := New(nil)
	assert.Equal(t, "d", cfg.String("k", "d"))
	assert.NotNil(t, cfg.Raw())
}

// TestConfig_Merge overlays later keys over earlier ones.
func TestConfig_Merge(t *testing.T) {
	base := New(map[string]any{"a": 1, "b": 1})
	over := New(map[string]any{"b": 2, "c": 3})

	merged := base.Merge(over)
	assert.Equal(t, 1, merged.Int("a", 0))
	assert.Equal(t, 2, merged.Int("b", 0))
	assert.Equal(t, 3, merged.Int("c", 0))

	// Originals are untouched.
	assert.Equal(t, 1, base.Int("b", 0))
}

// TestSettingsFrom applies defaults for everything the config omits.
func TestSettingsFrom(t *testing.T) {
	s := SettingsFrom(New(nil))
	assert.Equal(t, BackendMemory, s.CheckpointBackend)
	assert.Equal(t, "strand.db", s.CheckpointPath)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, "text", s.LogFormat)
	assert.Equal(t, time.Duration(0), s.NodeTimeout)
	assert.Equal(t, 0, s.MapWorkers)

	s = SettingsFrom(New(map[string]any{
		"checkpoint_backend": BackendSQLite,
		"checkpoint_path":    "/var/lib/strand/cp.db",
		"log_level":          "debug",
		"log_format":         "json",
		"node_timeout":       "45s",
		"map_workers":        8,
	}))
	assert.Equal(t, BackendSQLite, s.CheckpointBackend)
	assert.Equal(t, "/var/lib/strand/cp.db", s.CheckpointPath)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, "json", s.LogFormat)
	assert.Equal(t, 45*time.Second, s.NodeTimeout)
	assert.Equal(t, 8, s.MapWorkers)
}

// TestFromFile detects format by extension.
func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("log_level: warn\nmap_workers: 2\n"), 0o644))
	cfg, err := FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.String("log_level", ""))
	assert.Equal(t, 2, cfg.Int("map_workers", 0))

	jsonPath := filepath.Join(dir, "cfg.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"log_format":"json"}`), 0o644))
	cfg, err = FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.String("log_format", ""))

	_, err = FromFile(filepath.Join(dir, "cfg.toml"))
	assert.Error(t, err)
	_, err = FromFile(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}

// TestFromYAML_Invalid rejects malformed documents.
func TestFromYAML_Invalid(t *testing.T) {
	_, err := FromYAML([]byte("- a sequence, not a mapping"))
	assert.Error(t, err)
	_, err = FromJSON([]byte("{"))
	assert.Error(t, err)
}
