package testsupport

import (
	"path/filepath"
	"testing"

	"xtap/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.ControlSocket = filepath.Join(base, "control.sock")
	cfg.Ingest.Bind = "127.0.0.1:0"
	cfg.Transport.HostSocket = filepath.Join(base, "host.sock")

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithBatch overrides flush scheduling parameters.
func WithBatch(size, flushInterval int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Batch.Size = size
		cfg.Batch.FlushInterval = flushInterval
	}
}

// WithDedupCapacity overrides the seen-identifier bound.
func WithDedupCapacity(capacity int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Dedup.Capacity = capacity
	}
}

// WithCaptureDisabled starts the pipeline with capture off.
func WithCaptureDisabled() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Capture.Enabled = false
	}
}
