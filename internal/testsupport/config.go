package testsupport

import (
	"path/filepath"
	"testing"

	"trawler/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.SocketPath = filepath.Join(base, "trawlerd.sock")
	cfg.Relay.TargetDir = filepath.Join(base, "remote")
	cfg.Provider.TokenFile = filepath.Join(base, "token.json")

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithRelayEnabled turns on the relay pipeline for the test config.
func WithRelayEnabled() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Relay.Enabled = true
	}
}

// WithWorkers overrides the per-pipeline worker counts.
func WithWorkers(standard, short, relay int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipelines.RetrievalWorkers = standard
		cfg.Pipelines.ShortRetrievalWorkers = short
		cfg.Pipelines.RelayWorkers = relay
	}
}
