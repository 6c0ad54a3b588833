package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"trawler/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be reported missing")
	}
	if cfg.Pipelines.RetrievalWorkers != 2 {
		t.Fatalf("expected default retrieval workers, got %d", cfg.Pipelines.RetrievalWorkers)
	}
	if cfg.Pipelines.ShortMaxDuration != 60 {
		t.Fatalf("expected default shorts threshold, got %d", cfg.Pipelines.ShortMaxDuration)
	}
	if cfg.Scanner.Interval != 3600 {
		t.Fatalf("expected default scan interval, got %d", cfg.Scanner.Interval)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
download_dir = "` + filepath.Join(dir, "dl") + `"
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[pipelines]
retrieval_workers = 4
short_max_duration = 90

[relay]
enabled = true
target_dir = "` + filepath.Join(dir, "remote") + `"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %s to be found, got %s exists=%v", path, resolved, exists)
	}
	if cfg.Pipelines.RetrievalWorkers != 4 {
		t.Fatalf("expected 4 retrieval workers, got %d", cfg.Pipelines.RetrievalWorkers)
	}
	if cfg.Pipelines.ShortMaxDuration != 90 {
		t.Fatalf("expected shorts threshold 90, got %d", cfg.Pipelines.ShortMaxDuration)
	}
	if !cfg.Relay.Enabled {
		t.Fatal("expected relay enabled")
	}
	if cfg.Paths.SocketPath == "" {
		t.Fatal("expected socket path derived from data dir")
	}
}

func TestValidateRejectsRelayWithoutTarget(t *testing.T) {
	cfg := config.Default()
	cfg.Relay.Enabled = true
	cfg.Relay.TargetDir = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "relay.target_dir") {
		t.Fatalf("expected relay.target_dir error, got %v", err)
	}
}

func TestValidateRejectsBadLogFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported log format")
	}
}

func TestExpandTildeInPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[paths]\ndownload_dir = \"~/trawler-dl\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if strings.HasPrefix(cfg.Paths.DownloadDir, "~") {
		t.Fatalf("expected expanded path, got %s", cfg.Paths.DownloadDir)
	}
	if !filepath.IsAbs(cfg.Paths.DownloadDir) {
		t.Fatalf("expected absolute path, got %s", cfg.Paths.DownloadDir)
	}
}
