package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	DownloadDir string `toml:"download_dir"`
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	SocketPath  string `toml:"socket_path"`
}

// Pipelines contains worker-pool sizing and routing thresholds.
type Pipelines struct {
	RetrievalWorkers      int `toml:"retrieval_workers"`
	ShortRetrievalWorkers int `toml:"short_retrieval_workers"`
	RelayWorkers          int `toml:"relay_workers"`
	ShortMaxDuration      int `toml:"short_max_duration"`
	MaxAttempts           int `toml:"max_attempts"`
}

// Scanner contains incremental discovery settings.
type Scanner struct {
	Enabled          bool    `toml:"enabled"`
	Interval         int     `toml:"interval"`
	LookbackDays     int     `toml:"lookback_days"`
	MaxPerSource     int     `toml:"max_per_source"`
	SourcesPerSecond float64 `toml:"sources_per_second"`
	WatchdogInterval int     `toml:"watchdog_interval"`
}

// Provider contains discovery-provider credentials and quota settings.
type Provider struct {
	TokenFile  string `toml:"token_file"`
	BaseURL    string `toml:"base_url"`
	QuotaLimit int    `toml:"quota_limit"`
}

// Retrieval contains settings for the fetch collaborator.
type Retrieval struct {
	Quality       string `toml:"quality"`
	SubtitleLangs string `toml:"subtitle_langs"`
	Timeout       int    `toml:"timeout"`
}

// Relay contains settings for the transfer collaborator.
type Relay struct {
	Enabled          bool   `toml:"enabled"`
	TargetDir        string `toml:"target_dir"`
	ShortsDir        string `toml:"shorts_dir"`
	DeleteAfterRelay bool   `toml:"delete_after_relay"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Retrievals     bool   `toml:"retrievals"`
	Relays         bool   `toml:"relays"`
	Scans          bool   `toml:"scans"`
	Errors         bool   `toml:"errors"`
}

// Logging contains log output settings.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Trawler.
//
// Configuration sections by subsystem:
//   - Paths: storage directories and the daemon socket
//   - Pipelines: worker counts, shorts threshold, retry ceiling
//   - Scanner: discovery cadence, lookback window, provider pacing
//   - Provider: API credentials and daily quota budget
//   - Retrieval: fetch quality and timeouts
//   - Relay: remote share target and post-relay cleanup
//   - Notifications: ntfy push settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pipelines     Pipelines     `toml:"pipelines"`
	Scanner       Scanner       `toml:"scanner"`
	Provider      Provider      `toml:"provider"`
	Retrieval     Retrieval     `toml:"retrieval"`
	Relay         Relay         `toml:"relay"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/trawler/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("trawler.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
// The relay target is created on a best-effort basis so the daemon can run
// when the remote share is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DownloadDir, c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Relay.Enabled && strings.TrimSpace(c.Relay.TargetDir) != "" {
		_ = os.MkdirAll(c.Relay.TargetDir, 0o755)
	}
	return nil
}

// ScanInterval returns the auto-scan cadence as a duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Scanner.Interval) * time.Second
}

// WatchdogInterval returns the orphan-watchdog cadence as a duration.
func (c *Config) WatchdogInterval() time.Duration {
	return time.Duration(c.Scanner.WatchdogInterval) * time.Second
}

// LookbackWindow returns the discovery lookback window as a duration.
func (c *Config) LookbackWindow() time.Duration {
	return time.Duration(c.Scanner.LookbackDays) * 24 * time.Hour
}

// DatabasePath returns the location of the item database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "trawler.db")
}

// ExpandPath resolves a user-supplied path, expanding a leading tilde and
// making it absolute.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
