package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeProvider(); err != nil {
		return err
	}
	if err := c.normalizeRelay(); err != nil {
		return err
	}
	c.normalizePipelines()
	c.normalizeScanner()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.DataDir, "trawlerd.sock")
	} else if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeProvider() error {
	var err error
	if strings.TrimSpace(c.Provider.TokenFile) == "" {
		c.Provider.TokenFile = defaultTokenFile
	}
	if c.Provider.TokenFile, err = expandPath(c.Provider.TokenFile); err != nil {
		return fmt.Errorf("provider.token_file: %w", err)
	}
	if strings.TrimSpace(c.Provider.BaseURL) == "" {
		c.Provider.BaseURL = defaultProviderBaseURL
	}
	c.Provider.BaseURL = strings.TrimRight(c.Provider.BaseURL, "/")
	if c.Provider.QuotaLimit <= 0 {
		c.Provider.QuotaLimit = defaultQuotaLimit
	}
	return nil
}

func (c *Config) normalizeRelay() error {
	if !c.Relay.Enabled {
		return nil
	}
	var err error
	if c.Relay.TargetDir, err = expandPath(c.Relay.TargetDir); err != nil {
		return fmt.Errorf("relay.target_dir: %w", err)
	}
	c.Relay.ShortsDir = strings.Trim(c.Relay.ShortsDir, "/")
	return nil
}

func (c *Config) normalizePipelines() {
	if c.Pipelines.RetrievalWorkers <= 0 {
		c.Pipelines.RetrievalWorkers = defaultRetrievalWorkers
	}
	if c.Pipelines.ShortRetrievalWorkers <= 0 {
		c.Pipelines.ShortRetrievalWorkers = defaultShortWorkers
	}
	if c.Pipelines.RelayWorkers <= 0 {
		c.Pipelines.RelayWorkers = defaultRelayWorkers
	}
	if c.Pipelines.ShortMaxDuration <= 0 {
		c.Pipelines.ShortMaxDuration = defaultShortMaxDuration
	}
	if c.Pipelines.MaxAttempts <= 0 {
		c.Pipelines.MaxAttempts = defaultMaxAttempts
	}
}

func (c *Config) normalizeScanner() {
	if c.Scanner.Interval <= 0 {
		c.Scanner.Interval = defaultScanInterval
	}
	if c.Scanner.LookbackDays <= 0 {
		c.Scanner.LookbackDays = defaultLookbackDays
	}
	if c.Scanner.MaxPerSource <= 0 {
		c.Scanner.MaxPerSource = defaultMaxPerSource
	}
	if c.Scanner.SourcesPerSecond <= 0 {
		c.Scanner.SourcesPerSecond = defaultSourcesPerSec
	}
	if c.Scanner.WatchdogInterval <= 0 {
		c.Scanner.WatchdogInterval = defaultWatchdogInterval
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
