package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipelines(); err != nil {
		return err
	}
	if err := c.validateScanner(); err != nil {
		return err
	}
	if err := c.validateRelay(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DownloadDir == "" {
		return errors.New("paths.download_dir must be set")
	}
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validatePipelines() error {
	if c.Pipelines.RetrievalWorkers > 16 {
		return errors.New("pipelines.retrieval_workers must be 16 or fewer")
	}
	if c.Pipelines.ShortRetrievalWorkers > 16 {
		return errors.New("pipelines.short_retrieval_workers must be 16 or fewer")
	}
	if c.Pipelines.RelayWorkers > 8 {
		return errors.New("pipelines.relay_workers must be 8 or fewer")
	}
	return nil
}

func (c *Config) validateScanner() error {
	if c.Scanner.Interval < 60 {
		return fmt.Errorf("scanner.interval must be at least 60 seconds, got %d", c.Scanner.Interval)
	}
	if c.Scanner.MaxPerSource > 50 {
		return errors.New("scanner.max_per_source must be 50 or fewer (provider page limit)")
	}
	return nil
}

func (c *Config) validateRelay() error {
	if c.Relay.Enabled && c.Relay.TargetDir == "" {
		return errors.New("relay.target_dir must be set when relay is enabled")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
