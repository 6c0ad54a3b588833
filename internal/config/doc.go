// Package config loads, normalizes, and validates the TOML configuration
// shared by the daemon and CLI. Load applies defaults first, then overlays
// the config file, expands ~ in every path field, and rejects values the
// daemon cannot run with.
package config
