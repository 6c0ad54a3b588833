package main

import (
	"fmt"
	"log/slog"

	"trawler/internal/config"
	"trawler/internal/daemon"
	"trawler/internal/events"
	"trawler/internal/pipeline"
	"trawler/internal/recovery"
	"trawler/internal/scanner"
	"trawler/internal/services/share"
	"trawler/internal/services/youtube"
	"trawler/internal/services/ytdlp"
	"trawler/internal/store"
)

// buildDaemon wires the pipeline services together from configuration.
func buildDaemon(cfg *config.Config, st *store.Store, logger *slog.Logger) (*daemon.Daemon, error) {
	bus := events.NewBus()

	fetcher := ytdlp.NewFetcher(cfg, nil)

	var transferrer pipeline.Transferrer
	if cfg.Relay.Enabled {
		transferrer = share.NewTransferrer(cfg)
	}

	pipelines := pipeline.NewManager(cfg, st, logger, bus, fetcher, transferrer)
	watchdog := recovery.NewWatchdog(st, pipelines, logger, cfg.WatchdogInterval(), cfg.Pipelines.MaxAttempts)

	var sc *scanner.Scanner
	if cfg.Scanner.Enabled {
		provider, err := youtube.New(cfg, st)
		if err != nil {
			return nil, fmt.Errorf("build provider: %w", err)
		}
		sc = scanner.New(cfg, st, pipelines, provider, bus, logger)
	}

	return daemon.New(cfg, st, logger, pipelines, watchdog, sc, bus, nil)
}
