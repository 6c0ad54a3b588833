package config

const (
	defaultDownloadDir      = "~/.local/share/trawler/downloads"
	defaultDataDir          = "~/.local/share/trawler/data"
	defaultLogDir           = "~/.local/share/trawler/logs"
	defaultTokenFile        = "~/.config/trawler/token.json"
	defaultProviderBaseURL  = "https://www.googleapis.com/youtube/v3"
	defaultQuotaLimit       = 10000
	defaultRetrievalWorkers = 2
	defaultShortWorkers     = 2
	defaultRelayWorkers     = 1
	defaultShortMaxDuration = 60
	defaultMaxAttempts      = 3
	defaultScanInterval     = 3600
	defaultLookbackDays     = 7
	defaultMaxPerSource     = 50
	defaultSourcesPerSec    = 5.0
	defaultWatchdogInterval = 300
	defaultQuality          = "1080p"
	defaultSubtitleLangs    = "en"
	defaultRetrievalTimeout = 3600
	defaultNotifyTimeout    = 10
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			DataDir:     defaultDataDir,
			LogDir:      defaultLogDir,
		},
		Pipelines: Pipelines{
			RetrievalWorkers:      defaultRetrievalWorkers,
			ShortRetrievalWorkers: defaultShortWorkers,
			RelayWorkers:          defaultRelayWorkers,
			ShortMaxDuration:      defaultShortMaxDuration,
			MaxAttempts:           defaultMaxAttempts,
		},
		Scanner: Scanner{
			Enabled:          true,
			Interval:         defaultScanInterval,
			LookbackDays:     defaultLookbackDays,
			MaxPerSource:     defaultMaxPerSource,
			SourcesPerSecond: defaultSourcesPerSec,
			WatchdogInterval: defaultWatchdogInterval,
		},
		Provider: Provider{
			TokenFile:  defaultTokenFile,
			BaseURL:    defaultProviderBaseURL,
			QuotaLimit: defaultQuotaLimit,
		},
		Retrieval: Retrieval{
			Quality:       defaultQuality,
			SubtitleLangs: defaultSubtitleLangs,
			Timeout:       defaultRetrievalTimeout,
		},
		Relay: Relay{
			ShortsDir: "shorts",
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Retrievals:     true,
			Relays:         true,
			Scans:          false,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
