package ytdlp

import (
	"context"
	"time"

	"trawler/internal/config"
	"trawler/internal/pipeline"
	"trawler/internal/store"
)

// Fetcher adapts the yt-dlp client to the retrieval pipelines.
type Fetcher struct {
	client  Client
	destDir string
	timeout time.Duration
}

// NewFetcher builds a Fetcher from configuration. Pass a nil client to use
// the default CLI wrapper.
func NewFetcher(cfg *config.Config, client Client) *Fetcher {
	if client == nil {
		client = NewCLI(
			WithQuality(cfg.Retrieval.Quality),
			WithSubtitles(cfg.Retrieval.SubtitleLangs),
		)
	}
	return &Fetcher{
		client:  client,
		destDir: cfg.Paths.DownloadDir,
		timeout: time.Duration(cfg.Retrieval.Timeout) * time.Second,
	}
}

// Fetch downloads the item and reports progress to the tracker.
func (f *Fetcher) Fetch(ctx context.Context, item *store.Item, progress pipeline.ProgressFunc) (pipeline.FetchResult, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	result, err := f.client.Download(ctx, item.ExternalID, f.destDir, func(update ProgressUpdate) {
		if progress != nil {
			progress(update.Percent, update.Bytes, update.Total)
		}
	})
	if err != nil {
		return pipeline.FetchResult{}, err
	}
	return pipeline.FetchResult{LocalPath: result.Path, Size: result.Size}, nil
}

var _ pipeline.Fetcher = (*Fetcher)(nil)
