package pipeline

import (
	"context"
	"fmt"

	"trawler/internal/store"
)

// Kind names a worker pool.
type Kind string

const (
	KindStandard Kind = "retrieval-standard"
	KindShort    Kind = "retrieval-short"
	KindRelay    Kind = "relay"
)

// Kinds lists every worker pool in routing order.
var Kinds = []Kind{KindStandard, KindShort, KindRelay}

// ParseKind maps a pipeline name to its Kind.
func ParseKind(name string) (Kind, error) {
	switch Kind(name) {
	case KindStandard, KindShort, KindRelay:
		return Kind(name), nil
	}
	return "", fmt.Errorf("unknown pipeline %q", name)
}

// ProgressFunc reports phase progress. Percent is 0-100; bytes is the count
// transferred so far and total the expected size, zero when unknown.
type ProgressFunc func(percent float64, bytes, total int64)

// FetchResult describes a completed retrieval.
type FetchResult struct {
	LocalPath string
	Size      int64
}

// Fetcher retrieves an item's media to local disk.
type Fetcher interface {
	Fetch(ctx context.Context, item *store.Item, progress ProgressFunc) (FetchResult, error)
}

// RelayResult describes a completed relay.
type RelayResult struct {
	RemoteRef string
}

// Transferrer moves a retrieved file to remote storage.
type Transferrer interface {
	Transfer(ctx context.Context, item *store.Item, progress ProgressFunc) (RelayResult, error)
}

// RetrievalKind routes an item to the standard or short pool based on its
// duration. Items at or under the threshold count as short; an unknown
// duration routes standard.
func RetrievalKind(item *store.Item, shortMaxDuration int) Kind {
	if item.Duration > 0 && item.Duration <= shortMaxDuration {
		return KindShort
	}
	return KindStandard
}
