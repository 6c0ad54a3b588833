package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrQuotaExceeded signals that the provider refused further requests until
// its quota window resets. Wrap it in a QuotaError to carry the reset time.
var ErrQuotaExceeded = errors.New("provider quota exceeded")

// QuotaError reports quota exhaustion along with when the quota resets.
type QuotaError struct {
	ResetAt time.Time
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("provider quota exceeded, resets %s", e.ResetAt.Format(time.RFC3339))
}

func (e *QuotaError) Is(target error) bool { return target == ErrQuotaExceeded }

// RemoteSource is a tracked origin as reported by the provider.
type RemoteSource struct {
	ID        string
	Name      string
	Thumbnail string
}

// RemoteItem is one published media unit as reported by the provider.
type RemoteItem struct {
	ID          string
	SourceID    string
	Title       string
	Duration    int
	Thumbnail   string
	PublishedAt time.Time
	Live        bool
}

// Provider lists what the remote service knows about tracked sources.
// RecentItems returns items newest first, at most max of them, all published
// after the given cutoff.
type Provider interface {
	Subscriptions(ctx context.Context) ([]RemoteSource, error)
	RecentItems(ctx context.Context, sourceID string, max int, publishedAfter time.Time) ([]RemoteItem, error)
}
