package youtube

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trawler/internal/scanner"
)

const pageSize = 50

type thumbnails struct {
	Default struct {
		URL string `json:"url"`
	} `json:"default"`
	Medium struct {
		URL string `json:"url"`
	} `json:"medium"`
}

func (t thumbnails) best() string {
	if t.Medium.URL != "" {
		return t.Medium.URL
	}
	return t.Default.URL
}

// Subscriptions lists every channel the authenticated account follows.
func (c *Client) Subscriptions(ctx context.Context) ([]scanner.RemoteSource, error) {
	var sources []scanner.RemoteSource
	pageToken := ""
	for {
		if err := c.charge(ctx, 1); err != nil {
			return sources, err
		}

		params := url.Values{}
		params.Set("part", "snippet")
		params.Set("mine", "true")
		params.Set("maxResults", strconv.Itoa(pageSize))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page struct {
			NextPageToken string `json:"nextPageToken"`
			Items         []struct {
				Snippet struct {
					Title      string     `json:"title"`
					Thumbnails thumbnails `json:"thumbnails"`
					ResourceID struct {
						ChannelID string `json:"channelId"`
					} `json:"resourceId"`
				} `json:"snippet"`
			} `json:"items"`
		}
		if err := c.get(ctx, "subscriptions", params, &page); err != nil {
			return sources, err
		}

		for _, item := range page.Items {
			sources = append(sources, scanner.RemoteSource{
				ID:        item.Snippet.ResourceID.ChannelID,
				Name:      item.Snippet.Title,
				Thumbnail: item.Snippet.Thumbnails.best(),
			})
		}
		if page.NextPageToken == "" {
			return sources, nil
		}
		pageToken = page.NextPageToken
	}
}

// RecentItems lists a channel's newest uploads, newest first. Durations and
// live state come from a follow-up videos lookup.
func (c *Client) RecentItems(ctx context.Context, sourceID string, max int, publishedAfter time.Time) ([]scanner.RemoteItem, error) {
	if max <= 0 || max > pageSize {
		max = pageSize
	}
	if err := c.charge(ctx, 1); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("part", "snippet,contentDetails")
	params.Set("playlistId", uploadsPlaylistID(sourceID))
	params.Set("maxResults", strconv.Itoa(max))

	var page struct {
		Items []struct {
			Snippet struct {
				Title       string     `json:"title"`
				PublishedAt time.Time  `json:"publishedAt"`
				Thumbnails  thumbnails `json:"thumbnails"`
			} `json:"snippet"`
			ContentDetails struct {
				VideoID string `json:"videoId"`
			} `json:"contentDetails"`
		} `json:"items"`
	}
	if err := c.get(ctx, "playlistItems", params, &page); err != nil {
		return nil, err
	}

	items := make([]scanner.RemoteItem, 0, len(page.Items))
	ids := make([]string, 0, len(page.Items))
	for _, entry := range page.Items {
		if entry.Snippet.PublishedAt.Before(publishedAfter) {
			continue
		}
		items = append(items, scanner.RemoteItem{
			ID:          entry.ContentDetails.VideoID,
			SourceID:    sourceID,
			Title:       entry.Snippet.Title,
			Thumbnail:   entry.Snippet.Thumbnails.best(),
			PublishedAt: entry.Snippet.PublishedAt,
		})
		ids = append(ids, entry.ContentDetails.VideoID)
	}
	if len(items) == 0 {
		return nil, nil
	}

	details, err := c.videoDetails(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if d, ok := details[items[i].ID]; ok {
			items[i].Duration = d.duration
			items[i].Live = d.live
		}
	}
	return items, nil
}

type videoDetail struct {
	duration int
	live     bool
}

func (c *Client) videoDetails(ctx context.Context, ids []string) (map[string]videoDetail, error) {
	if err := c.charge(ctx, 1); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("part", "contentDetails,snippet")
	params.Set("id", strings.Join(ids, ","))

	var page struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				LiveBroadcastContent string `json:"liveBroadcastContent"`
			} `json:"snippet"`
			ContentDetails struct {
				Duration string `json:"duration"`
			} `json:"contentDetails"`
		} `json:"items"`
	}
	if err := c.get(ctx, "videos", params, &page); err != nil {
		return nil, err
	}

	details := make(map[string]videoDetail, len(page.Items))
	for _, item := range page.Items {
		seconds, err := parseISODuration(item.ContentDetails.Duration)
		if err != nil {
			return nil, fmt.Errorf("video %s: %w", item.ID, err)
		}
		details[item.ID] = videoDetail{
			duration: seconds,
			live:     item.Snippet.LiveBroadcastContent == "live" || item.Snippet.LiveBroadcastContent == "upcoming",
		}
	}
	return details, nil
}

// uploadsPlaylistID maps a channel ID to its uploads playlist. Channel IDs
// start with UC; the uploads playlist swaps that prefix for UU.
func uploadsPlaylistID(channelID string) string {
	if strings.HasPrefix(channelID, "UC") {
		return "UU" + channelID[2:]
	}
	return channelID
}

// parseISODuration converts an ISO 8601 duration like PT1H2M3S to seconds.
func parseISODuration(raw string) (int, error) {
	rest, ok := strings.CutPrefix(raw, "PT")
	if !ok {
		if strings.HasPrefix(raw, "P") {
			// Day-scale durations appear on very long streams.
			rest = raw[1:]
			return parseDurationParts(rest, true)
		}
		return 0, fmt.Errorf("malformed duration %q", raw)
	}
	return parseDurationParts(rest, false)
}

func parseDurationParts(rest string, allowDays bool) (int, error) {
	total := 0
	number := ""
	for _, r := range rest {
		if r >= '0' && r <= '9' {
			number += string(r)
			continue
		}
		if r == 'T' {
			continue
		}
		value, err := strconv.Atoi(number)
		if err != nil {
			return 0, fmt.Errorf("malformed duration component %q", number)
		}
		number = ""
		switch r {
		case 'D':
			if !allowDays {
				return 0, fmt.Errorf("unexpected duration unit %q", r)
			}
			total += value * 86400
		case 'H':
			total += value * 3600
		case 'M':
			total += value * 60
		case 'S':
			total += value
		default:
			return 0, fmt.Errorf("unexpected duration unit %q", r)
		}
	}
	return total, nil
}

var _ scanner.Provider = (*Client)(nil)
