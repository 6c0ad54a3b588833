package youtube_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trawler/internal/scanner"
	"trawler/internal/services/youtube"
	"trawler/internal/testsupport"
)

func TestSubscriptionsPaginates(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/subscriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		calls++
		if r.URL.Query().Get("pageToken") == "" {
			fmt.Fprint(w, `{
				"nextPageToken": "page2",
				"items": [{"snippet": {"title": "Channel A", "resourceId": {"channelId": "UCaaa"}}}]
			}`)
			return
		}
		fmt.Fprint(w, `{
			"items": [{"snippet": {"title": "Channel B", "resourceId": {"channelId": "UCbbb"}}}]
		}`)
	}))
	defer server.Close()

	client := youtube.NewWithHTTPClient(server.URL, server.Client(), nil, 0)
	sources, err := client.Subscriptions(context.Background())
	if err != nil {
		t.Fatalf("Subscriptions failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 pages fetched, got %d", calls)
	}
	if len(sources) != 2 || sources[0].ID != "UCaaa" || sources[1].Name != "Channel B" {
		t.Fatalf("unexpected sources: %#v", sources)
	}
}

func TestRecentItemsMapsDurationAndLiveState(t *testing.T) {
	published := time.Now().UTC().Add(-2 * time.Hour).Format(time.RFC3339)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/playlistItems":
			if got := r.URL.Query().Get("playlistId"); got != "UUxyz" {
				t.Errorf("expected uploads playlist UUxyz, got %s", got)
			}
			fmt.Fprintf(w, `{
				"items": [
					{"snippet": {"title": "Newest", "publishedAt": %q}, "contentDetails": {"videoId": "vid-new"}},
					{"snippet": {"title": "Live Now", "publishedAt": %q}, "contentDetails": {"videoId": "vid-live"}},
					{"snippet": {"title": "Ancient", "publishedAt": "2001-01-01T00:00:00Z"}, "contentDetails": {"videoId": "vid-old"}}
				]
			}`, published, published)
		case "/videos":
			fmt.Fprint(w, `{
				"items": [
					{"id": "vid-new", "snippet": {"liveBroadcastContent": "none"}, "contentDetails": {"duration": "PT1H2M3S"}},
					{"id": "vid-live", "snippet": {"liveBroadcastContent": "live"}, "contentDetails": {"duration": "PT0S"}}
				]
			}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := youtube.NewWithHTTPClient(server.URL, server.Client(), nil, 0)
	items, err := client.RecentItems(context.Background(), "UCxyz", 50, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("RecentItems failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected old item filtered, got %d items", len(items))
	}
	if items[0].ID != "vid-new" || items[0].Duration != 3723 || items[0].Live {
		t.Fatalf("unexpected first item: %#v", items[0])
	}
	if !items[1].Live {
		t.Fatal("expected vid-live flagged live")
	}
}

func TestQuotaRefusalBecomesQuotaError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error": {"code": 403, "message": "quota exceeded", "errors": [{"reason": "quotaExceeded"}]}}`)
	}))
	defer server.Close()

	client := youtube.NewWithHTTPClient(server.URL, server.Client(), nil, 0)
	_, err := client.Subscriptions(context.Background())
	if !errors.Is(err, scanner.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	var qe *scanner.QuotaError
	if !errors.As(err, &qe) || !qe.ResetAt.After(time.Now()) {
		t.Fatalf("expected future reset time, got %v", err)
	}
}

func TestLocalQuotaBudgetStopsRequests(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, `{"items": []}`)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	client := youtube.NewWithHTTPClient(server.URL, server.Client(), st, 2)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := client.RecentItems(ctx, "UCone", 10, time.Time{}); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	// Budget of 2 units is spent; the next call must fail locally.
	_, err := client.RecentItems(ctx, "UCone", 10, time.Time{})
	if !errors.Is(err, scanner.ErrQuotaExceeded) {
		t.Fatalf("expected local quota exhaustion, got %v", err)
	}
	if requests != 2 {
		t.Fatalf("expected no request past the budget, got %d", requests)
	}
}

func TestAPIErrorsCarryDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": {"code": 400, "message": "invalid playlist", "errors": [{"reason": "playlistNotFound"}]}}`)
	}))
	defer server.Close()

	client := youtube.NewWithHTTPClient(server.URL, server.Client(), nil, 0)
	_, err := client.RecentItems(context.Background(), "UCbad", 10, time.Time{})
	if err == nil || errors.Is(err, scanner.ErrQuotaExceeded) {
		t.Fatalf("expected plain API error, got %v", err)
	}
}
