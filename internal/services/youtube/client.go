// Package youtube implements the discovery provider against the YouTube
// Data API v3. Requests are authenticated with an OAuth2 token loaded from
// disk, and every call is charged against the configured daily quota budget
// so the scanner backs off before the API starts refusing.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2"

	"trawler/internal/config"
	"trawler/internal/scanner"
	"trawler/internal/store"
)

const defaultBaseURL = "https://www.googleapis.com/youtube/v3"

// quotaUsageKey is the app_state key tracking units spent today.
const quotaUsageKey = "provider.quota_usage"

// pacificZone anchors the provider's daily quota window.
const pacificZone = "America/Los_Angeles"

// Client talks to the YouTube Data API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *store.Store
	quotaLimit int
}

// New builds a Client from configuration. The OAuth2 token is read from the
// configured token file; refreshes are handled by the token source when the
// file carries a refresh token and client credentials.
func New(cfg *config.Config, st *store.Store) (*Client, error) {
	token, err := loadToken(cfg.Provider.TokenFile)
	if err != nil {
		return nil, err
	}
	baseURL := cfg.Provider.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(token)),
		store:      st,
		quotaLimit: cfg.Provider.QuotaLimit,
	}, nil
}

// NewWithHTTPClient builds a Client over a caller-supplied HTTP client,
// used by tests against httptest servers.
func NewWithHTTPClient(baseURL string, httpClient *http.Client, st *store.Store, quotaLimit int) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		store:      st,
		quotaLimit: quotaLimit,
	}
}

func loadToken(path string) (*oauth2.Token, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("parse provider token: %w", err)
	}
	return &token, nil
}

type quotaUsage struct {
	Day  string `json:"day"`
	Used int    `json:"used"`
}

// charge records units against today's quota and fails with a QuotaError
// once the budget is exhausted.
func (c *Client) charge(ctx context.Context, units int) error {
	if c.quotaLimit <= 0 || c.store == nil {
		return nil
	}
	loc, err := time.LoadLocation(pacificZone)
	if err != nil {
		return fmt.Errorf("load quota timezone: %w", err)
	}
	today := time.Now().In(loc).Format(time.DateOnly)

	var usage quotaUsage
	if _, err := c.store.GetStateJSON(ctx, quotaUsageKey, &usage); err != nil {
		return err
	}
	if usage.Day != today {
		usage = quotaUsage{Day: today}
	}
	usage.Used += units
	if err := c.store.PutStateJSON(ctx, quotaUsageKey, usage); err != nil {
		return err
	}
	if usage.Used > c.quotaLimit {
		return &scanner.QuotaError{ResetAt: nextQuotaReset(time.Now())}
	}
	return nil
}

// nextQuotaReset returns the next midnight in the provider's quota timezone.
func nextQuotaReset(now time.Time) time.Time {
	loc, err := time.LoadLocation(pacificZone)
	if err != nil {
		return now.UTC().Add(time.Hour)
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.AddDate(0, 0, 1).UTC()
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

func (c *Client) get(ctx context.Context, resource string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+resource+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", resource, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", resource, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if err != nil {
		return fmt.Errorf("read %s response: %w", resource, err)
	}

	if resp.StatusCode != http.StatusOK {
		var detail apiError
		_ = json.Unmarshal(body, &detail)
		for _, e := range detail.Error.Errors {
			if e.Reason == "quotaExceeded" || e.Reason == "dailyLimitExceeded" {
				return &scanner.QuotaError{ResetAt: nextQuotaReset(time.Now())}
			}
		}
		if detail.Error.Message != "" {
			return fmt.Errorf("%s returned %d: %s", resource, resp.StatusCode, detail.Error.Message)
		}
		return fmt.Errorf("%s returned %d", resource, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", resource, err)
	}
	return nil
}
