// Package notifications delivers push notifications over ntfy for item and
// scan lifecycle events.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"trawler/internal/config"
)

const userAgent = "Trawler/0.1.0"

// Service defines the notification surface exposed to the daemon.
type Service interface {
	NotifyRetrievalCompleted(ctx context.Context, title string, size int64) error
	NotifyRetrievalFailed(ctx context.Context, title, reason string) error
	NotifyRelayCompleted(ctx context.Context, title, remoteRef string) error
	NotifyRelayFailed(ctx context.Context, title, reason string) error
	NotifyScanCompleted(ctx context.Context, summary string) error
	NotifyError(ctx context.Context, err error, detail string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRetrievalCompleted(ctx context.Context, title string, size int64) error {
	data := payload{
		title:   "Trawler - Retrieved",
		message: fmt.Sprintf("Retrieved: %s (%s)", strings.TrimSpace(title), humanize.Bytes(uint64(size))),
		tags:    []string{"trawler", "retrieval", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRetrievalFailed(ctx context.Context, title, reason string) error {
	data := payload{
		title:    "Trawler - Retrieval Failed",
		message:  fmt.Sprintf("Retrieval failed: %s\n%s", strings.TrimSpace(title), strings.TrimSpace(reason)),
		tags:     []string{"trawler", "retrieval", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRelayCompleted(ctx context.Context, title, remoteRef string) error {
	data := payload{
		title:   "Trawler - Relayed",
		message: fmt.Sprintf("Relayed: %s -> %s", strings.TrimSpace(title), strings.TrimSpace(remoteRef)),
		tags:    []string{"trawler", "relay", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRelayFailed(ctx context.Context, title, reason string) error {
	data := payload{
		title:    "Trawler - Relay Failed",
		message:  fmt.Sprintf("Relay failed: %s\n%s", strings.TrimSpace(title), strings.TrimSpace(reason)),
		tags:     []string{"trawler", "relay", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyScanCompleted(ctx context.Context, summary string) error {
	data := payload{
		title:   "Trawler - Scan Finished",
		message: strings.TrimSpace(summary),
		tags:    []string{"trawler", "scan", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, detail string) error {
	message := "An error occurred"
	if err != nil {
		message = err.Error()
	}
	if detail = strings.TrimSpace(detail); detail != "" {
		message = fmt.Sprintf("%s: %s", detail, message)
	}
	data := payload{
		title:    "Trawler - Error",
		message:  message,
		tags:     []string{"trawler", "error"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:   "Trawler - Test",
		message: "Notifications are working.",
		tags:    []string{"trawler", "test"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRetrievalCompleted(context.Context, string, int64) error { return nil }
func (noopService) NotifyRetrievalFailed(context.Context, string, string) error   { return nil }
func (noopService) NotifyRelayCompleted(context.Context, string, string) error    { return nil }
func (noopService) NotifyRelayFailed(context.Context, string, string) error       { return nil }
func (noopService) NotifyScanCompleted(context.Context, string) error             { return nil }
func (noopService) NotifyError(context.Context, error, string) error              { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
