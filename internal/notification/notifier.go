// Package notification delivers operational alerts about messages.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Alert describes one message that needs operator attention.
type Alert struct {
	Kind              string        `json:"kind"`
	MessageID         uuid.UUID     `json:"message_id"`
	ProviderReference string        `json:"provider_reference"`
	Recipient         string        `json:"recipient"`
	SentAt            time.Time     `json:"sent_at"`
	Waiting           time.Duration `json:"waiting_ns"`
}

// KindOverdueDLR is raised when a SENT message has no receipt past the timeout.
const KindOverdueDLR = "overdue_dlr"

// Notifier sends alerts to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "alerts")}
}

func (n *LogNotifier) Notify(ctx context.Context, a Alert) error {
	n.logger.WarnContext(ctx, "ALERT: delivery receipt overdue",
		"kind", a.Kind,
		"message_id", a.MessageID,
		"provider_reference", a.ProviderReference,
		"sent_at", a.SentAt,
		"waiting", a.Waiting.String(),
	)
	return nil
}

// WebhookNotifier posts alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

func NewWebhookNotifier(url string, httpClient *http.Client) *WebhookNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &WebhookNotifier{url: url, httpClient: httpClient}
}

func (n *WebhookNotifier) Notify(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Multi fans an alert out to several notifiers and returns the first error.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, a Alert) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*WebhookNotifier)(nil)
	_ Notifier = Multi(nil)
)
