package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oggyb/sms-gateway/internal/domain/message"
)

const maxResponseBytes = 64 << 10

// webhookPayload is the JSON body posted to the provider endpoint.
type webhookPayload struct {
	Reference string `json:"reference"`
	From      string `json:"from"`
	To        string `json:"to"`
	Content   string `json:"content"`
	Encoding  string `json:"encoding"`
	Segments  int    `json:"segments"`
}

// webhookResponse is the provider acknowledgement.
type webhookResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

// WebhookClient is an SMS provider that accepts messages on a webhook-style HTTP endpoint.
type WebhookClient struct {
	endpoint   string
	authKey    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewWebhookClient creates a new WebhookClient with the given endpoint and auth key.
// Each request is bounded by timeout unless the caller's context is shorter.
func NewWebhookClient(endpoint, authKey string, timeout time.Duration, httpClient *http.Client) *WebhookClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * timeout}
	}
	return &WebhookClient{
		endpoint:   endpoint,
		authKey:    authKey,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

// withTimeout wraps the context with a timeout if it doesn't already have one.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// Submit posts the message as JSON. Network errors, timeouts, 429 and 5xx
// responses are transient; other non-2xx responses are rejections.
func (c *WebhookClient) Submit(ctx context.Context, in SubmitRequest) (SubmitResult, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(webhookPayload{
		Reference: in.Reference,
		From:      in.SenderID,
		To:        in.Recipient,
		Content:   in.Text,
		Encoding:  string(in.Encoding),
		Segments:  in.Segments,
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.authKey != "" {
		req.Header.Set("x-ins-auth-key", c.authKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return SubmitResult{}, &message.TransientError{Err: fmt.Errorf("webhook request timeout or canceled: %w", err)}
		}
		return SubmitResult{}, &message.TransientError{Err: fmt.Errorf("webhook request failed: %w", err)}
	}
	defer resp.Body.Close()

	rawBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return SubmitResult{}, &message.TransientError{Err: fmt.Errorf("failed to read webhook response: %w", err)}
	}
	raw := string(rawBytes)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return SubmitResult{Raw: raw}, &message.TransientError{Err: fmt.Errorf("webhook returned status %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return SubmitResult{Raw: raw}, fmt.Errorf("%w: webhook returned status %d", ErrRejected, resp.StatusCode)
	}

	result := SubmitResult{ProviderReference: in.Reference, Raw: raw}

	// A 2xx means the provider took the message. A body that is not JSON
	// (e.g. a plain "Accepted") keeps the gateway reference, like an empty one.
	var parsed webhookResponse
	if len(bytes.TrimSpace(rawBytes)) > 0 {
		_ = json.Unmarshal(rawBytes, &parsed)
	}
	if parsed.MessageID != "" {
		result.ProviderReference = parsed.MessageID
	}

	return result, nil
}

// Health implements Provider.Health with a simple GET request to the webhook endpoint.
func (c *WebhookClient) Health(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("health: failed to create request: %w", err)
	}

	if c.authKey != "" {
		req.Header.Set("x-ins-auth-key", c.authKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("health: request timeout or canceled: %w", err)
		}
		return fmt.Errorf("health: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("health: status %d", resp.StatusCode)
	}

	return nil
}

// compile-time check: WebhookClient satisfies the Provider interface.
var _ Provider = (*WebhookClient)(nil)
