package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Event types.
const (
	BatchCompleted = "batch.completed"
	BatchPartial   = "batch.partial"
	BatchFailed    = "batch.failed"
)

// SignatureHeader carries "sha256=<hex>" of the request body when a secret
// is configured.
const SignatureHeader = "X-Shelfscan-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Notifier delivers signed events to subscriber URLs.
type Notifier struct {
	client *http.Client
	delays []time.Duration
}

// New creates a Notifier. delays are the waits before each attempt; nil
// means 0s, 1s, 5s, 30s.
func New(timeout time.Duration, delays []time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if delays == nil {
		delays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}
	}
	return &Notifier{client: &http.Client{Timeout: timeout}, delays: delays}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Deliver sends one event synchronously.
func (n *Notifier) Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Shelfscan-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverWithRetry attempts delivery once per configured delay and returns
// nil on the first success, or the last error.
func (n *Notifier) DeliverWithRetry(ctx context.Context, url, secret string, event *Event) error {
	var lastErr error
	for attempt, delay := range n.delays {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = n.Deliver(ctx, url, secret, event)
		if lastErr == nil {
			slog.Info("webhook delivered",
				"url", url,
				"event", event.Type,
				"job_id", event.JobID,
				"attempt", attempt+1,
			)
			return nil
		}
		slog.Warn("webhook delivery failed",
			"url", url,
			"event", event.Type,
			"job_id", event.JobID,
			"attempt", attempt+1,
			"error", lastErr,
		)
	}
	return lastErr
}

// DeliverAsync runs DeliverWithRetry in the background.
func (n *Notifier) DeliverAsync(url, secret string, event *Event) {
	go func() {
		if err := n.DeliverWithRetry(context.Background(), url, secret, event); err != nil {
			slog.Error("webhook delivery exhausted all retries",
				"url", url,
				"event", event.Type,
				"job_id", event.JobID,
			)
		}
	}()
}
