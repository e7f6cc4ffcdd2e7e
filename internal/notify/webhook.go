// Package notify pushes approval requests to an external operator
// endpoint, for deployments where no UI holds an open event stream.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opencode-ai/cmdgate/internal/event"
	"github.com/opencode-ai/cmdgate/internal/logging"
)

const (
	// MaxRetries is the maximum number of delivery retries per request.
	MaxRetries = 3
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = time.Second
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 30 * time.Second
	// DeliveryTimeout bounds the total time spent on one delivery.
	DeliveryTimeout = 2 * time.Minute
)

// Webhook delivers approval.requested events to an operator URL.
// Delivery is best-effort: exhausted retries are logged and dropped, and
// never affect the approval flow itself — a reconnecting operator can
// always recover outstanding requests from the pending list.
type Webhook struct {
	url         string
	client      *http.Client
	initial     time.Duration
	maxInterval time.Duration
	unsubscribe func()
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = client }
}

// WithRetryIntervals overrides backoff timing (for tests).
func WithRetryIntervals(initial, max time.Duration) WebhookOption {
	return func(w *Webhook) {
		w.initial = initial
		w.maxInterval = max
	}
}

// NewWebhook creates a webhook notifier targeting url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:         url,
		client:      &http.Client{Timeout: 10 * time.Second},
		initial:     RetryInitialInterval,
		maxInterval: RetryMaxInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start subscribes to approval.requested events.
func (w *Webhook) Start() {
	w.unsubscribe = event.Subscribe(event.ApprovalRequested, func(e event.Event) {
		// Already on a per-listener goroutine; deliver inline.
		w.deliver(e)
	})
	logging.Info().Str("url", w.url).Msg("webhook notifier started")
}

// Stop unsubscribes from the event bus.
func (w *Webhook) Stop() {
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
}

func (w *Webhook) deliver(e event.Event) {
	body, err := json.Marshal(e)
	if err != nil {
		logging.Error().Err(err).Msg("webhook payload marshal failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DeliveryTimeout)
	defer cancel()

	post := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil
	}

	if err := backoff.Retry(post, w.newBackoff(ctx)); err != nil {
		logging.Warn().Err(err).Str("url", w.url).Msg("webhook delivery failed, dropping event")
	}
}

// newBackoff creates an exponential backoff with jitter, bounded by
// MaxRetries and the delivery context.
func (w *Webhook) newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.initial
	b.MaxInterval = w.maxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}
