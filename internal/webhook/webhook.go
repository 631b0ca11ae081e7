// Package webhook posts channel lifecycle events to an operator endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/config"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/logging"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/metrics"
	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

// Delivery headers
const (
	HeaderEvent     = "X-Streamflow-Event"
	HeaderDelivery  = "X-Streamflow-Delivery"
	HeaderSignature = "X-Streamflow-Signature"
)

// Payload is the JSON body of every delivery
type Payload struct {
	Event     string                `json:"event"`
	Timestamp time.Time             `json:"timestamp"`
	Data      models.LifecycleEvent `json:"data"`
}

// Notifier delivers lifecycle events in the background with retry
type Notifier struct {
	client *http.Client
	url    string
	secret string
	delays []time.Duration
	logger *logging.Logger
	wg     sync.WaitGroup
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// Retry delays after the first failed attempt
var defaultRetryDelays = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	15 * time.Second,
}

// NewNotifier creates a notifier for the configured endpoint
func NewNotifier(cfg config.WebhookConfig, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	delays := defaultRetryDelays
	if cfg.MaxAttempts > 0 && cfg.MaxAttempts-1 < len(delays) {
		delays = delays[:cfg.MaxAttempts-1]
	}

	return &Notifier{
		client: &http.Client{Timeout: timeout},
		url:    cfg.URL,
		secret: cfg.Secret,
		delays: delays,
		logger: logger.WithField("component", "webhook"),
		sleep:  sleepContext,
		now:    time.Now,
	}
}

// PublishLifecycle queues the event for delivery and returns immediately
func (n *Notifier) PublishLifecycle(ctx context.Context, event models.LifecycleEvent) error {
	body, err := json.Marshal(Payload{
		Event:     event.Event,
		Timestamp: n.now().UTC(),
		Data:      event,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	deliveryID := uuid.New().String()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		// Delivery outlives the request that triggered it.
		if err := n.Deliver(context.WithoutCancel(ctx), event.Event, deliveryID, body); err != nil {
			n.logger.WithChannelID(event.ChannelID).WithError(err).Warnf("Webhook delivery %s abandoned", deliveryID)
		}
	}()

	return nil
}

// Deliver posts one payload, retrying failed attempts
func (n *Notifier) Deliver(ctx context.Context, event, deliveryID string, body []byte) error {
	var lastErr error
	for attempt := 0; attempt <= len(n.delays); attempt++ {
		if attempt > 0 {
			if err := n.sleep(ctx, n.delays[attempt-1]); err != nil {
				return err
			}
		}

		lastErr = n.post(ctx, event, deliveryID, body)
		if lastErr == nil {
			metrics.RecordWebhookDelivery("delivered")
			return nil
		}
		n.logger.WithError(lastErr).Debugf("Webhook delivery %s attempt %d failed", deliveryID, attempt+1)
	}

	metrics.RecordWebhookDelivery("failed")
	return fmt.Errorf("failed after %d attempts: %w", len(n.delays)+1, lastErr)
}

func (n *Notifier) post(ctx context.Context, event, deliveryID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Streamflow-Webhook/1.0")
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderDelivery, deliveryID)

	// Add HMAC signature if secret is configured
	if n.secret != "" {
		req.Header.Set(HeaderSignature, Sign(body, n.secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Wait blocks until every queued delivery has finished
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Sign returns the HMAC-SHA256 signature header value for a payload
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
