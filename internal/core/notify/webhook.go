package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/noa10/mataresit-sub018/pkg/errors"
)

// WebhookSender posts the rendered message as JSON to the channel's URL.
type WebhookSender struct {
	client *http.Client
	logger *logrus.Logger
}

// NewWebhookSender creates a webhook sender with the given request timeout.
func NewWebhookSender(logger *logrus.Logger, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Send posts the message. Any non-2xx response is a delivery failure.
func (w *WebhookSender) Send(ctx context.Context, ch Channel, msg *Message) error {
	url := ch.Config["url"]
	if url == "" {
		return errors.Wrapf(errors.ErrDeliveryFailure, "webhook channel %s has no url", ch.ID)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := ch.Config["token"]; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Wrapf(errors.ErrDeliveryFailure, "webhook post: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Wrapf(errors.ErrDeliveryFailure, "webhook returned status %d", resp.StatusCode)
	}

	w.logger.WithFields(logrus.Fields{
		"channel_id": ch.ID,
		"alert_id":   msg.AlertID,
		"status":     resp.StatusCode,
	}).Debug("Webhook notification delivered")

	return nil
}
