// Package notify triggers the outbound email service. Delivery is fire and
// forget: a failed notification is logged and never fails the mutation that
// caused it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ieeeucsd/dashboard-finance/internal/application/dispatcher"
	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/event"
)

// WebhookNotifier POSTs notifications as JSON to the email endpoint
type WebhookNotifier struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewWebhookNotifier creates a notifier for endpoint
func NewWebhookNotifier(endpoint string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Notify implements port.Notifier
func (n *WebhookNotifier) Notify(ctx context.Context, msg port.Notification) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notification endpoint returned %d: %s", resp.StatusCode, snippet)
	}

	n.logger.Debug("Notification sent", zap.String("type", msg.Type), zap.String("record_id", msg.RecordID))
	return nil
}

// NoopNotifier is used when no endpoint is configured
type NoopNotifier struct{}

// Notify implements port.Notifier
func (NoopNotifier) Notify(ctx context.Context, msg port.Notification) error { return nil }

// Subscriber turns record events into email notifications
type Subscriber struct {
	notifier port.Notifier
	logger   *zap.Logger
}

// NewSubscriber creates a subscriber sending through notifier
func NewSubscriber(notifier port.Notifier, logger *zap.Logger) *Subscriber {
	return &Subscriber{notifier: notifier, logger: logger}
}

// Register subscribes to submissions and status changes
func (s *Subscriber) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeRecordCreated, "email-notifier", s.HandleEvent)
	d.SubscribeNamed(event.TypeRecordStatusChanged, "email-notifier", s.HandleEvent)
}

// NotificationType maps an event to the email template name, e.g.
// reimbursement_submitted or deposit_status_changed
func NotificationType(evt *event.Event) (string, bool) {
	switch evt.Type {
	case event.TypeRecordCreated:
		return string(evt.RecordKind) + "_submitted", true
	case event.TypeRecordStatusChanged:
		return string(evt.RecordKind) + "_status_changed", true
	default:
		return "", false
	}
}

// HandleEvent sends the notification for evt. Errors are logged, not returned.
func (s *Subscriber) HandleEvent(ctx context.Context, evt *event.Event) error {
	typ, ok := NotificationType(evt)
	if !ok {
		return nil
	}

	msg := port.Notification{Type: typ, RecordID: evt.RecordID}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.Warn("Failed to send notification",
			zap.String("type", typ),
			zap.String("record_id", evt.RecordID),
			zap.Error(err))
	}
	return nil
}
