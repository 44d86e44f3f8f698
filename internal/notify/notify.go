// Package notify provides notification delivery for critical
// monitoring alerts. Delivery is a fire-and-forget side channel:
// failures are reported to the caller for logging but must never
// block or fail the triggering monitoring call.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"modelctl/internal/config"
	"modelctl/internal/models"
	"modelctl/internal/performance"
	"modelctl/pkg/utils"
)

// Notifier delivers critical alerts to an external side channel.
type Notifier interface {
	NotifyCritical(ctx context.Context, alert *models.PerformanceAlert) error
}

// Channel is one delivery target.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert *models.PerformanceAlert) error
	IsEnabled() bool
}

// Level filters which alerts are delivered.
type Level string

const (
	LevelAll          Level = "all"
	LevelCriticalOnly Level = "critical_only"
)

// MultiNotifier sends alerts to multiple channels.
type MultiNotifier struct {
	channels []Channel
	level    Level
	mu       sync.RWMutex
}

// NewMultiNotifier creates a notifier from the notification config.
func NewMultiNotifier(cfg *config.NotificationConfig) *MultiNotifier {
	mn := &MultiNotifier{
		channels: make([]Channel, 0),
		level:    Level(cfg.Level),
	}
	if mn.level == "" {
		mn.level = LevelCriticalOnly
	}

	if cfg.Console.Enabled {
		mn.channels = append(mn.channels, NewConsoleChannel())
	}
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookChannel(cfg.Webhook))
	}

	return mn
}

// AddChannel adds a delivery channel.
func (mn *MultiNotifier) AddChannel(ch Channel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

func (mn *MultiNotifier) shouldSend(severity models.AlertSeverity) bool {
	if mn.level == LevelAll {
		return true
	}
	return severity == models.SeverityCritical
}

// NotifyCritical delivers an alert to all enabled channels. The first
// channel error is returned for logging; remaining channels are still
// attempted.
func (mn *MultiNotifier) NotifyCritical(ctx context.Context, alert *models.PerformanceAlert) error {
	if alert == nil || !mn.shouldSend(alert.Severity) {
		return nil
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var firstErr error
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, alert); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("channel %s: %w", ch.Name(), err)
		}
	}
	return firstErr
}

// ConsoleChannel prints alerts to stdout.
type ConsoleChannel struct{}

// NewConsoleChannel creates a console channel.
func NewConsoleChannel() *ConsoleChannel {
	return &ConsoleChannel{}
}

// Name returns the channel name.
func (c *ConsoleChannel) Name() string { return "console" }

// IsEnabled reports whether the channel is active.
func (c *ConsoleChannel) IsEnabled() bool { return true }

// Send prints the alert.
func (c *ConsoleChannel) Send(_ context.Context, alert *models.PerformanceAlert) error {
	fmt.Printf("[%s] %s ALERT (%s): %s\n",
		alert.Timestamp.Format(time.RFC3339), alert.Severity, alert.Type, alert.Message)
	return nil
}

// WebhookChannel posts alerts as JSON to a configured URL. Posts are
// rate limited and retried with backoff.
type WebhookChannel struct {
	url     string
	enabled bool
	client  *http.Client
	limiter *performance.RateLimiter
}

// NewWebhookChannel creates a webhook channel.
func NewWebhookChannel(cfg config.WebhookConfig) *WebhookChannel {
	return &WebhookChannel{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: performance.NewRateLimiter(1, 5),
	}
}

// Name returns the channel name.
func (w *WebhookChannel) Name() string { return "webhook" }

// IsEnabled reports whether the channel is active.
func (w *WebhookChannel) IsEnabled() bool { return w.enabled }

type webhookPayload struct {
	AlertID      string                 `json:"alert_id"`
	Type         string                 `json:"type"`
	Severity     string                 `json:"severity"`
	Timestamp    time.Time              `json:"timestamp"`
	Message      string                 `json:"message"`
	ModelVersion string                 `json:"model_version,omitempty"`
	Metric       string                 `json:"metric,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// Send posts the alert to the webhook URL.
func (w *WebhookChannel) Send(ctx context.Context, alert *models.PerformanceAlert) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	payload := webhookPayload{
		AlertID:      alert.ID,
		Type:         string(alert.Type),
		Severity:     string(alert.Severity),
		Timestamp:    alert.Timestamp,
		Message:      alert.Message,
		ModelVersion: alert.ModelVersion,
		Metric:       alert.Metric,
		Details:      alert.Details,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	return utils.Retry(ctx, utils.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return err
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
	})
}
