package notifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/utils"
)

type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
}

type WebhookChannel struct {
	cfg    WebhookConfig
	client *http.Client
	now    func() time.Time
}

func NewWebhookChannel(cfg WebhookConfig, client *http.Client) *WebhookChannel {
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if client == nil {
		client = &http.Client{}
	}

	return &WebhookChannel{cfg: cfg, client: client, now: time.Now}
}

func (c *WebhookChannel) Name() string {
	return "webhook"
}

// Send succeeds when the endpoint answers with a status below 400.
func (c *WebhookChannel) Send(ctx context.Context, n Notification) error {
	if c.cfg.URL == "" {
		return fmt.Errorf("WebhookChannel.Send: %w", eventmodels.ErrNoRecipients)
	}

	payload := map[string]interface{}{
		"title":     n.Title,
		"message":   n.Message,
		"severity":  n.Severity,
		"timestamp": c.now().UTC().Format(time.RFC3339),
		"source":    "market-sentinel",
	}
	for k, v := range n.Fields {
		payload[k] = v
	}

	if _, err := utils.SendJSON(ctx, c.client, c.cfg.Method, c.cfg.URL, payload, c.cfg.Headers); err != nil {
		return fmt.Errorf("WebhookChannel.Send: %w: %w", eventmodels.ErrDelivery, err)
	}
	return nil
}
