package notifier

import (
	"net/http"
	"time"
)

// Config lists the channels to enable. A nil section disables the channel.
type Config struct {
	Timeout  time.Duration   `yaml:"timeout"`
	Telegram *TelegramConfig `yaml:"telegram"`
	Slack    *SlackConfig    `yaml:"slack"`
	Webhook  *WebhookConfig  `yaml:"webhook"`
	Email    *EmailConfig    `yaml:"email"`
}

func NewDispatcherFromConfig(cfg Config) *Dispatcher {
	client := &http.Client{Timeout: cfg.Timeout}
	d := NewDispatcher(cfg.Timeout)

	if cfg.Telegram != nil {
		d.AddChannel(NewTelegramChannel(*cfg.Telegram, client))
	}
	if cfg.Slack != nil {
		d.AddChannel(NewSlackChannel(*cfg.Slack, client))
	}
	if cfg.Webhook != nil {
		d.AddChannel(NewWebhookChannel(*cfg.Webhook, client))
	}
	if cfg.Email != nil {
		d.AddChannel(NewEmailChannel(*cfg.Email, nil))
	}

	return d
}
