package notifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/utils"
)

type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
	Username   string `yaml:"username"`
	IconEmoji  string `yaml:"icon_emoji"`
}

type SlackChannel struct {
	cfg    SlackConfig
	client *http.Client
	now    func() time.Time
}

func NewSlackChannel(cfg SlackConfig, client *http.Client) *SlackChannel {
	if cfg.Channel == "" {
		cfg.Channel = "#general"
	}
	if cfg.Username == "" {
		cfg.Username = "Market Sentinel"
	}
	if cfg.IconEmoji == "" {
		cfg.IconEmoji = ":robot_face:"
	}
	if client == nil {
		client = &http.Client{}
	}

	return &SlackChannel{cfg: cfg, client: client, now: time.Now}
}

func (c *SlackChannel) Name() string {
	return "slack"
}

type slackAttachment struct {
	Color string `json:"color"`
	Text  string `json:"text"`
	Ts    int64  `json:"ts"`
}

type slackMessage struct {
	Channel     string            `json:"channel"`
	Username    string            `json:"username"`
	IconEmoji   string            `json:"icon_emoji"`
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

// SeverityColor maps a severity to a slack attachment colour.
func SeverityColor(s eventmodels.Severity) string {
	switch s {
	case eventmodels.SeverityMedium:
		return "warning"
	case eventmodels.SeverityHigh, eventmodels.SeverityCritical:
		return "danger"
	}
	return "good"
}

func (c *SlackChannel) Send(ctx context.Context, n Notification) error {
	if c.cfg.WebhookURL == "" {
		return fmt.Errorf("SlackChannel.Send: %w", eventmodels.ErrNoRecipients)
	}

	msg := slackMessage{
		Channel:   c.cfg.Channel,
		Username:  c.cfg.Username,
		IconEmoji: c.cfg.IconEmoji,
		Text:      n.Title,
		Attachments: []slackAttachment{
			{Color: SeverityColor(n.Severity), Text: n.Message, Ts: c.now().Unix()},
		},
	}

	if _, err := utils.SendJSON(ctx, c.client, http.MethodPost, c.cfg.WebhookURL, msg, nil); err != nil {
		return fmt.Errorf("SlackChannel.Send: %w: %w", eventmodels.ErrDelivery, err)
	}
	return nil
}
