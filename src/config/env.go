package config

import (
	"fmt"

	"github.com/jiaming2012/market-sentinel/src/notifier"
	"github.com/jiaming2012/market-sentinel/src/utils"
)

// ApplyEnv overlays secrets and deployment settings from the environment.
func (c *Config) ApplyEnv() {
	c.HTTP.Addr = utils.GetEnvOrDefault("SENTINEL_HTTP_ADDR", c.HTTP.Addr)
	if port, err := utils.GetEnv("PORT"); err == nil {
		c.HTTP.Addr = ":" + port
	}

	c.Logging.Level = utils.GetEnvOrDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = utils.GetEnvOrDefault("LOG_FORMAT", c.Logging.Format)
	c.Telemetry.Enabled = utils.GetEnvBool("OTEL_ENABLED", c.Telemetry.Enabled)

	c.Sources.Whale.APIKey = utils.GetEnvOrDefault("WHALE_ALERT_API_KEY", c.Sources.Whale.APIKey)
	c.Sources.Market.PolygonAPIKey = utils.GetEnvOrDefault("POLYGON_API_KEY", c.Sources.Market.PolygonAPIKey)

	if url, ok := postgresURLFromEnv(); ok {
		c.Database.URL = url
	}
	c.Database.URL = utils.GetEnvOrDefault("DATABASE_URL", c.Database.URL)

	c.applyNotificationEnv()
}

func postgresURLFromEnv() (string, bool) {
	host, err := utils.GetEnv("POSTGRES_HOST")
	if err != nil {
		return "", false
	}

	port := utils.GetEnvOrDefault("POSTGRES_PORT", "5432")
	user := utils.GetEnvOrDefault("POSTGRES_USER", "postgres")
	password := utils.GetEnvOrDefault("POSTGRES_PASSWORD", "")
	dbName := utils.GetEnvOrDefault("POSTGRES_DB", "sentinel")

	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC", host, user, password, dbName, port), true
}

// A channel is enabled from the environment when its credential is present.
func (c *Config) applyNotificationEnv() {
	n := &c.Notifications

	if token, err := utils.GetEnv("TELEGRAM_BOT_TOKEN"); err == nil {
		if n.Telegram == nil {
			n.Telegram = &notifier.TelegramConfig{}
		}
		n.Telegram.BotToken = token
	}
	if n.Telegram != nil {
		if ids := utils.SplitList(utils.GetEnvOrDefault("TELEGRAM_CHAT_IDS", "")); len(ids) > 0 {
			n.Telegram.ChatIDs = ids
		}
	}

	if url, err := utils.GetEnv("SLACK_WEBHOOK_URL"); err == nil {
		if n.Slack == nil {
			n.Slack = &notifier.SlackConfig{}
		}
		n.Slack.WebhookURL = url
	}

	if url, err := utils.GetEnv("ALERT_WEBHOOK_URL"); err == nil {
		if n.Webhook == nil {
			n.Webhook = &notifier.WebhookConfig{}
		}
		n.Webhook.URL = url
	}

	if host, err := utils.GetEnv("SMTP_HOST"); err == nil {
		if n.Email == nil {
			n.Email = &notifier.EmailConfig{}
		}
		n.Email.Host = host
	}
	if n.Email != nil {
		n.Email.Port = utils.GetEnvInt("SMTP_PORT", n.Email.Port)
		n.Email.Username = utils.GetEnvOrDefault("SMTP_USERNAME", n.Email.Username)
		n.Email.Password = utils.GetEnvOrDefault("SMTP_PASSWORD", n.Email.Password)
		n.Email.From = utils.GetEnvOrDefault("SMTP_FROM", n.Email.From)
		n.Email.SSL = utils.GetEnvBool("SMTP_SSL", n.Email.SSL)
		if to := utils.SplitList(utils.GetEnvOrDefault("SMTP_RECIPIENTS", "")); len(to) > 0 {
			n.Email.DefaultRecipients = to
		}
	}

	n.Timeout = utils.GetEnvDuration("NOTIFICATION_TIMEOUT", n.Timeout)
}
