package notifier

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

type EmailConfig struct {
	Host              string   `yaml:"host"`
	Port              int      `yaml:"port"`
	Username          string   `yaml:"username"`
	Password          string   `yaml:"password"`
	From              string   `yaml:"from"`
	SSL               bool     `yaml:"ssl"`
	DefaultRecipients []string `yaml:"default_recipients"`
}

// MailSender is satisfied by *gomail.Dialer.
type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailChannel struct {
	cfg    EmailConfig
	sender MailSender
}

func NewEmailChannel(cfg EmailConfig, sender MailSender) *EmailChannel {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if sender == nil {
		d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		d.SSL = cfg.SSL
		sender = d
	}

	return &EmailChannel{cfg: cfg, sender: sender}
}

func (c *EmailChannel) Name() string {
	return "email"
}

func (c *EmailChannel) Send(ctx context.Context, n Notification) error {
	if len(c.cfg.DefaultRecipients) == 0 {
		return fmt.Errorf("EmailChannel.Send: %w", eventmodels.ErrNoRecipients)
	}

	title := n.Title
	if title == "" {
		title = "System notification"
	}

	m := gomail.NewMessage()
	m.SetHeader("From", c.cfg.From)
	m.SetHeader("To", c.cfg.DefaultRecipients...)
	m.SetHeader("Subject", title)
	m.SetBody("text/plain", n.Message)

	// gomail has no context support; the send runs in the background and is
	// abandoned when ctx expires.
	done := make(chan error, 1)
	go func() {
		done <- c.sender.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("EmailChannel.Send: to %s: %w: %w", strings.Join(c.cfg.DefaultRecipients, ","), eventmodels.ErrDelivery, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("EmailChannel.Send: %w: %w", eventmodels.ErrDelivery, ctx.Err())
	}
}
