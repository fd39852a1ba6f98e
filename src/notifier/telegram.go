package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/utils"
)

const telegramAPIURL = "https://api.telegram.org"

type TelegramConfig struct {
	BotToken string   `yaml:"bot_token"`
	ChatIDs  []string `yaml:"chat_ids"`
	APIURL   string   `yaml:"api_url"`
}

type TelegramChannel struct {
	cfg    TelegramConfig
	client *http.Client
}

func NewTelegramChannel(cfg TelegramConfig, client *http.Client) *TelegramChannel {
	if cfg.APIURL == "" {
		cfg.APIURL = telegramAPIURL
	}
	if client == nil {
		client = &http.Client{}
	}

	return &TelegramChannel{cfg: cfg, client: client}
}

func (c *TelegramChannel) Name() string {
	return "telegram"
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

func (c *TelegramChannel) Send(ctx context.Context, n Notification) error {
	if c.cfg.BotToken == "" || len(c.cfg.ChatIDs) == 0 {
		return fmt.Errorf("TelegramChannel.Send: %w", eventmodels.ErrNoRecipients)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(c.cfg.APIURL, "/"), c.cfg.BotToken)
	text := fmt.Sprintf("*%s*\n\n%s", n.Title, n.Message)

	var failed []string
	for _, chatID := range c.cfg.ChatIDs {
		req := sendMessageRequest{ChatID: chatID, Text: text, ParseMode: "Markdown"}
		if err := c.sendMessage(ctx, url, req); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", chatID, err))
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("TelegramChannel.Send: %s: %w", strings.Join(failed, "; "), eventmodels.ErrDelivery)
	}
	return nil
}

func (c *TelegramChannel) sendMessage(ctx context.Context, url string, req sendMessageRequest) error {
	body, err := utils.SendJSON(ctx, c.client, http.MethodPost, url, req, nil)
	if err != nil {
		return err
	}

	var res sendMessageResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !res.OK {
		return fmt.Errorf("telegram API error: %s", res.Description)
	}
	return nil
}
