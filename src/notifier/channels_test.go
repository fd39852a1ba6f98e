package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

type capturedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]interface{}
}

func captureServer(t *testing.T, status int, response string) (*httptest.Server, func() []capturedRequest) {
	var mu sync.Mutex
	var requests []capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body := map[string]interface{}{}
		_ = json.Unmarshal(raw, &body)

		mu.Lock()
		requests = append(requests, capturedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
		mu.Unlock()

		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), requests...)
	}
}

var testNotification = Notification{Title: "High CPU", Message: "cpu at 91%", Severity: eventmodels.SeverityMedium}

func TestTelegramChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("sends a markdown message to every chat", func(t *testing.T) {
		// arrange
		srv, requests := captureServer(t, http.StatusOK, `{"ok":true}`)
		ch := NewTelegramChannel(TelegramConfig{BotToken: "token", ChatIDs: []string{"1", "2"}, APIURL: srv.URL}, srv.Client())

		// act
		err := ch.Send(ctx, testNotification)

		// assert
		require.NoError(t, err)
		got := requests()
		require.Len(t, got, 2)
		assert.Equal(t, "/bottoken/sendMessage", got[0].Path)
		assert.Equal(t, "Markdown", got[0].Body["parse_mode"])
		assert.Equal(t, "*High CPU*\n\ncpu at 91%", got[0].Body["text"])
	})

	t.Run("api errors are delivery errors", func(t *testing.T) {
		srv, _ := captureServer(t, http.StatusOK, `{"ok":false,"description":"chat not found"}`)
		ch := NewTelegramChannel(TelegramConfig{BotToken: "token", ChatIDs: []string{"1"}, APIURL: srv.URL}, srv.Client())

		err := ch.Send(ctx, testNotification)

		assert.ErrorIs(t, err, eventmodels.ErrDelivery)
		assert.Contains(t, err.Error(), "chat not found")
	})

	t.Run("no chats means no transport", func(t *testing.T) {
		srv, requests := captureServer(t, http.StatusOK, `{"ok":true}`)
		ch := NewTelegramChannel(TelegramConfig{BotToken: "token", APIURL: srv.URL}, srv.Client())

		err := ch.Send(ctx, testNotification)

		assert.ErrorIs(t, err, eventmodels.ErrNoRecipients)
		assert.Empty(t, requests())
	})
}

func TestSlackChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("colours the attachment by severity", func(t *testing.T) {
		srv, requests := captureServer(t, http.StatusOK, "ok")
		ch := NewSlackChannel(SlackConfig{WebhookURL: srv.URL}, srv.Client())
		ch.now = func() time.Time { return time.Unix(1714550400, 0) }

		require.NoError(t, ch.Send(ctx, testNotification))

		body := requests()[0].Body
		assert.Equal(t, "#general", body["channel"])
		assert.Equal(t, "High CPU", body["text"])
		attachment := body["attachments"].([]interface{})[0].(map[string]interface{})
		assert.Equal(t, "warning", attachment["color"])
		assert.Equal(t, float64(1714550400), attachment["ts"])
	})

	t.Run("severity colours", func(t *testing.T) {
		assert.Equal(t, "good", SeverityColor(eventmodels.SeverityLow))
		assert.Equal(t, "warning", SeverityColor(eventmodels.SeverityMedium))
		assert.Equal(t, "danger", SeverityColor(eventmodels.SeverityHigh))
		assert.Equal(t, "danger", SeverityColor(eventmodels.SeverityCritical))
	})

	t.Run("server errors fail the send", func(t *testing.T) {
		srv, _ := captureServer(t, http.StatusInternalServerError, "boom")
		ch := NewSlackChannel(SlackConfig{WebhookURL: srv.URL}, srv.Client())

		assert.ErrorIs(t, ch.Send(ctx, testNotification), eventmodels.ErrDelivery)
	})

	t.Run("missing webhook url", func(t *testing.T) {
		assert.ErrorIs(t, NewSlackChannel(SlackConfig{}, nil).Send(ctx, testNotification), eventmodels.ErrNoRecipients)
	})
}

func TestWebhookChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("uses the configured method and headers", func(t *testing.T) {
		srv, requests := captureServer(t, http.StatusAccepted, "")
		ch := NewWebhookChannel(WebhookConfig{URL: srv.URL, Method: http.MethodPut, Headers: map[string]string{"X-Token": "secret"}}, srv.Client())

		err := ch.Send(ctx, Notification{Title: "t", Message: "m", Fields: map[string]interface{}{"alert_id": "abc"}})

		require.NoError(t, err)
		got := requests()[0]
		assert.Equal(t, http.MethodPut, got.Method)
		assert.Equal(t, "secret", got.Header.Get("X-Token"))
		assert.Equal(t, "abc", got.Body["alert_id"])
		assert.Equal(t, "market-sentinel", got.Body["source"])
	})

	t.Run("status 400 and above is a failure", func(t *testing.T) {
		srv, _ := captureServer(t, http.StatusBadRequest, "")
		ch := NewWebhookChannel(WebhookConfig{URL: srv.URL}, srv.Client())

		assert.Error(t, ch.Send(ctx, testNotification))
	})
}

type fakeMailer struct {
	err  error
	sent []*gomail.Message
}

func (f *fakeMailer) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func TestEmailChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("sends to the default recipients", func(t *testing.T) {
		mailer := &fakeMailer{}
		ch := NewEmailChannel(EmailConfig{From: "sentinel@example.com", DefaultRecipients: []string{"ops@example.com", "dev@example.com"}}, mailer)

		require.NoError(t, ch.Send(ctx, testNotification))

		require.Len(t, mailer.sent, 1)
		assert.Equal(t, []string{"ops@example.com", "dev@example.com"}, mailer.sent[0].GetHeader("To"))
		assert.Equal(t, []string{"High CPU"}, mailer.sent[0].GetHeader("Subject"))
	})

	t.Run("no recipients means no transport", func(t *testing.T) {
		mailer := &fakeMailer{}
		ch := NewEmailChannel(EmailConfig{}, mailer)

		assert.ErrorIs(t, ch.Send(ctx, testNotification), eventmodels.ErrNoRecipients)
		assert.Empty(t, mailer.sent)
	})

	t.Run("smtp failures are delivery errors", func(t *testing.T) {
		ch := NewEmailChannel(EmailConfig{DefaultRecipients: []string{"ops@example.com"}}, &fakeMailer{err: errors.New("auth failed")})

		assert.ErrorIs(t, ch.Send(ctx, testNotification), eventmodels.ErrDelivery)
	})
}

func TestNewDispatcherFromConfig(t *testing.T) {
	t.Run("only configured channels are enabled", func(t *testing.T) {
		d := NewDispatcherFromConfig(Config{
			Slack: &SlackConfig{WebhookURL: "http://localhost"},
			Email: &EmailConfig{},
		})

		assert.Equal(t, []string{"email", "slack"}, d.ListChannels())
	})
}
