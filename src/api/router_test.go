package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/market-sentinel/src/alerting"
	"github.com/jiaming2012/market-sentinel/src/collectors"
	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/ingestion"
	"github.com/jiaming2012/market-sentinel/src/notifier"
	"github.com/jiaming2012/market-sentinel/src/store"
)

type staticHealth struct {
	report eventmodels.HealthReport
}

func (h staticHealth) Check() eventmodels.HealthReport { return h.report }

type testChannel struct {
	name string
	err  error
}

func (c testChannel) Name() string { return c.name }

func (c testChannel) Send(context.Context, notifier.Notification) error { return c.err }

type fixture struct {
	server      *Server
	store       *store.MemoryStore
	coordinator *ingestion.Coordinator
	app         *collectors.ApplicationCollector
	health      *staticHealth
}

func newFixture(t *testing.T) *fixture {
	s := store.NewMemoryStore()
	coordinator := ingestion.NewCoordinator(nil, nil, nil)
	app := collectors.NewApplicationCollector(s, time.Minute)
	health := &staticHealth{report: eventmodels.HealthReport{Status: eventmodels.HealthHealthy}}
	dispatcher := notifier.NewDispatcher(time.Second,
		testChannel{name: "slack"},
		testChannel{name: "email", err: errors.New("smtp refused")},
	)

	server := NewServer(Deps{
		Ingestion: coordinator,
		Alerts:    alerting.NewEngine(s),
		Channels:  dispatcher,
		Health:    health,
		Recorder:  app,
		Reports:   s,
	})

	return &fixture{server: server, store: s, coordinator: coordinator, app: app, health: health}
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()

	f.server.Handler().ServeHTTP(rec, req)

	out := map[string]interface{}{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (f *fixture) seedAlert(t *testing.T, severity eventmodels.Severity, triggeredAt time.Time) *eventmodels.Alert {
	rule := &eventmodels.AlertRule{Name: "cpu " + string(severity), MetricName: "system.cpu_usage", Operator: eventmodels.OperatorGreaterThan, Threshold: 80, Severity: severity}
	alert := eventmodels.NewAlert(rule, 91, triggeredAt)
	require.NoError(t, f.store.CreateAlert(context.Background(), alert))
	return alert
}

func TestHealthAndSources(t *testing.T) {
	t.Run("health mirrors the checker", func(t *testing.T) {
		f := newFixture(t)

		rec, body := f.do(t, http.MethodGet, "/health", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("critical health is a 503", func(t *testing.T) {
		f := newFixture(t)
		f.health.report = eventmodels.HealthReport{Status: eventmodels.HealthCritical, Issues: []string{"system: cpu 97%"}}

		rec, body := f.do(t, http.MethodGet, "/health", "")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, []interface{}{"system: cpu 97%"}, body["issues"])
	})

	t.Run("sources reports coordinator status", func(t *testing.T) {
		f := newFixture(t)

		rec, body := f.do(t, http.MethodGet, "/sources", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, body["running"])
	})
}

func TestCache(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the latest events for a slash key", func(t *testing.T) {
		// arrange
		f := newFixture(t)
		start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 5; i++ {
			ev := eventmodels.NewEvent("okx", eventmodels.CategoryMarket, "BTC/USDT", start.Add(time.Duration(i)*time.Minute), map[string]interface{}{"close": float64(i)})
			require.NoError(t, f.coordinator.HandleEvent(ctx, ev))
		}

		// act
		rec, body := f.do(t, http.MethodGet, "/cache/BTC/USDT?count=2", "")

		// assert
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(2), body["count"])
		events := body["events"].([]interface{})
		assert.Equal(t, float64(4), events[1].(map[string]interface{})["payload"].(map[string]interface{})["close"])
	})

	t.Run("unknown keys are empty", func(t *testing.T) {
		f := newFixture(t)

		rec, body := f.do(t, http.MethodGet, "/cache/DOGE/USDT", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(0), body["count"])
	})

	t.Run("a malformed count is a bad request", func(t *testing.T) {
		f := newFixture(t)

		rec, _ := f.do(t, http.MethodGet, "/cache/news?count=lots", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("stats list every key", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.coordinator.HandleEvent(ctx, eventmodels.NewEvent("rss", eventmodels.CategoryNews, "coindesk", time.Now(), nil)))

		_, body := f.do(t, http.MethodGet, "/cache", "")

		assert.Len(t, body["keys"], 1)
	})
}

func TestAlerts(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("lists active alerts newest first", func(t *testing.T) {
		f := newFixture(t)
		older := f.seedAlert(t, eventmodels.SeverityHigh, now.Add(-time.Hour))
		newer := f.seedAlert(t, eventmodels.SeverityLow, now)

		rec, body := f.do(t, http.MethodGet, "/alerts?limit=10", "")

		require.Equal(t, http.StatusOK, rec.Code)
		alerts := body["alerts"].([]interface{})
		require.Len(t, alerts, 2)
		assert.Equal(t, newer.ID.String(), alerts[0].(map[string]interface{})["id"])
		assert.Equal(t, older.ID.String(), alerts[1].(map[string]interface{})["id"])
	})

	t.Run("filters by severity", func(t *testing.T) {
		f := newFixture(t)
		f.seedAlert(t, eventmodels.SeverityHigh, now)
		f.seedAlert(t, eventmodels.SeverityLow, now)

		_, body := f.do(t, http.MethodGet, "/alerts?severity=high", "")

		assert.Equal(t, float64(1), body["count"])
	})

	t.Run("rejects unknown filters", func(t *testing.T) {
		f := newFixture(t)

		rec, _ := f.do(t, http.MethodGet, "/alerts?severity=apocalyptic", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec, _ = f.do(t, http.MethodGet, "/alerts?status=snoozed", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("resolves once", func(t *testing.T) {
		f := newFixture(t)
		alert := f.seedAlert(t, eventmodels.SeverityHigh, now)
		path := "/alerts/" + alert.ID.String() + "/resolve"

		rec, body := f.do(t, http.MethodPost, path, `{"resolved_by":"oncall","notes":"scaled up"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["resolved"])

		rec, _ = f.do(t, http.MethodPost, path, "")
		assert.Equal(t, http.StatusConflict, rec.Code)

		stored, err := f.store.GetAlert(context.Background(), alert.ID)
		require.NoError(t, err)
		assert.Equal(t, "oncall", stored.ResolvedBy)
		assert.Equal(t, "scaled up", stored.ResolutionNotes)
	})

	t.Run("resolve errors", func(t *testing.T) {
		f := newFixture(t)

		rec, _ := f.do(t, http.MethodPost, "/alerts/not-a-uuid/resolve", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec, _ = f.do(t, http.MethodPost, "/alerts/7f1a0c4e-5f0e-4f5e-9a55-2d6a2f0e9b11/resolve", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("wrong method is rejected", func(t *testing.T) {
		f := newFixture(t)

		rec := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/alerts", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestChannels(t *testing.T) {
	t.Run("lists configured channels", func(t *testing.T) {
		f := newFixture(t)

		_, body := f.do(t, http.MethodGet, "/channels", "")

		assert.Equal(t, []interface{}{"email", "slack"}, body["channels"])
	})

	t.Run("test results per channel", func(t *testing.T) {
		f := newFixture(t)

		rec, body := f.do(t, http.MethodPost, "/channels/slack/test", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["sent"])

		rec, body = f.do(t, http.MethodPost, "/channels/email/test", "")
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, false, body["sent"])

		rec, _ = f.do(t, http.MethodPost, "/channels/pager/test", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("requests are recorded by outcome", func(t *testing.T) {
		f := newFixture(t)

		f.do(t, http.MethodGet, "/channels", "")
		f.do(t, http.MethodGet, "/alerts?status=snoozed", "")

		snap := f.app.Snapshot()
		assert.Equal(t, float64(2), snap.APIRequestsTotal)
		assert.Equal(t, float64(1), snap.APIRequestsSuccess)
		assert.Equal(t, float64(1), snap.APIRequestsError)
	})

	t.Run("metrics are exposed", func(t *testing.T) {
		f := newFixture(t)

		rec := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})
}

func TestReport(t *testing.T) {
	t.Run("builds the daily report from stored samples", func(t *testing.T) {
		f := newFixture(t)
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		f.server.now = func() time.Time { return now }
		require.NoError(t, f.store.SaveMetricSamples(context.Background(), []eventmodels.MetricSample{
			{Name: "system.cpu_usage", Value: 40, Timestamp: now.Add(-time.Hour)},
			{Name: "system.cpu_usage", Value: 60, Timestamp: now.Add(-2 * time.Hour)},
		}))

		rec, body := f.do(t, http.MethodGet, "/report", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(50), body["avg_cpu_usage"])
		assert.Equal(t, float64(2), body["system_samples"])
	})
}
