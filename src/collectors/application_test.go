package collectors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kataras/go-events"
	"github.com/montanaflynn/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/store"
)

type failingWriter struct{}

func (failingWriter) SaveMetricSamples(context.Context, []eventmodels.MetricSample) error {
	return errors.New("database unavailable")
}

func TestPercentile(t *testing.T) {
	t.Run("nearest rank over the rolling window", func(t *testing.T) {
		// arrange
		var values stats.Float64Data
		for v := 10; v <= 1000; v += 10 {
			values = append(values, float64(v))
		}

		// act
		p95 := Percentile(values, 95)
		p99 := Percentile(values, 99)

		// assert
		assert.Equal(t, 950.0, p95)
		assert.Equal(t, 990.0, p99)
	})

	t.Run("empty window is zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Percentile(nil, 95))
	})
}

func TestApplicationCollector(t *testing.T) {
	ctx := context.Background()

	t.Run("flush derives the snapshot then resets counters", func(t *testing.T) {
		// arrange
		s := store.NewMemoryStore()
		c := NewApplicationCollector(s, time.Minute)
		for v := 10; v <= 1000; v += 10 {
			c.RecordAPIRequest(v%100 != 0, time.Duration(v)*time.Millisecond)
		}
		c.RecordDBQuery(50*time.Millisecond, false, nil)
		c.RecordDBQuery(250*time.Millisecond, true, nil)
		c.RecordEventIngested(eventmodels.CategoryMarket)

		// act
		snap, err := c.Flush(ctx)

		// assert
		require.NoError(t, err)
		assert.Equal(t, 100.0, snap.APIRequestsTotal)
		assert.Equal(t, 10.0, snap.APIRequestsError)
		assert.Equal(t, 90.0, snap.APIRequestsSuccess)
		assert.Equal(t, 950.0, snap.APIResponseTimeP95)
		assert.InDelta(t, 505.0, snap.APIResponseTimeAvg, 1e-9)
		assert.Equal(t, 2.0, snap.DBQueriesTotal)
		assert.Equal(t, 1.0, snap.DBQueriesSlow)
		assert.InDelta(t, 150.0, snap.DBQueryTimeAvg, 1e-9)
		assert.Equal(t, 1.0, snap.EventsIngested)

		latest, err := s.LatestMetricValue(ctx, "app.api_response_time_p95")
		require.NoError(t, err)
		assert.Equal(t, 950.0, latest.Value)

		after := c.Snapshot()
		assert.Zero(t, after.APIRequestsTotal)
		assert.Zero(t, after.APIResponseTimeP95)
		assert.Zero(t, after.DBQueriesTotal)
	})

	t.Run("rolling window keeps the last 1000 response times", func(t *testing.T) {
		c := NewApplicationCollector(nil, time.Minute)
		for i := 0; i < 1500; i++ {
			c.RecordAPIRequest(true, time.Duration(i)*time.Millisecond)
		}

		snap := c.Snapshot()

		assert.Equal(t, 1500.0, snap.APIRequestsTotal)
		assert.InDelta(t, 999.5, snap.APIResponseTimeAvg, 1e-9)
	})

	t.Run("failed writes keep the counters", func(t *testing.T) {
		c := NewApplicationCollector(failingWriter{}, time.Minute)
		c.RecordAPIRequest(true, time.Millisecond)

		_, err := c.Flush(ctx)

		require.Error(t, err)
		assert.Equal(t, 1.0, c.Snapshot().APIRequestsTotal)
		_, _, flushed := c.LastFlush()
		assert.False(t, flushed)
	})

	t.Run("counts websocket events from the emitter", func(t *testing.T) {
		c := NewApplicationCollector(nil, time.Minute)
		emitter := events.New()
		c.Listen(emitter)

		emitter.Emit(eventmodels.WebsocketConnected)
		emitter.Emit(eventmodels.WebsocketMessageSent, "payload")
		emitter.Emit(eventmodels.WebsocketMessageSent, "payload")
		emitter.Emit(eventmodels.WebsocketError)

		snap := c.Snapshot()
		assert.Equal(t, 1.0, snap.WebsocketConnections)
		assert.Equal(t, 2.0, snap.WebsocketMessagesSent)
		assert.Equal(t, 0.0, snap.WebsocketMessagesReceived)
		assert.Equal(t, 1.0, snap.WebsocketErrors)
	})
}
